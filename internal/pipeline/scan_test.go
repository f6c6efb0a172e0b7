package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"breakguard/internal/catalog"
	"breakguard/internal/classifier"
	"breakguard/internal/config"
	"breakguard/internal/extractor"
	"breakguard/internal/knowledge"
	"breakguard/internal/report"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCollaborator struct {
	hits     map[string]knowledge.Hit
	count    int
	countErr error
	queryErr error
	queries  atomic.Int32
}

func (f *fakeCollaborator) SearchByText(ctx context.Context, query string, filter knowledge.Filter, topK int) ([]knowledge.Hit, error) {
	f.queries.Add(1)
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	if h, ok := f.hits[query]; ok {
		return []knowledge.Hit{h}, nil
	}
	return nil, nil
}

func (f *fakeCollaborator) Count(ctx context.Context, filter knowledge.Filter) (int, error) {
	return f.count, f.countErr
}

func reactCatalog(t *testing.T) (*catalog.Catalog, catalog.Entry, catalog.Entry) {
	t.Helper()
	render := catalog.Entry{
		Library: "react", Version: 18, Function: "ReactDOM.render",
		Deprecated: true, Replacement: "createRoot",
		Migration: &catalog.MigrationExample{
			Before: "ReactDOM.render(<App />, el)",
			After:  "createRoot(el).render(<App />)",
		},
	}
	useState := catalog.Entry{Library: "react", Version: 18, Function: "useState"}
	cat, err := catalog.New(render, useState)
	require.NoError(t, err)
	return cat, render, useState
}

func project(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	return root
}

func options(root string) Options {
	return Options{
		Root:                   root,
		Library:                "react",
		From:                   17,
		To:                     18,
		Thresholds:             classifier.DefaultThresholds(),
		MaxConsecutiveFailures: 3,
	}
}

func TestScanner_RenderIsBreaking(t *testing.T) {
	cat, render, _ := reactCatalog(t)
	root := project(t, map[string]string{
		"src/index.js": strings.Repeat("\n", 9) +
			"ReactDOM.render(<App/>, document.getElementById('root'))\n",
	})
	collab := &fakeCollaborator{
		count: 2,
		hits:  map[string]knowledge.Hit{"ReactDOM.render": {ID: render.ID(), Score: 0.70}},
	}

	rep, err := NewScanner(cat, collab, nil).Run(context.Background(), options(root))
	require.NoError(t, err)

	assert.Equal(t, report.Counts{Breaking: 1}, rep.Counts)
	assert.Equal(t, 1, rep.TotalUniqueAPIs)
	require.Len(t, rep.APIs, 1)

	api := rep.APIs[0]
	assert.Equal(t, "ReactDOM.render", api.Name)
	assert.Equal(t, classifier.Breaking, api.Tier)
	require.NotNil(t, api.Score)
	assert.Equal(t, 0.70, *api.Score)
	require.Len(t, api.Occurrences, 1)
	assert.Equal(t, "src/index.js", api.Occurrences[0].File)
	assert.Equal(t, 10, api.Occurrences[0].Line)

	require.NotNil(t, api.Migration)
	assert.Equal(t, "createRoot", api.Migration.Replacement)
	assert.Equal(t, "react", rep.Library)
	assert.Equal(t, 17, rep.FromVersion)
	assert.Equal(t, 18, rep.ToVersion)
}

func TestScanner_MixedProject(t *testing.T) {
	cat, render, useState := reactCatalog(t)
	root := project(t, map[string]string{
		"src/App.jsx": `import React, { useState } from 'react';
export function App() {
  const [a] = useState(1);
  const [b] = useState(2);
  return <div>{a + b}</div>;
}
`,
		"src/index.js": `import Foo from 'react-dom';
Foo.render(<App />, root);
useBogus();
`,
	})
	collab := &fakeCollaborator{
		count: 2,
		hits: map[string]knowledge.Hit{
			"ReactDOM.render": {ID: render.ID(), Score: 0.85},
			"useState":        {ID: useState.ID(), Score: 0.99},
		},
	}

	rep, err := NewScanner(cat, collab, nil).Run(context.Background(), options(root))
	require.NoError(t, err)

	assert.Equal(t, report.Counts{Minor: 1, Compatible: 1}, rep.Counts)
	assert.Equal(t, 2, rep.FilesScanned)
	assert.Equal(t, int32(2), collab.queries.Load(), "one query per unique name")

	require.Len(t, rep.APIs, 2)
	assert.Equal(t, "ReactDOM.render", rep.APIs[0].Name)
	assert.Equal(t, classifier.Minor, rep.APIs[0].Tier)
	assert.Equal(t, "useState", rep.APIs[1].Name)
	assert.Len(t, rep.APIs[1].Occurrences, 2)
}

func TestScanner_UnknownWithoutCandidate(t *testing.T) {
	cat, _, _ := reactCatalog(t)
	root := project(t, map[string]string{"a.js": "useTransition(() => {})\n"})

	rep, err := NewScanner(cat, &fakeCollaborator{count: 2}, nil).Run(context.Background(), options(root))
	require.NoError(t, err)
	require.Len(t, rep.APIs, 1)
	assert.Equal(t, classifier.Unknown, rep.APIs[0].Tier)
	assert.Nil(t, rep.APIs[0].Score)
	assert.Empty(t, rep.Warnings)
}

func TestScanner_EmptyProject(t *testing.T) {
	cat, _, _ := reactCatalog(t)
	rep, err := NewScanner(cat, &fakeCollaborator{count: 2}, nil).Run(context.Background(), options(t.TempDir()))
	require.NoError(t, err)
	assert.Empty(t, rep.APIs)
	assert.Zero(t, rep.TotalUniqueAPIs)
	assert.Equal(t, report.Counts{}, rep.Counts)
}

func TestScanner_CatalogUnavailable(t *testing.T) {
	cat, _, _ := reactCatalog(t)
	root := project(t, map[string]string{"a.js": "ReactDOM.render(x, y)\n"})

	t.Run("Empty index", func(t *testing.T) {
		collab := &fakeCollaborator{}
		_, err := NewScanner(cat, collab, nil).Run(context.Background(), options(root))
		assert.ErrorIs(t, err, ErrCatalogUnavailable)
		assert.Zero(t, collab.queries.Load())
	})

	t.Run("Count fails", func(t *testing.T) {
		collab := &fakeCollaborator{countErr: errors.New("connection refused")}
		_, err := NewScanner(cat, collab, nil).Run(context.Background(), options(root))
		assert.ErrorIs(t, err, ErrCatalogUnavailable)
	})

	t.Run("Version missing from catalog", func(t *testing.T) {
		opts := options(root)
		opts.To = 19
		_, err := NewScanner(cat, &fakeCollaborator{count: 2}, nil).Run(context.Background(), opts)
		assert.ErrorIs(t, err, ErrCatalogUnavailable)
	})
}

func TestScanner_UnreachableCollaborator(t *testing.T) {
	cat, _, _ := reactCatalog(t)
	root := project(t, map[string]string{
		"a.js": "useState()\nuseEffect()\nuseMemo()\nuseRef()\nuseContext()\n",
	})
	collab := &fakeCollaborator{count: 2, queryErr: errors.New("dial tcp: connection refused")}

	opts := options(root)
	opts.QueryWorkers = 1
	rep, err := NewScanner(cat, collab, nil).Run(context.Background(), opts)
	require.NoError(t, err)

	assert.Equal(t, report.Counts{Unknown: 5}, rep.Counts)
	assert.Equal(t, int32(3), collab.queries.Load())

	codes := map[string]int{}
	for _, w := range rep.Warnings {
		codes[w.Code]++
	}
	assert.Equal(t, 3, codes[report.CodeQueryFailed])
	assert.Equal(t, 1, codes[report.CodeCollaboratorUnreachable])
}

func TestScanner_InvalidConfig(t *testing.T) {
	cat, _, _ := reactCatalog(t)
	root := t.TempDir()

	cases := map[string]func(o *Options){
		"inverted thresholds": func(o *Options) { o.Thresholds = classifier.Thresholds{Low: 0.95, High: 0.85} },
		"unsupported library": func(o *Options) { o.Library = "angular" },
		"zero version":        func(o *Options) { o.From = 0 },
		"missing root":        func(o *Options) { o.Root = filepath.Join(root, "nope") },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			collab := &fakeCollaborator{count: 2}
			opts := options(root)
			mutate(&opts)
			_, err := NewScanner(cat, collab, nil).Run(context.Background(), opts)
			assert.ErrorIs(t, err, config.ErrInvalidConfig)
			assert.Zero(t, collab.queries.Load())
		})
	}
}

func TestScanner_Progress(t *testing.T) {
	cat, _, _ := reactCatalog(t)
	root := project(t, map[string]string{"a.js": "useState()\n"})

	var stages []string
	s := NewScanner(cat, &fakeCollaborator{count: 2}, nil)
	s.OnProgress(func(stage string) { stages = append(stages, stage) })
	_, err := s.Run(context.Background(), options(root))
	require.NoError(t, err)
	assert.Equal(t, []string{"checking catalog", "extracting call sites", "matching 1 APIs"}, stages)
}

func TestUniqueNames(t *testing.T) {
	sites := []extractor.CallSite{{Name: "b"}, {Name: "a"}, {Name: "b"}, {Name: "c"}}
	assert.Equal(t, []string{"b", "a", "c"}, uniqueNames(sites))
	assert.Nil(t, uniqueNames(nil))
}
