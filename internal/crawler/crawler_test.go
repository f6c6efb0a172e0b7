package crawler

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"breakguard/internal/extractor"
	"breakguard/internal/report"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
}

func newCrawler(t *testing.T, opts Options) *Crawler {
	t.Helper()
	ext, err := extractor.NewExtractor("react")
	require.NoError(t, err)
	return NewCrawler(ext, opts, nil)
}

func TestCrawler_Discover(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"src/b.jsx":                   "",
		"src/a.js":                    "",
		"src/util.py":                 "",
		"src/nested/c.tsx":            "",
		"node_modules/react/index.js": "",
		".cache/x.js":                 "",
		"dist/bundle.js":              "",
		"coverage/lcov.js":            "",
		"generated/out.js":            "",
		"legacy/old.js":               "",
		"public/vendor/jquery.min.js": "",
		".gitignore":                  "generated/\n",
		"src/big.js":                  string(make([]byte, 2048)),
	})

	c := newCrawler(t, Options{Exclude: []string{"legacy/"}, MaxFileSize: 1024})
	files, diags, err := c.Discover(root)
	require.NoError(t, err)
	assert.Empty(t, diags)
	assert.Equal(t, []string{"src/a.js", "src/b.jsx", "src/nested/c.tsx"}, files)
}

func TestCrawler_DiscoverExtensions(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a.js": "", "b.ts": "", "c.mjs": ""})

	c := newCrawler(t, Options{Extensions: []string{"ts", ".MJS"}})
	files, _, err := c.Discover(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"b.ts", "c.mjs"}, files)
}

func TestCrawler_DiscoverMissingRoot(t *testing.T) {
	c := newCrawler(t, Options{})
	_, _, err := c.Discover(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestCrawler_ScanProject(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"src/index.js": `import ReactDOM from 'react-dom';
import App from './App';

ReactDOM.render(<App />, document.getElementById('root'));
`,
		"src/App.jsx": `import React, { useState } from 'react';

export default function App() {
  const [n, setN] = useState(0);
  return <div>{n}</div>;
}
`,
		"src/broken.js": `import ReactDOM from 'react-dom';
ReactDOM.hydrate(<App />, el
`,
		"i18n/app_de.ts": `<?xml version="1.0" encoding="utf-8"?>
<!DOCTYPE TS>
<TS version="2.1" language="de_DE">
<context><name>useState()</name></context>
</TS>
`,
	})

	c := newCrawler(t, Options{Workers: 2})
	res, err := c.ScanProject(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, 3, res.Files)
	assert.Equal(t, 1, res.Degraded)

	var got []string
	for _, s := range res.CallSites {
		got = append(got, s.Location()+" "+s.Name)
	}
	// file order, then line order within a file
	assert.Equal(t, []string{
		"src/App.jsx:4 useState",
		"src/broken.js:2 ReactDOM.hydrate",
		"src/index.js:4 ReactDOM.render",
	}, got)

	require.Len(t, res.Diagnostics, 1)
	assert.Equal(t, report.CodePatternFallback, res.Diagnostics[0].Code)
	assert.Equal(t, report.SeverityInfo, res.Diagnostics[0].Severity)
	assert.Equal(t, "src/broken.js", res.Diagnostics[0].Subject)
}

func TestCrawler_ScanEmptyProject(t *testing.T) {
	c := newCrawler(t, Options{})
	res, err := c.ScanProject(context.Background(), t.TempDir())
	require.NoError(t, err)
	assert.Zero(t, res.Files)
	assert.Empty(t, res.CallSites)
}

func TestCrawler_UnreadableFile(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permissions are not enforced for root")
	}
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a.js": "useState()", "b.js": "useEffect()"})
	require.NoError(t, os.Chmod(filepath.Join(root, "a.js"), 0o000))
	t.Cleanup(func() { _ = os.Chmod(filepath.Join(root, "a.js"), 0o644) })

	c := newCrawler(t, Options{})
	res, err := c.ScanProject(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Files)
	require.Len(t, res.CallSites, 1)
	assert.Equal(t, "useEffect", res.CallSites[0].Name)

	require.NotEmpty(t, res.Diagnostics)
	assert.Equal(t, report.CodeFileUnreadable, res.Diagnostics[0].Code)
	assert.Equal(t, "a.js", res.Diagnostics[0].Subject)
}

func TestCrawler_CanceledContext(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a.js": "useState()"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newCrawler(t, Options{}).ScanProject(ctx, root)
	assert.ErrorIs(t, err, context.Canceled)
}
