package index

import (
	"context"
	"errors"
	"hash/fnv"
	"path/filepath"
	"testing"

	"breakguard/internal/catalog"
	"breakguard/internal/knowledge"
	"breakguard/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type hashEmbedder struct {
	calls int
	fail  error
}

func (h *hashEmbedder) Dimension() int { return 8 }

func (h *hashEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	h.calls++
	if h.fail != nil {
		return nil, h.fail
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		f := fnv.New64a()
		_, _ = f.Write([]byte(text))
		sum := f.Sum64()
		v := make([]float32, 8)
		for j := range v {
			v[j] = float32((sum>>(8*j))&0xff) + 1
		}
		out[i] = v
	}
	return out, nil
}

func testCatalog(t *testing.T, n int) *catalog.Catalog {
	t.Helper()
	var entries []catalog.Entry
	for i := 0; i < n; i++ {
		entries = append(entries, catalog.Entry{
			Library:     "react",
			Version:     18,
			Function:    "api" + string(rune('A'+i%26)) + string(rune('a'+i/26)),
			Description: "Generated entry",
		})
	}
	entries = append(entries, catalog.Entry{Library: "react", Version: 17, Function: "ReactDOM.render"})
	cat, err := catalog.New(entries...)
	require.NoError(t, err)
	return cat
}

func TestIndexer_IndexVersion(t *testing.T) {
	ctx := context.Background()
	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	defer store.Close()

	em := &hashEmbedder{}
	idx := NewIndexer(knowledge.NewEngine(em, store), store, nil)
	cat := testCatalog(t, 70)

	stats, err := idx.IndexVersion(ctx, cat, "react", 18)
	require.NoError(t, err)
	assert.Equal(t, 70, stats.Entries)
	assert.Equal(t, 3, stats.Batches)
	assert.Equal(t, 3, em.calls)

	n, err := store.Count(ctx, knowledge.Filter{Library: "react", Version: 18})
	require.NoError(t, err)
	assert.Equal(t, 70, n)

	t.Run("Rebuild replaces the version", func(t *testing.T) {
		stats, err := idx.IndexVersion(ctx, cat, "react", 18)
		require.NoError(t, err)
		assert.Equal(t, 70, stats.Removed)

		n, err := store.Count(ctx, knowledge.Filter{Library: "react", Version: 18})
		require.NoError(t, err)
		assert.Equal(t, 70, n)
	})

	t.Run("Unknown version", func(t *testing.T) {
		_, err := idx.IndexVersion(ctx, cat, "react", 19)
		assert.Error(t, err)
	})
}

func TestIndexer_EmbedFailureKeepsStore(t *testing.T) {
	ctx := context.Background()
	mem := knowledge.NewMemoryIndex()
	cat := testCatalog(t, 3)

	good := NewIndexer(knowledge.NewEngine(&hashEmbedder{}, mem), mem, nil)
	_, err := good.IndexVersion(ctx, cat, "react", 18)
	require.NoError(t, err)

	bad := NewIndexer(knowledge.NewEngine(&hashEmbedder{fail: errors.New("model not loaded")}, mem), mem, nil)
	_, err = bad.IndexVersion(ctx, cat, "react", 18)
	require.Error(t, err)

	n, err := mem.Count(ctx, knowledge.Filter{Library: "react", Version: 18})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestIndexer_IndexCatalog(t *testing.T) {
	ctx := context.Background()
	mem := knowledge.NewMemoryIndex()
	idx := NewIndexer(knowledge.NewEngine(&hashEmbedder{}, mem), mem, nil)
	cat := testCatalog(t, 2)

	all, err := idx.IndexCatalog(ctx, cat, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, 17, all[0].Version)
	assert.Equal(t, 18, all[1].Version)

	only, err := idx.IndexCatalog(ctx, cat, "react", 17)
	require.NoError(t, err)
	require.Len(t, only, 1)
	assert.Equal(t, 1, only[0].Entries)

	_, err = idx.IndexCatalog(ctx, cat, "vue")
	assert.Error(t, err)
}
