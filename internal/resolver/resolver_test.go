package resolver

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"breakguard/internal/catalog"
	"breakguard/internal/knowledge"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSearcher struct {
	hits    map[string][]knowledge.Hit
	errs    map[string]error
	failAll error

	mu      sync.Mutex
	filters []knowledge.Filter
	calls   atomic.Int32
}

func (f *fakeSearcher) SearchByText(ctx context.Context, query string, filter knowledge.Filter, topK int) ([]knowledge.Hit, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.filters = append(f.filters, filter)
	f.mu.Unlock()
	if f.failAll != nil {
		return nil, f.failAll
	}
	if err := f.errs[query]; err != nil {
		return nil, err
	}
	return f.hits[query], nil
}

func testCatalog(t *testing.T) (*catalog.Catalog, catalog.Entry) {
	t.Helper()
	root := catalog.Entry{Library: "react", Version: 18, Function: "createRoot"}
	cat, err := catalog.New(root)
	require.NoError(t, err)
	return cat, root
}

func TestResolver_Resolve(t *testing.T) {
	cat, root := testCatalog(t)
	ctx := context.Background()

	s := &fakeSearcher{
		hits: map[string][]knowledge.Hit{
			"ReactDOM.render": {{ID: root.ID(), Score: 0.7}},
			"weird":           {{ID: root.ID(), Score: math.NaN()}},
			"stale":           {{ID: "gone", Score: 0.9}},
		},
		errs: map[string]error{"boom": errors.New("connection refused")},
	}
	r := New(s, cat, Options{Library: "react", Version: 18}, nil)

	t.Run("Best match", func(t *testing.T) {
		res := r.Resolve(ctx, "ReactDOM.render")
		require.NoError(t, res.Err)
		require.NotNil(t, res.Entry)
		require.NotNil(t, res.Score)
		assert.Equal(t, "createRoot", res.Entry.Function)
		assert.Equal(t, 0.7, *res.Score)
	})

	t.Run("No candidate is not an error", func(t *testing.T) {
		res := r.Resolve(ctx, "useNothing")
		assert.NoError(t, res.Err)
		assert.Nil(t, res.Entry)
		assert.Nil(t, res.Score)
	})

	t.Run("Query failure", func(t *testing.T) {
		res := r.Resolve(ctx, "boom")
		assert.Error(t, res.Err)
		assert.Nil(t, res.Score)
	})

	t.Run("Out of range score", func(t *testing.T) {
		res := r.Resolve(ctx, "weird")
		assert.ErrorIs(t, res.Err, ErrScoreOutOfRange)
	})

	t.Run("Stale index entry", func(t *testing.T) {
		res := r.Resolve(ctx, "stale")
		assert.ErrorIs(t, res.Err, ErrUnknownEntry)
	})

	for _, f := range s.filters {
		assert.Equal(t, knowledge.Filter{Library: "react", Version: 18}, f)
	}
}

func TestResolver_ResolveAll(t *testing.T) {
	cat, root := testCatalog(t)
	ctx := context.Background()

	t.Run("Results align with input order", func(t *testing.T) {
		s := &fakeSearcher{
			hits: map[string][]knowledge.Hit{
				"a": {{ID: root.ID(), Score: 0.99}},
				"c": {{ID: root.ID(), Score: 0.5}},
			},
			errs: map[string]error{"b": errors.New("timeout")},
		}
		r := New(s, cat, Options{Library: "react", Version: 18, Workers: 3, MaxConsecutiveFailures: 3}, nil)

		results := r.ResolveAll(ctx, []string{"a", "b", "c", "d"})
		require.Len(t, results, 4)
		assert.Equal(t, "a", results[0].Name)
		assert.Equal(t, 0.99, *results[0].Score)
		assert.Error(t, results[1].Err)
		assert.Equal(t, 0.5, *results[2].Score)
		assert.Nil(t, results[3].Entry)
		assert.NoError(t, results[3].Err)
	})

	t.Run("Circuit stops querying an unreachable collaborator", func(t *testing.T) {
		s := &fakeSearcher{failAll: errors.New("dial tcp: connection refused")}
		r := New(s, cat, Options{Library: "react", Version: 18, Workers: 1, MaxConsecutiveFailures: 2}, nil)

		names := []string{"a", "b", "c", "d", "e"}
		results := r.ResolveAll(ctx, names)

		assert.Equal(t, int32(2), s.calls.Load())
		for i, res := range results {
			require.Error(t, res.Err, names[i])
			assert.Nil(t, res.Score)
		}
		assert.ErrorIs(t, results[4].Err, ErrUnreachable)
	})

	t.Run("Canceled context", func(t *testing.T) {
		s := &fakeSearcher{}
		r := New(s, cat, Options{Library: "react", Version: 18}, nil)
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		results := r.ResolveAll(cctx, []string{"a"})
		assert.ErrorIs(t, results[0].Err, context.Canceled)
		assert.Equal(t, int32(0), s.calls.Load())
	})
}

func TestCircuit(t *testing.T) {
	c := &circuit{limit: 2}
	assert.False(t, c.record(true))
	assert.False(t, c.record(false))
	assert.False(t, c.record(true))
	assert.True(t, c.record(true))
	assert.False(t, c.allow())
	assert.False(t, c.record(true))
}

// slowSearcher blocks on one query until its context ends and answers the
// rest immediately.
type slowSearcher struct {
	slow string
	hit  knowledge.Hit
}

func (s *slowSearcher) SearchByText(ctx context.Context, query string, filter knowledge.Filter, topK int) ([]knowledge.Hit, error) {
	if query == s.slow {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return []knowledge.Hit{s.hit}, nil
}

func TestResolver_QueryTimeoutDegradesOneName(t *testing.T) {
	cat, root := testCatalog(t)
	s := &slowSearcher{slow: "useSyncExternalStore", hit: knowledge.Hit{ID: root.ID(), Score: 0.9}}
	r := New(s, cat, Options{
		Library:                "react",
		Version:                18,
		Workers:                2,
		QueryTimeout:           20 * time.Millisecond,
		MaxConsecutiveFailures: 3,
	}, nil)

	results := r.ResolveAll(context.Background(), []string{"useState", "useSyncExternalStore", "createRoot"})
	require.Len(t, results, 3)

	assert.ErrorIs(t, results[1].Err, context.DeadlineExceeded)
	assert.Nil(t, results[1].Score)

	for _, i := range []int{0, 2} {
		require.NoError(t, results[i].Err, results[i].Name)
		require.NotNil(t, results[i].Score)
		assert.Equal(t, 0.9, *results[i].Score)
	}
}
