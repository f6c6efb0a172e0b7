package knowledge

import (
	"context"
	"sort"
	"sync"
)

// MemoryIndex is an in-process vector index. It backs the "memory" index
// backend, which embeds the catalog at startup instead of reading a
// prebuilt database.
type MemoryIndex struct {
	mu      sync.RWMutex
	records map[string]Record
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{records: make(map[string]Record)}
}

func (m *MemoryIndex) Upsert(ctx context.Context, records []Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range records {
		m.records[r.ID] = r
	}
	return nil
}

func (m *MemoryIndex) Count(ctx context.Context, filter Filter) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, r := range m.records {
		if r.Library == filter.Library && r.Version == filter.Version {
			n++
		}
	}
	return n, nil
}

func (m *MemoryIndex) Query(ctx context.Context, vector []float32, filter Filter, topK int) ([]Hit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	hits := make([]Hit, 0, len(m.records))
	for _, r := range m.records {
		if r.Library != filter.Library || r.Version != filter.Version {
			continue
		}
		hits = append(hits, Hit{ID: r.ID, Score: ClampScore(CosineSimilarity(vector, r.Vector))})
	}
	m.mu.RUnlock()
	return TopK(hits, topK), nil
}

// TopK sorts hits by descending score, ties by id, and keeps the first k.
func TopK(hits []Hit, k int) []Hit {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	if k > 0 && len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

// ClampScore maps cosine similarity onto [0, 1] by cutting off negatives.
func ClampScore(s float64) float64 {
	switch {
	case s < 0:
		return 0
	case s > 1:
		return 1
	default:
		return s
	}
}
