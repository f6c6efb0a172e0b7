package knowledge

import (
	"context"
	"fmt"
	"math"
	"strings"

	"breakguard/internal/catalog"
)

// EntryText converts a catalog entry into the text that gets embedded.
// Parts are name, description and usage, joined by ". ".
func EntryText(e catalog.Entry) string {
	parts := make([]string, 0, 3)
	if s := strings.TrimSpace(e.Function); s != "" {
		parts = append(parts, s)
	}
	if s := strings.TrimRight(strings.TrimSpace(e.Description), "."); s != "" {
		parts = append(parts, s)
	}
	if s := strings.TrimSpace(e.Signature); s != "" {
		parts = append(parts, "Usage: "+s)
	}
	return strings.Join(parts, ". ")
}

// CallSiteText is the query text for an extracted API name.
func CallSiteText(name string) string {
	return name
}

// Engine pairs an embedder with a vector index.
type Engine struct {
	embedder Embedder
	index    VectorIndex
}

// NewEngine creates a new knowledge engine. index may be nil when the
// engine is only used for indexing.
func NewEngine(em Embedder, idx VectorIndex) *Engine {
	return &Engine{
		embedder: em,
		index:    idx,
	}
}

// Embedder returns the underlying embedder.
func (e *Engine) Embedder() Embedder {
	return e.embedder
}

// Index returns the underlying vector index.
func (e *Engine) Index() VectorIndex {
	return e.index
}

// Vectors embeds texts and checks every vector against the embedder's
// dimension. Failures are returned, never replaced by zero vectors.
func (e *Engine) Vectors(ctx context.Context, texts []string) ([][]float32, error) {
	if e.embedder == nil {
		return nil, fmt.Errorf("embedder not initialized")
	}
	vectors, err := e.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embeddings: %w", err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: got %d, expected %d", ErrEmbeddingCount, len(vectors), len(texts))
	}
	dim := e.embedder.Dimension()
	for i, v := range vectors {
		if dim > 0 && len(v) != dim {
			return nil, fmt.Errorf("%w: got %d, expected %d", ErrDimensionMismatch, len(v), dim)
		}
		if isZero(v) {
			return nil, fmt.Errorf("%w for %q", ErrZeroVector, texts[i])
		}
	}
	return vectors, nil
}

// SearchByText embeds query and returns its nearest catalog candidates.
func (e *Engine) SearchByText(ctx context.Context, query string, filter Filter, topK int) ([]Hit, error) {
	if e.index == nil {
		return nil, fmt.Errorf("vector index not initialized")
	}
	vectors, err := e.Vectors(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	return e.index.Query(ctx, vectors[0], filter, topK)
}

// Count reports how many vectors the index holds for filter.
func (e *Engine) Count(ctx context.Context, filter Filter) (int, error) {
	if e.index == nil {
		return 0, fmt.Errorf("vector index not initialized")
	}
	return e.index.Count(ctx, filter)
}

// IndexEntries embeds catalog entries and writes them to w.
func (e *Engine) IndexEntries(ctx context.Context, entries []catalog.Entry, w VectorWriter) error {
	if len(entries) == 0 {
		return nil
	}
	texts := make([]string, len(entries))
	for i, entry := range entries {
		texts[i] = EntryText(entry)
	}

	vectors, err := e.Vectors(ctx, texts)
	if err != nil {
		return err
	}

	records := make([]Record, len(entries))
	for i, entry := range entries {
		records[i] = Record{
			ID:         entry.ID(),
			Library:    entry.Library,
			Version:    entry.Version,
			Function:   entry.Function,
			Deprecated: entry.Deprecated,
			Vector:     vectors[i],
		}
	}
	return w.Upsert(ctx, records)
}

func isZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

// CosineSimilarity of two vectors; 0 when lengths differ or either is zero.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, magA, magB float64
	for i := 0; i < len(a); i++ {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}
