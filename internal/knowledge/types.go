package knowledge

import (
	"context"
	"errors"
)

// DefaultDimension is the output size of all-MiniLM-L6-v2.
const DefaultDimension = 384

var (
	// ErrDimensionMismatch is returned when a vector has the wrong length.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	// ErrEmbeddingCount is returned when an embedder yields a different
	// number of vectors than it was given texts.
	ErrEmbeddingCount = errors.New("embedding count mismatch")
	// ErrZeroVector is returned when an embedder yields an all-zero vector.
	ErrZeroVector = errors.New("embedding is a zero vector")
)

// Embedder defines the interface for converting text to vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// Filter restricts a vector query to one library version.
type Filter struct {
	Library string `json:"library"`
	Version int    `json:"version"`
}

// Hit is one nearest-neighbor candidate.
type Hit struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

// Record is a catalog entry vector with its filterable metadata.
type Record struct {
	ID         string
	Library    string
	Version    int
	Function   string
	Deprecated bool
	Vector     []float32
}

// VectorIndex answers nearest-neighbor queries. An empty result with a nil
// error means there is no candidate.
type VectorIndex interface {
	Query(ctx context.Context, vector []float32, filter Filter, topK int) ([]Hit, error)
	Count(ctx context.Context, filter Filter) (int, error)
}

// VectorWriter stores catalog vectors.
type VectorWriter interface {
	Upsert(ctx context.Context, records []Record) error
}
