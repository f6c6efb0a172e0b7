package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"breakguard/internal/knowledge"
)

// Store combines query and write access to catalog vectors.
type Store interface {
	knowledge.VectorIndex
	knowledge.VectorWriter
	Close() error
}

// Options selects and configures a backend.
type Options struct {
	Backend string // sqlite, http or memory
	Path    string
	URL     string
	Index   string
	Token   string
	Timeout time.Duration
}

// Open returns the backend named by opts.Backend.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Backend)) {
	case "", "sqlite":
		if strings.TrimSpace(opts.Path) == "" {
			return nil, fmt.Errorf("sqlite index path is required")
		}
		return NewSQLiteStore(opts.Path)
	case "http":
		if strings.TrimSpace(opts.URL) == "" {
			return nil, fmt.Errorf("vector service url is required")
		}
		return NewHTTPStore(opts.URL, opts.Index, opts.Token, opts.Timeout), nil
	case "memory":
		return memoryStore{knowledge.NewMemoryIndex()}, nil
	default:
		return nil, fmt.Errorf("unsupported index backend: %s", opts.Backend)
	}
}

type memoryStore struct {
	*knowledge.MemoryIndex
}

func (memoryStore) Close() error { return nil }
