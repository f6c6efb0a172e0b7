package index

import (
	"context"
	"fmt"
	"log/slog"

	"breakguard/internal/catalog"
	"breakguard/internal/knowledge"
)

// DefaultBatchSize is the number of entries embedded per request.
const DefaultBatchSize = 32

// VersionDeleter is implemented by stores that can drop one library
// version before it is rebuilt.
type VersionDeleter interface {
	DeleteVersion(ctx context.Context, filter knowledge.Filter) (int, error)
}

// Stats summarizes the indexing of one library version.
type Stats struct {
	Library string
	Version int
	Entries int
	Batches int
	Removed int
}

// Indexer embeds catalog entries and writes them to a vector store.
type Indexer struct {
	engine    *knowledge.Engine
	writer    knowledge.VectorWriter
	batchSize int
	logger    *slog.Logger
}

// NewIndexer creates a new indexer.
func NewIndexer(engine *knowledge.Engine, writer knowledge.VectorWriter, logger *slog.Logger) *Indexer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Indexer{
		engine:    engine,
		writer:    writer,
		batchSize: DefaultBatchSize,
		logger:    logger,
	}
}

// IndexVersion rebuilds the vectors of one library version. All entries are
// embedded before the store is touched, so a failing embedder leaves the
// previous vectors in place.
func (i *Indexer) IndexVersion(ctx context.Context, cat *catalog.Catalog, library string, version int) (Stats, error) {
	stats := Stats{Library: library, Version: version}
	entries := cat.Entries(library, version)
	if len(entries) == 0 {
		return stats, fmt.Errorf("no catalog entries for %s %d", library, version)
	}

	buf := &recordBuffer{}
	for start := 0; start < len(entries); start += i.batchSize {
		end := min(start+i.batchSize, len(entries))
		if err := i.engine.IndexEntries(ctx, entries[start:end], buf); err != nil {
			return stats, fmt.Errorf("embed %s %d batch %d: %w", library, version, stats.Batches+1, err)
		}
		stats.Batches++
		i.logger.Debug("embedded batch", "library", library, "version", version, "batch", stats.Batches, "size", end-start)
	}

	if d, ok := i.writer.(VersionDeleter); ok {
		removed, err := d.DeleteVersion(ctx, knowledge.Filter{Library: library, Version: version})
		if err != nil {
			return stats, fmt.Errorf("clear %s %d: %w", library, version, err)
		}
		stats.Removed = removed
	}

	if err := i.writer.Upsert(ctx, buf.records); err != nil {
		return stats, fmt.Errorf("store %s %d: %w", library, version, err)
	}
	stats.Entries = len(buf.records)
	i.logger.Info("indexed catalog version", "library", library, "version", version, "entries", stats.Entries)
	return stats, nil
}

// IndexCatalog indexes the given versions of library. With no versions,
// every version in the catalog is indexed; with an empty library, every
// library.
func (i *Indexer) IndexCatalog(ctx context.Context, cat *catalog.Catalog, library string, versions ...int) ([]Stats, error) {
	libraries := []string{library}
	if library == "" {
		libraries = cat.Libraries()
	}

	var all []Stats
	for _, lib := range libraries {
		vs := versions
		if len(vs) == 0 {
			vs = cat.Versions(lib)
		}
		if len(vs) == 0 {
			return all, fmt.Errorf("no catalog versions for %s", lib)
		}
		for _, v := range vs {
			stats, err := i.IndexVersion(ctx, cat, lib, v)
			if err != nil {
				return all, err
			}
			all = append(all, stats)
		}
	}
	return all, nil
}

type recordBuffer struct {
	records []knowledge.Record
}

func (b *recordBuffer) Upsert(_ context.Context, records []knowledge.Record) error {
	b.records = append(b.records, records...)
	return nil
}
