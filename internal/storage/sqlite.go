package storage

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"breakguard/internal/knowledge"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore keeps catalog vectors in a local SQLite file and answers
// queries with a brute-force cosine scan over the filtered rows.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates or opens a SQLite database, creating its parent
// directory when missing.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create index directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS api_vectors (
			id TEXT PRIMARY KEY,
			library TEXT NOT NULL,
			version INTEGER NOT NULL,
			function TEXT NOT NULL,
			deprecated INTEGER NOT NULL DEFAULT 0,
			dimension INTEGER NOT NULL,
			embedding BLOB NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_api_vectors_lib_ver ON api_vectors(library, version);`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

// Upsert stores records, replacing any with the same id.
func (s *SQLiteStore) Upsert(ctx context.Context, records []knowledge.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO api_vectors (id, library, version, function, deprecated, dimension, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			library=excluded.library,
			version=excluded.version,
			function=excluded.function,
			deprecated=excluded.deprecated,
			dimension=excluded.dimension,
			embedding=excluded.embedding
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range records {
		blob, err := encodeVector(r.Vector)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, r.ID, r.Library, r.Version, r.Function, r.Deprecated, len(r.Vector), blob); err != nil {
			return fmt.Errorf("failed to upsert %s: %w", r.Function, err)
		}
	}

	return tx.Commit()
}

// DeleteVersion removes every vector of one library version.
func (s *SQLiteStore) DeleteVersion(ctx context.Context, filter knowledge.Filter) (int, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM api_vectors WHERE library = ? AND version = ?", filter.Library, filter.Version)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// Count returns how many vectors match filter.
func (s *SQLiteStore) Count(ctx context.Context, filter knowledge.Filter) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM api_vectors WHERE library = ? AND version = ?",
		filter.Library, filter.Version).Scan(&n)
	return n, err
}

// Query returns the topK closest vectors within filter. Scores are cosine
// similarity clamped to [0, 1].
func (s *SQLiteStore) Query(ctx context.Context, vector []float32, filter knowledge.Filter, topK int) ([]knowledge.Hit, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, dimension, embedding FROM api_vectors WHERE library = ? AND version = ?",
		filter.Library, filter.Version)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []knowledge.Hit
	for rows.Next() {
		var id string
		var dim int
		var blob []byte
		if err := rows.Scan(&id, &dim, &blob); err != nil {
			return nil, err
		}
		if dim != len(vector) {
			return nil, fmt.Errorf("%w: index holds %d, query has %d", knowledge.ErrDimensionMismatch, dim, len(vector))
		}
		embedding, err := decodeVector(blob, dim)
		if err != nil {
			return nil, fmt.Errorf("corrupt vector %s: %w", id, err)
		}
		hits = append(hits, knowledge.Hit{
			ID:    id,
			Score: knowledge.ClampScore(knowledge.CosineSimilarity(vector, embedding)),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return knowledge.TopK(hits, topK), nil
}

func encodeVector(v []float32) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeVector(blob []byte, dim int) ([]float32, error) {
	if len(blob) != dim*4 {
		return nil, fmt.Errorf("blob has %d bytes, expected %d", len(blob), dim*4)
	}
	v := make([]float32, dim)
	if err := binary.Read(bytes.NewReader(blob), binary.LittleEndian, &v); err != nil {
		return nil, err
	}
	return v, nil
}
