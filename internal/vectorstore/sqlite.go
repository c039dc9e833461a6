package vectorstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // pure Go SQLite driver
)

// SQLiteStore persists collections as tables in a single SQLite
// database file, one table per collection. It implements only the
// write path the pipelines need (spec.md §6); there is no query
// surface here by design.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if absent) a SQLite database at path.
// Use ":memory:" for an ephemeral store in tests.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: open database: %w", err)
	}
	// A single connection avoids separate in-memory databases per
	// pooled connection when path is ":memory:".
	db.SetMaxOpenConns(1)
	return &SQLiteStore{db: db}, nil
}

func tableName(collection string) string {
	return "col_" + strings.ReplaceAll(collection, "-", "_")
}

// GetOrCreateCollection implements Store.
func (s *SQLiteStore) GetOrCreateCollection(ctx context.Context, name string) error {
	if !ValidCollectionName(name) {
		return fmt.Errorf("vectorstore: invalid collection name %q", name)
	}
	schema := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id TEXT PRIMARY KEY,
		repository TEXT NOT NULL,
		file_path TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		total_chunks INTEGER NOT NULL,
		chunk_start_line INTEGER NOT NULL,
		chunk_end_line INTEGER NOT NULL,
		content TEXT NOT NULL,
		vector TEXT NOT NULL,
		file_extension TEXT,
		file_size_bytes INTEGER,
		content_hash TEXT,
		indexed_at TEXT,
		file_modified_at TEXT
	)`, tableName(name))
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("vectorstore: create collection %q: %w", name, err)
	}
	idx := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_file_path ON %s(repository, file_path)`,
		tableName(name), tableName(name))
	_, err := s.db.ExecContext(ctx, idx)
	return err
}

// DeleteCollection implements Store.
func (s *SQLiteStore) DeleteCollection(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", tableName(name)))
	if err != nil {
		return fmt.Errorf("vectorstore: delete collection %q: %w", name, err)
	}
	return nil
}

func (s *SQLiteStore) writeDocuments(ctx context.Context, collection string, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	stmt := fmt.Sprintf(`INSERT INTO %s
		(id, repository, file_path, chunk_index, total_chunks, chunk_start_line, chunk_end_line,
		 content, vector, file_extension, file_size_bytes, content_hash, indexed_at, file_modified_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
			repository=excluded.repository, file_path=excluded.file_path,
			chunk_index=excluded.chunk_index, total_chunks=excluded.total_chunks,
			chunk_start_line=excluded.chunk_start_line, chunk_end_line=excluded.chunk_end_line,
			content=excluded.content, vector=excluded.vector, file_extension=excluded.file_extension,
			file_size_bytes=excluded.file_size_bytes, content_hash=excluded.content_hash,
			indexed_at=excluded.indexed_at, file_modified_at=excluded.file_modified_at`,
		tableName(collection))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("vectorstore: begin tx: %w", err)
	}
	defer tx.Rollback()

	prepared, err := tx.PrepareContext(ctx, stmt)
	if err != nil {
		return fmt.Errorf("vectorstore: prepare insert: %w", err)
	}
	defer prepared.Close()

	for _, d := range docs {
		vectorJSON, err := json.Marshal(d.Vector)
		if err != nil {
			return fmt.Errorf("vectorstore: marshal vector for %s: %w", d.ID, err)
		}
		indexedAt := d.IndexedAt
		if indexedAt.IsZero() {
			indexedAt = time.Now()
		}
		_, err = prepared.ExecContext(ctx, d.ID, d.Repository, d.FilePath, d.ChunkIndex, d.TotalChunks,
			d.ChunkStartLine, d.ChunkEndLine, d.Content, string(vectorJSON), d.FileExtension,
			d.FileSizeBytes, d.ContentHash, indexedAt.UTC().Format(time.RFC3339),
			d.FileModifiedAt.UTC().Format(time.RFC3339))
		if err != nil {
			return fmt.Errorf("vectorstore: insert document %s: %w", d.ID, err)
		}
	}
	return tx.Commit()
}

// AddDocuments implements Store.
func (s *SQLiteStore) AddDocuments(ctx context.Context, collection string, docs []Document) error {
	return s.writeDocuments(ctx, collection, docs)
}

// UpsertDocuments implements Store.
func (s *SQLiteStore) UpsertDocuments(ctx context.Context, collection string, docs []Document) error {
	return s.writeDocuments(ctx, collection, docs)
}

// DeleteDocumentsByFilePrefix implements Store.
func (s *SQLiteStore) DeleteDocumentsByFilePrefix(ctx context.Context, collection, repository, filePath string) (int, error) {
	result, err := s.db.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE repository = ? AND file_path = ?", tableName(collection)),
		repository, filePath)
	if err != nil {
		return 0, fmt.Errorf("vectorstore: delete by file path: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("vectorstore: rows affected: %w", err)
	}
	return int(affected), nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error { return s.db.Close() }
