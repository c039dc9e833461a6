// Package vectorstore provides the collection-oriented write-path
// abstraction the ingestion and incremental-update pipelines persist
// chunks through. Query/search is explicitly out of scope (spec.md §1,
// "query-side caching layers" and vector-store internals are
// non-goals) — this package only owns the collection and document
// write operations the pipelines and the orchestrator call.
package vectorstore

import (
	"context"
	"regexp"
	"time"

	"github.com/repoindexer/repoindexer/internal/embedding"
)

// Document is a single chunk plus its embedding, shaped to the
// metadata-key compatibility surface named in spec.md §6.
type Document struct {
	ID             string
	Repository     string
	FilePath       string
	ChunkIndex     int
	TotalChunks    int
	ChunkStartLine int
	ChunkEndLine   int
	Content        string
	Vector         embedding.Vector
	FileExtension  string
	FileSizeBytes  int64
	ContentHash    string
	IndexedAt      time.Time
	FileModifiedAt time.Time
}

// Store is the vector store write path (spec.md §6, "Vector store").
type Store interface {
	// GetOrCreateCollection ensures a collection named name exists.
	GetOrCreateCollection(ctx context.Context, name string) error
	// DeleteCollection removes a collection. Deleting an absent
	// collection is not an error.
	DeleteCollection(ctx context.Context, name string) error
	// AddDocuments inserts docs into collection (ingestion path).
	AddDocuments(ctx context.Context, collection string, docs []Document) error
	// UpsertDocuments inserts-or-replaces docs by ID (update path).
	UpsertDocuments(ctx context.Context, collection string, docs []Document) error
	// DeleteDocumentsByFilePrefix deletes every document in collection
	// whose repository and file_path metadata match exactly, returning
	// the count removed.
	DeleteDocumentsByFilePrefix(ctx context.Context, collection, repository, filePath string) (int, error)
	// Close releases underlying resources.
	Close() error
}

var collectionNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_.-]{1,61}[a-z0-9]$`)

// ValidCollectionName reports whether name satisfies spec.md §6's
// collection-name rule: 3-63 chars, [a-z0-9_.-], starts/ends alnum.
func ValidCollectionName(name string) bool {
	return collectionNamePattern.MatchString(name)
}

