package incremental

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/repoindexer/repoindexer/internal/chunker"
	"github.com/repoindexer/repoindexer/internal/embedding"
	"github.com/repoindexer/repoindexer/internal/vectorstore"
)

func newTestPipeline(t *testing.T) (*Pipeline, string) {
	t.Helper()
	store, err := vectorstore.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.GetOrCreateCollection(context.Background(), "acme-widgets"))

	localPath := t.TempDir()
	p := &Pipeline{
		Chunker:  chunker.NewLineWindowChunker(200, 0),
		Embedder: embedding.NewMock(8),
		Store:    store,
	}
	return p, localPath
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func TestPipeline_Apply_Added(t *testing.T) {
	p, root := newTestPipeline(t)
	writeFile(t, root, "new.go", "package main\n")

	result := p.Apply(context.Background(), []FileChange{{Path: "new.go", Status: Added}}, Options{
		Repository: "acme-widgets", LocalPath: root, CollectionName: "acme-widgets",
	})

	assert.Equal(t, 1, result.Stats.FilesAdded)
	assert.Greater(t, result.Stats.ChunksUpserted, 0)
	assert.Empty(t, result.Errors)
}

func TestPipeline_Apply_Modified_DeletesThenReupserts(t *testing.T) {
	p, root := newTestPipeline(t)
	writeFile(t, root, "main.go", "package main\n\nfunc main() {}\n")

	// First add it.
	p.Apply(context.Background(), []FileChange{{Path: "main.go", Status: Added}}, Options{
		Repository: "acme-widgets", LocalPath: root, CollectionName: "acme-widgets",
	})

	writeFile(t, root, "main.go", "package main\n\nfunc main() { println(1) }\n")
	result := p.Apply(context.Background(), []FileChange{{Path: "main.go", Status: Modified}}, Options{
		Repository: "acme-widgets", LocalPath: root, CollectionName: "acme-widgets",
	})

	assert.Equal(t, 1, result.Stats.FilesModified)
	assert.Greater(t, result.Stats.ChunksDeleted, 0)
	assert.Greater(t, result.Stats.ChunksUpserted, 0)
}

func TestPipeline_Apply_Deleted(t *testing.T) {
	p, root := newTestPipeline(t)
	writeFile(t, root, "gone.go", "package main\n")

	p.Apply(context.Background(), []FileChange{{Path: "gone.go", Status: Added}}, Options{
		Repository: "acme-widgets", LocalPath: root, CollectionName: "acme-widgets",
	})

	result := p.Apply(context.Background(), []FileChange{{Path: "gone.go", Status: Deleted}}, Options{
		Repository: "acme-widgets", LocalPath: root, CollectionName: "acme-widgets",
	})

	assert.Equal(t, 1, result.Stats.FilesDeleted)
	assert.Greater(t, result.Stats.ChunksDeleted, 0)
	assert.Equal(t, 0, result.Stats.ChunksUpserted)
}

func TestPipeline_Apply_Renamed_RequiresPreviousPath(t *testing.T) {
	p, root := newTestPipeline(t)
	writeFile(t, root, "new.go", "package main\n")

	result := p.Apply(context.Background(), []FileChange{{Path: "new.go", Status: Renamed}}, Options{
		Repository: "acme-widgets", LocalPath: root, CollectionName: "acme-widgets",
	})

	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0].Error, "previousPath")
}

func TestPipeline_Apply_Renamed_DeletesOldUpsertsNew(t *testing.T) {
	p, root := newTestPipeline(t)
	writeFile(t, root, "old.go", "package main\n")

	p.Apply(context.Background(), []FileChange{{Path: "old.go", Status: Added}}, Options{
		Repository: "acme-widgets", LocalPath: root, CollectionName: "acme-widgets",
	})

	writeFile(t, root, "new.go", "package main\n")
	result := p.Apply(context.Background(), []FileChange{{Path: "new.go", Status: Renamed, PreviousPath: "old.go"}}, Options{
		Repository: "acme-widgets", LocalPath: root, CollectionName: "acme-widgets",
	})

	assert.Equal(t, 1, result.Stats.FilesModified)
	assert.Greater(t, result.Stats.ChunksDeleted, 0)
	assert.Greater(t, result.Stats.ChunksUpserted, 0)
}

func TestPipeline_Apply_FiltersExtension(t *testing.T) {
	p, root := newTestPipeline(t)
	writeFile(t, root, "image.png", "binary")

	result := p.Apply(context.Background(), []FileChange{{Path: "image.png", Status: Added}}, Options{
		Repository: "acme-widgets", LocalPath: root, CollectionName: "acme-widgets", IncludeExt: []string{".go"},
	})

	assert.Equal(t, 0, result.Stats.FilesAdded)
}

func TestPipeline_Apply_MissingFile_RecordsError(t *testing.T) {
	p, root := newTestPipeline(t)

	result := p.Apply(context.Background(), []FileChange{{Path: "missing.go", Status: Added}}, Options{
		Repository: "acme-widgets", LocalPath: root, CollectionName: "acme-widgets",
	})

	require.Len(t, result.Errors, 1)
	assert.Equal(t, "missing.go", result.Errors[0].Path)
}
