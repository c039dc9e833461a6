package coordinator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/repoindexer/repoindexer/internal/catalog"
	"github.com/repoindexer/repoindexer/internal/chunker"
	"github.com/repoindexer/repoindexer/internal/embedding"
	"github.com/repoindexer/repoindexer/internal/forge"
	"github.com/repoindexer/repoindexer/internal/incremental"
	"github.com/repoindexer/repoindexer/internal/vectorstore"
)

type mockForge struct {
	GetHeadCommitFunc  func(ctx context.Context, owner, repo, branch, correlationID string) (forge.Commit, error)
	CompareCommitsFunc func(ctx context.Context, owner, repo, base, head, correlationID string) (forge.Comparison, error)
}

func (m *mockForge) GetHeadCommit(ctx context.Context, owner, repo, branch, correlationID string) (forge.Commit, error) {
	return m.GetHeadCommitFunc(ctx, owner, repo, branch, correlationID)
}

func (m *mockForge) CompareCommits(ctx context.Context, owner, repo, base, head, correlationID string) (forge.Comparison, error) {
	return m.CompareCommitsFunc(ctx, owner, repo, base, head, correlationID)
}

type mockPuller struct {
	err error
}

func (m *mockPuller) Pull(ctx context.Context, localPath, branch string) error { return m.err }

func newTestCoordinator(t *testing.T, f *mockForge, puller *mockPuller) (*Coordinator, *catalog.Store, string) {
	t.Helper()
	dir := t.TempDir()
	store := catalog.NewStore(filepath.Join(dir, "catalog.json"))

	vstore, err := vectorstore.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = vstore.Close() })
	require.NoError(t, vstore.GetOrCreateCollection(context.Background(), "acme-widgets"))

	pipeline := &incremental.Pipeline{
		Chunker:  chunker.NewLineWindowChunker(200, 0),
		Embedder: embedding.NewMock(8),
		Store:    vstore,
	}

	return &Coordinator{
		Catalog:  store,
		Forge:    f,
		Puller:   puller,
		Pipeline: pipeline,
	}, store, dir
}

func seedRecord(t *testing.T, store *catalog.Store, localPath string) {
	t.Helper()
	require.NoError(t, store.Create(catalog.Record{
		Name:                 "acme-widgets",
		URL:                  "https://github.com/acme/widgets",
		Branch:               "main",
		LocalPath:            localPath,
		CollectionName:       "acme-widgets",
		LastIndexedCommitSha: "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		Status:               catalog.StatusReady,
	}, false))
}

func TestCoordinator_Update_NoChanges(t *testing.T) {
	f := &mockForge{
		GetHeadCommitFunc: func(ctx context.Context, owner, repo, branch, correlationID string) (forge.Commit, error) {
			return forge.Commit{SHA: "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"}, nil
		},
	}
	c, store, dir := newTestCoordinator(t, f, &mockPuller{})
	seedRecord(t, store, dir)

	result, err := c.Update(context.Background(), "acme-widgets")
	require.NoError(t, err)
	assert.Equal(t, StatusNoChanges, result.Status)

	rec, err := store.Get("acme-widgets")
	require.NoError(t, err)
	assert.False(t, rec.UpdateInProgress)
}

func TestCoordinator_Update_AppliesChanges(t *testing.T) {
	localPath := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(localPath, "new.go"), []byte("package main\n"), 0o644))

	f := &mockForge{
		GetHeadCommitFunc: func(ctx context.Context, owner, repo, branch, correlationID string) (forge.Commit, error) {
			return forge.Commit{SHA: "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb", Message: "add feature"}, nil
		},
		CompareCommitsFunc: func(ctx context.Context, owner, repo, base, head, correlationID string) (forge.Comparison, error) {
			return forge.Comparison{
				BaseSHA: base, HeadSHA: head,
				Files: []forge.FileDiff{{Path: "new.go", Status: forge.FileAdded}},
			}, nil
		},
	}
	c, store, _ := newTestCoordinator(t, f, &mockPuller{})
	require.NoError(t, store.Create(catalog.Record{
		Name: "acme-widgets", URL: "https://github.com/acme/widgets", Branch: "main",
		LocalPath: localPath, CollectionName: "acme-widgets",
		LastIndexedCommitSha: "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		Status:               catalog.StatusReady,
	}, false))

	result, err := c.Update(context.Background(), "acme-widgets")
	require.NoError(t, err)
	assert.Equal(t, StatusUpdated, result.Status)
	assert.Equal(t, 1, result.Stats.FilesAdded)

	rec, err := store.Get("acme-widgets")
	require.NoError(t, err)
	assert.False(t, rec.UpdateInProgress)
	assert.Equal(t, "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb", rec.LastIndexedCommitSha)
	require.Len(t, rec.UpdateHistory, 1)
	assert.Equal(t, catalog.UpdateSuccess, rec.UpdateHistory[0].Status)
}

func TestCoordinator_Update_MissingCommitSha(t *testing.T) {
	c, store, dir := newTestCoordinator(t, &mockForge{}, &mockPuller{})
	require.NoError(t, store.Create(catalog.Record{Name: "acme-widgets", URL: "https://github.com/acme/widgets", LocalPath: dir}, false))

	_, err := c.Update(context.Background(), "acme-widgets")
	assert.ErrorIs(t, err, ErrMissingCommitSha)
}

func TestCoordinator_Update_NotFound(t *testing.T) {
	c, _, _ := newTestCoordinator(t, &mockForge{}, &mockPuller{})
	_, err := c.Update(context.Background(), "never-created")
	assert.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestCoordinator_Update_ConcurrentUpdate(t *testing.T) {
	c, store, dir := newTestCoordinator(t, &mockForge{}, &mockPuller{})
	seedRecord(t, store, dir)

	now := time.Now()
	_, err := store.Mutate("acme-widgets", func(r *catalog.Record) error {
		r.UpdateInProgress = true
		r.UpdateStartedAt = &now
		return nil
	})
	require.NoError(t, err)

	_, err = c.Update(context.Background(), "acme-widgets")
	var concErr *ConcurrentUpdateError
	require.ErrorAs(t, err, &concErr)
}

// TestCoordinator_Update_ConcurrentUpdate_Races actually races N
// concurrent Update calls for the same repository, rather than
// pre-setting the flag sequentially, to exercise the check-and-set
// atomicity inside Store.Mutate directly.
func TestCoordinator_Update_ConcurrentUpdate_Races(t *testing.T) {
	f := &mockForge{
		GetHeadCommitFunc: func(ctx context.Context, owner, repo, branch, correlationID string) (forge.Commit, error) {
			return forge.Commit{SHA: "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"}, nil
		},
	}
	c, store, dir := newTestCoordinator(t, f, &mockPuller{})
	seedRecord(t, store, dir)

	const racers = 10
	var wg sync.WaitGroup
	var successes, conflicts int64
	start := make(chan struct{})

	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := c.Update(context.Background(), "acme-widgets")
			switch {
			case err == nil:
				atomic.AddInt64(&successes, 1)
			case errors.As(err, new(*ConcurrentUpdateError)):
				atomic.AddInt64(&conflicts, 1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.EqualValues(t, 1, successes, "exactly one racer should win the updateInProgress lease")
	assert.EqualValues(t, racers-1, conflicts, "every other racer should observe ConcurrentUpdateError")
}

func TestCoordinator_Update_ForcePushDetected(t *testing.T) {
	f := &mockForge{
		GetHeadCommitFunc: func(ctx context.Context, owner, repo, branch, correlationID string) (forge.Commit, error) {
			return forge.Commit{SHA: "cccccccccccccccccccccccccccccccccccccccc"}, nil
		},
		CompareCommitsFunc: func(ctx context.Context, owner, repo, base, head, correlationID string) (forge.Comparison, error) {
			return forge.Comparison{}, forge.ErrNotFound
		},
	}
	c, store, dir := newTestCoordinator(t, f, &mockPuller{})
	seedRecord(t, store, dir)

	_, err := c.Update(context.Background(), "acme-widgets")
	assert.ErrorIs(t, err, ErrForcePushDetected)

	rec, err := store.Get("acme-widgets")
	require.NoError(t, err)
	assert.False(t, rec.UpdateInProgress)
}

func TestCoordinator_Update_ChangeThresholdExceeded(t *testing.T) {
	files := make([]forge.FileDiff, 501)
	for i := range files {
		files[i] = forge.FileDiff{Path: "f.go", Status: forge.FileModified}
	}
	f := &mockForge{
		GetHeadCommitFunc: func(ctx context.Context, owner, repo, branch, correlationID string) (forge.Commit, error) {
			return forge.Commit{SHA: "dddddddddddddddddddddddddddddddddddddddd"}, nil
		},
		CompareCommitsFunc: func(ctx context.Context, owner, repo, base, head, correlationID string) (forge.Comparison, error) {
			return forge.Comparison{Files: files}, nil
		},
	}
	c, store, dir := newTestCoordinator(t, f, &mockPuller{})
	seedRecord(t, store, dir)

	_, err := c.Update(context.Background(), "acme-widgets")
	assert.ErrorIs(t, err, ErrChangeThresholdExceeded)
}

func TestCoordinator_Update_GitPullFailure(t *testing.T) {
	f := &mockForge{
		GetHeadCommitFunc: func(ctx context.Context, owner, repo, branch, correlationID string) (forge.Commit, error) {
			return forge.Commit{SHA: "eeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee"}, nil
		},
		CompareCommitsFunc: func(ctx context.Context, owner, repo, base, head, correlationID string) (forge.Comparison, error) {
			return forge.Comparison{Files: []forge.FileDiff{{Path: "a.go", Status: forge.FileModified}}}, nil
		},
	}
	c, store, dir := newTestCoordinator(t, f, &mockPuller{err: errors.New("disk full")})
	seedRecord(t, store, dir)

	_, err := c.Update(context.Background(), "acme-widgets")
	assert.ErrorIs(t, err, ErrGitPull)

	rec, err := store.Get("acme-widgets")
	require.NoError(t, err)
	assert.False(t, rec.UpdateInProgress)
}
