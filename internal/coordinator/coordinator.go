// Package coordinator drives the Incremental Update Coordinator state
// machine: checking a repository's remote HEAD, comparing commits,
// pulling the local clone, and applying the resulting file changes,
// always clearing the durable updateInProgress lease on the way out.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/repoindexer/repoindexer/internal/catalog"
	"github.com/repoindexer/repoindexer/internal/forge"
	"github.com/repoindexer/repoindexer/internal/gitrepo"
	"github.com/repoindexer/repoindexer/internal/incremental"
	"github.com/repoindexer/repoindexer/internal/observability"
)

// Status is the outcome of one coordinator invocation.
type Status string

const (
	StatusNoChanges Status = "no_changes"
	StatusUpdated   Status = "updated"
	StatusFailed    Status = "failed"
)

// Distinguished pre-flight errors (spec.md §4.4/§7). These are always
// thrown to the caller rather than collapsed into a Result.
var (
	ErrMissingCommitSha     = errors.New("coordinator: record has no lastIndexedCommitSha")
	ErrConcurrentUpdate     = errors.New("coordinator: update already in progress for this repository")
	ErrForcePushDetected    = errors.New("coordinator: base commit not found upstream, force-push suspected")
	ErrChangeThresholdExceeded = errors.New("coordinator: too many changed files for an incremental update")
	ErrGitPull              = errors.New("coordinator: local pull failed")
)

// Result is the outcome of Coordinator.Update.
type Result struct {
	Status        Status
	CommitSha     string
	CommitMessage string
	Stats         incremental.Stats
	Errors        []incremental.FileError
	DurationMs    int64
}

// ConcurrentUpdateError carries the in-flight update's start time.
type ConcurrentUpdateError struct {
	StartedAt time.Time
}

func (e *ConcurrentUpdateError) Error() string {
	return fmt.Sprintf("%s (started %s)", ErrConcurrentUpdate, e.StartedAt.Format(time.RFC3339))
}
func (e *ConcurrentUpdateError) Unwrap() error { return ErrConcurrentUpdate }

// Coordinator runs the state machine for one repository at a time.
type Coordinator struct {
	Catalog             *catalog.Store
	Forge                forge.Client
	Puller               gitrepo.Puller
	Pipeline             *incremental.Pipeline
	Logger               *observability.Logger
	Metrics              *observability.MetricsCollector
	ChangeFileThreshold  int
	UpdateHistoryLimit   int
}

func (c *Coordinator) threshold() int {
	if c.ChangeFileThreshold > 0 {
		return c.ChangeFileThreshold
	}
	return 500
}

func (c *Coordinator) historyLimit() int {
	if c.UpdateHistoryLimit > 0 {
		return c.UpdateHistoryLimit
	}
	return 10
}

// Update runs one incremental update for the named repository.
func (c *Coordinator) Update(ctx context.Context, name string) (Result, error) {
	start := time.Now()
	correlationID := uuid.NewString()
	ctx = context.WithValue(ctx, observability.CorrelationIDKey, correlationID)
	ctx = context.WithValue(ctx, observability.RepositoryKey, name)

	// The has-a-commit-sha check, the updateInProgress check, and the
	// updateInProgress=true set all happen inside one Mutate callback:
	// Store.Mutate holds its mutex for the whole read-modify-write, so
	// two concurrent Update calls for the same repository can't both
	// observe updateInProgress=false before either sets it.
	now := catalog.Now()
	rec, err := c.Catalog.Mutate(name, func(r *catalog.Record) error {
		if r.LastIndexedCommitSha == "" {
			return ErrMissingCommitSha
		}
		if r.UpdateInProgress {
			return &ConcurrentUpdateError{StartedAt: valueOr(r.UpdateStartedAt)}
		}
		r.UpdateInProgress = true
		r.UpdateStartedAt = &now
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	result, finalizeErr := c.run(ctx, name, rec, correlationID, start)
	if finalizeErr != nil {
		// Pre-flight / fatal error: still clear the lease before
		// returning, per spec.md §4.4's "every terminal branch...
		// runs a finally step".
		_, _ = c.Catalog.Mutate(name, func(r *catalog.Record) error {
			r.UpdateInProgress = false
			r.UpdateStartedAt = nil
			return nil
		})
		return Result{}, finalizeErr
	}
	return result, nil
}

func valueOr(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

func (c *Coordinator) run(ctx context.Context, name string, rec catalog.Record, correlationID string, start time.Time) (Result, error) {
	repoInfo, err := forge.ParseURL(rec.URL)
	if err != nil {
		return Result{}, err
	}

	head, err := c.Forge.GetHeadCommit(ctx, repoInfo.Owner, repoInfo.Name, rec.Branch, correlationID)
	if err != nil {
		return Result{}, fmt.Errorf("coordinator: get head commit: %w", err)
	}

	if head.SHA == rec.LastIndexedCommitSha {
		c.finalizeNoChanges(name)
		if c.Metrics != nil {
			c.Metrics.RecordCoordinatorOutcome(string(StatusNoChanges), time.Since(start))
		}
		return Result{Status: StatusNoChanges, CommitSha: head.SHA, DurationMs: time.Since(start).Milliseconds()}, nil
	}

	comparison, err := c.Forge.CompareCommits(ctx, repoInfo.Owner, repoInfo.Name, rec.LastIndexedCommitSha, head.SHA, correlationID)
	if err != nil {
		if errors.Is(err, forge.ErrNotFound) {
			return Result{}, ErrForcePushDetected
		}
		return Result{}, fmt.Errorf("coordinator: compare commits: %w", err)
	}

	if len(comparison.Files) > c.threshold() {
		return Result{}, ErrChangeThresholdExceeded
	}

	if err := c.Puller.Pull(ctx, rec.LocalPath, rec.Branch); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrGitPull, err)
	}

	changes := make([]incremental.FileChange, len(comparison.Files))
	for i, f := range comparison.Files {
		changes[i] = incremental.FileChange{
			Path:         f.Path,
			Status:       incremental.ChangeStatus(f.Status),
			PreviousPath: f.PreviousPath,
		}
	}

	applyResult := c.Pipeline.Apply(ctx, changes, incremental.Options{
		Repository:      name,
		LocalPath:       rec.LocalPath,
		CollectionName:  rec.CollectionName,
		IncludeExt:      rec.IncludeExtensions,
		ExcludePatterns: rec.ExcludePatterns,
	})

	durationMs := time.Since(start).Milliseconds()
	updateStatus := c.finalize(name, rec, head, comparison, applyResult, durationMs)

	if c.Metrics != nil {
		c.Metrics.RecordCoordinatorOutcome(string(StatusUpdated), time.Since(start))
		c.Metrics.RecordFileDeltas(applyResult.Stats.FilesAdded, applyResult.Stats.FilesModified, applyResult.Stats.FilesDeleted)
	}
	if c.Logger != nil {
		c.Logger.LogUpdateOutcome(ctx, name, string(updateStatus), durationMs, len(applyResult.Errors))
	}

	return Result{
		Status:        StatusUpdated,
		CommitSha:     head.SHA,
		CommitMessage: head.Message,
		Stats:         applyResult.Stats,
		Errors:        applyResult.Errors,
		DurationMs:    durationMs,
	}, nil
}

func (c *Coordinator) finalizeNoChanges(name string) {
	_, _ = c.Catalog.Mutate(name, func(r *catalog.Record) error {
		r.UpdateInProgress = false
		r.UpdateStartedAt = nil
		return nil
	})
}

// finalize computes the fileCount/chunkCount deltas, determines the
// per-update status, and persists the record + history entry
// (spec.md §4.4, "Finalizing").
func (c *Coordinator) finalize(name string, rec catalog.Record, head forge.Commit, comparison forge.Comparison, applyResult incremental.Result, durationMs int64) catalog.UpdateStatus {
	totalAttempted := applyResult.Stats.FilesAdded + applyResult.Stats.FilesModified + applyResult.Stats.FilesDeleted
	var status catalog.UpdateStatus
	switch {
	case len(applyResult.Errors) == 0:
		status = catalog.UpdateSuccess
	case totalAttempted > 0 && len(applyResult.Errors) < totalAttempted:
		status = catalog.UpdatePartial
	default:
		status = catalog.UpdateFailed
	}

	entry := catalog.HistoryEntry{
		Timestamp:      catalog.Now(),
		PreviousCommit: rec.LastIndexedCommitSha,
		NewCommit:      head.SHA,
		FilesAdded:     applyResult.Stats.FilesAdded,
		FilesModified:  applyResult.Stats.FilesModified,
		FilesDeleted:   applyResult.Stats.FilesDeleted,
		ChunksUpserted: applyResult.Stats.ChunksUpserted,
		ChunksDeleted:  applyResult.Stats.ChunksDeleted,
		DurationMs:     durationMs,
		ErrorCount:     len(applyResult.Errors),
		Status:         status,
	}

	_, _ = c.Catalog.Mutate(name, func(r *catalog.Record) error {
		now := catalog.Now()
		r.FileCount += applyResult.Stats.FilesAdded - applyResult.Stats.FilesDeleted
		r.ChunkCount += applyResult.Stats.ChunksUpserted - applyResult.Stats.ChunksDeleted
		r.LastIndexedCommitSha = head.SHA
		r.LastIndexedAt = now
		r.IncrementalUpdateCount++
		r.LastIncrementalUpdateAt = &now
		if len(applyResult.Errors) == 0 {
			r.Status = catalog.StatusReady
			r.ErrorMessage = ""
		} else {
			r.Status = catalog.StatusError
			r.ErrorMessage = fmt.Sprintf("%d error(s) during incremental update", len(applyResult.Errors))
		}
		catalog.PushHistory(r, entry, c.historyLimit())
		r.UpdateInProgress = false
		r.UpdateStartedAt = nil
		return nil
	})

	return status
}
