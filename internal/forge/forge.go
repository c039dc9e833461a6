// Package forge talks to a remote code-forge (GitHub and compatible APIs)
// to resolve the HEAD commit of a branch and compare two commits.
package forge

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when the forge cannot find the requested
// commit. The coordinator interprets this during CompareCommits as a
// force-push: the base commit no longer exists in remote history.
var ErrNotFound = errors.New("forge: commit not found")

// Commit describes a single commit as reported by the forge.
type Commit struct {
	SHA     string
	Message string
	Author  string
	Date    time.Time
}

// FileStatus categorizes how a file differs between two commits.
type FileStatus string

const (
	FileAdded    FileStatus = "added"
	FileModified FileStatus = "modified"
	FileDeleted  FileStatus = "deleted"
	FileRenamed  FileStatus = "renamed"
)

// FileDiff is one entry of a commit comparison.
type FileDiff struct {
	Path         string
	Status       FileStatus
	PreviousPath string
}

// Comparison is the result of comparing two commits.
type Comparison struct {
	BaseSHA      string
	HeadSHA      string
	TotalCommits int
	Files        []FileDiff
}

// Client is the RPC-style forge interface consumed by the coordinator.
// Implementations must translate a not-found base commit into ErrNotFound.
type Client interface {
	GetHeadCommit(ctx context.Context, owner, repo, branch, correlationID string) (Commit, error)
	CompareCommits(ctx context.Context, owner, repo, base, head, correlationID string) (Comparison, error)
}
