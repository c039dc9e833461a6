// Package gitrepo performs local git operations (clone, fast-forward
// pull, HEAD inspection) against a repository's working-tree clone.
package gitrepo

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
)

// Puller is the pluggable local-pull step the coordinator invokes
// (spec's "a pluggable pull function exists for tests").
type Puller interface {
	Pull(ctx context.Context, localPath, branch string) error
}

// Cloner clones a remote repository to a local path on a given branch.
type Cloner interface {
	Clone(ctx context.Context, url, branch, localPath string) error
}

// Repo is the default Cloner/Puller backed by go-git.
type Repo struct {
	// Token authenticates HTTPS clone/pull when set.
	Token string
}

func (r *Repo) auth() *http.BasicAuth {
	if r.Token == "" {
		return nil
	}
	return &http.BasicAuth{Username: "x-access-token", Password: r.Token}
}

func (r *Repo) Clone(ctx context.Context, url, branch, localPath string) error {
	opts := &git.CloneOptions{
		URL:           url,
		SingleBranch:  true,
		Depth:         0,
		Auth:          nil,
		ReferenceName: plumbing.NewBranchReferenceName(branch),
	}
	if a := r.auth(); a != nil {
		opts.Auth = a
	}
	if branch == "" {
		opts.ReferenceName = ""
	}
	_, err := git.PlainCloneContext(ctx, localPath, false, opts)
	if err != nil {
		return fmt.Errorf("gitrepo: clone %s: %w", url, err)
	}
	return nil
}

func (r *Repo) Pull(ctx context.Context, localPath, branch string) error {
	repo, err := git.PlainOpen(localPath)
	if err != nil {
		return fmt.Errorf("gitrepo: open %s: %w", localPath, err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("gitrepo: worktree %s: %w", localPath, err)
	}
	opts := &git.PullOptions{
		SingleBranch:  true,
		ReferenceName: plumbing.NewBranchReferenceName(branch),
	}
	if a := r.auth(); a != nil {
		opts.Auth = a
	}
	err = wt.PullContext(ctx, opts)
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("gitrepo: pull %s: %w", localPath, err)
	}
	return nil
}

// HeadCommit returns the SHA the local clone's HEAD currently points at.
func HeadCommit(localPath string) (string, error) {
	repo, err := git.PlainOpen(localPath)
	if err != nil {
		return "", fmt.Errorf("gitrepo: open %s: %w", localPath, err)
	}
	head, err := repo.Head()
	if err != nil {
		return "", fmt.Errorf("gitrepo: head %s: %w", localPath, err)
	}
	return head.Hash().String(), nil
}
