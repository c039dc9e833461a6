package forge

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/go-github/v45/github"
	"golang.org/x/oauth2"
)

// GitHubClient implements Client against the GitHub REST API.
type GitHubClient struct {
	api     githubAPI
	limiter *rateLimiter
}

// NewGitHubClient builds a GitHub-backed forge client authenticated with
// a personal access token or GitHub App installation token.
func NewGitHubClient(ctx context.Context, token string) *GitHubClient {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	tc := oauth2.NewClient(ctx, ts)
	return &GitHubClient{
		api:     newRealGitHubAPI(github.NewClient(tc)),
		limiter: newRateLimiter(),
	}
}

func (c *GitHubClient) GetHeadCommit(ctx context.Context, owner, repo, branch, correlationID string) (Commit, error) {
	if err := c.limiter.wait(ctx); err != nil {
		return Commit{}, err
	}
	b, resp, err := c.api.GetBranch(ctx, owner, repo, branch)
	c.updateFromResponse(resp)
	if err != nil {
		if isNotFound(resp) {
			return Commit{}, fmt.Errorf("%w: branch %s/%s@%s", ErrNotFound, owner, repo, branch)
		}
		return Commit{}, fmt.Errorf("forge: get branch %s/%s@%s: %w", owner, repo, branch, err)
	}
	if b.Commit == nil || b.Commit.Commit == nil {
		return Commit{}, fmt.Errorf("forge: branch %s/%s@%s has no commit", owner, repo, branch)
	}
	sha := b.Commit.GetSHA()
	commit, resp, err := c.api.GetCommit(ctx, owner, repo, sha)
	c.updateFromResponse(resp)
	if err != nil {
		if isNotFound(resp) {
			return Commit{}, fmt.Errorf("%w: commit %s", ErrNotFound, sha)
		}
		return Commit{}, fmt.Errorf("forge: get commit %s: %w", sha, err)
	}
	out := Commit{SHA: commit.GetSHA()}
	if cm := commit.GetCommit(); cm != nil {
		out.Message = cm.GetMessage()
		if a := cm.GetAuthor(); a != nil {
			out.Author = a.GetName()
			out.Date = a.GetDate()
		}
	}
	return out, nil
}

func (c *GitHubClient) CompareCommits(ctx context.Context, owner, repo, base, head, correlationID string) (Comparison, error) {
	if err := c.limiter.wait(ctx); err != nil {
		return Comparison{}, err
	}
	cmp, resp, err := c.api.CompareCommits(ctx, owner, repo, base, head)
	c.updateFromResponse(resp)
	if err != nil {
		if isNotFound(resp) {
			return Comparison{}, fmt.Errorf("%w: base %s", ErrNotFound, base)
		}
		return Comparison{}, fmt.Errorf("forge: compare %s...%s: %w", base, head, err)
	}

	out := Comparison{
		BaseSHA:      cmp.GetBaseCommit().GetSHA(),
		HeadSHA:      head,
		TotalCommits: cmp.GetTotalCommits(),
	}
	for _, f := range cmp.Files {
		out.Files = append(out.Files, FileDiff{
			Path:         f.GetFilename(),
			Status:       mapFileStatus(f.GetStatus()),
			PreviousPath: f.GetPreviousFilename(),
		})
	}
	return out, nil
}

func (c *GitHubClient) updateFromResponse(resp *github.Response) {
	if resp == nil || resp.Response == nil {
		return
	}
	c.limiter.update(resp.Rate.Remaining, resp.Rate.Reset.Time)
}

func isNotFound(resp *github.Response) bool {
	return resp != nil && resp.Response != nil && resp.StatusCode == http.StatusNotFound
}

func mapFileStatus(s string) FileStatus {
	switch s {
	case "added":
		return FileAdded
	case "removed":
		return FileDeleted
	case "renamed":
		return FileRenamed
	default:
		return FileModified
	}
}
