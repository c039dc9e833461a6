package forge

import (
	"context"

	"github.com/google/go-github/v45/github"
)

// githubAPI is the thin slice of the go-github surface the forge client
// needs, wrapped so tests can substitute a mock without standing up an
// HTTP server.
type githubAPI interface {
	GetCommit(ctx context.Context, owner, repo, sha string) (*github.RepositoryCommit, *github.Response, error)
	CompareCommits(ctx context.Context, owner, repo, base, head string) (*github.CommitsComparison, *github.Response, error)
	GetBranch(ctx context.Context, owner, repo, branch string) (*github.Branch, *github.Response, error)
	RateLimits(ctx context.Context) (*github.RateLimits, *github.Response, error)
}

// realGitHubAPI wraps an authenticated *github.Client.
type realGitHubAPI struct {
	client *github.Client
}

func newRealGitHubAPI(client *github.Client) *realGitHubAPI {
	return &realGitHubAPI{client: client}
}

func (r *realGitHubAPI) GetCommit(ctx context.Context, owner, repo, sha string) (*github.RepositoryCommit, *github.Response, error) {
	return r.client.Repositories.GetCommit(ctx, owner, repo, sha, nil)
}

func (r *realGitHubAPI) CompareCommits(ctx context.Context, owner, repo, base, head string) (*github.CommitsComparison, *github.Response, error) {
	return r.client.Repositories.CompareCommits(ctx, owner, repo, base, head, nil)
}

func (r *realGitHubAPI) GetBranch(ctx context.Context, owner, repo, branch string) (*github.Branch, *github.Response, error) {
	return r.client.Repositories.GetBranch(ctx, owner, repo, branch, true)
}

func (r *realGitHubAPI) RateLimits(ctx context.Context) (*github.RateLimits, *github.Response, error) {
	return r.client.RateLimits(ctx)
}

// mockGitHubAPI implements githubAPI with one func field per method, the
// teacher's own test-double pattern for GitHub-backed connectors.
type mockGitHubAPI struct {
	GetCommitFunc      func(ctx context.Context, owner, repo, sha string) (*github.RepositoryCommit, *github.Response, error)
	CompareCommitsFunc func(ctx context.Context, owner, repo, base, head string) (*github.CommitsComparison, *github.Response, error)
	GetBranchFunc      func(ctx context.Context, owner, repo, branch string) (*github.Branch, *github.Response, error)
	RateLimitsFunc     func(ctx context.Context) (*github.RateLimits, *github.Response, error)
}

func (m *mockGitHubAPI) GetCommit(ctx context.Context, owner, repo, sha string) (*github.RepositoryCommit, *github.Response, error) {
	if m.GetCommitFunc != nil {
		return m.GetCommitFunc(ctx, owner, repo, sha)
	}
	return nil, nil, nil
}

func (m *mockGitHubAPI) CompareCommits(ctx context.Context, owner, repo, base, head string) (*github.CommitsComparison, *github.Response, error) {
	if m.CompareCommitsFunc != nil {
		return m.CompareCommitsFunc(ctx, owner, repo, base, head)
	}
	return nil, nil, nil
}

func (m *mockGitHubAPI) GetBranch(ctx context.Context, owner, repo, branch string) (*github.Branch, *github.Response, error) {
	if m.GetBranchFunc != nil {
		return m.GetBranchFunc(ctx, owner, repo, branch)
	}
	return nil, nil, nil
}

func (m *mockGitHubAPI) RateLimits(ctx context.Context) (*github.RateLimits, *github.Response, error) {
	if m.RateLimitsFunc != nil {
		return m.RateLimitsFunc(ctx)
	}
	return &github.RateLimits{}, &github.Response{}, nil
}
