// Package remote provides the go-github backed implementation of the
// repository-host client.
package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"

	"github.com/gantry-ci/gantry/pkg/gantry/v1/remote"
)

// GitHubClient implements remote.Client against the GitHub REST API.
type GitHubClient struct {
	client *github.Client
}

var _ remote.Client = (*GitHubClient)(nil)

// NewGitHubClient builds a client authenticated with a personal access or
// installation token. An empty token yields an unauthenticated client, which
// suffices for read-only calls against public repositories.
func NewGitHubClient(ctx context.Context, token string) *GitHubClient {
	var httpClient *http.Client
	if token != "" {
		src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		httpClient = oauth2.NewClient(ctx, src)
	}
	return &GitHubClient{client: github.NewClient(httpClient)}
}

// NewGitHubEnterpriseClient targets a GitHub Enterprise instance at baseURL.
func NewGitHubEnterpriseClient(ctx context.Context, baseURL, token string) (*GitHubClient, error) {
	gh := NewGitHubClient(ctx, token)
	enterprise, err := gh.client.WithEnterpriseURLs(baseURL, baseURL)
	if err != nil {
		return nil, fmt.Errorf("configuring enterprise endpoint %q: %w", baseURL, err)
	}
	return &GitHubClient{client: enterprise}, nil
}

func (g *GitHubClient) ListComments(ctx context.Context, ref remote.RepoRef, number int) ([]remote.Comment, error) {
	opts := &github.IssueListCommentsOptions{ListOptions: github.ListOptions{PerPage: 100}}
	var all []remote.Comment
	for {
		comments, resp, err := g.client.Issues.ListComments(ctx, ref.Owner, ref.Name, number, opts)
		if err != nil {
			return nil, fmt.Errorf("listing comments on %s#%d: %w", ref, number, err)
		}
		for _, c := range comments {
			all = append(all, remote.Comment{ID: c.GetID(), Body: c.GetBody()})
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return all, nil
}

func (g *GitHubClient) CreateComment(ctx context.Context, ref remote.RepoRef, number int, body string) error {
	_, _, err := g.client.Issues.CreateComment(ctx, ref.Owner, ref.Name, number, &github.IssueComment{Body: github.String(body)})
	if err != nil {
		return fmt.Errorf("creating comment on %s#%d: %w", ref, number, err)
	}
	return nil
}

func (g *GitHubClient) UpdateComment(ctx context.Context, ref remote.RepoRef, commentID int64, body string) error {
	_, _, err := g.client.Issues.EditComment(ctx, ref.Owner, ref.Name, commentID, &github.IssueComment{Body: github.String(body)})
	if err != nil {
		return fmt.Errorf("updating comment %d on %s: %w", commentID, ref, err)
	}
	return nil
}

func (g *GitHubClient) Mergeability(ctx context.Context, ref remote.RepoRef, number int) (remote.MergeStatus, error) {
	pr, _, err := g.client.PullRequests.Get(ctx, ref.Owner, ref.Name, number)
	if err != nil {
		return remote.MergeStatus{}, fmt.Errorf("fetching %s#%d: %w", ref, number, err)
	}
	state := pr.GetMergeableState()
	if state == "" {
		state = "unknown"
	}
	return remote.MergeStatus{
		Mergeable: pr.GetMergeable() && state == "clean",
		State:     state,
	}, nil
}

func (g *GitHubClient) BranchProtection(ctx context.Context, ref remote.RepoRef, branch string) (*remote.Protection, error) {
	protection, resp, err := g.client.Repositories.GetBranchProtection(ctx, ref.Owner, ref.Name, branch)
	if err != nil {
		if isNotFound(err, resp) {
			return nil, remote.ErrNotFound
		}
		return nil, fmt.Errorf("fetching protection for %s@%s: %w", ref, branch, err)
	}

	result := &remote.Protection{}
	if reviews := protection.GetRequiredPullRequestReviews(); reviews != nil {
		result.RequiredReviews = reviews.RequiredApprovingReviewCount
	}
	if checks := protection.GetRequiredStatusChecks(); checks != nil {
		result.RequiredStatusChecks = true
	}
	return result, nil
}

func (g *GitHubClient) ReviewThreadCount(ctx context.Context, ref remote.RepoRef, number int) (int, error) {
	opts := &github.PullRequestListCommentsOptions{ListOptions: github.ListOptions{PerPage: 100}}
	count := 0
	for {
		comments, resp, err := g.client.PullRequests.ListComments(ctx, ref.Owner, ref.Name, number, opts)
		if err != nil {
			return 0, fmt.Errorf("listing review comments on %s#%d: %w", ref, number, err)
		}
		count += len(comments)
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return count, nil
}

func (g *GitHubClient) SquashMerge(ctx context.Context, ref remote.RepoRef, number int, title string) error {
	opts := &github.PullRequestOptions{MergeMethod: "squash"}
	result, _, err := g.client.PullRequests.Merge(ctx, ref.Owner, ref.Name, number, title, opts)
	if err != nil {
		return fmt.Errorf("squash merging %s#%d: %w", ref, number, err)
	}
	if !result.GetMerged() {
		return fmt.Errorf("squash merging %s#%d: remote declined: %s", ref, number, result.GetMessage())
	}
	return nil
}

func isNotFound(err error, resp *github.Response) bool {
	if resp != nil && resp.StatusCode == http.StatusNotFound {
		return true
	}
	var ghErr *github.ErrorResponse
	return errors.As(err, &ghErr) && ghErr.Response != nil && ghErr.Response.StatusCode == http.StatusNotFound
}
