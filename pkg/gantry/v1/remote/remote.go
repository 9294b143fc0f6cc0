// Package remote defines the repository-host API collaborator consumed by the
// pipeline core: pull-request comments, mergeability, branch protection, and
// squash merges. The core treats it as an injected capability; the go-github
// implementation lives in internal/remote.
package remote

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned when the remote reports that the requested resource
// (typically branch protection) does not exist. Callers distinguish this from
// transport or authorization failures.
var ErrNotFound = errors.New("remote resource not found")

// RepoRef identifies a repository on the remote host.
type RepoRef struct {
	Owner string
	Name  string
}

// ParseRepoRef parses an "owner/name" repository identifier.
func ParseRepoRef(s string) (RepoRef, error) {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return RepoRef{}, fmt.Errorf("repository identifier must be 'owner/name', got %q", s)
	}
	return RepoRef{Owner: parts[0], Name: parts[1]}, nil
}

func (r RepoRef) String() string { return r.Owner + "/" + r.Name }

// Comment is a pull-request conversation comment.
type Comment struct {
	ID   int64
	Body string
}

// MergeStatus reports whether a pull request can be merged cleanly.
type MergeStatus struct {
	// Mergeable is true only when the remote reports a clean merge.
	Mergeable bool
	// State is the remote's mergeability label (e.g. "clean", "dirty",
	// "blocked", "unknown").
	State string
}

// Protection describes the branch-protection configuration of a branch.
type Protection struct {
	// RequiredReviews is the number of approving reviews required, zero
	// when no review requirement is configured.
	RequiredReviews int
	// RequiredStatusChecks is true when at least one status check must
	// pass before merging.
	RequiredStatusChecks bool
}

// Client is the remote API capability injected into the orchestrator, the
// policy engine, and the heal protocol. Implementations must be safe for
// sequential reuse within a run; no concurrent use occurs.
type Client interface {
	// ListComments returns the conversation comments of a pull request.
	ListComments(ctx context.Context, ref RepoRef, number int) ([]Comment, error)
	// CreateComment adds a new conversation comment to a pull request.
	CreateComment(ctx context.Context, ref RepoRef, number int, body string) error
	// UpdateComment replaces the body of an existing comment.
	UpdateComment(ctx context.Context, ref RepoRef, commentID int64, body string) error
	// Mergeability reports whether the pull request merges cleanly.
	Mergeability(ctx context.Context, ref RepoRef, number int) (MergeStatus, error)
	// BranchProtection returns the protection settings of a branch, or
	// ErrNotFound when the branch carries no protection at all.
	BranchProtection(ctx context.Context, ref RepoRef, branch string) (*Protection, error)
	// ReviewThreadCount returns the number of open review comments on a
	// pull request.
	ReviewThreadCount(ctx context.Context, ref RepoRef, number int) (int, error)
	// SquashMerge merges the pull request with the squash strategy.
	SquashMerge(ctx context.Context, ref RepoRef, number int, title string) error
}
