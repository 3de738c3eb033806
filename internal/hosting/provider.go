// Package hosting provides a unified interface for git hosting providers
// (GitHub, GitLab). The lifecycle uses it to open a pull request when a
// loop finalizes with push, and to remove the remote working branch when
// the loop is marked merged.
package hosting

import (
	"context"
	"errors"
)

// ProviderType identifies which hosting provider is in use.
type ProviderType string

const (
	ProviderGitHub  ProviderType = "github"
	ProviderGitLab  ProviderType = "gitlab"
	ProviderUnknown ProviderType = "unknown"
)

// Provider is the interface for git hosting providers.
type Provider interface {
	// CreatePR opens a pull request / merge request.
	CreatePR(ctx context.Context, opts PRCreateOptions) (*PR, error)

	// FindPRByBranch returns the open PR whose head is the given branch,
	// or ErrNoPRFound.
	FindPRByBranch(ctx context.Context, branch string) (*PR, error)

	// DeleteBranch removes a remote branch.
	DeleteBranch(ctx context.Context, branch string) error

	// CheckAuth validates the configured token.
	CheckAuth(ctx context.Context) error

	Name() ProviderType
	OwnerRepo() (string, string)
}

// PR represents a pull request / merge request.
type PR struct {
	Number     int    `json:"number"`
	Title      string `json:"title"`
	Body       string `json:"body"`
	State      string `json:"state"` // open, closed, merged
	HeadBranch string `json:"head_branch"`
	BaseBranch string `json:"base_branch"`
	HTMLURL    string `json:"html_url"`
	Draft      bool   `json:"draft"`
	CreatedAt  string `json:"created_at"`
}

// PRCreateOptions for creating a PR / merge request.
type PRCreateOptions struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Head  string `json:"head"` // Source branch
	Base  string `json:"base"` // Target branch
	Draft bool   `json:"draft"`
}

// Hosting provider errors.
var (
	// ErrNoPRFound is returned when no PR/MR exists for the given branch.
	ErrNoPRFound = errors.New("no pull request found for branch")

	// ErrAuthFailed is returned when authentication fails.
	ErrAuthFailed = errors.New("authentication failed")
)
