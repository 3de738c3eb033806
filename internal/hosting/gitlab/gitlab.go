// Package gitlab implements hosting.Provider for GitLab using client-go.
package gitlab

import (
	"context"
	"fmt"
	"strings"
	"time"

	gogitlab "gitlab.com/gitlab-org/api/client-go"

	"github.com/gyrelabs/gyre/internal/hosting"
)

// Compile-time interface check.
var _ hosting.Provider = (*Provider)(nil)

func init() {
	hosting.RegisterProvider(hosting.ProviderGitLab, newProvider)
}

// Provider implements hosting.Provider using the GitLab API client.
type Provider struct {
	client    *gogitlab.Client
	projectID string // URL path "owner/repo" (or "group/subgroup/repo")
	owner     string
	repo      string
}

func newProvider(remoteURL string, cfg hosting.Config) (hosting.Provider, error) {
	token, err := resolveToken(cfg)
	if err != nil {
		return nil, err
	}

	owner, repo := hosting.ParseOwnerRepo(remoteURL)
	if owner == "" || repo == "" {
		return nil, fmt.Errorf("could not parse owner/repo from remote URL: %s", remoteURL)
	}
	projectID := owner + "/" + repo

	var client *gogitlab.Client
	if cfg.BaseURL != "" {
		baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
		client, err = gogitlab.NewClient(token, gogitlab.WithBaseURL(baseURL+"/api/v4"))
	} else {
		client, err = gogitlab.NewClient(token)
	}
	if err != nil {
		return nil, fmt.Errorf("create GitLab client: %w", err)
	}

	return &Provider{
		client:    client,
		projectID: projectID,
		owner:     owner,
		repo:      repo,
	}, nil
}

// Name returns the provider type.
func (p *Provider) Name() hosting.ProviderType {
	return hosting.ProviderGitLab
}

// OwnerRepo returns the owner and repository name.
// For nested GitLab groups, owner may be "group/subgroup".
func (p *Provider) OwnerRepo() (string, string) {
	return p.owner, p.repo
}

// CheckAuth validates the token by fetching the authenticated user.
func (p *Provider) CheckAuth(ctx context.Context) error {
	_, _, err := p.client.Users.CurrentUser(gogitlab.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("check auth: %w", err)
	}
	return nil
}

// CreatePR creates a merge request. GitLab marks drafts via a title prefix.
func (p *Provider) CreatePR(ctx context.Context, opts hosting.PRCreateOptions) (*hosting.PR, error) {
	title := opts.Title
	if opts.Draft {
		title = "Draft: " + title
	}

	createOpts := &gogitlab.CreateMergeRequestOptions{
		Title:              gogitlab.Ptr(title),
		Description:        gogitlab.Ptr(opts.Body),
		SourceBranch:       gogitlab.Ptr(opts.Head),
		TargetBranch:       gogitlab.Ptr(opts.Base),
		RemoveSourceBranch: gogitlab.Ptr(true),
	}

	mr, _, err := p.client.MergeRequests.CreateMergeRequest(p.projectID, createOpts, gogitlab.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("create MR: %w", err)
	}
	return mapMR(mr), nil
}

// FindPRByBranch finds the open MR for a given source branch.
func (p *Provider) FindPRByBranch(ctx context.Context, branch string) (*hosting.PR, error) {
	mrs, _, err := p.client.MergeRequests.ListProjectMergeRequests(p.projectID, &gogitlab.ListProjectMergeRequestsOptions{
		SourceBranch: gogitlab.Ptr(branch),
		State:        gogitlab.Ptr("opened"),
		ListOptions:  gogitlab.ListOptions{PerPage: 1},
	}, gogitlab.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("find MR by branch %q: %w", branch, err)
	}
	if len(mrs) == 0 {
		return nil, hosting.ErrNoPRFound
	}
	return mapBasicMR(mrs[0]), nil
}

// DeleteBranch deletes a remote branch.
func (p *Provider) DeleteBranch(ctx context.Context, branch string) error {
	_, err := p.client.Branches.DeleteBranch(p.projectID, branch, gogitlab.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("delete branch %q: %w", branch, err)
	}
	return nil
}

// mapMR converts a GitLab MergeRequest to a hosting.PR.
func mapMR(mr *gogitlab.MergeRequest) *hosting.PR {
	state := mr.State
	if state == "opened" {
		state = "open"
	}

	var createdAt string
	if mr.CreatedAt != nil {
		createdAt = mr.CreatedAt.Format(time.RFC3339)
	}

	return &hosting.PR{
		Number:     int(mr.IID),
		Title:      mr.Title,
		Body:       mr.Description,
		State:      state,
		HeadBranch: mr.SourceBranch,
		BaseBranch: mr.TargetBranch,
		HTMLURL:    mr.WebURL,
		Draft:      mr.Draft,
		CreatedAt:  createdAt,
	}
}

// mapBasicMR converts a GitLab BasicMergeRequest (list results) to a hosting.PR.
func mapBasicMR(mr *gogitlab.BasicMergeRequest) *hosting.PR {
	state := mr.State
	if state == "opened" {
		state = "open"
	}

	var createdAt string
	if mr.CreatedAt != nil {
		createdAt = mr.CreatedAt.Format(time.RFC3339)
	}

	return &hosting.PR{
		Number:     int(mr.IID),
		Title:      mr.Title,
		Body:       mr.Description,
		State:      state,
		HeadBranch: mr.SourceBranch,
		BaseBranch: mr.TargetBranch,
		HTMLURL:    mr.WebURL,
		Draft:      mr.Draft,
		CreatedAt:  createdAt,
	}
}
