// Package github implements hosting.Provider for GitHub using go-github.
package github

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	gogithub "github.com/google/go-github/v82/github"

	"github.com/gyrelabs/gyre/internal/hosting"
)

// Compile-time interface check.
var _ hosting.Provider = (*Provider)(nil)

func init() {
	hosting.RegisterProvider(hosting.ProviderGitHub, newProvider)
}

// Provider implements hosting.Provider using the go-github library.
type Provider struct {
	client *gogithub.Client
	owner  string
	repo   string
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

	httpClient := &http.Client{
		Transport: &tokenTransport{token: token},
	}
	client := gogithub.NewClient(httpClient)

	// GitHub Enterprise: override base URL.
	if cfg.BaseURL != "" {
		baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
		var parseErr error
		client.BaseURL, parseErr = client.BaseURL.Parse(baseURL + "/api/v3/")
		if parseErr != nil {
			return nil, fmt.Errorf("parse base URL %q: %w", cfg.BaseURL, parseErr)
		}
		client.UploadURL, parseErr = client.UploadURL.Parse(baseURL + "/api/uploads/")
		if parseErr != nil {
			return nil, fmt.Errorf("parse upload URL %q: %w", cfg.BaseURL, parseErr)
		}
	}

	return &Provider{client: client, owner: owner, repo: repo}, nil
}

// tokenTransport adds an Authorization header to every request.
type tokenTransport struct {
	token string
	base  http.RoundTripper
}

func (t *tokenTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req2 := req.Clone(req.Context())
	req2.Header.Set("Authorization", "Bearer "+t.token)
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req2)
}

// Name returns the provider type.
func (p *Provider) Name() hosting.ProviderType {
	return hosting.ProviderGitHub
}

// OwnerRepo returns the owner and repository name.
func (p *Provider) OwnerRepo() (string, string) {
	return p.owner, p.repo
}

// CheckAuth validates the token by fetching the authenticated user.
func (p *Provider) CheckAuth(ctx context.Context) error {
	_, _, err := p.client.Users.Get(ctx, "")
	if err != nil {
		return fmt.Errorf("check auth: %w", err)
	}
	return nil
}

// CreatePR creates a pull request.
func (p *Provider) CreatePR(ctx context.Context, opts hosting.PRCreateOptions) (*hosting.PR, error) {
	newPR := &gogithub.NewPullRequest{
		Title: gogithub.Ptr(opts.Title),
		Body:  gogithub.Ptr(opts.Body),
		Head:  gogithub.Ptr(opts.Head),
		Base:  gogithub.Ptr(opts.Base),
		Draft: gogithub.Ptr(opts.Draft),
	}

	created, _, err := p.client.PullRequests.Create(ctx, p.owner, p.repo, newPR)
	if err != nil {
		return nil, fmt.Errorf("create PR: %w", err)
	}
	return mapPR(created), nil
}

// FindPRByBranch finds the open PR for a given head branch.
func (p *Provider) FindPRByBranch(ctx context.Context, branch string) (*hosting.PR, error) {
	prs, _, err := p.client.PullRequests.List(ctx, p.owner, p.repo, &gogithub.PullRequestListOptions{
		Head:        p.owner + ":" + branch,
		State:       "open",
		ListOptions: gogithub.ListOptions{PerPage: 1},
	})
	if err != nil {
		return nil, fmt.Errorf("find PR by branch %q: %w", branch, err)
	}
	if len(prs) == 0 {
		return nil, hosting.ErrNoPRFound
	}
	return mapPR(prs[0]), nil
}

// DeleteBranch deletes a remote branch.
func (p *Provider) DeleteBranch(ctx context.Context, branch string) error {
	_, err := p.client.Git.DeleteRef(ctx, p.owner, p.repo, "refs/heads/"+branch)
	if err != nil {
		return fmt.Errorf("delete branch %q: %w", branch, err)
	}
	return nil
}

// mapPR converts a go-github PullRequest to a hosting.PR.
func mapPR(pr *gogithub.PullRequest) *hosting.PR {
	state := pr.GetState()
	if pr.GetMerged() {
		state = "merged"
	}

	var createdAt string
	if t := pr.GetCreatedAt(); !t.IsZero() {
		createdAt = t.Format(time.RFC3339)
	}

	return &hosting.PR{
		Number:     pr.GetNumber(),
		Title:      pr.GetTitle(),
		Body:       pr.GetBody(),
		State:      state,
		HeadBranch: pr.GetHead().GetRef(),
		BaseBranch: pr.GetBase().GetRef(),
		HTMLURL:    pr.GetHTMLURL(),
		Draft:      pr.GetDraft(),
		CreatedAt:  createdAt,
	}
}
