// Package git shells out to the git CLI for the repository operations gyre
// performs around loop runs: dirty checks before start, branch management,
// and the merge/push work of finalization. Commands go through an
// injectable CommandRunner.
package git

import (
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// Git runs git commands against a single repository working tree.
type Git struct {
	repoPath string
	ignore   []string
	runner   CommandRunner
}

// Option configures Git.
type Option func(*Git)

// WithRunner sets a custom command runner for git operations.
// This is primarily used for testing to inject scripted command execution.
func WithRunner(runner CommandRunner) Option {
	return func(g *Git) {
		g.runner = runner
	}
}

// WithIgnoreGlobs sets glob patterns for paths that DirtyFiles and IsClean
// skip. The state directory (.gyre) is always skipped.
func WithIgnoreGlobs(globs []string) Option {
	return func(g *Git) {
		g.ignore = globs
	}
}

// New creates a Git instance for the repository at repoPath.
// It validates that the path is a git repository and applies any options.
func New(repoPath string, opts ...Option) (*Git, error) {
	absPath, err := filepath.Abs(repoPath)
	if err != nil {
		return nil, fmt.Errorf("resolve path: %w", err)
	}

	// Verify it's a git repository
	cmd := exec.Command("git", "rev-parse", "--git-dir")
	cmd.Dir = absPath
	if err := cmd.Run(); err != nil {
		return nil, ErrNotGitRepo
	}

	g := &Git{
		repoPath: absPath,
		runner:   NewExecRunner(),
	}

	for _, opt := range opts {
		opt(g)
	}

	return g, nil
}

// RepoPath returns the path to the repository.
func (g *Git) RepoPath() string {
	return g.repoPath
}

// runGit executes a git command and returns stdout.
// On failure stdout carries git's diagnostic output.
func (g *Git) runGit(args ...string) (string, error) {
	return g.runner.Run(g.repoPath, "git", args...)
}

// RunGit executes a git command and returns stdout.
// This is the public version of runGit for use by external packages.
func (g *Git) RunGit(args ...string) (string, error) {
	return g.runGit(args...)
}

// CurrentBranch returns the current branch name.
func (g *Git) CurrentBranch() (string, error) {
	branch, err := g.runGit("rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", &GitError{Op: "get current branch", Err: err}
	}
	return branch, nil
}

// Checkout switches to the specified ref (branch, tag, or commit).
func (g *Git) Checkout(ref string) error {
	if output, err := g.runGit("checkout", ref); err != nil {
		return &GitError{Op: "checkout", Output: output, Err: err}
	}
	return nil
}

// CreateBranch creates a new branch at HEAD without switching to it.
func (g *Git) CreateBranch(name string) error {
	if output, err := g.runGit("branch", name); err != nil {
		if strings.Contains(err.Error(), "already exists") {
			return ErrBranchExists
		}
		return &GitError{Op: "create branch", Output: output, Err: err}
	}
	return nil
}

// CreateBranchFromBase creates a new branch from the specified base branch.
// Unlike CreateBranch, this allows any base (not just current HEAD). If the
// base is not available locally it is fetched from origin first.
func (g *Git) CreateBranchFromBase(branch, baseBranch string) error {
	if _, err := g.runGit("rev-parse", "--verify", baseBranch); err != nil {
		// Try fetching the branch from origin
		_, fetchErr := g.runGit("fetch", "origin", baseBranch+":"+baseBranch)
		if fetchErr != nil {
			// Also try with origin/ prefix in case it's a remote tracking branch
			_, fetchErr = g.runGit("fetch", "origin", baseBranch)
			if fetchErr != nil {
				return fmt.Errorf("base branch %s not found locally or on remote: %w", baseBranch, err)
			}
		}
	}

	if output, err := g.runGit("branch", branch, baseBranch); err != nil {
		if strings.Contains(err.Error(), "already exists") {
			return ErrBranchExists
		}
		return &GitError{Op: "create branch from base", Output: output, Err: err}
	}
	return nil
}

// EnsureBranchExists creates a branch from base if it doesn't exist.
//
// If the branch already exists locally, this is a no-op.
// If the branch exists on remote but not locally, it creates a local
// tracking branch. Otherwise it creates the branch from the base branch.
func (g *Git) EnsureBranchExists(branch, baseBranch string) error {
	exists, err := g.BranchExists(branch)
	if err != nil {
		return fmt.Errorf("check branch exists: %w", err)
	}
	if exists {
		return nil
	}

	// Remote might not be accessible; fall through to creating from base.
	remoteExists, err := g.RemoteBranchExists("origin", branch)
	if err == nil && remoteExists {
		if _, err := g.runGit("branch", "--track", branch, "origin/"+branch); err != nil {
			return fmt.Errorf("create tracking branch %s: %w", branch, err)
		}
		return nil
	}

	return g.CreateBranchFromBase(branch, baseBranch)
}

// BranchExists checks if a branch exists locally.
func (g *Git) BranchExists(branch string) (bool, error) {
	_, err := g.runGit("show-ref", "--verify", "--quiet", "refs/heads/"+branch)
	if err != nil {
		// Exit code 1 means the branch doesn't exist; anything else is a
		// real failure.
		if strings.Contains(err.Error(), "exit status 1") {
			return false, nil
		}
		return false, fmt.Errorf("check branch %s: %w", branch, err)
	}
	return true, nil
}

// RemoteBranchExists checks if a branch exists on the remote.
func (g *Git) RemoteBranchExists(remote, branch string) (bool, error) {
	output, err := g.runGit("ls-remote", "--heads", remote, "refs/heads/"+branch)
	if err != nil {
		return false, fmt.Errorf("ls-remote failed: %w", err)
	}
	return strings.TrimSpace(output) != "", nil
}

// DeleteBranch deletes a local branch. If force is true, uses -D instead of -d.
func (g *Git) DeleteBranch(name string, force bool) error {
	flag := "-d"
	if force {
		flag = "-D"
	}
	if output, err := g.runGit("branch", flag, name); err != nil {
		if strings.Contains(err.Error(), "not found") {
			return ErrBranchNotFound
		}
		return &GitError{Op: "delete branch", Output: output, Err: err}
	}
	return nil
}

// DeleteRemoteBranch deletes a branch on the remote.
func (g *Git) DeleteRemoteBranch(remote, branch string) error {
	if output, err := g.runGit("push", remote, "--delete", branch); err != nil {
		if strings.Contains(err.Error(), "remote ref does not exist") {
			return ErrBranchNotFound
		}
		return &GitError{Op: "delete remote branch", Output: output, Err: err}
	}
	return nil
}

// StageAll stages all changes (git add -A).
func (g *Git) StageAll() error {
	if output, err := g.runGit("add", "-A"); err != nil {
		return &GitError{Op: "stage all", Output: output, Err: err}
	}
	return nil
}

// Commit creates a commit with the given message.
// Returns ErrNothingToCommit if there are no staged changes.
func (g *Git) Commit(message string) error {
	output, err := g.runGit("commit", "-m", message)
	if err != nil {
		if strings.Contains(output, "nothing to commit") ||
			strings.Contains(err.Error(), "nothing to commit") {
			return ErrNothingToCommit
		}
		return &GitError{Op: "commit", Output: output, Err: err}
	}
	return nil
}

// Fetch fetches updates from the remote.
func (g *Git) Fetch(remote string) error {
	if output, err := g.runGit("fetch", remote); err != nil {
		return &GitError{Op: "fetch", Output: output, Err: err}
	}
	return nil
}

// Pull pulls changes from the remote into the current branch.
// Returns ErrMergeConflict if the pull stops on conflicts.
func (g *Git) Pull(remote, branch string) error {
	output, err := g.runGit("pull", remote, branch)
	if err != nil {
		if isConflictOutput(output, err) {
			return ErrMergeConflict
		}
		return &GitError{Op: "pull", Output: output, Err: err}
	}
	return nil
}

// Merge merges a branch into the current branch.
// Returns ErrMergeConflict if the merge stops on conflicts; the working
// tree is left mid-merge so the conflicts can be resolved or aborted.
func (g *Git) Merge(branch string, noFF bool) error {
	args := []string{"merge"}
	if noFF {
		args = append(args, "--no-ff")
	}
	args = append(args, branch)

	output, err := g.runGit(args...)
	if err != nil {
		if isConflictOutput(output, err) {
			return ErrMergeConflict
		}
		return &GitError{Op: "merge", Output: output, Err: err}
	}
	return nil
}

// MergeAbort aborts an in-progress merge and restores the working tree.
func (g *Git) MergeAbort() error {
	if output, err := g.runGit("merge", "--abort"); err != nil {
		return &GitError{Op: "abort merge", Output: output, Err: err}
	}
	return nil
}

// MergeInProgress reports whether a merge is currently underway.
func (g *Git) MergeInProgress() (bool, error) {
	_, err := g.runGit("rev-parse", "-q", "--verify", "MERGE_HEAD")
	if err != nil {
		if strings.Contains(err.Error(), "exit status 1") {
			return false, nil
		}
		return false, &GitError{Op: "check merge state", Err: err}
	}
	return true, nil
}

// ConflictedFiles returns the paths currently in conflict.
func (g *Git) ConflictedFiles() ([]string, error) {
	output, err := g.runGit("diff", "--name-only", "--diff-filter=U")
	if err != nil {
		return nil, &GitError{Op: "list conflicts", Output: output, Err: err}
	}
	if output == "" {
		return nil, nil
	}
	return strings.Split(output, "\n"), nil
}

// isConflictOutput reports whether a failed merge or pull stopped on
// conflicts rather than some other error.
func isConflictOutput(output string, err error) bool {
	text := strings.ToLower(output)
	if err != nil {
		text += "\n" + strings.ToLower(err.Error())
	}
	return strings.Contains(text, "conflict") ||
		strings.Contains(text, "automatic merge failed") ||
		strings.Contains(text, "needs merge")
}

// Push pushes the branch to the remote.
// If setUpstream is true, uses -u to set upstream tracking.
func (g *Git) Push(remote, branch string, setUpstream bool) error {
	args := []string{"push"}
	if setUpstream {
		args = append(args, "-u")
	}
	args = append(args, remote, branch)

	if output, err := g.runGit(args...); err != nil {
		return &GitError{Op: "push", Output: output, Err: err}
	}
	return nil
}

// PushForce pushes with --force-with-lease.
// This is safer than --force as it fails if the remote has commits that
// weren't fetched yet.
func (g *Git) PushForce(remote, branch string, setUpstream bool) error {
	args := []string{"push", "--force-with-lease"}
	if setUpstream {
		args = append(args, "-u")
	}
	args = append(args, remote, branch)

	if output, err := g.runGit(args...); err != nil {
		return &GitError{Op: "force push", Output: output, Err: err}
	}
	return nil
}

// PushWithForceFallback attempts a normal push, and if it fails with a
// non-fast-forward error (divergent history), retries with
// --force-with-lease. Loop branches diverge from their remote copy when
// review iterations rewrite history, so the fallback keeps repeated pushes
// working. When the fallback is used, a warning is logged if logger is
// non-nil.
func (g *Git) PushWithForceFallback(remote, branch string, setUpstream bool, logger *slog.Logger) error {
	err := g.Push(remote, branch, setUpstream)
	if err == nil {
		return nil
	}

	if !IsNonFastForwardError(err) {
		return err
	}

	if logger != nil {
		logger.Warn("push rejected as non-fast-forward, retrying with --force-with-lease",
			"branch", branch)
	}

	return g.PushForce(remote, branch, setUpstream)
}

// IsNonFastForwardError checks if a push error is due to non-fast-forward
// (divergent history) that can be resolved with force push.
func IsNonFastForwardError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "non-fast-forward") ||
		(strings.Contains(errStr, "rejected") && strings.Contains(errStr, "fetch first")) ||
		(strings.Contains(errStr, "failed to push") && strings.Contains(errStr, "behind"))
}

// HasRemote checks if a remote is configured in the repository.
// Useful for detecting sandbox repositories that have no remote at all.
func (g *Git) HasRemote(remote string) bool {
	_, err := g.RemoteURL(remote)
	return err == nil
}

// RemoteURL returns the URL of the specified remote.
func (g *Git) RemoteURL(remote string) (string, error) {
	url, err := g.runGit("remote", "get-url", remote)
	if err != nil {
		return "", &GitError{Op: "get remote URL", Err: err}
	}
	return url, nil
}

// HeadCommit returns the current HEAD commit SHA.
func (g *Git) HeadCommit() (string, error) {
	sha, err := g.runGit("rev-parse", "HEAD")
	if err != nil {
		return "", &GitError{Op: "get HEAD commit", Err: err}
	}
	return sha, nil
}

// CommitCounts returns how many commits the current branch is ahead of and
// behind the given base.
func (g *Git) CommitCounts(base string) (ahead, behind int, err error) {
	output, err := g.runGit("rev-list", "--left-right", "--count", base+"...HEAD")
	if err != nil {
		return 0, 0, &GitError{Op: "count commits", Output: output, Err: err}
	}

	fields := strings.Fields(output)
	if len(fields) != 2 {
		return 0, 0, fmt.Errorf("unexpected rev-list output: %q", output)
	}
	behind, err = strconv.Atoi(fields[0])
	if err != nil {
		return 0, 0, fmt.Errorf("parse rev-list output: %w", err)
	}
	ahead, err = strconv.Atoi(fields[1])
	if err != nil {
		return 0, 0, fmt.Errorf("parse rev-list output: %w", err)
	}
	return ahead, behind, nil
}
