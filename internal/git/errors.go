package git

import "errors"

// Sentinel errors callers can test with errors.Is.
var (
	// ErrNotGitRepo indicates the path is not a git repository.
	ErrNotGitRepo = errors.New("not a git repository")

	// ErrBranchExists indicates the branch already exists.
	ErrBranchExists = errors.New("branch already exists")

	// ErrBranchNotFound indicates the branch does not exist.
	ErrBranchNotFound = errors.New("branch not found")

	// ErrNothingToCommit indicates there are no changes to commit.
	ErrNothingToCommit = errors.New("nothing to commit")

	// ErrMergeConflict indicates a merge or pull stopped on conflicts.
	// The conflicted paths are available via ConflictedFiles.
	ErrMergeConflict = errors.New("merge conflict")
)

// GitError wraps a git command failure with the operation that ran it.
// Named GitError (not Error) to avoid collision with the builtin error interface.
type GitError struct {
	Op     string // operation that failed (e.g. "merge", "push")
	Output string // combined stdout/stderr output
	Err    error  // underlying error
}

func (e *GitError) Error() string {
	if e.Output != "" {
		return e.Op + ": " + e.Output
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *GitError) Unwrap() error {
	return e.Err
}
