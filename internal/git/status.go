package git

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// stateDirName is gyre's own state directory. It is always excluded from
// dirty checks so loop metadata churn never blocks a start or a finalize.
const stateDirName = ".gyre"

// Status returns the working tree status in porcelain format.
func (g *Git) Status() (string, error) {
	status, err := g.runGit("status", "--porcelain")
	if err != nil {
		return "", &GitError{Op: "status", Err: err}
	}
	return status, nil
}

// DirtyFiles returns the paths with uncommitted changes, excluding any that
// match the configured ignore globs. Untracked files count as dirty and are
// listed individually rather than collapsed to their directory.
func (g *Git) DirtyFiles() ([]string, error) {
	status, err := g.runGit("status", "--porcelain", "-uall")
	if err != nil {
		return nil, &GitError{Op: "status", Err: err}
	}
	if status == "" {
		return nil, nil
	}

	var files []string
	for _, line := range strings.Split(status, "\n") {
		path := statusLinePath(line)
		if path == "" || g.ignored(path) {
			continue
		}
		files = append(files, path)
	}
	return files, nil
}

// IsClean reports whether the working tree has no uncommitted changes
// outside the ignore globs.
func (g *Git) IsClean() (bool, error) {
	files, err := g.DirtyFiles()
	if err != nil {
		return false, err
	}
	return len(files) == 0, nil
}

// statusLinePath extracts the path from one `git status --porcelain` line.
// The two-character status code may be partially trimmed away on the first
// line of runner output, so the code is taken as everything before the
// first space rather than by position.
func statusLinePath(line string) string {
	line = strings.TrimRight(line, "\r")
	trimmed := strings.TrimLeft(line, " ")
	i := strings.IndexByte(trimmed, ' ')
	if i < 0 {
		return ""
	}
	path := strings.TrimLeft(trimmed[i+1:], " ")
	// Renames are reported as "old -> new"; the new path is what counts.
	if _, after, found := strings.Cut(path, " -> "); found {
		path = after
	}
	return strings.Trim(path, `"`)
}

func (g *Git) ignored(path string) bool {
	if path == stateDirName || strings.HasPrefix(path, stateDirName+"/") {
		return true
	}
	for _, glob := range g.ignore {
		if ok, err := doublestar.Match(glob, path); err == nil && ok {
			return true
		}
	}
	return false
}
