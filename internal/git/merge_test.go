package git

import (
	"errors"
	"testing"
)

// setupDivergedBranches returns a repo where branch gyre/LOOP-010 and the
// base branch both modified README.md, so merging one into the other
// conflicts.
func setupDivergedBranches(t *testing.T) (*Git, string) {
	t.Helper()
	tmpDir := setupTestRepo(t)
	g, err := New(tmpDir)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	base, _ := g.CurrentBranch()

	if err := g.CreateBranch("gyre/LOOP-010"); err != nil {
		t.Fatalf("CreateBranch() failed: %v", err)
	}
	if err := g.Checkout("gyre/LOOP-010"); err != nil {
		t.Fatalf("Checkout() failed: %v", err)
	}
	commitFile(t, tmpDir, "README.md", "# Loop edit\n", "Loop edit")

	if err := g.Checkout(base); err != nil {
		t.Fatalf("Checkout(base) failed: %v", err)
	}
	commitFile(t, tmpDir, "README.md", "# Base edit\n", "Base edit")

	if err := g.Checkout("gyre/LOOP-010"); err != nil {
		t.Fatalf("Checkout(loop) failed: %v", err)
	}

	return g, base
}

func TestMerge_Clean(t *testing.T) {
	tmpDir := setupTestRepo(t)
	g, _ := New(tmpDir)

	base, _ := g.CurrentBranch()

	if err := g.CreateBranch("gyre/LOOP-011"); err != nil {
		t.Fatalf("CreateBranch() failed: %v", err)
	}
	if err := g.Checkout("gyre/LOOP-011"); err != nil {
		t.Fatalf("Checkout() failed: %v", err)
	}
	commitFile(t, tmpDir, "feature.txt", "feature\n", "Add feature")

	if err := g.Checkout(base); err != nil {
		t.Fatalf("Checkout(base) failed: %v", err)
	}
	if err := g.Merge("gyre/LOOP-011", true); err != nil {
		t.Fatalf("Merge() failed: %v", err)
	}

	clean, _ := g.IsClean()
	if !clean {
		t.Error("worktree dirty after clean merge")
	}
}

func TestMerge_Conflict(t *testing.T) {
	g, base := setupDivergedBranches(t)

	err := g.Merge(base, false)
	if !errors.Is(err, ErrMergeConflict) {
		t.Fatalf("Merge() error = %v, want ErrMergeConflict", err)
	}

	inProgress, err := g.MergeInProgress()
	if err != nil {
		t.Fatalf("MergeInProgress() failed: %v", err)
	}
	if !inProgress {
		t.Error("MergeInProgress() = false during conflicted merge")
	}

	files, err := g.ConflictedFiles()
	if err != nil {
		t.Fatalf("ConflictedFiles() failed: %v", err)
	}
	if len(files) != 1 || files[0] != "README.md" {
		t.Errorf("ConflictedFiles() = %v, want [README.md]", files)
	}

	if err := g.MergeAbort(); err != nil {
		t.Fatalf("MergeAbort() failed: %v", err)
	}

	inProgress, _ = g.MergeInProgress()
	if inProgress {
		t.Error("MergeInProgress() = true after abort")
	}
	clean, _ := g.IsClean()
	if !clean {
		t.Error("worktree dirty after abort")
	}
}

func TestMergeInProgress_NoMerge(t *testing.T) {
	tmpDir := setupTestRepo(t)
	g, _ := New(tmpDir)

	inProgress, err := g.MergeInProgress()
	if err != nil {
		t.Fatalf("MergeInProgress() failed: %v", err)
	}
	if inProgress {
		t.Error("MergeInProgress() = true with no merge underway")
	}
}

func TestConflictedFiles_NoConflicts(t *testing.T) {
	tmpDir := setupTestRepo(t)
	g, _ := New(tmpDir)

	files, err := g.ConflictedFiles()
	if err != nil {
		t.Fatalf("ConflictedFiles() failed: %v", err)
	}
	if len(files) != 0 {
		t.Errorf("ConflictedFiles() = %v, want none", files)
	}
}
