package cli

// NOTE: Tests in this file use os.Chdir() which is process-wide and not goroutine-safe.
// These tests MUST NOT use t.Parallel() and run sequentially within this package.

import (
	"bytes"
	"strings"
	"testing"

	"github.com/gyrelabs/gyre/internal/lifecycle"
	"github.com/gyrelabs/gyre/internal/loop"
)

func TestEditCmd_UpdatesDraft(t *testing.T) {
	withProjectDir(t, true)

	svc, err := openServices(nil)
	if err != nil {
		t.Fatalf("openServices: %v", err)
	}
	created, err := svc.machine.Create(lifecycle.CreateRequest{
		Name:   "Old name",
		Prompt: "old prompt",
		Draft:  true,
	})
	if err != nil {
		t.Fatalf("create draft: %v", err)
	}
	svc.Close()

	cmd := newEditCmd()
	cmd.SetArgs([]string{created.ID, "--name", "New name", "-n", "5"})
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	if err := cmd.Execute(); err != nil {
		t.Fatalf("edit failed: %v", err)
	}

	// Re-open to read the persisted record
	svc, err = openServices(nil)
	if err != nil {
		t.Fatalf("reopen services: %v", err)
	}
	defer svc.Close()

	l, err := svc.machine.Get(created.ID)
	if err != nil {
		t.Fatalf("get loop: %v", err)
	}
	if l.Name != "New name" {
		t.Errorf("Name = %q, want %q", l.Name, "New name")
	}
	if l.MaxIterations != 5 {
		t.Errorf("MaxIterations = %d, want 5", l.MaxIterations)
	}
	if l.Prompt != "old prompt" {
		t.Errorf("Prompt changed without a flag: %q", l.Prompt)
	}
	if l.Status != loop.StatusDraft {
		t.Errorf("Status = %s, want draft", l.Status)
	}
}

func TestEditCmd_RejectsNonDraft(t *testing.T) {
	withProjectDir(t, true)

	svc, err := openServices(nil)
	if err != nil {
		t.Fatalf("openServices: %v", err)
	}
	created, err := svc.machine.Create(lifecycle.CreateRequest{
		Name:   "Ready loop",
		Prompt: "p",
	})
	if err != nil {
		t.Fatalf("create loop: %v", err)
	}
	svc.Close()

	cmd := newEditCmd()
	cmd.SetArgs([]string{created.ID, "--name", "Nope"})
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)

	err = cmd.Execute()
	if err == nil {
		t.Fatal("editing a non-draft loop succeeded")
	}
	if !strings.Contains(err.Error(), "updateDraft") {
		t.Errorf("error does not name the rejected action: %v", err)
	}
}
