package errors

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestTransitionError(t *testing.T) {
	err := RejectTransition("LOOP-001", "accept", "running")

	msg := err.Error()
	if !strings.Contains(msg, "LOOP-001") || !strings.Contains(msg, "accept") || !strings.Contains(msg, "running") {
		t.Errorf("Error() = %q, want loop, action and status mentioned", msg)
	}
	if err.HTTPStatus() != 409 {
		t.Errorf("HTTPStatus() = %d, want 409", err.HTTPStatus())
	}
}

func TestUncommittedChangesError(t *testing.T) {
	err := ErrUncommittedChanges([]string{"main.go", "go.sum"})

	if !strings.Contains(err.Message, "2 uncommitted change(s)") {
		t.Errorf("Message = %q, want count of changes", err.Message)
	}
	if len(err.ChangedFiles) != 2 {
		t.Errorf("ChangedFiles = %v, want 2 paths", err.ChangedFiles)
	}
	if err.Error() != err.Message {
		t.Errorf("Error() = %q, want %q", err.Error(), err.Message)
	}
	if err.HTTPStatus() != 400 {
		t.Errorf("HTTPStatus() = %d, want 400", err.HTTPStatus())
	}

	data, jsonErr := json.Marshal(err)
	if jsonErr != nil {
		t.Fatalf("Marshal failed: %v", jsonErr)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if _, ok := decoded["changed_files"]; !ok {
		t.Error("JSON should carry changed_files")
	}
}
