package errors

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestGyreErrorFormat(t *testing.T) {
	tests := []struct {
		name     string
		err      *GyreError
		wantErr  string
		wantUser string
	}{
		{
			name:     "what only",
			err:      &GyreError{What: "something broke"},
			wantErr:  "something broke",
			wantUser: "Error: something broke",
		},
		{
			name:     "what and why",
			err:      &GyreError{What: "something broke", Why: "bad input"},
			wantErr:  "something broke: bad input",
			wantUser: "Error: something broke\n\nWhy: bad input",
		},
		{
			name: "full error",
			err: &GyreError{
				What: "something broke",
				Why:  "bad input",
				Fix:  "try again",
			},
			wantErr:  "something broke: bad input",
			wantUser: "Error: something broke\n\nWhy: bad input\n\nFix: try again",
		},
		{
			name: "with cause",
			err: &GyreError{
				What:  "something broke",
				Cause: errors.New("underlying error"),
			},
			wantErr:  "something broke: underlying error",
			wantUser: "Error: something broke",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantErr {
				t.Errorf("Error() = %q, want %q", got, tt.wantErr)
			}
			if got := tt.err.UserMessage(); got != tt.wantUser {
				t.Errorf("UserMessage() = %q, want %q", got, tt.wantUser)
			}
		})
	}
}

func TestGyreErrorJSON(t *testing.T) {
	err := &GyreError{
		Code:  CodeLoopNotFound,
		What:  "loop LOOP-001 not found",
		Why:   "No loop with this ID exists",
		Fix:   "Run 'gyre list' to see loops",
		Cause: errors.New("file not found"),
	}

	data, marshalErr := json.Marshal(err)
	if marshalErr != nil {
		t.Fatalf("MarshalJSON failed: %v", marshalErr)
	}

	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if result["code"] != string(CodeLoopNotFound) {
		t.Errorf("code = %v, want %v", result["code"], CodeLoopNotFound)
	}
	if result["what"] != "loop LOOP-001 not found" {
		t.Errorf("what = %v, want %v", result["what"], "loop LOOP-001 not found")
	}
	if result["cause"] != "file not found" {
		t.Errorf("cause = %v, want %v", result["cause"], "file not found")
	}
}

func TestErrLoopNotFoundError(t *testing.T) {
	err := ErrLoopNotFound("LOOP-123")

	if err.Code != CodeLoopNotFound {
		t.Errorf("Code = %v, want %v", err.Code, CodeLoopNotFound)
	}
	if err.What != "loop LOOP-123 not found" {
		t.Errorf("What = %v, want 'loop LOOP-123 not found'", err.What)
	}
	if err.Fix == "" {
		t.Error("Fix should not be empty")
	}
}

func TestErrLoopRunningError(t *testing.T) {
	err := ErrLoopRunning("LOOP-001")

	if err.Code != CodeLoopRunning {
		t.Errorf("Code = %v, want %v", err.Code, CodeLoopRunning)
	}
}

func TestErrAgentTimeoutError(t *testing.T) {
	err := ErrAgentTimeout(120)

	if err.Code != CodeAgentTimeout {
		t.Errorf("Code = %v, want %v", err.Code, CodeAgentTimeout)
	}
	if err.What != "agent produced no output for 120 seconds" {
		t.Errorf("What = %v, want timeout message", err.What)
	}
}

func TestErrErrorLoopTrippedError(t *testing.T) {
	err := ErrErrorLoopTripped(10)

	if err.Code != CodeErrorLoopTripped {
		t.Errorf("Code = %v, want %v", err.Code, CodeErrorLoopTripped)
	}
	if err.What != "the same error occurred 10 times in a row" {
		t.Errorf("What = %v, want streak message", err.What)
	}
}

func TestErrorCodeUniqueness(t *testing.T) {
	codes := []Code{
		CodeNotInitialized,
		CodeAlreadyInitialized,
		CodeLoopNotFound,
		CodeLoopRunning,
		CodeTransitionRejected,
		CodeUncommittedChanges,
		CodeAgentUnavailable,
		CodeAgentTimeout,
		CodeErrorLoopTripped,
		CodeConfigInvalid,
		CodeConfigMissing,
		CodeGitBranchExists,
		CodeGitMergeConflict,
	}

	seen := make(map[Code]bool)
	for _, code := range codes {
		if seen[code] {
			t.Errorf("duplicate error code: %s", code)
		}
		seen[code] = true
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err        *GyreError
		wantStatus int
	}{
		{ErrNotInitialized(), 400},
		{ErrAlreadyInitialized("/path"), 409},
		{ErrLoopNotFound("X"), 404},
		{ErrLoopRunning("X"), 409},
		{ErrAgentUnavailable("claude", nil), 503},
		{ErrAgentTimeout(60), 504},
		{ErrErrorLoopTripped(10), 500},
		{ErrConfigInvalid("x", nil), 400},
		{ErrGitBranchExists("x"), 409},
		{ErrGitMergeConflict("x", nil), 409},
	}

	for _, tt := range tests {
		t.Run(string(tt.err.Code), func(t *testing.T) {
			if got := tt.err.HTTPStatus(); got != tt.wantStatus {
				t.Errorf("HTTPStatus() = %d, want %d", got, tt.wantStatus)
			}
		})
	}
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("underlying error")
	err := ErrLoopNotFound("X").WithCause(cause)

	if errors.Unwrap(err) != cause {
		t.Error("Unwrap should return the cause")
	}
}

func TestWithCause(t *testing.T) {
	original := ErrLoopNotFound("LOOP-001")
	cause := errors.New("file not found")
	wrapped := original.WithCause(cause)

	if wrapped.Cause != cause {
		t.Error("WithCause should set the cause")
	}
	if original.Cause != nil {
		t.Error("Original should not be modified")
	}
	if wrapped.Code != original.Code {
		t.Error("Code should be copied")
	}
	if wrapped.What != original.What {
		t.Error("What should be copied")
	}
}

func TestIs(t *testing.T) {
	err1 := ErrLoopNotFound("LOOP-001")
	err2 := ErrLoopNotFound("LOOP-002")
	err3 := ErrLoopRunning("LOOP-001")

	if !errors.Is(err1, err2) {
		t.Error("errors with same code should match with Is")
	}
	if errors.Is(err1, err3) {
		t.Error("errors with different codes should not match")
	}
}

func TestAsGyreError(t *testing.T) {
	gyreErr := ErrLoopNotFound("X")

	result := AsGyreError(gyreErr)
	if result == nil {
		t.Error("AsGyreError should return the error")
	}

	wrapped := gyreErr.WithCause(errors.New("cause"))
	result = AsGyreError(wrapped)
	if result == nil {
		t.Error("AsGyreError should return wrapped GyreError")
	}

	result = AsGyreError(errors.New("regular error"))
	if result != nil {
		t.Error("AsGyreError should return nil for non-GyreError")
	}

	result = AsGyreError(nil)
	if result != nil {
		t.Error("AsGyreError should return nil for nil error")
	}
}

func TestWrap(t *testing.T) {
	cause := errors.New("underlying")
	err := Wrap(cause, "operation failed")

	if err.What != "operation failed" {
		t.Errorf("What = %v, want 'operation failed'", err.What)
	}
	if err.Cause != cause {
		t.Error("Cause should be set")
	}
	if err.Code != Code("UNKNOWN") {
		t.Errorf("Code = %v, want UNKNOWN", err.Code)
	}
}
