package errors

import (
	"fmt"
)

// TransitionError is returned when an action is not legal for the loop's
// current status. The loop record is left exactly as it was.
type TransitionError struct {
	LoopID string `json:"loop_id"`
	Action string `json:"action"`
	Status string `json:"status"`
}

// Error implements the error interface.
func (e *TransitionError) Error() string {
	return fmt.Sprintf("loop %s: action %q is not allowed in status %q", e.LoopID, e.Action, e.Status)
}

// HTTPStatus maps rejected transitions to 409.
func (e *TransitionError) HTTPStatus() int {
	return CategoryConflict.HTTPStatus()
}

// RejectTransition builds a TransitionError for the given action attempt.
func RejectTransition(loopID, action, status string) *TransitionError {
	return &TransitionError{LoopID: loopID, Action: action, Status: status}
}

// UncommittedChangesError is returned when a start is refused because the
// working tree is dirty. It lists the offending paths so callers can show
// them, and implies no status change happened.
type UncommittedChangesError struct {
	Message      string   `json:"message"`
	ChangedFiles []string `json:"changed_files"`
}

// Error implements the error interface.
func (e *UncommittedChangesError) Error() string {
	return e.Message
}

// HTTPStatus maps dirty-tree refusals to 400.
func (e *UncommittedChangesError) HTTPStatus() int {
	return CategoryBadRequest.HTTPStatus()
}

// ErrUncommittedChanges builds the dirty-tree refusal for the given paths.
func ErrUncommittedChanges(files []string) *UncommittedChangesError {
	return &UncommittedChangesError{
		Message:      fmt.Sprintf("working tree has %d uncommitted change(s); commit or stash them before starting", len(files)),
		ChangedFiles: files,
	}
}
