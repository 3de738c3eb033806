// Package errors provides structured error types for gyre.
package errors

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Code represents a unique error code.
type Code string

// Error codes for gyre.
const (
	// Initialization errors
	CodeNotInitialized     Code = "GYRE_NOT_INITIALIZED"
	CodeAlreadyInitialized Code = "GYRE_ALREADY_INITIALIZED"

	// Loop errors
	CodeLoopNotFound       Code = "LOOP_NOT_FOUND"
	CodeLoopRunning        Code = "LOOP_RUNNING"
	CodeTransitionRejected Code = "TRANSITION_REJECTED"
	CodeUncommittedChanges Code = "UNCOMMITTED_CHANGES"

	// Agent errors
	CodeAgentUnavailable Code = "AGENT_UNAVAILABLE"
	CodeAgentTimeout     Code = "AGENT_TIMEOUT"
	CodeErrorLoopTripped Code = "ERROR_LOOP_TRIPPED"

	// Config errors
	CodeConfigInvalid Code = "CONFIG_INVALID"
	CodeConfigMissing Code = "CONFIG_MISSING"

	// Git errors
	CodeGitBranchExists  Code = "GIT_BRANCH_EXISTS"
	CodeGitMergeConflict Code = "GIT_MERGE_CONFLICT"
)

// Category groups error codes for HTTP status mapping.
type Category int

const (
	CategoryUnknown Category = iota
	CategoryNotFound
	CategoryBadRequest
	CategoryConflict
	CategoryInternal
	CategoryTimeout
	CategoryUnavailable
)

// codeCategories maps error codes to their categories.
var codeCategories = map[Code]Category{
	CodeNotInitialized:     CategoryBadRequest,
	CodeAlreadyInitialized: CategoryConflict,
	CodeLoopNotFound:       CategoryNotFound,
	CodeLoopRunning:        CategoryConflict,
	CodeTransitionRejected: CategoryConflict,
	CodeUncommittedChanges: CategoryBadRequest,
	CodeAgentUnavailable:   CategoryUnavailable,
	CodeAgentTimeout:       CategoryTimeout,
	CodeErrorLoopTripped:   CategoryInternal,
	CodeConfigInvalid:      CategoryBadRequest,
	CodeConfigMissing:      CategoryBadRequest,
	CodeGitBranchExists:    CategoryConflict,
	CodeGitMergeConflict:   CategoryConflict,
}

// HTTPStatus returns the HTTP status code for a category.
func (c Category) HTTPStatus() int {
	switch c {
	case CategoryNotFound:
		return 404
	case CategoryBadRequest:
		return 400
	case CategoryConflict:
		return 409
	case CategoryTimeout:
		return 504
	case CategoryUnavailable:
		return 503
	default:
		return 500
	}
}

// GyreError is the structured error type for gyre.
type GyreError struct {
	Code  Code   `json:"code"`
	What  string `json:"what"`
	Why   string `json:"why,omitempty"`
	Fix   string `json:"fix,omitempty"`
	Cause error  `json:"-"`
}

// Error implements the error interface.
func (e *GyreError) Error() string {
	var b strings.Builder
	b.WriteString(e.What)
	if e.Why != "" {
		b.WriteString(": ")
		b.WriteString(e.Why)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *GyreError) Unwrap() error {
	return e.Cause
}

// UserMessage returns a user-friendly message for CLI output.
func (e *GyreError) UserMessage() string {
	var b strings.Builder
	b.WriteString("Error: ")
	b.WriteString(e.What)
	if e.Why != "" {
		b.WriteString("\n\nWhy: ")
		b.WriteString(e.Why)
	}
	if e.Fix != "" {
		b.WriteString("\n\nFix: ")
		b.WriteString(e.Fix)
	}
	return b.String()
}

// Category returns the error category for HTTP status mapping.
func (e *GyreError) Category() Category {
	if cat, ok := codeCategories[e.Code]; ok {
		return cat
	}
	return CategoryUnknown
}

// HTTPStatus returns the appropriate HTTP status code for this error.
func (e *GyreError) HTTPStatus() int {
	return e.Category().HTTPStatus()
}

// MarshalJSON implements json.Marshaler.
func (e *GyreError) MarshalJSON() ([]byte, error) {
	type alias GyreError
	aux := struct {
		*alias
		CauseMsg string `json:"cause,omitempty"`
	}{
		alias: (*alias)(e),
	}
	if e.Cause != nil {
		aux.CauseMsg = e.Cause.Error()
	}
	return json.Marshal(aux)
}

// Is reports whether target is a GyreError with the same code.
func (e *GyreError) Is(target error) bool {
	t, ok := target.(*GyreError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithCause returns a copy of the error with the given cause.
func (e *GyreError) WithCause(err error) *GyreError {
	return &GyreError{
		Code:  e.Code,
		What:  e.What,
		Why:   e.Why,
		Fix:   e.Fix,
		Cause: err,
	}
}

// --- Error constructors ---

// ErrNotInitialized returns an error for an uninitialized gyre directory.
func ErrNotInitialized() *GyreError {
	return &GyreError{
		Code: CodeNotInitialized,
		What: "gyre is not initialized in this directory",
		Why:  "No .gyre/ directory found in the current path or its parents",
		Fix:  "Run 'gyre init' to initialize gyre in this directory",
	}
}

// ErrAlreadyInitialized returns an error when gyre is already initialized.
func ErrAlreadyInitialized(path string) *GyreError {
	return &GyreError{
		Code: CodeAlreadyInitialized,
		What: "gyre is already initialized",
		Why:  fmt.Sprintf("Found existing .gyre/ directory at %s", path),
		Fix:  "Use 'gyre init --force' to reinitialize, or remove .gyre/ manually",
	}
}

// ErrLoopNotFound returns an error when a loop doesn't exist.
func ErrLoopNotFound(id string) *GyreError {
	return &GyreError{
		Code: CodeLoopNotFound,
		What: fmt.Sprintf("loop %s not found", id),
		Why:  "No loop with this ID exists in the current project",
		Fix:  "Run 'gyre list' to see available loops, or create one with 'gyre new'",
	}
}

// ErrLoopRunning returns an error when a loop is already running.
func ErrLoopRunning(id string) *GyreError {
	return &GyreError{
		Code: CodeLoopRunning,
		What: fmt.Sprintf("loop %s is already running", id),
		Why:  "Cannot start a loop that is already in progress",
		Fix:  fmt.Sprintf("Use 'gyre stop %s' to stop it, or wait for completion", id),
	}
}

// ErrAgentUnavailable returns an error when the agent CLI is not accessible.
func ErrAgentUnavailable(agent string, cause error) *GyreError {
	return &GyreError{
		Code:  CodeAgentUnavailable,
		What:  fmt.Sprintf("agent command %q is not available", agent),
		Why:   "The agent binary was not found or failed to start",
		Fix:   "Check that the agent CLI is installed and on your PATH",
		Cause: cause,
	}
}

// ErrAgentTimeout returns an error when an iteration produced no activity
// for too long.
func ErrAgentTimeout(seconds int) *GyreError {
	return &GyreError{
		Code: CodeAgentTimeout,
		What: fmt.Sprintf("agent produced no output for %d seconds", seconds),
		Why:  "The activity timeout elapsed with no agent output",
		Fix:  "Raise activity_timeout_seconds in .gyre/config.yaml or check agent connectivity",
	}
}

// ErrErrorLoopTripped returns an error when identical failures repeat past
// the ceiling.
func ErrErrorLoopTripped(count int) *GyreError {
	return &GyreError{
		Code: CodeErrorLoopTripped,
		What: fmt.Sprintf("the same error occurred %d times in a row", count),
		Why:  "The agent is stuck repeating an identical failure",
		Fix:  "Inspect the loop's last error, fix the underlying problem, then restart",
	}
}

// ErrConfigInvalid returns an error for invalid configuration.
func ErrConfigInvalid(why string, cause error) *GyreError {
	return &GyreError{
		Code:  CodeConfigInvalid,
		What:  "configuration is invalid",
		Why:   why,
		Fix:   "Fix .gyre/config.yaml and try again",
		Cause: cause,
	}
}

// ErrGitBranchExists returns an error when a branch already exists.
func ErrGitBranchExists(branch string) *GyreError {
	return &GyreError{
		Code: CodeGitBranchExists,
		What: fmt.Sprintf("branch %s already exists", branch),
		Why:  "A previous run may have left this branch behind",
		Fix:  fmt.Sprintf("Delete the branch with 'git branch -D %s' or pick another loop name", branch),
	}
}

// ErrGitMergeConflict returns an error when a merge stops on conflicts.
func ErrGitMergeConflict(branch string, files []string) *GyreError {
	return &GyreError{
		Code: CodeGitMergeConflict,
		What: fmt.Sprintf("merging %s produced conflicts", branch),
		Why:  fmt.Sprintf("%d file(s) conflict", len(files)),
		Fix:  "Resolve the conflicts, then finish the conflict-resolution run",
	}
}

// AsGyreError attempts to convert an error to a GyreError.
// Returns nil if the error is not a GyreError.
func AsGyreError(err error) *GyreError {
	var gyreErr *GyreError
	if As(err, &gyreErr) {
		return gyreErr
	}
	return nil
}

// As is a convenience wrapper for errors.As.
func As(err error, target any) bool {
	return asError(err, target)
}

// asError implements errors.As behavior.
func asError(err error, target any) bool {
	if err == nil {
		return false
	}
	if gyreErr, ok := err.(*GyreError); ok {
		if t, ok := target.(**GyreError); ok {
			*t = gyreErr
			return true
		}
	}
	// Check unwrapped error
	if unwrapper, ok := err.(interface{ Unwrap() error }); ok {
		return asError(unwrapper.Unwrap(), target)
	}
	return false
}

// Wrap wraps a generic error into a GyreError with unknown code.
func Wrap(err error, what string) *GyreError {
	return &GyreError{
		Code:  Code("UNKNOWN"),
		What:  what,
		Cause: err,
	}
}
