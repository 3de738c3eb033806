package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	gyreerrors "github.com/gyrelabs/gyre/internal/errors"
)

func decodeAPIError(t *testing.T, rr *httptest.ResponseRecorder) APIError {
	t.Helper()
	var apiErr APIError
	if err := json.NewDecoder(rr.Body).Decode(&apiErr); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return apiErr
}

func TestHandleError_TransitionRejected(t *testing.T) {
	t.Parallel()

	rr := httptest.NewRecorder()
	HandleError(rr, gyreerrors.RejectTransition("LOOP-001", "start", "running"))

	if rr.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", rr.Code)
	}
	apiErr := decodeAPIError(t, rr)
	if apiErr.Code != "transition_rejected" {
		t.Errorf("expected transition_rejected, got %q", apiErr.Code)
	}
}

func TestHandleError_UncommittedChanges(t *testing.T) {
	t.Parallel()

	rr := httptest.NewRecorder()
	HandleError(rr, gyreerrors.ErrUncommittedChanges([]string{"main.go", "go.mod"}))

	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rr.Code)
	}
	apiErr := decodeAPIError(t, rr)
	if apiErr.Code != "uncommitted_changes" {
		t.Errorf("expected uncommitted_changes, got %q", apiErr.Code)
	}
	details, ok := apiErr.Details.(map[string]any)
	if !ok {
		t.Fatalf("expected details map, got %T", apiErr.Details)
	}
	files, ok := details["changed_files"].([]any)
	if !ok || len(files) != 2 {
		t.Errorf("expected 2 changed files, got %v", details["changed_files"])
	}
}

func TestHandleError_StructuredError(t *testing.T) {
	t.Parallel()

	rr := httptest.NewRecorder()
	HandleError(rr, gyreerrors.ErrLoopNotFound("LOOP-404"))

	if rr.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rr.Code)
	}
}

func TestHandleError_UnknownErrorFallsBack(t *testing.T) {
	t.Parallel()

	rr := httptest.NewRecorder()
	HandleError(rr, errors.New("boom"))

	if rr.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rr.Code)
	}
	apiErr := decodeAPIError(t, rr)
	if apiErr.Error != "boom" {
		t.Errorf("expected raw message, got %q", apiErr.Error)
	}
}

func TestNoContent(t *testing.T) {
	t.Parallel()

	rr := httptest.NewRecorder()
	NoContent(rr)

	if rr.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rr.Code)
	}
}
