package api

import (
	"encoding/json"
	"errors"
	"net/http"

	gyreerrors "github.com/gyrelabs/gyre/internal/errors"
)

// APIError is the standard error response format.
type APIError struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// JSONResponse writes a successful JSON response.
func JSONResponse(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(data)
}

// JSONError writes a simple error response.
func JSONError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(APIError{Error: message})
}

// HandleError inspects error type and writes the appropriate response.
// Rejected transitions map to 409, dirty-tree refusals to 400, structured
// errors to their category status, everything else to 500.
func HandleError(w http.ResponseWriter, err error) {
	var tErr *gyreerrors.TransitionError
	if errors.As(err, &tErr) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(tErr.HTTPStatus())
		_ = json.NewEncoder(w).Encode(APIError{
			Error: tErr.Error(),
			Code:  "transition_rejected",
			Details: map[string]string{
				"loop_id": tErr.LoopID,
				"action":  tErr.Action,
				"status":  tErr.Status,
			},
		})
		return
	}

	var dErr *gyreerrors.UncommittedChangesError
	if errors.As(err, &dErr) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(dErr.HTTPStatus())
		_ = json.NewEncoder(w).Encode(APIError{
			Error:   dErr.Error(),
			Code:    "uncommitted_changes",
			Details: map[string]any{"changed_files": dErr.ChangedFiles},
		})
		return
	}

	var gErr *gyreerrors.GyreError
	if errors.As(err, &gErr) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(gErr.HTTPStatus())
		_ = json.NewEncoder(w).Encode(APIError{
			Error: gErr.What,
			Code:  string(gErr.Code),
		})
		return
	}

	// Fallback for unknown errors
	JSONError(w, err.Error(), http.StatusInternalServerError)
}

// JSONResponseStatus writes a JSON response with a specific status code.
func JSONResponseStatus(w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// NoContent writes a 204 No Content response.
func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}
