package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	gyreerrors "github.com/gyrelabs/gyre/internal/errors"
	"github.com/gyrelabs/gyre/internal/lifecycle"
	"github.com/gyrelabs/gyre/internal/loop"
)

// decodeBody decodes an optional JSON request body. An empty body leaves
// the target at its zero value.
func decodeBody(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// handleStartLoop starts a loop's run, or its planning turn in plan mode.
// The accepted transition is returned immediately; the agent runs in the
// background and progress streams over the WebSocket.
func (s *Server) handleStartLoop(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req struct {
		PlanMode   bool `json:"plan_mode,omitempty"`
		AllowDirty bool `json:"allow_dirty,omitempty"`
	}
	if err := decodeBody(r, &req); err != nil {
		JSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	l, err := s.machine.Start(id, lifecycle.StartOptions{
		PlanMode:   req.PlanMode,
		AllowDirty: req.AllowDirty,
	})
	if err != nil {
		HandleError(w, err)
		return
	}

	if l.Status == loop.StatusPlanning {
		s.startPlanRun(id)
	} else {
		s.startRun(id)
	}

	s.groups.Invalidate()
	JSONResponseStatus(w, l, http.StatusAccepted)
}

// handleStopLoop stops a loop. The status flips immediately; any
// in-flight agent turn is cancelled behind it. Stopping a conflicted
// sync session also aborts the pending git merge.
func (s *Server) handleStopLoop(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	current, err := s.machine.Get(id)
	if err != nil {
		HandleError(w, gyreerrors.ErrLoopNotFound(id))
		return
	}

	var l *loop.Loop
	if current.Status == loop.StatusResolvingConflicts && s.finalizer != nil {
		l, err = s.finalizer.Abort(id)
	} else {
		l, err = s.machine.Stop(id)
	}
	if err != nil {
		HandleError(w, err)
		return
	}

	s.cancelRun(id)
	s.groups.Invalidate()
	JSONResponse(w, l)
}

// handleSetPending queues a one-shot prompt/model override for the next
// iteration.
func (s *Server) handleSetPending(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req struct {
		Prompt *string `json:"prompt,omitempty"`
		Model  *string `json:"model,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		JSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Prompt == nil && req.Model == nil {
		JSONError(w, "prompt or model is required", http.StatusBadRequest)
		return
	}

	l, err := s.machine.SetPending(id, req.Prompt, req.Model)
	if err != nil {
		HandleError(w, err)
		return
	}
	JSONResponse(w, l)
}

// handleClearPending drops a queued override before it is consumed.
func (s *Server) handleClearPending(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	l, err := s.machine.ClearPending(id)
	if err != nil {
		HandleError(w, err)
		return
	}
	JSONResponse(w, l)
}

// handlePlanFeedback records reviewer feedback against a ready plan and
// sends the loop back to generate a revision.
func (s *Server) handlePlanFeedback(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		JSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Text == "" {
		JSONError(w, "text is required", http.StatusBadRequest)
		return
	}

	l, err := s.machine.SendPlanFeedback(id, req.Text)
	if err != nil {
		HandleError(w, err)
		return
	}

	s.startPlanRun(id)
	JSONResponseStatus(w, l, http.StatusAccepted)
}

// handleAcceptPlan approves the plan and promotes the loop into its run.
func (s *Server) handleAcceptPlan(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	l, err := s.machine.AcceptPlan(id)
	if err != nil {
		HandleError(w, err)
		return
	}

	s.startRun(id)
	s.groups.Invalidate()
	JSONResponseStatus(w, l, http.StatusAccepted)
}

// handleDiscardPlan abandons a planning loop. The record moves to deleted
// and becomes purge-eligible.
func (s *Server) handleDiscardPlan(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	l, err := s.machine.DiscardPlan(id)
	if err != nil {
		HandleError(w, err)
		return
	}

	s.cancelRun(id)
	s.groups.Invalidate()
	JSONResponse(w, l)
}
