package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	gyreerrors "github.com/gyrelabs/gyre/internal/errors"
	"github.com/gyrelabs/gyre/internal/loop"
	"github.com/gyrelabs/gyre/internal/store"
)

// handleAcceptLoop accepts a finished loop and opens the merge-path sync
// session. The sync itself runs in the background.
func (s *Server) handleAcceptLoop(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req struct {
		AutoPush bool `json:"auto_push,omitempty"`
	}
	if err := decodeBody(r, &req); err != nil {
		JSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	l, err := s.machine.Accept(id, req.AutoPush)
	if err != nil {
		HandleError(w, err)
		return
	}

	s.startFinalize(id)
	s.groups.Invalidate()
	JSONResponseStatus(w, l, http.StatusAccepted)
}

// handlePushLoop opens the push-path sync session for a finished loop.
func (s *Server) handlePushLoop(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	l, err := s.machine.Push(id)
	if err != nil {
		HandleError(w, err)
		return
	}

	s.startFinalize(id)
	s.groups.Invalidate()
	JSONResponseStatus(w, l, http.StatusAccepted)
}

// handleUpdateBranch refreshes a pushed loop's branch against its base.
func (s *Server) handleUpdateBranch(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	l, err := s.machine.UpdateBranch(id)
	if err != nil {
		HandleError(w, err)
		return
	}

	s.startFinalize(id)
	s.groups.Invalidate()
	JSONResponseStatus(w, l, http.StatusAccepted)
}

// handleMarkMerged records that a pushed loop's PR merged externally. With
// a sync engine configured this also pulls the base branch and deletes the
// working branch.
func (s *Server) handleMarkMerged(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var l *loop.Loop
	var err error
	if s.finalizer != nil {
		l, err = s.finalizer.Resync(r.Context(), id)
	} else {
		l, err = s.machine.MarkMerged(id)
	}
	if err != nil {
		HandleError(w, err)
		return
	}

	s.groups.Invalidate()
	JSONResponse(w, l)
}

// handleResolveConflicts resumes a conflicted sync session. The resolution
// (agent-assisted when an agent is wired) runs in the background.
func (s *Server) handleResolveConflicts(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if s.finalizer == nil {
		JSONError(w, "sync engine not configured", http.StatusServiceUnavailable)
		return
	}

	l, err := s.machine.Get(id)
	if err != nil {
		HandleError(w, gyreerrors.ErrLoopNotFound(id))
		return
	}
	sync, ok := l.Syncing()
	if !ok || !sync.InConflict() {
		HandleError(w, gyreerrors.RejectTransition(id, "resolveConflicts", string(l.Status)))
		return
	}

	go func() {
		defer s.groups.Invalidate()
		if _, err := s.finalizer.ResolveConflicts(context.Background(), id); err != nil {
			s.logger.Error("conflict resolution failed", "loop", id, "error", err)
		}
	}()

	JSONResponseStatus(w, map[string]any{
		"loop_id": id,
		"status":  "resolving",
	}, http.StatusAccepted)
}

// handleListComments returns a loop's review comments, optionally filtered
// by status or cycle.
func (s *Server) handleListComments(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if s.reviews == nil {
		JSONError(w, "review comments require the database mirror", http.StatusServiceUnavailable)
		return
	}

	if v := r.URL.Query().Get("cycle"); v != "" {
		cycle, err := strconv.Atoi(v)
		if err != nil || cycle < 1 {
			JSONError(w, "invalid cycle: "+v, http.StatusBadRequest)
			return
		}
		comments, err := s.reviews.ListCycle(id, cycle)
		if err != nil {
			JSONError(w, "failed to load comments", http.StatusInternalServerError)
			return
		}
		JSONResponse(w, comments)
		return
	}

	status := store.CommentStatus(r.URL.Query().Get("status"))
	comments, err := s.reviews.List(id, status)
	if err != nil {
		JSONError(w, "failed to load comments", http.StatusInternalServerError)
		return
	}
	JSONResponse(w, comments)
}

// handleAddressComments records reviewer feedback against a finalized loop
// and opens a review cycle. The revived run starts in the background.
func (s *Server) handleAddressComments(w http.ResponseWriter, r *http.Request) {
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

	if s.finalizer != nil {
		l, err := s.finalizer.OpenReviewCycle(id, req.Text)
		if err != nil {
			HandleError(w, err)
			return
		}
		s.startRun(id)
		s.groups.Invalidate()
		JSONResponseStatus(w, l, http.StatusAccepted)
		return
	}

	l, branch, err := s.machine.AddressComments(id, req.Text)
	if err != nil {
		HandleError(w, err)
		return
	}
	if branch != "" {
		if l2, err := s.machine.ConfirmReviewBranch(id, branch); err == nil {
			l = l2
		}
	}
	s.startRun(id)
	s.groups.Invalidate()
	JSONResponseStatus(w, l, http.StatusAccepted)
}

// handleCommentStats summarizes a loop's comment log.
func (s *Server) handleCommentStats(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if s.reviews == nil {
		JSONError(w, "review comments require the database mirror", http.StatusServiceUnavailable)
		return
	}

	stats, err := s.reviews.GetStats(id)
	if err != nil {
		JSONError(w, "failed to load comment stats", http.StatusInternalServerError)
		return
	}
	JSONResponse(w, stats)
}
