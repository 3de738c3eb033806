package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	gyreerrors "github.com/gyrelabs/gyre/internal/errors"
	"github.com/gyrelabs/gyre/internal/executor"
	"github.com/gyrelabs/gyre/internal/lifecycle"
	"github.com/gyrelabs/gyre/internal/loop"
)

// handleListLoops returns all loops, optionally filtered by status or group.
func (s *Server) handleListLoops(w http.ResponseWriter, r *http.Request) {
	loops, err := s.machine.List()
	if err != nil {
		JSONError(w, "failed to load loops", http.StatusInternalServerError)
		return
	}

	// Ensure we return an empty array, not null
	if loops == nil {
		loops = []*loop.Loop{}
	}

	if status := r.URL.Query().Get("status"); status != "" {
		if !loop.IsValidStatus(loop.Status(status)) {
			JSONError(w, "invalid status: "+status, http.StatusBadRequest)
			return
		}
		filtered := make([]*loop.Loop, 0, len(loops))
		for _, l := range loops {
			if l.Status == loop.Status(status) {
				filtered = append(filtered, l)
			}
		}
		loops = filtered
	}

	if group := r.URL.Query().Get("group"); group != "" {
		filtered := make([]*loop.Loop, 0, len(loops))
		for _, l := range loops {
			if loop.GroupOf(l) == loop.Group(group) {
				filtered = append(filtered, l)
			}
		}
		loops = filtered
	}

	JSONResponse(w, loops)
}

// handleCreateLoop creates a new loop.
func (s *Server) handleCreateLoop(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name          string `json:"name"`
		Prompt        string `json:"prompt,omitempty"`
		Model         string `json:"model,omitempty"`
		BaseBranch    string `json:"base_branch,omitempty"`
		MaxIterations int    `json:"max_iterations,omitempty"`
		Draft         bool   `json:"draft,omitempty"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		JSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if req.Name == "" {
		JSONError(w, "name is required", http.StatusBadRequest)
		return
	}

	l, err := s.machine.Create(lifecycle.CreateRequest{
		Name:          req.Name,
		Prompt:        req.Prompt,
		Model:         req.Model,
		BaseBranch:    req.BaseBranch,
		MaxIterations: req.MaxIterations,
		Draft:         req.Draft,
	})
	if err != nil {
		HandleError(w, err)
		return
	}

	s.groups.Invalidate()
	JSONResponseStatus(w, l, http.StatusCreated)
}

// handleGetLoop returns a specific loop.
func (s *Server) handleGetLoop(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	l, err := s.machine.Get(id)
	if err != nil {
		HandleError(w, gyreerrors.ErrLoopNotFound(id))
		return
	}
	JSONResponse(w, l)
}

// handleUpdateLoop updates a draft's configuration.
func (s *Server) handleUpdateLoop(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req struct {
		Name          *string `json:"name,omitempty"`
		Prompt        *string `json:"prompt,omitempty"`
		Model         *string `json:"model,omitempty"`
		BaseBranch    *string `json:"base_branch,omitempty"`
		MaxIterations *int    `json:"max_iterations,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		JSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	l, err := s.machine.UpdateDraft(id, lifecycle.DraftUpdate{
		Name:          req.Name,
		Prompt:        req.Prompt,
		Model:         req.Model,
		BaseBranch:    req.BaseBranch,
		MaxIterations: req.MaxIterations,
	})
	if err != nil {
		HandleError(w, err)
		return
	}
	JSONResponse(w, l)
}

// handleDeleteLoop performs the logical delete. Loop files survive until
// an explicit purge.
func (s *Server) handleDeleteLoop(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if _, err := s.machine.Delete(id); err != nil {
		HandleError(w, err)
		return
	}

	s.groups.Invalidate()
	NoContent(w)
}

// handlePurgeLoop removes a deleted loop's files for good.
func (s *Server) handlePurgeLoop(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if err := s.machine.Purge(id); err != nil {
		HandleError(w, err)
		return
	}

	s.groups.Invalidate()
	NoContent(w)
}

// handleGetGroups returns loops partitioned into display groups.
func (s *Server) handleGetGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := s.groups.Groups()
	if err != nil {
		JSONError(w, "failed to load loops", http.StatusInternalServerError)
		return
	}
	JSONResponse(w, groups)
}

// handleGetPlan returns the generated plan document for a loop.
func (s *Server) handleGetPlan(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	l, err := s.machine.Get(id)
	if err != nil {
		HandleError(w, gyreerrors.ErrLoopNotFound(id))
		return
	}

	content, err := executor.ReadPlan(s.machine.Root(), id)
	if err != nil {
		JSONError(w, "failed to read plan", http.StatusInternalServerError)
		return
	}

	resp := map[string]any{
		"loop_id": id,
		"content": content,
	}
	if plan, ok := l.Planning(); ok {
		resp["plan"] = plan
	}
	JSONResponse(w, resp)
}

// handleListEvents returns a loop's persisted event history, newest first.
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if s.store == nil {
		JSONError(w, "event history requires the database mirror", http.StatusServiceUnavailable)
		return
	}

	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}

	rows, err := s.store.ListEvents(id, limit)
	if err != nil {
		JSONError(w, "failed to load events", http.StatusInternalServerError)
		return
	}
	JSONResponse(w, rows)
}
