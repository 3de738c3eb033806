// Package review exposes the reviewer-feedback comment log.
//
// Comments are written by the lifecycle machine when a review cycle opens
// and flipped to addressed when the cycle finalizes; this package is the
// query side used by the CLI and API.
package review

import (
	"fmt"
	"log/slog"

	"github.com/gyrelabs/gyre/internal/store"
)

// Service reads the review comment log for display and summary.
type Service struct {
	store  *store.Store
	logger *slog.Logger
}

// NewService creates a review service over the given store.
func NewService(st *store.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: st, logger: logger}
}

// Get returns one comment by ID, or nil if absent.
func (s *Service) Get(id string) (*store.ReviewComment, error) {
	return s.store.GetReviewComment(id)
}

// List returns a loop's comments, newest cycle first. Pass an empty
// status to list all.
func (s *Service) List(loopID string, status store.CommentStatus) ([]store.ReviewComment, error) {
	comments, err := s.store.ListReviewComments(loopID, status)
	if err != nil {
		return nil, fmt.Errorf("list comments for %s: %w", loopID, err)
	}
	if comments == nil {
		comments = []store.ReviewComment{}
	}
	return comments, nil
}

// ListCycle returns the comments logged against one review cycle.
func (s *Service) ListCycle(loopID string, cycle int) ([]store.ReviewComment, error) {
	return s.store.ListReviewCommentsByCycle(loopID, cycle)
}

// Pending returns the comments not yet addressed by a finalized cycle.
func (s *Service) Pending(loopID string) ([]store.ReviewComment, error) {
	return s.List(loopID, store.CommentPending)
}

// Stats summarizes a loop's comment log.
type Stats struct {
	LoopID      string `json:"loop_id"`
	Total       int    `json:"total_comments"`
	Pending     int    `json:"pending_comments"`
	Addressed   int    `json:"addressed_comments"`
	LatestCycle int    `json:"latest_cycle"`
}

// GetStats aggregates comment counts for a loop.
func (s *Service) GetStats(loopID string) (*Stats, error) {
	all, err := s.store.ListReviewComments(loopID, "")
	if err != nil {
		return nil, fmt.Errorf("list comments for %s: %w", loopID, err)
	}
	pending, err := s.store.CountPendingComments(loopID)
	if err != nil {
		return nil, fmt.Errorf("count pending for %s: %w", loopID, err)
	}
	latest, err := s.store.LatestReviewCycle(loopID)
	if err != nil {
		return nil, fmt.Errorf("latest cycle for %s: %w", loopID, err)
	}
	return &Stats{
		LoopID:      loopID,
		Total:       len(all),
		Pending:     pending,
		Addressed:   len(all) - pending,
		LatestCycle: latest,
	}, nil
}
