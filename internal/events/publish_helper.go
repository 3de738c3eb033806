package events

import (
	"time"

	"github.com/gyrelabs/gyre/internal/loop"
)

// PublishHelper wraps event publishing with nil-safety and convenience
// methods. All methods are safe to call even when the underlying publisher
// is nil.
//
// Thread-safe: All methods can be called concurrently.
type PublishHelper struct {
	publisher Publisher
}

// NewPublishHelper creates a new PublishHelper wrapping the given
// publisher. If p is nil, all publish operations become no-ops.
func NewPublishHelper(p Publisher) *PublishHelper {
	return &PublishHelper{publisher: p}
}

// Publish sends an event to the underlying publisher.
// Safe to call with nil publisher (no-op).
func (ep *PublishHelper) Publish(ev Event) {
	if ep == nil || ep.publisher == nil {
		return
	}
	ep.publisher.Publish(ev)
}

// Transition publishes an accepted status change with the full record.
func (ep *PublishHelper) Transition(action string, from, to loop.Status, record *loop.Loop) {
	if record == nil {
		return
	}
	ep.Publish(NewEvent(EventTransition, record.ID, TransitionData{
		Action: action,
		From:   from,
		To:     to,
		Record: record,
	}))
}

// Iteration publishes the start of an agent iteration.
func (ep *PublishHelper) Iteration(loopID string, iteration, maxIterations int) {
	ep.Publish(NewEvent(EventIteration, loopID, IterationData{
		Iteration:     iteration,
		MaxIterations: maxIterations,
	}))
}

// Output publishes a chunk of agent output.
func (ep *PublishHelper) Output(loopID string, iteration int, text string) {
	ep.Publish(NewEvent(EventOutput, loopID, OutputData{
		Iteration: iteration,
		Text:      text,
	}))
}

// Error publishes an iteration error. Set fatal when the error ends the
// run; consecutive carries the current identical-error streak.
func (ep *PublishHelper) Error(loopID string, iteration int, message string, fatal bool, consecutive int) {
	ep.Publish(NewEvent(EventError, loopID, ErrorData{
		Iteration:   iteration,
		Message:     message,
		Fatal:       fatal,
		Consecutive: consecutive,
	}))
}

// Sync publishes branch synchronization progress.
func (ep *PublishHelper) Sync(loopID string, s *loop.SyncState, conflicts []string) {
	if s == nil {
		return
	}
	ep.Publish(NewEvent(EventSync, loopID, SyncData{
		Phase:      string(s.Phase),
		Status:     string(s.Status),
		BaseBranch: s.BaseBranch,
		Conflicts:  conflicts,
	}))
}

// Plan publishes planning progress.
func (ep *PublishHelper) Plan(loopID string, p *loop.PlanState) {
	if p == nil {
		return
	}
	ep.Publish(NewEvent(EventPlan, loopID, PlanData{
		FeedbackRounds: p.FeedbackRounds,
		Ready:          p.IsPlanReady,
	}))
}

// Comment publishes review comment log changes.
func (ep *PublishHelper) Comment(loopID string, reviewCycle, pending int) {
	ep.Publish(NewEvent(EventComment, loopID, CommentData{
		ReviewCycle: reviewCycle,
		Pending:     pending,
	}))
}

// Heartbeat publishes a liveness signal for a running loop.
func (ep *PublishHelper) Heartbeat(loopID string, iteration int) {
	ep.Publish(NewEvent(EventHeartbeat, loopID, HeartbeatData{
		Iteration: iteration,
		Timestamp: time.Now(),
	}))
}
