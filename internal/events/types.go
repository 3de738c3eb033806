// Package events provides event types and publishing infrastructure for gyre.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/gyrelabs/gyre/internal/loop"
)

// EventType defines the type of event.
type EventType string

const (
	// EventTransition indicates a loop changed status.
	EventTransition EventType = "transition"
	// EventIteration indicates a new agent iteration began.
	EventIteration EventType = "iteration"
	// EventOutput indicates new agent output.
	EventOutput EventType = "output"
	// EventError indicates an iteration error.
	EventError EventType = "error"
	// EventSync indicates branch synchronization progress.
	EventSync EventType = "sync"
	// EventPlan indicates planning activity changed.
	EventPlan EventType = "plan"
	// EventComment indicates review comment activity.
	EventComment EventType = "comment"
	// EventHeartbeat indicates the loop is still making progress.
	EventHeartbeat EventType = "heartbeat"
)

// Event represents a published event.
type Event struct {
	ID     string    `json:"id"`
	Type   EventType `json:"type"`
	LoopID string    `json:"loop_id"`
	Data   any       `json:"data"`
	Time   time.Time `json:"time"`
}

// NewEvent creates a new event stamped with the current time.
func NewEvent(eventType EventType, loopID string, data any) Event {
	return NewEventAt(time.Now(), eventType, loopID, data)
}

// NewEventAt creates a new event with an explicit timestamp.
func NewEventAt(at time.Time, eventType EventType, loopID string, data any) Event {
	return Event{
		ID:     uuid.NewString(),
		Type:   eventType,
		LoopID: loopID,
		Data:   data,
		Time:   at,
	}
}

// TransitionData describes an accepted status change. Record carries the
// full loop so subscribers never need a follow-up fetch.
type TransitionData struct {
	Action string      `json:"action"`
	From   loop.Status `json:"from"`
	To     loop.Status `json:"to"`
	Record *loop.Loop  `json:"record,omitempty"`
}

// IterationData marks the start of an agent iteration.
type IterationData struct {
	Iteration     int `json:"iteration"`
	MaxIterations int `json:"max_iterations,omitempty"`
}

// OutputData carries a chunk of agent output.
type OutputData struct {
	Iteration int    `json:"iteration"`
	Text      string `json:"text"`
}

// ErrorData describes an iteration failure.
type ErrorData struct {
	Iteration   int    `json:"iteration,omitempty"`
	Message     string `json:"message"`
	Fatal       bool   `json:"fatal"`
	Consecutive int    `json:"consecutive,omitempty"`
}

// SyncData reports progress of a branch synchronization session.
type SyncData struct {
	Phase      string   `json:"phase"`
	Status     string   `json:"status"`
	BaseBranch string   `json:"base_branch,omitempty"`
	Conflicts  []string `json:"conflicts,omitempty"`
}

// PlanData reports planning progress.
type PlanData struct {
	FeedbackRounds int  `json:"feedback_rounds"`
	Ready          bool `json:"ready"`
}

// CommentData reports review comment log changes.
type CommentData struct {
	ReviewCycle int `json:"review_cycle"`
	Pending     int `json:"pending"`
}

// HeartbeatData signals liveness of a running loop.
type HeartbeatData struct {
	Iteration int       `json:"iteration"`
	Timestamp time.Time `json:"timestamp"`
}
