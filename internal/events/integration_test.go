package events

import (
	"testing"
	"time"

	"github.com/gyrelabs/gyre/internal/loop"
	"github.com/gyrelabs/gyre/internal/store"
)

// TestEventPersistence_RoundTrip verifies events published through a
// PersistentPublisher can be queried back from the database.
func TestEventPersistence_RoundTrip(t *testing.T) {
	s, err := store.OpenInMemory()
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer s.Close()

	// Satisfy the loops foreign key
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l := loop.New("LOOP-001", "Test Loop", loop.StatusIdle, now)
	if err := s.SaveLoop(store.RowFromLoop(l)); err != nil {
		t.Fatalf("failed to save loop: %v", err)
	}

	pub := NewPersistentPublisher(s, "executor", nil)
	defer pub.Close()

	pub.Publish(NewEvent(EventIteration, "LOOP-001", IterationData{Iteration: 1, MaxIterations: 30}))
	pub.Publish(NewEvent(EventOutput, "LOOP-001", OutputData{Iteration: 1, Text: "analyzing"}))
	pub.Publish(NewEvent(EventTransition, "LOOP-001", TransitionData{
		Action: "stop",
		From:   loop.StatusRunning,
		To:     loop.StatusStopped,
	}))

	// The transition forces a synchronous flush
	rows, err := s.ListEvents("LOOP-001", 0)
	if err != nil {
		t.Fatalf("ListEvents failed: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("persisted %d events, want 3", len(rows))
	}

	// Newest first
	if rows[0].EventType != string(EventTransition) {
		t.Errorf("latest event = %q, want transition", rows[0].EventType)
	}
	if rows[2].EventType != string(EventIteration) {
		t.Errorf("oldest event = %q, want iteration", rows[2].EventType)
	}
	if rows[2].Iteration == nil || *rows[2].Iteration != 1 {
		t.Errorf("iteration = %v, want 1", rows[2].Iteration)
	}
	if rows[0].Source != "executor" {
		t.Errorf("source = %q, want executor", rows[0].Source)
	}
	if rows[0].Data == "" {
		t.Error("transition payload not encoded")
	}
}
