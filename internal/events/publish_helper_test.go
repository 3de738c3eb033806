package events

import (
	"sync"
	"testing"
	"time"

	"github.com/gyrelabs/gyre/internal/loop"
)

// mockPublisher captures published events for testing.
type mockPublisher struct {
	mu     sync.Mutex
	events []Event
}

func newMockPublisher() *mockPublisher {
	return &mockPublisher{events: make([]Event, 0)}
}

func (m *mockPublisher) Publish(ev Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
}

func (m *mockPublisher) Subscribe(loopID string) <-chan Event {
	ch := make(chan Event)
	close(ch)
	return ch
}

func (m *mockPublisher) Unsubscribe(loopID string, ch <-chan Event) {}

func (m *mockPublisher) Close() {}

func (m *mockPublisher) lastEvent() *Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.events) == 0 {
		return nil
	}
	ev := m.events[len(m.events)-1]
	return &ev
}

func TestPublishHelper_NilSafety(t *testing.T) {
	t.Parallel()

	ep := NewPublishHelper(nil)
	ep.Publish(NewEvent(EventTransition, "LOOP-001", nil))
	ep.Iteration("LOOP-001", 1, 30)
	ep.Heartbeat("LOOP-001", 1)

	// A nil helper is also safe
	var nilHelper *PublishHelper
	nilHelper.Publish(NewEvent(EventTransition, "LOOP-001", nil))
}

func TestPublishHelper_Transition(t *testing.T) {
	t.Parallel()

	mock := newMockPublisher()
	ep := NewPublishHelper(mock)

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l := loop.New("LOOP-001", "Test", loop.StatusIdle, now)
	ep.Transition("start", loop.StatusIdle, loop.StatusStarting, l)

	ev := mock.lastEvent()
	if ev == nil {
		t.Fatal("no event published")
	}
	if ev.Type != EventTransition {
		t.Errorf("type = %s, want transition", ev.Type)
	}
	if ev.LoopID != "LOOP-001" {
		t.Errorf("loop ID = %s, want LOOP-001", ev.LoopID)
	}
	data, ok := ev.Data.(TransitionData)
	if !ok {
		t.Fatalf("data is %T, want TransitionData", ev.Data)
	}
	if data.Action != "start" || data.From != loop.StatusIdle || data.To != loop.StatusStarting {
		t.Errorf("transition data = %+v", data)
	}
	if data.Record == nil {
		t.Error("record missing from transition data")
	}

	// Nil record publishes nothing
	before := len(mock.events)
	ep.Transition("start", loop.StatusIdle, loop.StatusStarting, nil)
	if len(mock.events) != before {
		t.Error("nil record should not publish")
	}
}

func TestPublishHelper_Iteration(t *testing.T) {
	t.Parallel()

	mock := newMockPublisher()
	ep := NewPublishHelper(mock)

	ep.Iteration("LOOP-001", 4, 30)

	ev := mock.lastEvent()
	if ev == nil || ev.Type != EventIteration {
		t.Fatalf("event = %+v, want iteration", ev)
	}
	data := ev.Data.(IterationData)
	if data.Iteration != 4 || data.MaxIterations != 30 {
		t.Errorf("iteration data = %+v", data)
	}
}

func TestPublishHelper_Error(t *testing.T) {
	t.Parallel()

	mock := newMockPublisher()
	ep := NewPublishHelper(mock)

	ep.Error("LOOP-001", 2, "compile failed", false, 3)

	ev := mock.lastEvent()
	if ev == nil || ev.Type != EventError {
		t.Fatalf("event = %+v, want error", ev)
	}
	data := ev.Data.(ErrorData)
	if data.Message != "compile failed" || data.Consecutive != 3 || data.Fatal {
		t.Errorf("error data = %+v", data)
	}
}

func TestPublishHelper_Sync(t *testing.T) {
	t.Parallel()

	mock := newMockPublisher()
	ep := NewPublishHelper(mock)

	s := loop.NewSyncState(loop.ActionMerge, loop.StatusCompleted, "main", true)
	ep.Sync("LOOP-001", s, []string{"main.go"})

	ev := mock.lastEvent()
	if ev == nil || ev.Type != EventSync {
		t.Fatalf("event = %+v, want sync", ev)
	}
	data := ev.Data.(SyncData)
	if data.Phase != string(loop.PhaseWorkingBranch) || data.BaseBranch != "main" {
		t.Errorf("sync data = %+v", data)
	}
	if len(data.Conflicts) != 1 {
		t.Errorf("conflicts = %v, want one entry", data.Conflicts)
	}

	// Nil sync state publishes nothing
	before := len(mock.events)
	ep.Sync("LOOP-001", nil, nil)
	if len(mock.events) != before {
		t.Error("nil sync state should not publish")
	}
}

func TestPublishHelper_Plan(t *testing.T) {
	t.Parallel()

	mock := newMockPublisher()
	ep := NewPublishHelper(mock)

	p := loop.NewPlanState()
	p.RecordFeedback()
	p.MarkReady()
	ep.Plan("LOOP-001", p)

	ev := mock.lastEvent()
	if ev == nil || ev.Type != EventPlan {
		t.Fatalf("event = %+v, want plan", ev)
	}
	data := ev.Data.(PlanData)
	if data.FeedbackRounds != 1 || !data.Ready {
		t.Errorf("plan data = %+v", data)
	}
}

func TestPublishHelper_Comment(t *testing.T) {
	t.Parallel()

	mock := newMockPublisher()
	ep := NewPublishHelper(mock)

	ep.Comment("LOOP-001", 2, 5)

	ev := mock.lastEvent()
	if ev == nil || ev.Type != EventComment {
		t.Fatalf("event = %+v, want comment", ev)
	}
	data := ev.Data.(CommentData)
	if data.ReviewCycle != 2 || data.Pending != 5 {
		t.Errorf("comment data = %+v", data)
	}
}

func TestPublishHelper_Heartbeat(t *testing.T) {
	t.Parallel()

	mock := newMockPublisher()
	ep := NewPublishHelper(mock)

	ep.Heartbeat("LOOP-001", 7)

	ev := mock.lastEvent()
	if ev == nil || ev.Type != EventHeartbeat {
		t.Fatalf("event = %+v, want heartbeat", ev)
	}
	data := ev.Data.(HeartbeatData)
	if data.Iteration != 7 {
		t.Errorf("heartbeat data = %+v", data)
	}
	if data.Timestamp.IsZero() {
		t.Error("heartbeat timestamp not stamped")
	}
}
