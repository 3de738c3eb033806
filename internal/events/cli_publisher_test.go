package events

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestCLIPublisher_StreamsOutput(t *testing.T) {
	var buf bytes.Buffer
	pub := NewCLIPublisher(&buf, WithStreamMode(true))

	pub.Publish(Event{
		Type:   EventOutput,
		LoopID: "LOOP-001",
		Data:   OutputData{Iteration: 1, Text: "refactoring the parser"},
	})

	if got := buf.String(); got != "refactoring the parser" {
		t.Errorf("output = %q, want raw text", got)
	}
}

func TestCLIPublisher_IterationHeader(t *testing.T) {
	var buf bytes.Buffer
	pub := NewCLIPublisher(&buf)

	pub.Publish(Event{
		Type:   EventIteration,
		LoopID: "LOOP-001",
		Data:   IterationData{Iteration: 3, MaxIterations: 30},
	})

	output := buf.String()
	if !strings.Contains(output, "Iteration 3/30") {
		t.Errorf("expected iteration header, got: %s", output)
	}
}

func TestCLIPublisher_IterationHeaderUnbounded(t *testing.T) {
	var buf bytes.Buffer
	pub := NewCLIPublisher(&buf)

	pub.Publish(Event{
		Type:   EventIteration,
		LoopID: "LOOP-001",
		Data:   IterationData{Iteration: 5},
	})

	output := buf.String()
	if !strings.Contains(output, "Iteration 5") || strings.Contains(output, "/") {
		t.Errorf("expected unbounded iteration header, got: %s", output)
	}
}

func TestCLIPublisher_Transition(t *testing.T) {
	var buf bytes.Buffer
	pub := NewCLIPublisher(&buf)

	pub.Publish(Event{
		Type:   EventTransition,
		LoopID: "LOOP-001",
		Data:   TransitionData{Action: "stop", From: "running", To: "stopped"},
	})

	output := buf.String()
	if !strings.Contains(output, "LOOP-001") || !strings.Contains(output, "running → stopped") {
		t.Errorf("expected transition line, got: %s", output)
	}
}

func TestCLIPublisher_SyncConflicts(t *testing.T) {
	var buf bytes.Buffer
	pub := NewCLIPublisher(&buf)

	pub.Publish(Event{
		Type:   EventSync,
		LoopID: "LOOP-001",
		Data: SyncData{
			Phase:     "base_branch",
			Status:    "conflicts",
			Conflicts: []string{"main.go", "go.sum"},
		},
	})

	output := buf.String()
	if !strings.Contains(output, "Conflicts on base_branch") || !strings.Contains(output, "2 file(s)") {
		t.Errorf("expected conflict line, got: %s", output)
	}
}

func TestCLIPublisher_Error(t *testing.T) {
	var buf bytes.Buffer
	pub := NewCLIPublisher(&buf)

	pub.Publish(Event{
		Type:   EventError,
		LoopID: "LOOP-001",
		Data:   ErrorData{Message: "agent exited with code 1"},
	})

	if !strings.Contains(buf.String(), "agent exited with code 1") {
		t.Errorf("expected error line, got: %s", buf.String())
	}
}

func TestCLIPublisher_StreamModeDisabled(t *testing.T) {
	var buf bytes.Buffer
	pub := NewCLIPublisher(&buf, WithStreamMode(false))

	pub.Publish(Event{
		Type:   EventOutput,
		LoopID: "LOOP-001",
		Data:   OutputData{Iteration: 1, Text: "should not appear"},
	})

	if buf.Len() != 0 {
		t.Errorf("expected no output with streaming disabled, got: %s", buf.String())
	}
}

func TestCLIPublisher_FansOutToInner(t *testing.T) {
	var buf bytes.Buffer
	inner := NewMemoryPublisher()
	defer inner.Close()
	pub := NewCLIPublisher(&buf, WithInnerPublisher(inner))

	ch := pub.Subscribe("LOOP-001")
	pub.Publish(NewEvent(EventHeartbeat, "LOOP-001", HeartbeatData{Iteration: 1}))

	select {
	case e := <-ch:
		if e.Type != EventHeartbeat {
			t.Errorf("expected heartbeat, got %s", e.Type)
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("inner subscriber did not receive event")
	}
}

func TestCLIPublisher_NoInner(t *testing.T) {
	var buf bytes.Buffer
	pub := NewCLIPublisher(&buf)

	ch := pub.Subscribe("LOOP-001")
	if _, ok := <-ch; ok {
		t.Error("expected closed channel without inner publisher")
	}
	pub.Unsubscribe("LOOP-001", ch)
	pub.Close()
}
