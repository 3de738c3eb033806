package api

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gyrelabs/gyre/internal/events"
)

func newWSFixture(t *testing.T) (*WSHandler, *events.MemoryPublisher, *websocket.Conn) {
	t.Helper()

	pub := events.NewMemoryPublisher()
	server := &Server{runningLoops: make(map[string]context.CancelFunc)}
	handler := NewWSHandler(pub, server, nil)

	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	t.Cleanup(func() { _ = ws.Close() })

	return handler, pub, ws
}

func readWSJSON(t *testing.T, ws *websocket.Conn) map[string]any {
	t.Helper()

	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("failed to read message: %v", err)
	}
	var resp map[string]any
	if err := json.Unmarshal(data, &resp); err != nil {
		t.Fatalf("failed to parse message: %v", err)
	}
	return resp
}

func TestWSHandler_Connect(t *testing.T) {
	handler, _, ws := newWSFixture(t)

	if err := ws.WriteJSON(WSMessage{Type: "ping"}); err != nil {
		t.Errorf("failed to send message: %v", err)
	}

	resp := readWSJSON(t, ws)
	if resp["type"] != "pong" {
		t.Errorf("expected pong, got %v", resp["type"])
	}

	if handler.ConnectionCount() != 1 {
		t.Errorf("expected 1 connection, got %d", handler.ConnectionCount())
	}
}

func TestWSHandler_Subscribe(t *testing.T) {
	_, _, ws := newWSFixture(t)

	if err := ws.WriteJSON(WSMessage{Type: "subscribe", LoopID: "LOOP-001"}); err != nil {
		t.Fatalf("failed to send subscribe: %v", err)
	}

	resp := readWSJSON(t, ws)
	if resp["type"] != "subscribed" {
		t.Errorf("expected type 'subscribed', got %v", resp["type"])
	}
	if resp["loop_id"] != "LOOP-001" {
		t.Errorf("expected loop_id 'LOOP-001', got %v", resp["loop_id"])
	}
}

func TestWSHandler_ReceiveEvents(t *testing.T) {
	_, pub, ws := newWSFixture(t)

	if err := ws.WriteJSON(WSMessage{Type: "subscribe", LoopID: "LOOP-001"}); err != nil {
		t.Fatalf("failed to send subscribe: %v", err)
	}
	readWSJSON(t, ws) // subscription ack

	pub.Publish(events.NewEvent(events.EventIteration, "LOOP-001", map[string]int{"iteration": 1}))

	// Give time for event to be forwarded
	time.Sleep(100 * time.Millisecond)

	resp := readWSJSON(t, ws)
	if resp["type"] != "event" {
		t.Errorf("expected type 'event', got %v", resp["type"])
	}
	if resp["event"] != string(events.EventIteration) {
		t.Errorf("expected iteration event, got %v", resp["event"])
	}
	if resp["loop_id"] != "LOOP-001" {
		t.Errorf("expected loop_id 'LOOP-001', got %v", resp["loop_id"])
	}
}

func TestWSHandler_GlobalSubscriptionSeesAllLoops(t *testing.T) {
	_, pub, ws := newWSFixture(t)

	if err := ws.WriteJSON(WSMessage{Type: "subscribe", LoopID: events.GlobalLoopID}); err != nil {
		t.Fatalf("failed to send subscribe: %v", err)
	}
	readWSJSON(t, ws) // subscription ack

	pub.Publish(events.NewEvent(events.EventIteration, "LOOP-007", nil))
	time.Sleep(100 * time.Millisecond)

	resp := readWSJSON(t, ws)
	if resp["loop_id"] != "LOOP-007" {
		t.Errorf("expected event for LOOP-007, got %v", resp["loop_id"])
	}
}

func TestWSHandler_InvalidMessage(t *testing.T) {
	_, _, ws := newWSFixture(t)

	if err := ws.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("failed to send message: %v", err)
	}

	resp := readWSJSON(t, ws)
	if resp["type"] != "error" {
		t.Errorf("expected type 'error', got %v", resp["type"])
	}
}

func TestWSHandler_SubscribeWithoutLoopID(t *testing.T) {
	_, _, ws := newWSFixture(t)

	if err := ws.WriteJSON(WSMessage{Type: "subscribe"}); err != nil {
		t.Fatalf("failed to send subscribe: %v", err)
	}

	resp := readWSJSON(t, ws)
	if resp["type"] != "error" {
		t.Errorf("expected type 'error', got %v", resp["type"])
	}
}

func TestWSHandler_UnknownType(t *testing.T) {
	_, _, ws := newWSFixture(t)

	if err := ws.WriteJSON(WSMessage{Type: "teleport"}); err != nil {
		t.Fatalf("failed to send message: %v", err)
	}

	resp := readWSJSON(t, ws)
	if resp["type"] != "error" {
		t.Errorf("expected type 'error', got %v", resp["type"])
	}
}

func TestWSHandler_UnsubscribeStopsEvents(t *testing.T) {
	_, pub, ws := newWSFixture(t)

	if err := ws.WriteJSON(WSMessage{Type: "subscribe", LoopID: "LOOP-001"}); err != nil {
		t.Fatalf("failed to send subscribe: %v", err)
	}
	readWSJSON(t, ws) // subscription ack

	if err := ws.WriteJSON(WSMessage{Type: "unsubscribe"}); err != nil {
		t.Fatalf("failed to send unsubscribe: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	pub.Publish(events.NewEvent(events.EventIteration, "LOOP-001", nil))

	_ = ws.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	if _, _, err := ws.ReadMessage(); err == nil {
		t.Error("expected no event after unsubscribe")
	}
}
