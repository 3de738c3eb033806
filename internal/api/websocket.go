package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gyrelabs/gyre/internal/events"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512 * 1024 // 512KB
)

// WSMessage is the envelope for client-to-server WebSocket messages.
type WSMessage struct {
	Type   string          `json:"type"`
	LoopID string          `json:"loop_id,omitempty"`
	Action string          `json:"action,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// WSHandler handles WebSocket connections for real-time loop updates.
type WSHandler struct {
	publisher events.Publisher
	server    *Server
	logger    *slog.Logger
	upgrader  websocket.Upgrader

	mu          sync.RWMutex
	connections map[*websocket.Conn]*wsConnection
}

// wsConnection tracks per-connection subscription state.
type wsConnection struct {
	conn *websocket.Conn
	mu   sync.Mutex

	loopID       string
	eventChan    <-chan events.Event
	unsubscribed bool

	send chan []byte
	done chan struct{}
}

// NewWSHandler creates a WebSocket handler backed by the given publisher.
func NewWSHandler(publisher events.Publisher, server *Server, logger *slog.Logger) *WSHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSHandler{
		publisher: publisher,
		server:    server,
		logger:    logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// Local tool server, same trust domain as the REST API
				return true
			},
		},
		connections: make(map[*websocket.Conn]*wsConnection),
	}
}

// ServeHTTP upgrades the HTTP connection to WebSocket.
func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	c := &wsConnection{
		conn: conn,
		send: make(chan []byte, 256),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	h.connections[conn] = c
	h.mu.Unlock()

	go h.readPump(c)
	go h.writePump(c)
}

// readPump reads messages from the WebSocket connection.
func (h *WSHandler) readPump(c *wsConnection) {
	defer h.closeConnection(c)

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket read error", "error", err)
			}
			return
		}
		h.handleMessage(c, data)
	}
}

// writePump writes messages to the WebSocket connection.
func (h *WSHandler) writePump(c *wsConnection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			return
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			// One frame per message so each frame stays valid JSON
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

			n := len(c.send)
			for i := 0; i < n; i++ {
				_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := c.conn.WriteMessage(websocket.TextMessage, <-c.send); err != nil {
					return
				}
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage processes incoming WebSocket messages.
func (h *WSHandler) handleMessage(c *wsConnection, data []byte) {
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		h.sendError(c, "invalid message format")
		return
	}

	switch msg.Type {
	case "subscribe":
		h.handleSubscribe(c, msg.LoopID)
	case "unsubscribe":
		h.handleUnsubscribe(c)
	case "command":
		h.handleCommand(c, msg)
	case "ping":
		// Respond to application-level ping with pong
		h.sendJSON(c, map[string]any{"type": "pong"})
	default:
		h.sendError(c, "unknown message type: "+msg.Type)
	}
}

// handleSubscribe subscribes the connection to a loop's events.
// Use loopID "*" to subscribe to all loop events (global subscription).
func (h *WSHandler) handleSubscribe(c *wsConnection, loopID string) {
	if loopID == "" {
		h.sendError(c, "loop_id required for subscribe (use \"*\" for all loops)")
		return
	}

	// Unsubscribe from previous loop if any
	h.handleUnsubscribe(c)

	c.mu.Lock()
	c.loopID = loopID
	c.eventChan = h.publisher.Subscribe(loopID)
	c.unsubscribed = false
	c.mu.Unlock()

	go h.forwardEvents(c)

	h.sendJSON(c, map[string]any{
		"type":    "subscribed",
		"loop_id": loopID,
	})
	h.logger.Debug("websocket subscribed", "loop_id", loopID)
}

// handleUnsubscribe unsubscribes the connection from its current loop.
func (h *WSHandler) handleUnsubscribe(c *wsConnection) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.loopID != "" && c.eventChan != nil && !c.unsubscribed {
		h.publisher.Unsubscribe(c.loopID, c.eventChan)
		c.unsubscribed = true
		c.loopID = ""
		c.eventChan = nil
	}
}

// handleCommand handles control commands sent over the socket.
func (h *WSHandler) handleCommand(c *wsConnection, msg WSMessage) {
	if msg.LoopID == "" {
		h.sendError(c, "loop_id required for command")
		return
	}
	if h.server == nil {
		h.sendError(c, "commands not available")
		return
	}

	var result map[string]any
	var err error

	switch msg.Action {
	case "stop":
		result, err = h.server.stopLoopCommand(msg.LoopID)
	case "start":
		result, err = h.server.startLoopCommand(msg.LoopID)
	default:
		h.sendError(c, "unknown action: "+msg.Action)
		return
	}

	if err != nil {
		h.sendError(c, err.Error())
		return
	}

	result["type"] = "command_result"
	result["action"] = msg.Action
	h.sendJSON(c, result)
}

// forwardEvents forwards events from the publisher to the WebSocket.
func (h *WSHandler) forwardEvents(c *wsConnection) {
	c.mu.Lock()
	eventChan := c.eventChan
	c.mu.Unlock()

	if eventChan == nil {
		return
	}

	for {
		select {
		case <-c.done:
			return
		case event, ok := <-eventChan:
			if !ok {
				return
			}

			c.mu.Lock()
			unsubscribed := c.unsubscribed
			c.mu.Unlock()
			if unsubscribed {
				return
			}

			h.sendJSON(c, wsEvent(event))
		}
	}
}

// wsEvent shapes a published event for the wire.
func wsEvent(event events.Event) map[string]any {
	return map[string]any{
		"type":    "event",
		"event":   string(event.Type),
		"loop_id": event.LoopID,
		"data":    event.Data,
		"time":    event.Time,
	}
}

// closeConnection cleans up a WebSocket connection.
func (h *WSHandler) closeConnection(c *wsConnection) {
	h.mu.Lock()
	_, exists := h.connections[c.conn]
	if !exists {
		h.mu.Unlock()
		return // Already cleaned up
	}
	delete(h.connections, c.conn)
	h.mu.Unlock()

	h.handleUnsubscribe(c)

	select {
	case <-c.done:
		// Already closed
	default:
		close(c.done)
	}

	_ = c.conn.Close()
}

// sendJSON sends a JSON message to a connection.
func (h *WSHandler) sendJSON(c *wsConnection, data any) {
	msg, err := json.Marshal(data)
	if err != nil {
		h.logger.Error("failed to marshal JSON", "error", err)
		return
	}

	select {
	case c.send <- msg:
	default:
		// Buffer full, skip message
		h.logger.Warn("websocket send buffer full, dropping message")
	}
}

// sendError sends an error message to a connection.
func (h *WSHandler) sendError(c *wsConnection, message string) {
	h.sendJSON(c, map[string]any{
		"type":  "error",
		"error": message,
	})
}

// ConnectionCount returns the number of active WebSocket connections.
func (h *WSHandler) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}
