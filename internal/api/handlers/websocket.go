// This file implements the WebSocket endpoint for real-time change-event
// streaming. A single hub goroutine owns the client set and fans events
// out to every connected subscriber.
package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mfolkes/portwarden/internal/diff"
	"github.com/mfolkes/portwarden/internal/metrics"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// pongWait is the time to wait for the next pong from the peer.
	pongWait = 60 * time.Second
	// pingPeriod must be less than pongWait.
	pingPeriod = time.Duration(float64(pongWait) * 0.9)
	// maxMessageSize bounds messages read from peers.
	maxMessageSize = 512
	// bufferSize is the broadcast channel buffer.
	bufferSize = 256
)

// WebSocketHandler streams change events to connected clients.
type WebSocketHandler struct {
	logger   *slog.Logger
	metrics  metrics.MetricsRegistry
	upgrader websocket.Upgrader

	clients    map[*websocket.Conn]bool
	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	shutdown   chan struct{}
	mutex      sync.RWMutex
	closeOnce  sync.Once
}

// WebSocketMessage is the envelope for every message sent to clients.
type WebSocketMessage struct {
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// NewWebSocketHandler creates a WebSocket handler and starts its hub
// goroutine.
func NewWebSocketHandler(logger *slog.Logger, metricsRegistry metrics.MetricsRegistry) *WebSocketHandler {
	handler := &WebSocketHandler{
		logger:  logger.With("handler", "websocket"),
		metrics: metricsRegistry,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan []byte, bufferSize),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		shutdown:   make(chan struct{}),
	}

	go handler.run()

	return handler
}

// EventsWebSocket handles GET /api/v1/events/ws.
func (h *WebSocketHandler) EventsWebSocket(w http.ResponseWriter, r *http.Request) {
	requestID := getRequestIDFromContext(r.Context())
	h.logger.Info("New event stream connection",
		"request_id", requestID, "remote_addr", r.RemoteAddr)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade WebSocket connection",
			"request_id", requestID, "error", err)
		return
	}

	h.register <- conn
	h.serveConnection(conn, requestID)
}

// serveConnection configures the connection and runs the read loop until
// the peer disconnects.
func (h *WebSocketHandler) serveConnection(conn *websocket.Conn, requestID string) {
	defer func() {
		h.unregister <- conn
		_ = conn.Close()
	}()

	conn.SetReadLimit(maxMessageSize)
	if err := conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		h.logger.Error("Failed to set read deadline",
			"request_id", requestID, "error", err)
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Error("WebSocket unexpected close",
					"request_id", requestID, "error", err)
			}
			return
		}
		// Incoming client messages are ignored.
	}
}

// run owns the client set: registrations, broadcasts, and pings.
func (h *WebSocketHandler) run() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-h.shutdown:
			h.logger.Debug("WebSocket hub shutting down")
			return

		case conn := <-h.register:
			h.mutex.Lock()
			h.clients[conn] = true
			total := len(h.clients)
			h.mutex.Unlock()
			h.logger.Debug("Client registered", "total_clients", total)

		case conn := <-h.unregister:
			h.mutex.Lock()
			delete(h.clients, conn)
			total := len(h.clients)
			h.mutex.Unlock()
			h.logger.Debug("Client unregistered", "total_clients", total)

		case message := <-h.broadcast:
			h.broadcastToClients(message)

		case <-ticker.C:
			h.pingClients()
		}
	}
}

// broadcastToClients writes a message to every connected client, dropping
// clients whose writes fail.
func (h *WebSocketHandler) broadcastToClients(message []byte) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	for conn := range h.clients {
		if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
			h.logger.Error("Failed to set write deadline", "error", err)
			continue
		}
		if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
			h.logger.Debug("Write failed, closing connection", "error", err)
			_ = conn.Close()
			delete(h.clients, conn)
		}
	}

	if h.metrics != nil {
		h.metrics.Counter("websocket_messages_sent_total", nil)
	}
}

// pingClients sends ping frames to all connected clients, dropping
// clients whose pings fail. Removal happens inline; sending to the
// unregister channel from here would block the hub goroutine on itself.
func (h *WebSocketHandler) pingClients() {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	for conn := range h.clients {
		if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
			h.logger.Debug("Ping deadline failed, closing connection", "error", err)
			_ = conn.Close()
			delete(h.clients, conn)
			continue
		}
		if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
			h.logger.Debug("Ping failed, closing connection", "error", err)
			_ = conn.Close()
			delete(h.clients, conn)
		}
	}
}

// BroadcastEvent queues a change event for delivery to all clients. It
// never blocks; the message is dropped when the channel is full.
func (h *WebSocketHandler) BroadcastEvent(event diff.ChangeEvent) {
	message := WebSocketMessage{
		Type:      "change_event",
		Timestamp: time.Now().UTC(),
		Data:      event,
	}

	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("Failed to marshal change event", "error", err)
		return
	}

	select {
	case h.broadcast <- data:
	default:
		h.logger.Warn("Broadcast channel full, dropping event")
	}
}

// BroadcastSystemMessage queues a system notice for all clients.
func (h *WebSocketHandler) BroadcastSystemMessage(messageType, content string) error {
	message := WebSocketMessage{
		Type:      messageType,
		Timestamp: time.Now().UTC(),
		Data: map[string]string{
			"message": content,
		},
	}

	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal system message: %w", err)
	}

	select {
	case h.broadcast <- data:
		return nil
	default:
		h.logger.Warn("Broadcast channel full, dropping system message")
		return fmt.Errorf("broadcast channel full")
	}
}

// ConnectedClients returns the number of connected clients.
func (h *WebSocketHandler) ConnectedClients() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// Close stops the hub and disconnects all clients.
func (h *WebSocketHandler) Close() error {
	h.closeOnce.Do(func() {
		close(h.shutdown)
	})

	h.mutex.Lock()
	defer h.mutex.Unlock()

	for conn := range h.clients {
		_ = conn.Close()
	}
	h.clients = make(map[*websocket.Conn]bool)

	h.logger.Info("WebSocket hub closed")
	return nil
}
