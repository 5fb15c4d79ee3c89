package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mfolkes/portwarden/internal/diff"
)

func dialWebSocket(t *testing.T, h *WebSocketHandler) *websocket.Conn {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(h.EventsWebSocket))
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })

	return conn
}

func TestWebSocketBroadcastEvent(t *testing.T) {
	h := NewWebSocketHandler(testLogger(), nil)
	t.Cleanup(func() { _ = h.Close() })

	conn := dialWebSocket(t, h)

	require.Eventually(t, func() bool {
		return h.ConnectedClients() == 1
	}, 2*time.Second, 10*time.Millisecond)

	event := diff.ChangeEvent{
		ID:      uuid.New(),
		Kind:    diff.PortOpened,
		Target:  "127.0.0.1",
		Port:    8080,
		Service: "http-alt",
		Message: "test event",
	}
	h.BroadcastEvent(event)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg WebSocketMessage
	require.NoError(t, json.Unmarshal(payload, &msg))
	assert.Equal(t, "change_event", msg.Type)

	data, err := json.Marshal(msg.Data)
	require.NoError(t, err)
	var got diff.ChangeEvent
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, event.ID, got.ID)
	assert.Equal(t, event.Target, got.Target)
	assert.EqualValues(t, event.Port, got.Port)
}

func TestWebSocketSystemMessage(t *testing.T) {
	h := NewWebSocketHandler(testLogger(), nil)
	t.Cleanup(func() { _ = h.Close() })

	conn := dialWebSocket(t, h)

	require.Eventually(t, func() bool {
		return h.ConnectedClients() == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, h.BroadcastSystemMessage("monitor_started", "monitoring started"))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg WebSocketMessage
	require.NoError(t, json.Unmarshal(payload, &msg))
	assert.Equal(t, "monitor_started", msg.Type)
}

func TestWebSocketClientDisconnect(t *testing.T) {
	h := NewWebSocketHandler(testLogger(), nil)
	t.Cleanup(func() { _ = h.Close() })

	conn := dialWebSocket(t, h)

	require.Eventually(t, func() bool {
		return h.ConnectedClients() == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool {
		return h.ConnectedClients() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWebSocketPingSweepDropsDeadClient(t *testing.T) {
	h := NewWebSocketHandler(testLogger(), nil)
	t.Cleanup(func() { _ = h.Close() })

	_ = dialWebSocket(t, h)

	require.Eventually(t, func() bool {
		return h.ConnectedClients() == 1
	}, 2*time.Second, 10*time.Millisecond)

	// Kill the server side of every connection so the ping sweep sees
	// dead clients.
	h.mutex.Lock()
	for conn := range h.clients {
		_ = conn.Close()
	}
	h.mutex.Unlock()

	// The sweep must remove dead clients itself and return even when
	// the hub goroutine is not draining the unregister channel.
	done := make(chan struct{})
	go func() {
		h.pingClients()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("ping sweep did not complete")
	}

	assert.Equal(t, 0, h.ConnectedClients())
}

func TestWebSocketCloseIsIdempotent(t *testing.T) {
	h := NewWebSocketHandler(testLogger(), nil)

	require.NoError(t, h.Close())
	require.NoError(t, h.Close())
}
