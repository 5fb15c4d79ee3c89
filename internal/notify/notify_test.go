package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingNotifier captures delivered messages for assertions.
type recordingNotifier struct {
	messages []string
	result   bool
}

func (r *recordingNotifier) Notify(_ context.Context, message string) bool {
	r.messages = append(r.messages, message)
	return r.result
}

func TestLogNotifierAlwaysSucceeds(t *testing.T) {
	n := NewLogNotifier(nil)
	assert.True(t, n.Notify(context.Background(), "🚨 NEW PORT OPENED on 192.0.2.1:443 (https)"))
}

func TestMultiNotifier(t *testing.T) {
	t.Run("delivers to every sink", func(t *testing.T) {
		first := &recordingNotifier{result: true}
		second := &recordingNotifier{result: true}

		multi := NewMultiNotifier(first, second)
		assert.True(t, multi.Notify(context.Background(), "message"))
		assert.Equal(t, []string{"message"}, first.messages)
		assert.Equal(t, []string{"message"}, second.messages)
	})

	t.Run("succeeds if any sink succeeds", func(t *testing.T) {
		failing := &recordingNotifier{result: false}
		working := &recordingNotifier{result: true}

		multi := NewMultiNotifier(failing, working)
		assert.True(t, multi.Notify(context.Background(), "message"))
	})

	t.Run("fails when all sinks fail", func(t *testing.T) {
		multi := NewMultiNotifier(&recordingNotifier{result: false})
		assert.False(t, multi.Notify(context.Background(), "message"))
	})

	t.Run("empty sink list fails", func(t *testing.T) {
		multi := NewMultiNotifier()
		assert.False(t, multi.Notify(context.Background(), "message"))
	})
}

func TestNoopNotifier(t *testing.T) {
	assert.True(t, NoopNotifier{}.Notify(context.Background(), "anything"))
}

func TestTelegramNotifierNotify(t *testing.T) {
	t.Run("successful delivery", func(t *testing.T) {
		var calls int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			assert.Equal(t, "/bottest-token/sendMessage", r.URL.Path)
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		n := NewTelegramNotifier("test-token", "12345", nil)
		n.baseURL = server.URL

		assert.True(t, n.Notify(context.Background(), "🚀 portwarden monitoring started"))
		assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	})

	t.Run("API error reported as failure", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, `{"ok":false,"description":"Unauthorized"}`, http.StatusUnauthorized)
		}))
		defer server.Close()

		n := NewTelegramNotifier("bad-token", "12345", nil)
		n.baseURL = server.URL

		assert.False(t, n.Notify(context.Background(), "message"))
	})

	t.Run("unconfigured notifier drops message", func(t *testing.T) {
		n := NewTelegramNotifier("", "", nil)
		assert.False(t, n.Notify(context.Background(), "message"))
	})
}

func TestTelegramNotifierTest(t *testing.T) {
	t.Run("validates token and sends test message", func(t *testing.T) {
		var paths []string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			paths = append(paths, r.URL.Path)
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		n := NewTelegramNotifier("test-token", "12345", nil)
		n.baseURL = server.URL

		require.NoError(t, n.Test(context.Background()))
		require.Len(t, paths, 2)
		assert.Equal(t, "/bottest-token/getMe", paths[0])
		assert.Equal(t, "/bottest-token/sendMessage", paths[1])
	})

	t.Run("missing token", func(t *testing.T) {
		n := NewTelegramNotifier("", "12345", nil)
		assert.Error(t, n.Test(context.Background()))
	})

	t.Run("missing chat id", func(t *testing.T) {
		n := NewTelegramNotifier("token", "", nil)
		assert.Error(t, n.Test(context.Background()))
	})

	t.Run("invalid token rejected by API", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
		}))
		defer server.Close()

		n := NewTelegramNotifier("bad", "12345", nil)
		n.baseURL = server.URL

		assert.Error(t, n.Test(context.Background()))
	})
}
