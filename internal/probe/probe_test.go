package probe

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startListener starts a TCP listener on an ephemeral localhost port and
// returns its port. The optional greeting is written to every connection.
func startListener(t *testing.T, greeting string) uint16 {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		for {
			conn, acceptErr := ln.Accept()
			if acceptErr != nil {
				return
			}
			if greeting != "" {
				_, _ = conn.Write([]byte(greeting))
			}
			// Give the client time to read before closing.
			time.Sleep(50 * time.Millisecond)
			_ = conn.Close()
		}
	}()

	addr, ok := ln.Addr().(*net.TCPAddr)
	require.True(t, ok)
	return uint16(addr.Port)
}

// freePort returns a localhost port with no listener on it.
func freePort(t *testing.T) uint16 {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr, ok := ln.Addr().(*net.TCPAddr)
	require.True(t, ok)
	require.NoError(t, ln.Close())
	return uint16(addr.Port)
}

func TestProbeOpenPort(t *testing.T) {
	port := startListener(t, "")

	result := Probe(context.Background(), "127.0.0.1", port, time.Second)
	assert.True(t, result.Open)
}

func TestProbeClosedPort(t *testing.T) {
	port := freePort(t)

	start := time.Now()
	result := Probe(context.Background(), "127.0.0.1", port, time.Second)
	elapsed := time.Since(start)

	assert.False(t, result.Open)
	assert.Empty(t, result.Banner)
	// A refused connection should come back well within the timeout budget.
	assert.Less(t, elapsed, 3*time.Second)
}

func TestProbeCapturesBanner(t *testing.T) {
	port := startListener(t, "SSH-2.0-OpenSSH_9.6\r\n")

	result := Probe(context.Background(), "127.0.0.1", port, time.Second)
	assert.True(t, result.Open)
	assert.Contains(t, result.Banner, "SSH-2.0-OpenSSH_9.6")
}

func TestProbeSilentService(t *testing.T) {
	port := startListener(t, "")

	result := Probe(context.Background(), "127.0.0.1", port, 500*time.Millisecond)
	assert.True(t, result.Open)
	assert.Empty(t, result.Banner)
}

func TestProbeUnresolvableHost(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping DNS-dependent test in short mode")
	}

	result := Probe(context.Background(), "host.invalid", 80, time.Second)
	assert.False(t, result.Open)
}

func TestProbeDefaultTimeout(t *testing.T) {
	port := freePort(t)

	// Zero timeout falls back to the package default instead of failing.
	result := Probe(context.Background(), "127.0.0.1", port, 0)
	assert.False(t, result.Open)
}

func TestSanitizeBanner(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		expected string
	}{
		{
			name:     "plain text",
			input:    []byte("HTTP/1.0 200 OK"),
			expected: "HTTP/1.0 200 OK",
		},
		{
			name:     "crlf collapsed",
			input:    []byte("220 mail.example.com ESMTP\r\n"),
			expected: "220 mail.example.com ESMTP",
		},
		{
			name:     "control bytes stripped",
			input:    []byte{0x00, 0x01, 'o', 'k', 0x7f},
			expected: "ok",
		},
		{
			name:     "empty",
			input:    nil,
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizeBanner(tt.input))
		})
	}
}
