package discovery

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEngine(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		engine := NewEngine()
		assert.Equal(t, defaultTimeout, engine.timeout)
		assert.True(t, engine.useNmap)
		assert.Empty(t, engine.dnsServer)
	})

	t.Run("options", func(t *testing.T) {
		engine := NewEngine(
			WithTimeout(500*time.Millisecond),
			WithDNSServer("10.0.0.53"),
			WithoutNmap(),
		)
		assert.Equal(t, 500*time.Millisecond, engine.timeout)
		assert.Equal(t, "10.0.0.53", engine.dnsServer)
		assert.False(t, engine.useNmap)
	})

	t.Run("non-positive timeout ignored", func(t *testing.T) {
		engine := NewEngine(WithTimeout(0))
		assert.Equal(t, defaultTimeout, engine.timeout)
	})
}

func TestResolveLiteralIP(t *testing.T) {
	engine := NewEngine()

	tests := []struct {
		name     string
		host     string
		expected string
	}{
		{"IPv4 literal", "192.168.1.10", "192.168.1.10"},
		{"loopback", "127.0.0.1", "127.0.0.1"},
		{"IPv6 literal", "::1", "::1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ip, err := engine.Resolve(context.Background(), tt.host)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, ip)
		})
	}
}

func TestResolveSystem(t *testing.T) {
	engine := NewEngine()

	t.Run("localhost resolves", func(t *testing.T) {
		ip, err := engine.Resolve(context.Background(), "localhost")
		require.NoError(t, err)
		assert.NotNil(t, net.ParseIP(ip))
	})

	t.Run("nonexistent host fails", func(t *testing.T) {
		_, err := engine.Resolve(context.Background(), "definitely-not-a-real-host.invalid")
		assert.Error(t, err)
	})
}

func TestResolveNoAnswer(t *testing.T) {
	// A UDP socket that never answers makes the DNS client time out.
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer conn.Close()

	engine := NewEngine(
		WithTimeout(200*time.Millisecond),
		WithDNSServer(conn.LocalAddr().String()),
	)

	_, err = engine.Resolve(context.Background(), "example.com")
	assert.Error(t, err)
}

func TestTCPReachableCanceledContext(t *testing.T) {
	engine := NewEngine(WithoutNmap(), WithTimeout(200*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, engine.tcpReachable(ctx, "203.0.113.1"))
}

func TestIsReachableUnroutable(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping reachability test in short mode")
	}

	engine := NewEngine(WithoutNmap(), WithTimeout(300*time.Millisecond))
	assert.False(t, engine.IsReachable(context.Background(), "203.0.113.254"))
}
