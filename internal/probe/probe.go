// Package probe provides single-port TCP probing for portwarden.
// A probe attempts one connection to a (host, port) pair within a bounded
// timeout and optionally captures a short banner from the remote service.
package probe

import (
	"context"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/mfolkes/portwarden/internal/logging"
	"github.com/mfolkes/portwarden/internal/metrics"
)

const (
	// maxBannerBytes bounds how much of a service response is captured.
	maxBannerBytes = 1024

	// DefaultTimeout is the per-probe timeout used when none is configured.
	DefaultTimeout = 2 * time.Second
)

// bannerTrigger is a protocol-agnostic request line sent after connecting.
// Most HTTP servers answer it, and chatty protocols (SSH, SMTP, FTP) have
// already sent their greeting by the time the read happens.
var bannerTrigger = []byte("HEAD / HTTP/1.0\r\n\r\n")

// Result holds the outcome of probing a single port.
type Result struct {
	Open   bool
	Banner string
}

// Probe attempts a TCP connection to host:port within the given timeout.
// Any failure (refused, timeout, unreachable, DNS failure) is reported as
// a closed port. Probe never returns an error to the caller; the connection
// is always closed before returning.
func Probe(ctx context.Context, host string, port uint16, timeout time.Duration) Result {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	start := time.Now()
	address := net.JoinHostPort(host, strconv.Itoa(int(port)))

	dialer := &net.Dialer{Timeout: timeout}
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := dialer.DialContext(dialCtx, "tcp", address)
	if err != nil {
		logging.Debug("Probe connection failed",
			"host", host,
			"port", port,
			"duration", time.Since(start),
			"error", err)
		metrics.Counter("probes_total", metrics.Labels{"result": "closed"})
		return Result{Open: false}
	}
	defer func() {
		if closeErr := conn.Close(); closeErr != nil {
			logging.Debug("Probe connection close failed",
				"host", host,
				"port", port,
				"error", closeErr)
		}
	}()

	banner := grabBanner(conn, timeout)

	logging.Debug("Probe connection succeeded",
		"host", host,
		"port", port,
		"duration", time.Since(start),
		"banner_len", len(banner))
	metrics.Counter("probes_total", metrics.Labels{"result": "open"})

	return Result{Open: true, Banner: banner}
}

// grabBanner sends the trigger and reads up to maxBannerBytes from the
// connection within the remaining timeout budget. A silent service is not
// an error; the banner is simply empty.
func grabBanner(conn net.Conn, timeout time.Duration) string {
	deadline := time.Now().Add(timeout)
	if err := conn.SetDeadline(deadline); err != nil {
		return ""
	}

	if _, err := conn.Write(bannerTrigger); err != nil {
		return ""
	}

	buf := make([]byte, maxBannerBytes)
	n, err := conn.Read(buf)
	if err != nil || n == 0 {
		return ""
	}

	return sanitizeBanner(buf[:n])
}

// sanitizeBanner strips non-printable bytes so banners are safe to log
// and to render in notification messages.
func sanitizeBanner(raw []byte) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, c := range raw {
		switch {
		case c == '\n' || c == '\r' || c == '\t':
			b.WriteByte(' ')
		case c >= 0x20 && c < 0x7f:
			b.WriteByte(c)
		}
	}
	return strings.TrimSpace(b.String())
}
