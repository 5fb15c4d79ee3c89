// Package discovery provides host reachability checks and name resolution
// for portwarden. Reachability uses an nmap ping scan when the binary is
// available and falls back to TCP connects against common ports otherwise.
package discovery

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/Ullaakut/nmap/v3"
	"github.com/miekg/dns"

	"github.com/mfolkes/portwarden/internal/errors"
	"github.com/mfolkes/portwarden/internal/logging"
)

const (
	// defaultTimeout bounds one reachability check.
	defaultTimeout = 3 * time.Second

	// dnsPort is appended to DNS server addresses given without a port.
	dnsPort = "53"
)

// fallbackPorts are tried in order when nmap is unavailable; answering any
// of them counts as reachable.
var fallbackPorts = []uint16{80, 443, 22}

// Engine performs reachability checks and hostname resolution.
type Engine struct {
	timeout   time.Duration
	dnsServer string
	useNmap   bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithTimeout sets the per-check timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(e *Engine) {
		if timeout > 0 {
			e.timeout = timeout
		}
	}
}

// WithDNSServer routes hostname resolution through a specific DNS server
// ("host" or "host:port") instead of the system resolver.
func WithDNSServer(server string) Option {
	return func(e *Engine) {
		e.dnsServer = server
	}
}

// WithoutNmap disables the nmap ping scan and always uses the TCP
// connect fallback.
func WithoutNmap() Option {
	return func(e *Engine) {
		e.useNmap = false
	}
}

// NewEngine creates a discovery engine with the given options.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		timeout: defaultTimeout,
		useNmap: true,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// IsReachable reports whether the host answers a ping scan or, failing
// that, a TCP connect on a common port. The check is best-effort: an
// unreachable host is a normal outcome, not an error.
func (e *Engine) IsReachable(ctx context.Context, host string) bool {
	if e.useNmap {
		reachable, err := e.nmapPing(ctx, host)
		if err == nil {
			return reachable
		}
		logging.Debug("Ping scan unavailable, falling back to TCP connect",
			"host", host, "error", err)
	}

	return e.tcpReachable(ctx, host)
}

// nmapPing runs an nmap ping scan (no port scan) against a single host.
func (e *Engine) nmapPing(ctx context.Context, host string) (bool, error) {
	pingCtx, cancel := context.WithTimeout(ctx, e.timeout*3)
	defer cancel()

	scanner, err := nmap.NewScanner(pingCtx,
		nmap.WithTargets(host),
		nmap.WithPingScan(),
		nmap.WithTimingTemplate(nmap.TimingAggressive),
	)
	if err != nil {
		return false, fmt.Errorf("failed to create ping scanner: %w", err)
	}

	result, warnings, err := scanner.Run()
	if err != nil {
		return false, fmt.Errorf("ping scan failed: %w", err)
	}
	if warnings != nil && len(*warnings) > 0 {
		logging.Debug("Ping scan warnings", "host", host, "warnings", *warnings)
	}

	for i := range result.Hosts {
		if result.Hosts[i].Status.State == "up" {
			return true, nil
		}
	}
	return false, nil
}

// tcpReachable tries TCP connects against the fallback ports.
func (e *Engine) tcpReachable(ctx context.Context, host string) bool {
	dialer := &net.Dialer{Timeout: e.timeout}

	for _, port := range fallbackPorts {
		address := net.JoinHostPort(host, strconv.Itoa(int(port)))
		conn, err := dialer.DialContext(ctx, "tcp", address)
		if err == nil {
			_ = conn.Close()
			return true
		}
		if ctx.Err() != nil {
			return false
		}
	}
	return false
}

// Resolve resolves a hostname to an IP address. Literal IP addresses pass
// through unchanged. When a DNS server is configured the query goes there
// directly; otherwise the system resolver is used.
func (e *Engine) Resolve(ctx context.Context, host string) (string, error) {
	if ip := net.ParseIP(host); ip != nil {
		return ip.String(), nil
	}

	if e.dnsServer != "" {
		return e.resolveVia(ctx, host, e.dnsServer)
	}
	return e.resolveSystem(ctx, host)
}

// resolveVia queries a specific DNS server for an A record.
func (e *Engine) resolveVia(ctx context.Context, host, server string) (string, error) {
	if _, _, err := net.SplitHostPort(server); err != nil {
		server = net.JoinHostPort(server, dnsPort)
	}

	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(host), dns.TypeA)
	msg.RecursionDesired = true

	client := &dns.Client{Timeout: e.timeout}
	resp, _, err := client.ExchangeContext(ctx, msg, server)
	if err != nil {
		return "", errors.WrapScanErrorWithTarget(
			errors.CodeResolveFailed, "DNS query failed", host, err)
	}
	if resp.Rcode != dns.RcodeSuccess {
		return "", errors.NewScanErrorWithTarget(
			errors.CodeResolveFailed,
			fmt.Sprintf("DNS query returned %s", dns.RcodeToString[resp.Rcode]), host)
	}

	for _, answer := range resp.Answer {
		if a, ok := answer.(*dns.A); ok {
			return a.A.String(), nil
		}
	}
	return "", errors.NewScanErrorWithTarget(
		errors.CodeResolveFailed, "no A record in DNS response", host)
}

// resolveSystem resolves through the system resolver.
func (e *Engine) resolveSystem(ctx context.Context, host string) (string, error) {
	resolveCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	addrs, err := net.DefaultResolver.LookupIPAddr(resolveCtx, host)
	if err != nil {
		return "", errors.WrapScanErrorWithTarget(
			errors.CodeResolveFailed, "hostname resolution failed", host, err)
	}
	if len(addrs) == 0 {
		return "", errors.NewScanErrorWithTarget(
			errors.CodeResolveFailed, "hostname resolved to no addresses", host)
	}

	// Prefer IPv4 to match probe dialing behavior.
	for _, addr := range addrs {
		if addr.IP.To4() != nil {
			return addr.IP.String(), nil
		}
	}
	return addrs[0].IP.String(), nil
}
