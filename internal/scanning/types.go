package scanning

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mfolkes/portwarden/internal/services"
)

const (
	// Port validation constants.
	expectedPortRangeParts = 2
	maxPort                = 65535

	// defaultPortRangeEnd is the top of the low-port range included in the
	// default port set alongside the well-known service ports.
	defaultPortRangeEnd = 1000
)

// ScanError represents error types for scan operations.
type ScanError struct {
	Op   string // Operation that failed
	Err  error  // Original error
	Host string // Host where the error occurred, if applicable
	Port uint16 // Port where the error occurred, if applicable
}

func (e *ScanError) Error() string {
	if e.Host != "" && e.Port > 0 {
		return fmt.Sprintf("%s failed for %s:%d: %v", e.Op, e.Host, e.Port, e.Err)
	}
	if e.Host != "" {
		return fmt.Sprintf("%s failed for %s: %v", e.Op, e.Host, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *ScanError) Unwrap() error {
	return e.Err
}

// ScanConfig represents the configuration for one scan invocation.
// It is passed by value and never mutated during a scan.
type ScanConfig struct {
	// Timeout is the per-probe timeout.
	Timeout time.Duration
	// MaxConcurrentProbes bounds the probe worker pool for one scan.
	MaxConcurrentProbes int
	// Ports is an ordered sequence of distinct port numbers to probe.
	// Empty means the default port set.
	Ports []uint16
}

// DefaultScanConfig returns the scan configuration used when nothing is
// configured: 2s probes, 50 workers, default port set.
func DefaultScanConfig() ScanConfig {
	return ScanConfig{
		Timeout:             2 * time.Second,
		MaxConcurrentProbes: 50,
		Ports:               nil,
	}
}

// Validate checks if the scan configuration is valid.
func (c *ScanConfig) Validate() error {
	if c.Timeout <= 0 {
		return &ScanError{Op: "validate config", Err: fmt.Errorf("probe timeout must be positive")}
	}
	if c.MaxConcurrentProbes < 1 {
		return &ScanError{Op: "validate config", Err: fmt.Errorf("max concurrent probes must be at least 1")}
	}

	seen := make(map[uint16]bool, len(c.Ports))
	for _, port := range c.Ports {
		if port == 0 {
			return &ScanError{Op: "validate config", Err: fmt.Errorf("invalid port: 0 (must be 1-65535)")}
		}
		if seen[port] {
			return &ScanError{Op: "validate config", Err: fmt.Errorf("duplicate port: %d", port)}
		}
		seen[port] = true
	}
	return nil
}

// ParsePorts parses a port specification string into a distinct, ordered
// port list. Accepted forms: "default" or "" (default port set), a comma
// separated list ("22,80,443"), ranges ("1-1000"), or a mix of both.
func ParsePorts(spec string) ([]uint16, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" || strings.EqualFold(spec, "default") {
		return DefaultPorts(), nil
	}

	seen := make(map[uint16]bool)
	var ports []uint16

	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		parsed, err := parsePortPart(part)
		if err != nil {
			return nil, err
		}
		for _, port := range parsed {
			if !seen[port] {
				seen[port] = true
				ports = append(ports, port)
			}
		}
	}

	if len(ports) == 0 {
		return nil, &ScanError{Op: "parse ports", Err: fmt.Errorf("no ports in specification: %s", spec)}
	}
	return ports, nil
}

// parsePortPart parses a single port or port range.
func parsePortPart(part string) ([]uint16, error) {
	if strings.Contains(part, "-") {
		return parsePortRange(part)
	}

	port, err := parseSinglePort(part)
	if err != nil {
		return nil, err
	}
	return []uint16{port}, nil
}

// parsePortRange parses a port range such as "80-100".
func parsePortRange(part string) ([]uint16, error) {
	rangeParts := strings.Split(part, "-")
	if len(rangeParts) != expectedPortRangeParts {
		return nil, &ScanError{Op: "parse ports", Err: fmt.Errorf("invalid port range format: %s", part)}
	}

	start, err := parseSinglePort(rangeParts[0])
	if err != nil {
		return nil, err
	}
	end, err := parseSinglePort(rangeParts[1])
	if err != nil {
		return nil, err
	}
	if start > end {
		return nil, &ScanError{
			Op:  "parse ports",
			Err: fmt.Errorf("invalid port range: start port must not exceed end port"),
		}
	}

	ports := make([]uint16, 0, end-start+1)
	for port := int(start); port <= int(end); port++ {
		ports = append(ports, uint16(port))
	}
	return ports, nil
}

// parseSinglePort parses and validates a single port number.
func parseSinglePort(part string) (uint16, error) {
	port, err := strconv.Atoi(strings.TrimSpace(part))
	if err != nil {
		return 0, &ScanError{Op: "parse ports", Err: fmt.Errorf("invalid port: %s", part)}
	}
	if port < 1 || port > maxPort {
		return 0, &ScanError{Op: "parse ports", Err: fmt.Errorf("invalid port: %d (must be 1-65535)", port)}
	}
	return uint16(port), nil
}

// DefaultPorts returns the default port set: the union of the well-known
// service ports and ports 1-1000, deduplicated and ascending.
func DefaultPorts() []uint16 {
	seen := make(map[uint16]bool, defaultPortRangeEnd)
	ports := make([]uint16, 0, defaultPortRangeEnd+64)

	for port := uint16(1); port <= defaultPortRangeEnd; port++ {
		seen[port] = true
		ports = append(ports, port)
	}
	for _, port := range services.KnownPorts() {
		if !seen[port] {
			seen[port] = true
			ports = append(ports, port)
		}
	}

	sort.Slice(ports, func(i, j int) bool { return ports[i] < ports[j] })
	return ports
}

// PortInfo describes one open port in a snapshot. Service is never empty;
// ports without a table entry or matching banner rule carry "unknown".
type PortInfo struct {
	Service    string    `json:"service"`
	Banner     string    `json:"banner,omitempty"`
	ObservedAt time.Time `json:"observed_at"`
}

// Snapshot is a point-in-time view of a target's open ports, keyed by port
// number. A snapshot is immutable once produced; each scan builds a new one.
type Snapshot struct {
	Target     string              `json:"target"`
	Ports      map[uint16]PortInfo `json:"ports"`
	CapturedAt time.Time           `json:"captured_at"`
}

// NewSnapshot creates an empty snapshot for a target, stamped now.
func NewSnapshot(target string) Snapshot {
	return Snapshot{
		Target:     target,
		Ports:      make(map[uint16]PortInfo),
		CapturedAt: time.Now(),
	}
}

// OpenPorts returns the snapshot's port numbers in ascending order.
func (s Snapshot) OpenPorts() []uint16 {
	ports := make([]uint16, 0, len(s.Ports))
	for port := range s.Ports {
		ports = append(ports, port)
	}
	sort.Slice(ports, func(i, j int) bool { return ports[i] < ports[j] })
	return ports
}

// OpenCount returns the number of open ports in the snapshot.
func (s Snapshot) OpenCount() int {
	return len(s.Ports)
}

// Clone returns a deep copy of the snapshot. Callers that hand snapshots
// across ownership boundaries use this to preserve immutability.
func (s Snapshot) Clone() Snapshot {
	ports := make(map[uint16]PortInfo, len(s.Ports))
	for port, info := range s.Ports {
		ports[port] = info
	}
	return Snapshot{
		Target:     s.Target,
		Ports:      ports,
		CapturedAt: s.CapturedAt,
	}
}
