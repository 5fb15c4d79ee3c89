package internal

import (
	"fmt"
	"time"

	"github.com/mfolkes/portwarden/internal/scanning"
)

// ScanConfig represents the configuration for a one-shot scan.
type ScanConfig struct {
	// Target is the IP or hostname to scan
	Target string
	// Ports specifies which ports to scan (e.g. "80,443" or "1-1000");
	// empty means the default port set
	Ports string
	// Profile names a built-in port profile; mutually exclusive with Ports
	Profile string
	// Timeout is the per-probe timeout (0 = default)
	Timeout time.Duration
	// Concurrency bounds the probe worker pool (0 = default)
	Concurrency int
	// DNSServer optionally overrides the resolver for hostname targets
	DNSServer string
}

// Validate checks if the scan configuration is valid.
func (c *ScanConfig) Validate() error {
	if c.Target == "" {
		return fmt.Errorf("no target specified")
	}
	if c.Ports != "" && c.Profile != "" {
		return fmt.Errorf("ports and profile are mutually exclusive")
	}
	if c.Ports != "" {
		if _, err := scanning.ParsePorts(c.Ports); err != nil {
			return fmt.Errorf("invalid port specification: %w", err)
		}
	}
	return nil
}

// ScanResult contains the complete results of a one-shot scan.
type ScanResult struct {
	// Target is the host as given on the command line
	Target string `json:"target"`
	// ResolvedIP is the address the probes were sent to
	ResolvedIP string `json:"resolved_ip"`
	// Snapshot holds the per-port results
	Snapshot scanning.Snapshot `json:"snapshot"`
	// StartTime is when the scan started
	StartTime time.Time `json:"start_time"`
	// EndTime is when the scan completed
	EndTime time.Time `json:"end_time"`
	// Duration is how long the scan took
	Duration time.Duration `json:"duration"`
}

// NewScanResult creates a scan result stamped with the current time.
func NewScanResult(target string) *ScanResult {
	return &ScanResult{
		Target:    target,
		StartTime: time.Now(),
	}
}

// Complete marks the scan as complete and calculates duration.
func (r *ScanResult) Complete() {
	r.EndTime = time.Now()
	r.Duration = r.EndTime.Sub(r.StartTime)
}

// OpenCount returns the number of open ports found.
func (r *ScanResult) OpenCount() int {
	return r.Snapshot.OpenCount()
}
