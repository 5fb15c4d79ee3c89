// Package internal provides the one-shot scan facade shared by the CLI
// and daemon: resolve a target, scan it, and render or persist the
// resulting snapshot.
package internal

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/mfolkes/portwarden/internal/discovery"
	"github.com/mfolkes/portwarden/internal/profiles"
	"github.com/mfolkes/portwarden/internal/scanning"
	"github.com/mfolkes/portwarden/internal/store"
)

const outputSeparatorLength = 60

// RunScan is a convenience wrapper around RunScanWithContext that uses a
// background context.
func RunScan(config *ScanConfig) (*ScanResult, error) {
	return RunScanWithContext(context.Background(), config, nil)
}

// RunScanWithStore is a convenience wrapper that persists the snapshot.
func RunScanWithStore(config *ScanConfig, st *store.Store) (*ScanResult, error) {
	return RunScanWithContext(context.Background(), config, st)
}

// RunScanWithContext performs a one-shot scan based on the provided
// configuration. The target is resolved first, then every configured port
// is probed concurrently. If a store is provided, the snapshot is
// persisted; a storage failure does not fail the scan.
func RunScanWithContext(ctx context.Context, config *ScanConfig, st *store.Store) (*ScanResult, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	scanCfg, err := buildScanConfig(config)
	if err != nil {
		return nil, err
	}

	result := NewScanResult(config.Target)
	defer result.Complete()

	resolved, err := resolveTarget(ctx, config)
	if err != nil {
		return nil, err
	}
	result.ResolvedIP = resolved

	snapshot, err := scanning.NewScanner().Scan(ctx, resolved, scanCfg)
	if err != nil {
		return nil, fmt.Errorf("scan failed: %w", err)
	}
	result.Snapshot = snapshot

	if st != nil {
		if err := st.SaveSnapshot(ctx, snapshot); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to persist snapshot: %v\n", err)
		}
	}

	return result, nil
}

// buildScanConfig translates the facade configuration into scanner
// settings.
func buildScanConfig(config *ScanConfig) (scanning.ScanConfig, error) {
	cfg := scanning.DefaultScanConfig()
	if config.Timeout > 0 {
		cfg.Timeout = config.Timeout
	}
	if config.Concurrency > 0 {
		cfg.MaxConcurrentProbes = config.Concurrency
	}

	switch {
	case config.Ports != "":
		ports, err := scanning.ParsePorts(config.Ports)
		if err != nil {
			return cfg, err
		}
		cfg.Ports = ports
	case config.Profile != "":
		ports, err := profiles.Ports(config.Profile)
		if err != nil {
			return cfg, err
		}
		cfg.Ports = ports
	}

	return cfg, nil
}

// resolveTarget turns the configured target into an address the scanner
// can probe.
func resolveTarget(ctx context.Context, config *ScanConfig) (string, error) {
	opts := []discovery.Option{}
	if config.DNSServer != "" {
		opts = append(opts, discovery.WithDNSServer(config.DNSServer))
	}
	if config.Timeout > 0 {
		opts = append(opts, discovery.WithTimeout(config.Timeout))
	}

	resolved, err := discovery.NewEngine(opts...).Resolve(ctx, config.Target)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", config.Target, err)
	}
	return resolved, nil
}

// PrintResults writes a human-readable summary of the scan to stdout.
func PrintResults(result *ScanResult) {
	if result == nil {
		return
	}

	separator := strings.Repeat("=", outputSeparatorLength)

	fmt.Println(separator)
	fmt.Printf("Scan results for %s", result.Target)
	if result.ResolvedIP != "" && result.ResolvedIP != result.Target {
		fmt.Printf(" (%s)", result.ResolvedIP)
	}
	fmt.Println()
	fmt.Println(separator)

	ports := result.Snapshot.OpenPorts()
	if len(ports) == 0 {
		fmt.Println("No open ports found")
	} else {
		fmt.Printf("%-10s %-8s %s\n", "PORT", "STATE", "SERVICE")
		for _, port := range ports {
			info := result.Snapshot.Ports[port]
			fmt.Printf("%-10s %-8s %s\n",
				fmt.Sprintf("%d/tcp", port), "open", info.Service)
		}
	}

	fmt.Println(separator)
	fmt.Printf("%d open ports, scan took %s\n",
		len(ports), result.Duration.Round(time.Millisecond))
}

// SaveResults writes the scan result to a file as indented JSON.
func SaveResults(result *ScanResult, path string) error {
	if result == nil {
		return fmt.Errorf("no result to save")
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// WriteResults encodes the scan result as indented JSON to w.
func WriteResults(w io.Writer, result *ScanResult) error {
	if result == nil {
		return fmt.Errorf("no result to write")
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// FormatPortList renders a port slice as a compact comma-separated list,
// collapsing consecutive runs into ranges.
func FormatPortList(ports []uint16) string {
	if len(ports) == 0 {
		return ""
	}

	sorted := make([]uint16, len(ports))
	copy(sorted, ports)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var parts []string
	start, prev := sorted[0], sorted[0]
	flush := func() {
		if start == prev {
			parts = append(parts, fmt.Sprintf("%d", start))
		} else {
			parts = append(parts, fmt.Sprintf("%d-%d", start, prev))
		}
	}
	for _, port := range sorted[1:] {
		if port == prev || port == prev+1 {
			prev = port
			continue
		}
		flush()
		start, prev = port, port
	}
	flush()

	return strings.Join(parts, ",")
}
