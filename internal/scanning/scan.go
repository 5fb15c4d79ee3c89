// Package scanning provides core scanning functionality and shared types
// for portwarden. It fans single-port probes out through a bounded worker
// pool and assembles the results into point-in-time snapshots.
package scanning

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mfolkes/portwarden/internal/errors"
	"github.com/mfolkes/portwarden/internal/logging"
	"github.com/mfolkes/portwarden/internal/metrics"
	"github.com/mfolkes/portwarden/internal/probe"
	"github.com/mfolkes/portwarden/internal/services"
	"github.com/mfolkes/portwarden/internal/workers"
)

// poolShutdownTimeout bounds how long a scan waits for probe workers
// after all results have been collected.
const poolShutdownTimeout = 30 * time.Second

// Scanner runs port scans against single targets. It is stateless apart
// from an optional resource manager that bounds concurrent scan
// invocations across callers.
type Scanner struct {
	resources ResourceManager
}

// NewScanner creates a scanner without a concurrency bound across scans.
func NewScanner() *Scanner {
	return &Scanner{}
}

// NewScannerWithResources creates a scanner that acquires a slot from the
// resource manager for every scan invocation.
func NewScannerWithResources(resources ResourceManager) *Scanner {
	return &Scanner{resources: resources}
}

// Scan probes every port in the configuration against the target and
// returns a complete snapshot of the open ports found. Individual probe
// failures count as closed ports and never abort the scan; the only error
// returns are invalid configuration and context cancellation.
func (s *Scanner) Scan(ctx context.Context, target string, cfg ScanConfig) (Snapshot, error) {
	scanTimer := metrics.NewTimer("scan_duration_seconds", metrics.Labels{
		"component": "scanner",
	})
	defer scanTimer.Stop()

	if strings.TrimSpace(target) == "" {
		return Snapshot{}, errors.ErrInvalidTarget(target)
	}
	if err := cfg.Validate(); err != nil {
		return Snapshot{}, errors.WrapScanErrorWithTarget(
			errors.CodeValidation, "invalid scan configuration", target, err)
	}

	ports := cfg.Ports
	if len(ports) == 0 {
		ports = DefaultPorts()
	}

	logging.InfoScan("Starting port scan", target,
		"port_count", len(ports),
		"workers", cfg.MaxConcurrentProbes,
		"timeout", cfg.Timeout)

	snapshot, err := s.runProbes(ctx, target, ports, cfg)
	if err != nil {
		metrics.Counter("scans_total", metrics.Labels{"status": "error"})
		return Snapshot{}, err
	}

	metrics.Counter("scans_total", metrics.Labels{"status": "success"})
	metrics.Histogram("scan_open_ports", float64(snapshot.OpenCount()), metrics.Labels{
		"component": "scanner",
	})
	logging.InfoScan("Port scan completed", target,
		"open_ports", snapshot.OpenCount(),
		"probed", len(ports))

	return snapshot, nil
}

// runProbes fans the port list out through a worker pool and collects open
// ports into a snapshot. The snapshot is keyed by port, so worker completion
// order never affects the result.
func (s *Scanner) runProbes(ctx context.Context, target string, ports []uint16, cfg ScanConfig) (Snapshot, error) {
	if s.resources != nil {
		scanID := fmt.Sprintf("%s-%d", target, time.Now().UnixNano())
		if err := s.resources.Acquire(ctx, scanID); err != nil {
			return Snapshot{}, errors.WrapScanErrorWithTarget(
				errors.CodeScanFailed, "failed to acquire scan slot", target, err)
		}
		defer s.resources.Release(scanID)
	}

	pool := workers.New(workers.Config{
		Size:            cfg.MaxConcurrentProbes,
		QueueSize:       len(ports),
		ShutdownTimeout: poolShutdownTimeout,
	})
	pool.Start()

	snapshot := NewSnapshot(target)
	var mu sync.Mutex

	for _, port := range ports {
		job := workers.NewProbeJob(
			fmt.Sprintf("%s:%d", target, port),
			target, port,
			func(jobCtx context.Context, host string, p uint16) error {
				result := probe.Probe(jobCtx, host, p, cfg.Timeout)
				if !result.Open {
					return nil
				}
				info := PortInfo{
					Service:    services.Classify(p, result.Banner),
					Banner:     result.Banner,
					ObservedAt: time.Now(),
				}
				mu.Lock()
				snapshot.Ports[p] = info
				mu.Unlock()
				return nil
			})

		if err := pool.Submit(job); err != nil {
			// The queue is sized to the port list, so this only happens
			// on shutdown races. Treat the port as closed.
			logging.Debug("Probe submission failed", "target", target, "port", port, "error", err)
		}
	}

	pool.Close()

	completed := 0
	for range pool.Results() {
		completed++
		select {
		case <-ctx.Done():
			_ = pool.Shutdown()
			return Snapshot{}, errors.WrapScanErrorWithTarget(
				errors.CodeCanceled, "scan canceled", target, ctx.Err())
		default:
		}
	}

	logging.Debug("Scan probes finished",
		"target", target,
		"completed", completed,
		"open", snapshot.OpenCount())

	return snapshot, nil
}
