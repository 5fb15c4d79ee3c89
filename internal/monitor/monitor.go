// Package monitor tracks a set of targets and periodically rescans them,
// reporting port-exposure changes through the configured notification
// sinks. The monitor owns all per-target state; callers only ever see
// copies.
package monitor

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mfolkes/portwarden/internal/diff"
	"github.com/mfolkes/portwarden/internal/errors"
	"github.com/mfolkes/portwarden/internal/logging"
	"github.com/mfolkes/portwarden/internal/metrics"
	"github.com/mfolkes/portwarden/internal/notify"
	"github.com/mfolkes/portwarden/internal/scanning"
	"github.com/mfolkes/portwarden/internal/scheduler"
)

// DefaultInterval is the time between monitoring cycles.
const DefaultInterval = 300 * time.Second

// Reachability checks whether a host answers at all. Satisfied by
// discovery.Engine.
type Reachability interface {
	IsReachable(ctx context.Context, host string) bool
}

// EventStore persists monitoring state. A nil store keeps everything in
// memory. Satisfied by store.Store.
type EventStore interface {
	SaveTarget(ctx context.Context, id string, since time.Time) error
	DeleteTarget(ctx context.Context, id string) error
	SaveSnapshot(ctx context.Context, snapshot scanning.Snapshot) error
	SaveEvents(ctx context.Context, events []diff.ChangeEvent) error
}

// Config holds monitor settings.
type Config struct {
	// Interval between cycles. Non-positive falls back to DefaultInterval.
	Interval time.Duration

	// StopTimeout bounds how long Stop waits for an in-flight cycle.
	StopTimeout time.Duration

	// Scan configures every scan the monitor runs.
	Scan scanning.ScanConfig
}

// target is the monitor's record for one monitored host.
type target struct {
	id              string
	monitoringSince time.Time
	lastSnapshot    scanning.Snapshot
	changeLog       []diff.ChangeEvent
}

// TargetStatus is a read-only view of one monitored target.
type TargetStatus struct {
	ID              string            `json:"id"`
	MonitoringSince time.Time         `json:"monitoring_since"`
	LastSnapshot    scanning.Snapshot `json:"last_snapshot"`
	OpenPorts       int               `json:"open_ports"`
	EventCount      int               `json:"event_count"`
}

// Monitor owns the monitored-target map and the periodic scan cycle.
type Monitor struct {
	config   Config
	scanner  *scanning.Scanner
	notifier notify.Notifier
	reach    Reachability
	store    EventStore
	sink     func(diff.ChangeEvent)

	mu      sync.RWMutex
	targets map[string]*target

	lifecycle sync.Mutex
	sched     *scheduler.Scheduler
	cancel    context.CancelFunc
	running   bool
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithScanner replaces the default scanner.
func WithScanner(s *scanning.Scanner) Option {
	return func(m *Monitor) { m.scanner = s }
}

// WithNotifier sets the notification sink.
func WithNotifier(n notify.Notifier) Option {
	return func(m *Monitor) { m.notifier = n }
}

// WithReachability enables the best-effort reachability check on
// AddTarget.
func WithReachability(r Reachability) Option {
	return func(m *Monitor) { m.reach = r }
}

// WithStore persists targets, snapshots and events to the given store.
func WithStore(s EventStore) Option {
	return func(m *Monitor) { m.store = s }
}

// WithEventSink registers a callback invoked for every change event a
// cycle produces. The callback runs on the cycle goroutine and must not
// block.
func WithEventSink(sink func(diff.ChangeEvent)) Option {
	return func(m *Monitor) { m.sink = sink }
}

// New creates a monitor. Without options it scans with defaults and
// notifies through the structured log.
func New(config Config, opts ...Option) *Monitor {
	if config.Interval <= 0 {
		config.Interval = DefaultInterval
	}
	if config.StopTimeout <= 0 {
		config.StopTimeout = scheduler.DefaultStopTimeout
	}

	m := &Monitor{
		config:   config,
		scanner:  scanning.NewScanner(),
		notifier: notify.NewLogNotifier(nil),
		targets:  make(map[string]*target),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// AddTarget begins monitoring a host. It runs a best-effort reachability
// check, seeds the baseline snapshot with an immediate scan, and sends a
// start notification. Adding a target that is already monitored fails
// without touching its state.
func (m *Monitor) AddTarget(ctx context.Context, id string) error {
	if id == "" {
		return errors.ErrInvalidTarget(id)
	}

	now := time.Now()
	m.mu.Lock()
	if _, exists := m.targets[id]; exists {
		m.mu.Unlock()
		return errors.ErrAlreadyMonitored(id)
	}
	// Reserve the slot before scanning so a concurrent add of the same
	// target fails fast instead of scanning twice.
	m.targets[id] = &target{
		id:              id,
		monitoringSince: now,
		lastSnapshot:    scanning.NewSnapshot(id),
	}
	m.mu.Unlock()

	if m.reach != nil && !m.reach.IsReachable(ctx, id) {
		logging.Warn("Target did not answer reachability check", "target", id)
	}

	snapshot, err := m.scanner.Scan(ctx, id, m.config.Scan)
	if err != nil {
		m.mu.Lock()
		delete(m.targets, id)
		m.mu.Unlock()
		return errors.WrapMonitorError(errors.CodeScanFailed,
			fmt.Sprintf("initial scan of %s failed", id), err)
	}

	m.mu.Lock()
	record, exists := m.targets[id]
	if !exists {
		// Removed while the seed scan was in flight.
		m.mu.Unlock()
		return errors.ErrNotMonitored(id)
	}
	record.lastSnapshot = snapshot
	m.mu.Unlock()

	metrics.Gauge(metrics.MetricMonitoredTargets, float64(m.targetCount()), nil)
	logging.InfoMonitor("Started monitoring target", id,
		"open_ports", snapshot.OpenCount())

	m.sendNotification(ctx, fmt.Sprintf(
		"🚨 Started monitoring %s\n📊 Initial scan found %d open ports",
		id, snapshot.OpenCount()))

	if m.store != nil {
		if err := m.store.SaveTarget(ctx, id, now); err != nil {
			logging.ErrorMonitor("Failed to persist target", id, err)
		}
		if err := m.store.SaveSnapshot(ctx, snapshot); err != nil {
			logging.ErrorMonitor("Failed to persist snapshot", id, err)
		}
	}
	return nil
}

// RemoveTarget stops monitoring a host and sends a stop notification.
func (m *Monitor) RemoveTarget(ctx context.Context, id string) error {
	m.mu.Lock()
	if _, exists := m.targets[id]; !exists {
		m.mu.Unlock()
		return errors.ErrNotMonitored(id)
	}
	delete(m.targets, id)
	m.mu.Unlock()

	metrics.Gauge(metrics.MetricMonitoredTargets, float64(m.targetCount()), nil)
	logging.InfoMonitor("Stopped monitoring target", id)
	m.sendNotification(ctx, fmt.Sprintf("🛑 Stopped monitoring %s", id))

	if m.store != nil {
		if err := m.store.DeleteTarget(ctx, id); err != nil {
			logging.ErrorMonitor("Failed to remove persisted target", id, err)
		}
	}
	return nil
}

// Start launches the periodic monitoring cycle. Starting an
// already-running monitor is a logged no-op.
func (m *Monitor) Start() error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	if m.running {
		logging.Info("Monitoring already running")
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	sched := scheduler.New(m.config.StopTimeout)
	if err := sched.Schedule(m.config.Interval, func() {
		m.runCycle(ctx)
	}); err != nil {
		cancel()
		return err
	}
	sched.Start()

	// First cycle runs right away instead of a full interval from now.
	sched.Kickoff()

	m.sched = sched
	m.cancel = cancel
	m.running = true

	logging.Info("Monitoring started", "interval", m.config.Interval)
	m.sendNotification(ctx, "🚀 portwarden monitoring started")
	return nil
}

// Stop halts the periodic cycle, waiting up to the stop timeout for an
// in-flight cycle to finish. Stopping an idle monitor is a logged no-op.
func (m *Monitor) Stop() {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	if !m.running {
		logging.Info("Monitoring already stopped")
		return
	}

	completed := m.sched.Stop()
	m.cancel()
	m.sched = nil
	m.cancel = nil
	m.running = false

	logging.Info("Monitoring stopped", "cycle_completed", completed)
	m.sendNotification(context.Background(), "🛑 portwarden monitoring stopped")
}

// Running reports whether the periodic cycle is active.
func (m *Monitor) Running() bool {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()
	return m.running
}

// runCycle scans every monitored target once and reports changes against
// each target's previous snapshot. A failure on one target never affects
// the others.
func (m *Monitor) runCycle(ctx context.Context) {
	timer := metrics.NewTimer(metrics.MetricCycleDuration, nil)
	defer timer.Stop()
	metrics.Counter(metrics.MetricCyclesTotal, nil)

	m.mu.RLock()
	ids := make([]string, 0, len(m.targets))
	for id := range m.targets {
		ids = append(ids, id)
	}
	m.mu.RUnlock()
	sort.Strings(ids)

	for _, id := range ids {
		if ctx.Err() != nil {
			return
		}
		m.cycleTarget(ctx, id)
	}
}

// cycleTarget rescans one target and processes the resulting diff.
func (m *Monitor) cycleTarget(ctx context.Context, id string) {
	snapshot, err := m.scanner.Scan(ctx, id, m.config.Scan)
	if err != nil {
		logging.ErrorMonitor("Cycle scan failed", id, err)
		metrics.Counter(metrics.MetricCycleErrors, metrics.Labels{
			metrics.LabelTarget: id,
		})
		return
	}

	m.mu.Lock()
	record, exists := m.targets[id]
	if !exists {
		// Removed while this cycle was scanning it.
		m.mu.Unlock()
		return
	}
	events := diff.Diff(record.lastSnapshot, snapshot)
	record.lastSnapshot = snapshot
	record.changeLog = append(record.changeLog, events...)
	m.mu.Unlock()

	for i := range events {
		logging.InfoMonitor("Change detected", id,
			"kind", string(events[i].Kind),
			"port", events[i].Port)
		metrics.IncrementChangesDetected(id, string(events[i].Kind))
		m.sendNotification(ctx, events[i].Message)
		if m.sink != nil {
			m.sink(events[i])
		}
	}

	if m.store != nil {
		if err := m.store.SaveSnapshot(ctx, snapshot); err != nil {
			logging.ErrorMonitor("Failed to persist snapshot", id, err)
		}
		if len(events) > 0 {
			if err := m.store.SaveEvents(ctx, events); err != nil {
				logging.ErrorMonitor("Failed to persist events", id, err)
			}
		}
	}
}

// Targets returns the status of every monitored target, sorted by id.
func (m *Monitor) Targets() []TargetStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	statuses := make([]TargetStatus, 0, len(m.targets))
	for _, record := range m.targets {
		statuses = append(statuses, record.status())
	}
	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].ID < statuses[j].ID
	})
	return statuses
}

// Status returns the status of one target.
func (m *Monitor) Status(id string) (TargetStatus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	record, exists := m.targets[id]
	if !exists {
		return TargetStatus{}, errors.ErrNotMonitored(id)
	}
	return record.status(), nil
}

// History returns up to limit of the most recent change events for a
// target, oldest first. A non-positive limit returns the full log.
func (m *Monitor) History(id string, limit int) ([]diff.ChangeEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	record, exists := m.targets[id]
	if !exists {
		return nil, errors.ErrNotMonitored(id)
	}

	log := record.changeLog
	if limit > 0 && len(log) > limit {
		log = log[len(log)-limit:]
	}
	out := make([]diff.ChangeEvent, len(log))
	copy(out, log)
	return out, nil
}

// RunCycleNow executes one monitoring cycle immediately, outside the
// periodic schedule.
func (m *Monitor) RunCycleNow(ctx context.Context) {
	m.runCycle(ctx)
}

// status builds a copy-safe view. Caller holds at least a read lock.
func (t *target) status() TargetStatus {
	return TargetStatus{
		ID:              t.id,
		MonitoringSince: t.monitoringSince,
		LastSnapshot:    t.lastSnapshot.Clone(),
		OpenPorts:       t.lastSnapshot.OpenCount(),
		EventCount:      len(t.changeLog),
	}
}

func (m *Monitor) targetCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.targets)
}

// sendNotification delivers a message, logging failure without
// propagating it.
func (m *Monitor) sendNotification(ctx context.Context, message string) {
	if m.notifier == nil {
		return
	}
	if !m.notifier.Notify(ctx, message) {
		logging.WarnNotify("Notification delivery failed", "message", message)
	}
}
