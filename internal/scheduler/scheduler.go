// Package scheduler wraps robfig/cron for portwarden's periodic work.
// It runs a single recurring task at a fixed interval, skips a tick when
// the previous run is still in progress, and bounds how long Stop waits
// for an in-flight run to finish.
package scheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/mfolkes/portwarden/internal/logging"
)

// DefaultStopTimeout bounds how long Stop waits for an in-flight run.
const DefaultStopTimeout = 30 * time.Second

// Scheduler runs a single task at a fixed interval.
type Scheduler struct {
	cron        *cron.Cron
	stopTimeout time.Duration

	mu      sync.Mutex
	entryID cron.EntryID
	running bool
}

// New creates a scheduler. A non-positive stopTimeout falls back to
// DefaultStopTimeout.
func New(stopTimeout time.Duration) *Scheduler {
	if stopTimeout <= 0 {
		stopTimeout = DefaultStopTimeout
	}
	return &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.SkipIfStillRunning(cron.DiscardLogger),
			cron.Recover(cron.DiscardLogger),
		)),
		stopTimeout: stopTimeout,
	}
}

// Schedule registers the recurring task. It must be called before Start
// and at most once.
func (s *Scheduler) Schedule(interval time.Duration, task func()) error {
	if interval <= 0 {
		return fmt.Errorf("scheduler interval must be positive, got %v", interval)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.entryID != 0 {
		return fmt.Errorf("scheduler task already registered")
	}

	spec := fmt.Sprintf("@every %s", interval)
	id, err := s.cron.AddFunc(spec, task)
	if err != nil {
		return fmt.Errorf("failed to schedule task: %w", err)
	}
	s.entryID = id
	return nil
}

// Start begins running the schedule. Starting an already-running
// scheduler is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	s.cron.Start()
	s.running = true
}

// Kickoff runs the registered task once immediately in the background.
// cron's @every waits a full interval before the first run; this covers
// the gap. The run goes through the job chain, so it and a scheduled
// run skip each other instead of overlapping.
func (s *Scheduler) Kickoff() {
	s.mu.Lock()
	id := s.entryID
	s.mu.Unlock()
	if id == 0 {
		return
	}

	job := s.cron.Entry(id).WrappedJob
	if job == nil {
		return
	}
	go job.Run()
}

// Stop halts scheduling and waits for an in-flight run to finish, up to
// the stop timeout. It reports whether the run completed in time.
// Stopping an idle scheduler is a no-op that returns true.
func (s *Scheduler) Stop() bool {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return true
	}
	s.running = false
	s.mu.Unlock()

	ctx := s.cron.Stop()
	select {
	case <-ctx.Done():
		return true
	case <-time.After(s.stopTimeout):
		logging.Warn("Scheduler stop timed out waiting for in-flight run",
			"timeout", s.stopTimeout)
		return false
	}
}

// Running reports whether the scheduler has been started and not stopped.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
