// Package workers provides a bounded worker pool for concurrent probe
// execution in portwarden. It supports job queuing, graceful shutdown,
// and integrates with the structured logging and metrics systems.
package workers

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mfolkes/portwarden/internal/logging"
	"github.com/mfolkes/portwarden/internal/metrics"
)

// Job represents a unit of work to be executed by a worker.
type Job interface {
	// Execute performs the job and returns an error if it fails.
	Execute(ctx context.Context) error
	// ID returns a unique identifier for the job.
	ID() string
	// Type returns the job type for metrics and logging.
	Type() string
}

// Result represents the result of executing a job.
type Result struct {
	JobID    string
	JobType  string
	Error    error
	Duration time.Duration
}

// Config holds configuration for the worker pool.
type Config struct {
	// Size is the number of worker goroutines to create.
	Size int
	// QueueSize is the maximum number of jobs that can be queued.
	QueueSize int
	// ShutdownTimeout is the maximum time to wait for workers to finish.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a default worker pool configuration.
func DefaultConfig() Config {
	return Config{
		Size:            10,
		QueueSize:       100,
		ShutdownTimeout: 30 * time.Second,
	}
}

// Pool manages a pool of worker goroutines for concurrent job execution.
type Pool struct {
	config     Config
	jobs       chan Job
	results    chan Result
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	startOnce  sync.Once
	shutdown32 int32 // atomic shutdown flag
}

// New creates a new worker pool with the given configuration.
func New(config Config) *Pool {
	if config.Size < 1 {
		config.Size = 1
	}
	if config.QueueSize < config.Size {
		config.QueueSize = config.Size
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = DefaultConfig().ShutdownTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Pool{
		config:  config,
		jobs:    make(chan Job, config.QueueSize),
		results: make(chan Result, config.QueueSize),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start begins the worker pool operations.
func (p *Pool) Start() {
	p.startOnce.Do(func() {
		logging.Debug("Starting worker pool",
			"worker_count", p.config.Size,
			"queue_size", p.config.QueueSize)

		for i := 0; i < p.config.Size; i++ {
			p.wg.Add(1)
			go p.run(i)
		}

		metrics.Gauge("worker_pool_size", float64(p.config.Size), metrics.Labels{
			"component": "workers",
		})
	})
}

// Submit adds a job to the worker pool queue.
func (p *Pool) Submit(job Job) error {
	if atomic.LoadInt32(&p.shutdown32) == 1 {
		return fmt.Errorf("worker pool is shut down")
	}

	select {
	case p.jobs <- job:
		metrics.Counter("jobs_submitted_total", metrics.Labels{
			"job_type": job.Type(),
		})
		return nil
	case <-p.ctx.Done():
		return fmt.Errorf("worker pool is shutting down")
	default:
		return fmt.Errorf("job queue is full")
	}
}

// Results returns a channel for receiving job results. The channel is
// closed once the pool has shut down and all workers have exited.
func (p *Pool) Results() <-chan Result {
	return p.results
}

// Close stops accepting new jobs and lets workers drain the queue.
// The results channel is closed once all queued jobs have finished.
func (p *Pool) Close() {
	if !atomic.CompareAndSwapInt32(&p.shutdown32, 0, 1) {
		return
	}

	close(p.jobs)

	go func() {
		p.wg.Wait()
		close(p.results)
	}()
}

// Shutdown gracefully shuts down the worker pool, waiting up to
// ShutdownTimeout for in-flight jobs to finish.
func (p *Pool) Shutdown() error {
	wasRunning := atomic.CompareAndSwapInt32(&p.shutdown32, 0, 1)
	if wasRunning {
		close(p.jobs)
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logging.Debug("Worker pool shutdown completed")
	case <-time.After(p.config.ShutdownTimeout):
		logging.Warn("Worker pool shutdown timeout, canceling in-flight jobs")
		p.cancel()
		<-done
	}

	if wasRunning {
		close(p.results)
	}
	p.cancel()
	return nil
}

// run executes the worker loop.
func (p *Pool) run(workerID int) {
	defer p.wg.Done()

	for job := range p.jobs {
		select {
		case <-p.ctx.Done():
			return
		default:
		}
		p.executeJob(workerID, job)
	}
}

// executeJob executes a single job and reports its result.
func (p *Pool) executeJob(workerID int, job Job) {
	timer := metrics.NewTimer("job_duration_seconds", metrics.Labels{
		"job_type": job.Type(),
	})
	defer timer.Stop()

	start := time.Now()
	err := job.Execute(p.ctx)
	duration := time.Since(start)

	status := "success"
	if err != nil {
		status = "error"
		logging.Debug("Job failed",
			"job_id", job.ID(),
			"job_type", job.Type(),
			"worker_id", workerID,
			"error", err)
	}

	metrics.Counter("jobs_completed_total", metrics.Labels{
		"job_type": job.Type(),
		"status":   status,
	})

	select {
	case p.results <- Result{
		JobID:    job.ID(),
		JobType:  job.Type(),
		Error:    err,
		Duration: duration,
	}:
	case <-p.ctx.Done():
	}
}

// ProbeJob implements Job for a single port probe within a scan.
type ProbeJob struct {
	id       string
	host     string
	port     uint16
	executor func(ctx context.Context, host string, port uint16) error
}

// NewProbeJob creates a new probe job. The executor closure performs the
// actual probe and records its result; the pool only tracks completion.
func NewProbeJob(id, host string, port uint16,
	executor func(ctx context.Context, host string, port uint16) error) *ProbeJob {
	return &ProbeJob{
		id:       id,
		host:     host,
		port:     port,
		executor: executor,
	}
}

// Execute implements the Job interface.
func (j *ProbeJob) Execute(ctx context.Context) error {
	return j.executor(ctx, j.host, j.port)
}

// ID implements the Job interface.
func (j *ProbeJob) ID() string {
	return j.id
}

// Type implements the Job interface.
func (j *ProbeJob) Type() string {
	return "probe"
}
