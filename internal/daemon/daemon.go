// Package daemon provides the background service functionality for
// portwarden. It supervises the monitor loop, the optional API server,
// and the optional database connection, and handles PID files and
// process signals.
package daemon

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/mfolkes/portwarden/internal/api"
	"github.com/mfolkes/portwarden/internal/auth"
	"github.com/mfolkes/portwarden/internal/config"
	"github.com/mfolkes/portwarden/internal/diff"
	"github.com/mfolkes/portwarden/internal/logging"
	"github.com/mfolkes/portwarden/internal/monitor"
	"github.com/mfolkes/portwarden/internal/notify"
	"github.com/mfolkes/portwarden/internal/store"
)

const (
	// Health check interval in seconds.
	healthCheckIntervalSeconds = 10

	// Minimum time between event retention sweeps.
	pruneInterval = 24 * time.Hour
)

// File permission constants.
const (
	DefaultDirPermissions  = 0o750
	DefaultFilePermissions = 0o600
)

// Daemon represents the main daemon process.
type Daemon struct {
	config     *config.Config
	configPath string
	store      *store.Store
	keys       *auth.KeyStore
	monitor    *monitor.Monitor
	apiServer  *api.Server
	pidFile    string
	logger     *logging.Logger
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
	debugMode  bool
	lastPrune  time.Time
	mu         sync.RWMutex
}

// New creates a new daemon instance. configPath is re-read on SIGHUP;
// empty means reloads fall back to the default search path.
func New(cfg *config.Config, configPath string) *Daemon {
	ctx, cancel := context.WithCancel(context.Background())

	return &Daemon{
		config:     cfg,
		configPath: configPath,
		pidFile:    cfg.Daemon.PIDFile,
		logger:     logging.Default().WithComponent("daemon"),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// Start starts the daemon and blocks until shutdown.
func (d *Daemon) Start() error {
	d.logger.Info("Starting portwarden daemon")

	if err := d.config.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	if d.config.Daemon.WorkDir != "" {
		if err := os.MkdirAll(d.config.Daemon.WorkDir, DefaultDirPermissions); err != nil {
			return fmt.Errorf("failed to create working directory: %w", err)
		}
		if err := os.Chdir(d.config.Daemon.WorkDir); err != nil {
			return fmt.Errorf("failed to change to working directory: %w", err)
		}
	}

	if d.config.Daemon.Daemonize {
		if err := d.fork(); err != nil {
			return fmt.Errorf("failed to fork daemon: %w", err)
		}
	}

	if err := d.createPIDFile(); err != nil {
		return fmt.Errorf("failed to create PID file: %w", err)
	}

	d.setupSignalHandlers()

	if err := d.initStore(); err != nil {
		d.cleanup()
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := d.initMonitor(); err != nil {
		d.cleanup()
		return fmt.Errorf("failed to initialize monitor: %w", err)
	}

	if err := d.initAPIServer(); err != nil {
		d.cleanup()
		return fmt.Errorf("failed to initialize API server: %w", err)
	}

	d.restoreTargets()

	if err := d.monitor.Start(); err != nil {
		d.cleanup()
		return fmt.Errorf("failed to start monitor: %w", err)
	}

	d.logger.Info("Daemon started successfully", "pid", os.Getpid())
	return d.run()
}

// Stop stops the daemon gracefully.
func (d *Daemon) Stop() error {
	d.logger.Info("Stopping daemon")

	d.cancel()

	select {
	case <-d.done:
		d.logger.Info("Daemon stopped gracefully")
	case <-time.After(d.config.Daemon.ShutdownTimeout):
		d.logger.Warn("Shutdown timeout reached, forcing exit")
	}

	d.cleanup()
	return nil
}

// fork creates a background process and exits the parent.
func (d *Daemon) fork() error {
	if os.Getppid() == 1 {
		return nil // Already detached
	}

	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}

	// Strip the daemonize flag so the child does not fork again.
	args := []string{executable}
	for _, arg := range os.Args[1:] {
		if arg != "--daemonize" && arg != "-d" {
			args = append(args, arg)
		}
	}

	procAttr := &os.ProcAttr{
		Dir:   d.config.Daemon.WorkDir,
		Env:   os.Environ(),
		Files: []*os.File{nil, nil, nil},
	}

	process, err := os.StartProcess(executable, args, procAttr)
	if err != nil {
		return fmt.Errorf("failed to start daemon process: %w", err)
	}

	d.logger.Info("Daemon forked", "pid", process.Pid)

	os.Exit(0)
	return nil
}

// createPIDFile writes the current PID, refusing to start when another
// live daemon owns the file.
func (d *Daemon) createPIDFile() error {
	if d.pidFile == "" {
		return nil
	}

	dir := filepath.Dir(d.pidFile)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		return fmt.Errorf("failed to create PID file directory: %w", err)
	}

	if err := d.checkExistingPID(); err != nil {
		return err
	}

	pid := os.Getpid()
	if err := os.WriteFile(d.pidFile, []byte(strconv.Itoa(pid)), DefaultFilePermissions); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}

	d.logger.Info("Created PID file", "path", d.pidFile, "pid", pid)
	return nil
}

// checkExistingPID inspects an existing PID file. Stale files are
// removed; a PID belonging to a live process aborts startup.
func (d *Daemon) checkExistingPID() error {
	if _, err := os.Stat(d.pidFile); os.IsNotExist(err) {
		return nil
	}

	data, err := os.ReadFile(d.pidFile)
	if err != nil {
		return fmt.Errorf("failed to read existing PID file: %w", err)
	}

	pid, err := strconv.Atoi(string(data))
	if err != nil {
		_ = os.Remove(d.pidFile)
		return nil
	}

	if d.isProcessRunning(pid) {
		return fmt.Errorf("daemon already running with PID %d", pid)
	}

	_ = os.Remove(d.pidFile)
	return nil
}

// isProcessRunning probes the PID with signal 0.
func (d *Daemon) isProcessRunning(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	err = process.Signal(syscall.Signal(0))
	return err == nil
}

// setupSignalHandlers installs the process signal loop.
func (d *Daemon) setupSignalHandlers() {
	sigChan := make(chan os.Signal, 1)

	signal.Notify(sigChan,
		syscall.SIGTERM, // Termination signal
		syscall.SIGINT,  // Interrupt signal (Ctrl+C)
		syscall.SIGHUP,  // Reload configuration
		syscall.SIGUSR1, // Dump status
		syscall.SIGUSR2, // Toggle debug mode
	)

	go func() {
		for sig := range sigChan {
			d.logger.Info("Received signal", "signal", sig.String())

			switch sig {
			case syscall.SIGTERM, syscall.SIGINT:
				d.logger.Info("Initiating graceful shutdown")
				d.cancel()
				return
			case syscall.SIGHUP:
				if err := d.reloadConfiguration(); err != nil {
					d.logger.Error("Configuration reload failed", "error", err)
				} else {
					d.logger.Info("Configuration reloaded")
				}
			case syscall.SIGUSR1:
				d.dumpStatus()
			case syscall.SIGUSR2:
				d.toggleDebugMode()
			}
		}
	}()
}

// initStore connects to the database when persistence is enabled and
// brings up the API key store on the same connection.
func (d *Daemon) initStore() error {
	if !d.config.Database.Enabled {
		d.logger.Info("Database disabled, running in-memory only")
		return nil
	}

	d.logger.InfoDatabase("Connecting to database",
		"host", d.config.Database.Host, "database", d.config.Database.Database)

	dbConfig := d.config.GetDatabaseConfig()
	st, err := store.Connect(d.ctx, &dbConfig)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}

	keys, err := auth.NewKeyStore(d.ctx, st.DB())
	if err != nil {
		_ = st.Close()
		return fmt.Errorf("key store initialization failed: %w", err)
	}

	d.store = st
	d.keys = keys
	d.logger.InfoDatabase("Database connection established")
	return nil
}

// initMonitor builds the monitor with the configured notifiers. Change
// events are forwarded to the API websocket hub when the API is up.
func (d *Daemon) initMonitor() error {
	scanCfg, err := d.config.ScanConfig()
	if err != nil {
		return fmt.Errorf("invalid scan configuration: %w", err)
	}

	opts := []monitor.Option{
		monitor.WithNotifier(d.buildNotifier()),
		monitor.WithEventSink(func(event diff.ChangeEvent) {
			d.mu.RLock()
			srv := d.apiServer
			d.mu.RUnlock()
			if srv != nil {
				srv.WebSocket().BroadcastEvent(event)
			}
		}),
	}
	if d.store != nil {
		opts = append(opts, monitor.WithStore(d.store))
	}

	d.monitor = monitor.New(monitor.Config{
		Interval:    d.config.Monitor.Interval,
		StopTimeout: d.config.Monitor.StopTimeout,
		Scan:        scanCfg,
	}, opts...)

	return nil
}

// buildNotifier assembles the notification chain. The log sink is
// always present; Telegram joins it when configured.
func (d *Daemon) buildNotifier() notify.Notifier {
	logSink := notify.NewLogNotifier(d.logger)
	tg := d.config.Notifications.Telegram
	if !tg.Enabled {
		return logSink
	}
	return notify.NewMultiNotifier(
		logSink,
		notify.NewTelegramNotifier(tg.Token, tg.ChatID, d.logger),
	)
}

// initAPIServer brings up the HTTP API when enabled.
func (d *Daemon) initAPIServer() error {
	if !d.config.IsAPIEnabled() {
		d.logger.Info("API server disabled, skipping initialization")
		return nil
	}

	d.logger.Info("Initializing API server", "address", d.config.GetAPIAddress())

	opts := []api.Option{}
	if d.store != nil {
		opts = append(opts, api.WithStore(d.store))
	}
	if d.keys != nil {
		opts = append(opts, api.WithKeyStore(d.keys))
	}

	apiServer, err := api.New(d.config, d.monitor, d.logger.Logger, opts...)
	if err != nil {
		return fmt.Errorf("API server creation failed: %w", err)
	}

	d.mu.Lock()
	d.apiServer = apiServer
	d.mu.Unlock()
	d.logger.Info("API server initialized")
	return nil
}

// restoreTargets re-adds persisted targets after a restart so
// monitoring resumes without operator intervention.
func (d *Daemon) restoreTargets() {
	if d.store == nil {
		return
	}

	records, err := d.store.ListTargets(d.ctx)
	if err != nil {
		d.logger.Warn("Failed to load persisted targets", "error", err)
		return
	}

	for i := range records {
		if err := d.monitor.AddTarget(d.ctx, records[i].Host); err != nil {
			d.logger.Warn("Failed to restore target",
				"host", records[i].Host, "error", err)
		}
	}

	if len(records) > 0 {
		d.logger.Info("Restored persisted targets", "count", len(records))
	}
}

// run executes the main daemon loop.
func (d *Daemon) run() error {
	d.mu.RLock()
	srv := d.apiServer
	d.mu.RUnlock()

	if srv != nil {
		go func() {
			d.logger.Info("Starting API server", "address", d.config.GetAPIAddress())
			if err := srv.Start(); err != nil {
				d.logger.Error("API server error", "error", err)
				d.cancel()
			}
		}()
	}

	ticker := time.NewTicker(healthCheckIntervalSeconds * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			d.logger.Info("Shutdown signal received")
			close(d.done)
			return nil

		case <-ticker.C:
			d.performHealthCheck()
		}
	}
}

// performHealthCheck verifies the database connection and attempts a
// reconnect when it has gone away.
func (d *Daemon) performHealthCheck() {
	if d.store == nil {
		return
	}

	if err := d.store.Ping(d.ctx); err != nil {
		d.logger.ErrorDatabase("Database health check failed", err)
		if err := d.reconnectDatabase(); err != nil {
			d.logger.ErrorDatabase("Database reconnection failed", err)
		}
		return
	}

	d.pruneEvents()
}

// pruneEvents enforces the configured event retention at most once per
// day.
func (d *Daemon) pruneEvents() {
	retention := d.config.Database.EventRetention
	if retention <= 0 {
		return
	}

	d.mu.Lock()
	due := time.Since(d.lastPrune) >= pruneInterval
	if due {
		d.lastPrune = time.Now()
	}
	d.mu.Unlock()
	if !due {
		return
	}

	removed, err := d.store.PruneEvents(d.ctx, time.Now().Add(-retention))
	if err != nil {
		d.logger.ErrorDatabase("Event pruning failed", err)
		return
	}
	if removed > 0 {
		d.logger.InfoDatabase("Pruned old change events", "removed", removed)
	}
}

// reconnectDatabase attempts to reconnect with exponential backoff.
func (d *Daemon) reconnectDatabase() error {
	const maxRetries = 5
	const baseDelay = 2 * time.Second
	const maxDelay = 30 * time.Second

	d.logger.InfoDatabase("Attempting database reconnection")

	for attempt := 1; attempt <= maxRetries; attempt++ {
		multiplier := int64(1) << (attempt - 1)
		delay := time.Duration(int64(baseDelay) * multiplier)
		if delay > maxDelay {
			delay = maxDelay
		}

		if attempt > 1 {
			select {
			case <-d.ctx.Done():
				return fmt.Errorf("reconnection cancelled due to shutdown")
			case <-time.After(delay):
			}
		}

		if d.store != nil {
			if err := d.store.Close(); err != nil {
				d.logger.Warn("Failed to close existing database connection", "error", err)
			}
		}

		dbConfig := d.config.GetDatabaseConfig()
		st, err := store.Connect(d.ctx, &dbConfig)
		if err != nil {
			d.logger.Warn("Reconnection attempt failed",
				"attempt", attempt, "max", maxRetries, "error", err)
			if attempt == maxRetries {
				return fmt.Errorf("failed to reconnect after %d attempts: %w", maxRetries, err)
			}
			continue
		}

		d.store = st
		d.logger.InfoDatabase("Database reconnection successful")
		return nil
	}

	return fmt.Errorf("all reconnection attempts failed")
}

// cleanup releases resources in reverse startup order.
func (d *Daemon) cleanup() {
	d.logger.Info("Performing cleanup")

	if d.monitor != nil && d.monitor.Running() {
		d.monitor.Stop()
	}

	d.mu.RLock()
	srv := d.apiServer
	d.mu.RUnlock()
	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), d.shutdownTimeout())
		if err := srv.Shutdown(shutdownCtx); err != nil {
			d.logger.Error("Error stopping API server", "error", err)
		}
		cancel()
	}

	if d.store != nil {
		if err := d.store.Close(); err != nil {
			d.logger.Error("Error closing database", "error", err)
		}
	}

	if d.pidFile != "" {
		if err := os.Remove(d.pidFile); err != nil && !os.IsNotExist(err) {
			d.logger.Error("Error removing PID file", "error", err)
		}
	}

	d.logger.Info("Cleanup completed")
}

func (d *Daemon) shutdownTimeout() time.Duration {
	if d.config.Daemon.ShutdownTimeout > 0 {
		return d.config.Daemon.ShutdownTimeout
	}
	return 30 * time.Second
}

// reloadConfiguration re-reads the configuration file. Logging settings
// apply immediately; an API address change restarts the API server.
// Scan and monitor settings apply on the next daemon restart.
func (d *Daemon) reloadConfiguration() error {
	newConfig, err := config.Load(d.configPath)
	if err != nil {
		return fmt.Errorf("failed to load new configuration: %w", err)
	}

	if err := newConfig.Validate(); err != nil {
		return fmt.Errorf("new configuration is invalid: %w", err)
	}

	if newConfig.Logging != d.config.Logging {
		if err := d.reloadLogging(newConfig); err != nil {
			d.logger.Error("Failed to reload logging configuration", "error", err)
		}
	}

	if d.hasAPIConfigChanged(d.config, newConfig) {
		d.restartAPIServer(newConfig)
	}

	d.config = newConfig
	return nil
}

// reloadLogging rebuilds the process logger from the new settings.
func (d *Daemon) reloadLogging(cfg *config.Config) error {
	logger, err := logging.New(logging.Config{
		Level:  logging.LogLevel(cfg.Logging.Level),
		Format: logging.LogFormat(cfg.Logging.Format),
		Output: cfg.Logging.Output,
	})
	if err != nil {
		return err
	}
	logging.SetDefault(logger)
	d.logger = logger.WithComponent("daemon")
	return nil
}

// dumpStatus writes a status report to the log.
func (d *Daemon) dumpStatus() {
	d.mu.RLock()
	debugMode := d.debugMode
	d.mu.RUnlock()

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	d.logger.Info("Status dump",
		"pid", os.Getpid(),
		"debug_mode", debugMode,
		"goroutines", runtime.NumGoroutine(),
		"alloc_kb", m.Alloc/1024,
		"sys_kb", m.Sys/1024,
		"num_gc", m.NumGC)

	if d.monitor != nil {
		targets := d.monitor.Targets()
		openPorts := 0
		for i := range targets {
			openPorts += targets[i].OpenPorts
		}
		d.logger.Info("Monitor status",
			"running", d.monitor.Running(),
			"targets", len(targets),
			"open_ports", openPorts)
	}

	if d.store != nil {
		if err := d.store.Ping(d.ctx); err != nil {
			d.logger.Warn("Database status: disconnected", "error", err)
		} else {
			d.logger.Info("Database status: connected")
		}
	} else {
		d.logger.Info("Database status: not configured")
	}

	d.mu.RLock()
	srv := d.apiServer
	d.mu.RUnlock()
	if srv != nil {
		d.logger.Info("API server status",
			"address", d.config.GetAPIAddress(),
			"websocket_clients", srv.WebSocket().ConnectedClients())
	} else {
		d.logger.Info("API server status: disabled")
	}
}

// toggleDebugMode flips verbose logging at runtime.
func (d *Daemon) toggleDebugMode() {
	d.mu.Lock()
	d.debugMode = !d.debugMode
	newMode := d.debugMode
	d.mu.Unlock()

	if newMode {
		d.logger.Info("Debug mode enabled")
	} else {
		d.logger.Info("Debug mode disabled")
	}
}

// hasAPIConfigChanged reports whether the API listen settings differ.
func (d *Daemon) hasAPIConfigChanged(oldConfig, newConfig *config.Config) bool {
	return oldConfig.API.Enabled != newConfig.API.Enabled ||
		oldConfig.API.ListenAddr != newConfig.API.ListenAddr ||
		oldConfig.API.Port != newConfig.API.Port
}

// restartAPIServer stops and restarts the API server with new settings.
func (d *Daemon) restartAPIServer(newConfig *config.Config) {
	d.logger.Info("API configuration changed, restarting API server")

	d.mu.Lock()
	srv := d.apiServer
	d.apiServer = nil
	d.mu.Unlock()

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), d.shutdownTimeout())
		if err := srv.Shutdown(shutdownCtx); err != nil {
			d.logger.Error("Failed to stop API server", "error", err)
		}
		cancel()
	}

	if !newConfig.API.Enabled {
		return
	}

	opts := []api.Option{}
	if d.store != nil {
		opts = append(opts, api.WithStore(d.store))
	}
	if d.keys != nil {
		opts = append(opts, api.WithKeyStore(d.keys))
	}

	apiServer, err := api.New(newConfig, d.monitor, d.logger.Logger, opts...)
	if err != nil {
		d.logger.Error("Failed to create API server with new config", "error", err)
		return
	}

	d.mu.Lock()
	d.apiServer = apiServer
	d.mu.Unlock()

	go func() {
		if err := apiServer.Start(); err != nil {
			d.logger.Error("API server error", "error", err)
		}
	}()
}

// GetPID returns the daemon's PID.
func (d *Daemon) GetPID() int {
	return os.Getpid()
}

// IsRunning checks if the daemon is running.
func (d *Daemon) IsRunning() bool {
	select {
	case <-d.ctx.Done():
		return false
	default:
		return true
	}
}

// IsDebugMode returns the current debug mode state.
func (d *Daemon) IsDebugMode() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.debugMode
}

// GetContext returns the daemon's context.
func (d *Daemon) GetContext() context.Context {
	return d.ctx
}

// GetMonitor returns the monitor instance.
func (d *Daemon) GetMonitor() *monitor.Monitor {
	return d.monitor
}

// GetConfig returns the daemon configuration.
func (d *Daemon) GetConfig() *config.Config {
	return d.config
}
