// Package metrics provides Prometheus-based metrics collection for portwarden.
// This complements the lightweight registry with industry-standard Prometheus
// collectors for proper observability and monitoring integration.
package metrics

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const (
	// Namespace for all portwarden metrics
	namespace = "portwarden"

	// Subsystems
	subsystemScan     = "scan"
	subsystemMonitor  = "monitor"
	subsystemNotify   = "notify"
	subsystemDatabase = "database"
	subsystemSystem   = "system"
	subsystemAPI      = "api"
)

// PrometheusMetrics holds all Prometheus metric collectors
type PrometheusMetrics struct {
	// Scan metrics
	scansTotal   *prometheus.CounterVec
	scanDuration *prometheus.HistogramVec
	scanErrors   *prometheus.CounterVec
	probesTotal  *prometheus.CounterVec
	activeScans  prometheus.Gauge

	// Monitor metrics
	cyclesTotal      *prometheus.CounterVec
	cycleDuration    prometheus.Histogram
	cycleErrors      *prometheus.CounterVec
	monitoredTargets prometheus.Gauge
	changesDetected  *prometheus.CounterVec

	// Notification metrics
	notificationsTotal *prometheus.CounterVec

	// Database metrics
	dbQueries       *prometheus.CounterVec
	dbQueryDuration *prometheus.HistogramVec
	dbConnections   prometheus.Gauge
	dbErrors        *prometheus.CounterVec

	// API metrics
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	httpErrors   *prometheus.CounterVec

	// System metrics
	memoryUsage prometheus.Gauge
	goroutines  prometheus.Gauge
	uptime      prometheus.Gauge

	// Performance tracking
	startTime  time.Time
	lastUpdate time.Time
	mu         sync.RWMutex
	registry   *prometheus.Registry
}

// NewPrometheusMetrics creates a new Prometheus metrics instance with all collectors
func NewPrometheusMetrics() *PrometheusMetrics {
	registry := prometheus.NewRegistry()

	pm := &PrometheusMetrics{
		startTime: time.Now(),
		registry:  registry,
	}

	// Initialize all metrics
	pm.initScanMetrics()
	pm.initMonitorMetrics()
	pm.initNotifyMetrics()
	pm.initDatabaseMetrics()
	pm.initAPIMetrics()
	pm.initSystemMetrics()

	// Register all metrics with the registry
	pm.registerMetrics()

	// Register standard Go and process collectors for runtime visibility
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return pm
}

// initScanMetrics initializes scan-related metrics
func (pm *PrometheusMetrics) initScanMetrics() {
	pm.scansTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemScan,
			Name:      "total",
			Help:      "Total number of scans performed by status",
		},
		[]string{"status"},
	)

	pm.scanDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystemScan,
			Name:      "duration_seconds",
			Help:      "Duration of scan operations in seconds",
			Buckets:   []float64{0.1, 0.5, 1.0, 5.0, 10.0, 30.0, 60.0, 300.0, 600.0},
		},
		[]string{"target"},
	)

	pm.scanErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemScan,
			Name:      "errors_total",
			Help:      "Total number of scan errors by error type",
		},
		[]string{"error_type"},
	)

	pm.probesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemScan,
			Name:      "probes_total",
			Help:      "Total number of port probes by outcome",
		},
		[]string{"outcome"},
	)

	pm.activeScans = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemScan,
			Name:      "active",
			Help:      "Number of currently active scans",
		},
	)
}

// initMonitorMetrics initializes monitoring cycle metrics
func (pm *PrometheusMetrics) initMonitorMetrics() {
	pm.cyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemMonitor,
			Name:      "cycles_total",
			Help:      "Total number of monitoring cycles by status",
		},
		[]string{"status"},
	)

	pm.cycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystemMonitor,
			Name:      "cycle_duration_seconds",
			Help:      "Duration of full monitoring cycles in seconds",
			Buckets:   []float64{1.0, 5.0, 10.0, 30.0, 60.0, 300.0, 600.0, 1800.0},
		},
	)

	pm.cycleErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemMonitor,
			Name:      "cycle_errors_total",
			Help:      "Total number of per-target cycle failures",
		},
		[]string{"target"},
	)

	pm.monitoredTargets = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemMonitor,
			Name:      "targets",
			Help:      "Number of targets currently monitored",
		},
	)

	pm.changesDetected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemMonitor,
			Name:      "changes_total",
			Help:      "Total number of detected port state changes by kind",
		},
		[]string{"kind"},
	)
}

// initNotifyMetrics initializes notification metrics
func (pm *PrometheusMetrics) initNotifyMetrics() {
	pm.notificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemNotify,
			Name:      "messages_total",
			Help:      "Total number of notification attempts by sink and status",
		},
		[]string{"sink", "status"},
	)
}

// initDatabaseMetrics initializes database-related metrics
func (pm *PrometheusMetrics) initDatabaseMetrics() {
	pm.dbQueries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemDatabase,
			Name:      "queries_total",
			Help:      "Total number of database queries by operation and status",
		},
		[]string{"operation", "status"},
	)

	pm.dbQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystemDatabase,
			Name:      "query_duration_seconds",
			Help:      "Duration of database queries in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 10.0},
		},
		[]string{"operation"},
	)

	pm.dbConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemDatabase,
			Name:      "connections_active",
			Help:      "Number of active database connections",
		},
	)

	pm.dbErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemDatabase,
			Name:      "errors_total",
			Help:      "Total number of database errors by operation and error type",
		},
		[]string{"operation", "error_type"},
	)
}

// initAPIMetrics initializes API-related metrics
func (pm *PrometheusMetrics) initAPIMetrics() {
	pm.httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemAPI,
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method, path and status",
		},
		[]string{"method", "path", "status"},
	)

	pm.httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystemAPI,
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 2.0, 5.0},
		},
		[]string{"method", "path"},
	)

	pm.httpErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemAPI,
			Name:      "errors_total",
			Help:      "Total number of HTTP errors by method, path and error type",
		},
		[]string{"method", "path", "error_type"},
	)
}

// initSystemMetrics initializes system-related metrics
func (pm *PrometheusMetrics) initSystemMetrics() {
	pm.memoryUsage = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemSystem,
			Name:      "memory_bytes",
			Help:      "Current memory usage in bytes",
		},
	)

	pm.goroutines = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemSystem,
			Name:      "goroutines",
			Help:      "Current number of goroutines",
		},
	)

	pm.uptime = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemSystem,
			Name:      "uptime_seconds",
			Help:      "Application uptime in seconds",
		},
	)
}

// registerMetrics registers all metrics with the Prometheus registry
func (pm *PrometheusMetrics) registerMetrics() {
	// Scan metrics
	pm.registry.MustRegister(pm.scansTotal)
	pm.registry.MustRegister(pm.scanDuration)
	pm.registry.MustRegister(pm.scanErrors)
	pm.registry.MustRegister(pm.probesTotal)
	pm.registry.MustRegister(pm.activeScans)

	// Monitor metrics
	pm.registry.MustRegister(pm.cyclesTotal)
	pm.registry.MustRegister(pm.cycleDuration)
	pm.registry.MustRegister(pm.cycleErrors)
	pm.registry.MustRegister(pm.monitoredTargets)
	pm.registry.MustRegister(pm.changesDetected)

	// Notification metrics
	pm.registry.MustRegister(pm.notificationsTotal)

	// Database metrics
	pm.registry.MustRegister(pm.dbQueries)
	pm.registry.MustRegister(pm.dbQueryDuration)
	pm.registry.MustRegister(pm.dbConnections)
	pm.registry.MustRegister(pm.dbErrors)

	// API metrics
	pm.registry.MustRegister(pm.httpRequests)
	pm.registry.MustRegister(pm.httpDuration)
	pm.registry.MustRegister(pm.httpErrors)

	// System metrics
	pm.registry.MustRegister(pm.memoryUsage)
	pm.registry.MustRegister(pm.goroutines)
	pm.registry.MustRegister(pm.uptime)
}

// GetRegistry returns the Prometheus registry for HTTP handler
func (pm *PrometheusMetrics) GetRegistry() *prometheus.Registry {
	return pm.registry
}

// Scan Metrics Methods

// IncrementScansTotal increments the total scan counter
func (pm *PrometheusMetrics) IncrementScansTotal(status string) {
	pm.scansTotal.WithLabelValues(status).Inc()
}

// RecordScanDuration records a scan duration
func (pm *PrometheusMetrics) RecordScanDuration(target string, duration time.Duration) {
	pm.scanDuration.WithLabelValues(target).Observe(duration.Seconds())
}

// IncrementScanErrors increments scan error counter
func (pm *PrometheusMetrics) IncrementScanErrors(errorType string) {
	pm.scanErrors.WithLabelValues(errorType).Inc()
}

// IncrementProbes increments the probe counter by outcome (open, closed)
func (pm *PrometheusMetrics) IncrementProbes(outcome string, count int) {
	pm.probesTotal.WithLabelValues(outcome).Add(float64(count))
}

// SetActiveScans sets the number of active scans
func (pm *PrometheusMetrics) SetActiveScans(count int) {
	pm.activeScans.Set(float64(count))
}

// Monitor Metrics Methods

// IncrementCyclesTotal increments the cycle counter
func (pm *PrometheusMetrics) IncrementCyclesTotal(status string) {
	pm.cyclesTotal.WithLabelValues(status).Inc()
}

// RecordCycleDuration records a full cycle duration
func (pm *PrometheusMetrics) RecordCycleDuration(duration time.Duration) {
	pm.cycleDuration.Observe(duration.Seconds())
}

// IncrementCycleErrors increments the per-target cycle failure counter
func (pm *PrometheusMetrics) IncrementCycleErrors(target string) {
	pm.cycleErrors.WithLabelValues(target).Inc()
}

// SetMonitoredTargets sets the number of monitored targets
func (pm *PrometheusMetrics) SetMonitoredTargets(count int) {
	pm.monitoredTargets.Set(float64(count))
}

// IncrementChangesDetected increments the change counter by kind
func (pm *PrometheusMetrics) IncrementChangesDetected(kind string, count int) {
	pm.changesDetected.WithLabelValues(kind).Add(float64(count))
}

// Notification Metrics Methods

// IncrementNotifications counts a notification attempt per sink and status
func (pm *PrometheusMetrics) IncrementNotifications(sink, status string) {
	pm.notificationsTotal.WithLabelValues(sink, status).Inc()
}

// Database Metrics Methods

// IncrementDatabaseQueries increments database query counter
func (pm *PrometheusMetrics) IncrementDatabaseQueries(operation, status string) {
	pm.dbQueries.WithLabelValues(operation, status).Inc()
}

// RecordDatabaseQueryDuration records database query duration
func (pm *PrometheusMetrics) RecordDatabaseQueryDuration(operation string, duration time.Duration) {
	pm.dbQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// SetActiveConnections sets the number of active database connections
func (pm *PrometheusMetrics) SetActiveConnections(count int) {
	pm.dbConnections.Set(float64(count))
}

// IncrementDatabaseErrors increments database error counter
func (pm *PrometheusMetrics) IncrementDatabaseErrors(operation, errorType string) {
	pm.dbErrors.WithLabelValues(operation, errorType).Inc()
}

// API Metrics Methods

// IncrementHTTPRequests increments HTTP request counter
func (pm *PrometheusMetrics) IncrementHTTPRequests(method, path, status string) {
	pm.httpRequests.WithLabelValues(method, path, status).Inc()
}

// RecordHTTPDuration records HTTP request duration
func (pm *PrometheusMetrics) RecordHTTPDuration(method, path string, duration time.Duration) {
	pm.httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// IncrementHTTPErrors increments HTTP error counter
func (pm *PrometheusMetrics) IncrementHTTPErrors(method, path, errorType string) {
	pm.httpErrors.WithLabelValues(method, path, errorType).Inc()
}

// System Metrics Methods

// UpdateSystemMetrics updates all system metrics with current values
func (pm *PrometheusMetrics) UpdateSystemMetrics() {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	// Update memory usage
	pm.memoryUsage.Set(float64(memStats.Alloc))

	// Update goroutine count
	pm.goroutines.Set(float64(runtime.NumGoroutine()))

	// Update uptime
	uptime := time.Since(pm.startTime).Seconds()
	pm.uptime.Set(uptime)

	// Update last update time
	pm.lastUpdate = time.Now()
}

// Utility Methods

// GetUptime returns the application uptime
func (pm *PrometheusMetrics) GetUptime() time.Duration {
	return time.Since(pm.startTime)
}

// GetLastUpdate returns the last metrics update time
func (pm *PrometheusMetrics) GetLastUpdate() time.Time {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.lastUpdate
}

// StartPeriodicUpdates starts a goroutine that periodically updates system metrics
func (pm *PrometheusMetrics) StartPeriodicUpdates(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Update immediately
	pm.UpdateSystemMetrics()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pm.UpdateSystemMetrics()
		}
	}
}

// Global instance for easy access
var globalMetrics *PrometheusMetrics
var metricsOnce sync.Once

// GetGlobalMetrics returns the global Prometheus metrics instance
func GetGlobalMetrics() *PrometheusMetrics {
	metricsOnce.Do(func() {
		globalMetrics = NewPrometheusMetrics()
	})
	return globalMetrics
}

// Convenience functions using global instance

// RecordScanDurationPrometheus records a scan duration using global metrics
func RecordScanDurationPrometheus(target string, duration time.Duration) {
	GetGlobalMetrics().RecordScanDuration(target, duration)
}

// IncrementScanTotalPrometheus increments scan total using global metrics
func IncrementScanTotalPrometheus(status string) {
	GetGlobalMetrics().IncrementScansTotal(status)
}

// RecordCycleDurationPrometheus records cycle duration using global metrics
func RecordCycleDurationPrometheus(duration time.Duration) {
	GetGlobalMetrics().RecordCycleDuration(duration)
}

// IncrementChangesDetectedPrometheus increments change counters using global metrics
func IncrementChangesDetectedPrometheus(kind string, count int) {
	GetGlobalMetrics().IncrementChangesDetected(kind, count)
}

// RecordDatabaseQueryPrometheus records database query metrics using global metrics
func RecordDatabaseQueryPrometheus(operation string, duration time.Duration, success bool) {
	metrics := GetGlobalMetrics()
	status := "success"
	if !success {
		status = "error"
	}
	metrics.IncrementDatabaseQueries(operation, status)
	metrics.RecordDatabaseQueryDuration(operation, duration)
}

// SetActiveConnectionsPrometheus sets active database connections using global metrics
func SetActiveConnectionsPrometheus(count int) {
	GetGlobalMetrics().SetActiveConnections(count)
}
