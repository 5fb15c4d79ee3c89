package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusMetricsExposition(t *testing.T) {
	pm := NewPrometheusMetrics()
	pm.UpdateSystemMetrics()

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)

	handler := promhttp.HandlerFor(pm.GetRegistry(), promhttp.HandlerOpts{})
	handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.True(t, strings.Contains(body, "portwarden_system_uptime_seconds"),
		"expected uptime metric in output")
	assert.True(t, strings.Contains(body, "portwarden_system_goroutines"))
}

func TestPrometheusScanMetrics(t *testing.T) {
	pm := NewPrometheusMetrics()

	pm.IncrementScansTotal("success")
	pm.IncrementScansTotal("success")
	pm.IncrementScansTotal("error")
	assert.Equal(t, 2, testutil.CollectAndCount(pm.scansTotal))

	pm.RecordScanDuration("192.168.1.10", 3*time.Second)
	assert.Equal(t, 1, testutil.CollectAndCount(pm.scanDuration))

	pm.IncrementProbes("open", 5)
	pm.IncrementProbes("closed", 95)
	assert.Equal(t, 2, testutil.CollectAndCount(pm.probesTotal))

	pm.SetActiveScans(3)
	assert.Equal(t, float64(3), testutil.ToFloat64(pm.activeScans))
}

func TestPrometheusMonitorMetrics(t *testing.T) {
	pm := NewPrometheusMetrics()

	pm.IncrementCyclesTotal("success")
	pm.RecordCycleDuration(12 * time.Second)
	pm.IncrementCycleErrors("10.0.0.1")
	pm.SetMonitoredTargets(4)
	pm.IncrementChangesDetected("port_opened", 2)
	pm.IncrementChangesDetected("port_closed", 1)

	assert.Equal(t, float64(4), testutil.ToFloat64(pm.monitoredTargets))
	assert.Equal(t, float64(2),
		testutil.ToFloat64(pm.changesDetected.WithLabelValues("port_opened")))
	assert.Equal(t, float64(1),
		testutil.ToFloat64(pm.cycleErrors.WithLabelValues("10.0.0.1")))
}

func TestPrometheusNotificationMetrics(t *testing.T) {
	pm := NewPrometheusMetrics()

	pm.IncrementNotifications("telegram", "success")
	pm.IncrementNotifications("telegram", "error")
	pm.IncrementNotifications("log", "success")

	assert.Equal(t, float64(1),
		testutil.ToFloat64(pm.notificationsTotal.WithLabelValues("telegram", "success")))
	assert.Equal(t, 3, testutil.CollectAndCount(pm.notificationsTotal))
}

func TestPrometheusDatabaseMetrics(t *testing.T) {
	pm := NewPrometheusMetrics()

	pm.IncrementDatabaseQueries("save_snapshot", "success")
	pm.RecordDatabaseQueryDuration("save_snapshot", 5*time.Millisecond)
	pm.SetActiveConnections(2)
	pm.IncrementDatabaseErrors("save_events", "query")

	assert.Equal(t, float64(2), testutil.ToFloat64(pm.dbConnections))
	assert.Equal(t, float64(1),
		testutil.ToFloat64(pm.dbQueries.WithLabelValues("save_snapshot", "success")))
}

func TestPrometheusHTTPMetrics(t *testing.T) {
	pm := NewPrometheusMetrics()

	pm.IncrementHTTPRequests("GET", "/api/v1/targets", "200")
	pm.RecordHTTPDuration("GET", "/api/v1/targets", 15*time.Millisecond)
	pm.IncrementHTTPErrors("POST", "/api/v1/targets", "validation")

	assert.Equal(t, float64(1),
		testutil.ToFloat64(pm.httpRequests.WithLabelValues("GET", "/api/v1/targets", "200")))
}

func TestGlobalMetricsSingleton(t *testing.T) {
	a := GetGlobalMetrics()
	b := GetGlobalMetrics()
	assert.Same(t, a, b)
}

func TestUptimeAdvances(t *testing.T) {
	pm := NewPrometheusMetrics()
	time.Sleep(10 * time.Millisecond)
	assert.Greater(t, pm.GetUptime(), time.Duration(0))
}
