package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mfolkes/portwarden/internal/store"
)

func TestHealthWithoutStore(t *testing.T) {
	h := NewHealthHandler(testMonitor(1), nil, testLogger(), nil)

	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/health", http.NoBody))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "ok", resp.Checks["monitor"])
	assert.NotContains(t, resp.Checks, "database")
}

func TestHealthDegradedOnDatabaseFailure(t *testing.T) {
	db, mock, err := sqlmock.New(
		sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp),
		sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	mock.ExpectPing().WillReturnError(assert.AnError)
	st := store.NewWithDB(sqlx.NewDb(db, "postgres"))

	h := NewHealthHandler(testMonitor(1), st, testLogger(), nil)

	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/health", http.NoBody))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, "unreachable", resp.Checks["database"])
}

func TestLiveness(t *testing.T) {
	h := NewHealthHandler(testMonitor(1), nil, testLogger(), nil)

	rec := httptest.NewRecorder()
	h.Liveness(rec, httptest.NewRequest(http.MethodGet, "/liveness", http.NoBody))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "alive")
}

func TestVersion(t *testing.T) {
	h := NewHealthHandler(testMonitor(1), nil, testLogger(), nil)

	rec := httptest.NewRecorder()
	h.Version(rec, httptest.NewRequest(http.MethodGet, "/version", http.NoBody))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, Version, resp["version"])
	assert.NotEmpty(t, resp["go_version"])
}

func TestStatusSummary(t *testing.T) {
	_, port := startListener(t)
	mon := testMonitor(port)
	require.NoError(t, mon.AddTarget(context.Background(), "127.0.0.1"))

	h := NewHealthHandler(mon, nil, testLogger(), nil)

	rec := httptest.NewRecorder()
	h.Status(rec, httptest.NewRequest(http.MethodGet, "/status", http.NoBody))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Monitoring)
	assert.Equal(t, 1, resp.TargetCount)
	assert.Equal(t, 1, resp.TotalOpenPorts)
	assert.False(t, resp.DatabaseEnabled)
	assert.Positive(t, resp.Goroutines)
}
