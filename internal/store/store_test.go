package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mfolkes/portwarden/internal/diff"
	"github.com/mfolkes/portwarden/internal/errors"
	"github.com/mfolkes/portwarden/internal/scanning"
)

// newMockStore returns a Store backed by sqlmock.
func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewWithDB(sqlx.NewDb(db, "postgres")), mock
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.False(t, cfg.Enabled)
	assert.Equal(t, "localhost", cfg.Host)
	assert.Equal(t, 5432, cfg.Port)
	assert.Equal(t, "disable", cfg.SSLMode)
	assert.Empty(t, cfg.Database)
	assert.Empty(t, cfg.Username)
}

func TestSaveTarget(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`INSERT INTO targets`).
		WithArgs(sqlmock.AnyArg(), "192.168.1.10", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.SaveTarget(context.Background(), "192.168.1.10", time.Now())
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteTarget(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`DELETE FROM targets WHERE host`).
		WithArgs("192.168.1.10").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.DeleteTarget(context.Background(), "192.168.1.10")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListTargets(t *testing.T) {
	store, mock := newMockStore(t)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "host", "monitoring_since", "created_at"}).
		AddRow(uuid.New(), "10.0.0.1", now, now).
		AddRow(uuid.New(), "10.0.0.2", now, now)
	mock.ExpectQuery(`SELECT id, host, monitoring_since, created_at`).
		WillReturnRows(rows)

	records, err := store.ListTargets(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "10.0.0.1", records[0].Host)
	assert.Equal(t, "10.0.0.2", records[1].Host)
}

func TestSaveSnapshot(t *testing.T) {
	store, mock := newMockStore(t)

	snapshot := scanning.NewSnapshot("192.168.1.10")
	snapshot.Ports[22] = scanning.PortInfo{Service: "ssh", ObservedAt: time.Now()}
	snapshot.Ports[80] = scanning.PortInfo{Service: "http", ObservedAt: time.Now()}

	mock.ExpectExec(`INSERT INTO snapshots`).
		WithArgs(sqlmock.AnyArg(), "192.168.1.10", sqlmock.AnyArg(), 2, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.SaveSnapshot(context.Background(), snapshot)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLatestSnapshot(t *testing.T) {
	store, mock := newMockStore(t)

	captured := time.Now().UTC().Truncate(time.Second)
	ports, err := json.Marshal(map[uint16]scanning.PortInfo{
		443: {Service: "https", ObservedAt: captured},
	})
	require.NoError(t, err)

	rows := sqlmock.NewRows([]string{"host", "ports", "captured_at"}).
		AddRow("192.168.1.10", ports, captured)
	mock.ExpectQuery(`SELECT host, ports, captured_at`).
		WithArgs("192.168.1.10").
		WillReturnRows(rows)

	snapshot, err := store.LatestSnapshot(context.Background(), "192.168.1.10")
	require.NoError(t, err)
	assert.Equal(t, "192.168.1.10", snapshot.Target)
	assert.Equal(t, captured, snapshot.CapturedAt)
	require.Contains(t, snapshot.Ports, uint16(443))
	assert.Equal(t, "https", snapshot.Ports[443].Service)
}

func TestLatestSnapshotNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT host, ports, captured_at`).
		WithArgs("10.9.9.9").
		WillReturnError(sql.ErrNoRows)

	_, err := store.LatestSnapshot(context.Background(), "10.9.9.9")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeNotFound))
}

func TestSaveEvents(t *testing.T) {
	store, mock := newMockStore(t)

	events := []diff.ChangeEvent{
		{
			ID:        uuid.New(),
			Kind:      diff.PortOpened,
			Target:    "192.168.1.10",
			Port:      8080,
			Service:   "http-proxy",
			Timestamp: time.Now(),
			Message:   "🚨 NEW PORT OPENED on 192.168.1.10:8080 (http-proxy)",
		},
		{
			Kind:      diff.PortClosed,
			Target:    "192.168.1.10",
			Port:      21,
			Service:   "ftp",
			Timestamp: time.Now(),
			Message:   "🚨 PORT CLOSED on 192.168.1.10:21 (ftp)",
		},
	}

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO events`).
		WithArgs(events[0].ID, "192.168.1.10", "port_opened", 8080,
			"http-proxy", "", "", events[0].Message, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO events`).
		WithArgs(sqlmock.AnyArg(), "192.168.1.10", "port_closed", 21,
			"ftp", "", "", events[1].Message, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.SaveEvents(context.Background(), events)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveEventsEmptyBatch(t *testing.T) {
	store, _ := newMockStore(t)

	// No SQL expected for an empty batch.
	assert.NoError(t, store.SaveEvents(context.Background(), nil))
}

func TestSaveEventsRollsBackOnFailure(t *testing.T) {
	store, mock := newMockStore(t)

	events := []diff.ChangeEvent{
		{Kind: diff.PortOpened, Target: "10.0.0.1", Port: 80, Timestamp: time.Now()},
	}

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO events`).
		WillReturnError(&pq.Error{Code: "23502"})
	mock.ExpectRollback()

	err := store.SaveEvents(context.Background(), events)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeValidation))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEvents(t *testing.T) {
	store, mock := newMockStore(t)

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "host", "kind", "port", "service",
		"old_service", "new_service", "message", "occurred_at",
	}).AddRow(uuid.New(), "10.0.0.1", "service_change", 22,
		"", "ftp", "ssh", "🔄 SERVICE CHANGE on 10.0.0.1:22 (ftp → ssh)", now)

	mock.ExpectQuery(`SELECT id, host, kind, port`).
		WithArgs("10.0.0.1", 25).
		WillReturnRows(rows)

	records, err := store.Events(context.Background(), "10.0.0.1", 25)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "service_change", records[0].Kind)
	assert.Equal(t, "ftp", records[0].OldService)
	assert.Equal(t, "ssh", records[0].NewService)
}

func TestEventsDefaultLimit(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT id, host, kind, port`).
		WithArgs("10.0.0.1", 100).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "host", "kind", "port", "service",
			"old_service", "new_service", "message", "occurred_at",
		}))

	records, err := store.Events(context.Background(), "10.0.0.1", 0)
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPruneEvents(t *testing.T) {
	store, mock := newMockStore(t)

	cutoff := time.Now().Add(-30 * 24 * time.Hour)
	mock.ExpectExec(`DELETE FROM events WHERE occurred_at`).
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 7))

	removed, err := store.PruneEvents(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(7), removed)
}

func TestSanitizeDBError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode errors.ErrorCode
	}{
		{"nil passes through", nil, ""},
		{"no rows", sql.ErrNoRows, errors.CodeNotFound},
		{"unique violation", &pq.Error{Code: "23505"}, errors.CodeConflict},
		{"canceled", &pq.Error{Code: "57014"}, errors.CodeCanceled},
		{"connection lost", &pq.Error{Code: "08006"}, errors.CodeDatabaseConnection},
		{"unknown pq error", &pq.Error{Code: "42601"}, errors.CodeDatabaseQuery},
		{"generic error", assert.AnError, errors.CodeDatabaseQuery},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := sanitizeDBError("test_op", tt.err)
			if tt.wantCode == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.IsCode(err, tt.wantCode))
			// Message must not leak SQL details.
			assert.NotContains(t, err.Error(), "SELECT")
		})
	}
}
