// Package store persists monitoring state to PostgreSQL. It keeps the
// monitored-target list, scan snapshots, and change events so history
// survives daemon restarts. The daemon runs without a store when the
// database is disabled.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/mfolkes/portwarden/internal/diff"
	"github.com/mfolkes/portwarden/internal/errors"
	"github.com/mfolkes/portwarden/internal/logging"
	"github.com/mfolkes/portwarden/internal/metrics"
	"github.com/mfolkes/portwarden/internal/scanning"
)

const (
	defaultPostgresPort    = 5432
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 5
	defaultConnMaxLifetime = 5 * time.Minute
	defaultConnMaxIdleTime = 5 * time.Minute
	defaultEventRetention  = 90 * 24 * time.Hour
)

// Config holds database configuration.
type Config struct {
	Enabled         bool          `yaml:"enabled" json:"enabled"`
	Host            string        `yaml:"host" json:"host"`
	Port            int           `yaml:"port" json:"port"`
	Database        string        `yaml:"database" json:"database"`
	Username        string        `yaml:"username" json:"username"`
	Password        string        `yaml:"password" json:"password"`
	SSLMode         string        `yaml:"ssl_mode" json:"ssl_mode"`
	MaxOpenConns    int           `yaml:"max_open_conns" json:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" json:"conn_max_idle_time"`

	// EventRetention bounds how long change events are kept. Zero
	// disables pruning.
	EventRetention time.Duration `yaml:"event_retention" json:"event_retention"`
}

// DefaultConfig returns the default database configuration. Database
// name, username, and password must be explicitly configured.
func DefaultConfig() Config {
	return Config{
		Enabled:         false,
		Host:            "localhost",
		Port:            defaultPostgresPort,
		SSLMode:         "disable",
		MaxOpenConns:    defaultMaxOpenConns,
		MaxIdleConns:    defaultMaxIdleConns,
		ConnMaxLifetime: defaultConnMaxLifetime,
		ConnMaxIdleTime: defaultConnMaxIdleTime,
		EventRetention:  defaultEventRetention,
	}
}

// Store wraps sqlx.DB with portwarden's persistence operations.
type Store struct {
	db *sqlx.DB
}

// sanitizeDBError converts raw database errors into errors that do not
// expose SQL details or credentials. The original error stays in Cause
// for internal logging.
func sanitizeDBError(operation string, err error) error {
	if err == nil {
		return nil
	}

	if err == sql.ErrNoRows {
		return errors.NewDatabaseError(errors.CodeNotFound, "Resource not found")
	}

	if pqErr, ok := err.(*pq.Error); ok {
		var dbErr *errors.DatabaseError
		switch pqErr.Code {
		case "23505": // unique_violation
			dbErr = errors.NewDatabaseError(errors.CodeConflict, "Resource already exists")
		case "23502": // not_null_violation
			dbErr = errors.NewDatabaseError(errors.CodeValidation, "Required field is missing")
		case "57014": // query_canceled
			dbErr = errors.NewDatabaseError(errors.CodeCanceled, "Database operation was canceled")
		case "08000", "08003", "08006": // connection errors
			dbErr = errors.NewDatabaseError(errors.CodeDatabaseConnection, "Database connection error")
		default:
			msg := fmt.Sprintf("Database operation failed: %s", operation)
			dbErr = errors.NewDatabaseError(errors.CodeDatabaseQuery, msg)
		}
		dbErr.Operation = operation
		dbErr.Cause = err
		return dbErr
	}

	dbErr := errors.NewDatabaseError(errors.CodeDatabaseQuery,
		fmt.Sprintf("Database operation failed: %s", operation))
	dbErr.Operation = operation
	dbErr.Cause = err
	return dbErr
}

// schema creates the tables on first connect. IF NOT EXISTS keeps
// reconnects idempotent.
const schema = `
CREATE TABLE IF NOT EXISTS targets (
	id UUID PRIMARY KEY,
	host TEXT NOT NULL UNIQUE,
	monitoring_since TIMESTAMPTZ NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS snapshots (
	id UUID PRIMARY KEY,
	host TEXT NOT NULL,
	ports JSONB NOT NULL,
	open_count INTEGER NOT NULL,
	captured_at TIMESTAMPTZ NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_snapshots_host_captured
	ON snapshots (host, captured_at DESC);

CREATE TABLE IF NOT EXISTS events (
	id UUID PRIMARY KEY,
	host TEXT NOT NULL,
	kind TEXT NOT NULL,
	port INTEGER NOT NULL,
	service TEXT NOT NULL DEFAULT '',
	old_service TEXT NOT NULL DEFAULT '',
	new_service TEXT NOT NULL DEFAULT '',
	message TEXT NOT NULL,
	occurred_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_host_occurred
	ON events (host, occurred_at DESC);
`

// Connect establishes a PostgreSQL connection and ensures the schema
// exists. Errors are sanitized so they never leak the DSN.
func Connect(ctx context.Context, config *Config) (*Store, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		config.Host, config.Port, config.Database,
		config.Username, config.Password, config.SSLMode,
	)

	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, errors.ErrDatabaseConnection(err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.ErrorDatabase("Failed to close database after schema failure", closeErr)
		}
		return nil, errors.WrapDatabaseError(errors.CodeDatabaseMigration,
			"Failed to ensure database schema", err)
	}

	logging.InfoDatabase("Connected to database",
		"host", config.Host, "port", config.Port, "database", config.Database)
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing connection. Used by tests with sqlmock.
func NewWithDB(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying connection for components that manage their
// own tables, such as the API key store.
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return errors.ErrDatabaseConnection(err)
	}
	return nil
}

// TargetRecord is one row of the targets table.
type TargetRecord struct {
	ID              uuid.UUID `db:"id" json:"id"`
	Host            string    `db:"host" json:"host"`
	MonitoringSince time.Time `db:"monitoring_since" json:"monitoring_since"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

// SaveTarget inserts a monitored target. Re-adding a host refreshes its
// monitoring_since.
func (s *Store) SaveTarget(ctx context.Context, host string, since time.Time) error {
	defer s.observe("save_target")()

	const query = `
		INSERT INTO targets (id, host, monitoring_since)
		VALUES ($1, $2, $3)
		ON CONFLICT (host) DO UPDATE SET monitoring_since = EXCLUDED.monitoring_since`

	_, err := s.db.ExecContext(ctx, query, uuid.New(), host, since)
	return sanitizeDBError("save_target", err)
}

// DeleteTarget removes a monitored target.
func (s *Store) DeleteTarget(ctx context.Context, host string) error {
	defer s.observe("delete_target")()

	_, err := s.db.ExecContext(ctx, `DELETE FROM targets WHERE host = $1`, host)
	return sanitizeDBError("delete_target", err)
}

// ListTargets returns all persisted targets ordered by host.
func (s *Store) ListTargets(ctx context.Context) ([]TargetRecord, error) {
	defer s.observe("list_targets")()

	var records []TargetRecord
	const query = `
		SELECT id, host, monitoring_since, created_at
		FROM targets ORDER BY host`
	if err := s.db.SelectContext(ctx, &records, query); err != nil {
		return nil, sanitizeDBError("list_targets", err)
	}
	return records, nil
}

// SaveSnapshot stores one scan snapshot with its port map as JSONB.
func (s *Store) SaveSnapshot(ctx context.Context, snapshot scanning.Snapshot) error {
	defer s.observe("save_snapshot")()

	ports, err := json.Marshal(snapshot.Ports)
	if err != nil {
		return errors.WrapDatabaseError(errors.CodeDatabaseQuery,
			"Failed to encode snapshot ports", err)
	}

	const query = `
		INSERT INTO snapshots (id, host, ports, open_count, captured_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err = s.db.ExecContext(ctx, query,
		uuid.New(), snapshot.Target, ports, snapshot.OpenCount(), snapshot.CapturedAt)
	return sanitizeDBError("save_snapshot", err)
}

// LatestSnapshot returns the most recent snapshot for a host.
func (s *Store) LatestSnapshot(ctx context.Context, host string) (scanning.Snapshot, error) {
	defer s.observe("latest_snapshot")()

	var row struct {
		Host       string    `db:"host"`
		Ports      []byte    `db:"ports"`
		CapturedAt time.Time `db:"captured_at"`
	}
	const query = `
		SELECT host, ports, captured_at
		FROM snapshots WHERE host = $1
		ORDER BY captured_at DESC LIMIT 1`
	if err := s.db.GetContext(ctx, &row, query, host); err != nil {
		return scanning.Snapshot{}, sanitizeDBError("latest_snapshot", err)
	}

	snapshot := scanning.NewSnapshot(row.Host)
	snapshot.CapturedAt = row.CapturedAt
	if err := json.Unmarshal(row.Ports, &snapshot.Ports); err != nil {
		return scanning.Snapshot{}, errors.WrapDatabaseError(errors.CodeDatabaseQuery,
			"Failed to decode snapshot ports", err)
	}
	return snapshot, nil
}

// SaveEvents stores a batch of change events.
func (s *Store) SaveEvents(ctx context.Context, events []diff.ChangeEvent) error {
	if len(events) == 0 {
		return nil
	}
	defer s.observe("save_events")()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return sanitizeDBError("save_events", err)
	}

	const query = `
		INSERT INTO events (id, host, kind, port, service, old_service, new_service, message, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	for i := range events {
		e := &events[i]
		id := e.ID
		if id == uuid.Nil {
			id = uuid.New()
		}
		if _, err := tx.ExecContext(ctx, query,
			id, e.Target, string(e.Kind), int(e.Port),
			e.Service, e.OldService, e.NewService, e.Message, e.Timestamp); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				logging.ErrorDatabase("Failed to roll back event batch", rbErr)
			}
			return sanitizeDBError("save_events", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return sanitizeDBError("save_events", err)
	}
	return nil
}

// EventRecord is one row of the events table.
type EventRecord struct {
	ID         uuid.UUID `db:"id" json:"id"`
	Host       string    `db:"host" json:"host"`
	Kind       string    `db:"kind" json:"kind"`
	Port       int       `db:"port" json:"port"`
	Service    string    `db:"service" json:"service"`
	OldService string    `db:"old_service" json:"old_service,omitempty"`
	NewService string    `db:"new_service" json:"new_service,omitempty"`
	Message    string    `db:"message" json:"message"`
	OccurredAt time.Time `db:"occurred_at" json:"occurred_at"`
}

// Events returns the most recent change events for a host, newest first.
// A non-positive limit falls back to 100.
func (s *Store) Events(ctx context.Context, host string, limit int) ([]EventRecord, error) {
	defer s.observe("list_events")()

	if limit <= 0 {
		limit = 100
	}

	var records []EventRecord
	const query = `
		SELECT id, host, kind, port, service, old_service, new_service, message, occurred_at
		FROM events WHERE host = $1
		ORDER BY occurred_at DESC LIMIT $2`
	if err := s.db.SelectContext(ctx, &records, query, host, limit); err != nil {
		return nil, sanitizeDBError("list_events", err)
	}
	return records, nil
}

// PruneEvents deletes events older than the cutoff and returns how many
// rows were removed.
func (s *Store) PruneEvents(ctx context.Context, before time.Time) (int64, error) {
	defer s.observe("prune_events")()

	result, err := s.db.ExecContext(ctx,
		`DELETE FROM events WHERE occurred_at < $1`, before)
	if err != nil {
		return 0, sanitizeDBError("prune_events", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, sanitizeDBError("prune_events", err)
	}
	if rows > 0 {
		logging.InfoDatabase("Pruned old events", "removed", rows, "before", before)
	}
	return rows, nil
}

// observe times a query and counts it; the returned func records both.
func (s *Store) observe(operation string) func() {
	start := time.Now()
	metrics.Counter(metrics.MetricDatabaseQueries, metrics.Labels{
		metrics.LabelOperation: operation,
	})
	return func() {
		metrics.Histogram(metrics.MetricDatabaseDuration,
			time.Since(start).Seconds(), metrics.Labels{
				metrics.LabelOperation: operation,
			})
	}
}
