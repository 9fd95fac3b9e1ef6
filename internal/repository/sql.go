package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aaronlmathis/kuptime/internal/metrics"
	"github.com/aaronlmathis/kuptime/internal/models"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// Supported drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Options configures the connection pool.
type Options struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// SQLRepository implements Repository on PostgreSQL or SQLite.
type SQLRepository struct {
	db     *sqlx.DB
	driver string
	logger *zap.Logger
}

// Open connects to the configured database.
func Open(opts Options, logger *zap.Logger) (*SQLRepository, error) {
	if opts.Driver != DriverPostgres && opts.Driver != DriverSQLite {
		return nil, fmt.Errorf("unsupported database driver %q", opts.Driver)
	}

	db, err := sqlx.Connect(opts.Driver, opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", opts.Driver, err)
	}

	if opts.Driver == DriverSQLite {
		// in-memory databases exist per connection
		db.SetMaxOpenConns(1)
	} else {
		if opts.MaxOpenConns > 0 {
			db.SetMaxOpenConns(opts.MaxOpenConns)
		}
		if opts.MaxIdleConns > 0 {
			db.SetMaxIdleConns(opts.MaxIdleConns)
		}
		if opts.ConnMaxLifetime > 0 {
			db.SetConnMaxLifetime(opts.ConnMaxLifetime)
		}
	}

	return New(db, logger), nil
}

// New wraps an existing connection. The driver name is taken from db.
func New(db *sqlx.DB, logger *zap.Logger) *SQLRepository {
	return &SQLRepository{
		db:     db,
		driver: db.DriverName(),
		logger: logger,
	}
}

// Close closes the database connection
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// Ping checks the connection.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// EnsureSchema creates the monitors and checks tables if they are missing.
func (r *SQLRepository) EnsureSchema(ctx context.Context) error {
	statements := sqliteSchema
	if r.driver == DriverPostgres {
		statements = postgresSchema
	}

	for _, stmt := range statements {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}

	r.logger.Debug("Database schema ensured", zap.String("driver", r.driver))
	return nil
}

func (r *SQLRepository) ListMonitors(ctx context.Context) ([]*models.Monitor, error) {
	monitors := []*models.Monitor{}
	query := `SELECT id, name, url, interval_seconds, timeout_seconds, expected_status, enabled, created_at
		FROM monitors ORDER BY created_at, id`

	err := r.instrument("list_monitors", func() error {
		return r.db.SelectContext(ctx, &monitors, query)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list monitors: %w", err)
	}
	return monitors, nil
}

func (r *SQLRepository) GetMonitor(ctx context.Context, id string) (*models.Monitor, error) {
	var monitor models.Monitor
	query := r.db.Rebind(`SELECT id, name, url, interval_seconds, timeout_seconds, expected_status, enabled, created_at
		FROM monitors WHERE id = ?`)

	err := r.instrument("get_monitor", func() error {
		return r.db.GetContext(ctx, &monitor, query, id)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("monitor %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get monitor %s: %w", id, err)
	}
	return &monitor, nil
}

func (r *SQLRepository) CreateMonitor(ctx context.Context, monitor *models.Monitor) error {
	query := r.db.Rebind(`INSERT INTO monitors
		(id, name, url, interval_seconds, timeout_seconds, expected_status, enabled, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)

	err := r.instrument("create_monitor", func() error {
		_, err := r.db.ExecContext(ctx, query,
			monitor.ID,
			monitor.Name,
			monitor.URL,
			monitor.IntervalSeconds,
			monitor.TimeoutSeconds,
			monitor.ExpectedStatus,
			monitor.Enabled,
			monitor.CreatedAt.UTC(),
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to create monitor: %w", err)
	}
	return nil
}

// DeleteMonitor removes the monitor and its check history.
func (r *SQLRepository) DeleteMonitor(ctx context.Context, id string) error {
	return r.instrument("delete_monitor", func() error {
		tx, err := r.db.BeginTxx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer tx.Rollback()

		if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM checks WHERE monitor_id = ?`), id); err != nil {
			return fmt.Errorf("failed to delete checks: %w", err)
		}

		res, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM monitors WHERE id = ?`), id)
		if err != nil {
			return fmt.Errorf("failed to delete monitor: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("monitor %s: %w", id, ErrNotFound)
		}

		return tx.Commit()
	})
}

// InsertCheck stores a check and sets its generated id.
func (r *SQLRepository) InsertCheck(ctx context.Context, check *models.CheckResult) error {
	query := r.db.Rebind(`INSERT INTO checks
		(monitor_id, checked_at, success, response_time_ms, status_code, error)
		VALUES (?, ?, ?, ?, ?, ?) RETURNING id`)

	err := r.instrument("insert_check", func() error {
		return r.db.QueryRowxContext(ctx, query,
			check.MonitorID,
			check.CheckedAt.UTC(),
			check.Success,
			check.ResponseTime,
			check.StatusCode,
			check.Error,
		).Scan(&check.ID)
	})
	if err != nil {
		return fmt.Errorf("failed to insert check: %w", err)
	}
	return nil
}

func (r *SQLRepository) ListChecks(ctx context.Context, monitorID string, since time.Time, limit int) ([]models.CheckResult, error) {
	checks := []models.CheckResult{}
	query := `SELECT id, monitor_id, checked_at, success, response_time_ms, status_code, error
		FROM checks WHERE monitor_id = ? AND checked_at >= ? ORDER BY checked_at DESC`
	args := []interface{}{monitorID, since.UTC()}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	err := r.instrument("list_checks", func() error {
		return r.db.SelectContext(ctx, &checks, r.db.Rebind(query), args...)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list checks for %s: %w", monitorID, err)
	}
	return checks, nil
}

// instrument times fn and records it against the query name.
func (r *SQLRepository) instrument(name string, fn func() error) error {
	start := time.Now()
	err := fn()
	metrics.RecordDBQuery(r.driver, name, time.Since(start), err)
	return err
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS monitors (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		url TEXT NOT NULL,
		interval_seconds INTEGER NOT NULL,
		timeout_seconds INTEGER NOT NULL,
		expected_status INTEGER NOT NULL DEFAULT 0,
		enabled BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS checks (
		id BIGSERIAL PRIMARY KEY,
		monitor_id TEXT NOT NULL REFERENCES monitors(id) ON DELETE CASCADE,
		checked_at TIMESTAMPTZ NOT NULL,
		success BOOLEAN NOT NULL,
		response_time_ms DOUBLE PRECISION NOT NULL,
		status_code INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_checks_monitor_time ON checks (monitor_id, checked_at DESC)`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS monitors (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		url TEXT NOT NULL,
		interval_seconds INTEGER NOT NULL,
		timeout_seconds INTEGER NOT NULL,
		expected_status INTEGER NOT NULL DEFAULT 0,
		enabled BOOLEAN NOT NULL DEFAULT 1,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS checks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		monitor_id TEXT NOT NULL,
		checked_at TIMESTAMP NOT NULL,
		success BOOLEAN NOT NULL,
		response_time_ms REAL NOT NULL,
		status_code INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_checks_monitor_time ON checks (monitor_id, checked_at DESC)`,
}
