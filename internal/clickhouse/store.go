// Package clickhouse implements the Kubernetes metrics store on ClickHouse.
package clickhouse

import (
	"context"
	"fmt"
	"sync"
	"time"

	_ "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/aaronlmathis/kuptime/internal/metrics"
	"github.com/aaronlmathis/kuptime/internal/timeseries"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

const backend = "clickhouse"

// Options configures the ClickHouse connection.
type Options struct {
	DSN       string
	Retention time.Duration
}

// Store is a timeseries.MetricsStore backed by ClickHouse. Every statement
// holds mu for its whole duration, error paths included.
type Store struct {
	mu        sync.Mutex
	db        *sqlx.DB
	retention time.Duration
	logger    *zap.Logger
}

var _ timeseries.MetricsStore = (*Store)(nil)

// Open connects to ClickHouse using the database/sql driver.
func Open(ctx context.Context, opts Options, logger *zap.Logger) (*Store, error) {
	db, err := sqlx.Open("clickhouse", opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open clickhouse: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}

	s := New(db, logger)
	s.retention = opts.Retention
	return s, nil
}

// New wraps an existing connection.
func New(db *sqlx.DB, logger *zap.Logger) *Store {
	return &Store{
		db:        db,
		retention: 30 * 24 * time.Hour,
		logger:    logger,
	}
}

// Close closes the connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the connection under the store lock.
func (s *Store) Ping(ctx context.Context) error {
	unlock := s.acquire()
	defer unlock()
	return s.db.PingContext(ctx)
}

// acquire takes the connection lock and returns its release func.
func (s *Store) acquire() func() {
	start := time.Now()
	s.mu.Lock()
	metrics.RecordLockWait(backend, time.Since(start))
	return s.mu.Unlock
}

// EnsureSchema creates the metric tables if they are missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	unlock := s.acquire()
	defer unlock()

	for _, stmt := range schema(s.retention) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create clickhouse schema: %w", err)
		}
	}
	return nil
}

// InsertPodMetrics writes pod rows in one batch.
func (s *Store) InsertPodMetrics(ctx context.Context, rows []timeseries.PodMetric) error {
	if len(rows) == 0 {
		return nil
	}

	return s.batch(ctx, "insert_pod_metrics", insertQuery("pod_metrics", podColumns), len(rows), func(i int) []interface{} {
		r := rows[i]
		return []interface{}{r.Timestamp.UTC(), r.Namespace, r.PodName, r.NodeName, r.CPUMillicores, r.MemoryBytes, r.RestartCount, r.State}
	})
}

// InsertNodeMetrics writes node rows in one batch.
func (s *Store) InsertNodeMetrics(ctx context.Context, rows []timeseries.NodeMetric) error {
	if len(rows) == 0 {
		return nil
	}

	return s.batch(ctx, "insert_node_metrics", insertQuery("node_metrics", nodeColumns), len(rows), func(i int) []interface{} {
		r := rows[i]
		return []interface{}{r.Timestamp.UTC(), r.NodeName, r.CPUMillicores, r.CPUCapacityMillicores, r.MemoryBytes, r.MemoryCapacityBytes, r.PodCount}
	})
}

// batch executes one prepared insert per row inside a transaction, which the
// driver sends as a single block.
func (s *Store) batch(ctx context.Context, name, query string, n int, args func(i int) []interface{}) (err error) {
	unlock := s.acquire()
	defer unlock()

	start := time.Now()
	defer func() {
		metrics.RecordDBQuery(backend, name, time.Since(start), err)
	}()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}
	defer stmt.Close()

	for i := 0; i < n; i++ {
		if _, err = stmt.ExecContext(ctx, args(i)...); err != nil {
			return fmt.Errorf("failed to append row %d: %w", i, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}
	return nil
}

// PodMetricsByNamespace returns pod rows for a namespace since the given time,
// bucketed server-side when interval is non-zero.
func (s *Store) PodMetricsByNamespace(ctx context.Context, namespace string, since time.Time, interval time.Duration) ([]timeseries.PodMetric, error) {
	rows := []timeseries.PodMetric{}
	if err := s.selectRows(ctx, "pod_metrics_by_namespace", &rows, podMetricsQuery(interval), namespace, since.UTC()); err != nil {
		return nil, fmt.Errorf("failed to query pod metrics for %s: %w", namespace, err)
	}
	return rows, nil
}

// NodeMetrics returns rows for one node, or every node when node is empty.
func (s *Store) NodeMetrics(ctx context.Context, node string, since time.Time, interval time.Duration) ([]timeseries.NodeMetric, error) {
	args := []interface{}{since.UTC()}
	if node != "" {
		args = []interface{}{node, since.UTC()}
	}

	rows := []timeseries.NodeMetric{}
	if err := s.selectRows(ctx, "node_metrics", &rows, nodeMetricsQuery(interval, node == ""), args...); err != nil {
		return nil, fmt.Errorf("failed to query node metrics: %w", err)
	}
	return rows, nil
}

func (s *Store) selectRows(ctx context.Context, name string, dest interface{}, query string, args ...interface{}) error {
	unlock := s.acquire()
	defer unlock()

	start := time.Now()
	err := s.db.SelectContext(ctx, dest, query, args...)
	metrics.RecordDBQuery(backend, name, time.Since(start), err)
	if err != nil {
		s.logger.Debug("ClickHouse query failed", zap.String("query", name), zap.Error(err))
	}
	return err
}
