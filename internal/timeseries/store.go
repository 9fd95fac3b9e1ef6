package timeseries

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MetricsStore stores Kubernetes pod and node metrics and answers range queries,
// bucketing rows by interval when it is non-zero.
type MetricsStore interface {
	InsertPodMetrics(ctx context.Context, rows []PodMetric) error
	InsertNodeMetrics(ctx context.Context, rows []NodeMetric) error

	// PodMetricsByNamespace returns pod rows for a namespace since the given time
	PodMetricsByNamespace(ctx context.Context, namespace string, since time.Time, interval time.Duration) ([]PodMetric, error)

	// NodeMetrics returns rows for one node, or every node when node is empty
	NodeMetrics(ctx context.Context, node string, since time.Time, interval time.Duration) ([]NodeMetric, error)
}

// ErrSeriesLimit is returned when a new series would exceed the configured limit
type ErrSeriesLimit struct {
	Key string
}

func (e *ErrSeriesLimit) Error() string {
	return "series limit reached, rejecting " + e.Key
}

// MemStore is an in-memory implementation of MetricsStore. Each pod and each
// node gets its own series, so a busy namespace cannot push another pod's
// rows out of the retention window.
type MemStore struct {
	mu     sync.RWMutex
	pods   map[string]map[string]*Series[PodMetric]
	nodes  map[string]*Series[NodeMetric]
	config Config
	health *HealthMetrics
}

// NewMemStore creates a new in-memory store with the given configuration
func NewMemStore(config Config) *MemStore {
	return NewMemStoreWithHealth(config, NewHealthMetrics())
}

// NewMemStoreWithHealth creates a new in-memory store with custom health metrics
func NewMemStoreWithHealth(config Config, health *HealthMetrics) *MemStore {
	health.SetLimits(config.MaxSeries, config.MaxPointsPerSeries)

	return &MemStore{
		pods:   make(map[string]map[string]*Series[PodMetric]),
		nodes:  make(map[string]*Series[NodeMetric]),
		config: config,
		health: health,
	}
}

// InsertPodMetrics appends pod rows to their pod series
func (m *MemStore) InsertPodMetrics(ctx context.Context, rows []PodMetric) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range rows {
		pods, ok := m.pods[r.Namespace]
		if !ok {
			pods = make(map[string]*Series[PodMetric])
			m.pods[r.Namespace] = pods
		}
		series, err := upsert(m, pods, r.PodName, r.Namespace+"/"+r.PodName)
		if err != nil {
			if len(pods) == 0 {
				delete(m.pods, r.Namespace)
			}
			return err
		}
		series.Add(r)
	}
	return nil
}

// InsertNodeMetrics appends node rows to their node series
func (m *MemStore) InsertNodeMetrics(ctx context.Context, rows []NodeMetric) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range rows {
		series, err := upsert(m, m.nodes, r.NodeName, r.NodeName)
		if err != nil {
			return err
		}
		series.Add(r)
	}
	return nil
}

// PodMetricsByNamespace returns pod rows for a namespace since the given time
func (m *MemStore) PodMetricsByNamespace(ctx context.Context, namespace string, since time.Time, interval time.Duration) ([]PodMetric, error) {
	m.mu.RLock()
	selected := make([]*Series[PodMetric], 0, len(m.pods[namespace]))
	for _, series := range m.pods[namespace] {
		selected = append(selected, series)
	}
	m.mu.RUnlock()

	rows := make([]PodMetric, 0)
	for _, series := range selected {
		rows = append(rows, series.Since(since)...)
	}

	if interval <= 0 {
		sortPodRows(rows)
		return rows, nil
	}
	return RollupPods(rows, interval), nil
}

// NodeMetrics returns rows for one node, or every node when node is empty
func (m *MemStore) NodeMetrics(ctx context.Context, node string, since time.Time, interval time.Duration) ([]NodeMetric, error) {
	m.mu.RLock()
	var selected []*Series[NodeMetric]
	for name, series := range m.nodes {
		if node == "" || name == node {
			selected = append(selected, series)
		}
	}
	m.mu.RUnlock()

	rows := make([]NodeMetric, 0)
	for _, series := range selected {
		rows = append(rows, series.Since(since)...)
	}

	if interval <= 0 {
		sortNodeRows(rows)
		return rows, nil
	}
	return RollupNodes(rows, interval), nil
}

// Prune removes rows older than the configured max window from all series and
// drops series left empty, such as those of deleted pods.
func (m *MemStore) Prune() {
	cutoff := time.Now().Add(-m.config.MaxWindow)

	m.mu.Lock()
	defer m.mu.Unlock()

	for namespace, pods := range m.pods {
		for name, s := range pods {
			m.health.RecordPruned(s.Prune(cutoff))
			if s.Len() == 0 {
				delete(pods, name)
				m.health.DecrementSeriesCount()
			}
		}
		if len(pods) == 0 {
			delete(m.pods, namespace)
		}
	}
	for name, s := range m.nodes {
		m.health.RecordPruned(s.Prune(cutoff))
		if s.Len() == 0 {
			delete(m.nodes, name)
			m.health.DecrementSeriesCount()
		}
	}
}

// GetHealthSnapshot returns a snapshot of current health metrics
func (m *MemStore) GetHealthSnapshot() HealthSnapshot {
	return m.health.GetSnapshot()
}

// upsert returns the series stored under key, creating it within the series
// limit. label names the series in errors. Callers hold m.mu.
func upsert[T Timestamped](m *MemStore, set map[string]*Series[T], key, label string) (*Series[T], error) {
	if series, ok := set[key]; ok {
		return series, nil
	}

	if !m.health.CheckSeriesLimit() {
		m.health.RecordError()
		return nil, &ErrSeriesLimit{Key: label}
	}

	series := NewSeriesWithHealth[T](m.config.PointsPerSeries, m.health)
	series.window = m.config.MaxWindow
	set[key] = series
	m.health.IncrementSeriesCount()
	return series, nil
}

func sortPodRows(rows []PodMetric) {
	sort.SliceStable(rows, func(i, j int) bool {
		if !rows[i].Timestamp.Equal(rows[j].Timestamp) {
			return rows[i].Timestamp.Before(rows[j].Timestamp)
		}
		return rows[i].PodName < rows[j].PodName
	})
}

func sortNodeRows(rows []NodeMetric) {
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Timestamp.Before(rows[j].Timestamp)
	})
}
