package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/aaronlmathis/kuptime/internal/errtrack"
	"github.com/aaronlmathis/kuptime/internal/models"
	"github.com/aaronlmathis/kuptime/internal/repository"
	"github.com/aaronlmathis/kuptime/internal/timeseries"
	"go.uber.org/zap"
)

var errBackend = errors.New("backend unavailable")

type fakeRepository struct {
	mu         sync.Mutex
	monitors   map[string]*models.Monitor
	checks     []models.CheckResult
	listChecks int
	failChecks bool
	failList   bool
	lastLimit  int
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{monitors: map[string]*models.Monitor{}}
}

func (f *fakeRepository) ListMonitors(ctx context.Context) ([]*models.Monitor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failList {
		return nil, errBackend
	}
	out := make([]*models.Monitor, 0, len(f.monitors))
	for _, m := range f.monitors {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeRepository) GetMonitor(ctx context.Context, id string) (*models.Monitor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.monitors[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return m, nil
}

func (f *fakeRepository) CreateMonitor(ctx context.Context, m *models.Monitor) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.monitors[m.ID] = m
	return nil
}

func (f *fakeRepository) DeleteMonitor(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.monitors[id]; !ok {
		return repository.ErrNotFound
	}
	delete(f.monitors, id)
	return nil
}

func (f *fakeRepository) InsertCheck(ctx context.Context, c *models.CheckResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c.ID = int64(len(f.checks) + 1)
	f.checks = append(f.checks, *c)
	return nil
}

func (f *fakeRepository) ListChecks(ctx context.Context, monitorID string, since time.Time, limit int) ([]models.CheckResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listChecks++
	f.lastLimit = limit
	if f.failChecks {
		return nil, errBackend
	}

	var out []models.CheckResult
	for _, c := range f.checks {
		if c.MonitorID == monitorID && !c.CheckedAt.Before(since) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CheckedAt.After(out[j].CheckedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeRepository) setFailChecks(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failChecks = v
}

type capturedError struct {
	component string
	err       error
}

type recordingReporter struct {
	mu       sync.Mutex
	captured []capturedError
}

func (r *recordingReporter) Capture(ctx context.Context, err error, fields ...zap.Field) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.captured = append(r.captured, capturedError{component: errtrack.Component(ctx), err: err})
}

func (r *recordingReporter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.captured)
}

type failingStore struct{}

func (failingStore) InsertPodMetrics(context.Context, []timeseries.PodMetric) error {
	return errBackend
}
func (failingStore) InsertNodeMetrics(context.Context, []timeseries.NodeMetric) error {
	return errBackend
}
func (failingStore) PodMetricsByNamespace(context.Context, string, time.Time, time.Duration) ([]timeseries.PodMetric, error) {
	return nil, errBackend
}
func (failingStore) NodeMetrics(context.Context, string, time.Time, time.Duration) ([]timeseries.NodeMetric, error) {
	return nil, errBackend
}
