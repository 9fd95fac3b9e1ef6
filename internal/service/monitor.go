package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aaronlmathis/kuptime/internal/cache"
	"github.com/aaronlmathis/kuptime/internal/errtrack"
	"github.com/aaronlmathis/kuptime/internal/metrics"
	"github.com/aaronlmathis/kuptime/internal/models"
	"github.com/aaronlmathis/kuptime/internal/repository"
	"github.com/aaronlmathis/kuptime/internal/uptime"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrMonitorNotFound is returned for unknown monitor ids.
var ErrMonitorNotFound = errors.New("monitor not found")

// MonitorDashboard pairs a monitor with its computed dashboard.
type MonitorDashboard struct {
	Monitor   *models.Monitor  `json:"monitor"`
	Dashboard uptime.Dashboard `json:"dashboard"`
}

// MonitorConfig configures dashboard computation.
type MonitorConfig struct {
	Windows []uptime.Window
	// FetchLimit caps the rows read per dashboard. 0 reads the whole longest window.
	FetchLimit int
	// WarmConcurrency bounds parallel recomputation in WarmDashboards.
	WarmConcurrency int
}

// MonitorService manages monitors and computes their uptime dashboards.
type MonitorService struct {
	repo     repository.Repository
	cache    *cache.DashboardCache[uptime.Dashboard]
	reporter errtrack.Reporter
	logger   *zap.Logger
	config   MonitorConfig
	now      func() time.Time
}

// NewMonitorService creates a new monitor service
func NewMonitorService(repo repository.Repository, dashboards *cache.DashboardCache[uptime.Dashboard], reporter errtrack.Reporter, logger *zap.Logger, config MonitorConfig) *MonitorService {
	if len(config.Windows) == 0 {
		config.Windows = uptime.DefaultWindows()
	}
	if config.WarmConcurrency <= 0 {
		config.WarmConcurrency = 4
	}
	return &MonitorService{
		repo:     repo,
		cache:    dashboards,
		reporter: reporter,
		logger:   logger,
		config:   config,
		now:      time.Now,
	}
}

// Windows returns the configured dashboard windows.
func (s *MonitorService) Windows() []uptime.Window {
	return s.config.Windows
}

func (s *MonitorService) ListMonitors(ctx context.Context) ([]*models.Monitor, error) {
	return s.repo.ListMonitors(ctx)
}

func (s *MonitorService) GetMonitor(ctx context.Context, id string) (*models.Monitor, error) {
	monitor, err := s.repo.GetMonitor(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", id, ErrMonitorNotFound)
	}
	return monitor, err
}

// CreateMonitor validates req and stores a new monitor.
func (s *MonitorService) CreateMonitor(ctx context.Context, req models.CreateMonitorRequest) (*models.Monitor, error) {
	if err := req.Validate(); err != nil {
		return nil, &ValidationError{Err: err}
	}

	monitor := models.NewMonitor(req, s.now())
	if err := s.repo.CreateMonitor(ctx, monitor); err != nil {
		return nil, err
	}

	s.logger.Info("Monitor created", zap.String("monitor_id", monitor.ID), zap.String("url", monitor.URL))
	return monitor, nil
}

// DeleteMonitor removes a monitor, its history and its cached dashboard.
func (s *MonitorService) DeleteMonitor(ctx context.Context, id string) error {
	err := s.repo.DeleteMonitor(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%s: %w", id, ErrMonitorNotFound)
	}
	if err != nil {
		return err
	}

	s.cache.Invalidate(id)
	s.logger.Info("Monitor deleted", zap.String("monitor_id", id))
	return nil
}

// RecordCheck persists a check result and drops the stale dashboard.
func (s *MonitorService) RecordCheck(ctx context.Context, check *models.CheckResult) error {
	if err := s.repo.InsertCheck(ctx, check); err != nil {
		return err
	}
	s.cache.Invalidate(check.MonitorID)
	return nil
}

// GetDashboard returns the monitor's dashboard, computing it on a cache miss.
// Load failures are captured and yield a zeroed dashboard that is not cached.
func (s *MonitorService) GetDashboard(ctx context.Context, monitorID string) uptime.Dashboard {
	dashboard, err := s.cache.GetOrLoad(ctx, monitorID, func(ctx context.Context) (uptime.Dashboard, error) {
		return s.computeDashboard(ctx, monitorID)
	})
	if err != nil {
		s.reporter.Capture(errtrack.WithComponent(ctx, "dashboard"), err, zap.String("monitor_id", monitorID))
		return uptime.ZeroDashboard(s.config.Windows, s.now())
	}
	return dashboard
}

// ListDashboards returns a dashboard for every monitor. If monitors cannot be
// listed the error is captured and the result is empty.
func (s *MonitorService) ListDashboards(ctx context.Context) []MonitorDashboard {
	monitors, err := s.repo.ListMonitors(ctx)
	if err != nil {
		s.reporter.Capture(errtrack.WithComponent(ctx, "dashboard"), err)
		return []MonitorDashboard{}
	}

	out := make([]MonitorDashboard, 0, len(monitors))
	for _, m := range monitors {
		out = append(out, MonitorDashboard{Monitor: m, Dashboard: s.GetDashboard(ctx, m.ID)})
	}
	return out
}

// WarmDashboards recomputes every dashboard and replaces the cached copy.
func (s *MonitorService) WarmDashboards(ctx context.Context) error {
	monitors, err := s.repo.ListMonitors(ctx)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.WarmConcurrency)

	for _, m := range monitors {
		id := m.ID
		g.Go(func() error {
			dashboard, err := s.computeDashboard(gctx, id)
			if err != nil {
				return fmt.Errorf("monitor %s: %w", id, err)
			}
			s.cache.Set(id, dashboard)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("failed to warm dashboards: %w", err)
	}

	s.logger.Debug("Dashboards warmed", zap.Int("monitors", len(monitors)))
	return nil
}

func (s *MonitorService) computeDashboard(ctx context.Context, monitorID string) (uptime.Dashboard, error) {
	now := s.now()
	since := now.Add(-uptime.Longest(s.config.Windows).Duration)

	checks, err := s.repo.ListChecks(ctx, monitorID, since, s.config.FetchLimit)
	if err != nil {
		return uptime.Dashboard{}, err
	}

	start := time.Now()
	dashboard := uptime.ComputeDashboard(models.Samples(checks), now, s.config.Windows)
	metrics.RecordDashboardComputation(len(checks), time.Since(start))

	return dashboard, nil
}

// ValidationError wraps a rejected request.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string { return e.Err.Error() }

func (e *ValidationError) Unwrap() error { return e.Err }
