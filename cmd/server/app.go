package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aaronlmathis/kuptime/internal/api"
	"github.com/aaronlmathis/kuptime/internal/cache"
	"github.com/aaronlmathis/kuptime/internal/checker"
	"github.com/aaronlmathis/kuptime/internal/clickhouse"
	"github.com/aaronlmathis/kuptime/internal/config"
	"github.com/aaronlmathis/kuptime/internal/errtrack"
	"github.com/aaronlmathis/kuptime/internal/jobs"
	"github.com/aaronlmathis/kuptime/internal/kube"
	"github.com/aaronlmathis/kuptime/internal/repository"
	"github.com/aaronlmathis/kuptime/internal/service"
	"github.com/aaronlmathis/kuptime/internal/timeseries"
	"github.com/aaronlmathis/kuptime/internal/uptime"
	"github.com/aaronlmathis/kuptime/internal/version"
	"github.com/aaronlmathis/kuptime/internal/ws"
	"go.uber.org/zap"
)

// app owns every long-lived component of the server process.
type app struct {
	cfg    *config.Config
	logger *zap.Logger

	repo      *repository.SQLRepository
	store     timeseries.MetricsStore
	memStore  *timeseries.MemStore
	chStore   *clickhouse.Store
	hub       *ws.Hub
	apiServer *api.Server
	runner    *jobs.Runner
}

func repositoryOptions(cfg *config.Config) repository.Options {
	return repository.Options{
		Driver:          cfg.Database.Driver,
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	role, err := jobs.ParseRole(cfg.Cluster.Role)
	if err != nil {
		return nil, err
	}

	a.repo, err = repository.Open(repositoryOptions(cfg), logger)
	if err != nil {
		return nil, err
	}
	if err := a.repo.EnsureSchema(ctx); err != nil {
		return nil, err
	}

	if err := a.initMetricsStore(ctx); err != nil {
		return nil, err
	}

	reporter := errtrack.NewZapReporter(logger)
	dashboards := cache.NewDashboardCache[uptime.Dashboard]("dashboard", cfg.Caching.DashboardSize, cfg.Caching.DashboardTTL)
	monitors := service.NewMonitorService(a.repo, dashboards, reporter, logger.Named("monitors"), service.MonitorConfig{
		FetchLimit:      cfg.History.DashboardFetchLimit,
		WarmConcurrency: cfg.Checker.Concurrency,
	})
	history := service.NewHistoryService(a.repo, reporter, logger.Named("history"), cfg.History.FetchLimit)

	var (
		kubeMetrics *service.KubeMetricsService
		factory     *kube.Factory
	)
	if cfg.Kubernetes.Enabled {
		factory, err = kube.NewFactory(logger, kube.ClientMode(cfg.Kubernetes.Mode),
			cfg.Kubernetes.KubeconfigPath, cfg.Kubernetes.QPS, cfg.Kubernetes.Burst)
		if err != nil {
			return nil, fmt.Errorf("failed to create kubernetes client: %w", err)
		}
		kubeMetrics = service.NewKubeMetricsService(a.store, reporter, logger.Named("kube-metrics"))
	}

	a.hub = ws.NewHub(logger.Named("ws"), ws.Limits{
		MaxConnections: cfg.WebSocket.MaxConnections,
		MaxRoomSize:    cfg.WebSocket.MaxRoomSize,
	})

	a.apiServer = api.NewServer(logger, api.Options{
		RequestTimeout:       cfg.Server.RequestTimeout,
		ETagMaxAgeSeconds:    cfg.Server.ETagMaxAgeSeconds,
		IdempotencyCacheSize: cfg.Caching.IdempotencySize,
		IdempotencyTTL:       cfg.Caching.IdempotencyTTL,
		MaxHistoryHours:      cfg.History.MaxHours,
	}, monitors, history, kubeMetrics, a.hub)

	a.apiServer.AddReadinessCheck("database", a.repo.Ping)
	if a.chStore != nil {
		a.apiServer.AddReadinessCheck("clickhouse", a.chStore.Ping)
	}
	if a.memStore != nil {
		a.apiServer.AddReadinessCheck("metrics-store", func(context.Context) error {
			return a.memStore.GetHealthSnapshot().Err()
		})
	}
	if factory != nil {
		a.apiServer.AddReadinessCheck("kubernetes", func(context.Context) error {
			return factory.ValidateConnection()
		})
	}

	userAgent := cfg.Checker.UserAgent
	if userAgent == "" {
		userAgent = version.UserAgent()
	}
	scheduler := checker.NewScheduler(logger.Named("checker"), monitors, checker.NewHTTPChecker(nil, userAgent),
		monitors, a.hub, checker.SchedulerConfig{
			Concurrency:   cfg.Checker.Concurrency,
			RatePerSecond: cfg.Checker.RatePerSecond,
			Burst:         cfg.Checker.Burst,
		})

	a.runner = jobs.NewRunner(logger.Named("jobs"), role)
	registered := []jobs.Job{
		{
			Name:       jobs.JobCheckMonitors,
			Interval:   cfg.Jobs.CheckInterval,
			LeaderOnly: true,
			RunOnStart: true,
			Run: func(ctx context.Context) error {
				_, err := scheduler.RunOnce(ctx)
				return err
			},
		},
		{
			Name:       jobs.JobWarmDashboards,
			Interval:   cfg.Jobs.WarmInterval,
			LeaderOnly: true,
			Run:        monitors.WarmDashboards,
		},
	}

	if factory != nil {
		collector := kube.NewCollector(logger.Named("collector"),
			kube.NewNodesAdapter(logger, factory.Client()),
			kube.NewPodsAdapter(logger, factory.Client()),
			kube.NewUsageAdapter(logger, factory.Client().Discovery(), factory.MetricsClient().MetricsV1beta1()),
			a.store)
		registered = append(registered, jobs.Job{
			Name:       jobs.JobCollectKubeMetrics,
			Interval:   cfg.Jobs.CollectInterval,
			LeaderOnly: true,
			RunOnStart: true,
			Run: func(ctx context.Context) error {
				_, err := collector.Collect(ctx)
				return err
			},
		})
	}

	if a.memStore != nil {
		// Every replica keeps its own in-memory rows, so pruning is not leader gated.
		registered = append(registered, jobs.Job{
			Name:     jobs.JobPruneMetrics,
			Interval: cfg.Jobs.PruneInterval,
			Run: func(context.Context) error {
				a.memStore.Prune()
				return nil
			},
		})
	}

	for _, job := range registered {
		if err := a.runner.Register(job); err != nil {
			return nil, err
		}
	}

	return a, nil
}

func (a *app) initMetricsStore(ctx context.Context) error {
	if a.cfg.ClickHouse.Enabled {
		store, err := clickhouse.Open(ctx, clickhouse.Options{
			DSN:       a.cfg.ClickHouse.DSN,
			Retention: time.Duration(a.cfg.ClickHouse.RetentionDays) * 24 * time.Hour,
		}, a.logger.Named("clickhouse"))
		if err != nil {
			return err
		}
		a.chStore = store
		if err := store.EnsureSchema(ctx); err != nil {
			return err
		}
		a.store = store
		return nil
	}

	a.memStore = timeseries.NewMemStore(timeseries.Config{
		MaxWindow:          a.cfg.Timeseries.MaxWindow,
		PointsPerSeries:    a.cfg.Timeseries.PointsPerSeries,
		MaxSeries:          a.cfg.Timeseries.MaxSeries,
		MaxPointsPerSeries: a.cfg.Timeseries.MaxPointsPerSeries,
	})
	a.store = a.memStore
	return nil
}

// Run serves HTTP and runs jobs until ctx is cancelled, then shuts down gracefully.
func (a *app) Run(ctx context.Context) error {
	a.runner.Start(ctx)

	server := &http.Server{
		Addr:              a.cfg.Server.Addr,
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("Server starting", zap.String("addr", a.cfg.Server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			a.runner.Stop()
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	a.logger.Info("Server shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	a.runner.Stop()
	a.apiServer.Stop()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	a.logger.Info("Server exited")
	return nil
}

// Close releases storage connections.
func (a *app) Close() {
	if a.chStore != nil {
		if err := a.chStore.Close(); err != nil {
			a.logger.Warn("Failed to close clickhouse", zap.Error(err))
		}
	}
	if a.repo != nil {
		if err := a.repo.Close(); err != nil {
			a.logger.Warn("Failed to close database", zap.Error(err))
		}
	}
}
