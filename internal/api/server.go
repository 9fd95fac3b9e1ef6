package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	apimiddleware "github.com/aaronlmathis/kuptime/internal/middleware"
	"github.com/aaronlmathis/kuptime/internal/service"
	"github.com/aaronlmathis/kuptime/internal/version"
	"github.com/aaronlmathis/kuptime/internal/ws"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Options tunes the HTTP surface.
type Options struct {
	RequestTimeout       time.Duration
	ETagMaxAgeSeconds    int
	IdempotencyCacheSize int
	IdempotencyTTL       time.Duration
	// MaxHistoryHours bounds the ?hours parameter of the history endpoint.
	MaxHistoryHours int
	// MaxMetricsMinutes bounds the ?minutes parameter of the kube endpoints.
	MaxMetricsMinutes int
}

// DefaultOptions returns the options used when fields are left zero.
func DefaultOptions() Options {
	return Options{
		RequestTimeout:       60 * time.Second,
		ETagMaxAgeSeconds:    15,
		IdempotencyCacheSize: 1024,
		IdempotencyTTL:       10 * time.Minute,
		MaxHistoryHours:      24 * 90,
		MaxMetricsMinutes:    60 * 24 * 30,
	}
}

// ReadinessCheck reports whether a dependency can serve traffic.
type ReadinessCheck func(ctx context.Context) error

// Server represents the API server
type Server struct {
	logger      *zap.Logger
	options     Options
	router      chi.Router
	monitors    *service.MonitorService
	history     *service.HistoryService
	kubeMetrics *service.KubeMetricsService
	wsHub       *ws.Hub
	errors      *apimiddleware.ErrorSanitizer
	etag        *apimiddleware.ETagMiddleware
	idempotency *apimiddleware.IdempotencyMiddleware

	readyMu sync.RWMutex
	ready   map[string]ReadinessCheck
}

// NewServer creates a new API server. kubeMetrics may be nil when
// Kubernetes collection is disabled; its routes are then not mounted.
func NewServer(logger *zap.Logger, options Options, monitors *service.MonitorService, history *service.HistoryService, kubeMetrics *service.KubeMetricsService, hub *ws.Hub) *Server {
	options = withDefaults(options)

	s := &Server{
		logger:      logger,
		options:     options,
		router:      chi.NewRouter(),
		monitors:    monitors,
		history:     history,
		kubeMetrics: kubeMetrics,
		wsHub:       hub,
		errors:      apimiddleware.NewErrorSanitizer(logger),
		etag:        apimiddleware.NewETagMiddleware(logger, options.ETagMaxAgeSeconds),
		idempotency: apimiddleware.NewIdempotencyMiddleware(logger, options.IdempotencyCacheSize, options.IdempotencyTTL),
		ready:       make(map[string]ReadinessCheck),
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func withDefaults(o Options) Options {
	d := DefaultOptions()
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = d.RequestTimeout
	}
	if o.ETagMaxAgeSeconds <= 0 {
		o.ETagMaxAgeSeconds = d.ETagMaxAgeSeconds
	}
	if o.IdempotencyCacheSize <= 0 {
		o.IdempotencyCacheSize = d.IdempotencyCacheSize
	}
	if o.IdempotencyTTL <= 0 {
		o.IdempotencyTTL = d.IdempotencyTTL
	}
	if o.MaxHistoryHours <= 0 {
		o.MaxHistoryHours = d.MaxHistoryHours
	}
	if o.MaxMetricsMinutes <= 0 {
		o.MaxMetricsMinutes = d.MaxMetricsMinutes
	}
	return o
}

// AddReadinessCheck registers a named dependency check for /readyz.
func (s *Server) AddReadinessCheck(name string, check ReadinessCheck) {
	s.readyMu.Lock()
	defer s.readyMu.Unlock()
	s.ready[name] = check
}

// Stop stops the server components
func (s *Server) Stop() {
	s.logger.Info("Stopping server components")

	if s.wsHub != nil {
		s.wsHub.Stop()
	}
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(apimiddleware.RequestIDResponseMiddleware)
	s.router.Use(apimiddleware.RequestLogger(s.logger))
	s.router.Use(middleware.Recoverer)
	s.router.Use(apimiddleware.PrometheusMiddleware)
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	s.router.Get("/readyz", s.handleReady)
	s.router.Get("/version", s.handleVersion)
	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Route("/api/v1", func(r chi.Router) {
		// Plain request/response routes get a deadline; the stream route does not.
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(s.options.RequestTimeout))

			r.Route("/monitors", func(r chi.Router) {
				r.Get("/", s.handleListMonitors)
				r.With(s.idempotency.Middleware).Post("/", s.handleCreateMonitor)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetMonitor)
					r.With(s.idempotency.Middleware).Delete("/", s.handleDeleteMonitor)

					r.Group(func(r chi.Router) {
						r.Use(s.etag.Middleware)
						r.Get("/dashboard", s.handleGetDashboard)
						r.Get("/history", s.handleGetHistory)
					})
				})
			})

			r.With(s.etag.Middleware).Get("/dashboards", s.handleListDashboards)

			if s.kubeMetrics != nil {
				r.Route("/kube", func(r chi.Router) {
					r.Get("/namespaces/{namespace}/metrics", s.handleNamespaceMetrics)
					r.Get("/nodes/metrics", s.handleNodeMetrics)
				})
			}
		})

		if s.wsHub != nil {
			r.Get("/stream/monitors/{id}", s.handleMonitorStream)
		}
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	s.readyMu.RLock()
	checks := make(map[string]ReadinessCheck, len(s.ready))
	for name, check := range s.ready {
		checks[name] = check
	}
	s.readyMu.RUnlock()

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	failed := make(map[string]string)
	for name, check := range checks {
		if err := check(ctx); err != nil {
			s.logger.Warn("Readiness check failed", zap.String("check", name), zap.Error(err))
			failed[name] = err.Error()
		}
	}

	if len(failed) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status": "not ready",
			"failed": failed,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, version.Get())
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
