package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/aaronlmathis/kuptime/internal/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// PrometheusMiddleware records HTTP request metrics for Prometheus
func PrometheusMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.RecordHTTPRequest(r.Method, routeLabel(r), status, time.Since(start))
	})
}

// RequestIDResponseMiddleware adds the request ID to response headers
func RequestIDResponseMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if reqID := middleware.GetReqID(r.Context()); reqID != "" {
			w.Header().Set("X-Request-ID", reqID)
		}
		next.ServeHTTP(w, r)
	})
}

// routeLabel prefers the matched chi pattern so ids never become label values
func routeLabel(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return strings.TrimSuffix(pattern, "/*")
		}
	}
	return sanitizePath(r.URL.Path)
}

// sanitizePath collapses unmatched paths into a bounded label set
func sanitizePath(path string) string {
	path = strings.TrimSuffix(path, "/")

	switch path {
	case "", "/healthz", "/readyz", "/version", "/metrics":
		if path == "" {
			return "/"
		}
		return path
	}

	if strings.HasPrefix(path, "/api/v1/") {
		parts := strings.Split(path, "/")
		if len(parts) >= 4 {
			return "/api/v1/" + parts[3] + "/other"
		}
	}
	return "other"
}
