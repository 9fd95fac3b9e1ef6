package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the uptime server
var (
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kuptime_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status_code"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kuptime_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status_code"},
	)

	// Monitor check metrics
	checksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kuptime_checks_total",
			Help: "Total number of monitor checks performed",
		},
		[]string{"result"},
	)

	checkDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "kuptime_check_duration_seconds",
			Help:    "Monitor check round trip time in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
	)

	// Dashboard aggregation metrics
	dashboardComputeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "kuptime_dashboard_compute_duration_seconds",
			Help:    "Time spent computing uptime dashboards",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
	)

	dashboardSamples = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "kuptime_dashboard_samples",
			Help:    "Number of check samples aggregated per dashboard",
			Buckets: prometheus.ExponentialBuckets(10, 4, 8),
		},
	)

	// Cache metrics
	cacheRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kuptime_cache_requests_total",
			Help: "Total number of dashboard cache lookups",
		},
		[]string{"cache", "result"},
	)

	// Database metrics
	dbQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kuptime_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend", "query", "status"},
	)

	dbLockWait = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kuptime_db_lock_wait_seconds",
			Help:    "Time spent waiting for the columnar store connection lock",
			Buckets: []float64{0.0001, 0.001, 0.01, 0.1, 0.5, 1, 5},
		},
		[]string{"backend"},
	)

	// Kubernetes API call metrics
	kubernetesRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kuptime_kubernetes_requests_total",
			Help: "Total number of requests to Kubernetes API",
		},
		[]string{"resource", "verb", "status"},
	)

	kubernetesRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kuptime_kubernetes_request_duration_seconds",
			Help:    "Kubernetes API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"resource", "verb", "status"},
	)

	// WebSocket metrics
	websocketConnectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kuptime_websocket_connections_total",
			Help: "Total number of WebSocket connections",
		},
		[]string{"stream_type"},
	)

	websocketConnectionsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kuptime_websocket_connections_active",
			Help: "Number of active WebSocket connections",
		},
		[]string{"stream_type"},
	)

	// Job metrics
	jobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kuptime_jobs_total",
			Help: "Total number of background job runs",
		},
		[]string{"job_type", "status"},
	)

	jobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kuptime_job_duration_seconds",
			Help:    "Job execution duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
		},
		[]string{"job_type", "status"},
	)

	collectorScrapeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kuptime_collector_scrape_duration_seconds",
			Help:    "Duration of Kubernetes metric collector scrapes",
			Buckets: []float64{0.1, 0.5, 1.0, 2.5, 5.0, 10.0},
		},
		[]string{"collector"},
	)

	collectorScrapeErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kuptime_collector_scrape_errors_total",
			Help: "Total number of Kubernetes metric collector scrape errors",
		},
		[]string{"collector"},
	)

	// In-memory metric store
	storePointsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kuptime_store_points_total",
			Help: "Total number of points added to the in-memory metric store",
		},
	)

	storeSeries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "kuptime_store_series",
			Help: "Current number of series held by the in-memory metric store",
		},
	)

	storeDroppedPointsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kuptime_store_dropped_points_total",
			Help: "Total number of points dropped due to store limits",
		},
	)

	storeEvictedPointsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kuptime_store_evicted_points_total",
			Help: "Total number of points overwritten before leaving the retention window",
		},
	)

	errorsCaptured = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kuptime_errors_captured_total",
			Help: "Total number of errors reported to the error tracker",
		},
		[]string{"component"},
	)
)

// RecordHTTPRequest records metrics for HTTP requests
func RecordHTTPRequest(method, path string, statusCode int, duration time.Duration) {
	labels := prometheus.Labels{
		"method":      method,
		"path":        path,
		"status_code": strconv.Itoa(statusCode),
	}

	httpRequestsTotal.With(labels).Inc()
	httpRequestDuration.With(labels).Observe(duration.Seconds())
}

// RecordCheck records the outcome of a single monitor check
func RecordCheck(success bool, duration time.Duration) {
	checksTotal.With(prometheus.Labels{"result": resultLabel(success)}).Inc()
	checkDuration.Observe(duration.Seconds())
}

// RecordDashboardComputation records how long a dashboard took and how many samples it covered
func RecordDashboardComputation(samples int, duration time.Duration) {
	dashboardComputeDuration.Observe(duration.Seconds())
	dashboardSamples.Observe(float64(samples))
}

// RecordCacheHit records a cache hit for the named cache
func RecordCacheHit(cache string) {
	cacheRequestsTotal.With(prometheus.Labels{"cache": cache, "result": "hit"}).Inc()
}

// RecordCacheMiss records a cache miss for the named cache
func RecordCacheMiss(cache string) {
	cacheRequestsTotal.With(prometheus.Labels{"cache": cache, "result": "miss"}).Inc()
}

// RecordDBQuery records database query latency
func RecordDBQuery(backend, query string, duration time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	dbQueryDuration.With(prometheus.Labels{
		"backend": backend,
		"query":   query,
		"status":  status,
	}).Observe(duration.Seconds())
}

// RecordLockWait records time spent acquiring a backend connection lock
func RecordLockWait(backend string, wait time.Duration) {
	dbLockWait.With(prometheus.Labels{"backend": backend}).Observe(wait.Seconds())
}

// RecordKubernetesRequest records metrics for Kubernetes API requests
func RecordKubernetesRequest(resource, verb string, err error, duration time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	labels := prometheus.Labels{
		"resource": resource,
		"verb":     verb,
		"status":   status,
	}

	kubernetesRequestsTotal.With(labels).Inc()
	kubernetesRequestDuration.With(labels).Observe(duration.Seconds())
}

// RecordWebSocketConnection records WebSocket connection metrics
func RecordWebSocketConnection(streamType string) {
	websocketConnectionsTotal.With(prometheus.Labels{"stream_type": streamType}).Inc()
	websocketConnectionsActive.With(prometheus.Labels{"stream_type": streamType}).Inc()
}

// RecordWebSocketDisconnection records WebSocket disconnection metrics
func RecordWebSocketDisconnection(streamType string) {
	websocketConnectionsActive.With(prometheus.Labels{"stream_type": streamType}).Dec()
}

// RecordJob records job execution metrics
func RecordJob(jobType, status string, duration time.Duration) {
	labels := prometheus.Labels{
		"job_type": jobType,
		"status":   status,
	}

	jobsTotal.With(labels).Inc()
	jobDuration.With(labels).Observe(duration.Seconds())
}

// RecordCollectorScrape records Kubernetes collector scrape metrics
func RecordCollectorScrape(collector string, duration time.Duration, hasError bool) {
	collectorScrapeDuration.With(prometheus.Labels{"collector": collector}).Observe(duration.Seconds())

	if hasError {
		collectorScrapeErrors.With(prometheus.Labels{"collector": collector}).Inc()
	}
}

// RecordStorePoint records a point written to the in-memory store
func RecordStorePoint() {
	storePointsTotal.Inc()
}

// RecordStoreDroppedPoint records a point rejected by store limits
func RecordStoreDroppedPoint() {
	storeDroppedPointsTotal.Inc()
}

// RecordStoreEvictedPoint records a point overwritten by a full ring while still retained
func RecordStoreEvictedPoint() {
	storeEvictedPointsTotal.Inc()
}

// SetStoreSeries sets the current series count of the in-memory store
func SetStoreSeries(count int64) {
	storeSeries.Set(float64(count))
}

// RecordCapturedError counts an error handed to the error tracker
func RecordCapturedError(component string) {
	errorsCaptured.With(prometheus.Labels{"component": component}).Inc()
}

func resultLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
