package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aaronlmathis/kuptime/internal/cache"
	"github.com/aaronlmathis/kuptime/internal/errtrack"
	apimiddleware "github.com/aaronlmathis/kuptime/internal/middleware"
	"github.com/aaronlmathis/kuptime/internal/models"
	"github.com/aaronlmathis/kuptime/internal/repository"
	"github.com/aaronlmathis/kuptime/internal/service"
	"github.com/aaronlmathis/kuptime/internal/timeseries"
	"github.com/aaronlmathis/kuptime/internal/uptime"
	"github.com/aaronlmathis/kuptime/internal/ws"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testEnv struct {
	server   *Server
	monitors *service.MonitorService
	store    *timeseries.MemStore
	hub      *ws.Hub
}

func newTestEnv(t *testing.T, withKube bool) *testEnv {
	t.Helper()
	logger := zap.NewNop()

	repo, err := repository.Open(repository.Options{Driver: repository.DriverSQLite, DSN: ":memory:"}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	require.NoError(t, repo.EnsureSchema(context.Background()))

	reporter := errtrack.NopReporter{}
	dashboards := cache.NewDashboardCache[uptime.Dashboard]("dashboard", 64, time.Minute)
	monitors := service.NewMonitorService(repo, dashboards, reporter, logger, service.MonitorConfig{})
	history := service.NewHistoryService(repo, reporter, logger, 0)

	env := &testEnv{
		monitors: monitors,
		store:    timeseries.NewMemStore(timeseries.DefaultConfig()),
		hub:      ws.NewHub(logger, ws.Limits{}),
	}

	var kubeMetrics *service.KubeMetricsService
	if withKube {
		kubeMetrics = service.NewKubeMetricsService(env.store, reporter, logger)
	}

	env.server = NewServer(logger, Options{}, monitors, history, kubeMetrics, env.hub)
	t.Cleanup(env.server.Stop)
	return env
}

func (e *testEnv) do(t *testing.T, method, target string, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) createMonitor(t *testing.T, name string) *models.Monitor {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/v1/monitors",
		`{"name":"`+name+`","url":"https://example.com/`+name+`"}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var monitor models.Monitor
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &monitor))
	return &monitor
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) apimiddleware.ErrorResponse {
	t.Helper()
	var body apimiddleware.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestServer_HealthAndVersion(t *testing.T) {
	env := newTestEnv(t, false)

	rec := env.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = env.do(t, http.MethodGet, "/version", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"version"`)
}

func TestServer_Readiness(t *testing.T) {
	env := newTestEnv(t, false)

	env.server.AddReadinessCheck("database", func(ctx context.Context) error { return nil })
	rec := env.do(t, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	env.server.AddReadinessCheck("clickhouse", func(ctx context.Context) error {
		return errors.New("connection refused")
	})
	rec = env.do(t, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")
}

func TestServer_Metrics(t *testing.T) {
	env := newTestEnv(t, false)
	env.do(t, http.MethodGet, "/healthz", "", nil)

	rec := env.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "kuptime_http_requests_total")
}

func TestServer_MonitorLifecycle(t *testing.T) {
	env := newTestEnv(t, false)

	monitor := env.createMonitor(t, "api")
	assert.NotEmpty(t, monitor.ID)
	assert.Equal(t, 60, monitor.IntervalSeconds)

	t.Run("list", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/v1/monitors", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var body struct {
			Items []models.Monitor `json:"items"`
			Total int              `json:"total"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, 1, body.Total)
		assert.Equal(t, monitor.ID, body.Items[0].ID)
	})

	t.Run("get", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/v1/monitors/"+monitor.ID, "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), monitor.ID)
	})

	t.Run("delete", func(t *testing.T) {
		rec := env.do(t, http.MethodDelete, "/api/v1/monitors/"+monitor.ID, "", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		rec = env.do(t, http.MethodGet, "/api/v1/monitors/"+monitor.ID, "", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)

		rec = env.do(t, http.MethodDelete, "/api/v1/monitors/"+monitor.ID, "", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestServer_CreateMonitorErrors(t *testing.T) {
	env := newTestEnv(t, false)

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"name":`},
		{"unknown field", `{"name":"a","url":"https://a.example","bogus":1}`},
		{"invalid url", `{"name":"a","url":"ftp://a.example"}`},
		{"interval too short", `{"name":"a","url":"https://a.example","intervalSeconds":5}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/v1/monitors", tt.body, nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			body := decodeError(t, rec)
			assert.Equal(t, http.StatusBadRequest, body.Status)
			assert.NotEmpty(t, body.Error)
		})
	}
}

func TestServer_CreateMonitorIdempotent(t *testing.T) {
	env := newTestEnv(t, false)
	headers := map[string]string{apimiddleware.IdempotencyKeyHeader: "create-1"}
	body := `{"name":"once","url":"https://example.com"}`

	first := env.do(t, http.MethodPost, "/api/v1/monitors", body, headers)
	require.Equal(t, http.StatusCreated, first.Code)

	second := env.do(t, http.MethodPost, "/api/v1/monitors", body, headers)
	require.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))
	assert.Equal(t, first.Body.String(), second.Body.String())

	monitors, err := env.monitors.ListMonitors(context.Background())
	require.NoError(t, err)
	assert.Len(t, monitors, 1)
}

func TestServer_UnknownMonitor(t *testing.T) {
	env := newTestEnv(t, false)

	for _, path := range []string{
		"/api/v1/monitors/missing",
		"/api/v1/monitors/missing/dashboard",
		"/api/v1/monitors/missing/history",
		"/api/v1/stream/monitors/missing",
	} {
		t.Run(path, func(t *testing.T) {
			rec := env.do(t, http.MethodGet, path, "", nil)
			assert.Equal(t, http.StatusNotFound, rec.Code)
			assert.Equal(t, http.StatusNotFound, decodeError(t, rec).Status)
		})
	}
}

func TestServer_Dashboard(t *testing.T) {
	env := newTestEnv(t, false)
	monitor := env.createMonitor(t, "dash")

	now := time.Now()
	for i, ok := range []bool{true, true, false} {
		require.NoError(t, env.monitors.RecordCheck(context.Background(), &models.CheckResult{
			MonitorID:    monitor.ID,
			CheckedAt:    now.Add(-time.Duration(i+1) * time.Minute),
			Success:      ok,
			ResponseTime: 100,
			StatusCode:   200,
		}))
	}

	rec := env.do(t, http.MethodGet, "/api/v1/monitors/"+monitor.ID+"/dashboard", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body service.MonitorDashboard
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, monitor.ID, body.Monitor.ID)
	assert.Equal(t, 3, body.Dashboard.TotalSamples)
	assert.Equal(t, len(uptime.DefaultWindows()), len(body.Dashboard.Order))

	etag := rec.Header().Get("ETag")
	require.NotEmpty(t, etag)

	t.Run("cached dashboard revalidates", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/v1/monitors/"+monitor.ID+"/dashboard", "",
			map[string]string{"If-None-Match": etag})
		assert.Equal(t, http.StatusNotModified, rec.Code)
	})

	t.Run("all dashboards", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/v1/dashboards", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var list struct {
			Items []service.MonitorDashboard `json:"items"`
			Total int                        `json:"total"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
		assert.Equal(t, 1, list.Total)
		assert.Equal(t, 3, list.Items[0].Dashboard.TotalSamples)
	})
}

func TestServer_History(t *testing.T) {
	env := newTestEnv(t, false)
	monitor := env.createMonitor(t, "hist")

	now := time.Now()
	for i := 0; i < 10; i++ {
		require.NoError(t, env.monitors.RecordCheck(context.Background(), &models.CheckResult{
			MonitorID:    monitor.ID,
			CheckedAt:    now.Add(-time.Duration(i+1) * time.Minute),
			Success:      i != 4,
			ResponseTime: 50,
		}))
	}

	t.Run("downsampled", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/v1/monitors/"+monitor.ID+"/history?hours=1&maxPoints=3", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var history service.History
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &history))
		assert.Equal(t, 10, history.Fetched)
		assert.Equal(t, 3, history.Factor)

		failures := 0
		for _, s := range history.Samples {
			if !s.Success {
				failures++
			}
		}
		assert.Equal(t, 1, failures, "failures are never dropped")
		assert.Less(t, len(history.Samples), 10)
	})

	for _, query := range []string{"hours=0", "hours=abc", "hours=100000", "maxPoints=-1", "maxPoints=99999"} {
		t.Run("rejects "+query, func(t *testing.T) {
			rec := env.do(t, http.MethodGet, "/api/v1/monitors/"+monitor.ID+"/history?"+query, "", nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestServer_KubeMetrics(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()
	ts := time.Now().Add(-time.Minute)

	require.NoError(t, env.store.InsertPodMetrics(ctx, []timeseries.PodMetric{
		{Timestamp: ts, Namespace: "default", PodName: "web-1", NodeName: "node-a", CPUMillicores: 120, State: "Running"},
		{Timestamp: ts, Namespace: "kube-system", PodName: "dns-1", NodeName: "node-a", CPUMillicores: 10, State: "Running"},
	}))
	require.NoError(t, env.store.InsertNodeMetrics(ctx, []timeseries.NodeMetric{
		{Timestamp: ts, NodeName: "node-a", CPUMillicores: 130, CPUCapacityMillicores: 4000, PodCount: 2},
		{Timestamp: ts, NodeName: "node-b", CPUMillicores: 20, CPUCapacityMillicores: 4000},
	}))

	t.Run("namespace", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/v1/kube/namespaces/default/metrics", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var body service.PodMetricsRange
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, 60, body.Minutes)
		assert.Equal(t, 0, body.IntervalSeconds)
		require.Len(t, body.Rows, 1)
		assert.Equal(t, "web-1", body.Rows[0].PodName)
	})

	t.Run("bucketed range", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/v1/kube/namespaces/default/metrics?minutes=1440", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var body service.PodMetricsRange
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, 300, body.IntervalSeconds)
	})

	t.Run("all nodes", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/v1/kube/nodes/metrics", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var body service.NodeMetricsRange
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Len(t, body.Rows, 2)
	})

	t.Run("single node", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/v1/kube/nodes/metrics?node=node-b", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var body service.NodeMetricsRange
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.Len(t, body.Rows, 1)
		assert.Equal(t, "node-b", body.Rows[0].NodeName)
	})

	t.Run("bad minutes", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/v1/kube/nodes/metrics?minutes=0", "", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestServer_KubeRoutesDisabled(t *testing.T) {
	env := newTestEnv(t, false)
	rec := env.do(t, http.MethodGet, "/api/v1/kube/nodes/metrics", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_MonitorStream(t *testing.T) {
	env := newTestEnv(t, false)
	monitor := env.createMonitor(t, "stream")

	httpServer := httptest.NewServer(env.server.Handler())
	defer httpServer.Close()

	url := "ws" + strings.TrimPrefix(httpServer.URL, "http") + "/api/v1/stream/monitors/" + monitor.ID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return env.hub.RoomSize(monitor.ID) == 1 }, time.Second, 5*time.Millisecond)

	env.hub.Publish(monitor.ID, "check_result", map[string]interface{}{"success": false})

	var msg ws.Message
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "check_result", msg.Type)
	assert.Equal(t, monitor.ID, msg.Room)
}
