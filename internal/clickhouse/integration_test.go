//go:build integration

package clickhouse

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/aaronlmathis/kuptime/internal/timeseries"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// Run with: KUP_CLICKHOUSE_TEST_DSN=clickhouse://localhost:9000/default go test -tags integration ./internal/clickhouse
func openIntegrationStore(t *testing.T) *Store {
	t.Helper()

	dsn := os.Getenv("KUP_CLICKHOUSE_TEST_DSN")
	if dsn == "" {
		t.Skip("KUP_CLICKHOUSE_TEST_DSN not set")
	}

	ctx := context.Background()
	store, err := Open(ctx, Options{DSN: dsn, Retention: 24 * time.Hour}, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	require.NoError(t, store.EnsureSchema(ctx))
	for _, table := range []string{"pod_metrics", "node_metrics"} {
		_, err := store.db.ExecContext(ctx, "TRUNCATE TABLE "+table)
		require.NoError(t, err)
	}
	return store
}

func TestIntegration_BucketedPodMetrics(t *testing.T) {
	ctx := context.Background()
	store := openIntegrationStore(t)
	base := time.Now().UTC().Truncate(time.Hour).Add(-time.Hour)

	require.NoError(t, store.InsertPodMetrics(ctx, []timeseries.PodMetric{
		{Timestamp: base.Add(1 * time.Minute), Namespace: "web", PodName: "api-1", NodeName: "node-a", CPUMillicores: 100, MemoryBytes: 10, RestartCount: 1, State: "Running"},
		{Timestamp: base.Add(2 * time.Minute), Namespace: "web", PodName: "api-1", NodeName: "node-a", CPUMillicores: 300, MemoryBytes: 30, RestartCount: 3, State: "Running"},
		{Timestamp: base.Add(20 * time.Minute), Namespace: "web", PodName: "api-1", NodeName: "node-a", CPUMillicores: 50, RestartCount: 3, State: "Running"},
		{Timestamp: base.Add(1 * time.Minute), Namespace: "batch", PodName: "job", CPUMillicores: 999},
	}))

	rows, err := store.PodMetricsByNamespace(ctx, "web", base, 15*time.Minute)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	first := rows[0]
	assert.True(t, first.Timestamp.Equal(base), "bucket starts at %v, got %v", base, first.Timestamp)
	assert.Equal(t, "web", first.Namespace)
	assert.Equal(t, "api-1", first.PodName)
	assert.Equal(t, "node-a", first.NodeName)
	assert.InDelta(t, 200.0, first.CPUMillicores, 0.001)
	assert.InDelta(t, 20.0, first.MemoryBytes, 0.001)
	assert.Equal(t, int64(3), first.RestartCount)
	assert.Equal(t, "Running", first.State)

	assert.True(t, rows[1].Timestamp.Equal(base.Add(15*time.Minute)))
	assert.InDelta(t, 50.0, rows[1].CPUMillicores, 0.001)
}

func TestIntegration_BucketedNodeMetrics(t *testing.T) {
	ctx := context.Background()
	store := openIntegrationStore(t)
	base := time.Now().UTC().Truncate(time.Hour).Add(-time.Hour)

	require.NoError(t, store.InsertNodeMetrics(ctx, []timeseries.NodeMetric{
		{Timestamp: base.Add(1 * time.Minute), NodeName: "node-a", CPUMillicores: 100, CPUCapacityMillicores: 2000, MemoryBytes: 1, MemoryCapacityBytes: 8, PodCount: 3},
		{Timestamp: base.Add(2 * time.Minute), NodeName: "node-a", CPUMillicores: 300, CPUCapacityMillicores: 2000, MemoryBytes: 3, MemoryCapacityBytes: 8, PodCount: 5},
		{Timestamp: base.Add(3 * time.Minute), NodeName: "node-b", CPUMillicores: 40, CPUCapacityMillicores: 1000, PodCount: 1},
	}))

	all, err := store.NodeMetrics(ctx, "", base, 30*time.Minute)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "node-a", all[0].NodeName)
	assert.InDelta(t, 200.0, all[0].CPUMillicores, 0.001)
	assert.InDelta(t, 2000.0, all[0].CPUCapacityMillicores, 0.001)
	assert.InDelta(t, 2.0, all[0].MemoryBytes, 0.001)
	assert.Equal(t, int64(5), all[0].PodCount)

	one, err := store.NodeMetrics(ctx, "node-b", base, 30*time.Minute)
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, int64(1), one[0].PodCount)
}

func TestIntegration_Ping(t *testing.T) {
	store := openIntegrationStore(t)
	assert.NoError(t, store.Ping(context.Background()))
}
