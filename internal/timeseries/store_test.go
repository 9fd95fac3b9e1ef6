package timeseries

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestMemStore(t *testing.T) {
	ctx := context.Background()
	config := DefaultConfig()

	t.Run("PodMetricsByNamespace", func(t *testing.T) {
		store := NewMemStore(config)
		now := time.Now().Truncate(time.Minute)

		err := store.InsertPodMetrics(ctx, []PodMetric{
			{Timestamp: now.Add(-10 * time.Minute), Namespace: "web", PodName: "api", CPUMillicores: 10},
			{Timestamp: now.Add(-2 * time.Minute), Namespace: "web", PodName: "api", CPUMillicores: 20},
			{Timestamp: now.Add(-2 * time.Minute), Namespace: "batch", PodName: "job", CPUMillicores: 30},
		})
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}

		rows, err := store.PodMetricsByNamespace(ctx, "web", now.Add(-5*time.Minute), 0)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if len(rows) != 1 || rows[0].CPUMillicores != 20 {
			t.Errorf("Expected one recent web row, got %+v", rows)
		}

		rows, err = store.PodMetricsByNamespace(ctx, "missing", time.Time{}, 0)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if rows == nil || len(rows) != 0 {
			t.Errorf("Expected empty non-nil slice, got %v", rows)
		}
	})

	t.Run("NodeMetricsAllNodesBucketed", func(t *testing.T) {
		store := NewMemStore(config)
		base := time.Now().Truncate(time.Hour)

		err := store.InsertNodeMetrics(ctx, []NodeMetric{
			{Timestamp: base.Add(1 * time.Minute), NodeName: "node-a", CPUMillicores: 100},
			{Timestamp: base.Add(2 * time.Minute), NodeName: "node-a", CPUMillicores: 300},
			{Timestamp: base.Add(3 * time.Minute), NodeName: "node-b", CPUMillicores: 50},
		})
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}

		rows, err := store.NodeMetrics(ctx, "", base, 5*time.Minute)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if len(rows) != 2 {
			t.Fatalf("Expected 2 bucketed rows, got %d", len(rows))
		}
		if rows[0].NodeName != "node-a" || rows[0].CPUMillicores != 200 {
			t.Errorf("Unexpected node-a row: %+v", rows[0])
		}

		rows, err = store.NodeMetrics(ctx, "node-b", base, 0)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if len(rows) != 1 || rows[0].NodeName != "node-b" {
			t.Errorf("Expected only node-b, got %+v", rows)
		}
	})

	t.Run("SeriesLimit", func(t *testing.T) {
		limited := config
		limited.MaxSeries = 1
		store := NewMemStore(limited)

		err := store.InsertNodeMetrics(ctx, []NodeMetric{
			{Timestamp: time.Now(), NodeName: "node-a"},
			{Timestamp: time.Now(), NodeName: "node-b"},
		})

		var limitErr *ErrSeriesLimit
		if !errors.As(err, &limitErr) {
			t.Fatalf("Expected ErrSeriesLimit, got %v", err)
		}
		if limitErr.Key != "node-b" {
			t.Errorf("Expected rejected key node-b, got %s", limitErr.Key)
		}
		if store.GetHealthSnapshot().ErrorCount != 1 {
			t.Errorf("Expected one recorded error")
		}
	})

	t.Run("Prune", func(t *testing.T) {
		short := config
		short.MaxWindow = time.Minute
		store := NewMemStore(short)
		now := time.Now()

		_ = store.InsertPodMetrics(ctx, []PodMetric{
			{Timestamp: now.Add(-time.Hour), Namespace: "web", PodName: "old"},
			{Timestamp: now, Namespace: "web", PodName: "new"},
		})

		store.Prune()

		rows, _ := store.PodMetricsByNamespace(ctx, "web", time.Time{}, 0)
		if len(rows) != 1 || rows[0].PodName != "new" {
			t.Errorf("Expected only the recent row after prune, got %+v", rows)
		}
		if store.GetHealthSnapshot().PrunedPoints != 1 {
			t.Errorf("Expected 1 pruned point")
		}
	})

	t.Run("BusyNamespaceKeepsFullWindow", func(t *testing.T) {
		store := NewMemStore(config)
		now := time.Now()
		const (
			pods        = 50
			collections = 2880 // 24h at a 30s collect interval
		)

		for i := 0; i < collections; i++ {
			ts := now.Add(-time.Duration(collections-i) * 30 * time.Second)
			batch := make([]PodMetric, 0, pods)
			for p := 0; p < pods; p++ {
				batch = append(batch, PodMetric{Timestamp: ts, Namespace: "web", PodName: fmt.Sprintf("api-%d", p), CPUMillicores: 1})
			}
			if err := store.InsertPodMetrics(ctx, batch); err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
		}

		rows, err := store.PodMetricsByNamespace(ctx, "web", now.Add(-24*time.Hour), 30*time.Minute)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if len(rows) == 0 {
			t.Fatal("Expected rows")
		}
		if oldest := rows[0].Timestamp; oldest.After(now.Add(-23*time.Hour - 30*time.Minute)) {
			t.Errorf("Expected the window to reach back 24h, oldest bucket is %v ago", now.Sub(oldest))
		}

		snap := store.GetHealthSnapshot()
		if snap.SeriesCount != pods {
			t.Errorf("Expected one series per pod, got %d", snap.SeriesCount)
		}
		if snap.DroppedPoints != 0 || snap.EvictedPoints != 0 {
			t.Errorf("Expected no lost rows, got %+v", snap)
		}
	})

	t.Run("RawRowsSortedAcrossPods", func(t *testing.T) {
		store := NewMemStore(config)
		now := time.Now().Truncate(time.Minute)

		_ = store.InsertPodMetrics(ctx, []PodMetric{
			{Timestamp: now.Add(-1 * time.Minute), Namespace: "web", PodName: "b"},
			{Timestamp: now.Add(-3 * time.Minute), Namespace: "web", PodName: "a"},
			{Timestamp: now.Add(-2 * time.Minute), Namespace: "web", PodName: "b"},
		})

		rows, _ := store.PodMetricsByNamespace(ctx, "web", time.Time{}, 0)
		if len(rows) != 3 {
			t.Fatalf("Expected 3 rows, got %d", len(rows))
		}
		for i := 1; i < len(rows); i++ {
			if rows[i].Timestamp.Before(rows[i-1].Timestamp) {
				t.Errorf("Rows out of order: %+v", rows)
			}
		}
	})

	t.Run("PruneDropsEmptySeries", func(t *testing.T) {
		short := config
		short.MaxWindow = time.Minute
		store := NewMemStore(short)
		now := time.Now()

		_ = store.InsertPodMetrics(ctx, []PodMetric{
			{Timestamp: now.Add(-time.Hour), Namespace: "gone", PodName: "deleted"},
			{Timestamp: now, Namespace: "web", PodName: "live"},
		})
		_ = store.InsertNodeMetrics(ctx, []NodeMetric{
			{Timestamp: now.Add(-time.Hour), NodeName: "drained"},
		})
		if got := store.GetHealthSnapshot().SeriesCount; got != 3 {
			t.Fatalf("Expected 3 series, got %d", got)
		}

		store.Prune()

		if got := store.GetHealthSnapshot().SeriesCount; got != 1 {
			t.Errorf("Expected 1 series after prune, got %d", got)
		}
		rows, _ := store.NodeMetrics(ctx, "", time.Time{}, 0)
		if len(rows) != 0 {
			t.Errorf("Expected no node rows, got %+v", rows)
		}
	})
}
