package timeseries

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/aaronlmathis/kuptime/internal/metrics"
)

const (
	seriesWarnRatio = 0.9
	dropWarnRatio   = 0.1
)

// HealthMetrics counts store activity and holds the guardrail limits. Counters
// are mirrored to Prometheus as they change.
type HealthMetrics struct {
	series  atomic.Int64
	added   atomic.Int64
	dropped atomic.Int64
	evicted atomic.Int64
	pruned  atomic.Int64
	errors  atomic.Int64

	maxSeries          atomic.Int64
	maxPointsPerSeries atomic.Int64
}

// NewHealthMetrics creates a tracker with the default limits
func NewHealthMetrics() *HealthMetrics {
	h := &HealthMetrics{}
	d := DefaultConfig()
	h.SetLimits(d.MaxSeries, d.MaxPointsPerSeries)
	return h
}

// SetLimits configures the series and per-series point limits
func (h *HealthMetrics) SetLimits(maxSeries, maxPointsPerSeries int) {
	h.maxSeries.Store(int64(maxSeries))
	h.maxPointsPerSeries.Store(int64(maxPointsPerSeries))
}

func (h *HealthMetrics) IncrementSeriesCount() {
	metrics.SetStoreSeries(h.series.Add(1))
}

func (h *HealthMetrics) DecrementSeriesCount() {
	metrics.SetStoreSeries(h.series.Add(-1))
}

func (h *HealthMetrics) RecordPointAdded() {
	h.added.Add(1)
	metrics.RecordStorePoint()
}

func (h *HealthMetrics) RecordDroppedPoint() {
	h.dropped.Add(1)
	metrics.RecordStoreDroppedPoint()
}

// RecordEvictedPoint counts a row overwritten by a full ring while it was
// still inside the retention window.
func (h *HealthMetrics) RecordEvictedPoint() {
	h.evicted.Add(1)
	metrics.RecordStoreEvictedPoint()
}

func (h *HealthMetrics) RecordPruned(n int) {
	h.pruned.Add(int64(n))
}

func (h *HealthMetrics) RecordError() {
	h.errors.Add(1)
}

// CheckSeriesLimit reports whether one more series fits
func (h *HealthMetrics) CheckSeriesLimit() bool {
	return h.series.Load() < h.maxSeries.Load()
}

// CheckPointsLimit reports whether a series holding n points may take another
func (h *HealthMetrics) CheckPointsLimit(n int) bool {
	return int64(n) < h.maxPointsPerSeries.Load()
}

// GetSnapshot returns the current counters and limits
func (h *HealthMetrics) GetSnapshot() HealthSnapshot {
	return HealthSnapshot{
		SeriesCount:        h.series.Load(),
		TotalPointsAdded:   h.added.Load(),
		DroppedPoints:      h.dropped.Load(),
		EvictedPoints:      h.evicted.Load(),
		PrunedPoints:       h.pruned.Load(),
		ErrorCount:         h.errors.Load(),
		MaxSeriesCount:     int(h.maxSeries.Load()),
		MaxPointsPerSeries: int(h.maxPointsPerSeries.Load()),
		Timestamp:          time.Now(),
	}
}

// HealthSnapshot is a point-in-time copy of HealthMetrics
type HealthSnapshot struct {
	SeriesCount        int64     `json:"seriesCount"`
	TotalPointsAdded   int64     `json:"totalPointsAdded"`
	DroppedPoints      int64     `json:"droppedPoints"`
	EvictedPoints      int64     `json:"evictedPoints"`
	PrunedPoints       int64     `json:"prunedPoints"`
	ErrorCount         int64     `json:"errorCount"`
	MaxSeriesCount     int       `json:"maxSeriesCount"`
	MaxPointsPerSeries int       `json:"maxPointsPerSeries"`
	Timestamp          time.Time `json:"timestamp"`
}

func (s HealthSnapshot) nearSeriesLimit() bool {
	return s.MaxSeriesCount > 0 && float64(s.SeriesCount)/float64(s.MaxSeriesCount) > seriesWarnRatio
}

func (s HealthSnapshot) highDropRate() bool {
	lost := s.DroppedPoints + s.EvictedPoints
	return s.TotalPointsAdded > 0 && float64(lost)/float64(s.TotalPointsAdded) > dropWarnRatio
}

// IsHealthy is false above 90% of the series limit or when more than 10% of
// added rows were dropped or evicted early
func (s HealthSnapshot) IsHealthy() bool {
	return !s.nearSeriesLimit() && !s.highDropRate()
}

// GetStatus returns a human-readable status string
func (s HealthSnapshot) GetStatus() string {
	switch {
	case s.nearSeriesLimit():
		return "warning: approaching series limit"
	case s.highDropRate():
		return "warning: high drop rate"
	default:
		return "healthy"
	}
}

// Err returns nil when healthy and the status as an error otherwise.
func (s HealthSnapshot) Err() error {
	if s.IsHealthy() {
		return nil
	}
	return errors.New(s.GetStatus())
}
