package service

import (
	"context"
	"time"

	"github.com/aaronlmathis/kuptime/internal/errtrack"
	"github.com/aaronlmathis/kuptime/internal/timeseries"
	"go.uber.org/zap"
)

// PodMetricsRange is the response for a namespace metrics query.
type PodMetricsRange struct {
	Namespace       string                 `json:"namespace"`
	Minutes         int                    `json:"minutes"`
	IntervalSeconds int                    `json:"intervalSeconds"`
	Rows            []timeseries.PodMetric `json:"rows"`
}

// NodeMetricsRange is the response for a node metrics query.
type NodeMetricsRange struct {
	Node            string                  `json:"node,omitempty"`
	Minutes         int                     `json:"minutes"`
	IntervalSeconds int                     `json:"intervalSeconds"`
	Rows            []timeseries.NodeMetric `json:"rows"`
}

// KubeMetricsService answers Kubernetes metric range queries, choosing the
// bucket interval from the requested span.
type KubeMetricsService struct {
	store    timeseries.MetricsStore
	reporter errtrack.Reporter
	logger   *zap.Logger
	now      func() time.Time
}

// NewKubeMetricsService creates a new Kubernetes metrics service
func NewKubeMetricsService(store timeseries.MetricsStore, reporter errtrack.Reporter, logger *zap.Logger) *KubeMetricsService {
	return &KubeMetricsService{
		store:    store,
		reporter: reporter,
		logger:   logger,
		now:      time.Now,
	}
}

func (s *KubeMetricsService) NamespaceMetrics(ctx context.Context, namespace string, minutes int) PodMetricsRange {
	interval := timeseries.SelectInterval(minutes)
	out := PodMetricsRange{
		Namespace:       namespace,
		Minutes:         minutes,
		IntervalSeconds: int(interval / time.Second),
		Rows:            []timeseries.PodMetric{},
	}

	rows, err := s.store.PodMetricsByNamespace(ctx, namespace, s.since(minutes), interval)
	if err != nil {
		s.reporter.Capture(errtrack.WithComponent(ctx, "kube-metrics"), err, zap.String("namespace", namespace))
		return out
	}
	out.Rows = rows
	return out
}

// NodeMetrics returns rows for node, or for every node when node is empty.
func (s *KubeMetricsService) NodeMetrics(ctx context.Context, node string, minutes int) NodeMetricsRange {
	interval := timeseries.SelectInterval(minutes)
	out := NodeMetricsRange{
		Node:            node,
		Minutes:         minutes,
		IntervalSeconds: int(interval / time.Second),
		Rows:            []timeseries.NodeMetric{},
	}

	rows, err := s.store.NodeMetrics(ctx, node, s.since(minutes), interval)
	if err != nil {
		s.reporter.Capture(errtrack.WithComponent(ctx, "kube-metrics"), err, zap.String("node", node))
		return out
	}
	out.Rows = rows
	return out
}

func (s *KubeMetricsService) since(minutes int) time.Time {
	return s.now().Add(-time.Duration(minutes) * time.Minute)
}
