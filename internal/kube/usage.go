package kube

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aaronlmathis/kuptime/internal/metrics"
	"go.uber.org/zap"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/discovery"
	metricsv1beta1 "k8s.io/metrics/pkg/client/clientset/versioned/typed/metrics/v1beta1"
)

const metricsGroup = "metrics.k8s.io"

// Usage is instantaneous resource consumption
type Usage struct {
	CPUMillicores float64
	MemoryBytes   float64
}

// UsageAdapter reads node and pod usage from the metrics API. When the API is
// not served (no metrics-server) every lookup returns an empty map.
type UsageAdapter struct {
	logger        *zap.Logger
	discovery     discovery.DiscoveryInterface
	metricsClient metricsv1beta1.MetricsV1beta1Interface

	mu        sync.Mutex
	checked   bool
	available bool
}

// NewUsageAdapter creates a new usage adapter. metricsClient may be nil.
func NewUsageAdapter(logger *zap.Logger, disc discovery.DiscoveryInterface, metricsClient metricsv1beta1.MetricsV1beta1Interface) *UsageAdapter {
	return &UsageAdapter{
		logger:        logger,
		discovery:     disc,
		metricsClient: metricsClient,
	}
}

// HasMetricsAPI reports whether metrics.k8s.io can be queried. The answer is cached.
func (ua *UsageAdapter) HasMetricsAPI(ctx context.Context) bool {
	ua.mu.Lock()
	defer ua.mu.Unlock()

	if ua.checked {
		return ua.available
	}
	ua.checked = true

	if ua.metricsClient == nil {
		ua.logger.Info("Metrics API client not configured")
		return false
	}

	if ua.discovery != nil {
		if groups, err := ua.discovery.ServerGroups(); err == nil {
			for _, group := range groups.Groups {
				if group.Name == metricsGroup {
					ua.available = true
					return true
				}
			}
		}
	}

	// discovery may be filtered; a probe call settles it
	if _, err := ua.metricsClient.NodeMetricses().List(ctx, metav1.ListOptions{Limit: 1}); err != nil {
		ua.logger.Info("Metrics API not available, usage will be reported as zero", zap.Error(err))
		return false
	}

	ua.available = true
	return true
}

// NodeUsage returns usage keyed by node name
func (ua *UsageAdapter) NodeUsage(ctx context.Context) (map[string]Usage, error) {
	usage := make(map[string]Usage)
	if !ua.HasMetricsAPI(ctx) {
		return usage, nil
	}

	start := time.Now()
	list, err := ua.metricsClient.NodeMetricses().List(ctx, metav1.ListOptions{})
	metrics.RecordKubernetesRequest("nodemetrics", "list", err, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("failed to list node metrics: %w", err)
	}

	for _, item := range list.Items {
		usage[item.Name] = Usage{
			CPUMillicores: float64(item.Usage.Cpu().MilliValue()),
			MemoryBytes:   float64(item.Usage.Memory().Value()),
		}
	}
	return usage, nil
}

// PodUsage returns usage summed over containers, keyed by namespace/name
func (ua *UsageAdapter) PodUsage(ctx context.Context, namespace string) (map[string]Usage, error) {
	usage := make(map[string]Usage)
	if !ua.HasMetricsAPI(ctx) {
		return usage, nil
	}

	start := time.Now()
	list, err := ua.metricsClient.PodMetricses(namespace).List(ctx, metav1.ListOptions{})
	metrics.RecordKubernetesRequest("podmetrics", "list", err, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("failed to list pod metrics: %w", err)
	}

	for _, item := range list.Items {
		var u Usage
		for _, c := range item.Containers {
			u.CPUMillicores += float64(c.Usage.Cpu().MilliValue())
			u.MemoryBytes += float64(c.Usage.Memory().Value())
		}
		usage[item.Namespace+"/"+item.Name] = u
	}
	return usage, nil
}
