package kube

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aaronlmathis/kuptime/internal/metrics"
	"github.com/aaronlmathis/kuptime/internal/timeseries"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Snapshot is the result of one collection pass
type Snapshot struct {
	Pods  []timeseries.PodMetric
	Nodes []timeseries.NodeMetric
}

// Collector samples pod and node usage and writes it to a metrics store
type Collector struct {
	logger *zap.Logger
	nodes  *NodesAdapter
	pods   *PodsAdapter
	usage  *UsageAdapter
	store  timeseries.MetricsStore
	now    func() time.Time
}

// NewCollector creates a new collector
func NewCollector(logger *zap.Logger, nodes *NodesAdapter, pods *PodsAdapter, usage *UsageAdapter, store timeseries.MetricsStore) *Collector {
	return &Collector{
		logger: logger,
		nodes:  nodes,
		pods:   pods,
		usage:  usage,
		store:  store,
		now:    time.Now,
	}
}

// Collect takes one sample of every pod and node and stores it. Node and pod
// listings are required; usage is optional and reads as zero when missing.
func (c *Collector) Collect(ctx context.Context) (snap Snapshot, err error) {
	start := time.Now()
	defer func() {
		metrics.RecordCollectorScrape("kube", time.Since(start), err != nil)
	}()

	var (
		nodes     []NodeCapacity
		pods      []PodStatus
		nodeUsage map[string]Usage
		podUsage  map[string]Usage
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		nodes, err = c.nodes.ListNodes(gctx)
		return err
	})
	g.Go(func() (err error) {
		pods, err = c.pods.ListPods(gctx, "")
		return err
	})
	g.Go(func() error {
		u, err := c.usage.NodeUsage(gctx)
		if err != nil {
			c.logger.Warn("Node usage unavailable", zap.Error(err))
			u = map[string]Usage{}
		}
		nodeUsage = u
		return nil
	})
	g.Go(func() error {
		u, err := c.usage.PodUsage(gctx, "")
		if err != nil {
			c.logger.Warn("Pod usage unavailable", zap.Error(err))
			u = map[string]Usage{}
		}
		podUsage = u
		return nil
	})
	if err = g.Wait(); err != nil {
		return Snapshot{}, fmt.Errorf("failed to collect cluster state: %w", err)
	}

	snap = buildSnapshot(c.now().UTC().Truncate(time.Second), nodes, pods, nodeUsage, podUsage)

	if err = c.store.InsertPodMetrics(ctx, snap.Pods); err != nil {
		return snap, fmt.Errorf("failed to store pod metrics: %w", err)
	}
	if err = c.store.InsertNodeMetrics(ctx, snap.Nodes); err != nil {
		return snap, fmt.Errorf("failed to store node metrics: %w", err)
	}

	c.logger.Debug("Collected Kubernetes metrics",
		zap.Int("pods", len(snap.Pods)),
		zap.Int("nodes", len(snap.Nodes)),
		zap.Duration("duration", time.Since(start)))
	return snap, nil
}

func buildSnapshot(ts time.Time, nodes []NodeCapacity, pods []PodStatus, nodeUsage, podUsage map[string]Usage) Snapshot {
	podsPerNode := make(map[string]int64)
	podRows := make([]timeseries.PodMetric, 0, len(pods))

	for _, p := range pods {
		u := podUsage[p.Key()]
		podRows = append(podRows, timeseries.PodMetric{
			Timestamp:     ts,
			Namespace:     p.Namespace,
			PodName:       p.Name,
			NodeName:      p.NodeName,
			CPUMillicores: u.CPUMillicores,
			MemoryBytes:   u.MemoryBytes,
			RestartCount:  p.RestartCount,
			State:         p.State,
		})
		if p.NodeName != "" && isActive(p.State) {
			podsPerNode[p.NodeName]++
		}
	}

	nodeRows := make([]timeseries.NodeMetric, 0, len(nodes))
	for _, n := range nodes {
		u := nodeUsage[n.Name]
		nodeRows = append(nodeRows, timeseries.NodeMetric{
			Timestamp:             ts,
			NodeName:              n.Name,
			CPUMillicores:         u.CPUMillicores,
			CPUCapacityMillicores: n.CPUMillicores,
			MemoryBytes:           u.MemoryBytes,
			MemoryCapacityBytes:   n.MemoryCapacityBytes,
			PodCount:              podsPerNode[n.Name],
		})
	}

	sort.Slice(podRows, func(i, j int) bool {
		if podRows[i].Namespace != podRows[j].Namespace {
			return podRows[i].Namespace < podRows[j].Namespace
		}
		return podRows[i].PodName < podRows[j].PodName
	})
	sort.Slice(nodeRows, func(i, j int) bool { return nodeRows[i].NodeName < nodeRows[j].NodeName })

	return Snapshot{Pods: podRows, Nodes: nodeRows}
}

// isActive excludes pods that no longer hold node resources
func isActive(state string) bool {
	return state != "Succeeded" && state != "Failed"
}
