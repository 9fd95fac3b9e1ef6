package kube

import (
	"context"
	"fmt"
	"time"

	"github.com/aaronlmathis/kuptime/internal/metrics"
	"go.uber.org/zap"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

// NodeCapacity is a node's allocatable size
type NodeCapacity struct {
	Name                string  `json:"name"`
	CPUMillicores       float64 `json:"cpuMillicores"`
	MemoryCapacityBytes float64 `json:"memoryCapacityBytes"`
	Ready               bool    `json:"ready"`
}

// NodesAdapter lists nodes and their capacity
type NodesAdapter struct {
	logger     *zap.Logger
	kubeClient kubernetes.Interface
}

// NewNodesAdapter creates a new nodes adapter
func NewNodesAdapter(logger *zap.Logger, kubeClient kubernetes.Interface) *NodesAdapter {
	return &NodesAdapter{
		logger:     logger,
		kubeClient: kubeClient,
	}
}

// ListNodes returns every node. A node without a reported capacity gets zeros.
func (na *NodesAdapter) ListNodes(ctx context.Context) ([]NodeCapacity, error) {
	start := time.Now()
	nodes, err := na.kubeClient.CoreV1().Nodes().List(ctx, metav1.ListOptions{})
	metrics.RecordKubernetesRequest("nodes", "list", err, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("failed to list nodes: %w", err)
	}

	out := make([]NodeCapacity, 0, len(nodes.Items))
	for _, node := range nodes.Items {
		capacity := NodeCapacity{Name: node.Name, Ready: nodeReady(&node)}

		if cpu, ok := node.Status.Capacity[corev1.ResourceCPU]; ok {
			capacity.CPUMillicores = float64(cpu.MilliValue())
		}
		if mem, ok := node.Status.Capacity[corev1.ResourceMemory]; ok {
			capacity.MemoryCapacityBytes = float64(mem.Value())
		}

		out = append(out, capacity)
	}

	na.logger.Debug("Collected node capacities", zap.Int("nodeCount", len(out)))
	return out, nil
}

func nodeReady(node *corev1.Node) bool {
	for _, cond := range node.Status.Conditions {
		if cond.Type == corev1.NodeReady {
			return cond.Status == corev1.ConditionTrue
		}
	}
	return false
}
