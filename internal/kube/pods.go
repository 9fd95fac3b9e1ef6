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

// PodStatus is the part of a pod the collector records
type PodStatus struct {
	Namespace    string
	Name         string
	NodeName     string
	State        string
	RestartCount int64
}

// Key identifies the pod as namespace/name
func (p PodStatus) Key() string {
	return p.Namespace + "/" + p.Name
}

// PodsAdapter lists pods with their scheduling and restart state
type PodsAdapter struct {
	logger     *zap.Logger
	kubeClient kubernetes.Interface
}

// NewPodsAdapter creates a new pods adapter
func NewPodsAdapter(logger *zap.Logger, kubeClient kubernetes.Interface) *PodsAdapter {
	return &PodsAdapter{
		logger:     logger,
		kubeClient: kubeClient,
	}
}

// ListPods returns pods in namespace, or in every namespace when it is empty
func (pa *PodsAdapter) ListPods(ctx context.Context, namespace string) ([]PodStatus, error) {
	start := time.Now()
	pods, err := pa.kubeClient.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{})
	metrics.RecordKubernetesRequest("pods", "list", err, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("failed to list pods: %w", err)
	}

	out := make([]PodStatus, 0, len(pods.Items))
	for i := range pods.Items {
		pod := &pods.Items[i]

		var restarts int64
		for _, cs := range pod.Status.ContainerStatuses {
			restarts += int64(cs.RestartCount)
		}

		out = append(out, PodStatus{
			Namespace:    pod.Namespace,
			Name:         pod.Name,
			NodeName:     pod.Spec.NodeName,
			State:        podState(pod),
			RestartCount: restarts,
		})
	}

	pa.logger.Debug("Collected pod statuses", zap.Int("podCount", len(out)))
	return out, nil
}

// podState is the pod phase, overridden by a terminating pod or a waiting container reason
func podState(pod *corev1.Pod) string {
	if pod.DeletionTimestamp != nil {
		return "Terminating"
	}
	for _, cs := range pod.Status.ContainerStatuses {
		if cs.State.Waiting != nil && cs.State.Waiting.Reason != "" {
			return cs.State.Waiting.Reason
		}
	}
	if pod.Status.Phase == "" {
		return string(corev1.PodUnknown)
	}
	return string(pod.Status.Phase)
}
