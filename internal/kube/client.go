// Package kube collects pod and node resource metrics from the Kubernetes API.
package kube

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/util/homedir"
	metricsclient "k8s.io/metrics/pkg/client/clientset/versioned"
)

// ClientMode selects how the REST config is built
type ClientMode string

const (
	// InClusterMode uses the pod's ServiceAccount
	InClusterMode ClientMode = "incluster"
	// KubeconfigMode uses a kubeconfig file
	KubeconfigMode ClientMode = "kubeconfig"
)

// Factory builds the core and metrics clientsets from one REST config
type Factory struct {
	logger  *zap.Logger
	config  *rest.Config
	client  kubernetes.Interface
	metrics metricsclient.Interface
}

// NewFactory creates clients for the given mode. qps and burst are applied when positive.
func NewFactory(logger *zap.Logger, mode ClientMode, kubeconfigPath string, qps float32, burst int) (*Factory, error) {
	var config *rest.Config
	var err error

	switch mode {
	case InClusterMode:
		logger.Info("Creating in-cluster Kubernetes client")
		config, err = rest.InClusterConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to create in-cluster config: %w", err)
		}
	case KubeconfigMode:
		path, err := resolveKubeconfig(kubeconfigPath)
		if err != nil {
			return nil, err
		}
		logger.Info("Creating kubeconfig-based Kubernetes client", zap.String("kubeconfig", path))
		config, err = clientcmd.BuildConfigFromFlags("", path)
		if err != nil {
			return nil, fmt.Errorf("failed to build config from kubeconfig %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported client mode: %s", mode)
	}

	if qps > 0 {
		config.QPS = qps
	}
	if burst > 0 {
		config.Burst = burst
	}

	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kubernetes clientset: %w", err)
	}

	metricsClientset, err := metricsclient.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics clientset: %w", err)
	}

	return &Factory{
		logger:  logger,
		config:  config,
		client:  clientset,
		metrics: metricsClientset,
	}, nil
}

// Client returns the Kubernetes clientset
func (f *Factory) Client() kubernetes.Interface {
	return f.client
}

// MetricsClient returns the metrics.k8s.io clientset
func (f *Factory) MetricsClient() metricsclient.Interface {
	return f.metrics
}

// ValidateConnection asks the API server for its version
func (f *Factory) ValidateConnection() error {
	version, err := f.client.Discovery().ServerVersion()
	if err != nil {
		return fmt.Errorf("failed to connect to Kubernetes API: %w", err)
	}

	f.logger.Info("Kubernetes connection validated",
		zap.String("gitVersion", version.GitVersion),
		zap.String("platform", version.Platform),
	)
	return nil
}

// resolveKubeconfig falls back to $KUBECONFIG and then ~/.kube/config
func resolveKubeconfig(path string) (string, error) {
	if path == "" {
		if env := os.Getenv("KUBECONFIG"); env != "" {
			path = env
		} else if home := homedir.HomeDir(); home != "" {
			path = filepath.Join(home, ".kube", "config")
		} else {
			return "", fmt.Errorf("no kubeconfig path provided and unable to determine default location")
		}
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return "", fmt.Errorf("kubeconfig file does not exist: %s", path)
	}
	return path, nil
}
