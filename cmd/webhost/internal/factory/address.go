package factory

import (
	"context"
	"fmt"

	k8s "k8s.io/client-go/kubernetes"

	"github.com/hasirciogluhq/xwebhost/cmd/webhost/internal/config"
	"github.com/hasirciogluhq/xwebhost/cmd/webhost/internal/core"
	"github.com/hasirciogluhq/xwebhost/cmd/webhost/internal/discovery/kubernetes"
	"github.com/hasirciogluhq/xwebhost/cmd/webhost/internal/discovery/memory"
	"github.com/hasirciogluhq/xwebhost/cmd/webhost/internal/logger"
)

// AddressFactory creates the lookup for the listener's explicit address
type AddressFactory struct {
	cfg *config.Config
}

// NewAddressFactory creates a new address factory
func NewAddressFactory(cfg *config.Config) *AddressFactory {
	return &AddressFactory{cfg: cfg}
}

// Create creates an address lookup based on configuration
func (f *AddressFactory) Create(clientset k8s.Interface) (core.AddressLookup, error) {
	switch f.cfg.AddressMode {
	case config.AddressStatic:
		logger.Info("Using static host address", "address", f.cfg.HostAddress)
		return memory.NewStaticAddress(f.cfg.HostAddress), nil
	case config.AddressKubernetes:
		if clientset == nil {
			return nil, fmt.Errorf("kubernetes address mode requires kubernetes client (provide KUBECONFIG or run in-cluster)")
		}
		logger.Info("Using pod IP as host address", "namespace", f.cfg.Namespace, "pod", f.cfg.PodName)
		return kubernetes.NewPodAddress(clientset, f.cfg.Namespace, f.cfg.PodName), nil
	default:
		return nil, fmt.Errorf("unknown address mode: %s", f.cfg.AddressMode)
	}
}

// Resolve runs the lookup once. An empty result leaves interface discovery
// to the listener.
func (f *AddressFactory) Resolve(ctx context.Context, clientset k8s.Interface) (string, error) {
	lookup, err := f.Create(clientset)
	if err != nil {
		return "", err
	}
	addr, err := lookup.LookupAddress(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to look up host address: %w", err)
	}
	return addr, nil
}
