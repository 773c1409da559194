package kubernetes

import (
	"context"
	"fmt"
	"net"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/kubernetes"

	"github.com/hasirciogluhq/xwebhost/cmd/webhost/internal/logger"
)

// PodAddress looks up the IP Kubernetes assigned to this pod, so the
// listener binds and advertises the address other pods reach it on.
type PodAddress struct {
	clientset kubernetes.Interface
	namespace string
	podName   string

	// PollInterval is the wait between lookups while the pod has no IP yet.
	PollInterval time.Duration
}

func NewPodAddress(clientset kubernetes.Interface, namespace, podName string) *PodAddress {
	return &PodAddress{
		clientset:    clientset,
		namespace:    namespace,
		podName:      podName,
		PollInterval: time.Second,
	}
}

// LookupAddress returns the pod IP, waiting until one is assigned or ctx ends.
func (a *PodAddress) LookupAddress(ctx context.Context) (string, error) {
	var ip string
	err := wait.PollUntilContextCancel(ctx, a.PollInterval, true, func(ctx context.Context) (bool, error) {
		pod, err := a.clientset.CoreV1().Pods(a.namespace).Get(ctx, a.podName, metav1.GetOptions{})
		if err != nil {
			return false, fmt.Errorf("failed to get pod %s/%s: %w", a.namespace, a.podName, err)
		}
		ip = podIP(pod)
		if ip == "" {
			logger.Debug("Pod has no IP yet", "namespace", a.namespace, "pod", a.podName, "phase", pod.Status.Phase)
			return false, nil
		}
		return true, nil
	})
	if err != nil {
		return "", err
	}
	return ip, nil
}

// podIP prefers an IPv4 entry of a dual-stack pod.
func podIP(pod *corev1.Pod) string {
	for _, p := range pod.Status.PodIPs {
		if ip := net.ParseIP(p.IP); ip != nil && ip.To4() != nil {
			return p.IP
		}
	}
	return pod.Status.PodIP
}
