package cluster

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	ktypes "k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/opscart/k8s-ai-diagnostics/pkg/types"
)

// restartWindow bounds how far back a restart still counts as "recent"
// when deciding whether a Running pod is unhealthy.
const restartWindow = 10 * time.Minute

// Accessor is the narrow command interface against the orchestration API.
// Mutating calls fail with *types.ClusterCommandError and are never retried
// internally; retry policy belongs to the executor.
type Accessor interface {
	NamespaceExists(ctx context.Context, namespace string) (bool, error)
	ListUnhealthyPods(ctx context.Context, namespace string) ([]corev1.Pod, error)
	GetLogs(ctx context.Context, namespace, pod, container string, tailLines int64) ([]string, error)
	PatchImage(ctx context.Context, namespace, workload, container, image string) error
	PatchMemoryLimit(ctx context.Context, namespace, workload, container, limit string) error
	PatchEnv(ctx context.Context, namespace, workload, container string, env map[string]string) error
	DeletePod(ctx context.Context, namespace, pod string) error
}

// KubeAccessor implements Accessor against a live cluster.
type KubeAccessor struct {
	client kubernetes.Interface
}

// NewAccessor builds a KubeAccessor from an explicit kubeconfig path, the
// KUBECONFIG environment variable, in-cluster config, or ~/.kube/config,
// in that order.
func NewAccessor(kubeconfigPath string) (*KubeAccessor, error) {
	var cfg *rest.Config
	var err error
	if kubeconfigPath != "" {
		cfg, err = clientcmd.BuildConfigFromFlags("", kubeconfigPath)
	} else if k := os.Getenv("KUBECONFIG"); k != "" {
		cfg, err = clientcmd.BuildConfigFromFlags("", k)
	} else {
		cfg, err = rest.InClusterConfig()
		if err != nil {
			cfg, err = clientcmd.BuildConfigFromFlags("", os.Getenv("HOME")+"/.kube/config")
		}
	}
	if err != nil {
		return nil, fmt.Errorf("kubeconfig error: %w", err)
	}

	client, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}
	return &KubeAccessor{client: client}, nil
}

// NewAccessorWithClient wraps an existing clientset. Tests inject the fake
// clientset through here.
func NewAccessorWithClient(client kubernetes.Interface) *KubeAccessor {
	return &KubeAccessor{client: client}
}

// NamespaceExists reports whether the target namespace exists.
func (a *KubeAccessor) NamespaceExists(ctx context.Context, namespace string) (bool, error) {
	_, err := a.client.CoreV1().Namespaces().Get(ctx, namespace, metav1.GetOptions{})
	if err != nil {
		if apierrors.IsNotFound(err) {
			return false, nil
		}
		return false, &types.ClusterCommandError{Op: "get namespace", Cause: err}
	}
	return true, nil
}

// ListUnhealthyPods returns the pods in namespace that need attention,
// sorted by name for deterministic iteration order.
func (a *KubeAccessor) ListUnhealthyPods(ctx context.Context, namespace string) ([]corev1.Pod, error) {
	list, err := a.client.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, &types.ClusterCommandError{Op: "list pods", Cause: err}
	}

	var unhealthy []corev1.Pod
	now := time.Now()
	for _, pod := range list.Items {
		if IsUnhealthy(&pod, now) {
			unhealthy = append(unhealthy, pod)
		}
	}
	sort.Slice(unhealthy, func(i, j int) bool {
		return unhealthy[i].Name < unhealthy[j].Name
	})
	return unhealthy, nil
}

// IsUnhealthy reports whether a pod needs attention: phase is not Running,
// or it is Running but a container restarted within the recent window or is
// currently not ready.
func IsUnhealthy(pod *corev1.Pod, now time.Time) bool {
	if pod.Status.Phase == corev1.PodSucceeded {
		return false
	}
	if pod.Status.Phase != corev1.PodRunning {
		return true
	}
	for _, cs := range pod.Status.ContainerStatuses {
		if !cs.Ready {
			return true
		}
		if cs.RestartCount > 0 {
			term := cs.LastTerminationState.Terminated
			if term != nil && now.Sub(term.FinishedAt.Time) <= restartWindow {
				return true
			}
		}
	}
	return false
}

// GetLogs returns up to tailLines recent log lines for a container,
// preferring the previous instance when the container has restarted.
func (a *KubeAccessor) GetLogs(ctx context.Context, namespace, pod, container string, tailLines int64) ([]string, error) {
	lines, err := a.readLogs(ctx, namespace, pod, container, tailLines, true)
	if err == nil && len(lines) > 0 {
		return lines, nil
	}
	lines, err = a.readLogs(ctx, namespace, pod, container, tailLines, false)
	if err != nil {
		return nil, &types.ClusterCommandError{Op: "get logs", Cause: err}
	}
	return lines, nil
}

func (a *KubeAccessor) readLogs(ctx context.Context, namespace, pod, container string, tailLines int64, previous bool) ([]string, error) {
	req := a.client.CoreV1().Pods(namespace).GetLogs(pod, &corev1.PodLogOptions{
		Container: container,
		TailLines: &tailLines,
		Previous:  previous,
	})
	stream, err := req.Stream(ctx)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	var lines []string
	scanner := bufio.NewScanner(stream)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines, scanner.Err()
}

// PatchImage sets the image of the named container on the owning
// deployment via a strategic merge patch. Re-applying the same image is a
// no-op change.
func (a *KubeAccessor) PatchImage(ctx context.Context, namespace, workload, container, image string) error {
	patch := fmt.Sprintf(
		`{"spec":{"template":{"spec":{"containers":[{"name":%q,"image":%q}]}}}}`,
		container, image,
	)
	return a.patchDeployment(ctx, namespace, workload, patch, "patch image")
}

// PatchMemoryLimit sets an absolute memory limit on the named container and
// a request at 80% of it, so the scheduler keeps headroom.
func (a *KubeAccessor) PatchMemoryLimit(ctx context.Context, namespace, workload, container, limit string) error {
	request := requestForLimit(limit)
	patch := fmt.Sprintf(
		`{"spec":{"template":{"spec":{"containers":[{"name":%q,"resources":{"limits":{"memory":%q},"requests":{"memory":%q}}}]}}}}`,
		container, limit, request,
	)
	return a.patchDeployment(ctx, namespace, workload, patch, "patch memory limit")
}

// PatchEnv merges environment variables into the named container. The env
// list merges by variable name, so existing entries are updated in place
// and never duplicated.
func (a *KubeAccessor) PatchEnv(ctx context.Context, namespace, workload, container string, env map[string]string) error {
	names := make([]string, 0, len(env))
	for name := range env {
		names = append(names, name)
	}
	sort.Strings(names)

	entries := make([]string, 0, len(names))
	for _, name := range names {
		entries = append(entries, fmt.Sprintf(`{"name":%q,"value":%q}`, name, env[name]))
	}
	patch := fmt.Sprintf(
		`{"spec":{"template":{"spec":{"containers":[{"name":%q,"env":[%s]}]}}}}`,
		container, strings.Join(entries, ","),
	)
	return a.patchDeployment(ctx, namespace, workload, patch, "patch env")
}

func (a *KubeAccessor) patchDeployment(ctx context.Context, namespace, workload, patch, op string) error {
	_, err := a.client.AppsV1().Deployments(namespace).Patch(
		ctx, workload, ktypes.StrategicMergePatchType, []byte(patch), metav1.PatchOptions{},
	)
	if err != nil {
		return &types.ClusterCommandError{Op: op, Cause: err}
	}
	return nil
}

// DeletePod deletes a pod instance; the owning workload's reconciliation
// recreates it.
func (a *KubeAccessor) DeletePod(ctx context.Context, namespace, pod string) error {
	err := a.client.CoreV1().Pods(namespace).Delete(ctx, pod, metav1.DeleteOptions{})
	if err != nil {
		return &types.ClusterCommandError{Op: "delete pod", Cause: err}
	}
	return nil
}

// WorkloadFor resolves the owning workload name for a pod. Deployment pods
// are owned by a ReplicaSet named <deployment>-<hash>; stripping the hash
// suffix recovers the deployment name. Pods without a ReplicaSet owner fall
// back to stripping the two generated name suffixes.
func WorkloadFor(pod *corev1.Pod) string {
	for _, owner := range pod.OwnerReferences {
		if owner.Kind == "ReplicaSet" {
			if idx := strings.LastIndex(owner.Name, "-"); idx > 0 {
				return owner.Name[:idx]
			}
			return owner.Name
		}
		if owner.Kind == "Deployment" {
			return owner.Name
		}
	}

	parts := strings.Split(pod.Name, "-")
	if len(parts) > 2 {
		return strings.Join(parts[:len(parts)-2], "-")
	}
	return pod.Name
}

var limitPattern = regexp.MustCompile(`^(\d+)([A-Za-z]+)$`)

// requestForLimit derives a memory request at 80% of the limit, keeping the
// limit's unit.
func requestForLimit(limit string) string {
	m := limitPattern.FindStringSubmatch(limit)
	if m == nil {
		return limit
	}
	var value int64
	fmt.Sscanf(m[1], "%d", &value)
	request := value * 80 / 100
	if request == 0 {
		// Unit too coarse to shave 20% off (e.g. 1Gi); keep request = limit.
		return limit
	}
	return fmt.Sprintf("%d%s", request, m[2])
}
