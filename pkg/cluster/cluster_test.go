package cluster

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/kubernetes/fake"
	ktesting "k8s.io/client-go/testing"

	"github.com/opscart/k8s-ai-diagnostics/pkg/types"
)

func TestIsUnhealthy(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name      string
		pod       corev1.Pod
		unhealthy bool
	}{
		{
			name: "pending pod",
			pod: corev1.Pod{
				Status: corev1.PodStatus{Phase: corev1.PodPending},
			},
			unhealthy: true,
		},
		{
			name: "failed pod",
			pod: corev1.Pod{
				Status: corev1.PodStatus{Phase: corev1.PodFailed},
			},
			unhealthy: true,
		},
		{
			name: "succeeded pod is not an issue",
			pod: corev1.Pod{
				Status: corev1.PodStatus{Phase: corev1.PodSucceeded},
			},
			unhealthy: false,
		},
		{
			name: "healthy running pod",
			pod: corev1.Pod{
				Status: corev1.PodStatus{
					Phase: corev1.PodRunning,
					ContainerStatuses: []corev1.ContainerStatus{
						{Ready: true},
					},
				},
			},
			unhealthy: false,
		},
		{
			name: "running but not ready",
			pod: corev1.Pod{
				Status: corev1.PodStatus{
					Phase: corev1.PodRunning,
					ContainerStatuses: []corev1.ContainerStatus{
						{Ready: false},
					},
				},
			},
			unhealthy: true,
		},
		{
			name: "running with recent restart",
			pod: corev1.Pod{
				Status: corev1.PodStatus{
					Phase: corev1.PodRunning,
					ContainerStatuses: []corev1.ContainerStatus{{
						Ready:        true,
						RestartCount: 2,
						LastTerminationState: corev1.ContainerState{
							Terminated: &corev1.ContainerStateTerminated{
								FinishedAt: metav1.NewTime(now.Add(-1 * time.Minute)),
							},
						},
					}},
				},
			},
			unhealthy: true,
		},
		{
			name: "running with old restart",
			pod: corev1.Pod{
				Status: corev1.PodStatus{
					Phase: corev1.PodRunning,
					ContainerStatuses: []corev1.ContainerStatus{{
						Ready:        true,
						RestartCount: 2,
						LastTerminationState: corev1.ContainerState{
							Terminated: &corev1.ContainerStateTerminated{
								FinishedAt: metav1.NewTime(now.Add(-1 * time.Hour)),
							},
						},
					}},
				},
			},
			unhealthy: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.unhealthy, IsUnhealthy(&tt.pod, now))
		})
	}
}

func TestListUnhealthyPodsSortedByName(t *testing.T) {
	client := fake.NewSimpleClientset(
		&corev1.Pod{
			ObjectMeta: metav1.ObjectMeta{Name: "zeta", Namespace: "demo"},
			Status:     corev1.PodStatus{Phase: corev1.PodPending},
		},
		&corev1.Pod{
			ObjectMeta: metav1.ObjectMeta{Name: "alpha", Namespace: "demo"},
			Status:     corev1.PodStatus{Phase: corev1.PodFailed},
		},
		&corev1.Pod{
			ObjectMeta: metav1.ObjectMeta{Name: "healthy", Namespace: "demo"},
			Status: corev1.PodStatus{
				Phase:             corev1.PodRunning,
				ContainerStatuses: []corev1.ContainerStatus{{Ready: true}},
			},
		},
	)
	accessor := NewAccessorWithClient(client)

	pods, err := accessor.ListUnhealthyPods(context.Background(), "demo")
	require.NoError(t, err)
	require.Len(t, pods, 2)
	assert.Equal(t, "alpha", pods[0].Name)
	assert.Equal(t, "zeta", pods[1].Name)
}

func TestNamespaceExists(t *testing.T) {
	client := fake.NewSimpleClientset(
		&corev1.Namespace{ObjectMeta: metav1.ObjectMeta{Name: "demo"}},
	)
	accessor := NewAccessorWithClient(client)

	exists, err := accessor.NamespaceExists(context.Background(), "demo")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = accessor.NamespaceExists(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestPatchBodies(t *testing.T) {
	tests := []struct {
		name     string
		patch    func(a *KubeAccessor) error
		contains []string
	}{
		{
			name: "image",
			patch: func(a *KubeAccessor) error {
				return a.PatchImage(context.Background(), "demo", "web", "web", "nginx:latest")
			},
			contains: []string{`"name":"web"`, `"image":"nginx:latest"`},
		},
		{
			name: "memory limit with 80 percent request",
			patch: func(a *KubeAccessor) error {
				return a.PatchMemoryLimit(context.Background(), "demo", "web", "web", "512Mi")
			},
			contains: []string{`"limits":{"memory":"512Mi"}`, `"requests":{"memory":"409Mi"}`},
		},
		{
			name: "env merge",
			patch: func(a *KubeAccessor) error {
				return a.PatchEnv(context.Background(), "demo", "web", "web", map[string]string{
					"MYSQL_HOST":          "localhost",
					"MYSQL_ROOT_PASSWORD": "password123",
				})
			},
			contains: []string{
				`{"name":"MYSQL_HOST","value":"localhost"}`,
				`{"name":"MYSQL_ROOT_PASSWORD","value":"password123"}`,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := fake.NewSimpleClientset()
			var captured []byte
			client.PrependReactor("patch", "deployments", func(action ktesting.Action) (bool, runtime.Object, error) {
				captured = action.(ktesting.PatchAction).GetPatch()
				return true, nil, nil
			})
			accessor := NewAccessorWithClient(client)

			require.NoError(t, tt.patch(accessor))
			for _, want := range tt.contains {
				assert.Contains(t, string(captured), want)
			}
		})
	}
}

func TestMutationFailureWrapsClusterCommandError(t *testing.T) {
	client := fake.NewSimpleClientset()
	client.PrependReactor("patch", "deployments", func(action ktesting.Action) (bool, runtime.Object, error) {
		return true, nil, errors.New("server unavailable")
	})
	accessor := NewAccessorWithClient(client)

	err := accessor.PatchImage(context.Background(), "demo", "web", "web", "nginx:latest")
	require.Error(t, err)
	var cmdErr *types.ClusterCommandError
	assert.ErrorAs(t, err, &cmdErr)
}

func TestDeletePod(t *testing.T) {
	client := fake.NewSimpleClientset(
		&corev1.Pod{ObjectMeta: metav1.ObjectMeta{Name: "web-abc", Namespace: "demo"}},
	)
	accessor := NewAccessorWithClient(client)

	require.NoError(t, accessor.DeletePod(context.Background(), "demo", "web-abc"))

	_, err := client.CoreV1().Pods("demo").Get(context.Background(), "web-abc", metav1.GetOptions{})
	assert.Error(t, err)
}

func TestWorkloadFor(t *testing.T) {
	tests := []struct {
		name     string
		pod      corev1.Pod
		expected string
	}{
		{
			name: "replicaset owner",
			pod: corev1.Pod{ObjectMeta: metav1.ObjectMeta{
				Name:            "web-7d4b9c-x2k1p",
				OwnerReferences: []metav1.OwnerReference{{Kind: "ReplicaSet", Name: "web-7d4b9c"}},
			}},
			expected: "web",
		},
		{
			name: "hyphenated deployment name",
			pod: corev1.Pod{ObjectMeta: metav1.ObjectMeta{
				Name:            "memory-hog-5f6d8b-qq2m7",
				OwnerReferences: []metav1.OwnerReference{{Kind: "ReplicaSet", Name: "memory-hog-5f6d8b"}},
			}},
			expected: "memory-hog",
		},
		{
			name: "no owner falls back to name heuristic",
			pod: corev1.Pod{ObjectMeta: metav1.ObjectMeta{
				Name: "mysql-app-5f6d8b-qq2m7",
			}},
			expected: "mysql-app",
		},
		{
			name: "bare pod",
			pod: corev1.Pod{ObjectMeta: metav1.ObjectMeta{
				Name: "standalone",
			}},
			expected: "standalone",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, WorkloadFor(&tt.pod))
		})
	}
}

func TestRequestForLimit(t *testing.T) {
	assert.Equal(t, "409Mi", requestForLimit("512Mi"))
	assert.Equal(t, "102Mi", requestForLimit("128Mi"))
	assert.Equal(t, "1Gi", requestForLimit("1Gi")) // unit too coarse to shave, keeps limit
}
