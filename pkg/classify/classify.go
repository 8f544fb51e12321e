package classify

import (
	"context"
	"strings"
	"time"

	corev1 "k8s.io/api/core/v1"

	"github.com/opscart/k8s-ai-diagnostics/pkg/cluster"
	"github.com/opscart/k8s-ai-diagnostics/pkg/log"
	"github.com/opscart/k8s-ai-diagnostics/pkg/types"
)

// Classifier converts raw pod records into normalized issues. Only
// container 0 is inspected; the single-container assumption holds across
// the whole remediation pipeline.
type Classifier struct {
	accessor cluster.Accessor
	logTail  int64
}

// NewClassifier creates a classifier that fetches up to logTail recent log
// lines for the reasons whose detectors consume logs.
func NewClassifier(accessor cluster.Accessor, logTail int) *Classifier {
	return &Classifier{accessor: accessor, logTail: int64(logTail)}
}

// Classify builds an Issue from a live pod record.
func (c *Classifier) Classify(ctx context.Context, pod *corev1.Pod) types.Issue {
	issue := types.Issue{
		Namespace:      pod.Namespace,
		PodName:        pod.Name,
		Workload:       cluster.WorkloadFor(pod),
		ContainerIndex: 0,
		ObservedAt:     time.Now(),
	}

	containerName := ""
	if len(pod.Spec.Containers) > 0 {
		spec := pod.Spec.Containers[0]
		containerName = spec.Name
		issue.ContainerName = spec.Name
		issue.CurrentImage = spec.Image
		if limit, ok := spec.Resources.Limits[corev1.ResourceMemory]; ok {
			issue.CurrentMemoryLimit = limit.String()
		}
		for _, env := range spec.Env {
			issue.EnvKeysPresent = append(issue.EnvKeysPresent, env.Name)
		}
	}

	issue.Phase, issue.Reason, issue.Message = inferReason(pod)

	// Only the crash-loop and OOM detectors read logs.
	if issue.Reason == types.ReasonCrashLoopBackOff || issue.Reason == types.ReasonOOMKilled {
		lines, err := c.accessor.GetLogs(ctx, pod.Namespace, pod.Name, containerName, c.logTail)
		if err != nil {
			logger := log.WithComponent("classifier")
			logger.Warn().
				Err(err).Str("pod", pod.Name).Msg("could not fetch logs")
		} else {
			issue.LogExcerpt = lines
		}
	}

	return issue
}

// inferReason maps container and pod status onto the phase/reason pair.
// First match wins: OOMKilled, image-pull errors, crash back-off, probe
// failure, then Unknown.
func inferReason(pod *corev1.Pod) (types.Phase, types.Reason, string) {
	var status *corev1.ContainerStatus
	if len(pod.Status.ContainerStatuses) > 0 {
		status = &pod.Status.ContainerStatuses[0]
	}

	if status != nil {
		if term := status.State.Terminated; term != nil && term.Reason == "OOMKilled" {
			return types.PhaseTerminated, types.ReasonOOMKilled, term.Message
		}
		if term := status.LastTerminationState.Terminated; term != nil && term.Reason == "OOMKilled" {
			return types.PhaseTerminated, types.ReasonOOMKilled, term.Message
		}

		if wait := status.State.Waiting; wait != nil {
			reason := strings.ToLower(wait.Reason)
			switch {
			case strings.Contains(reason, "imagepull") || strings.Contains(reason, "errimage"):
				return types.PhaseWaiting, types.ReasonImagePullBackOff, wait.Message
			case strings.Contains(reason, "backoff") || strings.Contains(reason, "crash"):
				return types.PhaseWaiting, types.ReasonCrashLoopBackOff, wait.Message
			}
		}

		if pod.Status.Phase == corev1.PodRunning && status.RestartCount > 0 {
			return types.PhaseRunning, types.ReasonProbeFailure, "restarting while running"
		}
	}

	switch pod.Status.Phase {
	case corev1.PodPending:
		return types.PhasePending, types.ReasonUnknown, pod.Status.Message
	case corev1.PodRunning:
		return types.PhaseRunning, types.ReasonUnknown, pod.Status.Message
	default:
		return types.PhaseTerminated, types.ReasonUnknown, pod.Status.Message
	}
}
