package types

import (
	"fmt"
	"time"
)

// Phase describes the coarse pod lifecycle state an issue was observed in.
type Phase string

const (
	PhasePending    Phase = "pending"
	PhaseWaiting    Phase = "waiting"
	PhaseRunning    Phase = "running"
	PhaseTerminated Phase = "terminated"
)

// Reason classifies why a pod is considered unhealthy.
type Reason string

const (
	ReasonCrashLoopBackOff Reason = "crashloopbackoff"
	ReasonImagePullBackOff Reason = "imagepullbackoff"
	ReasonOOMKilled        Reason = "oomkilled"
	ReasonProbeFailure     Reason = "probefailure"
	ReasonUnknown          Reason = "unknown"
)

// Issue is one detected unhealthy workload instance. It is built fresh from
// live cluster state each iteration and never mutated afterwards.
type Issue struct {
	Namespace string
	PodName   string
	Workload  string // owning workload (Deployment) name
	Phase     Phase
	Reason    Reason
	Message   string

	// Snapshot of container 0, the only container inspected or mutated.
	ContainerIndex     int
	ContainerName      string
	CurrentImage       string
	CurrentMemoryLimit string
	EnvKeysPresent     []string

	LogExcerpt []string
	ObservedAt time.Time
}

// ActionKind is the fixed catalog of remediation actions.
type ActionKind string

const (
	ActionUpdateEnv        ActionKind = "update_env"
	ActionPatchMemoryLimit ActionKind = "patch_memory_limit"
	ActionPatchImage       ActionKind = "patch_image"
	ActionRestartPod       ActionKind = "restart_pod"
	ActionSkip             ActionKind = "skip"
)

// ValidAction reports whether kind is part of the action catalog. Used to
// reject unknown actions coming back from the external reasoner.
func ValidAction(kind ActionKind) bool {
	switch kind {
	case ActionUpdateEnv, ActionPatchMemoryLimit, ActionPatchImage, ActionRestartPod, ActionSkip:
		return true
	}
	return false
}

// ActionParams carries the parameters of a single remediation action. Only
// the fields relevant to the action kind are set. This is also the unit
// persisted as a pattern's SuccessfulParameters.
type ActionParams struct {
	Image       string            `json:"image,omitempty"`
	MemoryLimit string            `json:"memory_limit,omitempty"`
	Env         map[string]string `json:"env,omitempty"`
}

// Step is one ordered action within a plan.
type Step struct {
	Action    ActionKind   `json:"action"`
	Params    ActionParams `json:"params"`
	Rationale string       `json:"rationale"`
}

// PlanOrigin identifies the planning path that produced a plan.
type PlanOrigin string

const (
	OriginMemory   PlanOrigin = "memory"
	OriginDetector PlanOrigin = "detector"
	OriginReasoner PlanOrigin = "reasoner"
	OriginFallback PlanOrigin = "fallback"
)

// Plan is the ordered remediation proposed for one issue.
type Plan struct {
	Fingerprint string     `json:"fingerprint"`
	Steps       []Step     `json:"steps"`
	Origin      PlanOrigin `json:"origin"`
}

// IsSkip reports whether the plan's only action is an explicit Skip.
func (p Plan) IsSkip() bool {
	return len(p.Steps) == 1 && p.Steps[0].Action == ActionSkip
}

// StepOutcome records the result of executing one step.
type StepOutcome struct {
	Step      Step      `json:"step"`
	Success   bool      `json:"success"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Attempt is the immutable record of one plan execution.
type Attempt struct {
	ID          string        `json:"id"`
	Fingerprint string        `json:"fingerprint"`
	Issue       Issue         `json:"-"`
	Plan        Plan          `json:"plan"`
	Outcomes    []StepOutcome `json:"outcomes"`
	Timestamp   time.Time     `json:"timestamp"`
}

// Succeeded reports whether every executed step succeeded and the plan did
// some actual work. A bare Skip never counts as a success.
func (a Attempt) Succeeded() bool {
	if len(a.Outcomes) == 0 || a.Plan.IsSkip() {
		return false
	}
	for _, o := range a.Outcomes {
		if !o.Success {
			return false
		}
	}
	return true
}

// SuccessfulParams returns the action and parameters of the last successful
// non-Skip step, for pattern learning.
func (a Attempt) SuccessfulParams() (ActionKind, ActionParams, bool) {
	for i := len(a.Outcomes) - 1; i >= 0; i-- {
		o := a.Outcomes[i]
		if o.Success && o.Step.Action != ActionSkip {
			return o.Step.Action, o.Step.Params, true
		}
	}
	return "", ActionParams{}, false
}

// Pattern is the aggregated learning record for one fingerprint.
// SuccessfulParameters holds the last known-good fix and is only ever
// overwritten on success; failures increment TotalCount alone.
type Pattern struct {
	Fingerprint          string       `json:"fingerprint"`
	Action               ActionKind   `json:"action,omitempty"`
	SuccessfulParameters ActionParams `json:"successful_parameters"`
	SuccessCount         int          `json:"success_count"`
	TotalCount           int          `json:"total_count"`
	LastUpdated          time.Time    `json:"last_updated"`
}

// ClusterCommandError wraps a failed read or mutate against the
// orchestration API. It is reported per step or per observation and is
// never fatal to the monitoring loop.
type ClusterCommandError struct {
	Op    string
	Cause error
}

func (e *ClusterCommandError) Error() string {
	return fmt.Sprintf("cluster command %s failed: %v", e.Op, e.Cause)
}

func (e *ClusterCommandError) Unwrap() error {
	return e.Cause
}
