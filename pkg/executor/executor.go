package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/opscart/k8s-ai-diagnostics/pkg/cluster"
	"github.com/opscart/k8s-ai-diagnostics/pkg/log"
	"github.com/opscart/k8s-ai-diagnostics/pkg/types"
)

// Executor applies plans through the cluster accessor, step by step. A
// failed step aborts the remaining steps; the next iteration re-observes
// and re-plans from current state, and every mutation is idempotent, so a
// retried iteration after partial failure is safe.
type Executor struct {
	accessor cluster.Accessor
}

// NewExecutor creates an executor over the given accessor.
func NewExecutor(accessor cluster.Accessor) *Executor {
	return &Executor{accessor: accessor}
}

// Execute runs the plan's steps in order and returns the attempt record.
// Every step outcome is timestamped and recorded regardless of success.
func (e *Executor) Execute(ctx context.Context, issue types.Issue, plan types.Plan) types.Attempt {
	attempt := types.Attempt{
		ID:          uuid.New().String(),
		Fingerprint: plan.Fingerprint,
		Issue:       issue,
		Plan:        plan,
		Timestamp:   time.Now(),
	}
	logger := log.WithPod(issue.Namespace, issue.PodName)

	for i, step := range plan.Steps {
		err := e.apply(ctx, issue, step)
		outcome := types.StepOutcome{
			Step:      step,
			Success:   err == nil,
			Timestamp: time.Now(),
		}
		if err != nil {
			outcome.Detail = err.Error()
			logger.Error().Err(err).
				Str("action", string(step.Action)).
				Int("step", i+1).
				Msg("step failed, aborting plan")
			attempt.Outcomes = append(attempt.Outcomes, outcome)
			break
		}
		logger.Info().
			Str("action", string(step.Action)).
			Int("step", i+1).
			Msg("step applied")
		attempt.Outcomes = append(attempt.Outcomes, outcome)
	}
	return attempt
}

func (e *Executor) apply(ctx context.Context, issue types.Issue, step types.Step) error {
	switch step.Action {
	case types.ActionPatchImage:
		return e.accessor.PatchImage(ctx, issue.Namespace, issue.Workload, issue.ContainerName, step.Params.Image)
	case types.ActionPatchMemoryLimit:
		return e.accessor.PatchMemoryLimit(ctx, issue.Namespace, issue.Workload, issue.ContainerName, step.Params.MemoryLimit)
	case types.ActionUpdateEnv:
		return e.accessor.PatchEnv(ctx, issue.Namespace, issue.Workload, issue.ContainerName, step.Params.Env)
	case types.ActionRestartPod:
		return e.accessor.DeletePod(ctx, issue.Namespace, issue.PodName)
	case types.ActionSkip:
		// Explicit terminal step: no automated action.
		return nil
	default:
		return fmt.Errorf("unknown action %q", step.Action)
	}
}
