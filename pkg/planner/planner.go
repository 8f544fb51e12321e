package planner

import (
	"fmt"

	"github.com/opscart/k8s-ai-diagnostics/pkg/detect"
	"github.com/opscart/k8s-ai-diagnostics/pkg/log"
	"github.com/opscart/k8s-ai-diagnostics/pkg/memory"
	"github.com/opscart/k8s-ai-diagnostics/pkg/types"
)

// Planner produces one plan per issue. Decision order: pattern memory
// (instant fix), rule detectors, external reasoner, Skip. Memory and
// detector plans are always preferred over reasoning: they are
// deterministic, auditable, and free of external latency and cost.
type Planner struct {
	store     memory.Store
	detectors []detect.Detector
	reasoner  detect.Detector // lowest-priority detector; may be nil
}

// NewPlanner wires a planner. reasoner may be nil when external reasoning
// is disabled.
func NewPlanner(store memory.Store, detectors []detect.Detector, reasoner detect.Detector) *Planner {
	return &Planner{store: store, detectors: detectors, reasoner: reasoner}
}

// CreatePlan returns a non-empty plan for the issue. Unresolvable issues
// get an explicit Skip step flagging them for manual attention.
func (p *Planner) CreatePlan(issue types.Issue) types.Plan {
	logger := log.WithComponent("planner")
	fingerprint := detect.Fingerprint(issue)

	if plan, ok := p.planFromMemory(fingerprint, issue); ok {
		logger.Info().Str("fingerprint", fingerprint).Msg("instant fix from pattern memory")
		plan.Fingerprint = fingerprint
		plan.Origin = types.OriginMemory
		return plan
	}

	for _, d := range p.detectors {
		if plan, ok := d.TryDetect(issue); ok {
			logger.Info().Str("fingerprint", fingerprint).Str("detector", d.Name()).Msg("detector matched")
			plan.Fingerprint = fingerprint
			plan.Origin = types.OriginDetector
			return plan
		}
	}

	if p.reasoner != nil {
		if plan, ok := p.reasoner.TryDetect(issue); ok {
			logger.Info().Str("fingerprint", fingerprint).Msg("plan from external reasoning")
			plan.Fingerprint = fingerprint
			plan.Origin = types.OriginReasoner
			return plan
		}
	}

	logger.Warn().Str("fingerprint", fingerprint).Str("pod", issue.PodName).
		Msg("no remediation found, flagging for manual attention")
	return types.Plan{
		Fingerprint: fingerprint,
		Origin:      types.OriginFallback,
		Steps: []types.Step{{
			Action:    types.ActionSkip,
			Rationale: "manual intervention required",
		}},
	}
}

// planFromMemory synthesizes a plan from a fingerprint's learned
// parameters. A learned memory limit at or below the issue's current limit
// has evidently failed again, so the ladder resumes instead of the memory
// path repeating it.
func (p *Planner) planFromMemory(fingerprint string, issue types.Issue) (types.Plan, bool) {
	pattern, found, err := p.store.Lookup(fingerprint)
	if err != nil {
		logger := log.WithComponent("planner")
		logger.Warn().Err(err).Msg("pattern lookup failed")
		return types.Plan{}, false
	}
	if !found || pattern.SuccessCount == 0 {
		return types.Plan{}, false
	}

	if pattern.Action == types.ActionPatchMemoryLimit &&
		detect.LimitAtOrBelow(pattern.SuccessfulParameters.MemoryLimit, issue.CurrentMemoryLimit) {
		return types.Plan{}, false
	}

	return types.Plan{
		Steps: []types.Step{{
			Action: pattern.Action,
			Params: pattern.SuccessfulParameters,
			Rationale: fmt.Sprintf("learned fix (%d/%d successful attempts)",
				pattern.SuccessCount, pattern.TotalCount),
		}},
	}, true
}
