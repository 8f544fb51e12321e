package detect

import (
	"fmt"

	"k8s.io/apimachinery/pkg/api/resource"

	"github.com/opscart/k8s-ai-diagnostics/pkg/types"
)

// memoryLadder is the fixed escalation sequence for OOM remediation. The
// last rung is the ceiling; above it the detector gives up and the issue
// falls through to the reasoner.
var memoryLadder = []string{"128Mi", "256Mi", "512Mi", "1Gi", "2Gi"}

// OOMDetector proposes the next rung of the memory ladder for an OOMKilled
// container. The planner bypasses it when memory already holds a working
// limit above the current one.
type OOMDetector struct{}

func (d *OOMDetector) Name() string { return "oom-escalation" }

func (d *OOMDetector) TryDetect(issue types.Issue) (types.Plan, bool) {
	if issue.Reason != types.ReasonOOMKilled {
		return types.Plan{}, false
	}
	next, ok := NextLimit(issue.CurrentMemoryLimit)
	if !ok {
		return types.Plan{}, false
	}
	return types.Plan{
		Steps: []types.Step{{
			Action: types.ActionPatchMemoryLimit,
			Params: types.ActionParams{MemoryLimit: next},
			Rationale: fmt.Sprintf("container OOMKilled at %s, escalating memory limit to %s",
				issue.CurrentMemoryLimit, next),
		}},
	}, true
}

// NextLimit returns the first ladder rung strictly above the current limit.
// It is a pure function over the escalation table: proposals ascend, never
// repeat, and stop at the ceiling. Unparseable or absent limits yield no
// proposal.
func NextLimit(current string) (string, bool) {
	if current == "" {
		return "", false
	}
	cur, err := resource.ParseQuantity(current)
	if err != nil {
		return "", false
	}
	for _, rung := range memoryLadder {
		q := resource.MustParse(rung)
		if q.Cmp(cur) > 0 {
			return rung, true
		}
	}
	return "", false
}

// LimitAtOrBelow reports whether limit a is at or below limit b. The
// planner uses it to recognize a learned limit that has already failed
// again.
func LimitAtOrBelow(a, b string) bool {
	qa, errA := resource.ParseQuantity(a)
	qb, errB := resource.ParseQuantity(b)
	if errA != nil || errB != nil {
		return false
	}
	return qa.Cmp(qb) <= 0
}
