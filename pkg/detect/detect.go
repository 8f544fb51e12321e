package detect

import (
	"fmt"

	"github.com/opscart/k8s-ai-diagnostics/pkg/types"
)

// Detector proposes a remediation plan for an issue without external
// reasoning. Detectors are stateless; the first one to return true wins.
type Detector interface {
	Name() string
	TryDetect(issue types.Issue) (types.Plan, bool)
}

// Detectors returns the rule detectors in priority order.
func Detectors() []Detector {
	return []Detector{
		&ImageTypoDetector{},
		&MissingEnvDetector{},
		&OOMDetector{},
	}
}

// Fingerprint derives the stable key joining live issues to stored
// learning. The key includes the detected signal, not just the reason, so
// unrelated workloads that share a failure reason never exchange learned
// parameters.
func Fingerprint(issue types.Issue) string {
	signal := issue.Workload
	if issue.Reason == types.ReasonImagePullBackOff {
		if _, token, ok := CorrectImage(issue.CurrentImage); ok {
			signal = token
		} else if issue.CurrentImage != "" {
			signal = normalizeImage(issue.CurrentImage)
		}
	}
	return fmt.Sprintf("%s/%s", issue.Reason, signal)
}
