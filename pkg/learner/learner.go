package learner

import (
	"fmt"

	"github.com/opscart/k8s-ai-diagnostics/pkg/events"
	"github.com/opscart/k8s-ai-diagnostics/pkg/log"
	"github.com/opscart/k8s-ai-diagnostics/pkg/memory"
	"github.com/opscart/k8s-ai-diagnostics/pkg/types"
)

// Learner persists attempt outcomes into pattern memory. Learning is
// monotonic: successes overwrite the known-good parameters, failures only
// increment the total count.
type Learner struct {
	store  memory.Store
	broker *events.Broker // may be nil
}

// NewLearner creates a learner writing to the given store. broker is
// optional; when set, a pattern.learned event fires on a fingerprint's
// first success.
func NewLearner(store memory.Store, broker *events.Broker) *Learner {
	return &Learner{store: store, broker: broker}
}

// Observe records one executed plan's outcome. Skip plans carry no
// remediation knowledge and are not recorded; every other attempt is,
// success or failure.
func (l *Learner) Observe(attempt types.Attempt) error {
	if attempt.Plan.IsSkip() {
		return nil
	}

	logger := log.WithFingerprint(attempt.Fingerprint)

	previous, hadPattern, err := l.store.Lookup(attempt.Fingerprint)
	if err != nil {
		return fmt.Errorf("pattern lookup failed: %w", err)
	}

	if err := l.store.Record(attempt.Fingerprint, attempt); err != nil {
		return fmt.Errorf("failed to record attempt: %w", err)
	}

	success := attempt.Succeeded()
	logger.Info().Bool("success", success).Msg("attempt recorded")

	firstSuccess := success && (!hadPattern || previous.SuccessCount == 0)
	if firstSuccess && l.broker != nil {
		l.broker.Publish(events.EventPatternLearned, "new remediation pattern learned", map[string]string{
			"fingerprint": attempt.Fingerprint,
			"action":      string(actionOf(attempt)),
		})
	}
	return nil
}

func actionOf(attempt types.Attempt) types.ActionKind {
	if action, _, ok := attempt.SuccessfulParams(); ok {
		return action
	}
	if len(attempt.Plan.Steps) > 0 {
		return attempt.Plan.Steps[0].Action
	}
	return ""
}
