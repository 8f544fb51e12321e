package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/opscart/k8s-ai-diagnostics/pkg/classify"
	"github.com/opscart/k8s-ai-diagnostics/pkg/cluster"
	"github.com/opscart/k8s-ai-diagnostics/pkg/events"
	"github.com/opscart/k8s-ai-diagnostics/pkg/executor"
	"github.com/opscart/k8s-ai-diagnostics/pkg/learner"
	"github.com/opscart/k8s-ai-diagnostics/pkg/log"
	"github.com/opscart/k8s-ai-diagnostics/pkg/memory"
	"github.com/opscart/k8s-ai-diagnostics/pkg/metrics"
	"github.com/opscart/k8s-ai-diagnostics/pkg/planner"
	"github.com/opscart/k8s-ai-diagnostics/pkg/types"
)

// Options configures the monitoring loop.
type Options struct {
	Namespace     string
	Interval      time.Duration
	AutoRemediate bool // false: plans are computed and logged, never executed or learned
	Fresh         bool // reset pattern memory before the first iteration
}

// SessionStats accumulates across iterations and is reported on shutdown.
type SessionStats struct {
	Iterations      int
	IssuesObserved  int
	Attempts        int
	Successes       int
	PatternsLearned int // distinct fingerprints learned this session
}

// SuccessRate returns the fraction of successful attempts.
func (s SessionStats) SuccessRate() float64 {
	if s.Attempts == 0 {
		return 0
	}
	return float64(s.Successes) / float64(s.Attempts)
}

// Monitor drives the observe/plan/act/learn loop over one namespace.
// Issues are processed one at a time in pod-name order; there is exactly
// one active writer to pattern memory.
type Monitor struct {
	opts       Options
	accessor   cluster.Accessor
	classifier *classify.Classifier
	planner    *planner.Planner
	executor   *executor.Executor
	learner    *learner.Learner
	store      memory.Store
	broker     *events.Broker

	stats   SessionStats
	learned map[string]bool
}

// New wires a monitor from its collaborators. broker may be nil.
func New(opts Options, accessor cluster.Accessor, classifier *classify.Classifier,
	pl *planner.Planner, ex *executor.Executor, le *learner.Learner,
	store memory.Store, broker *events.Broker) *Monitor {
	return &Monitor{
		opts:       opts,
		accessor:   accessor,
		classifier: classifier,
		planner:    pl,
		executor:   ex,
		learner:    le,
		store:      store,
		broker:     broker,
		learned:    make(map[string]bool),
	}
}

// Run validates startup conditions, then iterates until ctx is cancelled.
// The inter-iteration sleep is interruptible, so shutdown latency is
// bounded by a step in flight, not by the interval.
func (m *Monitor) Run(ctx context.Context) error {
	logger := log.WithComponent("monitor")

	exists, err := m.accessor.NamespaceExists(ctx, m.opts.Namespace)
	if err != nil {
		return fmt.Errorf("failed to check namespace: %w", err)
	}
	if !exists {
		return fmt.Errorf("namespace %q does not exist", m.opts.Namespace)
	}

	if m.opts.Fresh {
		if err := m.store.Reset(); err != nil {
			return fmt.Errorf("failed to reset pattern memory: %w", err)
		}
		logger.Info().Msg("pattern memory reset, starting fresh")
	} else if stats, err := memory.StatsOf(m.store); err == nil && stats.Patterns > 0 {
		logger.Info().
			Int("patterns", stats.Patterns).
			Int("attempts", stats.TotalAttempts).
			Int("learned", stats.PatternsLearned).
			Msg("existing pattern memory loaded")
	}

	logger.Info().
		Str("namespace", m.opts.Namespace).
		Dur("interval", m.opts.Interval).
		Bool("auto_remediate", m.opts.AutoRemediate).
		Msg("starting autonomous monitoring")

	for {
		m.iterate(ctx)

		timer := time.NewTimer(m.opts.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			m.logSummary(logger)
			return nil
		case <-timer.C:
		}
	}
}

// Stats returns the session totals accumulated so far.
func (m *Monitor) Stats() SessionStats {
	return m.stats
}

func (m *Monitor) iterate(ctx context.Context) {
	logger := log.WithComponent("monitor")
	m.stats.Iterations++
	metrics.IterationsTotal.Inc()

	pods, err := m.accessor.ListUnhealthyPods(ctx, m.opts.Namespace)
	if err != nil {
		logger.Error().Err(err).Msg("observation failed")
		return
	}
	logger.Info().Int("iteration", m.stats.Iterations).Int("issues", len(pods)).Msg("observed")

	for i := range pods {
		if ctx.Err() != nil {
			return
		}
		issue := m.classifier.Classify(ctx, &pods[i])
		m.handleIssue(ctx, issue)
	}

	if stats, err := memory.StatsOf(m.store); err == nil {
		metrics.PatternsLearned.Set(float64(stats.PatternsLearned))
	}
	m.publish(events.EventIterationDone, "iteration complete", map[string]string{
		"iteration": fmt.Sprintf("%d", m.stats.Iterations),
	})
}

func (m *Monitor) handleIssue(ctx context.Context, issue types.Issue) {
	logger := log.WithPod(issue.Namespace, issue.PodName)
	m.stats.IssuesObserved++
	metrics.IssuesObserved.WithLabelValues(string(issue.Reason)).Inc()
	m.publish(events.EventIssueDetected, issue.Message, map[string]string{
		"pod":    issue.PodName,
		"reason": string(issue.Reason),
	})

	if issue.Reason == types.ReasonUnknown {
		logger.Info().Str("phase", string(issue.Phase)).Msg("unclassified issue, no remediation")
		return
	}

	plan := m.planner.CreatePlan(issue)
	metrics.PlansByOrigin.WithLabelValues(string(plan.Origin)).Inc()
	m.publish(events.EventPlanCreated, "remediation plan created", map[string]string{
		"fingerprint": plan.Fingerprint,
		"origin":      string(plan.Origin),
		"steps":       fmt.Sprintf("%d", len(plan.Steps)),
	})
	for i, step := range plan.Steps {
		logger.Info().
			Int("step", i+1).
			Str("action", string(step.Action)).
			Str("rationale", step.Rationale).
			Msg("planned")
	}

	if !m.opts.AutoRemediate {
		logger.Info().Msg("auto-remediation disabled, plan not executed")
		return
	}

	start := time.Now()
	attempt := m.executor.Execute(ctx, issue, plan)
	metrics.RemediationDuration.Observe(time.Since(start).Seconds())
	for _, o := range attempt.Outcomes {
		m.publish(events.EventStepExecuted, "remediation step executed", map[string]string{
			"action":  string(o.Step.Action),
			"success": fmt.Sprintf("%t", o.Success),
		})
	}
	m.publish(events.EventAttemptRecorded, "remediation attempted", map[string]string{
		"fingerprint": attempt.Fingerprint,
		"success":     fmt.Sprintf("%t", attempt.Succeeded()),
	})

	if !plan.IsSkip() {
		m.stats.Attempts++
		outcome := "failure"
		if attempt.Succeeded() {
			m.stats.Successes++
			outcome = "success"
			if !m.learned[attempt.Fingerprint] {
				m.learned[attempt.Fingerprint] = true
				m.stats.PatternsLearned++
			}
		}
		for _, o := range attempt.Outcomes {
			metrics.AttemptsTotal.WithLabelValues(string(o.Step.Action), outcome).Inc()
		}
	}

	if err := m.learner.Observe(attempt); err != nil {
		logger.Error().Err(err).Msg("failed to persist attempt")
	}
}

func (m *Monitor) publish(eventType events.EventType, msg string, meta map[string]string) {
	if m.broker != nil {
		m.broker.Publish(eventType, msg, meta)
	}
}

func (m *Monitor) logSummary(logger zerolog.Logger) {
	logger.Info().
		Int("iterations", m.stats.Iterations).
		Int("attempts", m.stats.Attempts).
		Int("successes", m.stats.Successes).
		Float64("success_rate", m.stats.SuccessRate()).
		Int("patterns_learned", m.stats.PatternsLearned).
		Msg("monitoring stopped")
}
