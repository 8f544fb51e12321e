package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Loop metrics
	IterationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "diagnostics_iterations_total",
			Help: "Total number of monitoring iterations",
		},
	)

	IssuesObserved = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "diagnostics_issues_observed_total",
			Help: "Total number of issues observed by reason",
		},
		[]string{"reason"},
	)

	// Remediation metrics
	AttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "diagnostics_attempts_total",
			Help: "Total number of remediation attempts by action and outcome",
		},
		[]string{"action", "outcome"},
	)

	PlansByOrigin = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "diagnostics_plans_total",
			Help: "Total number of plans by planning path",
		},
		[]string{"origin"},
	)

	RemediationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "diagnostics_remediation_duration_seconds",
			Help:    "Time taken to execute one remediation plan in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	PatternsLearned = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "diagnostics_patterns_learned",
			Help: "Number of fingerprints with a known-good remediation",
		},
	)
)

func init() {
	prometheus.MustRegister(IterationsTotal)
	prometheus.MustRegister(IssuesObserved)
	prometheus.MustRegister(AttemptsTotal)
	prometheus.MustRegister(PlansByOrigin)
	prometheus.MustRegister(RemediationDuration)
	prometheus.MustRegister(PatternsLearned)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Serve exposes /metrics on addr in the background. Errors are returned on
// the channel; the server runs until the process exits.
func Serve(addr string) <-chan error {
	errCh := make(chan error, 1)
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	go func() {
		errCh <- http.ListenAndServe(addr, mux)
	}()
	return errCh
}
