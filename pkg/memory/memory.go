package memory

// Pattern memory converts repeated trial-and-error into single-shot fixes.
// It owns the persisted pattern set for the process lifetime and has a
// single writer: the learner, through Record.

import (
	"github.com/opscart/k8s-ai-diagnostics/pkg/types"
)

// Store is the pattern memory contract. Record applies one attempt's
// outcome atomically per fingerprint; Reset clears all learned patterns.
type Store interface {
	Lookup(fingerprint string) (types.Pattern, bool, error)
	Record(fingerprint string, attempt types.Attempt) error
	List() ([]types.Pattern, error)
	Reset() error
	Close() error
}

// Stats summarizes the stored pattern set.
type Stats struct {
	Patterns        int
	PatternsLearned int
	TotalAttempts   int
	TotalSuccesses  int
}

// StatsOf aggregates statistics over a store's patterns.
func StatsOf(s Store) (Stats, error) {
	patterns, err := s.List()
	if err != nil {
		return Stats{}, err
	}
	stats := Stats{Patterns: len(patterns)}
	for _, p := range patterns {
		stats.TotalAttempts += p.TotalCount
		stats.TotalSuccesses += p.SuccessCount
		if p.SuccessCount > 0 {
			stats.PatternsLearned++
		}
	}
	return stats, nil
}

// apply folds one attempt into a pattern. Learning is monotonic: a later
// failure never erases a previously confirmed fix.
func apply(p types.Pattern, fingerprint string, attempt types.Attempt) types.Pattern {
	p.Fingerprint = fingerprint
	p.TotalCount++
	p.LastUpdated = attempt.Timestamp
	if attempt.Succeeded() {
		if action, params, ok := attempt.SuccessfulParams(); ok {
			p.SuccessCount++
			p.Action = action
			p.SuccessfulParameters = params
		}
	}
	return p
}
