package memory

import (
	"sort"
	"sync"

	"github.com/opscart/k8s-ai-diagnostics/pkg/types"
)

// InMemStore is a Store kept entirely in memory. Tests substitute it for
// the bolt-backed store.
type InMemStore struct {
	mu       sync.RWMutex
	patterns map[string]types.Pattern
}

// NewInMemStore creates an empty in-memory store.
func NewInMemStore() *InMemStore {
	return &InMemStore{patterns: make(map[string]types.Pattern)}
}

func (s *InMemStore) Lookup(fingerprint string) (types.Pattern, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.patterns[fingerprint]
	return p, ok, nil
}

func (s *InMemStore) Record(fingerprint string, attempt types.Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.patterns[fingerprint] = apply(s.patterns[fingerprint], fingerprint, attempt)
	return nil
}

func (s *InMemStore) List() ([]types.Pattern, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	patterns := make([]types.Pattern, 0, len(s.patterns))
	for _, p := range s.patterns {
		patterns = append(patterns, p)
	}
	sort.Slice(patterns, func(i, j int) bool {
		return patterns[i].Fingerprint < patterns[j].Fingerprint
	})
	return patterns, nil
}

func (s *InMemStore) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.patterns = make(map[string]types.Pattern)
	return nil
}

func (s *InMemStore) Close() error { return nil }
