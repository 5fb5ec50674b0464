package alarm

import "sync"

// StateStore holds the per-rule fulfilled flag, the only input to
// edge-trigger detection. It is process-wide shared state, injected
// into the processor and the coordinator rather than kept as a package
// global so tests can construct isolated instances.
type StateStore struct {
	mu     sync.RWMutex
	states map[uint]bool
}

// NewStateStore creates an empty StateStore. All rules start
// unfulfilled.
func NewStateStore() *StateStore {
	return &StateStore{states: make(map[uint]bool)}
}

// Get returns the current fulfilled flag for a rule. Unknown rules are
// unfulfilled.
func (s *StateStore) Get(ruleID uint) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.states[ruleID]
}

// Set records the fulfilled flag for a rule.
func (s *StateStore) Set(ruleID uint, fulfilled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fulfilled {
		s.states[ruleID] = true
	} else {
		delete(s.states, ruleID)
	}
}

// Snapshot returns a copy of all fulfilled rules. Used by the processor
// to restore state when a batch rolls back.
func (s *StateStore) Snapshot() map[uint]bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[uint]bool, len(s.states))
	for id, fulfilled := range s.states {
		out[id] = fulfilled
	}
	return out
}

// Restore replaces the store contents with a previous snapshot.
func (s *StateStore) Restore(snapshot map[uint]bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = make(map[uint]bool, len(snapshot))
	for id, fulfilled := range snapshot {
		if fulfilled {
			s.states[id] = true
		}
	}
}

// ResetAll marks every rule unfulfilled. Driven by the acknowledgment
// coordinator so the post-reset telemetry re-baselines cleanly.
func (s *StateStore) ResetAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = make(map[uint]bool)
}
