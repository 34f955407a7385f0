package policy

import (
	"sync"

	"github.com/eliteGoblin/focusd/kioskd/internal/domain"
)

// Sanctions layers temporarily permitted identifiers over a base policy.
// An identifier is permitted only while at least one sanction for it is held.
type Sanctions struct {
	domain.AllowPolicy

	mu   sync.Mutex
	held map[domain.AppID]int
}

// NewSanctions wraps base.
func NewSanctions(base domain.AllowPolicy) *Sanctions {
	return &Sanctions{
		AllowPolicy: base,
		held:        make(map[domain.AppID]int),
	}
}

// Sanction permits id until release is called. release is idempotent.
// An empty id sanctions nothing.
func (s *Sanctions) Sanction(id domain.AppID) (release func()) {
	if id == "" {
		return func() {}
	}

	s.mu.Lock()
	s.held[id]++
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if s.held[id]--; s.held[id] <= 0 {
				delete(s.held, id)
			}
		})
	}
}

// IsPermitted applies the base policy, then the held sanctions.
func (s *Sanctions) IsPermitted(id domain.AppID) bool {
	return s.AllowPolicy.IsPermitted(id) || s.sanctioned(id)
}

// IsPermittedIn applies the base policy for state, then the held sanctions.
func (s *Sanctions) IsPermittedIn(id domain.AppID, state domain.LockState) bool {
	return s.AllowPolicy.IsPermittedIn(id, state) || s.sanctioned(id)
}

func (s *Sanctions) sanctioned(id domain.AppID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for entry := range s.held {
		if Matches(id, entry) {
			return true
		}
	}
	return false
}

// Ensure Sanctions implements domain.AllowPolicy.
var _ domain.AllowPolicy = (*Sanctions)(nil)
