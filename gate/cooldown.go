package gate

import "time"

type cooldownKey struct {
	ruleID string
	scope  Scope
	key    string
}

// CooldownStore answers "has key K been admitted within the last D?" and
// records new admissions. Entries persist until an explicit reset; the key
// space is bounded by distinct rules, devices and users, so retention is a
// design choice rather than a leak.
//
// The store performs no locking of its own: it is owned by exactly one Gate
// which serializes access (see Gate).
type CooldownStore struct {
	now     func() time.Time
	entries map[cooldownKey]time.Time
}

// NewCooldownStore returns an empty store using the wall clock.
func NewCooldownStore() *CooldownStore {
	return &CooldownStore{now: time.Now, entries: make(map[cooldownKey]time.Time)}
}

// IsOnCooldown reports whether (ruleID, scope, key) was admitted less than d
// ago. A duration of zero or less means the component is disabled and never
// blocks.
func (s *CooldownStore) IsOnCooldown(ruleID string, scope Scope, key string, d time.Duration) bool {
	if d <= 0 {
		return false
	}
	last, ok := s.entries[cooldownKey{ruleID, scope, key}]
	if !ok {
		return false
	}
	return s.now().Sub(last) < d
}

// RecordAdmission stamps (ruleID, scope, key) with the current time. Callers
// must only record actual admissions, never mere matches, so that blocked
// matches cannot poison future windows.
func (s *CooldownStore) RecordAdmission(ruleID string, scope Scope, key string) {
	s.entries[cooldownKey{ruleID, scope, key}] = s.now()
}

// Remaining returns how long the key stays on cooldown, or zero once
// expired. Diagnostics only; never consulted for admission decisions.
func (s *CooldownStore) Remaining(ruleID string, scope Scope, key string, d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	last, ok := s.entries[cooldownKey{ruleID, scope, key}]
	if !ok {
		return 0
	}
	rem := d - s.now().Sub(last)
	if rem < 0 {
		return 0
	}
	return rem
}

// Reset clears every entry.
func (s *CooldownStore) Reset() {
	s.entries = make(map[cooldownKey]time.Time)
}

// ResetRule clears all entries belonging to one rule, e.g. after the rule
// was replaced or deleted.
func (s *CooldownStore) ResetRule(ruleID string) {
	for k := range s.entries {
		if k.ruleID == ruleID {
			delete(s.entries, k)
		}
	}
}
