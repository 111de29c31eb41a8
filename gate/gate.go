package gate

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ScopeExtractor derives the per-device and per-user cooldown keys from an
// event payload. An empty key means the payload carries no identity for that
// scope; the corresponding cooldown component is then skipped.
type ScopeExtractor interface {
	Device(payload map[string]any) string
	User(payload map[string]any) string
}

// FieldScopes extracts scope keys from fixed payload fields. The zero value
// uses the feed's conventional field names.
type FieldScopes struct {
	DeviceField string
	UserField   string
}

func (f FieldScopes) Device(payload map[string]any) string {
	return f.lookup(payload, f.DeviceField, "deviceId")
}

func (f FieldScopes) User(payload map[string]any) string {
	return f.lookup(payload, f.UserField, "uniqueId")
}

func (f FieldScopes) lookup(payload map[string]any, field, fallback string) string {
	if field == "" {
		field = fallback
	}
	if v, ok := payload[field]; ok && v != nil {
		return normalize(v)
	}
	return ""
}

// AdmittedAction pairs a rule that passed all checks with the payload that
// triggered it. Executing the rule's Action is the caller's job.
type AdmittedAction struct {
	Rule    Rule
	Payload map[string]any
}

// Stats is a snapshot of gate counters for status reporting.
type Stats struct {
	Rules           int   `json:"rules"`
	EventsSeen      int64 `json:"events_seen"`
	Admitted        int64 `json:"admitted"`
	BlockedCooldown int64 `json:"blocked_cooldown"`
	BlockedRate     int64 `json:"blocked_rate_limit"`
}

// Gate is the single entry point a plugin calls per incoming event. It owns
// its rule set, cooldown store and rate limiter exclusively; independent
// plugins construct independent gates so unrelated cooldown keys can never
// collide.
//
// All methods are safe for concurrent use: each check-and-record sequence
// runs under one mutex, preserving the at-most-N-per-window and
// at-most-one-per-cooldown invariants under concurrent callers.
type Gate struct {
	mu        sync.Mutex
	now       func() time.Time
	rules     []*Rule
	byID      map[string]*Rule
	cooldowns *CooldownStore
	limiter   *SlidingWindow
	stats     Stats
}

// Option configures a Gate at construction time.
type Option func(*Gate)

// WithClock substitutes the time source. Tests use this to step through
// cooldown windows deterministically.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) {
		g.now = now
		g.cooldowns.now = now
		g.limiter.now = now
	}
}

// New constructs an empty gate.
func New(opts ...Option) *Gate {
	g := &Gate{
		now:       time.Now,
		byID:      make(map[string]*Rule),
		cooldowns: NewCooldownStore(),
		limiter:   NewSlidingWindow(),
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// AddMapping validates and registers a rule, assigning an ID when the rule
// has none. Registration order is evaluation order. Adding a rule whose ID
// already exists is an error; use ReplaceMapping.
func (g *Gate) AddMapping(r Rule) (string, error) {
	if err := r.Validate(); err != nil {
		return "", err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if r.ID == "" {
		r.ID = uuid.New().String()
	} else if _, exists := g.byID[r.ID]; exists {
		return "", fmt.Errorf("rule %q: already registered", r.ID)
	}
	rc := r
	g.rules = append(g.rules, &rc)
	g.byID[rc.ID] = &rc
	return rc.ID, nil
}

// ReplaceMapping swaps a registered rule wholesale, keeping its position in
// evaluation order and clearing its cooldown history.
func (g *Gate) ReplaceMapping(r Rule) error {
	if r.ID == "" {
		return fmt.Errorf("rule id required")
	}
	if err := r.Validate(); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	old, ok := g.byID[r.ID]
	if !ok {
		return fmt.Errorf("rule %q: not registered", r.ID)
	}
	*old = r
	g.cooldowns.ResetRule(r.ID)
	return nil
}

// RemoveMapping deletes a rule and its cooldown entries. It reports whether
// the rule existed.
func (g *Gate) RemoveMapping(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.byID[id]; !ok {
		return false
	}
	delete(g.byID, id)
	for i, r := range g.rules {
		if r.ID == id {
			g.rules = append(g.rules[:i], g.rules[i+1:]...)
			break
		}
	}
	g.cooldowns.ResetRule(id)
	return true
}

// Mapping returns a copy of one registered rule.
func (g *Gate) Mapping(id string) (Rule, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.byID[id]
	if !ok {
		return Rule{}, false
	}
	return *r, true
}

// Mappings returns copies of all rules in registration order.
func (g *Gate) Mappings() []Rule {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Rule, 0, len(g.rules))
	for _, r := range g.rules {
		out = append(out, *r)
	}
	return out
}

// SetChannelLimit reconfigures the rate limit for a channel; max <= 0
// disables it. Takes effect on the next admission decision.
func (g *Gate) SetChannelLimit(channel string, maxPerWindow int, window time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.limiter.Configure(channel, maxPerWindow, window)
}

// EvaluateEvent returns copies of the enabled rules whose event type and
// conditions structurally match, in registration order. Cooldowns and rate
// limits are not consulted and no state changes.
func (g *Gate) EvaluateEvent(eventType string, payload map[string]any) []Rule {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []Rule
	for _, r := range g.rules {
		if r.matches(eventType, payload) {
			out = append(out, *r)
		}
	}
	return out
}

// Admit evaluates all rules against the event and returns those whose
// cooldowns and rate limits permit firing, recording each admission. An
// unknown event type is not an error; it yields an empty list.
func (g *Gate) Admit(eventType string, payload map[string]any, scopes ScopeExtractor) []AdmittedAction {
	admitted, _ := g.AdmitWithOverflow(eventType, payload, scopes)
	return admitted
}

// AdmitWithOverflow behaves like Admit but additionally returns matches that
// cleared every cooldown and were blocked only by their rate-limit channel.
// Queueing those for a later drain tick is caller policy; the gate records
// nothing for them.
func (g *Gate) AdmitWithOverflow(eventType string, payload map[string]any, scopes ScopeExtractor) (admitted, rateLimited []AdmittedAction) {
	if scopes == nil {
		scopes = FieldScopes{}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.stats.EventsSeen++

	deviceKey := scopes.Device(payload)
	userKey := scopes.User(payload)

	for _, r := range g.rules {
		if !r.matches(eventType, payload) {
			continue
		}
		components := g.scopeComponents(r, deviceKey, userKey)
		if g.anyOnCooldown(r, components) {
			g.stats.BlockedCooldown++
			continue
		}
		if r.Channel != "" && !g.limiter.ShouldAllow(r.Channel) {
			g.stats.BlockedRate++
			rateLimited = append(rateLimited, AdmittedAction{Rule: *r, Payload: payload})
			continue
		}
		for _, c := range components {
			g.cooldowns.RecordAdmission(r.ID, c.scope, c.key)
		}
		if r.Channel != "" {
			g.limiter.RecordAllowed(r.Channel)
		}
		g.stats.Admitted++
		admitted = append(admitted, AdmittedAction{Rule: *r, Payload: payload})
	}
	return admitted, rateLimited
}

type scopeComponent struct {
	scope Scope
	key   string
}

// scopeComponents lists the configured cooldown components applicable to
// this event. Components whose scope key is unavailable in the payload are
// skipped rather than collapsed onto a shared empty key.
func (g *Gate) scopeComponents(r *Rule, deviceKey, userKey string) []scopeComponent {
	var out []scopeComponent
	if r.Cooldown.Global > 0 {
		out = append(out, scopeComponent{ScopeGlobal, ""})
	}
	if r.Cooldown.PerDevice > 0 && deviceKey != "" {
		out = append(out, scopeComponent{ScopeDevice, deviceKey})
	}
	if r.Cooldown.PerUser > 0 && userKey != "" {
		out = append(out, scopeComponent{ScopeUser, userKey})
	}
	return out
}

func (g *Gate) anyOnCooldown(r *Rule, components []scopeComponent) bool {
	for _, c := range components {
		if g.cooldowns.IsOnCooldown(r.ID, c.scope, c.key, r.Cooldown.byScope(c.scope)) {
			return true
		}
	}
	return false
}

// AdmitQueued consults the channel's rate limiter for one previously parked
// unit of work and records the admission when capacity is available. Drain
// workers call this once per entry they pop from a Queue.
func (g *Gate) AdmitQueued(channel string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if channel == "" {
		return true
	}
	if !g.limiter.ShouldAllow(channel) {
		return false
	}
	g.limiter.RecordAllowed(channel)
	g.stats.Admitted++
	return true
}

// Remaining reports how long a key stays on cooldown for one rule and scope.
// Diagnostics only; repeated calls never mutate state.
func (g *Gate) Remaining(ruleID string, scope Scope, key string) time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.byID[ruleID]
	if !ok {
		return 0
	}
	return g.cooldowns.Remaining(ruleID, scope, key, r.Cooldown.byScope(scope))
}

// ChannelUsage reports current admissions inside a channel's window and the
// configured cap.
func (g *Gate) ChannelUsage(channel string) (used, max int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.limiter.Usage(channel)
}

// ResetRule clears cooldown history for one rule.
func (g *Gate) ResetRule(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cooldowns.ResetRule(id)
}

// Reset clears all cooldown and rate-limit state so a later re-enable starts
// clean. Rules and channel configuration survive.
func (g *Gate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cooldowns.Reset()
	g.limiter.Reset()
}

// Stats returns a snapshot of the gate's counters.
func (g *Gate) Stats() Stats {
	g.mu.Lock()
	defer g.mu.Unlock()
	s := g.stats
	s.Rules = len(g.rules)
	return s
}
