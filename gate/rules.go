// Package gate implements the event admission gate shared by all plugins:
// user-defined rules (mappings) matched against incoming live events, gated
// by per-scope cooldowns and per-channel sliding-window rate limits.
package gate

import (
	"fmt"
	"strconv"
	"time"
)

// Scope is the key granularity a cooldown applies to.
type Scope string

const (
	ScopeGlobal Scope = "global"
	ScopeDevice Scope = "device"
	ScopeUser   Scope = "user"
)

// Cooldown holds the per-scope cooldown durations of a rule.
// A zero duration disables that component.
type Cooldown struct {
	Global    time.Duration
	PerDevice time.Duration
	PerUser   time.Duration
}

// byScope returns the configured duration for a scope.
func (c Cooldown) byScope(s Scope) time.Duration {
	switch s {
	case ScopeGlobal:
		return c.Global
	case ScopeDevice:
		return c.PerDevice
	case ScopeUser:
		return c.PerUser
	}
	return 0
}

// Condition constrains one payload field. Exactly one of Equals or the
// Min/Max pair must be set. Equals compares after normalizing both sides to
// string; Min/Max is an inclusive numeric range.
type Condition struct {
	Equals *string
	Min    *float64
	Max    *float64
}

// Eq builds a literal equality condition.
func Eq(v string) Condition { return Condition{Equals: &v} }

// Between builds an inclusive numeric range condition.
func Between(min, max float64) Condition { return Condition{Min: &min, Max: &max} }

func (c Condition) validate(field string) error {
	hasEq := c.Equals != nil
	hasRange := c.Min != nil || c.Max != nil
	switch {
	case hasEq && hasRange:
		return fmt.Errorf("condition %q: equals and range are mutually exclusive", field)
	case !hasEq && !hasRange:
		return fmt.Errorf("condition %q: neither equals nor range set", field)
	case hasRange && (c.Min == nil || c.Max == nil):
		return fmt.Errorf("condition %q: range requires both min and max", field)
	case hasRange && *c.Min > *c.Max:
		return fmt.Errorf("condition %q: min %v greater than max %v", field, *c.Min, *c.Max)
	}
	return nil
}

// matches reports whether the payload satisfies this condition. A field
// absent from the payload never matches.
func (c Condition) matches(payload map[string]any, field string) bool {
	v, ok := payload[field]
	if !ok || v == nil {
		return false
	}
	if c.Equals != nil {
		return normalize(v) == *c.Equals
	}
	f, ok := toFloat(v)
	if !ok {
		return false
	}
	return f >= *c.Min && f <= *c.Max
}

// normalize renders a payload value as a comparable string. Floats that are
// whole numbers print without a fractional part so JSON-decoded numbers
// compare equal to integer literals ("5655" matches 5655.0).
func normalize(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(v)
	}
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint:
		return float64(t), true
	case uint64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	}
	return 0, false
}

// Rule binds an event pattern to an opaque action, gated by cooldown and
// rate-limit policy. Rules are replaced whole on update, never mutated.
type Rule struct {
	// ID is assigned on AddMapping when empty and immutable afterwards.
	ID        string
	EventType string
	Enabled   bool
	// Conditions maps payload field names to constraints; an empty map
	// matches every payload of the rule's event type.
	Conditions map[string]Condition
	// Action is forwarded untouched on admission; the gate never
	// interprets it.
	Action any
	// Cooldown components; each independently optional.
	Cooldown Cooldown
	// Channel names the rate-limit channel this rule draws from. Empty
	// means the rule is not rate limited.
	Channel string
}

// Validate checks a rule definition. Bad definitions are rejected at
// configuration time; per-event problems never produce errors.
func (r *Rule) Validate() error {
	if r.EventType == "" {
		return fmt.Errorf("rule %q: event type required", r.ID)
	}
	if r.Cooldown.Global < 0 || r.Cooldown.PerDevice < 0 || r.Cooldown.PerUser < 0 {
		return fmt.Errorf("rule %q: negative cooldown", r.ID)
	}
	for field, cond := range r.Conditions {
		if field == "" {
			return fmt.Errorf("rule %q: empty condition field name", r.ID)
		}
		if err := cond.validate(field); err != nil {
			return fmt.Errorf("rule %q: %w", r.ID, err)
		}
	}
	return nil
}

// matches reports whether the payload structurally satisfies all declared
// conditions. Unspecified fields are wildcards.
func (r *Rule) matches(eventType string, payload map[string]any) bool {
	if !r.Enabled || r.EventType != eventType {
		return false
	}
	for field, cond := range r.Conditions {
		if !cond.matches(payload, field) {
			return false
		}
	}
	return true
}
