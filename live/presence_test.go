package live

import (
	"testing"
	"time"
)

func TestPresenceTTL(t *testing.T) {
	base := time.Date(2025, 6, 1, 20, 0, 0, 0, time.UTC)
	now := base
	p := NewPresence(45 * time.Second)
	p.now = func() time.Time { return now }

	p.Touch("alice", "Alice")
	if !p.Present("alice") {
		t.Errorf("touched viewer not present")
	}
	if p.ActiveCount() != 1 {
		t.Errorf("active = %d", p.ActiveCount())
	}

	now = base.Add(40 * time.Second)
	p.Touch("alice", "")
	now = base.Add(80 * time.Second)
	if !p.Present("alice") {
		t.Errorf("activity did not extend presence")
	}

	now = base.Add(10 * time.Minute)
	if p.Present("alice") {
		t.Errorf("stale viewer still present")
	}
	if p.ActiveCount() != 0 {
		t.Errorf("active after expiry = %d", p.ActiveCount())
	}
}

func TestPresenceIgnoresEmptyID(t *testing.T) {
	p := NewPresence(time.Minute)
	p.Touch("", "ghost")
	if p.ActiveCount() != 0 {
		t.Errorf("empty unique id tracked")
	}
}

func TestMarkGreetedOnce(t *testing.T) {
	base := time.Date(2025, 6, 1, 20, 0, 0, 0, time.UTC)
	now := base
	p := NewPresence(45 * time.Second)
	p.now = func() time.Time { return now }

	if p.MarkGreeted("alice") {
		t.Errorf("greeted a viewer never seen")
	}
	p.Touch("alice", "Alice")
	if !p.MarkGreeted("alice") {
		t.Errorf("first greeting refused")
	}
	if p.MarkGreeted("alice") {
		t.Errorf("second greeting allowed")
	}

	// Leaving and coming back resets the greeting.
	now = base.Add(10 * time.Minute)
	p.Touch("alice", "Alice")
	if !p.MarkGreeted("alice") {
		t.Errorf("returning viewer not greeted again")
	}
}
