package live

import (
	"sync"
	"time"
)

// Viewer is a tracked room participant.
type Viewer struct {
	UniqueID   string
	Nickname   string
	JoinedAt   time.Time
	LastActive time.Time
	Greeted    bool
}

// Presence tracks which viewers are currently active in the room. A viewer
// counts as present while their last activity lies within the TTL; stale
// entries are pruned lazily on access. Join-greeting rules consult this so
// a greeting only fires for viewers who actually stuck around.
type Presence struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	viewers map[string]*Viewer
}

// NewPresence returns a tracker with the given activity TTL.
func NewPresence(ttl time.Duration) *Presence {
	return &Presence{
		ttl:     ttl,
		now:     time.Now,
		viewers: make(map[string]*Viewer),
	}
}

// Touch records activity for a viewer, creating the entry on first sight.
func (p *Presence) Touch(uniqueID, nickname string) {
	if uniqueID == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.now()
	v, ok := p.viewers[uniqueID]
	if !ok {
		v = &Viewer{UniqueID: uniqueID, JoinedAt: now}
		p.viewers[uniqueID] = v
	} else if now.Sub(v.LastActive) > p.ttl {
		// A stale entry revived counts as a fresh visit.
		v.JoinedAt = now
		v.Greeted = false
	}
	if nickname != "" {
		v.Nickname = nickname
	}
	v.LastActive = now
}

// Present reports whether the viewer was active within the TTL.
func (p *Presence) Present(uniqueID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.viewers[uniqueID]
	if !ok {
		return false
	}
	return p.now().Sub(v.LastActive) <= p.ttl
}

// MarkGreeted flags a present viewer as greeted exactly once; it returns
// false when the viewer is absent, stale or already greeted.
func (p *Presence) MarkGreeted(uniqueID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.viewers[uniqueID]
	if !ok || v.Greeted || p.now().Sub(v.LastActive) > p.ttl {
		return false
	}
	v.Greeted = true
	return true
}

// ActiveCount prunes stale viewers and returns how many remain.
func (p *Presence) ActiveCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.now()
	for id, v := range p.viewers {
		if now.Sub(v.LastActive) > p.ttl {
			delete(p.viewers, id)
		}
	}
	return len(p.viewers)
}
