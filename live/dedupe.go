// Package live connects to the LIVE event relay and fans decoded events out
// to registered sinks. The TikTok wire protocol itself lives in the relay;
// this package only consumes its JSON frames.
package live

import (
	"sync"
	"time"
)

const dedupeMaxEntries = 5000

type dedupeEntry struct {
	sig    string
	expiry time.Time
}

// Deduper suppresses retransmitted frames by signature for a TTL. Expired
// entries are pruned on each check; the store is additionally capped so a
// hostile or looping relay cannot grow it without bound.
type Deduper struct {
	mu    sync.Mutex
	ttl   time.Duration
	now   func() time.Time
	seen  map[string]time.Time
	order []dedupeEntry
}

// NewDeduper returns a deduper with the given entry TTL.
func NewDeduper(ttl time.Duration) *Deduper {
	return &Deduper{
		ttl:  ttl,
		now:  time.Now,
		seen: make(map[string]time.Time),
	}
}

// Seen reports whether the signature was recorded within the TTL, recording
// it when new.
func (d *Deduper) Seen(sig string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	d.prune(now)
	if exp, ok := d.seen[sig]; ok && exp.After(now) {
		return true
	}
	exp := now.Add(d.ttl)
	d.seen[sig] = exp
	d.order = append(d.order, dedupeEntry{sig: sig, expiry: exp})
	if len(d.order) > dedupeMaxEntries {
		oldest := d.order[0]
		d.order = d.order[1:]
		delete(d.seen, oldest.sig)
	}
	return false
}

// prune drops expired entries. All entries share one TTL, so insertion
// order equals expiry order and the scan stops at the first live entry.
func (d *Deduper) prune(now time.Time) {
	i := 0
	for ; i < len(d.order); i++ {
		if d.order[i].expiry.After(now) {
			break
		}
		delete(d.seen, d.order[i].sig)
	}
	d.order = d.order[i:]
}

// Len returns the number of live entries.
func (d *Deduper) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.prune(d.now())
	return len(d.order)
}
