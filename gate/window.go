package gate

import "time"

type windowLimit struct {
	maxPerWindow int
	window       time.Duration
}

// SlidingWindow caps admissions per trailing time window for named channels
// (e.g. "fireworks", "emoji"). Old timestamps are pruned on each check, not
// on a timer, so the limiter holds no goroutines of its own.
//
// Like CooldownStore it relies on its owning Gate for serialization.
type SlidingWindow struct {
	now      func() time.Time
	limits   map[string]windowLimit
	admitted map[string][]time.Time
}

// NewSlidingWindow returns an empty limiter using the wall clock.
func NewSlidingWindow() *SlidingWindow {
	return &SlidingWindow{
		now:      time.Now,
		limits:   make(map[string]windowLimit),
		admitted: make(map[string][]time.Time),
	}
}

// Configure sets or replaces the limit for a channel. maxPerWindow <= 0
// disables rate limiting for the channel entirely. Reconfiguration never
// rewrites already-recorded timestamps; a shrunk window takes effect as old
// entries age out naturally.
func (w *SlidingWindow) Configure(channel string, maxPerWindow int, window time.Duration) {
	if maxPerWindow <= 0 || window <= 0 {
		delete(w.limits, channel)
		delete(w.admitted, channel)
		return
	}
	w.limits[channel] = windowLimit{maxPerWindow: maxPerWindow, window: window}
}

// ShouldAllow prunes the channel's record to the trailing window and reports
// whether another admission fits. Unconfigured channels always allow.
func (w *SlidingWindow) ShouldAllow(channel string) bool {
	lim, ok := w.limits[channel]
	if !ok {
		return true
	}
	w.prune(channel, lim.window)
	return len(w.admitted[channel]) < lim.maxPerWindow
}

// RecordAllowed appends the current time to the channel's record. Must be
// called exactly once per admitted unit of work, after ShouldAllow returned
// true within the same serialized decision.
func (w *SlidingWindow) RecordAllowed(channel string) {
	if _, ok := w.limits[channel]; !ok {
		// Disabled channels keep no bookkeeping.
		return
	}
	w.admitted[channel] = append(w.admitted[channel], w.now())
}

func (w *SlidingWindow) prune(channel string, window time.Duration) {
	ts := w.admitted[channel]
	if len(ts) == 0 {
		return
	}
	cutoff := w.now().Add(-window)
	kept := ts[:0]
	for _, t := range ts {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	w.admitted[channel] = kept
}

// Usage returns the number of admissions currently inside the channel's
// window and the configured cap (0 when disabled). Diagnostics only.
func (w *SlidingWindow) Usage(channel string) (used, max int) {
	lim, ok := w.limits[channel]
	if !ok {
		return 0, 0
	}
	w.prune(channel, lim.window)
	return len(w.admitted[channel]), lim.maxPerWindow
}

// Reset drops all recorded admissions but keeps channel configuration.
func (w *SlidingWindow) Reset() {
	w.admitted = make(map[string][]time.Time)
}
