package gate

import (
	"sync"
	"time"
)

// QueueEntry is a rate-limited admission parked for a later drain tick.
type QueueEntry struct {
	Action     AdmittedAction
	EnqueuedAt time.Time
}

// Queue is the FIFO overflow buffer used by effect plugins (fireworks,
// emoji rain) when a burst exceeds the rate limit: excess spawns are parked
// here and drained as window capacity frees up. Entries are dropped, never
// re-queued, when the consuming surface is torn down.
//
// The queue carries its own lock because drain workers run on their own
// ticker goroutine, outside the gate's serialization.
type Queue struct {
	mu      sync.Mutex
	entries []QueueEntry
	maxLen  int
}

// NewQueue returns a queue that holds at most maxLen entries; the oldest
// entry is dropped when a push would exceed the cap. maxLen <= 0 means
// unbounded.
func NewQueue(maxLen int) *Queue {
	return &Queue{maxLen: maxLen}
}

// Push appends an entry, evicting the oldest if the queue is full.
func (q *Queue) Push(a AdmittedAction) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.maxLen > 0 && len(q.entries) >= q.maxLen {
		q.entries = q.entries[1:]
	}
	q.entries = append(q.entries, QueueEntry{Action: a, EnqueuedAt: time.Now()})
}

// Pop removes and returns the oldest entry.
func (q *Queue) Pop() (QueueEntry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.entries) == 0 {
		return QueueEntry{}, false
	}
	e := q.entries[0]
	q.entries = q.entries[1:]
	return e, true
}

// Requeue puts an entry back at the head, preserving FIFO order when a
// drain tick pops an entry the window cannot yet admit.
func (q *Queue) Requeue(e QueueEntry) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = append([]QueueEntry{e}, q.entries...)
}

// Len returns the number of parked entries.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Clear drops every parked entry.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = nil
}
