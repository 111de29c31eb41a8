package plugin

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/palcid/livepal/event"
	"github.com/palcid/livepal/gate"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 20, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type recorder struct {
	mu      sync.Mutex
	actions []string
}

func (r *recorder) Execute(_ context.Context, plugin string, a gate.AdmittedAction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions = append(r.actions, plugin+"/"+a.Rule.ID)
}

func (r *recorder) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.actions...)
}

func giftEvent(uid, giftID string, count int) *event.Event {
	return &event.Event{
		Type: event.TypeGift,
		User: event.User{UniqueID: uid},
		Gift: &event.Gift{ID: giftID, RepeatCount: count},
	}
}

func mustAdd(t *testing.T, g *gate.Gate, r gate.Rule) {
	t.Helper()
	if _, err := g.AddMapping(r); err != nil {
		t.Fatalf("AddMapping: %v", err)
	}
}

func TestHandleEventFansOutToExecutors(t *testing.T) {
	clock := newFakeClock()
	reg := NewRegistry(WithGateOptions(gate.WithClock(clock.now)))
	rec := &recorder{}
	reg.RegisterExecutor(rec)

	p := reg.Ensure("fireworks")
	mustAdd(t, p.Gate, gate.Rule{
		ID:        "rocket",
		EventType: event.TypeGift,
		Enabled:   true,
		Cooldown:  gate.Cooldown{PerUser: 5 * time.Second},
	})

	reg.HandleEvent(context.Background(), giftEvent("alice", "5655", 1))
	reg.HandleEvent(context.Background(), giftEvent("alice", "5655", 1)) // on cooldown
	clock.advance(6 * time.Second)
	reg.HandleEvent(context.Background(), giftEvent("alice", "5655", 1))

	got := rec.names()
	if len(got) != 2 || got[0] != "fireworks/rocket" || got[1] != "fireworks/rocket" {
		t.Errorf("executed = %v", got)
	}
}

func TestRateLimitedActionsQueueAndDrain(t *testing.T) {
	clock := newFakeClock()
	reg := NewRegistry(WithGateOptions(gate.WithClock(clock.now)))
	rec := &recorder{}
	reg.RegisterExecutor(rec)

	p := reg.Ensure("fireworks")
	p.Gate.SetChannelLimit("burst", 1, time.Second)
	mustAdd(t, p.Gate, gate.Rule{
		ID:        "spark",
		EventType: event.TypeGift,
		Enabled:   true,
		Channel:   "burst",
	})

	for _, uid := range []string{"a", "b", "c"} {
		reg.HandleEvent(context.Background(), giftEvent(uid, "1", 1))
	}
	if got := rec.names(); len(got) != 1 {
		t.Fatalf("immediate executions = %v", got)
	}
	if p.Queue.Len() != 2 {
		t.Fatalf("queued = %d, want 2", p.Queue.Len())
	}

	// One window later a single queued entry fits; the other stays parked.
	clock.advance(1100 * time.Millisecond)
	reg.DrainOnce(context.Background())
	if got := rec.names(); len(got) != 2 {
		t.Errorf("after first drain = %v", got)
	}
	if p.Queue.Len() != 1 {
		t.Errorf("still queued = %d, want 1", p.Queue.Len())
	}

	clock.advance(1100 * time.Millisecond)
	reg.DrainOnce(context.Background())
	if got := rec.names(); len(got) != 3 {
		t.Errorf("after second drain = %v", got)
	}
	if p.Queue.Len() != 0 {
		t.Errorf("queue not empty: %d", p.Queue.Len())
	}
}

func TestDisabledPluginIgnoresEvents(t *testing.T) {
	reg := NewRegistry()
	rec := &recorder{}
	reg.RegisterExecutor(rec)

	p := reg.Ensure("greeter")
	mustAdd(t, p.Gate, gate.Rule{ID: "hello", EventType: event.TypeJoin, Enabled: true})

	if !reg.SetEnabled("greeter", false) {
		t.Fatalf("SetEnabled returned false for known plugin")
	}
	reg.HandleEvent(context.Background(), &event.Event{Type: event.TypeJoin, User: event.User{UniqueID: "a"}})
	if got := rec.names(); len(got) != 0 {
		t.Errorf("disabled plugin executed %v", got)
	}

	reg.SetEnabled("greeter", true)
	reg.HandleEvent(context.Background(), &event.Event{Type: event.TypeJoin, User: event.User{UniqueID: "b"}})
	if got := rec.names(); len(got) != 1 {
		t.Errorf("re-enabled plugin executed %v", got)
	}
}

func TestDisablingClearsQueue(t *testing.T) {
	reg := NewRegistry()
	p := reg.Ensure("fireworks")
	p.Gate.SetChannelLimit("burst", 1, time.Minute)
	mustAdd(t, p.Gate, gate.Rule{ID: "spark", EventType: event.TypeGift, Enabled: true, Channel: "burst"})

	reg.HandleEvent(context.Background(), giftEvent("a", "1", 1))
	reg.HandleEvent(context.Background(), giftEvent("b", "1", 1))
	if p.Queue.Len() != 1 {
		t.Fatalf("queued = %d", p.Queue.Len())
	}
	reg.SetEnabled("fireworks", false)
	if p.Queue.Len() != 0 {
		t.Errorf("queue survived disable: %d", p.Queue.Len())
	}
}

func TestStatusesReportInRegistrationOrder(t *testing.T) {
	reg := NewRegistry()
	reg.Ensure("fireworks")
	reg.Ensure("greeter")
	reg.Ensure("leaderboard")

	st := reg.Statuses()
	if len(st) != 3 || st[0].Name != "fireworks" || st[1].Name != "greeter" || st[2].Name != "leaderboard" {
		t.Errorf("statuses = %+v", st)
	}
	for _, s := range st {
		if !s.Enabled {
			t.Errorf("plugin %s not enabled by default", s.Name)
		}
	}
}

func TestShutdownResetsGatesAndQueues(t *testing.T) {
	reg := NewRegistry()
	p := reg.Ensure("fireworks")
	mustAdd(t, p.Gate, gate.Rule{
		ID:        "rocket",
		EventType: event.TypeGift,
		Enabled:   true,
		Cooldown:  gate.Cooldown{Global: time.Hour},
	})
	reg.HandleEvent(context.Background(), giftEvent("a", "1", 1))

	reg.Shutdown()

	// Rules survive; cooldown history does not.
	if len(p.Gate.Mappings()) != 1 {
		t.Errorf("rules dropped on shutdown")
	}
	rec := &recorder{}
	reg.RegisterExecutor(rec)
	reg.HandleEvent(context.Background(), giftEvent("a", "1", 1))
	if got := rec.names(); len(got) != 1 {
		t.Errorf("post-shutdown admission = %v", got)
	}
}
