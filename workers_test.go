package main

import (
	"context"
	"testing"
	"time"

	"github.com/palcid/livepal/event"
	"github.com/palcid/livepal/gate"
	"github.com/palcid/livepal/live"
	"github.com/palcid/livepal/plugin"
)

func TestGreetFilterSuppressesRepeatJoins(t *testing.T) {
	presence := live.NewPresence(45 * time.Second)
	presence.Touch("alice", "Alice")

	var forwarded []string
	next := plugin.ExecutorFunc(func(_ context.Context, _ string, a gate.AdmittedAction) {
		forwarded = append(forwarded, a.Rule.ID)
	})
	exec := greetFilter(presence, next)

	join := gate.AdmittedAction{
		Rule:    gate.Rule{ID: "greet", EventType: event.TypeJoin},
		Payload: map[string]any{"uniqueId": "alice"},
	}
	exec.Execute(context.Background(), "greeter", join)
	exec.Execute(context.Background(), "greeter", join)
	if len(forwarded) != 1 {
		t.Fatalf("forwarded %d greetings, want 1", len(forwarded))
	}

	// Non-join actions pass through untouched.
	gift := gate.AdmittedAction{
		Rule:    gate.Rule{ID: "rocket", EventType: event.TypeGift},
		Payload: map[string]any{"uniqueId": "alice"},
	}
	exec.Execute(context.Background(), "fireworks", gift)
	exec.Execute(context.Background(), "fireworks", gift)
	if len(forwarded) != 3 {
		t.Fatalf("forwarded %d actions, want 3", len(forwarded))
	}
}

func TestGreetFilterSkipsUnknownViewer(t *testing.T) {
	presence := live.NewPresence(45 * time.Second)

	var count int
	exec := greetFilter(presence, plugin.ExecutorFunc(func(context.Context, string, gate.AdmittedAction) {
		count++
	}))
	exec.Execute(context.Background(), "greeter", gate.AdmittedAction{
		Rule:    gate.Rule{ID: "greet", EventType: event.TypeJoin},
		Payload: map[string]any{"uniqueId": "nobody"},
	})
	if count != 0 {
		t.Errorf("greeted a viewer the tracker never saw")
	}
}

func TestParseKeepDays(t *testing.T) {
	cases := map[string]int{
		"14":  14,
		"0":   0,
		"":    0,
		"7d":  0,
		"-3":  0,
		"365": 365,
	}
	for in, want := range cases {
		if got := parseKeepDays(in); got != want {
			t.Errorf("parseKeepDays(%q) = %d, want %d", in, got, want)
		}
	}
}
