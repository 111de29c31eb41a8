package server

import (
	"context"
	"testing"
	"time"

	"github.com/palcid/livepal/gate"
)

func TestStreamHubBroadcast(t *testing.T) {
	hub := NewStreamHub()
	ch := hub.subscribe()
	defer hub.unsubscribe(ch)

	if hub.ClientCount() != 1 {
		t.Fatalf("clients = %d", hub.ClientCount())
	}

	hub.Execute(context.Background(), "fireworks", gate.AdmittedAction{
		Rule:    gate.Rule{ID: "rocket", EventType: "gift", Action: map[string]any{"effect": "rocket"}},
		Payload: map[string]any{"uniqueId": "alice"},
	})

	select {
	case evt := <-ch:
		if evt.Plugin != "fireworks" || evt.RuleID != "rocket" || evt.EventType != "gift" {
			t.Errorf("event = %+v", evt)
		}
		if evt.Payload["uniqueId"] != "alice" {
			t.Errorf("payload = %+v", evt.Payload)
		}
	case <-time.After(time.Second):
		t.Fatalf("no event delivered")
	}
}

func TestStreamHubDropsWhenClientFull(t *testing.T) {
	hub := NewStreamHub()
	ch := hub.subscribe()
	defer hub.unsubscribe(ch)

	// Overfill the client's buffer; the hub must not block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 200; i++ {
			hub.Execute(context.Background(), "p", gate.AdmittedAction{Rule: gate.Rule{ID: "r"}})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("hub blocked on a slow client")
	}
	if len(ch) != cap(ch) {
		t.Errorf("buffered = %d, want full buffer %d", len(ch), cap(ch))
	}
}

func TestStreamHubUnsubscribe(t *testing.T) {
	hub := NewStreamHub()
	ch := hub.subscribe()
	hub.unsubscribe(ch)
	if hub.ClientCount() != 0 {
		t.Errorf("clients after unsubscribe = %d", hub.ClientCount())
	}
}
