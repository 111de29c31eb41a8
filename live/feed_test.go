package live

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/palcid/livepal/event"
	"github.com/palcid/livepal/testutil"
)

type collectSink struct {
	mu     sync.Mutex
	events []*event.Event
	gotOne chan struct{}
}

func newCollectSink() *collectSink {
	return &collectSink{gotOne: make(chan struct{}, 16)}
}

func (s *collectSink) HandleEvent(_ context.Context, evt *event.Event) {
	s.mu.Lock()
	s.events = append(s.events, evt)
	s.mu.Unlock()
	s.gotOne <- struct{}{}
}

func (s *collectSink) snapshot() []*event.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*event.Event(nil), s.events...)
}

func waitFor(t *testing.T, ch chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func TestFeedDispatchesAndDedupes(t *testing.T) {
	relay := testutil.NewMockRelayServer(t)
	sink := newCollectSink()

	f := NewFeed(FeedOptions{URL: relay.URL()})
	f.RegisterSink(sink)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- f.Run(ctx) }()

	frame := []byte(`{"type":"gift","user":{"uniqueId":"alice","nickname":"Alice"},"gift":{"id":"5655","repeatCount":3}}`)
	relay.Send(frame)
	waitFor(t, sink.gotOne, "first event")
	relay.Send(frame) // identical frame must be suppressed
	relay.Send([]byte(`{"type":"chat","uniqueId":"bob","comment":"hi"}`))
	waitFor(t, sink.gotOne, "second event")

	got := sink.snapshot()
	if len(got) != 2 {
		t.Fatalf("dispatched = %d events", len(got))
	}
	if got[0].Type != event.TypeGift || got[0].Gift == nil || got[0].Gift.ID != "5655" {
		t.Errorf("first event = %+v", got[0])
	}
	if got[1].Type != event.TypeChat || got[1].User.UniqueID != "bob" {
		t.Errorf("second event = %+v", got[1])
	}

	st := f.State()
	if !st.Connected || st.EventsReceived != 3 || st.EventsDeduped != 1 {
		t.Errorf("state = %+v", st)
	}
	if !f.Presence().Present("alice") || !f.Presence().Present("bob") {
		t.Errorf("presence not updated from feed events")
	}

	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Run did not stop on cancel")
	}
}

func TestFeedDropsMalformedFrames(t *testing.T) {
	relay := testutil.NewMockRelayServer(t)
	sink := newCollectSink()

	f := NewFeed(FeedOptions{URL: relay.URL()})
	f.RegisterSink(sink)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = f.Run(ctx) }()

	relay.Send([]byte(`{not json`))
	relay.Send([]byte(`{"user":{"uniqueId":"a"}}`)) // missing type
	relay.Send([]byte(`{"type":"follow","uniqueId":"carol"}`))
	waitFor(t, sink.gotOne, "valid event after junk")

	got := sink.snapshot()
	if len(got) != 1 || got[0].Type != event.TypeFollow {
		t.Fatalf("dispatched = %+v", got)
	}
}

func TestFeedAuthRejectionIsFatal(t *testing.T) {
	relay := testutil.NewMockRelayServer(t)
	relay.RejectAuth = true

	f := NewFeed(FeedOptions{URL: relay.URL(), SessionToken: "expired"})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := f.Run(ctx)
	if err == nil || IsRetryableFeedError(err) {
		t.Errorf("Run = %v, want fatal auth error", err)
	}
}

func TestFeedRequiresURL(t *testing.T) {
	f := NewFeed(FeedOptions{})
	if err := f.Run(context.Background()); err == nil {
		t.Errorf("missing relay url accepted")
	}
}
