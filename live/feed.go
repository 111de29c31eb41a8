package live

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/palcid/livepal/event"
	"github.com/palcid/livepal/telemetry"
)

// Sink consumes decoded events. Dispatch happens on the feed's single read
// loop, so sinks see events serialized; a sink that needs concurrency must
// hand off internally.
type Sink interface {
	HandleEvent(ctx context.Context, evt *event.Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, evt *event.Event)

func (f SinkFunc) HandleEvent(ctx context.Context, evt *event.Event) { f(ctx, evt) }

// FeedOptions configures the relay connection.
type FeedOptions struct {
	// URL of the relay websocket endpoint (ws:// or wss://).
	URL string
	// SessionToken is sent as a bearer header when set.
	SessionToken string
	// DedupeTTL bounds how long event signatures are remembered (default 10m).
	DedupeTTL time.Duration
	// PresenceTTL is how long a viewer counts as active (default 45s).
	PresenceTTL time.Duration
	// BackoffBase and BackoffMax bound the reconnect delay (defaults 2s / 2m).
	BackoffBase time.Duration
	BackoffMax  time.Duration
}

// FeedState is a snapshot of the connector for status reporting.
type FeedState struct {
	Connected       bool      `json:"connected"`
	LastConnectedAt time.Time `json:"last_connected_at,omitempty"`
	Reconnects      int64     `json:"reconnects"`
	EventsReceived  int64     `json:"events_received"`
	EventsDeduped   int64     `json:"events_deduped"`
}

// Feed maintains the websocket connection to the LIVE event relay,
// reconnecting with capped exponential backoff, and fans decoded frames out
// to registered sinks in order.
type Feed struct {
	opts     FeedOptions
	dedupe   *Deduper
	presence *Presence
	sinks    []Sink

	mu    sync.Mutex
	state FeedState
}

// NewFeed builds a feed with defaults applied. Sinks must be registered
// before Run.
func NewFeed(opts FeedOptions) *Feed {
	if opts.DedupeTTL <= 0 {
		opts.DedupeTTL = 10 * time.Minute
	}
	if opts.PresenceTTL <= 0 {
		opts.PresenceTTL = 45 * time.Second
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = 2 * time.Second
	}
	if opts.BackoffMax <= 0 {
		opts.BackoffMax = 2 * time.Minute
	}
	return &Feed{
		opts:     opts,
		dedupe:   NewDeduper(opts.DedupeTTL),
		presence: NewPresence(opts.PresenceTTL),
	}
}

// RegisterSink appends a sink; dispatch order is registration order.
func (f *Feed) RegisterSink(s Sink) { f.sinks = append(f.sinks, s) }

// Presence exposes the viewer tracker fed by this connection.
func (f *Feed) Presence() *Presence { return f.presence }

// State returns a snapshot of connector state.
func (f *Feed) State() FeedState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Run connects and keeps reconnecting until the context is cancelled or a
// fatal (non-retryable) error occurs.
func (f *Feed) Run(ctx context.Context) error {
	if f.opts.URL == "" {
		return fmt.Errorf("live feed: relay url required")
	}
	attempt := 0
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		connectedAt := time.Now()
		err := f.runOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil && !IsRetryableFeedError(err) {
			slog.Error("live feed: fatal error; giving up", slog.Any("err", err), slog.String("component", "live_feed"))
			return err
		}
		// A connection that survived a while earns a fresh backoff ladder.
		if time.Since(connectedAt) > time.Minute {
			attempt = 0
		}
		delay := backoffDelay(f.opts.BackoffBase, f.opts.BackoffMax, attempt)
		attempt++
		telemetry.IncFeedReconnects()
		telemetry.UpdateFeedGauge(false)
		f.mu.Lock()
		f.state.Connected = false
		f.state.Reconnects++
		f.mu.Unlock()
		slog.Warn("live feed: disconnected; reconnecting",
			slog.Any("err", err),
			slog.Duration("backoff", delay),
			slog.Int("attempt", attempt),
			slog.String("component", "live_feed"))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// backoffDelay returns base*2^attempt capped at max, with ±20% jitter so a
// fleet of clients does not reconnect in lockstep.
func backoffDelay(base, max time.Duration, attempt int) time.Duration {
	d := base
	for i := 0; i < attempt && d < max; i++ {
		d *= 2
	}
	if d > max {
		d = max
	}
	jitter := time.Duration(rand.Int63n(int64(d)/5+1)) - d/10
	return d + jitter
}

func (f *Feed) runOnce(ctx context.Context) error {
	header := http.Header{}
	if f.opts.SessionToken != "" {
		header.Set("Authorization", "Bearer "+f.opts.SessionToken)
	}
	dialCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	conn, resp, err := websocket.DefaultDialer.DialContext(dialCtx, f.opts.URL, header)
	cancel()
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial relay: %w (status %s)", err, resp.Status)
		}
		return fmt.Errorf("dial relay: %w", err)
	}
	defer conn.Close()

	f.mu.Lock()
	f.state.Connected = true
	f.state.LastConnectedAt = time.Now().UTC()
	f.mu.Unlock()
	telemetry.UpdateFeedGauge(true)
	slog.Info("live feed: connected", slog.String("url", f.opts.URL), slog.String("component", "live_feed"))

	// Keepalive: the read deadline advances on every pong; a silent peer
	// fails the read within readWait.
	const (
		readWait     = 60 * time.Second
		pingInterval = 20 * time.Second
	)
	_ = conn.SetReadDeadline(time.Now().Add(readWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readWait))
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
					return
				}
			case <-ctx.Done():
				_ = conn.Close()
				return
			case <-done:
				return
			}
		}
	}()

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read relay frame: %w", err)
		}
		_ = conn.SetReadDeadline(time.Now().Add(readWait))
		f.handleFrame(ctx, frame)
	}
}

func (f *Feed) handleFrame(ctx context.Context, frame []byte) {
	evt, err := event.Decode(frame)
	if err != nil {
		// A malformed frame must never take the read loop down.
		slog.Debug("live feed: dropping undecodable frame", slog.Any("err", err), slog.String("component", "live_feed"))
		return
	}
	telemetry.IncEventsReceived(evt.Type)
	f.mu.Lock()
	f.state.EventsReceived++
	f.mu.Unlock()

	if f.dedupe.Seen(evt.Signature()) {
		telemetry.IncEventsDeduped()
		f.mu.Lock()
		f.state.EventsDeduped++
		f.mu.Unlock()
		return
	}
	f.presence.Touch(evt.User.UniqueID, evt.User.Nickname)

	for _, s := range f.sinks {
		s.HandleEvent(ctx, evt)
	}
}
