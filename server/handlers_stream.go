package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/palcid/livepal/gate"
	"github.com/palcid/livepal/telemetry"
)

// StreamEvent is one admitted action as delivered to overlay clients.
type StreamEvent struct {
	Plugin    string         `json:"plugin"`
	RuleID    string         `json:"rule_id"`
	EventType string         `json:"event_type"`
	Action    any            `json:"action,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	At        time.Time      `json:"at"`
}

// StreamHub fans admitted actions out to connected SSE clients. It
// implements the executor interface, so wiring it into the registry makes
// every admission reach the overlays. Slow clients drop events rather than
// stall the dispatch path.
type StreamHub struct {
	mu      sync.Mutex
	clients map[chan StreamEvent]struct{}
}

// NewStreamHub returns an empty hub.
func NewStreamHub() *StreamHub {
	return &StreamHub{clients: make(map[chan StreamEvent]struct{})}
}

// Execute broadcasts an admitted action to every connected client.
func (s *StreamHub) Execute(_ context.Context, plugin string, a gate.AdmittedAction) {
	evt := StreamEvent{
		Plugin:    plugin,
		RuleID:    a.Rule.ID,
		EventType: a.Rule.EventType,
		Action:    a.Rule.Action,
		Payload:   a.Payload,
		At:        time.Now().UTC(),
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.clients {
		select {
		case ch <- evt:
		default:
			// Client buffer full; drop for this client rather than block.
		}
	}
}

// ClientCount returns the number of connected overlay clients.
func (s *StreamHub) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *StreamHub) subscribe() chan StreamEvent {
	ch := make(chan StreamEvent, 64)
	s.mu.Lock()
	s.clients[ch] = struct{}{}
	n := len(s.clients)
	s.mu.Unlock()
	telemetry.SetStreamClients(n)
	return ch
}

func (s *StreamHub) unsubscribe(ch chan StreamEvent) {
	s.mu.Lock()
	delete(s.clients, ch)
	n := len(s.clients)
	s.mu.Unlock()
	telemetry.SetStreamClients(n)
}

// HandleEventStream streams admitted actions to overlay clients using
// Server-Sent Events. A comment heartbeat every 15s keeps intermediaries
// from closing idle connections.
func (h *Handlers) HandleEventStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	if h.hub == nil {
		http.Error(w, "stream unavailable", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := h.hub.subscribe()
	defer h.hub.unsubscribe(ch)

	ctx := r.Context()
	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()
	enc := json.NewEncoder(w)

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			if _, err := w.Write([]byte(": ping\n\n")); err != nil {
				return
			}
			flusher.Flush()
		case evt := <-ch:
			if _, err := w.Write([]byte("data: ")); err != nil {
				slog.Warn("failed to write SSE data prefix", slog.Any("err", err))
				return
			}
			_ = enc.Encode(evt)
			if _, err := w.Write([]byte("\n")); err != nil {
				slog.Warn("failed to write SSE newline", slog.Any("err", err))
				return
			}
			flusher.Flush()
		}
	}
}
