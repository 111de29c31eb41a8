// Package plugin routes decoded LIVE events through per-plugin gates and
// hands admitted actions to executors (overlay streams, journals). Each
// plugin owns one gate, one overflow queue, and an enabled flag; the
// registry fans a single event out to every enabled plugin.
package plugin

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/palcid/livepal/event"
	"github.com/palcid/livepal/gate"
	"github.com/palcid/livepal/telemetry"
)

// Executor receives actions that cleared the gate. Implementations must not
// block; slow delivery belongs behind the executor's own buffering.
type Executor interface {
	Execute(ctx context.Context, plugin string, action gate.AdmittedAction)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, plugin string, action gate.AdmittedAction)

func (f ExecutorFunc) Execute(ctx context.Context, plugin string, action gate.AdmittedAction) {
	f(ctx, plugin, action)
}

// Plugin bundles a named gate with its overflow queue.
type Plugin struct {
	Name    string
	Gate    *gate.Gate
	Queue   *gate.Queue
	enabled bool
}

// Status is a read-only snapshot for the status endpoint.
type Status struct {
	Name       string     `json:"name"`
	Enabled    bool       `json:"enabled"`
	QueueDepth int        `json:"queue_depth"`
	Stats      gate.Stats `json:"stats"`
}

// Registry owns all plugins and implements live.Sink, so it can be wired
// directly into the feed's dispatch loop.
type Registry struct {
	mu        sync.RWMutex
	plugins   map[string]*Plugin
	order     []string
	executors []Executor
	scopes    gate.ScopeExtractor
	queueMax  int
	gateOpts  []gate.Option
}

// Option configures the registry.
type Option func(*Registry)

// WithQueueMax bounds each plugin's overflow queue (0 = unbounded).
func WithQueueMax(n int) Option {
	return func(r *Registry) { r.queueMax = n }
}

// WithScopes overrides how cooldown scope keys are read from payloads.
func WithScopes(s gate.ScopeExtractor) Option {
	return func(r *Registry) { r.scopes = s }
}

// WithGateOptions passes options through to every gate the registry creates.
// Used by tests to install a fake clock.
func WithGateOptions(opts ...gate.Option) Option {
	return func(r *Registry) { r.gateOpts = opts }
}

// NewRegistry builds an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		plugins: make(map[string]*Plugin),
		scopes:  gate.FieldScopes{},
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// RegisterExecutor appends an executor; delivery order is registration order.
func (r *Registry) RegisterExecutor(e Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors = append(r.executors, e)
}

// Ensure returns the named plugin, creating it enabled and empty when absent.
func (r *Registry) Ensure(name string) *Plugin {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ensureLocked(name)
}

func (r *Registry) ensureLocked(name string) *Plugin {
	if p, ok := r.plugins[name]; ok {
		return p
	}
	p := &Plugin{
		Name:    name,
		Gate:    gate.New(r.gateOpts...),
		Queue:   gate.NewQueue(r.queueMax),
		enabled: true,
	}
	r.plugins[name] = p
	r.order = append(r.order, name)
	return p
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) (*Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plugins[name]
	return p, ok
}

// SetEnabled toggles a plugin. Disabling also clears its overflow queue so
// stale actions do not fire on re-enable.
func (r *Registry) SetEnabled(name string, enabled bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.plugins[name]
	if !ok {
		return false
	}
	p.enabled = enabled
	if !enabled {
		p.Queue.Clear()
		telemetry.SetQueueDepth(name, 0)
	}
	return true
}

// Statuses returns a snapshot of every plugin in registration order.
func (r *Registry) Statuses() []Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Status, 0, len(r.order))
	for _, name := range r.order {
		p := r.plugins[name]
		out = append(out, Status{
			Name:       p.Name,
			Enabled:    p.enabled,
			QueueDepth: p.Queue.Len(),
			Stats:      p.Gate.Stats(),
		})
	}
	return out
}

// HandleEvent implements live.Sink. The event's flattened fields go through
// every enabled plugin's gate; admitted actions fan out to executors,
// rate-limited ones land on the plugin's queue for the drain worker.
func (r *Registry) HandleEvent(ctx context.Context, evt *event.Event) {
	fields := evt.Fields()

	r.mu.RLock()
	names := make([]string, len(r.order))
	copy(names, r.order)
	scopes := r.scopes
	executors := r.executors
	r.mu.RUnlock()

	for _, name := range names {
		p, ok := r.Get(name)
		if !ok || !p.enabled {
			continue
		}
		var admitted, limited []gate.AdmittedAction
		telemetry.TimeFunc(telemetry.AdmitDuration, func() {
			admitted, limited = p.Gate.AdmitWithOverflow(evt.Type, fields, scopes)
		})
		blockedCooldown := countCooldownBlocks(p.Gate, evt.Type, fields, len(admitted), len(limited))
		telemetry.RecordAdmissions(name, len(admitted), blockedCooldown, len(limited))

		for _, a := range limited {
			p.Queue.Push(a)
		}
		if len(limited) > 0 {
			telemetry.SetQueueDepth(name, p.Queue.Len())
			slog.Debug("plugin: actions queued past rate limit",
				slog.String("plugin", name),
				slog.Int("queued", len(limited)),
				slog.String("event_type", evt.Type),
				slog.String("component", "plugin"))
		}
		for _, a := range admitted {
			for _, e := range executors {
				e.Execute(ctx, name, a)
			}
		}
	}
}

// countCooldownBlocks derives how many matched rules were held back by a
// cooldown: matches that neither passed nor hit the rate limit.
func countCooldownBlocks(g *gate.Gate, eventType string, fields map[string]any, admitted, limited int) int {
	n := len(g.EvaluateEvent(eventType, fields)) - admitted - limited
	if n < 0 {
		return 0
	}
	return n
}

// RunDrain periodically retries queued actions against their plugin's rate
// limiter, executing the ones that now fit. Runs until the context ends.
func (r *Registry) RunDrain(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.DrainOnce(ctx)
		}
	}
}

// DrainOnce walks every enabled plugin's queue in FIFO order, re-admitting
// entries through the rate limiter until one no longer fits.
func (r *Registry) DrainOnce(ctx context.Context) {
	r.mu.RLock()
	names := make([]string, len(r.order))
	copy(names, r.order)
	executors := r.executors
	r.mu.RUnlock()

	for _, name := range names {
		p, ok := r.Get(name)
		if !ok || !p.enabled {
			continue
		}
		for p.Queue.Len() > 0 {
			entry, ok := p.Queue.Pop()
			if !ok {
				break
			}
			if !p.Gate.AdmitQueued(entry.Action.Rule.Channel) {
				// Window still full: keep FIFO order and stop draining here.
				p.Queue.Requeue(entry)
				break
			}
			for _, e := range executors {
				e.Execute(ctx, name, entry.Action)
			}
		}
		telemetry.SetQueueDepth(name, p.Queue.Len())
	}
}

// Shutdown resets every gate and clears every queue. Rules and channel
// limits survive so a restart of the feed resumes with the same config.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.plugins {
		p.Gate.Reset()
		p.Queue.Clear()
		telemetry.SetQueueDepth(p.Name, 0)
	}
}
