// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	EventsReceivedVec *prometheus.CounterVec
	EventsDeduped     prometheus.Counter
	ActionsAdmitted   *prometheus.CounterVec
	BlockedCooldown   *prometheus.CounterVec
	BlockedRate       *prometheus.CounterVec
	FeedReconnects    prometheus.Counter

	// Histograms (seconds)
	AdmitDuration prometheus.Observer

	// Gauges
	QueueDepthGauge    *prometheus.GaugeVec
	FeedConnectedGauge prometheus.Gauge
	StreamClientsGauge prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		EventsReceivedVec = promauto.NewCounterVec(prometheus.CounterOpts{Name: "livepal_events_received_total", Help: "Live events received from the relay, by event type"}, []string{"type"})
		EventsDeduped = promauto.NewCounter(prometheus.CounterOpts{Name: "livepal_events_deduped_total", Help: "Frames suppressed as retransmissions"})
		ActionsAdmitted = promauto.NewCounterVec(prometheus.CounterOpts{Name: "livepal_actions_admitted_total", Help: "Rule actions admitted through the gate, by plugin"}, []string{"plugin"})
		BlockedCooldown = promauto.NewCounterVec(prometheus.CounterOpts{Name: "livepal_blocked_cooldown_total", Help: "Rule matches blocked by a cooldown component, by plugin"}, []string{"plugin"})
		BlockedRate = promauto.NewCounterVec(prometheus.CounterOpts{Name: "livepal_blocked_rate_limit_total", Help: "Rule matches blocked by a rate-limit channel, by plugin"}, []string{"plugin"})
		FeedReconnects = promauto.NewCounter(prometheus.CounterOpts{Name: "livepal_feed_reconnects_total", Help: "Relay reconnect attempts"})
		AdmitDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "livepal_admit_duration_seconds", Help: "Gate admit call duration seconds", Buckets: prometheus.DefBuckets})
		QueueDepthGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{Name: "livepal_overflow_queue_depth", Help: "Parked rate-limited actions, by plugin"}, []string{"plugin"})
		FeedConnectedGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "livepal_feed_connected", Help: "Relay connection up=1 down=0"})
		StreamClientsGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "livepal_stream_clients", Help: "Connected overlay SSE clients"})
	})
}

// IncEventsReceived bumps the received counter for one event type.
func IncEventsReceived(eventType string) {
	if EventsReceivedVec != nil {
		EventsReceivedVec.WithLabelValues(eventType).Inc()
	}
}

// IncEventsDeduped bumps the dedupe counter.
func IncEventsDeduped() {
	if EventsDeduped != nil {
		EventsDeduped.Inc()
	}
}

// IncFeedReconnects bumps the reconnect counter.
func IncFeedReconnects() {
	if FeedReconnects != nil {
		FeedReconnects.Inc()
	}
}

// RecordAdmissions updates per-plugin admission counters from one gate call.
func RecordAdmissions(plugin string, admitted, blockedCooldown, blockedRate int) {
	if ActionsAdmitted == nil {
		return
	}
	if admitted > 0 {
		ActionsAdmitted.WithLabelValues(plugin).Add(float64(admitted))
	}
	if blockedCooldown > 0 {
		BlockedCooldown.WithLabelValues(plugin).Add(float64(blockedCooldown))
	}
	if blockedRate > 0 {
		BlockedRate.WithLabelValues(plugin).Add(float64(blockedRate))
	}
}

// SetQueueDepth records the current overflow queue depth for one plugin.
func SetQueueDepth(plugin string, n int) {
	if QueueDepthGauge != nil {
		QueueDepthGauge.WithLabelValues(plugin).Set(float64(n))
	}
}

// SetStreamClients records the number of connected overlay SSE clients.
func SetStreamClients(n int) {
	if StreamClientsGauge != nil {
		StreamClientsGauge.Set(float64(n))
	}
}

// UpdateFeedGauge sets the connection gauge to 1 when up else 0.
func UpdateFeedGauge(connected bool) {
	if FeedConnectedGauge != nil {
		if connected {
			FeedConnectedGauge.Set(1)
		} else {
			FeedConnectedGauge.Set(0)
		}
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding correlation id (if absent) and the id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
