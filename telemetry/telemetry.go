// Package telemetry is the ambient observability stack the core rides on:
// structured logging via zerolog and tick/connection metrics via
// prometheus/client_golang. Spec's non-goal excludes building a logging
// *subsystem* (shipping, rotation, sampling policy) — not using a logger.
package telemetry

import (
	"io"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// NewLogger builds the process logger. Human-readable console output when
// stderr is a terminal, newline-delimited JSON otherwise — the same split
// the reference stack's zerolog-based services make.
func NewLogger() zerolog.Logger {
	var w io.Writer = os.Stderr
	if isTerminal(os.Stderr) {
		w = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).With().Timestamp().Logger()
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}

// Metrics is the set of Prometheus collectors the core reports into. All
// fields are safe for concurrent use.
type Metrics struct {
	ActiveConnections prometheus.Gauge
	CommandsApplied   prometheus.Counter
	SnapshotsSent     prometheus.Counter
	SubscriberLags    prometheus.Counter
	CommandsDropped   prometheus.Counter
	TickDuration      prometheus.Histogram
}

// NewMetrics registers every collector against reg and returns the handle
// used to update them. Pass prometheus.NewRegistry() for isolated tests, or
// prometheus.DefaultRegisterer in production.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ActiveConnections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "arena",
			Name:      "active_connections",
			Help:      "Number of currently connected WebSocket clients.",
		}),
		CommandsApplied: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "arena",
			Name:      "commands_applied_total",
			Help:      "Game Packets drained from the Command Bus and applied by the simulation.",
		}),
		SnapshotsSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "arena",
			Name:      "snapshots_published_total",
			Help:      "Snapshots published to the Snapshot Bus.",
		}),
		SubscriberLags: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "arena",
			Name:      "subscriber_lag_total",
			Help:      "Times a snapshot subscriber fell behind and skipped to the current head.",
		}),
		CommandsDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "arena",
			Name:      "commands_rate_limited_total",
			Help:      "Inbound commands dropped by a connection's rate limiter before reaching the Command Bus.",
		}),
		TickDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "arena",
			Name:      "tick_duration_seconds",
			Help:      "Wall-clock duration of one simulation tick pipeline.",
			Buckets:   prometheus.ExponentialBuckets(0.00005, 2, 12),
		}),
	}
}
