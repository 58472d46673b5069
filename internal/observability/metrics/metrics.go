package metrics

import (
	"database/sql"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const (
	metricPrefix = "soilwatch_"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	refreshTotal   *prometheus.CounterVec
	refreshLatency *prometheus.HistogramVec

	changeEventsTotal *prometheus.CounterVec
	feedDroppedTotal  prometheus.Counter

	liveSessions prometheus.Gauge

	exportTotal   *prometheus.CounterVec
	exportLatency *prometheus.HistogramVec
	exportRows    *prometheus.HistogramVec

	signInTotal *prometheus.CounterVec
)

// Init registers dashboard metrics and DB-backed gauges.
func Init(db *sql.DB, logger *zap.Logger) {
	registerOnce.Do(func() {
		refreshTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "refresh_total",
				Help: "Total bulk refreshes of latest readings by result",
			},
			[]string{"result"},
		)
		refreshLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "refresh_latency_seconds",
				Help:    "Bulk refresh latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		changeEventsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "change_events_total",
				Help: "Change events seen by kind and outcome",
			},
			[]string{"kind", "outcome"},
		)
		feedDroppedTotal = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "change_feed_dropped_total",
				Help: "Change events dropped because a subscriber queue was full",
			},
		)

		liveSessions = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "live_sessions",
				Help: "Open live dashboard sessions",
			},
		)

		exportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "export_total",
				Help: "Total reading exports by format and result",
			},
			[]string{"format", "result"},
		)
		exportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "export_latency_seconds",
				Help:    "Reading export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format", "result"},
		)
		exportRows = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "export_rows",
				Help:    "Rows per reading export",
				Buckets: prometheus.ExponentialBuckets(10, 4, 8),
			},
			[]string{"format"},
		)

		signInTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "sign_in_total",
				Help: "Sign-in attempts by result",
			},
			[]string{"result"},
		)

		prometheus.MustRegister(
			refreshTotal,
			refreshLatency,
			changeEventsTotal,
			feedDroppedTotal,
			liveSessions,
			exportTotal,
			exportLatency,
			exportRows,
			signInTotal,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// ObserveRefresh records bulk refresh duration and result.
func ObserveRefresh(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if refreshTotal != nil {
		refreshTotal.WithLabelValues(result).Inc()
	}
	if refreshLatency != nil {
		refreshLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// IncChangeEvent counts a change event by kind and reconcile outcome.
func IncChangeEvent(kind, outcome string) {
	if kind == "" {
		kind = "unknown"
	}
	if outcome == "" {
		outcome = "unknown"
	}
	if changeEventsTotal != nil {
		changeEventsTotal.WithLabelValues(kind, outcome).Inc()
	}
}

// IncFeedDropped counts an event dropped on a full subscriber queue.
func IncFeedDropped() {
	if feedDroppedTotal != nil {
		feedDroppedTotal.Inc()
	}
}

// SessionOpened increments the live session gauge.
func SessionOpened() {
	if liveSessions != nil {
		liveSessions.Inc()
	}
}

// SessionClosed decrements the live session gauge.
func SessionClosed() {
	if liveSessions != nil {
		liveSessions.Dec()
	}
}

// ObserveExport records export latency, result and row count.
func ObserveExport(format, result string, rows int, duration time.Duration) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if exportTotal != nil {
		exportTotal.WithLabelValues(format, result).Inc()
	}
	if exportLatency != nil {
		exportLatency.WithLabelValues(format, result).Observe(duration.Seconds())
	}
	if exportRows != nil && result == resultSuccess {
		exportRows.WithLabelValues(format).Observe(float64(rows))
	}
}

// IncSignIn counts a sign-in attempt.
func IncSignIn(result string) {
	if result == "" {
		result = "unknown"
	}
	if signInTotal != nil {
		signInTotal.WithLabelValues(result).Inc()
	}
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError
)
