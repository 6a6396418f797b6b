package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Visitor counting and reconciliation metrics
var (
	VisitorHitsRecorded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "visitor_hits_recorded_total",
			Help: "Total number of requests counted as visitor hits",
		},
	)

	VisitorHitsExcluded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "visitor_hits_excluded_total",
			Help: "Total number of requests excluded from visitor counting",
		},
		[]string{"reason"}, // "path", "user_agent", "ip"
	)

	CounterStoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "visitor_counter_store_errors_total",
			Help: "Total number of failed fast counter store operations",
		},
		[]string{"operation"},
	)

	SyncDates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "visitor_sync_dates_total",
			Help: "Total number of dates processed by reconciliation",
		},
		[]string{"outcome"}, // "created", "updated", "kept", "failed"
	)

	SyncDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "visitor_sync_duration_seconds",
			Help:    "Duration of reconciliation batches in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	SyncLastSuccess = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "visitor_sync_last_success_timestamp_seconds",
			Help: "Unix time of the last batch in which every date reconciled",
		},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)
)

// RecordHit records a counted visitor hit
func RecordHit() {
	VisitorHitsRecorded.Inc()
}

// RecordExcluded records a request skipped by the classifier
func RecordExcluded(reason string) {
	VisitorHitsExcluded.WithLabelValues(reason).Inc()
}

// RecordCounterStoreError records a failed fast counter store operation
func RecordCounterStoreError(operation string) {
	CounterStoreErrors.WithLabelValues(operation).Inc()
}

// RecordSyncDate records the outcome of reconciling one date
func RecordSyncDate(outcome string) {
	SyncDates.WithLabelValues(outcome).Inc()
}

// RecordSyncBatch records a finished reconciliation batch
func RecordSyncBatch(duration time.Duration, failed int) {
	SyncDuration.Observe(duration.Seconds())
	if failed == 0 {
		SyncLastSuccess.SetToCurrentTime()
	}
}
