// Package metrics exposes the hub's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsReceived counts intake calls by outcome (created/duplicate/error)
	EventsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "integracoes_events_received_total",
		Help: "Total number of events submitted to the hub",
	}, []string{"event_type", "source_system", "outcome"})

	// DeliveriesTotal counts webhook delivery attempts by result
	DeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "integracoes_webhook_deliveries_total",
		Help: "Total number of webhook delivery attempts",
	}, []string{"system", "result"})

	DeliveryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "integracoes_webhook_delivery_duration_seconds",
		Help:    "Duration of outbound webhook calls in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"system"})

	// RetriesScheduled counts failures handed to the retry scheduler
	RetriesScheduled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "integracoes_retries_scheduled_total",
		Help: "Total number of retries scheduled",
	})

	DeadLettered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "integracoes_dead_lettered_total",
		Help: "Total number of events moved to the dead-letter queue",
	}, []string{"event_type"})

	// CircuitState is 0 closed, 1 half_open, 2 open
	CircuitState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "integracoes_circuit_state",
		Help: "Circuit breaker state per downstream system (0 closed, 1 half_open, 2 open)",
	}, []string{"system"})

	SyncItems = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "integracoes_sync_items_total",
		Help: "Total number of items processed by sync jobs",
	}, []string{"job_type", "result"})

	SyncJobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "integracoes_sync_job_duration_seconds",
		Help:    "Duration of sync job runs in seconds",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300},
	}, []string{"job_type"})

	// Gauges below are refreshed by the monitor worker

	PendingEvents = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "integracoes_pending_events",
		Help: "Current number of events waiting to be routed",
	})

	RetryQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "integracoes_retry_queue_depth",
		Help: "Current number of events in the retry queue",
	})

	DeadLetters = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "integracoes_dead_letters",
		Help: "Current number of unreplayed dead letters",
	})

	DeliveryErrorRate = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "integracoes_delivery_error_rate_percent",
		Help: "Failed share of finished deliveries over the monitor period",
	})

	ActiveAlerts = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "integracoes_active_alerts",
		Help: "Number of active alerts by level",
	}, []string{"level"})

	// QueueHealthy is 1 while the dispatch broker connection is up
	QueueHealthy = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "integracoes_queue_healthy",
		Help: "Dispatch queue health (1 healthy, 0 unhealthy)",
	})
)

// CircuitStateValue maps a breaker state name to the CircuitState gauge value.
func CircuitStateValue(state string) float64 {
	switch state {
	case "open":
		return 2
	case "half_open":
		return 1
	default:
		return 0
	}
}
