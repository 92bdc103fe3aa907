// Package metrics defines the prometheus instruments for the dispatch
// subsystem.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	EventsDispatchedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hookrelay_events_dispatched_total",
			Help: "Total number of events dispatched, by event type.",
		},
		[]string{"event_type"},
	)

	DeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hookrelay_deliveries_total",
			Help: "Total number of delivery attempts by terminal status.",
		},
		[]string{"status"}, // success, failed
	)

	RetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hookrelay_retries_total",
			Help: "Total number of scheduled retries by failure reason.",
		},
		[]string{"reason"}, // http_5xx, timeout, connection_refused
	)

	DLQTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hookrelay_dlq_total",
			Help: "Total number of payloads moved to the dead-letter store.",
		},
	)

	DLQRejectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hookrelay_dlq_rejected_total",
			Help: "Total number of payloads dropped because the dead-letter store was full.",
		},
	)

	DeliveryLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hookrelay_delivery_latency_seconds",
			Help:    "Outbound webhook request latency.",
			Buckets: prometheus.DefBuckets,
		},
	)

	PendingRetries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hookrelay_pending_retries",
			Help: "Number of retry timers currently outstanding.",
		},
	)
)

// MustRegister registers all subsystem collectors on reg.
func MustRegister(reg *prometheus.Registry) {
	reg.MustRegister(
		EventsDispatchedTotal,
		DeliveriesTotal,
		RetriesTotal,
		DLQTotal,
		DLQRejectedTotal,
		DeliveryLatency,
		PendingRetries,
	)
}

// RecordDelivery records a delivery attempt outcome and its latency.
func RecordDelivery(status string, latency time.Duration) {
	DeliveriesTotal.WithLabelValues(status).Inc()
	DeliveryLatency.Observe(latency.Seconds())
}
