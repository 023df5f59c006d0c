package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Ingestion metrics
	eventsReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_events_received_total",
			Help: "Total number of conversion events received",
		},
		[]string{"source", "event_name"},
	)

	eventsRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_events_rejected_total",
			Help: "Total number of events rejected before delivery",
		},
		[]string{"source", "reason"},
	)

	// Identity metrics
	derivationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_identity_derivations_total",
			Help: "Total number of event id derivations by branch",
		},
		[]string{"method"},
	)

	// Delivery metrics
	deliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_deliveries_total",
			Help: "Total number of sink delivery attempts",
		},
		[]string{"source", "outcome"},
	)

	deliveryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bridge_delivery_duration_seconds",
			Help:    "Sink delivery duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"source"},
	)
)

// RecordEventReceived records one inbound event before any processing.
func RecordEventReceived(source, eventName string) {
	eventsReceivedTotal.WithLabelValues(source, eventName).Inc()
}

// RecordEventRejected records an event dropped before delivery.
func RecordEventRejected(source, reason string) {
	eventsRejectedTotal.WithLabelValues(source, reason).Inc()
}

// RecordDerivation records which identity branch produced the event id.
func RecordDerivation(method string) {
	derivationsTotal.WithLabelValues(method).Inc()
}

// RecordDelivery records the outcome of one sink call.
func RecordDelivery(source, outcome string, duration time.Duration) {
	deliveriesTotal.WithLabelValues(source, outcome).Inc()
	deliveryDuration.WithLabelValues(source).Observe(duration.Seconds())
}

// Handler returns the Prometheus scrape endpoint handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
