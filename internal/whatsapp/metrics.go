package whatsapp

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics holds the Prometheus instrumentation for the webhook server.
type Metrics struct {
	Registry       *prometheus.Registry
	EventsTotal    *prometheus.CounterVec
	HandleDuration prometheus.Histogram
	RequestsTotal  *prometheus.CounterVec
}

// NewMetrics builds a self-contained registry so the /metrics endpoint
// exposes only this process's series.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())

	eventsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whatsapp_events_total",
			Help: "Inbound webhook events by outcome",
		},
		[]string{"outcome"},
	)
	handleDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "whatsapp_handle_duration_seconds",
			Help:    "End-to-end event handling duration",
			Buckets: prometheus.DefBuckets,
		},
	)
	requestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by method, path and status",
		},
		[]string{"method", "path", "status"},
	)

	registry.MustRegister(eventsTotal, handleDuration, requestsTotal)

	return &Metrics{
		Registry:       registry,
		EventsTotal:    eventsTotal,
		HandleDuration: handleDuration,
		RequestsTotal:  requestsTotal,
	}
}
