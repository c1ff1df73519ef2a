package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all application metrics
type Metrics struct {
	// Event delivery metrics
	EventsPublished   *prometheus.CounterVec
	HandlerDeliveries *prometheus.CounterVec
	HandlerDuration   *prometheus.HistogramVec

	// Dead-letter queue metrics
	DLQEntriesStored prometheus.Counter
	DLQRetries       *prometheus.CounterVec
	DLQDepth         *prometheus.GaugeVec

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Retry sweep worker metrics
	SweepRuns     *prometheus.CounterVec
	SweepDuration prometheus.Histogram
}

// NewMetrics creates and registers all metrics against the given registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := prometheus.WrapRegistererWith(nil, reg)

	m := &Metrics{
		EventsPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_published_total",
				Help:      "Total number of events published by type",
			},
			[]string{"event_type"},
		),
		HandlerDeliveries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "handler_deliveries_total",
				Help:      "Total number of handler deliveries by type and outcome",
			},
			[]string{"event_type", "status"},
		),
		HandlerDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "handler_duration_seconds",
				Help:      "Handler delivery duration in seconds, including retries",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"event_type"},
		),
		DLQEntriesStored: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dlq_entries_stored_total",
				Help:      "Total number of failed deliveries persisted to the DLQ",
			},
		),
		DLQRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dlq_retries_total",
				Help:      "Total number of DLQ retry attempts by result",
			},
			[]string{"result"},
		),
		DLQDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "dlq_depth",
				Help:      "Number of DLQ entries by status",
			},
			[]string{"status"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		SweepRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sweep_runs_total",
				Help:      "Total number of DLQ retry sweep runs by result",
			},
			[]string{"result"},
		),
		SweepDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "sweep_duration_seconds",
				Help:      "DLQ retry sweep duration in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
		),
	}

	// Register all collectors
	factory.MustRegister(
		m.EventsPublished,
		m.HandlerDeliveries,
		m.HandlerDuration,
		m.DLQEntriesStored,
		m.DLQRetries,
		m.DLQDepth,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.SweepRuns,
		m.SweepDuration,
	)

	return m
}
