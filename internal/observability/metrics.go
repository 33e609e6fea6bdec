package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "disaster_response"

// Metrics holds the Prometheus collectors shared by the hub, aggregator,
// ingestion pipeline and alert dispatcher.
type Metrics struct {
	// Broadcast hub.
	OpenConnections prometheus.Gauge
	EventsDelivered prometheus.Counter
	WriteFailures   prometheus.Counter
	PublishDuration prometheus.Histogram

	// Ingestion.
	ReportsIngested *prometheus.CounterVec // labels: outcome={stored,validation_error,persistence_error}
	PublishErrors   *prometheus.CounterVec // labels: publisher

	// Geodata providers.
	ProviderRequests *prometheus.CounterVec   // labels: provider, outcome={success,unreachable,invalid_response,rate_limited,timeout}
	ProviderDuration *prometheus.HistogramVec // labels: provider
	AggregateCache   *prometheus.CounterVec   // labels: result={hit,miss}

	// SMS alerts.
	AlertsSent *prometheus.CounterVec // labels: outcome={sent,error,dropped}
}

func newMetrics() *Metrics {
	return &Metrics{
		OpenConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "hub_open_connections",
			Help:      "Live viewer connections currently registered with the hub.",
		}),
		EventsDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hub_events_delivered_total",
			Help:      "Events written successfully to a live connection.",
		}),
		WriteFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hub_write_failures_total",
			Help:      "Event writes that failed and closed the connection.",
		}),
		PublishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "hub_publish_duration_seconds",
			Help:      "Time for one publish to settle across all open connections.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
		}),
		ReportsIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_ingested_total",
			Help:      "Report submissions by outcome.",
		}, []string{"outcome"}),
		PublishErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_errors_total",
			Help:      "Best-effort publish failures after a report was stored.",
		}, []string{"publisher"}),
		ProviderRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_requests_total",
			Help:      "Geodata provider calls by provider and outcome.",
		}, []string{"provider", "outcome"}),
		ProviderDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_duration_seconds",
			Help:      "Geodata provider call duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"provider"}),
		AggregateCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "aggregate_cache_total",
			Help:      "Aggregated view cache lookups by result.",
		}, []string{"result"}),
		AlertsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_sent_total",
			Help:      "SMS alerts by outcome.",
		}, []string{"outcome"}),
	}
}

// NewMetrics creates all collectors and registers them with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting returns unregistered collectors so tests can build
// as many as they like.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.OpenConnections,
		m.EventsDelivered,
		m.WriteFailures,
		m.PublishDuration,
		m.ReportsIngested,
		m.PublishErrors,
		m.ProviderRequests,
		m.ProviderDuration,
		m.AggregateCache,
		m.AlertsSent,
	}
}
