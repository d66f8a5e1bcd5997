// internal/metrics/metrics.go
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus instruments of the service.
type Metrics struct {
	registry *prometheus.Registry

	RequestsProcessed *prometheus.CounterVec
	ReposProcessed    *prometheus.CounterVec
	RequestDuration   prometheus.Histogram
	IngestDuration    prometheus.Histogram
	CommitsIngested   prometheus.Counter
}

// New creates a Metrics set backed by its own registry so tests can
// instantiate it repeatedly.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		RequestsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "analytics_requests_processed_total",
			Help: "Analytics requests finished, by terminal status.",
		}, []string{"status"}),
		ReposProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "analytics_repositories_processed_total",
			Help: "Repositories processed inside analytics requests, by outcome.",
		}, []string{"outcome"}),
		RequestDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "analytics_request_duration_seconds",
			Help:    "Wall time spent processing one analytics request.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
		IngestDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ingestion_duration_seconds",
			Help:    "Wall time spent ingesting one repository.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		}),
		CommitsIngested: factory.NewCounter(prometheus.CounterOpts{
			Name: "commits_ingested_total",
			Help: "New commit rows inserted by ingestion.",
		}),
	}
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
