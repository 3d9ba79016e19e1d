// Package metrics defines the Prometheus collectors shared by the batch
// pipeline and the query path.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every collector the service exports.
type Metrics struct {
	// pipeline
	BatchesProcessed *prometheus.CounterVec
	AddressesTotal   *prometheus.CounterVec
	BatchRetries     prometheus.Counter
	RequestSeconds   *prometheus.HistogramVec
	ActiveWorkers    prometheus.Gauge
	Checkpoints      prometheus.Counter

	// query path
	SearchRequests  *prometheus.CounterVec
	ResolverLookups *prometheus.CounterVec
}

// NewMetrics registers the collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		BatchesProcessed: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "votergeo_batches_processed_total",
			Help: "Total number of geocoding batches finished, by outcome.",
		}, []string{"status"}),
		AddressesTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "votergeo_addresses_total",
			Help: "Unique addresses seen by the pipeline, by outcome.",
		}, []string{"outcome"}),
		BatchRetries: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "votergeo_batch_retries_total",
			Help: "Total number of batch submissions that were retried.",
		}),
		RequestSeconds: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "votergeo_provider_request_duration_seconds",
			Help:    "Duration of requests to the geocoding provider.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 60, 120, 180},
		}, []string{"provider"}),
		ActiveWorkers: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "votergeo_active_workers",
			Help: "Current number of workers submitting a batch.",
		}),
		Checkpoints: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "votergeo_cache_checkpoints_total",
			Help: "Total number of cache checkpoints written.",
		}),
		SearchRequests: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "votergeo_search_requests_total",
			Help: "Nearby-voter searches, by resolution mode.",
		}, []string{"mode"}),
		ResolverLookups: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "votergeo_resolver_lookups_total",
			Help: "Query-time address resolutions, by result.",
		}, []string{"result"}),
	}
}

// NewUnregistered returns Metrics backed by a private registry, for callers
// that do not export metrics.
func NewUnregistered() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}
