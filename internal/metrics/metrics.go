package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for Funnelsight.
type Metrics struct {
	// Report metrics
	ReportRequests *prometheus.CounterVec
	ReportDuration prometheus.Histogram

	// Day cache metrics
	DayCacheHits   prometheus.Counter
	DayCacheMisses prometheus.Counter

	// External API metrics
	ExternalCalls   *prometheus.CounterVec
	ExternalLatency *prometheus.HistogramVec

	// Collector metrics
	EventsCollected *prometheus.CounterVec

	// Attribution metrics
	PurchasesAttributed prometheus.Counter
	PurchasesUnresolved prometheus.Counter
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ReportRequests: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "report_requests_total",
				Help:      "Total number of report requests by result",
			},
			[]string{"status"},
		),
		ReportDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "report_duration_seconds",
				Help:      "Wall time of full report computations",
				Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
		),
		DayCacheHits: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "day_cache_hits_total",
				Help:      "Persisted day-cache entries reused",
			},
		),
		DayCacheMisses: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "day_cache_misses_total",
				Help:      "Days fetched fresh from the ad platform and FX API",
			},
		),
		ExternalCalls: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "external_calls_total",
				Help:      "Outbound API calls by target and result",
			},
			[]string{"api", "status"},
		),
		ExternalLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "external_call_duration_seconds",
				Help:      "Latency of outbound API calls",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"api"},
		),
		EventsCollected: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_collected_total",
				Help:      "Tracking events accepted by the collector, by type",
			},
			[]string{"type"},
		),
		PurchasesAttributed: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "purchases_attributed_total",
				Help:      "Purchases with at least one resolvable touchpoint",
			},
		),
		PurchasesUnresolved: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "purchases_unresolved_total",
				Help:      "Purchases dropped from attribution for lack of touchpoints",
			},
		),
	}
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveExternalCall records one outbound API call.
func (m *Metrics) ObserveExternalCall(api, status string, elapsed time.Duration) {
	m.ExternalCalls.WithLabelValues(api, status).Inc()
	m.ExternalLatency.WithLabelValues(api).Observe(elapsed.Seconds())
}
