package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters and histograms for ingestion,
// analysis and the advisory cache.
type Metrics struct {
	IngestRuns    *prometheus.CounterVec // labels: outcome={success,failure}
	RecordsStored prometheus.Counter

	AnalysisRuns      *prometheus.CounterVec // labels: outcome={success,failure}
	AlertsCreated     prometheus.Counter
	InferenceDuration prometheus.Histogram

	AdvisoryCache *prometheus.CounterVec // labels: result={hit,miss}
}

func newMetrics() *Metrics {
	return &Metrics{
		IngestRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "weather_risk",
			Name:      "ingest_runs_total",
			Help:      "Fleet-wide ingestion runs by outcome.",
		}, []string{"outcome"}),
		RecordsStored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "weather_risk",
			Name:      "records_stored_total",
			Help:      "New unique weather records inserted into the time-series store.",
		}),
		AnalysisRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "weather_risk",
			Name:      "analysis_runs_total",
			Help:      "Fleet-wide analysis runs by outcome.",
		}, []string{"outcome"}),
		AlertsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "weather_risk",
			Name:      "alerts_created_total",
			Help:      "Validated risk alerts persisted.",
		}),
		InferenceDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "weather_risk",
			Name:      "inference_duration_seconds",
			Help:      "Duration of a single inference call.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300},
		}),
		AdvisoryCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "weather_risk",
			Name:      "advisory_cache_total",
			Help:      "Hot advisory cache lookups by result.",
		}, []string{"result"}),
	}
}

// NewMetrics creates and registers all metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.IngestRuns,
		m.RecordsStored,
		m.AnalysisRuns,
		m.AlertsCreated,
		m.InferenceDuration,
		m.AdvisoryCache,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, so
// multiple tests do not trip "already registered" panics.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}
