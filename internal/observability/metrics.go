package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "wildfire_imputer"

// Metrics holds the Prometheus counters, histograms, and gauges for the
// imputation engine and the streaming pipeline.
type Metrics struct {
	// Engine metrics.
	Imputations       *prometheus.CounterVec // labels: outcome={success,error}
	ImputeDuration    prometheus.Histogram
	NeighborPoolSize  prometheus.Histogram
	GeoFallbacks      prometheus.Counter
	IndexCache        *prometheus.CounterVec // labels: result={hit,miss}
	UnknownAttributes prometheus.Counter
	ArtifactLoaded    prometheus.Gauge

	// Pipeline metrics.
	MessagesConsumed prometheus.Counter
	MessagesProduced prometheus.Counter
	TransformErrors  prometheus.Counter
	PipelineRunning  prometheus.Gauge

	BatchSize               prometheus.Histogram
	BatchProcessingDuration prometheus.Histogram
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.Imputations,
		m.ImputeDuration,
		m.NeighborPoolSize,
		m.GeoFallbacks,
		m.IndexCache,
		m.UnknownAttributes,
		m.ArtifactLoaded,
		m.MessagesConsumed,
		m.MessagesProduced,
		m.TransformErrors,
		m.PipelineRunning,
		m.BatchSize,
		m.BatchProcessingDuration,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests or one-shot
// CLI commands.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		Imputations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "imputations_total",
			Help:      "Imputation calls by outcome.",
		}, []string{"outcome"}),
		ImputeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "impute_duration_seconds",
			Help:      "Duration of a single imputation call.",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),
		NeighborPoolSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "neighbor_pool_size",
			Help:      "Number of reference records eligible as neighbors after geo filtering.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
		}),
		GeoFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geo_fallback_total",
			Help:      "Geo-constrained calls that fell back to the full corpus.",
		}),
		IndexCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "index_cache_total",
			Help:      "Geo neighbor index cache lookups by result.",
		}, []string{"result"}),
		UnknownAttributes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unknown_attributes_total",
			Help:      "Input attributes ignored because the schema does not declare them.",
		}),
		ArtifactLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "artifact_loaded",
			Help:      "1 once the trained imputer artifact is resident in memory.",
		}),
		MessagesConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_consumed_total",
			Help:      "Total messages read from the source topic.",
		}),
		MessagesProduced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_produced_total",
			Help:      "Total messages written to the sink topic.",
		}),
		TransformErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transform_errors_total",
			Help:      "Total messages that failed imputation.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 when the pipeline is active, 0 when shut down.",
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      "Number of messages per batch extracted from Kafka.",
			Buckets:   []float64{1, 5, 10, 20, 30, 40, 50, 75, 100},
		}),
		BatchProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_processing_duration_seconds",
			Help:      "Duration of a complete batch extract-impute-load cycle.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		}),
	}
}
