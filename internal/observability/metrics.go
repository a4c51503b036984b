package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "covidmap"

// Metrics holds the Prometheus counters, histograms, and gauges for a pipeline run.
type Metrics struct {
	RunRunning   prometheus.Gauge
	RunSucceeded prometheus.Gauge
	StageErrors  *prometheus.CounterVec   // labels: stage
	StageSeconds *prometheus.HistogramVec // labels: stage

	// Source metrics.
	FetchBytes    *prometheus.CounterVec   // labels: source
	FetchDuration *prometheus.HistogramVec // labels: source
	CacheLoads    *prometheus.CounterVec   // labels: source, result={hit,refresh}
	RecordsRead   *prometheus.CounterVec   // labels: source, outcome={accepted,dropped}

	// Grid metrics.
	GridRows         prometheus.Gauge
	UnmatchedCodes   prometheus.Gauge
	DuplicateRecords prometheus.Gauge
	FramesRendered   prometheus.Counter
	FrameRenderTime  prometheus.Histogram
	RowsPublished    prometheus.Counter
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.RunRunning,
		m.RunSucceeded,
		m.StageErrors,
		m.StageSeconds,
		m.FetchBytes,
		m.FetchDuration,
		m.CacheLoads,
		m.RecordsRead,
		m.GridRows,
		m.UnmatchedCodes,
		m.DuplicateRecords,
		m.FramesRendered,
		m.FrameRenderTime,
		m.RowsPublished,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		RunRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_running",
			Help:      "1 while a pipeline run is in progress.",
		}),
		RunSucceeded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_succeeded",
			Help:      "1 after the last run completed without error.",
		}),
		StageErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_errors_total",
			Help:      "Fatal errors by pipeline stage.",
		}, []string{"stage"}),
		StageSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Wall time spent in each pipeline stage.",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 15, 60, 300, 900},
		}, []string{"stage"}),
		FetchBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_bytes_total",
			Help:      "Bytes downloaded by source.",
		}, []string{"source"}),
		FetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Download duration by source.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"source"}),
		CacheLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_loads_total",
			Help:      "Source loads by cache result.",
		}, []string{"source", "result"}),
		RecordsRead: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_read_total",
			Help:      "Source records decoded, by outcome.",
		}, []string{"source", "outcome"}),
		GridRows: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "grid_rows",
			Help:      "Rows in the reconciled municipality x date grid.",
		}),
		UnmatchedCodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "grid_unmatched_codes",
			Help:      "Municipality codes with case data but no geometry.",
		}),
		DuplicateRecords: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "grid_duplicate_observations",
			Help:      "Case observations that replaced an earlier one for the same municipality and date.",
		}),
		FramesRendered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_rendered_total",
			Help:      "Map frames rendered.",
		}),
		FrameRenderTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "frame_render_duration_seconds",
			Help:      "Time to render and sink one frame.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}),
		RowsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_published_total",
			Help:      "Grid rows published to Kafka.",
		}),
	}
}
