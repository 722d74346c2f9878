package pipeline

import (
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// Metrics collects per-query counters in a private Prometheus registry.
// The view command dumps it in text exposition format for --stats.
type Metrics struct {
	registry *prometheus.Registry

	queries     *prometheus.CounterVec
	rowsRead    prometheus.Counter
	rowsEmitted prometheus.Counter
	runs        prometheus.Counter
	spillBytes  prometheus.Counter
	mergePasses prometheus.Counter
	maxBuffered prometheus.Gauge
	duration    prometheus.Histogram
}

// NewMetrics creates and registers the query collectors
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "colview",
			Name:      "queries_total",
			Help:      "Queries executed by strategy and outcome",
		}, []string{"strategy", "status"}),
		rowsRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "colview",
			Name:      "rows_read_total",
			Help:      "Rows read from the source after projection",
		}),
		rowsEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "colview",
			Name:      "rows_emitted_total",
			Help:      "Rows written to the output sink",
		}),
		runs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "colview",
			Subsystem: "sort",
			Name:      "runs_spilled_total",
			Help:      "Sorted runs written to the spill directory",
		}),
		spillBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "colview",
			Subsystem: "sort",
			Name:      "spill_bytes_total",
			Help:      "Bytes written to run files, merge passes included",
		}),
		mergePasses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "colview",
			Subsystem: "sort",
			Name:      "merge_passes_total",
			Help:      "Merge passes over spilled runs",
		}),
		maxBuffered: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "colview",
			Subsystem: "sort",
			Name:      "max_buffered_rows",
			Help:      "Peak rows held in memory by the sort engine",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "colview",
			Name:      "query_duration_seconds",
			Help:      "Wall time of a query",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
	}
	m.registry.MustRegister(
		m.queries, m.rowsRead, m.rowsEmitted, m.runs,
		m.spillBytes, m.mergePasses, m.maxBuffered, m.duration,
	)
	return m
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Observe records a finished query
func (m *Metrics) Observe(result *Result, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.queries.WithLabelValues(result.Plan.Strategy.String(), status).Inc()
	m.rowsRead.Add(float64(result.RowsRead))
	m.rowsEmitted.Add(float64(result.RowsEmitted))
	m.runs.Add(float64(result.Sort.Runs))
	m.spillBytes.Add(float64(result.Sort.SpillBytes))
	m.mergePasses.Add(float64(result.Sort.MergePasses))
	if result.Sort.MaxBuffered > 0 {
		m.maxBuffered.Set(float64(result.Sort.MaxBuffered))
	}
	m.duration.Observe(result.Duration.Seconds())
}

// WriteText writes every collected metric in the Prometheus text format
func (m *Metrics) WriteText(w io.Writer) error {
	families, err := m.registry.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}
