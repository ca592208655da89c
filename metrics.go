package authorflow

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/authorflow/authorflow/reconcile"
)

// Metrics exposes import counters on a private Prometheus registry.
type Metrics struct {
	registry *prometheus.Registry
	rows     *prometheus.CounterVec
	files    *prometheus.CounterVec
	duration prometheus.Histogram
}

// NewMetrics registers the AuthorFlow collectors on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		rows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authorflow_import_rows_total",
			Help: "Analytics rows processed, by platform and outcome.",
		}, []string{"platform", "outcome"}),
		files: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authorflow_import_files_total",
			Help: "Analytics files processed, by platform and status.",
		}, []string{"platform", "status"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "authorflow_import_duration_seconds",
			Help:    "Time spent reconciling one import request.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	m.registry.MustRegister(
		m.rows,
		m.files,
		m.duration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) observeResult(res reconcile.Result) {
	if m == nil {
		return
	}
	platform := res.Platform
	if res.Unsupported {
		m.files.WithLabelValues("unsupported", "unsupported").Inc()
		m.rows.WithLabelValues("unsupported", "ignored").Add(float64(res.Rows))
		return
	}
	status := "ok"
	if len(res.Failed) > 0 {
		status = "partial"
	}
	m.files.WithLabelValues(platform, status).Inc()
	m.rows.WithLabelValues(platform, "updated").Add(float64(res.Updated))
	m.rows.WithLabelValues(platform, "created").Add(float64(res.Created))
	m.rows.WithLabelValues(platform, "skipped").Add(float64(len(res.Skipped)))
	m.rows.WithLabelValues(platform, "failed").Add(float64(len(res.Failed)))
}

func (m *Metrics) observeDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.duration.Observe(d.Seconds())
}
