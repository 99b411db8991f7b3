// Package metrics records scrape runs in a Prometheus registry and writes it
// in the text exposition format, for node_exporter's textfile collector.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/pable/go-ink-metrics/internal/pipeline"
)

const namespace = "inkmetrics"

// Metrics owns a private registry so repeated runs in one process
// accumulate into the same series.
type Metrics struct {
	reg *prometheus.Registry

	runs        *prometheus.CounterVec
	rows        *prometheus.CounterVec
	failures    *prometheus.CounterVec
	pages       *prometheus.CounterVec
	requests    prometheus.Gauge
	lastRun     prometheus.Gauge
	lastSuccess prometheus.Gauge
	duration    prometheus.Gauge
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Update runs by result.",
		}, []string{"result"}),
		rows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_added_total",
			Help:      "Rows added to the store by step and lobby.",
		}, []string{"step", "lobby"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "failures_total",
			Help:      "Users or battles skipped after a fetch or parse failure.",
		}, []string{"step", "lobby"}),
		pages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "listing_pages_total",
			Help:      "Battle listing pages fetched.",
		}, []string{"lobby"}),
		requests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "requests",
			Help:      "HTTP requests issued by the process so far.",
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished.",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time the last run without failures finished.",
		}),
		duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_duration_seconds",
			Help:      "Wall time of the last run.",
		}),
	}
	m.reg.MustRegister(m.runs, m.rows, m.failures, m.pages, m.requests, m.lastRun, m.lastSuccess, m.duration)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

func result(err error) string {
	var runErr *pipeline.RunError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &runErr):
		return "partial"
	default:
		return "error"
	}
}

// Record adds one run's step reports. requests is the fetcher's running total.
func (m *Metrics) Record(reps []*pipeline.Report, requests int, took time.Duration, err error) {
	for _, r := range reps {
		m.rows.WithLabelValues(r.Step, r.Lobby).Add(float64(r.Added))
		m.failures.WithLabelValues(r.Step, r.Lobby).Add(float64(r.Failed))
		if r.Pages > 0 {
			m.pages.WithLabelValues(r.Lobby).Add(float64(r.Pages))
		}
	}
	res := result(err)
	m.runs.WithLabelValues(res).Inc()
	m.requests.Set(float64(requests))
	m.duration.Set(took.Seconds())
	now := float64(time.Now().Unix())
	m.lastRun.Set(now)
	if res == "ok" {
		m.lastSuccess.Set(now)
	}
}

// WriteTextfile atomically writes the registry to path.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.reg)
}
