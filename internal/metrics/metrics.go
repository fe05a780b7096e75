// Package metrics exposes run and per-profile counters to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jonathan/lastseen/internal/recency"
)

const namespace = "lastseen"

// Metrics holds the service's collectors.
type Metrics struct {
	Results       *prometheus.CounterVec
	CheckDuration prometheus.Histogram
	Runs          *prometheus.CounterVec
	RunDuration   prometheus.Histogram
	LastRunTime   prometheus.Gauge
	Running       prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Results: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "profile_results_total",
			Help:      "Profiles checked, by result kind.",
		}, []string{"kind"}),
		CheckDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "profile_check_duration_seconds",
			Help:      "Time to fetch and classify one profile.",
			Buckets:   []float64{0.5, 1, 2, 3, 5, 8, 13, 21, 34},
		}),
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Completed runs, by outcome.",
		}, []string{"outcome"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of a full run.",
			Buckets:   prometheus.ExponentialBuckets(5, 2, 10),
		}),
		LastRunTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run.",
		}),
		Running: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_in_progress",
			Help:      "1 while a run is in progress.",
		}),
	}
	reg.MustRegister(m.Results, m.CheckDuration, m.Runs, m.RunDuration, m.LastRunTime, m.Running)
	return m
}

// Observe records one processed profile. It satisfies batch.Observer.
func (m *Metrics) Observe(_ int, _ string, entry recency.Entry, elapsed time.Duration) {
	m.Results.WithLabelValues(entry.Kind.String()).Inc()
	m.CheckDuration.Observe(elapsed.Seconds())
}

// RunStarted marks a run as in progress.
func (m *Metrics) RunStarted() {
	m.Running.Set(1)
}

// RunFinished records a run's outcome. err nil counts as success.
func (m *Metrics) RunFinished(started time.Time, err error) {
	m.Running.Set(0)
	m.RunDuration.Observe(time.Since(started).Seconds())
	if err != nil {
		m.Runs.WithLabelValues("failure").Inc()
		return
	}
	m.Runs.WithLabelValues("success").Inc()
	m.LastRunTime.SetToCurrentTime()
}
