// Package telemetry exposes Prometheus metrics for pipeline runs.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "healthlytics"

// Metrics groups the pipeline collectors.
type Metrics struct {
	Runs          *prometheus.CounterVec
	StageDuration *prometheus.HistogramVec
	StageFailures *prometheus.CounterVec
	RowsProcessed prometheus.Counter
	Uploaded      prometheus.Counter
	LastRun       prometheus.Gauge
}

// NewMetrics creates the collectors and registers them on reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Completed pipeline runs by final status.",
		}, []string{"status"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Pipeline stage wall time in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 14),
		}, []string{"stage"}),
		StageFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_failures_total",
			Help:      "Pipeline stages that returned an error or panicked.",
		}, []string{"stage"}),
		RowsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "summaries_persisted_total",
			Help:      "Per-user summaries written to the run store.",
		}),
		Uploaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "artifacts_uploaded_total",
			Help:      "Artifact files uploaded to object storage.",
		}),
		LastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the most recent run finished.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Runs, m.StageDuration, m.StageFailures, m.RowsProcessed, m.Uploaded, m.LastRun)
	}
	return m
}

// ObserveStage records one stage execution. Safe on a nil receiver.
func (m *Metrics) ObserveStage(stage string, elapsed time.Duration, failed bool) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
	if failed {
		m.StageFailures.WithLabelValues(stage).Inc()
	}
}

// ObserveRun records a finished run. Safe on a nil receiver.
func (m *Metrics) ObserveRun(status string, rows, uploaded int, finishedAt time.Time) {
	if m == nil {
		return
	}
	m.Runs.WithLabelValues(status).Inc()
	m.RowsProcessed.Add(float64(rows))
	m.Uploaded.Add(float64(uploaded))
	m.LastRun.Set(float64(finishedAt.Unix()))
}
