package pipeline

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Metrics collects run counters into a private registry and pushes them to
// a Pushgateway when the run ends. A nil *Metrics records nothing.
type Metrics struct {
	reg       *prometheus.Registry
	artifacts *prometheus.CounterVec
	records   *prometheus.CounterVec
	stages    *prometheus.HistogramVec
}

// NewMetrics creates and registers the pipeline collectors.
func NewMetrics() (*Metrics, error) {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		artifacts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "inspector_artifacts_total",
			Help: "Artifacts seen by extraction stages, by entity and status.",
		}, []string{"entity", "status"}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "inspector_records_total",
			Help: "Records by entity and kind (extracted, loaded, failed).",
		}, []string{"entity", "kind"}),
		stages: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "inspector_stage_duration_seconds",
			Help:    "Stage run time in seconds, by stage and status.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"stage", "status"}),
	}
	for _, c := range []prometheus.Collector{m.artifacts, m.records, m.stages} {
		if err := m.reg.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register metric: %w", err)
		}
	}
	return m, nil
}

// Artifact counts one artifact outcome: processed, failed or skipped.
func (m *Metrics) Artifact(entity, status string) {
	if m == nil {
		return
	}
	m.artifacts.WithLabelValues(entity, status).Inc()
}

// Records adds n records of a kind.
func (m *Metrics) Records(entity, kind string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.records.WithLabelValues(entity, kind).Add(float64(n))
}

// StageDone observes a stage's duration.
func (m *Metrics) StageDone(stage string, d time.Duration, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.stages.WithLabelValues(stage, status).Observe(d.Seconds())
}

// Gatherer exposes the registry, for tests and scrape handlers.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.reg
}

// Push sends the collected metrics to the Pushgateway at url under job.
func (m *Metrics) Push(url, job string) error {
	if m == nil || url == "" {
		return nil
	}
	if err := push.New(url, job).Gatherer(m.reg).Push(); err != nil {
		return fmt.Errorf("failed to push metrics: %w", err)
	}
	return nil
}
