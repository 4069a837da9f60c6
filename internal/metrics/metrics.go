// Package metrics provides Prometheus metrics for digest runs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "digestranker"

// Run outcomes used as the status label.
const (
	StatusOK     = "ok"
	StatusEmpty  = "empty"
	StatusFailed = "failed"
)

// Metrics groups the collectors of one registry.
type Metrics struct {
	registry *prometheus.Registry

	RunsTotal       *prometheus.CounterVec
	RunDuration     *prometheus.HistogramVec
	StageCandidates *prometheus.GaugeVec
	LLMCalls        *prometheus.CounterVec
	DigestSize      *prometheus.GaugeVec
	CollectedTotal  *prometheus.CounterVec
}

// New registers every collector on a fresh registry, plus the Go and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		RunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Total number of pipeline runs",
			},
			[]string{"topic", "status"},
		),
		RunDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Duration of pipeline runs in seconds",
				Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"topic"},
		),
		StageCandidates: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "stage_candidates",
				Help:      "Candidates leaving each stage of the last run",
			},
			[]string{"topic", "stage"},
		),
		LLMCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "llm_calls_total",
				Help:      "LLM rerank calls by outcome",
			},
			[]string{"topic", "outcome"},
		),
		DigestSize: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "digest_size",
				Help:      "Entries in the last digest",
			},
			[]string{"topic"},
		),
		CollectedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "collected_total",
				Help:      "Candidates newly stored by collect",
			},
			[]string{"topic"},
		),
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordRun records the outcome and duration of one topic run.
func (m *Metrics) RecordRun(topic, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(topic, status).Inc()
	m.RunDuration.WithLabelValues(topic).Observe(duration.Seconds())
}

// SetStage records how many candidates left a stage.
func (m *Metrics) SetStage(topic, stage string, n int) {
	if m == nil {
		return
	}
	m.StageCandidates.WithLabelValues(topic, stage).Set(float64(n))
}

// RecordLLM adds rerank call outcomes.
func (m *Metrics) RecordLLM(topic string, scored, rejected, failed int) {
	if m == nil {
		return
	}
	m.LLMCalls.WithLabelValues(topic, "scored").Add(float64(scored))
	m.LLMCalls.WithLabelValues(topic, "rejected").Add(float64(rejected))
	m.LLMCalls.WithLabelValues(topic, "failed").Add(float64(failed))
}

// SetDigestSize records the size of the digest just built.
func (m *Metrics) SetDigestSize(topic string, n int) {
	if m == nil {
		return
	}
	m.DigestSize.WithLabelValues(topic).Set(float64(n))
}

// RecordCollected adds newly stored candidates.
func (m *Metrics) RecordCollected(topic string, n int) {
	if m == nil {
		return
	}
	m.CollectedTotal.WithLabelValues(topic).Add(float64(n))
}
