// Package telemetry exposes the honeypot's Prometheus metrics.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "honeypot"

// Metrics holds all honeypot collectors. Each instance owns its registry so
// tests can build as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	Requests         *prometheus.CounterVec
	ScamDetections   prometheus.Counter
	Stages           *prometheus.CounterVec
	Callbacks        *prometheus.CounterVec
	TaskFailures     *prometheus.CounterVec
	ActiveSessions   prometheus.Gauge
	EvictedSessions  prometheus.Counter
	ScamConfidence   prometheus.Histogram
	TranscriptWrites *prometheus.CounterVec
}

// NewMetrics creates and registers all collectors on a fresh registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Inbound messages by handling outcome",
		}, []string{"outcome"}),
		ScamDetections: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scam_detections_total",
			Help:      "Messages classified as scam",
		}),
		Stages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "replies_by_stage_total",
			Help:      "Persona replies by conversation stage",
		}, []string{"stage"}),
		Callbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "callbacks_total",
			Help:      "Result callbacks by delivery result",
		}, []string{"result"}),
		TaskFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "background_task_failures_total",
			Help:      "Background tasks that returned an error or panicked",
		}, []string{"task"}),
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Sessions currently held in memory",
		}),
		EvictedSessions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evicted_sessions_total",
			Help:      "Sessions removed by the idle sweep",
		}),
		ScamConfidence: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scam_confidence",
			Help:      "Classifier confidence per message",
			Buckets:   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 0.95},
		}),
		TranscriptWrites: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcript_writes_total",
			Help:      "Transcript snapshots written per sink and result",
		}, []string{"sink", "result"}),
	}
}

// Handler returns the /metrics handler for this registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests and extra collectors
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// TaskFailed records a failed background task
func (m *Metrics) TaskFailed(task string) {
	m.TaskFailures.WithLabelValues(task).Inc()
}
