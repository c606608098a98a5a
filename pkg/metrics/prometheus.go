package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	diagnostics *prometheus.CounterVec
	score       *prometheus.GaugeVec
	errorsTotal *prometheus.CounterVec
	drift       *prometheus.CounterVec
	latency     *prometheus.HistogramVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		diagnostics: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mmdiag_diagnostics_total",
				Help: "Total number of daily diagnostics produced",
			},
			[]string{"instrument", "regime"},
		),
		score: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "mmdiag_unusualness_score",
				Help: "Latest unusualness score per instrument (0-100)",
			},
			[]string{"instrument"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mmdiag_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		drift: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mmdiag_baseline_drift_total",
				Help: "Baseline drift warnings per instrument and feature",
			},
			[]string{"instrument", "feature"},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mmdiag_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordDiagnostic counts a completed diagnostic by assigned regime.
func (r *Recorder) RecordDiagnostic(instrument, regime string) {
	r.diagnostics.WithLabelValues(instrument, regime).Inc()
}

// RecordScore exports the latest unusualness score for an instrument.
func (r *Recorder) RecordScore(instrument string, score float64) {
	r.score.WithLabelValues(instrument).Set(score)
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordDrift counts a baseline drift warning.
func (r *Recorder) RecordDrift(instrument, feature string) {
	r.drift.WithLabelValues(instrument, feature).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
