package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Trial outcomes recorded in TrialsTotal.
const (
	OutcomePersisted   = "persisted"
	OutcomeOverwritten = "overwritten"
	OutcomeSkipped     = "skipped_rerun"
	OutcomeEmpty       = "empty"
	OutcomeFailed      = "failed"
)

// ExperimentMetrics holds the Prometheus collectors of the experiment engine.
// A nil *ExperimentMetrics records nothing.
type ExperimentMetrics struct {
	// Trial metrics
	TrialsTotal         *prometheus.CounterVec
	TrialDuration       *prometheus.HistogramVec
	HyperparamFallbacks prometheus.Counter

	// Experiment metrics
	ExperimentsTotal   *prometheus.CounterVec
	ExperimentDuration prometheus.Histogram
	ReportsWritten     prometheus.Counter
}

// NewExperimentMetrics creates the collectors and registers them on reg.
func NewExperimentMetrics(reg prometheus.Registerer) *ExperimentMetrics {
	factory := promauto.With(reg)
	return &ExperimentMetrics{
		TrialsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trials_closed_total",
				Help: "Total number of closed trials by outcome",
			},
			[]string{"experiment", "outcome"},
		),

		TrialDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "trial_duration_seconds",
				Help:    "Duration of trial scopes in seconds",
				Buckets: prometheus.ExponentialBuckets(1, 4, 10),
			},
			[]string{"experiment"},
		),

		HyperparamFallbacks: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "trial_hyperparameter_fallbacks_total",
				Help: "Trials persisted with null hyperparameters because they could not be encoded",
			},
		),

		ExperimentsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "experiments_closed_total",
				Help: "Total number of closed experiments by status",
			},
			[]string{"status"},
		),

		ExperimentDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "experiment_duration_seconds",
				Help:    "Duration of experiment scopes in seconds",
				Buckets: prometheus.ExponentialBuckets(1, 4, 12),
			},
		),

		ReportsWritten: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "experiment_reports_written_total",
				Help: "Total number of experiment reports written",
			},
		),
	}
}

// RecordTrial records the outcome and duration of a closed trial
func (m *ExperimentMetrics) RecordTrial(experiment, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.TrialsTotal.WithLabelValues(experiment, outcome).Inc()
	m.TrialDuration.WithLabelValues(experiment).Observe(duration.Seconds())
}

// RecordHyperparamFallback records a trial written without hyperparameters
func (m *ExperimentMetrics) RecordHyperparamFallback() {
	if m == nil {
		return
	}
	m.HyperparamFallbacks.Inc()
}

// RecordExperiment records a closed experiment; status is "ok" or "fault"
func (m *ExperimentMetrics) RecordExperiment(status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.ExperimentsTotal.WithLabelValues(status).Inc()
	m.ExperimentDuration.Observe(duration.Seconds())
}

// RecordReport records a written report
func (m *ExperimentMetrics) RecordReport() {
	if m == nil {
		return
	}
	m.ReportsWritten.Inc()
}

// WriteTextfile dumps everything gathered by g in the node_exporter textfile format
func WriteTextfile(path string, g prometheus.Gatherer) error {
	return prometheus.WriteToTextfile(path, g)
}
