package experiment

import (
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/snow-ghost/trials/pkg/metrics"
	"github.com/snow-ghost/trials/record"
	"github.com/snow-ghost/trials/report"
)

const (
	// DefaultSortMetric orders trials when no other metric is configured.
	DefaultSortMetric = "accuracy"

	tracerName = "github.com/snow-ghost/trials/experiment"
)

// Reporter regenerates the human readable report of an experiment.
type Reporter interface {
	Report(info record.ExperimentInfo, trials []record.TrialRecord) error
}

type options struct {
	logger         *zap.Logger
	metrics        *metrics.ExperimentMetrics
	tracerProvider trace.TracerProvider
	reporter       Reporter
	sortMetric     string
	source         ResultSource
	now            func() time.Time
}

// Option configures Open and Regenerate.
type Option func(*options)

func defaultOptions() options {
	return options{
		logger:         zap.NewNop(),
		tracerProvider: otel.GetTracerProvider(),
		reporter:       report.FileReporter{FileName: report.DefaultFileName},
		sortMetric:     DefaultSortMetric,
		now:            time.Now,
	}
}

func buildOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func WithMetrics(m *metrics.ExperimentMetrics) Option {
	return func(o *options) { o.metrics = m }
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		if tp != nil {
			o.tracerProvider = tp
		}
	}
}

func WithReporter(r Reporter) Option {
	return func(o *options) {
		if r != nil {
			o.reporter = r
		}
	}
}

// WithSortMetric sets the evaluation metric trials are ranked by on close.
func WithSortMetric(metric string) Option {
	return func(o *options) {
		if metric != "" {
			o.sortMetric = metric
		}
	}
}

// WithResultSource lets external training code own the result slots. The
// experiment then never resets them between trials.
func WithResultSource(src ResultSource) Option {
	return func(o *options) { o.source = src }
}

// WithClock replaces time.Now for start times and durations.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}
