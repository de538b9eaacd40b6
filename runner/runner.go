// Package runner drives a definitions file through an experiment.
package runner

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/snow-ghost/trials/config"
	"github.com/snow-ghost/trials/definitions"
	"github.com/snow-ghost/trials/experiment"
	"github.com/snow-ghost/trials/pkg/metrics"
	"github.com/snow-ghost/trials/report"
)

// TrainFunc trains one trial and records what it produced in results.
type TrainFunc func(ctx context.Context, trial *experiment.Trial, results *experiment.ResultSlots) error

// Runner runs experiments with a shared configuration, logger and metrics registry.
type Runner struct {
	cfg      *config.Config
	logger   *zap.Logger
	registry *prometheus.Registry
	metrics  *metrics.ExperimentMetrics
	extra    []experiment.Option
}

// New creates a runner. Extra options are applied after the ones derived from cfg.
func New(cfg *config.Config, logger *zap.Logger, opts ...experiment.Option) *Runner {
	if cfg == nil {
		cfg = config.LoadConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	reg := prometheus.NewRegistry()
	return &Runner{
		cfg:      cfg,
		logger:   logger,
		registry: reg,
		metrics:  metrics.NewExperimentMetrics(reg),
		extra:    opts,
	}
}

// Registry returns the registry holding the runner's metrics.
func (r *Runner) Registry() *prometheus.Registry {
	return r.registry
}

func (r *Runner) experimentOptions() []experiment.Option {
	opts := []experiment.Option{
		experiment.WithLogger(r.logger),
		experiment.WithMetrics(r.metrics),
		experiment.WithSortMetric(r.cfg.SortMetric),
		experiment.WithReporter(report.FileReporter{FileName: r.cfg.ReportFile}),
	}
	return append(opts, r.extra...)
}

// Run opens the experiment described by defs and runs every trial of its
// stream through train. The first error aborts the experiment.
func (r *Runner) Run(ctx context.Context, defs *definitions.Definitions, train TrainFunc) error {
	def := defs.Experiment
	err := experiment.Run(ctx, def.Directory, def.Name, def.Description, func(e *experiment.Experiment) error {
		for d, ok := defs.Trials.Next(); ok; d, ok = defs.Trials.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			r.logger.Info("Running trial",
				zap.String("experiment", def.Name),
				zap.String("trial", d.Name),
				zap.Int("remaining", defs.Trials.Remaining()),
			)
			err := e.RunTrial(d.Name, "", d.Hyperparameters, func(t *experiment.Trial) error {
				return train(t.Context(), t, e.Results())
			})
			if err != nil {
				return fmt.Errorf("trial %s: %w", d.Name, err)
			}
		}
		return defs.Trials.Err()
	}, r.experimentOptions()...)

	if r.cfg.MetricsFile != "" {
		if werr := metrics.WriteTextfile(r.cfg.MetricsFile, r.registry); werr != nil {
			err = errors.Join(err, fmt.Errorf("failed to write metrics: %w", werr))
		}
	}
	return err
}

// RegenerateAll rebuilds the reports of several experiment directories,
// at most cfg.ReportWorkers at a time.
func (r *Runner) RegenerateAll(ctx context.Context, dirs []string) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(r.cfg.ReportWorkers, 1))

	opts := r.experimentOptions()
	for _, dir := range dirs {
		dir := dir
		g.Go(func() error {
			if err := experiment.Regenerate(ctx, dir, opts...); err != nil {
				return fmt.Errorf("%s: %w", dir, err)
			}
			return nil
		})
	}
	return g.Wait()
}
