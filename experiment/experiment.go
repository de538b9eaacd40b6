// Package experiment records experiments and their trials on disk.
//
// An Experiment is a scope: Open creates (or re-opens) its directory and loads
// the trials already persisted there, Close writes experiment_info.json, ranks
// the trials and regenerates the report. Trials are scopes nested inside it and
// decide on Close whether their results are kept, skipped or replace an older
// run of the same name.
package experiment

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/snow-ghost/trials/pkg/logging"
	"github.com/snow-ghost/trials/pkg/metrics"
	"github.com/snow-ghost/trials/pkg/tracing"
	"github.com/snow-ghost/trials/record"
)

// Experiment is a named campaign of trials sharing one directory and report.
// It is not safe for concurrent use.
type Experiment struct {
	info   record.ExperimentInfo
	trials []record.TrialRecord

	slots  *ResultSlots
	source ResultSource

	reporter   Reporter
	sortMetric string
	logger     *zap.Logger
	metrics    *metrics.ExperimentMetrics
	tracer     trace.Tracer
	now        func() time.Time

	ctx       context.Context
	span      trace.Span
	openTrial *Trial
	closed    bool
}

// Open enters the scope of an experiment. The directory is derived from baseDir
// and name and is created if missing; trials already stored in it are loaded so
// re-runs can be detected.
func Open(ctx context.Context, baseDir, name, description string, opts ...Option) (*Experiment, error) {
	o := buildOptions(opts)

	if name == "" {
		return nil, &DirectoryError{Path: baseDir, Err: errors.New("experiment name is required")}
	}
	dir, err := record.ExperimentDir(baseDir, name)
	if err != nil {
		return nil, &DirectoryError{Path: baseDir, Err: err}
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, &DirectoryError{Path: dir, Err: err}
	}

	logger := o.logger.With(logging.ExperimentFields(name, dir)...)
	trials, err := loadTrials(dir, logger)
	if err != nil {
		return nil, &DirectoryError{Path: dir, Err: err}
	}
	sortTrials(trials, o.sortMetric)

	e := &Experiment{
		info: record.ExperimentInfo{
			Name:        name,
			Description: description,
			StartTime:   o.now(),
			Directory:   dir,
		},
		trials:     trials,
		reporter:   o.reporter,
		sortMetric: o.sortMetric,
		logger:     logger,
		metrics:    o.metrics,
		tracer:     o.tracerProvider.Tracer(tracerName),
		now:        o.now,
	}
	if o.source != nil {
		e.source = o.source
	} else {
		e.slots = newResultSlots()
		e.source = e.slots
	}

	e.ctx, e.span = e.tracer.Start(ctx, "experiment",
		trace.WithAttributes(
			attribute.String("experiment.name", name),
			attribute.String("experiment.directory", dir),
			attribute.Int("experiment.loaded_trials", len(trials)),
		))

	logger.Info("Experiment opened",
		zap.Int("loaded_trials", len(trials)),
		zap.String("trace_id", tracing.TraceID(e.ctx)),
	)
	return e, nil
}

// Run opens an experiment, calls fn inside its scope and closes it with the
// error fn returned.
func Run(ctx context.Context, baseDir, name, description string, fn func(*Experiment) error, opts ...Option) (err error) {
	e, err := Open(ctx, baseDir, name, description, opts...)
	if err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			_ = e.Close(fmt.Errorf("panic: %v", r))
			panic(r)
		}
	}()
	return e.Close(fn(e))
}

// Close leaves the experiment scope. A non-nil runErr aborts the experiment:
// nothing is written and the error comes back wrapped in an *ExperimentFault.
func (e *Experiment) Close(runErr error) error {
	if e.closed {
		return ErrClosed
	}
	if runErr == nil && e.openTrial != nil {
		return fmt.Errorf("%w: trial %q is still open", ErrTrialState, e.openTrial.Name())
	}
	e.closed = true
	defer e.span.End()

	duration := e.now().Sub(e.info.StartTime)
	e.info.Duration = record.Duration(duration)
	e.span.SetAttributes(attribute.Int64("experiment.duration_ms", duration.Milliseconds()))

	if runErr != nil {
		e.logger.Error("An error occurred during the experiment", zap.Error(runErr))
		tracing.RecordError(e.span, runErr, "experiment fault")
		e.metrics.RecordExperiment("fault", duration)
		return &ExperimentFault{Name: e.info.Name, Err: runErr}
	}

	infoPath := filepath.Join(e.info.Directory, record.ExperimentInfoFile)
	if err := record.WriteJSON(infoPath, e.info); err != nil {
		return fmt.Errorf("failed to write experiment info: %w", err)
	}

	sortTrials(e.trials, e.sortMetric)

	if err := e.reporter.Report(e.info, e.Trials()); err != nil {
		return fmt.Errorf("failed to write experiment report: %w", err)
	}
	e.metrics.RecordReport()
	e.metrics.RecordExperiment("ok", duration)

	e.logger.Info("Experiment closed",
		zap.Int("trials", len(e.trials)),
		zap.Duration("duration", duration),
	)
	return nil
}

// AddTrial creates a trial scoped to this experiment. The result source must
// expose figure and evaluation metric slots; this is checked before the trial
// directory is created.
func (e *Experiment) AddTrial(name, description string, hyperparameters map[string]any) (*Trial, error) {
	if e.closed {
		return nil, ErrClosed
	}
	if e.openTrial != nil {
		return nil, fmt.Errorf("%w: trial %q is still open", ErrTrialState, e.openTrial.Name())
	}

	snapshot := e.SnapshotResults()
	var missing []string
	if snapshot.Figures == nil {
		missing = append(missing, "figures")
	}
	if snapshot.EvaluationMetrics == nil {
		missing = append(missing, "evaluation_metrics")
	}
	if len(missing) > 0 {
		return nil, &ContractError{Missing: missing}
	}

	if name == "" {
		return nil, fmt.Errorf("trial name is required")
	}

	dir := filepath.Join(e.info.Directory, record.TrialDirName(name))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, &DirectoryError{Path: dir, Err: err}
	}

	if e.slots != nil {
		e.slots.Reset()
	}

	return &Trial{
		exp: e,
		rec: record.TrialRecord{
			Name:            name,
			Description:     description,
			Directory:       dir,
			Hyperparameters: hyperparameters,
		},
		alreadyRun: e.indexOf(name) >= 0,
		state:      StateCreated,
	}, nil
}

// RunTrial adds a trial, calls fn inside its scope and closes the trial with
// the error fn returned.
func (e *Experiment) RunTrial(name, description string, hyperparameters map[string]any, fn func(*Trial) error) error {
	t, err := e.AddTrial(name, description, hyperparameters)
	if err != nil {
		return err
	}
	if err := t.Begin(); err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			_ = t.Close(fmt.Errorf("panic: %v", r))
			panic(r)
		}
	}()
	return t.Close(fn(t))
}

// SnapshotResults returns what the training code produced in the current trial.
func (e *Experiment) SnapshotResults() Results {
	if e.source == nil {
		return Results{}
	}
	return e.source.SnapshotResults()
}

// Results returns the experiment's own result slots, or nil when an external
// ResultSource was configured.
func (e *Experiment) Results() *ResultSlots {
	return e.slots
}

// Trials returns a copy of the retained trials. During the experiment they are
// in close order; after Close they are ranked by the sort metric.
func (e *Experiment) Trials() []record.TrialRecord {
	out := make([]record.TrialRecord, len(e.trials))
	for i, tr := range e.trials {
		out[i] = tr.Clone()
	}
	return out
}

// Info returns the experiment metadata.
func (e *Experiment) Info() record.ExperimentInfo {
	return e.info
}

func (e *Experiment) Name() string      { return e.info.Name }
func (e *Experiment) Directory() string { return e.info.Directory }

// Context carries the experiment span.
func (e *Experiment) Context() context.Context {
	if e.ctx == nil {
		return context.Background()
	}
	return e.ctx
}

func (e *Experiment) indexOf(name string) int {
	return slices.IndexFunc(e.trials, func(tr record.TrialRecord) bool {
		return tr.Name == name
	})
}

func (e *Experiment) removeTrial(name string) bool {
	idx := e.indexOf(name)
	if idx < 0 {
		return false
	}
	e.trials = slices.Delete(e.trials, idx, idx+1)
	return true
}

// sortTrials ranks trials by metric, highest first. Trials without a numeric
// value for metric go last. Equal scores keep their order.
func sortTrials(trials []record.TrialRecord, metric string) {
	slices.SortStableFunc(trials, func(a, b record.TrialRecord) int {
		av, aok := a.Metric(metric)
		bv, bok := b.Metric(metric)
		switch {
		case aok && bok:
			return cmp.Compare(bv, av)
		case aok:
			return -1
		case bok:
			return 1
		default:
			return 0
		}
	})
}
