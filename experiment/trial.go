package experiment

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/snow-ghost/trials/pkg/metrics"
	"github.com/snow-ghost/trials/pkg/tracing"
	"github.com/snow-ghost/trials/record"
)

// State is the lifecycle position of a Trial.
type State int

const (
	StateCreated State = iota
	StateOpen
	StateDiscarded
	StatePersisted
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateOpen:
		return "open"
	case StateDiscarded:
		return "discarded"
	case StatePersisted:
		return "persisted"
	default:
		return "unknown"
	}
}

// Trial is one run of an experiment. Create it with Experiment.AddTrial, enter
// it with Begin and leave it with Close. A closed trial cannot be reopened.
type Trial struct {
	exp        *Experiment
	rec        record.TrialRecord
	alreadyRun bool
	state      State

	ctx  context.Context
	span trace.Span
}

// Begin enters the trial scope and starts its clock.
func (t *Trial) Begin() error {
	if t.state != StateCreated {
		return fmt.Errorf("%w: cannot begin trial %q in state %s", ErrTrialState, t.rec.Name, t.state)
	}
	if t.exp.closed {
		return ErrClosed
	}
	if t.exp.openTrial != nil {
		return fmt.Errorf("%w: trial %q is still open", ErrTrialState, t.exp.openTrial.Name())
	}

	t.alreadyRun = t.exp.indexOf(t.rec.Name) >= 0
	t.rec.StartTime = t.exp.now()
	t.state = StateOpen
	t.exp.openTrial = t

	t.ctx, t.span = t.exp.tracer.Start(t.exp.Context(), "trial",
		trace.WithAttributes(
			attribute.String("trial.name", t.rec.Name),
			attribute.Bool("trial.already_run", t.alreadyRun),
		))
	return nil
}

// Close leaves the trial scope. A non-nil runErr discards the trial and is
// returned unchanged. Otherwise the experiment's results are inspected: empty
// results are skipped, new results are persisted and appended, replacing an
// older trial of the same name.
func (t *Trial) Close(runErr error) error {
	if t.state != StateOpen {
		return fmt.Errorf("%w: cannot close trial %q in state %s", ErrTrialState, t.rec.Name, t.state)
	}
	t.exp.openTrial = nil
	defer t.span.End()

	if t.exp.closed {
		t.state = StateDiscarded
		if runErr != nil {
			return runErr
		}
		return ErrClosed
	}

	duration := t.exp.now().Sub(t.rec.StartTime)
	t.rec.Duration = record.Duration(duration)
	logger := t.exp.logger.With(zap.String("trial", t.rec.Name))
	expName := t.exp.info.Name

	if runErr != nil {
		t.state = StateDiscarded
		tracing.RecordError(t.span, runErr, "trial fault")
		t.exp.metrics.RecordTrial(expName, metrics.OutcomeFailed, duration)
		return runErr
	}

	results := t.exp.SnapshotResults()
	if results.Empty() {
		t.state = StateDiscarded
		if t.alreadyRun {
			logger.Warn("Skipping trial. Already run, no new results. Keeping old results")
			t.exp.metrics.RecordTrial(expName, metrics.OutcomeSkipped, duration)
		} else {
			logger.Warn("Trial produced no results. Nothing saved")
			t.exp.metrics.RecordTrial(expName, metrics.OutcomeEmpty, duration)
		}
		t.span.SetAttributes(attribute.String("trial.outcome", t.state.String()))
		return nil
	}

	logger.Info("Finalizing trial")

	figures, err := saveFigures(results.Figures, t.rec.Directory)
	if err != nil {
		t.state = StateDiscarded
		tracing.RecordError(t.span, err, "saving figures")
		return fmt.Errorf("trial %q: %w", t.rec.Name, err)
	}
	t.rec.Figures = figures
	t.rec.EvaluationMetrics = results.EvaluationMetrics
	t.rec.TrainingHistory = results.TrainingHistory

	if err := t.write(logger); err != nil {
		removeFigures(figures)
		t.state = StateDiscarded
		tracing.RecordError(t.span, err, "writing trial info")
		return fmt.Errorf("trial %q: %w", t.rec.Name, err)
	}

	outcome := metrics.OutcomePersisted
	if t.exp.removeTrial(t.rec.Name) {
		logger.Warn("Trial already run. Overwriting old results")
		outcome = metrics.OutcomeOverwritten
	}
	t.exp.trials = append(t.exp.trials, t.rec.Clone())
	t.state = StatePersisted

	t.exp.metrics.RecordTrial(expName, outcome, duration)
	t.span.SetAttributes(attribute.String("trial.outcome", outcome))
	return nil
}

// write stores trial_info.json. Hyperparameters that cannot be encoded are
// written as null; the rest of the record is kept.
func (t *Trial) write(logger *zap.Logger) error {
	rec := t.rec
	if _, err := json.Marshal(rec.Hyperparameters); err != nil {
		logger.Warn("Hyperparameters are not JSON serializable. Saving null instead", zap.Error(err))
		rec.Hyperparameters = nil
		t.exp.metrics.RecordHyperparamFallback()
	}
	if encoded, replaced := encodableMetrics(rec.EvaluationMetrics); len(replaced) > 0 {
		logger.Warn("Evaluation metrics are not finite. Saving them as strings", zap.Strings("metrics", replaced))
		rec.EvaluationMetrics = encoded
	}
	return record.WriteJSON(filepath.Join(rec.Directory, record.TrialInfoFile), rec)
}

// encodableMetrics returns a copy of values with NaN and infinite floats
// replaced by "NaN", "+Inf" or "-Inf", and the names it replaced.
func encodableMetrics(values map[string]any) (map[string]any, []string) {
	var out map[string]any
	var replaced []string
	for name, v := range values {
		var f float64
		switch n := v.(type) {
		case float64:
			f = n
		case float32:
			f = float64(n)
		default:
			continue
		}
		if !math.IsNaN(f) && !math.IsInf(f, 0) {
			continue
		}
		if out == nil {
			out = maps.Clone(values)
		}
		out[name] = strconv.FormatFloat(f, 'g', -1, 64)
		replaced = append(replaced, name)
	}
	if out == nil {
		return values, nil
	}
	sort.Strings(replaced)
	return out, replaced
}

// saveFigures writes every figure into dir and returns name -> file path.
// Names that normalize to the same file get a numeric suffix.
func saveFigures(figures map[string]Figure, dir string) (map[string]string, error) {
	names := make([]string, 0, len(figures))
	for name := range figures {
		names = append(names, name)
	}
	sort.Strings(names)

	paths := make(map[string]string, len(figures))
	used := make(map[string]bool, len(figures))
	for _, name := range names {
		fig := figures[name]
		if fig == nil {
			continue
		}
		base := record.TrialDirName(name)
		file := base + "." + fig.Extension()
		for i := 2; used[file]; i++ {
			file = fmt.Sprintf("%s_%d.%s", base, i, fig.Extension())
		}
		used[file] = true

		path := filepath.Join(dir, file)
		if err := writeFigure(path, fig); err != nil {
			removeFigures(paths)
			return nil, fmt.Errorf("failed to save figure %s: %w", name, err)
		}
		paths[name] = path
	}
	return paths, nil
}

func removeFigures(paths map[string]string) {
	for _, path := range paths {
		_ = os.Remove(path)
	}
}

func writeFigure(path string, fig Figure) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := fig.WriteTo(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (t *Trial) Name() string      { return t.rec.Name }
func (t *Trial) Directory() string { return t.rec.Directory }
func (t *Trial) State() State      { return t.state }

// AlreadyRun reports whether the experiment held a trial of the same name when
// this one was opened.
func (t *Trial) AlreadyRun() bool { return t.alreadyRun }

// Record returns a snapshot of the trial.
func (t *Trial) Record() record.TrialRecord { return t.rec.Clone() }

// Hyperparameters returns the hyperparameters the trial was created with.
func (t *Trial) Hyperparameters() map[string]any { return t.rec.Hyperparameters }

// Context carries the trial span; training code should use it for its own work.
func (t *Trial) Context() context.Context {
	if t.ctx == nil {
		return t.exp.Context()
	}
	return t.ctx
}
