package experiment

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/snow-ghost/trials/pkg/logging"
	"github.com/snow-ghost/trials/record"
)

// loadTrials reads every <dir>/<trial>/trial_info.json. Unreadable records are
// logged and skipped; duplicated names keep the first record found.
func loadTrials(dir string, logger *zap.Logger) ([]record.TrialRecord, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read experiment directory: %w", err)
	}

	seen := make(map[string]bool)
	var trials []record.TrialRecord
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name(), record.TrialInfoFile)
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			continue
		}

		tr, err := record.ReadTrial(path)
		if err != nil {
			logger.Warn("Failed to load trial info", zap.String("path", path), zap.Error(err))
			continue
		}
		if seen[tr.Name] {
			logger.Warn("Duplicate trial name on disk, ignoring", zap.String("trial", tr.Name), zap.String("path", path))
			continue
		}
		seen[tr.Name] = true
		trials = append(trials, *tr)
	}
	return trials, nil
}

// Regenerate rebuilds the report of an existing experiment directory from its
// experiment_info.json and trial files. Nothing else is written.
func Regenerate(ctx context.Context, dir string, opts ...Option) error {
	o := buildOptions(opts)

	_, span := o.tracerProvider.Tracer(tracerName).Start(ctx, "regenerate")
	defer span.End()

	dir, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	info, err := record.ReadExperimentInfo(dir)
	if err != nil {
		return err
	}
	logger := o.logger.With(logging.ExperimentFields(info.Name, dir)...)

	trials, err := loadTrials(dir, logger)
	if err != nil {
		return err
	}
	sortTrials(trials, o.sortMetric)

	// the directory may have moved since the info file was written
	info.Directory = dir
	if err := o.reporter.Report(*info, trials); err != nil {
		return fmt.Errorf("failed to write experiment report: %w", err)
	}
	o.metrics.RecordReport()
	logger.Info("Report regenerated", zap.Int("trials", len(trials)))
	return nil
}
