package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/snow-ghost/trials/experiment"
)

// ResultsFile is written by an external training command into the trial directory.
const ResultsFile = "results.json"

// Environment passed to external training commands.
const (
	EnvTrialName    = "TRIAL_NAME"
	EnvTrialDir     = "TRIAL_DIR"
	EnvHyperparams  = "TRIAL_HPARAMS"
	EnvResultsPath  = "TRIAL_RESULTS"
	defaultFigureEx = "png"
)

type execResults struct {
	EvaluationMetrics map[string]any       `json:"evaluation_metrics"`
	TrainingHistory   map[string][]float64 `json:"training_history"`
	Figures           map[string]string    `json:"figures"`
}

// ExecTrainer runs command once per trial. The command receives the trial in
// its environment and reports by writing ResultsFile; a command that writes
// nothing produced no results.
func ExecTrainer(command []string, logger *zap.Logger) TrainFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(ctx context.Context, trial *experiment.Trial, results *experiment.ResultSlots) error {
		if len(command) == 0 {
			return fmt.Errorf("no training command configured")
		}
		if results == nil {
			return fmt.Errorf("trial %s: experiment has no result slots to fill", trial.Name())
		}
		hp, err := json.Marshal(trial.Hyperparameters())
		if err != nil {
			return fmt.Errorf("failed to encode hyperparameters: %w", err)
		}

		resultsPath := filepath.Join(trial.Directory(), ResultsFile)
		if err := os.Remove(resultsPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to clear previous results: %w", err)
		}

		cmd := exec.CommandContext(ctx, command[0], command[1:]...)
		cmd.Dir = trial.Directory()
		cmd.Env = append(os.Environ(),
			EnvTrialName+"="+trial.Name(),
			EnvTrialDir+"="+trial.Directory(),
			EnvHyperparams+"="+string(hp),
			EnvResultsPath+"="+resultsPath,
		)
		cmd.Stdout = os.Stderr
		cmd.Stderr = os.Stderr

		logger.Debug("Starting training command", zap.String("trial", trial.Name()), zap.Strings("command", command))
		if err := cmd.Run(); err != nil {
			return fmt.Errorf("training command failed: %w", err)
		}

		data, err := os.ReadFile(resultsPath)
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read results: %w", err)
		}
		return loadResults(data, trial.Directory(), results)
	}
}

func loadResults(data []byte, dir string, results *experiment.ResultSlots) error {
	var res execResults
	if err := json.Unmarshal(data, &res); err != nil {
		return fmt.Errorf("failed to parse %s: %w", ResultsFile, err)
	}

	results.SetMetrics(res.EvaluationMetrics)
	for name, values := range res.TrainingHistory {
		results.SetHistory(name, values)
	}
	for name, path := range res.Figures {
		if !filepath.IsAbs(path) {
			path = filepath.Join(dir, path)
		}
		// read fully: the figure may be saved back over the same path
		img, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read figure %s: %w", name, err)
		}
		ext := strings.TrimPrefix(filepath.Ext(path), ".")
		if ext == "" {
			ext = defaultFigureEx
		}
		results.SetFigure(name, experiment.FigureBytes{Ext: ext, Data: img})
	}
	return nil
}
