package runner

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snow-ghost/trials/experiment"
	"github.com/snow-ghost/trials/record"
)

func shellTrainer(script string) TrainFunc {
	return ExecTrainer([]string{"/bin/sh", "-c", script}, nil)
}

func runExec(t *testing.T, train TrainFunc, hp map[string]any) (*experiment.Experiment, error) {
	t.Helper()
	e, err := experiment.Open(context.Background(), t.TempDir(), "exec", "exec trainer")
	require.NoError(t, err)
	err = e.RunTrial("job", "", hp, func(tr *experiment.Trial) error {
		return train(tr.Context(), tr, e.Results())
	})
	return e, err
}

func TestExecTrainer_ReadsResults(t *testing.T) {
	script := `printf '%s' "$TRIAL_HPARAMS" > hp.json
printf 'PNGDATA' > plot.png
cat > "$TRIAL_RESULTS" <<'JSON'
{"evaluation_metrics": {"accuracy": 0.75},
 "training_history": {"loss": [1.0, 0.5]},
 "figures": {"Loss Curve": "plot.png"}}
JSON`
	e, err := runExec(t, shellTrainer(script), map[string]any{"lr": 0.1})
	require.NoError(t, err)

	trials := e.Trials()
	require.Len(t, trials, 1)
	assert.Equal(t, 0.75, trials[0].EvaluationMetrics["accuracy"])
	assert.Equal(t, []float64{1.0, 0.5}, trials[0].TrainingHistory["loss"])

	dir := filepath.Join(e.Directory(), "job")
	fig, err := os.ReadFile(filepath.Join(dir, "loss_curve.png"))
	require.NoError(t, err)
	assert.Equal(t, "PNGDATA", string(fig))

	hp, err := os.ReadFile(filepath.Join(dir, "hp.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"lr":0.1}`, string(hp))

	_, err = record.ReadTrial(filepath.Join(dir, record.TrialInfoFile))
	require.NoError(t, err)
}

func TestExecTrainer_NoResultsFile(t *testing.T) {
	e, err := runExec(t, shellTrainer("true"), nil)
	require.NoError(t, err)
	assert.Empty(t, e.Trials())
	assert.NoFileExists(t, filepath.Join(e.Directory(), "job", record.TrialInfoFile))
}

func TestExecTrainer_StaleResultsRemoved(t *testing.T) {
	e, err := experiment.Open(context.Background(), t.TempDir(), "exec", "")
	require.NoError(t, err)
	stale := filepath.Join(e.Directory(), "job", ResultsFile)
	require.NoError(t, os.MkdirAll(filepath.Dir(stale), 0o755))
	require.NoError(t, os.WriteFile(stale, []byte(`{"evaluation_metrics":{"accuracy":1}}`), 0o644))

	train := shellTrainer("true")
	require.NoError(t, e.RunTrial("job", "", nil, func(tr *experiment.Trial) error {
		return train(tr.Context(), tr, e.Results())
	}))
	assert.Empty(t, e.Trials())
	assert.NoFileExists(t, stale)
}

func TestExecTrainer_CommandFailure(t *testing.T) {
	_, err := runExec(t, shellTrainer("exit 3"), nil)
	assert.ErrorContains(t, err, "training command failed")
}

func TestExecTrainer_BadResults(t *testing.T) {
	_, err := runExec(t, shellTrainer(`echo 'not json' > "$TRIAL_RESULTS"`), nil)
	assert.ErrorContains(t, err, ResultsFile)

	_, err = runExec(t, shellTrainer(`echo '{"figures":{"a":"nope.png"}}' > "$TRIAL_RESULTS"`), nil)
	assert.ErrorContains(t, err, "failed to read figure a")
}

func TestExecTrainer_UnencodableHyperparameters(t *testing.T) {
	_, err := runExec(t, shellTrainer("true"), map[string]any{"f": func() {}})
	assert.ErrorContains(t, err, "failed to encode hyperparameters")
}

func TestLoadResults_AbsoluteFigurePath(t *testing.T) {
	dir := t.TempDir()
	fig := filepath.Join(dir, "chart")
	require.NoError(t, os.WriteFile(fig, []byte("x"), 0o644))

	data, err := json.Marshal(map[string]any{"figures": map[string]string{"chart": fig}})
	require.NoError(t, err)

	e, err := experiment.Open(context.Background(), t.TempDir(), "abs", "")
	require.NoError(t, err)
	require.NoError(t, loadResults(data, "/unused", e.Results()))
	snap := e.SnapshotResults()
	require.Contains(t, snap.Figures, "chart")
	assert.Equal(t, "png", snap.Figures["chart"].Extension())
}
