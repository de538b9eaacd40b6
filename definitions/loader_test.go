package definitions

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/snow-ghost/trials/suggest"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func drain(t *testing.T, s *Stream) []TrialDescriptor {
	t.Helper()
	var out []TrialDescriptor
	for d, ok := s.Next(); ok; d, ok = s.Next() {
		out = append(out, d)
	}
	require.NoError(t, s.Err())
	return out
}

const listJSON = `{
  "experiment_definitions": {"name": "exp1", "description": "lr sweep", "directory": "runs", "owner": "ml"},
  "trials_definitions": [
    {"name": "small lr", "hyperparameters": {"lr": 0.001, "batch_size": 16}},
    {"name": "big lr", "hyperparameters": {"lr": 0.1, "batch_size": 32}}
  ]
}`

func TestLoad_ExplicitList(t *testing.T) {
	defs, err := Load(writeFile(t, "defs.json", listJSON))
	require.NoError(t, err)

	assert.Equal(t, "exp1", defs.Experiment.Name)
	assert.Equal(t, "lr sweep", defs.Experiment.Description)
	assert.Equal(t, "runs", defs.Experiment.Directory)
	assert.Equal(t, map[string]any{"owner": "ml"}, defs.Experiment.Extra)

	items := drain(t, defs.Trials)
	require.Len(t, items, 2)
	assert.Equal(t, "small lr", items[0].Name)
	assert.Equal(t, map[string]any{"lr": 0.001, "batch_size": 16.0}, items[0].Hyperparameters)
	assert.Equal(t, "big lr", items[1].Name)

	_, ok := defs.Trials.Next()
	assert.False(t, ok)
}

func TestLoad_GeneratorDefaults(t *testing.T) {
	path := writeFile(t, "defs.json", `{
  "experiment_definitions": {"name": "gen", "description": "", "directory": "runs"},
  "trials_definitions": {"num_trials": 3, "hparams_configs": {"lr": {"type": "float", "min": 0.001, "max": 0.1}}}
}`)
	defs, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, defs.Trials.Len())

	items := drain(t, defs.Trials)
	require.Len(t, items, 3)
	for i, name := range []string{"trial_1", "trial_2", "trial_3"} {
		assert.Equal(t, name, items[i].Name)
		assert.Contains(t, items[i].Hyperparameters, "lr")
	}
	assert.Equal(t, 0, defs.Trials.Remaining())
}

func TestLoad_GeneratorYAMLWithPrefixAndExtraKeys(t *testing.T) {
	path := writeFile(t, "defs.yaml", `
experiment_definitions:
  name: gen
  description: yaml run
  directory: runs
trials_definitions:
  num_trials: 2
  prefix: run-
  strategy: random
  hparams_configs:
    units:
      type: choice
      values: [8, 16]
    optimizer: adam
`)
	core, logs := observer.New(zapcore.WarnLevel)
	defs, err := Load(path, WithLogger(zap.New(core)), WithSeed(3))
	require.NoError(t, err)

	items := drain(t, defs.Trials)
	require.Len(t, items, 2)
	assert.Equal(t, "run-1", items[0].Name)
	assert.Equal(t, "run-2", items[1].Name)
	assert.Equal(t, "adam", items[0].Hyperparameters["optimizer"])
	assert.Contains(t, []any{8, 16}, items[0].Hyperparameters["units"])

	ignored := logs.FilterMessage("Ignoring key in trials_definitions").All()
	require.Len(t, ignored, 1)
	assert.Equal(t, "strategy", ignored[0].ContextMap()["key"])
}

func TestLoad_SameSeedRestartsIdentically(t *testing.T) {
	path := writeFile(t, "defs.json", `{
  "experiment_definitions": {"name": "gen", "description": "", "directory": "runs"},
  "trials_definitions": {"num_trials": 4, "hparams_configs": {"lr": {"type": "float", "min": 0.001, "max": 0.1, "log": true}}}
}`)
	first, err := Load(path, WithSeed(11))
	require.NoError(t, err)
	second, err := Load(path, WithSeed(11))
	require.NoError(t, err)

	assert.Equal(t, drain(t, first.Trials), drain(t, second.Trials))
}

type failingSuggester struct{ calls int }

func (f *failingSuggester) SuggestNext() (map[string]any, error) {
	f.calls++
	if f.calls > 1 {
		return nil, errors.New("search space exhausted")
	}
	return map[string]any{"x": 1}, nil
}

func TestLoad_SuggesterFailureStopsStream(t *testing.T) {
	path := writeFile(t, "defs.json", `{
  "experiment_definitions": {"name": "gen", "description": "", "directory": "runs"},
  "trials_definitions": {"num_trials": 3, "hparams_configs": ["anything"]}
}`)
	defs, err := Load(path, WithSuggesterFactory(func(any) (suggest.Suggester, error) {
		return &failingSuggester{}, nil
	}))
	require.NoError(t, err)

	d, ok := defs.Trials.Next()
	require.True(t, ok)
	assert.Equal(t, "trial_1", d.Name)

	_, ok = defs.Trials.Next()
	assert.False(t, ok)
	assert.ErrorContains(t, defs.Trials.Err(), "search space exhausted")
}

func TestLoad_FormatErrors(t *testing.T) {
	cases := map[string]string{
		"not a mapping":      `[1, 2]`,
		"three keys":         `{"experiment_definitions": {}, "trials_definitions": [], "extra": 1}`,
		"one key":            `{"experiment_definitions": {"name": "a", "description": "", "directory": "d"}}`,
		"missing experiment": `{"experiments": {}, "trials_definitions": []}`,
		"missing trials":     `{"experiment_definitions": {"name": "a", "description": "", "directory": "d"}, "trials": []}`,
		"missing name":       `{"experiment_definitions": {"description": "", "directory": "d"}, "trials_definitions": []}`,
		"missing directory":  `{"experiment_definitions": {"name": "a", "description": ""}, "trials_definitions": []}`,
		"extra list key":     `{"experiment_definitions": {"name": "a", "description": "", "directory": "d"}, "trials_definitions": [{"name": "t", "hyperparameters": {}, "notes": ""}]}`,
		"missing list key":   `{"experiment_definitions": {"name": "a", "description": "", "directory": "d"}, "trials_definitions": [{"name": "t"}]}`,
		"missing hparams":    `{"experiment_definitions": {"name": "a", "description": "", "directory": "d"}, "trials_definitions": {"num_trials": 2}}`,
		"bad hparams":        `{"experiment_definitions": {"name": "a", "description": "", "directory": "d"}, "trials_definitions": {"hparams_configs": {"lr": {"type": "nope"}}}}`,
		"fractional num":     `{"experiment_definitions": {"name": "a", "description": "", "directory": "d"}, "trials_definitions": {"num_trials": 1.5, "hparams_configs": {"a": 1}}}`,
		"scalar trials":      `{"experiment_definitions": {"name": "a", "description": "", "directory": "d"}, "trials_definitions": 3}`,
		"broken json":        `{"experiment_definitions":`,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			path := writeFile(t, "defs.json", content)
			_, err := Load(path)
			var formatErr *FormatError
			require.ErrorAs(t, err, &formatErr)
			assert.Equal(t, path, formatErr.Path)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	var formatErr *FormatError
	require.ErrorAs(t, err, &formatErr)
	assert.Contains(t, err.Error(), "file not found")
}

func TestStream_ListItemsAreCopies(t *testing.T) {
	defs, err := Load(writeFile(t, "defs.json", listJSON))
	require.NoError(t, err)

	d, ok := defs.Trials.Next()
	require.True(t, ok)
	d.Hyperparameters["lr"] = 99.0

	again, err := Load(writeFile(t, "defs.json", listJSON))
	require.NoError(t, err)
	d2, _ := again.Trials.Next()
	assert.Equal(t, 0.001, d2.Hyperparameters["lr"])
}
