// Package definitions loads experiment definition files.
//
// A definitions file has exactly two sections:
//
//	experiment_definitions: {name, description, directory, ...}
//	trials_definitions:     [{name, hyperparameters}, ...]
//	                        | {num_trials, prefix, hparams_configs}
//
// JSON is the default format; files ending in .yaml or .yml are read as YAML.
package definitions

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/snow-ghost/trials/suggest"
)

const (
	experimentKey = "experiment_definitions"
	trialsKey     = "trials_definitions"

	defaultNumTrials = 1
	defaultPrefix    = "trial_"
)

// ExperimentDefinition describes the experiment to open. Keys other than the
// required ones are kept in Extra.
type ExperimentDefinition struct {
	Name        string
	Description string
	Directory   string
	Extra       map[string]any
}

// TrialDescriptor names one trial and its hyperparameters.
type TrialDescriptor struct {
	Name            string
	Hyperparameters map[string]any
}

// Definitions is the parsed content of a definitions file.
type Definitions struct {
	Experiment ExperimentDefinition
	Trials     *Stream
}

// SuggesterFactory builds the suggester for a generated trial stream from the
// hparams_configs section.
type SuggesterFactory func(configs any) (suggest.Suggester, error)

type options struct {
	logger  *zap.Logger
	factory SuggesterFactory
	seed    int64
}

// Option configures Load.
type Option func(*options)

func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithSuggesterFactory replaces the default random-search suggester.
func WithSuggesterFactory(f SuggesterFactory) Option {
	return func(o *options) { o.factory = f }
}

// WithSeed seeds the default suggester. The same seed reproduces the same
// generated trials.
func WithSeed(seed int64) Option {
	return func(o *options) { o.seed = seed }
}

// Load reads and validates a definitions file. The returned trial stream is
// lazy; call Load again to restart it.
func Load(path string, opts ...Option) (*Definitions, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &FormatError{Path: path, Reason: "file not found"}
		}
		return nil, &FormatError{Path: path, Reason: "cannot read file", Err: err}
	}
	return Parse(path, data, opts...)
}

// Parse validates definitions already read from path. The extension of path
// selects the format.
func Parse(path string, data []byte, opts ...Option) (*Definitions, error) {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.factory == nil {
		seed := o.seed
		o.factory = func(configs any) (suggest.Suggester, error) {
			m, ok := configs.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("hparams_configs must be a mapping")
			}
			return suggest.NewRandom(m, seed)
		}
	}

	formatErr := func(reason string, err error) error {
		return &FormatError{Path: path, Reason: reason, Err: err}
	}

	var root any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err := yaml.Unmarshal(data, &root)
		if err != nil {
			return nil, formatErr("cannot parse YAML", err)
		}
	default:
		if err := json.Unmarshal(data, &root); err != nil {
			return nil, formatErr("cannot parse JSON", err)
		}
	}

	top, ok := root.(map[string]any)
	if !ok {
		return nil, formatErr("top level must be a mapping", nil)
	}
	if len(top) != 2 {
		return nil, formatErr(fmt.Sprintf("expected 2 top-level keys, found %d", len(top)), nil)
	}
	rawExperiment, ok := top[experimentKey]
	if !ok {
		return nil, formatErr(experimentKey+" is missing", nil)
	}
	rawTrials, ok := top[trialsKey]
	if !ok {
		return nil, formatErr(trialsKey+" is missing", nil)
	}

	exp, err := parseExperiment(rawExperiment)
	if err != nil {
		return nil, formatErr(err.Error(), nil)
	}

	stream, err := parseTrials(rawTrials, o)
	if err != nil {
		var fe *FormatError
		if errors.As(err, &fe) {
			fe.Path = path
			return nil, fe
		}
		return nil, formatErr(err.Error(), nil)
	}

	return &Definitions{Experiment: exp, Trials: stream}, nil
}

func parseExperiment(raw any) (ExperimentDefinition, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return ExperimentDefinition{}, fmt.Errorf("%s must be a mapping", experimentKey)
	}

	def := ExperimentDefinition{Extra: make(map[string]any)}
	fields := map[string]*string{
		"name":        &def.Name,
		"description": &def.Description,
		"directory":   &def.Directory,
	}
	for _, key := range []string{"name", "description", "directory"} {
		v, ok := m[key]
		if !ok {
			return ExperimentDefinition{}, fmt.Errorf("%s is not found in %s", key, experimentKey)
		}
		s, ok := v.(string)
		if !ok {
			return ExperimentDefinition{}, fmt.Errorf("%s in %s must be a string", key, experimentKey)
		}
		*fields[key] = s
	}
	for k, v := range m {
		if _, known := fields[k]; !known {
			def.Extra[k] = v
		}
	}
	return def, nil
}

func parseTrials(raw any, o options) (*Stream, error) {
	switch v := raw.(type) {
	case []any:
		return parseTrialList(v)
	case map[string]any:
		return parseGenerator(v, o)
	default:
		return nil, fmt.Errorf("%s must be a list or a mapping", trialsKey)
	}
}

func parseTrialList(list []any) (*Stream, error) {
	items := make([]TrialDescriptor, 0, len(list))
	for i, raw := range list {
		m, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%s[%d] must be a mapping", trialsKey, i)
		}
		_, hasName := m["name"]
		_, hasParams := m["hyperparameters"]
		if len(m) != 2 || !hasName || !hasParams {
			return nil, fmt.Errorf("invalid keys in %s[%d]: expected exactly name and hyperparameters", trialsKey, i)
		}
		name, ok := m["name"].(string)
		if !ok || name == "" {
			return nil, fmt.Errorf("%s[%d].name must be a non-empty string", trialsKey, i)
		}
		params, ok := m["hyperparameters"].(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%s[%d].hyperparameters must be a mapping", trialsKey, i)
		}
		items = append(items, TrialDescriptor{Name: name, Hyperparameters: params})
	}
	return newListStream(items), nil
}

func parseGenerator(m map[string]any, o options) (*Stream, error) {
	numTrials := defaultNumTrials
	if v, ok := m["num_trials"]; ok {
		n, err := toCount(v)
		if err != nil {
			return nil, fmt.Errorf("num_trials: %w", err)
		}
		numTrials = n
	}

	prefix := defaultPrefix
	if v, ok := m["prefix"]; ok {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("prefix must be a string")
		}
		prefix = s
	}

	configs, ok := m["hparams_configs"]
	if !ok || configs == nil {
		return nil, fmt.Errorf("hparams_configs is not a key in %s", trialsKey)
	}

	var ignored []string
	for k := range m {
		switch k {
		case "num_trials", "prefix", "hparams_configs":
		default:
			ignored = append(ignored, k)
		}
	}
	sort.Strings(ignored)
	for _, k := range ignored {
		o.logger.Warn("Ignoring key in trials_definitions", zap.String("key", k))
	}

	suggester, err := o.factory(configs)
	if err != nil {
		return nil, &FormatError{Reason: "invalid hparams_configs in " + trialsKey, Err: err}
	}
	return newGeneratedStream(suggester, numTrials, prefix), nil
}

func toCount(v any) (int, error) {
	switch n := v.(type) {
	case int:
		if n < 0 {
			return 0, fmt.Errorf("must not be negative")
		}
		return n, nil
	case float64:
		if n < 0 || n != math.Trunc(n) {
			return 0, fmt.Errorf("must be a non-negative integer")
		}
		return int(n), nil
	default:
		return 0, fmt.Errorf("must be an integer")
	}
}
