// Package suggest proposes hyperparameter sets for generated trials.
package suggest

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"sort"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/snow-ghost/trials/record"
)

// Suggester proposes the hyperparameters of the next trial.
type Suggester interface {
	SuggestNext() (map[string]any, error)
}

// Parameter kinds accepted in hparams_configs.
const (
	KindChoice   = "choice"
	KindInt      = "int"
	KindFloat    = "float"
	KindConstant = "constant"
)

const (
	recentSize = 256
	maxDraws   = 16

	// integers above 2^53 are not exact in float64 bounds
	maxIntBound = 1 << 53
)

// ParamSpec describes how one hyperparameter is drawn.
type ParamSpec struct {
	Kind   string
	Values []any
	Min    float64
	Max    float64
	Log    bool
	Value  any
}

// ParseConfigs turns an hparams_configs mapping into parameter specs. A value
// that is a mapping with a "type" key is a spec; anything else is a constant.
func ParseConfigs(configs map[string]any) (map[string]ParamSpec, error) {
	if len(configs) == 0 {
		return nil, fmt.Errorf("hparams_configs is empty")
	}
	specs := make(map[string]ParamSpec, len(configs))
	for name, raw := range configs {
		spec, err := parseSpec(raw)
		if err != nil {
			return nil, fmt.Errorf("hyperparameter %q: %w", name, err)
		}
		specs[name] = spec
	}
	return specs, nil
}

func parseSpec(raw any) (ParamSpec, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return ParamSpec{Kind: KindConstant, Value: raw}, nil
	}
	kind, ok := m["type"].(string)
	if !ok {
		return ParamSpec{Kind: KindConstant, Value: raw}, nil
	}

	switch kind {
	case KindChoice:
		values, ok := m["values"].([]any)
		if !ok || len(values) == 0 {
			return ParamSpec{}, fmt.Errorf("choice requires a non-empty values list")
		}
		return ParamSpec{Kind: KindChoice, Values: values}, nil
	case KindInt, KindFloat:
		lo, okLo := record.Numeric(m["min"])
		hi, okHi := record.Numeric(m["max"])
		if !okLo || !okHi {
			return ParamSpec{}, fmt.Errorf("%s requires numeric min and max", kind)
		}
		if lo > hi {
			return ParamSpec{}, fmt.Errorf("min %v is greater than max %v", lo, hi)
		}
		logScale, _ := m["log"].(bool)
		if logScale && lo <= 0 {
			return ParamSpec{}, fmt.Errorf("log scale requires a positive min")
		}
		if kind == KindInt && (lo != math.Trunc(lo) || hi != math.Trunc(hi)) {
			return ParamSpec{}, fmt.Errorf("int bounds must be integers")
		}
		if kind == KindInt && (math.Abs(lo) > maxIntBound || math.Abs(hi) > maxIntBound) {
			return ParamSpec{}, fmt.Errorf("int bounds must be within ±%d", int64(maxIntBound))
		}
		return ParamSpec{Kind: kind, Min: lo, Max: hi, Log: logScale}, nil
	case KindConstant:
		return ParamSpec{Kind: KindConstant, Value: m["value"]}, nil
	default:
		return ParamSpec{}, fmt.Errorf("unknown type %q", kind)
	}
}

// Random draws every hyperparameter independently. Recently issued sets are
// remembered and a repeated draw is retried a bounded number of times.
type Random struct {
	specs  map[string]ParamSpec
	names  []string
	rng    *rand.Rand
	recent *lru.Cache[string, struct{}]
}

// NewRandom creates a random-search suggester over configs.
func NewRandom(configs map[string]any, seed int64) (*Random, error) {
	specs, err := ParseConfigs(configs)
	if err != nil {
		return nil, err
	}
	recent, err := lru.New[string, struct{}](recentSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create suggestion cache: %w", err)
	}

	names := make([]string, 0, len(specs))
	for name := range specs {
		names = append(names, name)
	}
	sort.Strings(names)

	return &Random{
		specs:  specs,
		names:  names,
		rng:    rand.New(rand.NewSource(seed)),
		recent: recent,
	}, nil
}

// SuggestNext implements Suggester
func (r *Random) SuggestNext() (map[string]any, error) {
	var (
		params map[string]any
		key    string
	)
	for i := 0; i < maxDraws; i++ {
		params = r.draw()
		data, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("failed to fingerprint hyperparameters: %w", err)
		}
		key = string(data)
		if !r.recent.Contains(key) {
			break
		}
	}
	r.recent.Add(key, struct{}{})
	return params, nil
}

func (r *Random) draw() map[string]any {
	params := make(map[string]any, len(r.names))
	for _, name := range r.names {
		params[name] = r.sample(r.specs[name])
	}
	return params
}

func (r *Random) sample(spec ParamSpec) any {
	switch spec.Kind {
	case KindChoice:
		return spec.Values[r.rng.Intn(len(spec.Values))]
	case KindInt:
		lo, hi := int64(spec.Min), int64(spec.Max)
		if spec.Log {
			v := math.Round(r.logUniform(spec.Min, spec.Max))
			return int64(math.Min(math.Max(v, spec.Min), spec.Max))
		}
		return lo + r.rng.Int63n(hi-lo+1)
	case KindFloat:
		if spec.Log {
			return r.logUniform(spec.Min, spec.Max)
		}
		return spec.Min + r.rng.Float64()*(spec.Max-spec.Min)
	default:
		return spec.Value
	}
}

func (r *Random) logUniform(lo, hi float64) float64 {
	a, b := math.Log(lo), math.Log(hi)
	return math.Exp(a + r.rng.Float64()*(b-a))
}
