// Package record holds the persisted shape of experiments and trials and the
// helpers that read and write them as JSON.
package record

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	// ExperimentInfoFile is the metadata file at the root of an experiment directory.
	ExperimentInfoFile = "experiment_info.json"
	// TrialInfoFile is the metadata file inside each trial directory.
	TrialInfoFile = "trial_info.json"
)

// ExperimentInfo is the persisted metadata of an experiment. Trials are stored
// in their own files and are not part of it.
type ExperimentInfo struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	StartTime   time.Time `json:"start_time"`
	Duration    Duration  `json:"duration"`
	Directory   string    `json:"directory"`
}

// TrialRecord is a snapshot of one trial. TrainingHistory lives in memory only.
type TrialRecord struct {
	Name              string               `json:"name"`
	Description       string               `json:"description"`
	StartTime         time.Time            `json:"start_time"`
	Duration          Duration             `json:"duration"`
	Directory         string               `json:"directory"`
	Hyperparameters   map[string]any       `json:"hyperparameters"`
	Figures           map[string]string    `json:"figures"`
	EvaluationMetrics map[string]any       `json:"evaluation_metrics"`
	TrainingHistory   map[string][]float64 `json:"-"`
}

// Validate checks the fields every stored trial must carry
func (r *TrialRecord) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("trial name is required")
	}
	if r.Directory == "" {
		return fmt.Errorf("trial directory is required")
	}
	return nil
}

// Metric returns the named evaluation metric as a float when it is numeric.
func (r *TrialRecord) Metric(name string) (float64, bool) {
	if r.EvaluationMetrics == nil {
		return 0, false
	}
	return Numeric(r.EvaluationMetrics[name])
}

// Clone returns a copy that shares no maps with r.
func (r TrialRecord) Clone() TrialRecord {
	out := r
	out.Hyperparameters = cloneMap(r.Hyperparameters)
	out.EvaluationMetrics = cloneMap(r.EvaluationMetrics)
	if r.Figures != nil {
		out.Figures = make(map[string]string, len(r.Figures))
		for k, v := range r.Figures {
			out.Figures[k] = v
		}
	}
	if r.TrainingHistory != nil {
		out.TrainingHistory = make(map[string][]float64, len(r.TrainingHistory))
		for k, v := range r.TrainingHistory {
			out.TrainingHistory[k] = append([]float64(nil), v...)
		}
	}
	return out
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Numeric reports whether v is an integer or floating point number and
// returns it as float64. Booleans are not numbers here.
func Numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// ExperimentDirName maps an experiment name to its directory name.
func ExperimentDirName(name string) string {
	return strings.ReplaceAll(name, " ", "_")
}

// TrialDirName maps a trial name to its directory name.
func TrialDirName(name string) string {
	return strings.ToLower(strings.ReplaceAll(name, " ", "_"))
}

// ExperimentDir resolves the absolute directory of an experiment.
func ExperimentDir(baseDir, name string) (string, error) {
	base, err := filepath.Abs(filepath.Clean(baseDir))
	if err != nil {
		return "", err
	}
	return filepath.Join(base, ExperimentDirName(name)), nil
}

// ToJSON encodes v the way every record file is written
func ToJSON(v any) ([]byte, error) {
	return json.MarshalIndent(v, "", "  ")
}

// WriteJSON encodes v and replaces path with it.
func WriteJSON(path string, v any) error {
	data, err := ToJSON(v)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// ReadExperimentInfo loads experiment_info.json from an experiment directory.
func ReadExperimentInfo(dir string) (*ExperimentInfo, error) {
	data, err := os.ReadFile(filepath.Join(dir, ExperimentInfoFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read experiment info: %w", err)
	}
	var info ExperimentInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("failed to parse experiment info: %w", err)
	}
	return &info, nil
}

// ReadTrial loads and validates a trial_info.json file.
func ReadTrial(path string) (*TrialRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read trial info: %w", err)
	}
	var tr TrialRecord
	if err := json.Unmarshal(data, &tr); err != nil {
		return nil, fmt.Errorf("failed to parse trial info: %w", err)
	}
	if err := tr.Validate(); err != nil {
		return nil, fmt.Errorf("invalid trial info: %w", err)
	}
	return &tr, nil
}
