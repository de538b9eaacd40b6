package experiment

import (
	"bytes"
	"io"
)

// Figure is a rendered artifact saved into the trial directory on close.
type Figure interface {
	// Extension is the file extension without the dot, e.g. "png".
	Extension() string
	io.WriterTo
}

// FigureBytes is a Figure already encoded in memory.
type FigureBytes struct {
	Ext  string
	Data []byte
}

func (f FigureBytes) Extension() string { return f.Ext }

func (f FigureBytes) WriteTo(w io.Writer) (int64, error) {
	return bytes.NewReader(f.Data).WriteTo(w)
}

// PNG wraps encoded PNG data as a Figure.
func PNG(data []byte) Figure {
	return FigureBytes{Ext: "png", Data: data}
}

// Results is what the training code produced so far.
type Results struct {
	Figures           map[string]Figure
	EvaluationMetrics map[string]any
	TrainingHistory   map[string][]float64
}

// Empty reports whether neither figures nor evaluation metrics were produced.
func (r Results) Empty() bool {
	return len(r.Figures) == 0 && len(r.EvaluationMetrics) == 0
}

// ResultSource is polled by a trial on close to learn what was produced.
type ResultSource interface {
	SnapshotResults() Results
}

// ResultSlots is the default ResultSource owned by an experiment. Training code
// fills it between a trial's Begin and Close.
type ResultSlots struct {
	figures map[string]Figure
	metrics map[string]any
	history map[string][]float64
}

func newResultSlots() *ResultSlots {
	s := &ResultSlots{}
	s.Reset()
	return s
}

// Reset drops everything recorded so far.
func (s *ResultSlots) Reset() {
	s.figures = make(map[string]Figure)
	s.metrics = make(map[string]any)
	s.history = make(map[string][]float64)
}

func (s *ResultSlots) SetFigure(name string, fig Figure) {
	s.figures[name] = fig
}

func (s *ResultSlots) SetMetric(name string, value any) {
	s.metrics[name] = value
}

// SetMetrics merges metrics into the evaluation metrics slot
func (s *ResultSlots) SetMetrics(metrics map[string]any) {
	for k, v := range metrics {
		s.metrics[k] = v
	}
}

func (s *ResultSlots) SetHistory(name string, values []float64) {
	s.history[name] = append([]float64(nil), values...)
}

// AppendHistory adds one or more epoch values to a history series.
func (s *ResultSlots) AppendHistory(name string, values ...float64) {
	s.history[name] = append(s.history[name], values...)
}

// SnapshotResults returns a copy of the slots.
func (s *ResultSlots) SnapshotResults() Results {
	out := Results{
		Figures:           make(map[string]Figure, len(s.figures)),
		EvaluationMetrics: make(map[string]any, len(s.metrics)),
		TrainingHistory:   make(map[string][]float64, len(s.history)),
	}
	for k, v := range s.figures {
		out.Figures[k] = v
	}
	for k, v := range s.metrics {
		out.EvaluationMetrics[k] = v
	}
	for k, v := range s.history {
		out.TrainingHistory[k] = append([]float64(nil), v...)
	}
	return out
}
