package report

import (
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/snow-ghost/trials/record"
)

// DefaultFileName is the report file written at the experiment root.
const DefaultFileName = "experiment_report.md"

const timeLayout = "2006-01-02 15:04:05"

// Render composes the report document for an experiment and its ordered trials.
func Render(info record.ExperimentInfo, trials []record.TrialRecord) Document {
	var doc Document

	doc.Title("Experiment Report: "+info.Name, 1)
	doc.Title("Experiment Metadata", 2)
	doc.KeyValue("Description", info.Description)
	doc.KeyValue("Start Time", formatTime(info.StartTime))
	doc.KeyValue("Duration", info.Duration.String())
	doc.KeyLink("Directory", Link{Text: "Link", Target: info.Directory})

	for _, tr := range trials {
		renderTrial(&doc, tr)
	}
	return doc
}

func renderTrial(doc *Document, tr record.TrialRecord) {
	doc.Title(tr.Name, 2)
	doc.KeyValue("Description", tr.Description)
	doc.KeyValue("Start Time", formatTime(tr.StartTime))
	doc.KeyValue("Duration", tr.Duration.String())
	doc.KeyLink("Directory", Link{Text: "Link", Target: tr.Directory})

	doc.Title("Hyperparameters:", 3)
	if tr.Hyperparameters == nil {
		doc.Text("Hyperparameters were not recorded.")
	} else {
		rows := make([]Row, 0, len(tr.Hyperparameters))
		for _, k := range sortedKeys(tr.Hyperparameters) {
			rows = append(rows, Row{Key: k, Value: fmt.Sprint(tr.Hyperparameters[k])})
		}
		doc.Table("Hyperparameter", "Value", rows)
	}

	if len(tr.Figures) > 0 {
		doc.Title("Figures:", 3)
		names := make([]string, 0, len(tr.Figures))
		for name := range tr.Figures {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			doc.Image(name, tr.Figures[name])
		}
	}

	if len(tr.EvaluationMetrics) > 0 {
		doc.Title("Evaluation Metrics:", 3)
		var rows []Row
		for _, k := range sortedKeys(tr.EvaluationMetrics) {
			// only numbers make it into the table
			if v, ok := record.Numeric(tr.EvaluationMetrics[k]); ok {
				rows = append(rows, Row{Key: k, Value: fmt.Sprintf("%.4f", v)})
			}
		}
		doc.Table("Metric", "Value", rows)
	}
}

// FileReporter renders experiments into a Markdown file at the experiment root.
type FileReporter struct {
	FileName string
}

// Report regenerates the report file for the experiment.
func (r FileReporter) Report(info record.ExperimentInfo, trials []record.TrialRecord) error {
	name := r.FileName
	if name == "" {
		name = DefaultFileName
	}
	sink := NewMarkdownSink(filepath.Join(info.Directory, name))
	return sink.Write(Render(info, trials))
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(timeLayout)
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
