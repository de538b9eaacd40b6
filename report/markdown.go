package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// MarkdownSink writes a Document to a Markdown file, replacing its content.
type MarkdownSink struct {
	path string
	dir  string
}

// NewMarkdownSink creates a sink writing to path
func NewMarkdownSink(path string) *MarkdownSink {
	return &MarkdownSink{path: path, dir: filepath.Dir(path)}
}

// Path returns the report file path.
func (s *MarkdownSink) Path() string {
	return s.path
}

// Write flattens doc and overwrites the report file.
func (s *MarkdownSink) Write(doc Document) error {
	content := strings.Join(s.Lines(doc), "\n")
	if err := os.WriteFile(s.path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// Lines returns the report as the ordered lines Write would join.
func (s *MarkdownSink) Lines(doc Document) []string {
	var lines []string
	for _, b := range doc.Blocks {
		switch b.Kind {
		case BlockTitle:
			level := b.Level
			if level < 1 {
				level = 1
			}
			lines = append(lines, fmt.Sprintf("%s %s\n", strings.Repeat("#", level), b.Text))
		case BlockText:
			lines = append(lines, b.Text+"\n")
		case BlockKeyValue:
			value := b.Value
			if b.Link != nil {
				value = s.link(*b.Link)
			}
			lines = append(lines, fmt.Sprintf("*    %s: %s\n", b.Key, value))
		case BlockTable:
			lines = append(lines, tableLines(b)...)
		case BlockImage:
			lines = append(lines, "!"+s.link(Link{Text: b.Text, Target: b.Path})+"\n")
		}
	}
	return lines
}

// link renders a Markdown link relative to the report directory.
func (s *MarkdownSink) link(l Link) string {
	text := l.Text
	if text == "" {
		text = "[Link]"
	}
	rel, err := filepath.Rel(s.dir, l.Target)
	if err != nil {
		rel = l.Target
	}
	return fmt.Sprintf("[%s](./%s)", text, filepath.ToSlash(rel))
}

func tableLines(b Block) []string {
	width := max(utf8.RuneCountInString(b.KeyLabel), utf8.RuneCountInString(b.ValueLabel))
	for _, r := range b.Rows {
		width = max(width, utf8.RuneCountInString(r.Key), utf8.RuneCountInString(r.Value))
	}

	pad := func(s string) string {
		return s + strings.Repeat(" ", width-utf8.RuneCountInString(s))
	}
	rule := strings.Repeat("-", width)

	lines := make([]string, 0, len(b.Rows)+3)
	lines = append(lines, fmt.Sprintf("| %s | %s |", pad(b.KeyLabel), pad(b.ValueLabel)))
	lines = append(lines, fmt.Sprintf("| %s | %s |", rule, rule))
	for _, r := range b.Rows {
		lines = append(lines, fmt.Sprintf("| %s | %s |", pad(r.Key), pad(r.Value)))
	}
	return append(lines, "\n")
}
