// Package report turns experiment state into a Markdown report.
//
// Rendering happens in two steps: Render builds a Document from the persisted
// records, and a MarkdownSink flattens that Document into lines on disk.
package report

// BlockKind identifies the shape of a Block
type BlockKind int

const (
	BlockTitle BlockKind = iota
	BlockText
	BlockKeyValue
	BlockTable
	BlockImage
)

// Link points at a file or directory. Targets are absolute; the sink makes
// them relative to the report.
type Link struct {
	Text   string
	Target string
}

// Row is one key/value line of a table.
type Row struct {
	Key   string
	Value string
}

// Block is one element of a Document. Only the fields relevant to Kind are set.
type Block struct {
	Kind  BlockKind
	Level int
	Text  string

	Key   string
	Value string
	Link  *Link

	KeyLabel   string
	ValueLabel string
	Rows       []Row

	Path string
}

// Document is an ordered list of blocks.
type Document struct {
	Blocks []Block
}

func (d *Document) Title(text string, level int) {
	d.Blocks = append(d.Blocks, Block{Kind: BlockTitle, Text: text, Level: level})
}

func (d *Document) Text(text string) {
	d.Blocks = append(d.Blocks, Block{Kind: BlockText, Text: text})
}

func (d *Document) KeyValue(key, value string) {
	d.Blocks = append(d.Blocks, Block{Kind: BlockKeyValue, Key: key, Value: value})
}

// KeyLink adds a key/value line whose value is a link.
func (d *Document) KeyLink(key string, link Link) {
	d.Blocks = append(d.Blocks, Block{Kind: BlockKeyValue, Key: key, Link: &link})
}

// Table adds a two column table. Empty tables are dropped.
func (d *Document) Table(keyLabel, valueLabel string, rows []Row) {
	if len(rows) == 0 {
		return
	}
	d.Blocks = append(d.Blocks, Block{Kind: BlockTable, KeyLabel: keyLabel, ValueLabel: valueLabel, Rows: rows})
}

func (d *Document) Image(alt, path string) {
	d.Blocks = append(d.Blocks, Block{Kind: BlockImage, Text: alt, Path: path})
}
