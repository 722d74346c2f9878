package output

import (
	"io"

	"github.com/olekukonko/tablewriter"

	"github.com/ajitpratap0/colview/pkg/models"
)

// TableSink collects rows and draws them as one table at End, since
// column widths depend on every cell. Nothing is drawn for an empty
// result.
type TableSink struct {
	w      io.Writer
	opts   Options
	header []string
	cells  [][]string
}

// NewTableSink creates a table sink
func NewTableSink(w io.Writer, opts Options) *TableSink {
	return &TableSink{w: w, opts: opts}
}

// Begin implements Sink
func (s *TableSink) Begin(schema *models.Schema) error {
	s.header = schema.Names()
	return nil
}

// WriteRow implements Sink
func (s *TableSink) WriteRow(row models.Row) error {
	cells := make([]string, len(row))
	for i, v := range row {
		cells[i] = Truncate(FormatValue(v), s.opts.Truncate)
	}
	s.cells = append(s.cells, cells)
	return nil
}

// End implements Sink
func (s *TableSink) End() error {
	if len(s.cells) == 0 {
		return nil
	}
	table := tablewriter.NewWriter(s.w)
	table.SetHeader(s.header)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.AppendBulk(s.cells)
	table.Render()
	s.cells = nil
	return nil
}
