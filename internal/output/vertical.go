package output

import (
	"bufio"
	"fmt"
	"io"

	"github.com/ajitpratap0/colview/pkg/models"
)

const verticalRule = "***************************"

// VerticalSink prints one block per row, with the column names right
// aligned in a 20 character gutter
type VerticalSink struct {
	w     *bufio.Writer
	opts  Options
	names []string
	n     int
}

// NewVerticalSink creates a vertical sink
func NewVerticalSink(w io.Writer, opts Options) *VerticalSink {
	return &VerticalSink{w: bufio.NewWriter(w), opts: opts}
}

// Begin implements Sink
func (s *VerticalSink) Begin(schema *models.Schema) error {
	s.names = schema.Names()
	return nil
}

// WriteRow implements Sink
func (s *VerticalSink) WriteRow(row models.Row) error {
	if s.n > 0 {
		if err := s.w.WriteByte('\n'); err != nil {
			return err
		}
	}
	s.n++
	if _, err := fmt.Fprintf(s.w, "%s %d %s\n", verticalRule, s.n, verticalRule); err != nil {
		return err
	}
	for i, name := range s.names {
		if _, err := fmt.Fprintf(s.w, "%20s: %s\n", name, Truncate(FormatValue(row[i]), s.opts.Truncate)); err != nil {
			return err
		}
	}
	return nil
}

// End implements Sink
func (s *VerticalSink) End() error {
	return s.w.Flush()
}
