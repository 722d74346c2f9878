// Package output renders query rows, schemas and file metadata for the
// terminal and for machine consumers.
package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/ajitpratap0/colview/pkg/errors"
	"github.com/ajitpratap0/colview/pkg/models"
)

// Format names a row rendering
type Format string

const (
	// FormatTable draws a bordered table, rendered once all rows arrived
	FormatTable Format = "table"
	// FormatVertical prints one block per row with a line per column
	FormatVertical Format = "vertical"
	// FormatNDJSON writes one JSON object per line as rows arrive
	FormatNDJSON Format = "ndjson"
)

// Sink consumes a row stream. Begin receives the schema of the rows;
// End flushes anything still buffered.
type Sink interface {
	Begin(schema *models.Schema) error
	WriteRow(row models.Row) error
	End() error
}

// Options tunes text rendering
type Options struct {
	// Truncate cuts cells longer than this many characters, 0 disables.
	// NDJSON output is never truncated.
	Truncate int
}

// ParseFormat resolves a format name
func ParseFormat(name string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(name))); f {
	case FormatTable, FormatVertical, FormatNDJSON:
		return f, nil
	default:
		return "", errors.Newf(errors.ErrorTypeValidation,
			"unknown output format %q, use table, vertical or ndjson", name)
	}
}

// New creates the sink for format writing to w
func New(format Format, w io.Writer, opts Options) (Sink, error) {
	switch format {
	case FormatTable:
		return NewTableSink(w, opts), nil
	case FormatVertical:
		return NewVerticalSink(w, opts), nil
	case FormatNDJSON:
		return NewNDJSONSink(w), nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}
