package output

import (
	"bufio"
	"bytes"
	"io"

	"github.com/goccy/go-json"

	"github.com/ajitpratap0/colview/pkg/models"
)

// object is a JSON object with a fixed key order
type object struct {
	keys   []string
	values []any
}

// MarshalJSON implements json.Marshaler
func (o object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range o.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		value, err := json.Marshal(o.values[i])
		if err != nil {
			return nil, err
		}
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// NDJSONSink writes each row as one JSON object keyed by column name
type NDJSONSink struct {
	w    *bufio.Writer
	keys []string
	row  object
}

// NewNDJSONSink creates a newline-delimited JSON sink
func NewNDJSONSink(w io.Writer) *NDJSONSink {
	return &NDJSONSink{w: bufio.NewWriterSize(w, 64*1024)}
}

// Begin implements Sink
func (s *NDJSONSink) Begin(schema *models.Schema) error {
	s.keys = schema.Names()
	s.row = object{keys: s.keys, values: make([]any, len(s.keys))}
	return nil
}

// WriteRow implements Sink
func (s *NDJSONSink) WriteRow(row models.Row) error {
	for i := range s.keys {
		s.row.values[i] = JSONValue(row[i])
	}
	line, err := s.row.MarshalJSON()
	if err != nil {
		return err
	}
	if _, err := s.w.Write(line); err != nil {
		return err
	}
	return s.w.WriteByte('\n')
}

// End implements Sink
func (s *NDJSONSink) End() error {
	return s.w.Flush()
}
