package output

import (
	"io"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/ajitpratap0/colview/pkg/formats"
)

// WriteFileHeader writes the banner that precedes the report of one file
func WriteFileHeader(w io.Writer, file string) error {
	p := &printer{w: w}
	p.printf("=== %s ===\n", file)
	return p.err
}

// WriteMetadataText prints md in the human readable layout
func WriteMetadataText(w io.Writer, md *formats.Metadata) error {
	p := &printer{w: w}
	p.printf("Format: %s\n", md.Format)
	p.printf("Compression: %s\n", md.Compression)
	switch md.Format {
	case formats.Parquet:
		p.printf("Number of row groups: %d\n", md.RowGroups)
	case formats.ORC:
		p.printf("Number of stripes: %d\n", md.Stripes)
	}
	p.printf("Number of rows: %d\n", md.Rows)
	p.printf("Number of columns: %d\n", md.Columns)

	if md.Format == formats.Parquet {
		createdBy := md.CreatedBy
		if createdBy == "" {
			createdBy = "N/A"
		}
		p.printf("Created by: %s\n", createdBy)
		if md.Version != "" {
			p.printf("Version: %s\n", md.Version)
		}
	}
	if len(md.KeyValue) > 0 {
		if md.Format == formats.ORC {
			p.printf("User metadata:\n")
		} else {
			p.printf("Key-value metadata:\n")
		}
		for _, kv := range md.KeyValue {
			p.printf("  %s: %s\n", kv.Key, kv.Value)
		}
	}
	return p.err
}

// WriteJSON writes v as indented JSON followed by a newline
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteYAML writes v as a YAML document
func WriteYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
