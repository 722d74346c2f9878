package formats

import (
	"context"
	"io"
	"strings"

	"github.com/ajitpratap0/colview/pkg/errors"
	"github.com/ajitpratap0/colview/pkg/models"
)

// Metadata summarizes a file footer
type Metadata struct {
	File        string     `json:"file" yaml:"file"`
	Format      Format     `json:"format" yaml:"format"`
	Compression string     `json:"compression" yaml:"compression"`
	Rows        int64      `json:"rows" yaml:"rows"`
	Columns     int        `json:"columns" yaml:"columns"`
	RowGroups   int        `json:"row_groups,omitempty" yaml:"row_groups,omitempty"`
	Stripes     int        `json:"stripes,omitempty" yaml:"stripes,omitempty"`
	CreatedBy   string     `json:"created_by,omitempty" yaml:"created_by,omitempty"`
	Version     string     `json:"version,omitempty" yaml:"version,omitempty"`
	KeyValue    []KeyValue `json:"key_value_metadata,omitempty" yaml:"key_value_metadata,omitempty"`
}

// KeyValue is one user-defined footer entry
type KeyValue struct {
	Key   string `json:"key" yaml:"key"`
	Value string `json:"value" yaml:"value"`
}

// ReadMetadata reads the footer of path without decoding any rows
func ReadMetadata(path string) (*Metadata, error) {
	format, alg, err := Detect(path)
	if err != nil {
		return nil, err
	}
	in, err := openInput(path, alg)
	if err != nil {
		return nil, err
	}
	defer in.Close()

	md := &Metadata{File: path, Format: format, Compression: string(alg)}
	switch format {
	case Parquet:
		err = parquetMetadata(in, md)
	case ORC:
		err = orcMetadata(in, md)
	}
	if err != nil {
		return nil, err
	}
	return md, nil
}

// RawSchema returns the schema of path as printed by the format library
func RawSchema(path string) (string, error) {
	format, alg, err := Detect(path)
	if err != nil {
		return "", err
	}
	in, err := openInput(path, alg)
	if err != nil {
		return "", err
	}
	defer in.Close()

	var sb strings.Builder
	switch format {
	case Parquet:
		err = parquetRawSchema(in, &sb)
	case ORC:
		err = orcRawSchema(in, &sb)
	}
	if err != nil {
		return "", err
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

// ReadSchema returns the normalized schema of path
func ReadSchema(ctx context.Context, path string) (*models.Schema, Format, error) {
	src, err := Open(ctx, path, Options{})
	if err != nil {
		return nil, "", err
	}
	defer src.Close()
	return src.Schema(), src.Format(), nil
}

// ReadAll drains src into a single batch. Intended for small inputs and
// tests.
func ReadAll(ctx context.Context, src BatchSource) (*models.Batch, error) {
	out := models.NewBatch(0)
	for {
		batch, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out.Rows = append(out.Rows, batch.Rows...)
	}
}
