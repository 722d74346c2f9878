// Package formats opens Parquet and ORC files, optionally inside a
// compression container, and exposes them as pull-based batch sources with
// a normalized schema.
package formats

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/ajitpratap0/colview/pkg/compression"
	"github.com/ajitpratap0/colview/pkg/errors"
	"github.com/ajitpratap0/colview/pkg/mmap"
	"github.com/ajitpratap0/colview/pkg/models"
)

// Format represents a columnar storage format
type Format string

const (
	// Parquet is Apache Parquet format
	Parquet Format = "parquet"
	// ORC is Apache ORC format
	ORC Format = "orc"
)

// DefaultBatchSize is used when Options.BatchSize is not positive
const DefaultBatchSize = 8192

// BatchSource is a pull-based stream of row batches. Next returns io.EOF
// once the stream is exhausted; any other error ends the stream.
type BatchSource interface {
	Schema() *models.Schema
	Next(ctx context.Context) (*models.Batch, error)
}

// Source is a BatchSource backed by an open file
type Source interface {
	BatchSource
	// Format returns the file format
	Format() Format
	// EstimatedRows returns the row count recorded in the file footer,
	// or -1 when unknown
	EstimatedRows() int64
	// Close releases the file and decoder resources
	Close() error
}

// Options configures how sources decode files
type Options struct {
	// BatchSize is the number of rows per batch
	BatchSize int
	// Logger receives debug events; nil disables logging
	Logger *zap.Logger
}

func (o Options) batchSize() int {
	if o.BatchSize <= 0 {
		return DefaultBatchSize
	}
	return o.BatchSize
}

func (o Options) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}

// Detect resolves the format and compression of path from its extensions.
// One compression suffix is stripped before the format suffix is checked.
func Detect(path string) (Format, compression.Algorithm, error) {
	alg := compression.DetectFromPath(path)
	core := strings.ToLower(compression.StripExtension(filepath.Base(path)))

	switch {
	case strings.HasSuffix(core, ".parquet"):
		return Parquet, alg, nil
	case strings.HasSuffix(core, ".orc"):
		return ORC, alg, nil
	default:
		return "", alg, errors.Newf(errors.ErrorTypeUnsupportedFormat,
			"unsupported file type for file: %s", path).WithDetail("file", path)
	}
}

// Open detects the format of path and returns a source positioned at the
// first batch
func Open(ctx context.Context, path string, opts Options) (Source, error) {
	format, alg, err := Detect(path)
	if err != nil {
		return nil, err
	}
	in, err := openInput(path, alg)
	if err != nil {
		return nil, err
	}

	log := opts.logger().With(
		zap.String("file", path),
		zap.String("format", string(format)),
		zap.String("compression", string(alg)),
	)

	var src Source
	switch format {
	case Parquet:
		src, err = newParquetSource(ctx, in, opts, log)
	case ORC:
		src, err = newORCSource(in, opts, log)
	}
	if err != nil {
		in.Close()
		return nil, err
	}
	log.Debug("opened source",
		zap.Int64("estimated_rows", src.EstimatedRows()),
		zap.Int("columns", src.Schema().Len()))
	return src, nil
}

// input is a random-access view of a (decompressed) file
type input struct {
	io.ReaderAt
	io.Seeker
	size   int64
	closer io.Closer
}

func (in *input) Size() int64 { return in.size }

// Close is safe to call more than once since format readers close their
// input themselves
func (in *input) Close() error {
	if in.closer == nil {
		return nil
	}
	c := in.closer
	in.closer = nil
	return c.Close()
}

// openInput opens path for random access. Both formats keep their footer at
// the end of the file, so compressed files are decoded fully into memory.
func openInput(path string, alg compression.Algorithm) (*input, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Newf(errors.ErrorTypeFile, "file not found: %s", path).WithDetail("file", path)
		}
		return nil, errors.Wrap(err, errors.ErrorTypeFile, fmt.Sprintf("failed to open %s", path))
	}

	if alg == compression.None {
		if m, err := mmap.Map(f); err == nil {
			br := bytes.NewReader(m.Bytes())
			return &input{ReaderAt: br, Seeker: br, size: m.Size(), closer: m}, nil
		}
		// Pipes and other non-regular files are read through the descriptor
		info, err := f.Stat()
		if err != nil {
			f.Close()
			return nil, errors.Wrap(err, errors.ErrorTypeFile, fmt.Sprintf("failed to stat %s", path))
		}
		return &input{ReaderAt: f, Seeker: f, size: info.Size(), closer: f}, nil
	}

	defer f.Close()
	r, err := compression.NewReader(f, alg)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeSourceRead,
			fmt.Sprintf("failed to decompress %s", path)).WithDetail("compression", string(alg))
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeSourceRead,
			fmt.Sprintf("failed to decompress %s", path)).WithDetail("compression", string(alg))
	}
	br := bytes.NewReader(data)
	return &input{ReaderAt: br, Seeker: br, size: br.Size()}, nil
}

func readError(err error, format Format) error {
	return errors.Wrap(err, errors.ErrorTypeSourceRead, fmt.Sprintf("failed to read %s data", format))
}
