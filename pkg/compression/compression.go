// Package compression provides streaming codecs for colview.
//
// Two places in the tool use it:
//   - input files ending in a known compression extension (data.parquet.gz)
//     are decoded before the format reader sees them
//   - the external sorter encodes spilled run files with a configurable codec
//
// # Algorithm Selection
//
//   - S2/Snappy: fastest, moderate ratio, the default for spill files
//   - LZ4: very fast, decent ratio
//   - Zstd: best ratio, good speed
//   - Gzip/Zlib: wide compatibility
//
// # Usage
//
//	alg := compression.DetectFromPath("events.parquet.zst") // Zstd
//	r, err := compression.NewReader(f, alg)
//	if err != nil {
//		return err
//	}
//	defer r.Close()
package compression

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Algorithm names a compression codec
type Algorithm string

const (
	// None passes bytes through unchanged
	None Algorithm = "none"
	// Gzip represents gzip compression
	Gzip Algorithm = "gzip"
	// Zlib represents zlib compression
	Zlib Algorithm = "zlib"
	// Snappy represents framed snappy compression
	Snappy Algorithm = "snappy"
	// LZ4 represents lz4 frame compression
	LZ4 Algorithm = "lz4"
	// Zstd represents zstandard compression
	Zstd Algorithm = "zstd"
	// S2 represents s2 compression (Snappy compatible)
	S2 Algorithm = "s2"
)

// Level trades compression speed against ratio
type Level int

const (
	// Fastest prioritizes speed over compression ratio
	Fastest Level = 1
	// Default balances speed and compression
	Default Level = 5
	// Best maximizes compression ratio
	Best Level = 9
)

// extensions maps file suffixes to the codec that produced them
var extensions = map[string]Algorithm{
	".gz":     Gzip,
	".gzip":   Gzip,
	".zlib":   Zlib,
	".z":      Zlib,
	".snappy": Snappy,
	".sz":     Snappy,
	".lz4":    LZ4,
	".zst":    Zstd,
	".zstd":   Zstd,
	".s2":     S2,
}

// Parse resolves a codec name as written in configuration
func Parse(name string) (Algorithm, error) {
	switch alg := Algorithm(strings.ToLower(strings.TrimSpace(name))); alg {
	case None, Gzip, Zlib, Snappy, LZ4, Zstd, S2:
		return alg, nil
	case "":
		return None, nil
	default:
		return "", fmt.Errorf("unsupported compression algorithm: %s", name)
	}
}

// DetectFromPath returns the codec implied by the file extension, or None
func DetectFromPath(path string) Algorithm {
	if alg, ok := extensions[strings.ToLower(filepath.Ext(path))]; ok {
		return alg
	}
	return None
}

// StripExtension removes a compression extension so the underlying format
// can be detected from what remains
func StripExtension(path string) string {
	ext := filepath.Ext(path)
	if _, ok := extensions[strings.ToLower(ext)]; ok {
		return strings.TrimSuffix(path, ext)
	}
	return path
}

// NewReader wraps r with a decompressor for alg. Closing the returned reader
// releases decoder resources but does not close r.
func NewReader(r io.Reader, alg Algorithm) (io.ReadCloser, error) {
	switch alg {
	case None, "":
		return io.NopCloser(r), nil
	case Gzip:
		return gzip.NewReader(r)
	case Zlib:
		return zlib.NewReader(r)
	case Snappy:
		return io.NopCloser(snappy.NewReader(r)), nil
	case S2:
		return io.NopCloser(s2.NewReader(r)), nil
	case LZ4:
		return io.NopCloser(lz4.NewReader(r)), nil
	case Zstd:
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
		}
		return dec.IOReadCloser(), nil
	default:
		return nil, fmt.Errorf("unsupported compression algorithm: %s", alg)
	}
}

// NewWriter wraps w with a compressor for alg at the Default level.
// Close must be called to flush the stream. It does not close w.
func NewWriter(w io.Writer, alg Algorithm) (io.WriteCloser, error) {
	return NewWriterLevel(w, alg, Default)
}

// NewWriterLevel is NewWriter with an explicit level
func NewWriterLevel(w io.Writer, alg Algorithm, level Level) (io.WriteCloser, error) {
	switch alg {
	case None, "":
		return nopWriteCloser{w}, nil
	case Gzip:
		return gzip.NewWriterLevel(w, mapGzipLevel(level))
	case Zlib:
		return zlib.NewWriterLevel(w, mapGzipLevel(level))
	case Snappy:
		return snappy.NewBufferedWriter(w), nil
	case S2:
		if level >= Best {
			return s2.NewWriter(w, s2.WriterBetterCompression()), nil
		}
		return s2.NewWriter(w), nil
	case LZ4:
		lw := lz4.NewWriter(w)
		if err := lw.Apply(lz4.CompressionLevelOption(mapLZ4Level(level))); err != nil {
			return nil, fmt.Errorf("failed to configure lz4 writer: %w", err)
		}
		return lw, nil
	case Zstd:
		enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(mapZstdLevel(level)))
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
		}
		return enc, nil
	default:
		return nil, fmt.Errorf("unsupported compression algorithm: %s", alg)
	}
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

func mapGzipLevel(level Level) int {
	switch {
	case level <= Fastest:
		return gzip.BestSpeed
	case level >= Best:
		return gzip.BestCompression
	default:
		return gzip.DefaultCompression
	}
}

func mapLZ4Level(level Level) lz4.CompressionLevel {
	switch {
	case level <= Fastest:
		return lz4.Fast
	case level >= Best:
		return lz4.Level9
	default:
		return lz4.Level5
	}
}

func mapZstdLevel(level Level) zstd.EncoderLevel {
	switch {
	case level <= Fastest:
		return zstd.SpeedFastest
	case level >= Best:
		return zstd.SpeedBestCompression
	default:
		return zstd.SpeedDefault
	}
}
