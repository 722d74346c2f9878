package sorter

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/ajitpratap0/colview/pkg/compression"
)

// run is a sorted sequence of rows persisted in one spill file. A run is
// never modified once its writer has finished.
type run struct {
	path  string
	rows  int64
	bytes int64
}

// runWriter streams sorted entries into a new run file
type runWriter struct {
	file  *os.File
	codec io.WriteCloser
	buf   *bufio.Writer
	path  string
	frame []byte
	rows  int64
	log   *zap.Logger
}

func createRun(dir string, id int, alg compression.Algorithm, log *zap.Logger) (*runWriter, error) {
	path := filepath.Join(dir, fmt.Sprintf("run-%06d", id))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to create run file: %w", err)
	}
	cw, err := compression.NewWriterLevel(f, alg, compression.Fastest)
	if err != nil {
		f.Close()
		removeRunFile(log, path)
		return nil, err
	}
	return &runWriter{
		file:  f,
		codec: cw,
		buf:   bufio.NewWriterSize(cw, 64*1024),
		path:  path,
		log:   log,
	}, nil
}

func (w *runWriter) write(e entry) error {
	w.frame = appendEntry(w.frame[:0], e)
	var prefix [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(prefix[:], uint64(len(w.frame)))
	if _, err := w.buf.Write(prefix[:n]); err != nil {
		return err
	}
	if _, err := w.buf.Write(w.frame); err != nil {
		return err
	}
	w.rows++
	return nil
}

// finish flushes and closes the run file
func (w *runWriter) finish() (*run, error) {
	if err := w.buf.Flush(); err != nil {
		w.abort()
		return nil, err
	}
	if err := w.codec.Close(); err != nil {
		w.abort()
		return nil, err
	}
	info, err := w.file.Stat()
	if err != nil {
		w.abort()
		return nil, err
	}
	if err := w.file.Close(); err != nil {
		removeRunFile(w.log, w.path)
		return nil, err
	}
	return &run{path: w.path, rows: w.rows, bytes: info.Size()}, nil
}

// abort discards a partially written run
func (w *runWriter) abort() {
	w.file.Close()
	removeRunFile(w.log, w.path)
}

// removeRunFile deletes a run file. Failures are logged; Close removes
// whatever is left with the spill directory.
func removeRunFile(log *zap.Logger, path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Debug("failed to remove run file", zap.String("path", path), zap.Error(err))
	}
}

// runReader streams entries back from a run file
type runReader struct {
	file  *os.File
	codec io.ReadCloser
	buf   *bufio.Reader
	frame []byte
}

func openRun(r *run, alg compression.Algorithm) (*runReader, error) {
	f, err := os.Open(r.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open run file: %w", err)
	}
	cr, err := compression.NewReader(bufio.NewReaderSize(f, 64*1024), alg)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &runReader{file: f, codec: cr, buf: bufio.NewReaderSize(cr, 64*1024)}, nil
}

// next returns the following entry, or io.EOF at the end of the run
func (r *runReader) next() (entry, error) {
	frame, err := readFrame(r.buf, r.buf, r.frame)
	if err != nil {
		return entry{}, err
	}
	r.frame = frame
	return decodeEntry(frame)
}

func (r *runReader) close() error {
	r.codec.Close()
	return r.file.Close()
}
