// Package mmap maps read-only files into memory for zero-copy random
// access. The format readers seek to the footer first and then jump
// between column chunks, which a mapping serves without read syscalls.
package mmap

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// File is a read-only memory mapping of a whole file
type File struct {
	file *os.File
	data []byte
	size int64

	mu     sync.Mutex
	closed bool
}

// Open maps the file at path
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	m, err := Map(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return m, nil
}

// Map maps an already opened file. On success the mapping owns f and
// closes it on Close.
func Map(f *os.File) (*File, error) {
	stat, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	if !stat.Mode().IsRegular() {
		return nil, fmt.Errorf("cannot map %s: not a regular file", f.Name())
	}

	size := stat.Size()
	m := &File{file: f, size: size}
	if size == 0 {
		return m, nil
	}
	if int64(int(size)) != size {
		return nil, fmt.Errorf("file too large to map: %d bytes", size)
	}

	data, err := mmap(f, int(size))
	if err != nil {
		return nil, fmt.Errorf("failed to mmap file: %w", err)
	}
	// Footer first, then column chunks in any order
	_ = madvise(data, adviceRandom)
	m.data = data
	return m, nil
}

// Bytes returns the mapped contents. The slice is invalid after Close.
func (m *File) Bytes() []byte { return m.data }

// Size returns the file size in bytes
func (m *File) Size() int64 { return m.size }

// ReadAt implements io.ReaderAt
func (m *File) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("negative offset %d", off)
	}
	if off >= m.size {
		return 0, io.EOF
	}
	n := copy(p, m.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Close unmaps the file and closes it. It is idempotent.
func (m *File) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true

	var err error
	if m.data != nil {
		err = munmap(m.data)
		m.data = nil
	}
	if closeErr := m.file.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}
