//go:build !linux && !darwin
// +build !linux,!darwin

package mmap

import (
	"errors"
	"io"
	"os"
)

const adviceRandom = 0

// mmap reads the whole file on platforms without a mapping primitive
func mmap(f *os.File, length int) ([]byte, error) {
	data := make([]byte, length)
	if _, err := f.ReadAt(data, 0); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return data, nil
}

func munmap([]byte) error { return nil }

func madvise([]byte, int) error { return nil }
