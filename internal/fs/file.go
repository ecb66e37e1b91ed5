// Package fs reads file contents for classification.
package fs

import (
	"errors"
	"os"

	"github.com/ostafen/sigscan/internal/mmap"
)

// DefaultMmapThreshold is the size from which regular files are
// memory-mapped instead of copied into memory.
const DefaultMmapThreshold = 4 * 1024 * 1024

// Content holds the full contents of a file.
// Bytes is only valid until Close is called.
type Content interface {
	Bytes() []byte
	Close() error
}

// ReadFunc reads the whole content of the file at path.
type ReadFunc func(path string) (Content, error)

// Reader reads whole files, mapping large regular files into memory.
type Reader struct {
	// MmapThreshold is the minimum size of a mapped file.
	// Values <= 0 disable mapping.
	MmapThreshold int64
}

func NewReader(mmapThreshold int64) *Reader {
	return &Reader{MmapThreshold: mmapThreshold}
}

// ReadFile returns the content of the file at path. Reading a directory
// fails like any other unreadable path.
func (r *Reader) ReadFile(path string) (Content, error) {
	if r.MmapThreshold > 0 {
		fi, err := os.Stat(path)
		if err != nil {
			return nil, err
		}

		if fi.Mode().IsRegular() && fi.Size() >= r.MmapThreshold {
			m, err := mmap.Map(path)
			if err == nil {
				return m, nil
			}
			if !errors.Is(err, mmap.ErrUnsupported) {
				return nil, err
			}
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return bytesContent(data), nil
}

type bytesContent []byte

func (b bytesContent) Bytes() []byte { return b }
func (b bytesContent) Close() error  { return nil }
