// Package mmap maps whole files into memory for read-only access.
package mmap

import (
	"errors"
	"fmt"
	"os"
)

var ErrUnsupported = errors.New("mmap is not supported on this platform")

// MmapFile represents a read-only memory-mapped file.
type MmapFile struct {
	Data     []byte // The memory-mapped byte slice
	FileSize int    // Size of the underlying file at mapping time
}

// Map maps the whole file at filePath read-only.
// Empty files cannot be mapped and return an error.
func Map(filePath string) (*MmapFile, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file %q: %w", filePath, err)
	}
	// the mapping stays valid after the descriptor is closed
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to get file info for %q: %w", filePath, err)
	}

	if !fi.Mode().IsRegular() {
		return nil, fmt.Errorf("file %q is not a regular file, cannot mmap", filePath)
	}

	fileSize := int(fi.Size())
	if fileSize == 0 {
		return nil, fmt.Errorf("file %q is empty, cannot mmap", filePath)
	}

	data, err := mapFile(f, fileSize)
	if err != nil {
		return nil, fmt.Errorf("failed to mmap file %q with length %d: %w", filePath, fileSize, err)
	}

	return &MmapFile{
		Data:     data,
		FileSize: fileSize,
	}, nil
}

// Close unmaps the memory region. Data must not be used afterwards.
func (mr *MmapFile) Close() error {
	if mr.Data == nil {
		return nil
	}

	err := unmap(mr.Data)
	mr.Data = nil
	if err != nil {
		return fmt.Errorf("failed to munmap: %w", err)
	}
	return nil
}

func (mr *MmapFile) Bytes() []byte {
	return mr.Data
}
