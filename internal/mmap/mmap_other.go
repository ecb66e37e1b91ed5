//go:build !(linux || darwin || freebsd || netbsd || openbsd)

package mmap

import "os"

func mapFile(f *os.File, length int) ([]byte, error) {
	return nil, ErrUnsupported
}

func unmap(data []byte) error {
	return ErrUnsupported
}
