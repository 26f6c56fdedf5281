//go:build !unix && !windows

package file

import (
	"errors"
	"io"
	"os"
)

// pread falls back to os.File.ReadAt. A return of (0, nil) means end of file.
func pread(f *os.File, p []byte, off int64) (int, error) {
	n, err := f.ReadAt(p, off)
	if errors.Is(err, io.EOF) {
		err = nil
	}
	return n, err
}

// pwrite falls back to os.File.WriteAt.
func pwrite(f *os.File, p []byte, off int64) (int, error) {
	return f.WriteAt(p, off)
}
