//go:build unix

package file

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

// pread reads at off with pread(2). A return of (0, nil) means end of file.
func pread(f *os.File, p []byte, off int64) (int, error) {
	fd := int(f.Fd())
	for {
		n, err := unix.Pread(fd, p, off)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if n < 0 {
			n = 0
		}
		return n, err
	}
}

// pwrite writes at off with pwrite(2).
func pwrite(f *os.File, p []byte, off int64) (int, error) {
	fd := int(f.Fd())
	for {
		n, err := unix.Pwrite(fd, p, off)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if n < 0 {
			n = 0
		}
		return n, err
	}
}
