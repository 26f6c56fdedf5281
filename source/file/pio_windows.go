//go:build windows

package file

import (
	"errors"
	"os"

	"golang.org/x/sys/windows"
)

// overlappedAt returns an OVERLAPPED carrying off, which makes a synchronous
// ReadFile/WriteFile positioned without touching the handle's file pointer.
func overlappedAt(off int64) *windows.Overlapped {
	return &windows.Overlapped{
		Offset:     uint32(off),
		OffsetHigh: uint32(off >> 32),
	}
}

// pread reads at off with ReadFile. A return of (0, nil) means end of file.
func pread(f *os.File, p []byte, off int64) (int, error) {
	var done uint32
	err := windows.ReadFile(windows.Handle(f.Fd()), p, &done, overlappedAt(off))
	if errors.Is(err, windows.ERROR_HANDLE_EOF) {
		return int(done), nil
	}
	return int(done), err
}

// pwrite writes at off with WriteFile.
func pwrite(f *os.File, p []byte, off int64) (int, error) {
	var done uint32
	err := windows.WriteFile(windows.Handle(f.Fd()), p, &done, overlappedAt(off))
	return int(done), err
}
