package source

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// Source is offset-addressed random access to a single resource.
//
// Every call carries its own offset, so a Source holds no cursor. ReadAt
// follows io.ReaderAt: a read that stops at the end of the resource returns
// the bytes it got together with io.EOF.
//
// A Source is owned by the caller that opened it and is closed exactly once.
// Backends document how many calls may be in flight on one handle; workers
// that need simultaneous access open their own handles.
type Source interface {
	io.ReaderAt
	io.WriterAt
	io.Closer

	// Size reports the current length of the resource in bytes.
	Size() (int64, error)

	// Truncate changes the length of the resource.
	Truncate(size int64) error

	// Readable reports whether the handle was opened for reading.
	Readable() bool

	// Writable reports whether the handle was opened for writing.
	Writable() bool
}

// Opener returns a new handle on a fixed resource. Every call yields an
// independent Source that the caller closes.
type Opener func(ctx context.Context) (Source, error)

// Read returns up to length bytes starting at off.
//
// The result is shorter than length when the resource ends first and empty
// at the end of the resource; neither case is an error.
func Read(src io.ReaderAt, off, length int64) ([]byte, error) {
	if length < 0 {
		return nil, fmt.Errorf("read %d bytes at %d: %w", length, off, ErrInvalidHandleState)
	}
	buf := make([]byte, length)
	n, err := ReadInto(src, off, length, buf)
	return buf[:n], err
}

// ReadInto reads up to length bytes starting at off into buf and returns the
// number of bytes read. length is capped at len(buf).
func ReadInto(src io.ReaderAt, off, length int64, buf []byte) (int, error) {
	if off < 0 || length < 0 {
		return 0, fmt.Errorf("read %d bytes at %d: %w", length, off, ErrInvalidHandleState)
	}
	if length > int64(len(buf)) {
		length = int64(len(buf))
	}
	if length == 0 {
		return 0, nil
	}
	n, err := src.ReadAt(buf[:length], off)
	if errors.Is(err, io.EOF) {
		err = nil
	}
	return n, err
}

// ReadFull reads exactly len(p) bytes at off. A short read is reported as
// io.ErrUnexpectedEOF.
func ReadFull(src io.ReaderAt, p []byte, off int64) error {
	n, err := src.ReadAt(p, off)
	if n == len(p) {
		return nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}
