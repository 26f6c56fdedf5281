package file

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/meigma/rangezip/source"
)

// Mode selects how a file is opened.
type Mode uint8

const (
	// ModeRead opens an existing file for reading.
	ModeRead Mode = iota

	// ModeWrite creates the file, truncating any existing content, for writing only.
	ModeWrite

	// ModeReadWriteCreate opens the file for reading and writing, creating it
	// when missing and keeping existing content.
	ModeReadWriteCreate
)

// String returns the string representation of the mode.
func (m Mode) String() string {
	switch m {
	case ModeRead:
		return "read"
	case ModeWrite:
		return "write"
	case ModeReadWriteCreate:
		return "read-write-create"
	default:
		return "unknown"
	}
}

func (m Mode) flags() (int, error) {
	switch m {
	case ModeRead:
		return os.O_RDONLY, nil
	case ModeWrite:
		return os.O_WRONLY | os.O_CREATE | os.O_TRUNC, nil
	case ModeReadWriteCreate:
		return os.O_RDWR | os.O_CREATE, nil
	default:
		return 0, fmt.Errorf("open mode %d: %w", m, source.ErrInvalidHandleState)
	}
}

// File is a source.Source over a local file using positioned I/O.
//
// Each call names its own offset, so no cursor is shared between calls.
// A File still serves one operation at a time: concurrent calls on one handle
// are serialized. Workers that need parallel access open their own File.
type File struct {
	mu     sync.Mutex
	f      *os.File
	path   string
	mode   Mode
	closed bool
	logger *slog.Logger
}

// Interface compliance.
var _ source.Source = (*File)(nil)

// Option configures a File.
type Option func(*File)

// WithLogger sets the logger for file operations.
// If not set, logging is disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(f *File) {
		f.logger = logger
	}
}

// log returns the logger, falling back to a discard logger if nil.
func (f *File) log() *slog.Logger {
	if f.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return f.logger
}

// Open opens path with the given mode.
func Open(path string, mode Mode, opts ...Option) (*File, error) {
	flags, err := mode.flags()
	if err != nil {
		return nil, err
	}
	osf, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	f := &File{f: osf, path: path, mode: mode}
	for _, opt := range opts {
		opt(f)
	}
	f.log().Debug("opened file", "path", path, "mode", mode)
	return f, nil
}

// Opener returns a source.Opener that opens path with mode on every call.
func Opener(path string, mode Mode, opts ...Option) source.Opener {
	return func(context.Context) (source.Source, error) {
		f, err := Open(path, mode, opts...)
		if err != nil {
			return nil, err
		}
		return f, nil
	}
}

// Name returns the path the file was opened with.
func (f *File) Name() string {
	return f.path
}

// Readable reports whether the file was opened for reading.
func (f *File) Readable() bool {
	return f.mode != ModeWrite
}

// Writable reports whether the file was opened for writing.
func (f *File) Writable() bool {
	return f.mode != ModeRead
}

// ReadAt reads len(p) bytes at off. When the file ends first it returns the
// bytes read and io.EOF.
func (f *File) ReadAt(p []byte, off int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.check("read", off, f.Readable()); err != nil {
		return 0, err
	}

	var n int
	for n < len(p) {
		m, err := pread(f.f, p[n:], off+int64(n))
		n += m
		if err != nil {
			return n, fmt.Errorf("read %s at %d: %w", f.path, off+int64(n), err)
		}
		if m == 0 {
			return n, io.EOF
		}
	}
	return n, nil
}

// WriteAt writes p at off, extending the file when needed.
func (f *File) WriteAt(p []byte, off int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.check("write", off, f.Writable()); err != nil {
		return 0, err
	}

	var n int
	for n < len(p) {
		m, err := pwrite(f.f, p[n:], off+int64(n))
		n += m
		if err != nil {
			return n, fmt.Errorf("write %s at %d: %w", f.path, off+int64(n), err)
		}
		if m == 0 {
			return n, fmt.Errorf("write %s at %d: %w", f.path, off+int64(n), io.ErrShortWrite)
		}
	}
	return n, nil
}

// Size returns the live length of the file.
func (f *File) Size() (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return 0, fmt.Errorf("size %s: %w: closed", f.path, source.ErrInvalidHandleState)
	}
	info, err := f.f.Stat()
	if err != nil {
		return 0, fmt.Errorf("size %s: %w", f.path, err)
	}
	return info.Size(), nil
}

// Truncate changes the length of the file. Growing the file does not promise
// zeroed content beyond what the platform guarantees.
func (f *File) Truncate(size int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.check("truncate", size, f.Writable()); err != nil {
		return err
	}
	if err := f.f.Truncate(size); err != nil {
		return fmt.Errorf("truncate %s to %d: %w", f.path, size, err)
	}
	return nil
}

// SetSparse asks the file system to treat the file as sparse.
// It is a no-op on platforms without such a hint.
func (f *File) SetSparse(sparse bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.check("set sparse", 0, f.Writable()); err != nil {
		return err
	}
	if err := setSparse(f.f, sparse); err != nil {
		return fmt.Errorf("set sparse %s: %w", f.path, err)
	}
	f.log().Debug("set sparse", "path", f.path, "sparse", sparse)
	return nil
}

// Close closes the file. Closing twice fails with source.ErrInvalidHandleState.
func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return fmt.Errorf("close %s: %w: already closed", f.path, source.ErrInvalidHandleState)
	}
	f.closed = true
	if err := f.f.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		return fmt.Errorf("close %s: %w", f.path, err)
	}
	return nil
}

// check validates handle state for an operation. Callers hold f.mu.
func (f *File) check(op string, off int64, allowed bool) error {
	switch {
	case f.closed:
		return fmt.Errorf("%s %s: %w: closed", op, f.path, source.ErrInvalidHandleState)
	case !allowed:
		return fmt.Errorf("%s %s: %w: opened for %s", op, f.path, source.ErrInvalidHandleState, f.mode)
	case off < 0:
		return fmt.Errorf("%s %s: %w: negative offset %d", op, f.path, source.ErrInvalidHandleState, off)
	}
	return nil
}
