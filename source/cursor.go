package source

import (
	"errors"
	"fmt"
	"io"
)

// Cursor adapts a Source to the stream-oriented io interfaces by keeping its
// own position. It exists for consumers that expect an io.ReadSeeker.
//
// A Cursor is not safe for concurrent use.
type Cursor struct {
	src    Source
	pos    int64
	closed bool
}

// Interface compliance.
var _ io.ReadWriteSeeker = (*Cursor)(nil)

// NewCursor returns a Cursor positioned at the start of src.
// Closing the Cursor closes src.
func NewCursor(src Source) *Cursor {
	return &Cursor{src: src}
}

// Tell returns the current position.
func (c *Cursor) Tell() int64 {
	return c.pos
}

// Seek sets the position for the next Read or Write.
// Positions outside [0, size] are rejected with ErrInvalidHandleState.
func (c *Cursor) Seek(offset int64, whence int) (int64, error) {
	if c.closed {
		return 0, fmt.Errorf("seek: %w: closed", ErrInvalidHandleState)
	}
	size, err := c.src.Size()
	if err != nil {
		return 0, fmt.Errorf("seek: %w", err)
	}

	var pos int64
	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		pos = c.pos + offset
	case io.SeekEnd:
		pos = size + offset
	default:
		return 0, fmt.Errorf("seek: %w: whence %d", ErrInvalidHandleState, whence)
	}
	if pos < 0 || pos > size {
		return 0, fmt.Errorf("seek: %w: position %d outside [0, %d]", ErrInvalidHandleState, pos, size)
	}
	c.pos = pos
	return pos, nil
}

// Read reads into p from the current position and advances it.
func (c *Cursor) Read(p []byte) (int, error) {
	if c.closed {
		return 0, fmt.Errorf("read: %w: closed", ErrInvalidHandleState)
	}
	if len(p) == 0 {
		return 0, nil
	}
	n, err := c.src.ReadAt(p, c.pos)
	c.pos += int64(n)
	if n > 0 && errors.Is(err, io.EOF) {
		err = nil
	}
	return n, err
}

// ReadAll reads from the current position to the end of the resource.
func (c *Cursor) ReadAll() ([]byte, error) {
	if c.closed {
		return nil, fmt.Errorf("read all: %w: closed", ErrInvalidHandleState)
	}
	size, err := c.src.Size()
	if err != nil {
		return nil, fmt.Errorf("read all: %w", err)
	}
	if c.pos >= size {
		return []byte{}, nil
	}
	buf := make([]byte, size-c.pos)
	n, err := ReadInto(c.src, c.pos, int64(len(buf)), buf)
	c.pos += int64(n)
	return buf[:n], err
}

// Write writes p at the current position and advances it.
func (c *Cursor) Write(p []byte) (int, error) {
	if c.closed {
		return 0, fmt.Errorf("write: %w: closed", ErrInvalidHandleState)
	}
	n, err := c.src.WriteAt(p, c.pos)
	c.pos += int64(n)
	return n, err
}

// Close closes the underlying Source.
func (c *Cursor) Close() error {
	if c.closed {
		return fmt.Errorf("close: %w: already closed", ErrInvalidHandleState)
	}
	c.closed = true
	return c.src.Close()
}
