// Package testutil provides in-memory sources and archive fixtures for tests.
package testutil

import (
	"fmt"
	"io"
	"sync"

	"github.com/meigma/rangezip/source"
)

// ReadRange records one ReadAt call against a MemSource.
type ReadRange struct {
	Off    int64
	Length int
}

// MemSource implements source.Source over a byte slice and records reads.
type MemSource struct {
	mu       sync.Mutex
	data     []byte
	closed   bool
	readOnly bool
	reads    []ReadRange
}

// Interface compliance.
var _ source.Source = (*MemSource)(nil)

// NewMemSource returns a writable source backed by data.
func NewMemSource(data []byte) *MemSource {
	return &MemSource{data: data}
}

// NewReadOnlySource returns a source backed by data that rejects writes.
func NewReadOnlySource(data []byte) *MemSource {
	return &MemSource{data: data, readOnly: true}
}

// ReadAt implements io.ReaderAt semantics over the backing slice.
func (m *MemSource) ReadAt(p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, fmt.Errorf("read: %w", source.ErrInvalidHandleState)
	}
	if off < 0 {
		return 0, fmt.Errorf("read at %d: %w", off, source.ErrInvalidHandleState)
	}
	m.reads = append(m.reads, ReadRange{Off: off, Length: len(p)})
	if off >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// WriteAt writes p at off, growing the backing slice when needed.
func (m *MemSource) WriteAt(p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || m.readOnly || off < 0 {
		return 0, fmt.Errorf("write: %w", source.ErrInvalidHandleState)
	}
	if end := off + int64(len(p)); end > int64(len(m.data)) {
		grown := make([]byte, end)
		copy(grown, m.data)
		m.data = grown
	}
	return copy(m.data[off:], p), nil
}

// Size returns the length of the backing slice.
func (m *MemSource) Size() (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, fmt.Errorf("size: %w", source.ErrInvalidHandleState)
	}
	return int64(len(m.data)), nil
}

// Truncate resizes the backing slice.
func (m *MemSource) Truncate(size int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || m.readOnly || size < 0 {
		return fmt.Errorf("truncate: %w", source.ErrInvalidHandleState)
	}
	resized := make([]byte, size)
	copy(resized, m.data)
	m.data = resized
	return nil
}

// Readable always reports true.
func (m *MemSource) Readable() bool { return true }

// Writable reports whether writes are accepted.
func (m *MemSource) Writable() bool { return !m.readOnly }

// Close marks the source closed. A second Close fails.
func (m *MemSource) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("close: %w", source.ErrInvalidHandleState)
	}
	m.closed = true
	return nil
}

// Bytes returns the backing slice for tests that need to inspect or mutate data.
func (m *MemSource) Bytes() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data
}

// Reads returns a copy of the recorded reads.
func (m *MemSource) Reads() []ReadRange {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ReadRange(nil), m.reads...)
}

// BytesRead returns the total number of bytes requested across all reads.
func (m *MemSource) BytesRead() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total int64
	for _, r := range m.reads {
		total += int64(r.Length)
	}
	return total
}

// Pattern returns n deterministic bytes derived from seed.
func Pattern(n int, seed byte) []byte {
	b := make([]byte, n)
	x := uint32(seed) | 1
	for i := range b {
		x ^= x << 13
		x ^= x >> 17
		x ^= x << 5
		b[i] = byte(x)
	}
	return b
}
