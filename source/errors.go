package source

import "errors"

// Error kinds shared by every backend and by the ZIP locator.
// Callers branch on them with errors.Is.
var (
	// ErrNotRangeCapable is returned when a remote resource does not advertise
	// byte-range support or reports no usable length.
	ErrNotRangeCapable = errors.New("rangezip: remote not range capable")

	// ErrTransientNetwork is returned when a connection-level failure persisted
	// past the configured retry bound.
	ErrTransientNetwork = errors.New("rangezip: transient network failure")

	// ErrProtocolViolation is returned for an unexpected HTTP status or length,
	// or for any ZIP structure whose signature or lengths do not match.
	ErrProtocolViolation = errors.New("rangezip: protocol violation")

	// ErrNotAZip is returned when no end of central directory record exists
	// within the search window.
	ErrNotAZip = errors.New("rangezip: not a zip archive")

	// ErrEntryNotFound is returned when the central directory has no member
	// with the requested name.
	ErrEntryNotFound = errors.New("rangezip: entry not found")

	// ErrUnsupportedCompression is returned when the requested member is not
	// stored uncompressed.
	ErrUnsupportedCompression = errors.New("rangezip: unsupported compression")

	// ErrInvalidHandleState is returned for operations on a closed handle, for
	// operations the handle was not opened for, and for positions outside the
	// valid bounds.
	ErrInvalidHandleState = errors.New("rangezip: invalid handle state")
)
