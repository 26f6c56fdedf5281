package rangezip

import "github.com/meigma/rangezip/source"

// Errors re-exported from source.
var (
	// ErrNotRangeCapable is returned when a remote resource does not serve byte ranges.
	ErrNotRangeCapable = source.ErrNotRangeCapable

	// ErrTransientNetwork is returned when a remote read still fails after all attempts.
	ErrTransientNetwork = source.ErrTransientNetwork

	// ErrProtocolViolation is returned when a server or archive breaks its format.
	ErrProtocolViolation = source.ErrProtocolViolation

	// ErrNotAZip is returned when no end of central directory record exists.
	ErrNotAZip = source.ErrNotAZip

	// ErrEntryNotFound is returned when the archive has no member with the name.
	ErrEntryNotFound = source.ErrEntryNotFound

	// ErrUnsupportedCompression is returned when the member is not stored.
	ErrUnsupportedCompression = source.ErrUnsupportedCompression

	// ErrInvalidHandleState is returned for operations on closed handles or in the wrong mode.
	ErrInvalidHandleState = source.ErrInvalidHandleState
)
