package http //nolint:revive // intentional naming for domain clarity

import (
	"context"
	"errors"
	"io"
	"net"
	"syscall"

	"github.com/meigma/rangezip/source"
)

// isTransient reports whether err is a connection-level failure worth
// resuming: dial and socket errors, timeouts and bodies cut short.
func isTransient(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, source.ErrProtocolViolation), errors.Is(err, context.Canceled):
		return false
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.EPIPE):
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
