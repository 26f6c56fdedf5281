package future

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Policy selects when a combined future completes.
type Policy int

const (
	// FirstException completes with the first input failure, or with nil once
	// every input has succeeded.
	FirstException Policy = iota

	// FirstCompleted completes with the first input to finish, whatever its
	// outcome.
	FirstCompleted

	// AllCompleted completes with nil once every input has finished.
	AllCompleted
)

// String returns the policy name.
func (p Policy) String() string {
	switch p {
	case FirstException:
		return "first-exception"
	case FirstCompleted:
		return "first-completed"
	case AllCompleted:
		return "all-completed"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

// ErrStopped is returned by Poll when the stop function requests an early return.
var ErrStopped = errors.New("future: polling stopped")

// combiner tracks which inputs of a combined future have reported.
type combiner struct {
	mu       sync.Mutex
	policy   Policy
	pending  map[Awaitable]struct{}
	settled  bool
	combined *Future[Awaitable]
}

// Combine returns a future that completes according to policy as the inputs
// complete.
//
// Inputs are deduplicated by identity, so each must be of a comparable type
// such as *Future[T]. With FirstCompleted the result is the input that
// reported first. With FirstException a failure rejects the combined future
// with that input's error. AllCompleted, and FirstException without failures,
// resolve with nil after the last input reports. Zero inputs resolve
// immediately with nil.
//
// The combined future never cancels its inputs. Callers that need the
// remaining work to stop observe the combined future and signal it
// themselves.
func Combine(policy Policy, inputs ...Awaitable) *Future[Awaitable] {
	c := &combiner{
		policy:   policy,
		pending:  make(map[Awaitable]struct{}, len(inputs)),
		combined: New[Awaitable](),
	}
	for _, in := range inputs {
		c.pending[in] = struct{}{}
	}
	if len(c.pending) == 0 {
		c.combined.Resolve(nil)
		return c.combined
	}

	registered := make(map[Awaitable]struct{}, len(c.pending))
	for _, in := range inputs {
		if _, ok := registered[in]; ok {
			continue
		}
		registered[in] = struct{}{}
		in.OnComplete(func(err error) { c.report(in, err) })
	}
	return c.combined
}

func (c *combiner) report(in Awaitable, err error) {
	c.mu.Lock()
	delete(c.pending, in)
	var settle func()
	switch {
	case c.settled:
	case c.policy == FirstCompleted:
		settle = func() { c.combined.Resolve(in) }
	case c.policy == FirstException && err != nil:
		settle = func() { c.combined.Reject(err) }
	case len(c.pending) == 0:
		settle = func() { c.combined.Resolve(nil) }
	}
	c.settled = c.settled || settle != nil
	c.mu.Unlock()

	if settle != nil {
		settle()
	}
}

// Poll waits for a to complete, waking every interval to call stop.
//
// It returns a's error once a completes, ctx.Err() when ctx is done, and
// ErrStopped when stop reports true. stop may be nil. Poll suits callers whose
// interruption signal is not a context, such as a flag set by a signal
// handler.
func Poll(ctx context.Context, a Awaitable, interval time.Duration, stop func() bool) error {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-a.Done():
			return a.Err()
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if stop != nil && stop() {
				return ErrStopped
			}
		}
	}
}
