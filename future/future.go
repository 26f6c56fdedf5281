package future

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrPending is returned by Result while the future has not completed.
	ErrPending = errors.New("future: not completed")

	// ErrPanicked wraps a panic recovered from a function started with Go.
	ErrPanicked = errors.New("future: function panicked")

	// ErrNilRejection is stored when Reject is called with a nil error.
	ErrNilRejection = errors.New("future: rejected without an error")
)

// Awaitable is the completion side of a future, independent of its value type.
type Awaitable interface {
	// Done returns a channel closed when the future completes.
	Done() <-chan struct{}

	// Err returns the failure of a completed future, or nil.
	Err() error

	// OnComplete registers fn to run once the future completes.
	OnComplete(fn func(err error))
}

// Future is a write-once result cell.
//
// The first call to Resolve or Reject completes the future. Later calls are
// ignored and report false.
type Future[T any] struct {
	mu        sync.Mutex
	done      chan struct{}
	completed bool
	value     T
	err       error
	callbacks []func(error)
}

// Interface compliance.
var _ Awaitable = (*Future[struct{}])(nil)

// New returns a pending future.
func New[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Resolved returns a future already completed with v.
func Resolved[T any](v T) *Future[T] {
	f := New[T]()
	f.Resolve(v)
	return f
}

// Go runs fn in a new goroutine and returns a future for its outcome.
// A panic in fn rejects the future with an error wrapping ErrPanicked.
func Go[T any](fn func() (T, error)) *Future[T] {
	f := New[T]()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				f.Reject(fmt.Errorf("%w: %v", ErrPanicked, r))
			}
		}()
		v, err := fn()
		if err != nil {
			f.Reject(err)
			return
		}
		f.Resolve(v)
	}()
	return f
}

// Resolve completes the future with v. It reports whether this call
// completed the future.
func (f *Future[T]) Resolve(v T) bool {
	return f.complete(v, nil)
}

// Reject completes the future with err. It reports whether this call
// completed the future.
func (f *Future[T]) Reject(err error) bool {
	if err == nil {
		err = ErrNilRejection
	}
	var zero T
	return f.complete(zero, err)
}

func (f *Future[T]) complete(v T, err error) bool {
	f.mu.Lock()
	if f.completed {
		f.mu.Unlock()
		return false
	}
	f.completed = true
	f.value = v
	f.err = err
	callbacks := f.callbacks
	f.callbacks = nil
	close(f.done)
	f.mu.Unlock()

	for _, fn := range callbacks {
		fn(err)
	}
	return true
}

// Done returns a channel closed when the future completes.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Err returns the failure of a completed future. It is nil while pending and
// after Resolve.
func (f *Future[T]) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// Result returns the outcome without blocking, or ErrPending.
func (f *Future[T]) Result() (T, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.completed {
		var zero T
		return zero, ErrPending
	}
	return f.value, f.err
}

// Wait blocks until the future completes or ctx is done.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.Result()
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// OnComplete registers fn to run with the future's error once it completes.
//
// Callbacks run in the goroutine that completes the future, in registration
// order. If the future has already completed, fn runs immediately in the
// caller's goroutine.
func (f *Future[T]) OnComplete(fn func(err error)) {
	f.mu.Lock()
	if !f.completed {
		f.callbacks = append(f.callbacks, fn)
		f.mu.Unlock()
		return
	}
	err := f.err
	f.mu.Unlock()
	fn(err)
}
