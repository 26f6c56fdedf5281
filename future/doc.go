// Package future provides write-once result cells and a combinator that
// turns several independently completing futures into one wait condition.
//
// A Future is completed exactly once, by Resolve or Reject. Completion closes
// its Done channel and runs registered callbacks. Combine builds a future
// over many inputs that completes on the first completion, the first
// failure, or once every input has finished:
//
//	workers := make([]future.Awaitable, 0, n)
//	for i := range n {
//		workers = append(workers, future.Go(func() (struct{}, error) {
//			return struct{}{}, copyChunk(ctx, i)
//		}))
//	}
//	_, err := future.Combine(future.FirstException, workers...).Wait(ctx)
package future
