package extract

import "log/slog"

// Option configures Entry.
type Option func(*extractor)

// WithWorkers sets the number of concurrent copy workers.
// Values < 1 are treated as 1.
func WithWorkers(n int) Option {
	return func(x *extractor) {
		x.workers = max(n, 1)
	}
}

// WithChunkSize sets the number of bytes a worker copies per step.
// Values < 1 keep the default.
func WithChunkSize(n int) Option {
	return func(x *extractor) {
		if n > 0 {
			x.chunkSize = n
		}
	}
}

// WithMaxBuffered caps the chunk bytes held by all workers at once.
// A value of 0 disables the budget.
func WithMaxBuffered(limit int64) Option {
	return func(x *extractor) {
		x.maxBuffer = limit
	}
}

// WithSparse controls whether the destination is flagged sparse before it is
// resized. The default is true.
func WithSparse(sparse bool) Option {
	return func(x *extractor) {
		x.sparse = sparse
	}
}

// WithProgress sets a callback for copy progress.
func WithProgress(fn ProgressFunc) Option {
	return func(x *extractor) {
		x.progress = fn
	}
}

// WithLogger sets the logger for extraction.
// If not set, logging is disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(x *extractor) {
		x.logger = logger
	}
}
