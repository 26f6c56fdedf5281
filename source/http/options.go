package http //nolint:revive // intentional naming for domain clarity

import (
	"log/slog"
	nethttp "net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Option configures a Source.
type Option func(*Source)

// WithClient sets the HTTP client used for requests.
// A supplied client is shared state: workers that need independent
// connections should not pass the same client to several Sources.
func WithClient(client *nethttp.Client) Option {
	return func(s *Source) {
		s.client = client
	}
}

// WithHeaders sets additional headers on each request.
func WithHeaders(headers nethttp.Header) Option {
	return func(s *Source) {
		if headers == nil {
			return
		}
		s.headers = headers.Clone()
	}
}

// WithHeader sets a single header on each request.
func WithHeader(key, value string) Option {
	return func(s *Source) {
		if s.headers == nil {
			s.headers = make(nethttp.Header)
		}
		s.headers.Set(key, value)
	}
}

// WithMaxAttempts bounds the number of GET requests one read may issue,
// counting the first. Values < 1 are treated as 1.
func WithMaxAttempts(n int) Option {
	return func(s *Source) {
		if n < 1 {
			n = 1
		}
		s.maxAttempts = n
	}
}

// WithChunkSize sets how many bytes are copied from a response body per step.
// Values < 1 restore DefaultChunkSize.
func WithChunkSize(n int) Option {
	return func(s *Source) {
		if n < 1 {
			n = DefaultChunkSize
		}
		s.chunkSize = n
	}
}

// WithAttemptTimeout bounds each GET attempt, body included.
// Zero disables the bound.
func WithAttemptTimeout(d time.Duration) Option {
	return func(s *Source) {
		s.attemptTimeout = d
	}
}

// WithBackOff sets the delay policy between attempts. newBackOff is called
// once per read that needs a retry.
func WithBackOff(newBackOff func() backoff.BackOff) Option {
	return func(s *Source) {
		if newBackOff == nil {
			return
		}
		s.newBackOff = newBackOff
	}
}

// WithProgress sets a callback invoked as bytes arrive.
func WithProgress(fn ProgressFunc) Option {
	return func(s *Source) {
		s.progress = fn
	}
}

// WithLogger sets the logger for request and retry events.
// If not set, logging is disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Source) {
		s.logger = logger
	}
}

// WithMetrics records requests, retries and received bytes in m.
func WithMetrics(m *Metrics) Option {
	return func(s *Source) {
		s.metrics = m
	}
}
