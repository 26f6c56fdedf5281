package http //nolint:revive // intentional naming for domain clarity

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	nethttp "net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dustin/go-humanize"

	"github.com/meigma/rangezip/source"
)

const (
	// DefaultMaxAttempts is the default number of GETs one read may issue.
	DefaultMaxAttempts = 10

	// DefaultChunkSize is the default number of bytes copied from a response
	// body per step.
	DefaultChunkSize = 8 << 10
)

// ProgressFunc receives the bytes received so far and the bytes expected for
// one read. It is called after every chunk and once more when the read
// completes.
type ProgressFunc func(done, total int64)

// Source implements source.Source with HTTP range requests.
//
// The remote length is fixed when the Source is created. Each Source owns its
// own HTTP client unless one is supplied, so Sources opened for separate
// workers share no connection state.
type Source struct {
	url            string
	client         *nethttp.Client
	ownsClient     bool
	headers        nethttp.Header
	size           int64
	maxAttempts    int
	chunkSize      int
	attemptTimeout time.Duration
	newBackOff     func() backoff.BackOff
	progress       ProgressFunc
	logger         *slog.Logger
	metrics        *Metrics
	closed         atomic.Bool
}

// Interface compliance.
var _ source.Source = (*Source)(nil)

// NewSource probes url with a HEAD request and returns a Source for it.
//
// The probe must report "Accept-Ranges: bytes" and a positive Content-Length,
// otherwise NewSource fails with source.ErrNotRangeCapable.
func NewSource(ctx context.Context, url string, opts ...Option) (*Source, error) {
	s := &Source{
		url:         url,
		maxAttempts: DefaultMaxAttempts,
		chunkSize:   DefaultChunkSize,
		newBackOff:  defaultBackOff,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.client == nil {
		s.client = newClient()
		s.ownsClient = true
	}

	size, err := s.probe(ctx)
	if err != nil {
		if s.ownsClient {
			s.client.CloseIdleConnections()
		}
		return nil, err
	}
	s.size = size
	s.log().Debug("probed remote", "url", url, "size", humanize.IBytes(uint64(size)))
	return s, nil
}

// Opener returns a source.Opener that creates a new Source for url on every
// call. Each Source probes the remote on creation.
func Opener(url string, opts ...Option) source.Opener {
	return func(ctx context.Context) (source.Source, error) {
		s, err := NewSource(ctx, url, opts...)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

// newClient returns a client with a private transport. Compression is off so
// range offsets address raw bytes.
func newClient() *nethttp.Client {
	transport := nethttp.DefaultTransport.(*nethttp.Transport).Clone() //nolint:errcheck // DefaultTransport is always *Transport
	transport.DisableCompression = true
	return &nethttp.Client{Transport: transport}
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 0
	return b
}

// log returns the logger, falling back to a discard logger if nil.
func (s *Source) log() *slog.Logger {
	if s.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return s.logger
}

// URL returns the remote resource location.
func (s *Source) URL() string {
	return s.url
}

// Size returns the remote length reported by the probe.
func (s *Source) Size() (int64, error) {
	if s.closed.Load() {
		return 0, fmt.Errorf("size %s: %w: closed", s.url, source.ErrInvalidHandleState)
	}
	return s.size, nil
}

// Readable always reports true.
func (s *Source) Readable() bool { return true }

// Writable always reports false.
func (s *Source) Writable() bool { return false }

// WriteAt is not supported by remote sources.
func (s *Source) WriteAt([]byte, int64) (int, error) {
	return 0, fmt.Errorf("write %s: %w: remote source is read-only", s.url, source.ErrInvalidHandleState)
}

// Truncate is not supported by remote sources.
func (s *Source) Truncate(int64) error {
	return fmt.Errorf("truncate %s: %w: remote source is read-only", s.url, source.ErrInvalidHandleState)
}

// Close releases idle connections of a client owned by the Source.
// Closing twice fails with source.ErrInvalidHandleState.
func (s *Source) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return fmt.Errorf("close %s: %w: already closed", s.url, source.ErrInvalidHandleState)
	}
	if s.ownsClient {
		s.client.CloseIdleConnections()
	}
	return nil
}

// ReadAt reads len(p) bytes at off. It implements io.ReaderAt.
func (s *Source) ReadAt(p []byte, off int64) (int, error) {
	return s.ReadAtContext(context.Background(), p, off)
}

// ReadAtContext reads len(p) bytes at off, clamped to the remote length.
//
// The body is copied into p in bounded chunks. When a transient network
// failure interrupts a response, the next request asks only for the bytes not
// yet received, so no byte is fetched twice or skipped. After the configured
// number of attempts the failure is returned wrapped in
// source.ErrTransientNetwork. A read that stops at the end of the resource
// returns io.EOF with the bytes read.
func (s *Source) ReadAtContext(ctx context.Context, p []byte, off int64) (int, error) {
	if s.closed.Load() {
		return 0, fmt.Errorf("read %s: %w: closed", s.url, source.ErrInvalidHandleState)
	}
	if off < 0 {
		return 0, fmt.Errorf("read %s at %d: %w: negative offset", s.url, off, source.ErrInvalidHandleState)
	}
	if len(p) == 0 {
		return 0, nil
	}
	if off >= s.size {
		return 0, io.EOF
	}

	end := min(off+int64(len(p))-1, s.size-1)
	expected := end - off + 1
	buf := p[:expected]

	var (
		received int64
		failures int
		b        backoff.BackOff
	)
	for received < expected {
		n, err := s.fetch(ctx, buf[received:], off+received, end, received, expected)
		received += int64(n)
		if err == nil {
			break
		}
		if ctx.Err() != nil || !isTransient(err) {
			return int(received), err
		}

		failures++
		s.metrics.retried()
		if failures >= s.maxAttempts {
			return int(received), fmt.Errorf("read %s bytes=%d-%d after %d attempts: %w: %w",
				s.url, off, end, failures, source.ErrTransientNetwork, err)
		}
		if b == nil {
			b = s.newBackOff()
		}
		delay := b.NextBackOff()
		if delay == backoff.Stop {
			return int(received), fmt.Errorf("read %s bytes=%d-%d: %w: %w",
				s.url, off, end, source.ErrTransientNetwork, err)
		}
		s.log().Warn("transient read failure, resuming",
			"url", s.url, "attempt", failures, "received", received, "expected", expected, "error", err)
		if err := sleep(ctx, delay); err != nil {
			return int(received), err
		}
	}

	if received != expected {
		return int(received), fmt.Errorf("read %s bytes=%d-%d: %w: received %d of %d bytes",
			s.url, off, end, source.ErrProtocolViolation, received, expected)
	}
	if s.progress != nil {
		s.progress(expected, expected)
	}
	if expected < int64(len(p)) {
		return int(received), io.EOF
	}
	return int(received), nil
}

// fetch issues one GET for bytes [start, end] and copies the body into dst.
// done and total feed the progress callback.
func (s *Source) fetch(ctx context.Context, dst []byte, start, end, done, total int64) (int, error) {
	if s.attemptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.attemptTimeout)
		defer cancel()
	}

	req, err := s.newRequest(ctx, nethttp.MethodGet)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", start, end))
	s.log().Debug("range request", "url", s.url, "range", req.Header.Get("Range"))

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body) //nolint:errcheck // best-effort drain for connection reuse
		_ = resp.Body.Close()
	}()
	s.metrics.request(nethttp.MethodGet, resp.StatusCode)

	if resp.StatusCode != nethttp.StatusPartialContent {
		return 0, fmt.Errorf("range %s bytes=%d-%d: %w: status %s",
			s.url, start, end, source.ErrProtocolViolation, resp.Status)
	}

	var n int
	for n < len(dst) {
		m, err := resp.Body.Read(dst[n:min(n+s.chunkSize, len(dst))])
		n += m
		if m > 0 {
			s.metrics.received(m)
			if s.progress != nil {
				s.progress(done+int64(n), total)
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return n, err
		}
	}
	if n < len(dst) {
		return n, fmt.Errorf("range %s bytes=%d-%d: %w: body ended after %d of %d bytes",
			s.url, start, end, source.ErrProtocolViolation, n, len(dst))
	}
	var extra [1]byte
	if m, _ := resp.Body.Read(extra[:]); m > 0 {
		return n, fmt.Errorf("range %s bytes=%d-%d: %w: body longer than %d bytes",
			s.url, start, end, source.ErrProtocolViolation, len(dst))
	}
	return n, nil
}

// probe issues the HEAD request and returns the advertised length.
func (s *Source) probe(ctx context.Context) (int64, error) {
	req, err := s.newRequest(ctx, nethttp.MethodHead)
	if err != nil {
		return 0, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("probe %s: %w", s.url, err)
	}
	_ = resp.Body.Close()
	s.metrics.request(nethttp.MethodHead, resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, fmt.Errorf("probe %s: %w: status %s", s.url, source.ErrNotRangeCapable, resp.Status)
	}
	if resp.Header.Get("Accept-Ranges") != "bytes" {
		return 0, fmt.Errorf("probe %s: %w: Accept-Ranges %q", s.url, source.ErrNotRangeCapable, resp.Header.Get("Accept-Ranges"))
	}
	size := resp.ContentLength
	if v := resp.Header.Get("Content-Length"); v != "" {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil {
			size = parsed
		}
	}
	if size <= 0 {
		return 0, fmt.Errorf("probe %s: %w: no content length", s.url, source.ErrNotRangeCapable)
	}
	return size, nil
}

// newRequest creates a request carrying the configured headers.
func (s *Source) newRequest(ctx context.Context, method string) (*nethttp.Request, error) {
	req, err := nethttp.NewRequestWithContext(ctx, method, s.url, nethttp.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for key, values := range s.headers {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	if req.Header.Get("Accept-Encoding") == "" {
		req.Header.Set("Accept-Encoding", "identity")
	}
	return req, nil
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
