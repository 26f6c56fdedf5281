package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/semaphore"

	"github.com/meigma/rangezip/future"
	"github.com/meigma/rangezip/source"
	"github.com/meigma/rangezip/zipentry"
)

const (
	// DefaultWorkers is the default number of concurrent copy workers.
	DefaultWorkers = 4

	// DefaultChunkSize is the default number of bytes one worker reads and
	// writes per step.
	DefaultChunkSize = 1 << 20
)

// ProgressFunc receives the bytes copied so far and the entry size. It is
// called from worker goroutines and must be safe for concurrent use.
type ProgressFunc func(done, total int64)

// contextReaderAt is implemented by sources whose reads can be interrupted.
type contextReaderAt interface {
	ReadAtContext(ctx context.Context, p []byte, off int64) (int, error)
}

// sparser is implemented by destinations that accept a sparse file hint.
type sparser interface {
	SetSparse(sparse bool) error
}

// extractor holds the settings of one extraction.
type extractor struct {
	workers   int
	chunkSize int
	maxBuffer int64
	sparse    bool
	progress  ProgressFunc
	logger    *slog.Logger
}

// log returns the logger, falling back to a discard logger if nil.
func (x *extractor) log() *slog.Logger {
	if x.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return x.logger
}

// span is the part of the entry one worker copies.
type span struct {
	off, size int64
}

// Entry copies the stored member name from the archive opened by src into
// the resource opened by dst.
//
// The member is located with one source handle. The destination is then
// resized to the member size and, where supported, flagged sparse. The data
// is split into contiguous spans copied by separate workers, each holding its
// own source and destination handle. Workers run as futures combined with
// future.FirstException: the first failure cancels the remaining workers and
// Entry returns that failure once every worker has stopped.
func Entry(ctx context.Context, src source.Opener, name string, dst source.Opener, opts ...Option) (zipentry.Entry, error) {
	x := &extractor{
		workers:   DefaultWorkers,
		chunkSize: DefaultChunkSize,
		sparse:    true,
	}
	for _, opt := range opts {
		opt(x)
	}

	entry, err := x.locate(ctx, src, name)
	if err != nil {
		return zipentry.Entry{}, err
	}
	if err := x.prepare(ctx, dst, entry.Size); err != nil {
		return zipentry.Entry{}, err
	}

	start := time.Now()
	spans := split(entry.Size, x.workers, int64(x.chunkSize))
	if err := x.copySpans(ctx, src, dst, entry, spans); err != nil {
		return zipentry.Entry{}, err
	}
	x.log().Info("extracted entry",
		"name", name,
		"size", humanize.IBytes(uint64(entry.Size)), //nolint:gosec // entry sizes are non-negative
		"workers", len(spans),
		"elapsed", time.Since(start))
	return entry, nil
}

// locate finds the member with a handle used only for that purpose.
func (x *extractor) locate(ctx context.Context, open source.Opener, name string) (zipentry.Entry, error) {
	s, err := open(ctx)
	if err != nil {
		return zipentry.Entry{}, fmt.Errorf("extract: open source: %w", err)
	}
	defer s.Close()

	entry, err := zipentry.Find(s, name)
	if err != nil {
		return zipentry.Entry{}, fmt.Errorf("extract: %w", err)
	}
	x.log().Debug("located entry",
		"name", name,
		"offset", entry.DataOffset,
		"size", humanize.IBytes(uint64(entry.Size))) //nolint:gosec // entry sizes are non-negative
	return entry, nil
}

// prepare resizes the destination so workers can write their spans in any order.
func (x *extractor) prepare(ctx context.Context, open source.Opener, size int64) error {
	d, err := open(ctx)
	if err != nil {
		return fmt.Errorf("extract: open destination: %w", err)
	}
	if x.sparse {
		if sp, ok := d.(sparser); ok {
			if err := sp.SetSparse(true); err != nil {
				x.log().Warn("sparse hint rejected", "error", err)
			}
		}
	}
	if err := d.Truncate(size); err != nil {
		_ = d.Close()
		return fmt.Errorf("extract: size destination: %w", err)
	}
	if err := d.Close(); err != nil {
		return fmt.Errorf("extract: close destination: %w", err)
	}
	return nil
}

// copySpans runs one worker per span and waits for all of them.
func (x *extractor) copySpans(ctx context.Context, src, dst source.Opener, entry zipentry.Entry, spans []span) error {
	if len(spans) == 0 {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var budget *semaphore.Weighted
	if x.maxBuffer > 0 {
		budget = semaphore.NewWeighted(max(x.maxBuffer, int64(x.chunkSize)))
	}
	var done atomic.Int64

	workers := make([]future.Awaitable, 0, len(spans))
	for i, sp := range spans {
		w := &worker{
			id:      i,
			x:       x,
			entry:   entry,
			span:    sp,
			budget:  budget,
			written: &done,
		}
		workers = append(workers, future.Go(func() (struct{}, error) {
			return struct{}{}, w.run(ctx, src, dst)
		}))
	}

	failed := future.Combine(future.FirstException, workers...)
	failed.OnComplete(func(err error) {
		if err != nil {
			cancel()
		}
	})

	<-future.Combine(future.AllCompleted, workers...).Done()
	if _, err := failed.Result(); err != nil {
		return fmt.Errorf("extract %s: %w", entry.Name, err)
	}
	return nil
}

// worker copies one span with its own handles.
type worker struct {
	id      int
	x       *extractor
	entry   zipentry.Entry
	span    span
	budget  *semaphore.Weighted
	written *atomic.Int64
}

func (w *worker) run(ctx context.Context, openSrc, openDst source.Opener) (err error) {
	s, err := openSrc(ctx)
	if err != nil {
		return fmt.Errorf("worker %d: open source: %w", w.id, err)
	}
	defer s.Close()

	d, err := openDst(ctx)
	if err != nil {
		return fmt.Errorf("worker %d: open destination: %w", w.id, err)
	}
	defer func() {
		if cerr := d.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("worker %d: close destination: %w", w.id, cerr)
		}
	}()

	buf := make([]byte, min(int64(w.x.chunkSize), w.span.size))
	for pos := int64(0); pos < w.span.size; {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := min(int64(len(buf)), w.span.size-pos)
		if err := w.copyChunk(ctx, s, d, buf[:n], w.span.off+pos); err != nil {
			return fmt.Errorf("worker %d at %d: %w", w.id, w.span.off+pos, err)
		}
		pos += n
		total := w.written.Add(n)
		if w.x.progress != nil {
			w.x.progress(total, w.entry.Size)
		}
	}
	w.x.log().Debug("worker finished", "worker", w.id, "offset", w.span.off, "size", w.span.size)
	return nil
}

// copyChunk reads len(buf) bytes of entry data at rel and writes them at the
// same relative offset in the destination.
func (w *worker) copyChunk(ctx context.Context, s, d source.Source, buf []byte, rel int64) error {
	if w.budget != nil {
		if err := w.budget.Acquire(ctx, int64(len(buf))); err != nil {
			return err
		}
		defer w.budget.Release(int64(len(buf)))
	}

	if err := readFull(ctx, s, buf, w.entry.DataOffset+rel); err != nil {
		return fmt.Errorf("read: %w", err)
	}
	if _, err := d.WriteAt(buf, rel); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

// readFull reads exactly len(p) bytes at off, through ReadAtContext when the
// source supports it. Running out of data is a protocol violation since the
// located entry lies within the archive.
func readFull(ctx context.Context, s source.Source, p []byte, off int64) error {
	var err error
	if cr, ok := s.(contextReaderAt); ok {
		var n int
		n, err = cr.ReadAtContext(ctx, p, off)
		switch {
		case n == len(p):
			err = nil
		case err == nil || errors.Is(err, io.EOF):
			err = io.ErrUnexpectedEOF
		}
	} else {
		err = source.ReadFull(s, p, off)
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: %w", source.ErrProtocolViolation, err)
	}
	return err
}

// split divides size bytes into at most workers contiguous spans. Spans are
// multiples of chunk except the last, and none is empty.
func split(size int64, workers int, chunk int64) []span {
	if size <= 0 {
		return nil
	}
	workers = max(workers, 1)
	chunk = max(chunk, 1)

	chunks := (size + chunk - 1) / chunk
	per := (chunks + int64(workers) - 1) / int64(workers)
	step := per * chunk

	spans := make([]span, 0, workers)
	for off := int64(0); off < size; off += step {
		spans = append(spans, span{off: off, size: min(step, size-off)})
	}
	return spans
}
