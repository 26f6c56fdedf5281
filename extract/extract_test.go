package extract_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/rangezip/extract"
	"github.com/meigma/rangezip/internal/testutil"
	"github.com/meigma/rangezip/source"
	"github.com/meigma/rangezip/source/file"
	"github.com/meigma/rangezip/zipentry"
)

// memOpener returns an opener over archive that counts opens.
func memOpener(archive []byte, opens *atomic.Int32) source.Opener {
	return func(context.Context) (source.Source, error) {
		if opens != nil {
			opens.Add(1)
		}
		return testutil.NewReadOnlySource(archive), nil
	}
}

func payloadArchive(t *testing.T, payload []byte) []byte {
	t.Helper()
	return testutil.BuildZip(t, "",
		testutil.ZipFile{Name: "META-INF/info", Data: []byte("metadata")},
		testutil.ZipFile{Name: "payload.bin", Data: payload},
	)
}

func TestEntryCopiesPayload(t *testing.T) {
	t.Parallel()

	payload := testutil.Pattern(1<<20+12345, 6)
	archive := payloadArchive(t, payload)
	dst := filepath.Join(t.TempDir(), "payload.bin")

	var opens atomic.Int32
	var mu sync.Mutex
	var last int64
	entry, err := extract.Entry(context.Background(), memOpener(archive, &opens), "payload.bin",
		file.Opener(dst, file.ModeReadWriteCreate),
		extract.WithWorkers(4),
		extract.WithChunkSize(64<<10),
		extract.WithProgress(func(done, total int64) {
			mu.Lock()
			defer mu.Unlock()
			assert.Equal(t, int64(len(payload)), total)
			last = max(last, done)
		}),
	)
	require.NoError(t, err)
	assert.Equal(t, "payload.bin", entry.Name)
	assert.Equal(t, int64(len(payload)), entry.Size)

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
	assert.Equal(t, int64(len(payload)), last)
	assert.Equal(t, int32(5), opens.Load(), "one locate handle plus one per worker")
}

func TestEntryOverwritesLargerDestination(t *testing.T) {
	t.Parallel()

	payload := testutil.Pattern(10_000, 2)
	archive := payloadArchive(t, payload)
	dst := filepath.Join(t.TempDir(), "payload.bin")
	require.NoError(t, os.WriteFile(dst, testutil.Pattern(50_000, 9), 0o644))

	_, err := extract.Entry(context.Background(), memOpener(archive, nil), "payload.bin",
		file.Opener(dst, file.ModeReadWriteCreate), extract.WithSparse(false))
	require.NoError(t, err)

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestEntryWithBufferBudget(t *testing.T) {
	t.Parallel()

	payload := testutil.Pattern(300_000, 4)
	archive := payloadArchive(t, payload)
	dst := filepath.Join(t.TempDir(), "payload.bin")

	_, err := extract.Entry(context.Background(), memOpener(archive, nil), "payload.bin",
		file.Opener(dst, file.ModeReadWriteCreate),
		extract.WithWorkers(8),
		extract.WithChunkSize(4096),
		extract.WithMaxBuffered(8192),
	)
	require.NoError(t, err)

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestEntryEmptyMember(t *testing.T) {
	t.Parallel()

	archive := payloadArchive(t, nil)
	dst := filepath.Join(t.TempDir(), "payload.bin")

	entry, err := extract.Entry(context.Background(), memOpener(archive, nil), "payload.bin",
		file.Opener(dst, file.ModeReadWriteCreate))
	require.NoError(t, err)
	assert.Zero(t, entry.Size)

	info, err := os.Stat(dst)
	require.NoError(t, err)
	assert.Zero(t, info.Size())
}

func TestEntryNotFoundLeavesDestinationAlone(t *testing.T) {
	t.Parallel()

	archive := payloadArchive(t, []byte("data"))
	dst := filepath.Join(t.TempDir(), "payload.bin")

	_, err := extract.Entry(context.Background(), memOpener(archive, nil), "missing.bin",
		file.Opener(dst, file.ModeReadWriteCreate))
	require.ErrorIs(t, err, source.ErrEntryNotFound)

	_, err = os.Stat(dst)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestEntryOpenFailure(t *testing.T) {
	t.Parallel()

	boom := errors.New("no route")
	failing := func(context.Context) (source.Source, error) { return nil, boom }

	_, err := extract.Entry(context.Background(), failing, "payload.bin",
		file.Opener(filepath.Join(t.TempDir(), "out"), file.ModeReadWriteCreate))
	require.ErrorIs(t, err, boom)
}

// stallingSource blocks reads below split until the context ends and fails
// reads at or above it.
type stallingSource struct {
	*testutil.MemSource
	split int64
	err   error
}

func (s *stallingSource) ReadAtContext(ctx context.Context, p []byte, off int64) (int, error) {
	if off >= s.split {
		return 0, s.err
	}
	<-ctx.Done()
	return 0, ctx.Err()
}

func TestEntryFirstFailureCancelsOtherWorkers(t *testing.T) {
	t.Parallel()

	payload := testutil.Pattern(1<<20, 3)
	archive := payloadArchive(t, payload)
	dst := filepath.Join(t.TempDir(), "payload.bin")

	dataOffset, size, err := zipentry.Locate(testutil.NewReadOnlySource(archive), "payload.bin")
	require.NoError(t, err)

	boom := errors.New("connection lost for good")
	var opens atomic.Int32
	src := func(context.Context) (source.Source, error) {
		mem := testutil.NewReadOnlySource(archive)
		if opens.Add(1) == 1 {
			return mem, nil
		}
		return &stallingSource{MemSource: mem, split: dataOffset + size/2, err: boom}, nil
	}

	errCh := make(chan error, 1)
	go func() {
		_, err := extract.Entry(context.Background(), src, "payload.bin",
			file.Opener(dst, file.ModeReadWriteCreate),
			extract.WithWorkers(2),
			extract.WithChunkSize(64<<10),
		)
		errCh <- err
	}()

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, boom)
		assert.NotErrorIs(t, err, context.Canceled)
	case <-time.After(10 * time.Second):
		t.Fatal("stalled worker was not canceled")
	}
}

func TestEntryHonorsCallerContext(t *testing.T) {
	t.Parallel()

	archive := payloadArchive(t, testutil.Pattern(1<<20, 3))
	var opens atomic.Int32
	src := func(context.Context) (source.Source, error) {
		mem := testutil.NewReadOnlySource(archive)
		if opens.Add(1) == 1 {
			return mem, nil
		}
		return &stallingSource{MemSource: mem, split: int64(len(archive))}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := extract.Entry(ctx, src, "payload.bin",
		file.Opener(filepath.Join(t.TempDir(), "out"), file.ModeReadWriteCreate))
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
