package file_test

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/meigma/rangezip/internal/testutil"
	"github.com/meigma/rangezip/source"
	"github.com/meigma/rangezip/source/file"
)

func writeTemp(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.bin")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestFileReadMatchesReference(t *testing.T) {
	t.Parallel()

	data := testutil.Pattern(64<<10, 3)
	f, err := file.Open(writeTemp(t, data), file.ModeRead)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })

	windows := []struct{ off, length int64 }{
		{0, 1},
		{0, int64(len(data))},
		{12345, 4096},
		{int64(len(data)) - 10, 10},
		{int64(len(data)) - 10, 100},
		{int64(len(data)), 16},
	}
	for _, w := range windows {
		got, err := source.Read(f, w.off, w.length)
		require.NoError(t, err)
		end := min(w.off+w.length, int64(len(data)))
		assert.Equal(t, data[w.off:end], got, "window %d+%d", w.off, w.length)

		again, err := source.Read(f, w.off, w.length)
		require.NoError(t, err)
		assert.Equal(t, got, again)
	}
}

func TestFileReadAtEOF(t *testing.T) {
	t.Parallel()

	f, err := file.Open(writeTemp(t, []byte("abcdef")), file.ModeRead)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })

	buf := make([]byte, 4)
	n, err := f.ReadAt(buf, 4)
	assert.Equal(t, 2, n)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, "ef", string(buf[:n]))

	n, err = f.ReadAt(buf, 6)
	assert.Equal(t, 0, n)
	assert.ErrorIs(t, err, io.EOF)
}

func TestFileWriteTruncateSize(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out.bin")
	f, err := file.Open(path, file.ModeReadWriteCreate)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })

	require.NoError(t, f.SetSparse(true))
	require.NoError(t, f.Truncate(1<<20))
	size, err := f.Size()
	require.NoError(t, err)
	assert.Equal(t, int64(1<<20), size)

	n, err := f.WriteAt([]byte("tail"), (1<<20)-4)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	n, err = f.WriteAt([]byte("head"), 0)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	got, err := source.Read(f, 0, 4)
	require.NoError(t, err)
	assert.Equal(t, "head", string(got))
	got, err = source.Read(f, (1<<20)-4, 8)
	require.NoError(t, err)
	assert.Equal(t, "tail", string(got))

	require.NoError(t, f.Truncate(2))
	size, err = f.Size()
	require.NoError(t, err)
	assert.Equal(t, int64(2), size)
}

func TestFileWriteExtends(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "grow.bin")
	f, err := file.Open(path, file.ModeWrite)
	require.NoError(t, err)

	_, err = f.WriteAt([]byte("xyz"), 10)
	require.NoError(t, err)
	size, err := f.Size()
	require.NoError(t, err)
	assert.Equal(t, int64(13), size)
	require.NoError(t, f.Close())

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "xyz", string(content[10:]))
}

func TestFileModeEnforced(t *testing.T) {
	t.Parallel()

	path := writeTemp(t, []byte("data"))

	ro, err := file.Open(path, file.ModeRead)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ro.Close() })
	assert.True(t, ro.Readable())
	assert.False(t, ro.Writable())
	_, err = ro.WriteAt([]byte("x"), 0)
	assert.ErrorIs(t, err, source.ErrInvalidHandleState)
	assert.ErrorIs(t, ro.Truncate(0), source.ErrInvalidHandleState)

	wo, err := file.Open(filepath.Join(t.TempDir(), "w.bin"), file.ModeWrite)
	require.NoError(t, err)
	t.Cleanup(func() { _ = wo.Close() })
	assert.False(t, wo.Readable())
	_, err = wo.ReadAt(make([]byte, 1), 0)
	assert.ErrorIs(t, err, source.ErrInvalidHandleState)
}

func TestFileOpenMissing(t *testing.T) {
	t.Parallel()

	_, err := file.Open(filepath.Join(t.TempDir(), "missing"), file.ModeRead)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestFileClosed(t *testing.T) {
	t.Parallel()

	f, err := file.Open(writeTemp(t, []byte("data")), file.ModeRead)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = f.ReadAt(make([]byte, 1), 0)
	assert.ErrorIs(t, err, source.ErrInvalidHandleState)
	_, err = f.Size()
	assert.ErrorIs(t, err, source.ErrInvalidHandleState)
	assert.ErrorIs(t, f.Close(), source.ErrInvalidHandleState)
}

func TestFileIndependentHandles(t *testing.T) {
	t.Parallel()

	data := testutil.Pattern(1<<20, 11)
	path := writeTemp(t, data)

	const workers = 8
	chunk := int64(len(data) / workers)
	got := make([]byte, len(data))

	eg, _ := errgroup.WithContext(context.Background())
	for i := range workers {
		eg.Go(func() error {
			f, err := file.Open(path, file.ModeRead)
			if err != nil {
				return err
			}
			defer f.Close()
			off := int64(i) * chunk
			_, err = source.ReadInto(f, off, chunk, got[off:off+chunk])
			return err
		})
	}
	require.NoError(t, eg.Wait())
	assert.Equal(t, data, got)
}
