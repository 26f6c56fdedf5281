package future_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/rangezip/future"
)

func inputs(n int) ([]*future.Future[int], []future.Awaitable) {
	fs := make([]*future.Future[int], n)
	as := make([]future.Awaitable, n)
	for i := range fs {
		fs[i] = future.New[int]()
		as[i] = fs[i]
	}
	return fs, as
}

func isDone(a future.Awaitable) bool {
	select {
	case <-a.Done():
		return true
	default:
		return false
	}
}

func TestCombineFirstException(t *testing.T) {
	t.Parallel()

	fs, as := inputs(3)
	combined := future.Combine(future.FirstException, as...)

	var completions atomic.Int32
	combined.OnComplete(func(error) { completions.Add(1) })

	boom := errors.New("input 2 failed")
	fs[1].Reject(boom)
	require.True(t, isDone(combined), "failure settles while other inputs are pending")
	require.ErrorIs(t, combined.Err(), boom)
	assert.False(t, isDone(fs[0]))
	assert.False(t, isDone(fs[2]))

	fs[0].Resolve(1)
	fs[2].Reject(errors.New("input 3 failed later"))
	_, err := combined.Result()
	require.ErrorIs(t, err, boom)
	assert.Equal(t, int32(1), completions.Load())
}

func TestCombineFirstExceptionAfterSuccess(t *testing.T) {
	t.Parallel()

	fs, as := inputs(3)
	combined := future.Combine(future.FirstException, as...)

	fs[0].Resolve(1)
	assert.False(t, isDone(combined))

	boom := errors.New("input 2 failed")
	fs[1].Reject(boom)
	require.True(t, isDone(combined))
	require.ErrorIs(t, combined.Err(), boom)

	fs[2].Resolve(3)
	_, err := combined.Result()
	require.ErrorIs(t, err, boom)
}

func TestCombineFirstExceptionAllSucceed(t *testing.T) {
	t.Parallel()

	fs, as := inputs(3)
	combined := future.Combine(future.FirstException, as...)

	fs[2].Resolve(3)
	fs[0].Resolve(1)
	assert.False(t, isDone(combined))
	fs[1].Resolve(2)

	v, err := combined.Wait(context.Background())
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestCombineAllCompleted(t *testing.T) {
	t.Parallel()

	fs, as := inputs(3)
	combined := future.Combine(future.AllCompleted, as...)

	fs[0].Reject(errors.New("first"))
	assert.False(t, isDone(combined))
	fs[1].Resolve(2)
	assert.False(t, isDone(combined))
	fs[2].Reject(errors.New("third"))

	require.True(t, isDone(combined))
	v, err := combined.Result()
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestCombineFirstCompleted(t *testing.T) {
	t.Parallel()

	fs, as := inputs(3)
	combined := future.Combine(future.FirstCompleted, as...)

	fs[1].Reject(errors.New("fails first"))
	v, err := combined.Result()
	require.NoError(t, err)
	assert.Same(t, fs[1], v)

	fs[0].Resolve(1)
	v, err = combined.Result()
	require.NoError(t, err)
	assert.Same(t, fs[1], v)
}

func TestCombineZeroInputs(t *testing.T) {
	t.Parallel()

	for _, policy := range []future.Policy{future.FirstException, future.FirstCompleted, future.AllCompleted} {
		combined := future.Combine(policy)
		require.True(t, isDone(combined), policy.String())
		v, err := combined.Result()
		require.NoError(t, err)
		assert.Nil(t, v)
	}
}

func TestCombineAlreadyCompletedInputs(t *testing.T) {
	t.Parallel()

	done := future.Resolved(1)
	pending := future.New[int]()
	combined := future.Combine(future.AllCompleted, done, pending)
	assert.False(t, isDone(combined))

	pending.Resolve(2)
	assert.True(t, isDone(combined))
}

func TestCombineDeduplicatesInputs(t *testing.T) {
	t.Parallel()

	f := future.New[int]()
	combined := future.Combine(future.AllCompleted, f, f, f)
	f.Resolve(1)
	assert.True(t, isDone(combined))
}

func TestCombineConcurrentCompletion(t *testing.T) {
	t.Parallel()

	const n = 32
	for range 50 {
		fs, as := inputs(n)
		combined := future.Combine(future.FirstException, as...)

		var wg sync.WaitGroup
		for i, f := range fs {
			wg.Go(func() {
				if i == n-1 {
					f.Reject(errors.New("last fails"))
					return
				}
				f.Resolve(i)
			})
		}
		wg.Wait()
		require.True(t, isDone(combined))
		assert.Error(t, combined.Err())
	}
}

func TestCombineNested(t *testing.T) {
	t.Parallel()

	fs, as := inputs(2)
	inner := future.Combine(future.AllCompleted, as...)
	stop := future.New[struct{}]()
	outer := future.Combine(future.FirstCompleted, inner, stop)

	fs[0].Resolve(1)
	fs[1].Resolve(2)

	v, err := outer.Wait(context.Background())
	require.NoError(t, err)
	assert.Same(t, inner, v)
}

func TestPoll(t *testing.T) {
	t.Parallel()

	t.Run("completes", func(t *testing.T) {
		t.Parallel()
		boom := errors.New("boom")
		f := future.Go(func() (int, error) {
			time.Sleep(20 * time.Millisecond)
			return 0, boom
		})
		err := future.Poll(context.Background(), f, time.Millisecond, nil)
		require.ErrorIs(t, err, boom)
	})

	t.Run("stopped", func(t *testing.T) {
		t.Parallel()
		var polls atomic.Int32
		err := future.Poll(context.Background(), future.New[int](), time.Millisecond, func() bool {
			return polls.Add(1) >= 3
		})
		require.ErrorIs(t, err, future.ErrStopped)
		assert.Equal(t, int32(3), polls.Load())
	})

	t.Run("canceled", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := future.Poll(ctx, future.New[int](), time.Hour, nil)
		require.ErrorIs(t, err, context.Canceled)
	})
}

func TestPolicyString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "first-exception", future.FirstException.String())
	assert.Equal(t, "first-completed", future.FirstCompleted.String())
	assert.Equal(t, "all-completed", future.AllCompleted.String())
	assert.Equal(t, "Policy(9)", future.Policy(9).String())
}
