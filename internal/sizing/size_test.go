package sizing

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errOverflow = errors.New("overflow")

func TestToInt64(t *testing.T) {
	t.Parallel()

	got, err := ToInt64(42, errOverflow)
	require.NoError(t, err)
	assert.Equal(t, int64(42), got)

	got, err = ToInt64(math.MaxInt64, errOverflow)
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64), got)

	_, err = ToInt64(math.MaxUint64, errOverflow)
	assert.ErrorIs(t, err, errOverflow)
}

func TestAddUint64(t *testing.T) {
	t.Parallel()

	sum, ok := AddUint64(1, 2)
	assert.True(t, ok)
	assert.Equal(t, uint64(3), sum)

	_, ok = AddUint64(math.MaxUint64, 1)
	assert.False(t, ok)
}

func TestWithin(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		off, n, lim int64
		want        bool
	}{
		{"whole", 0, 10, 10, true},
		{"empty at end", 10, 0, 10, true},
		{"tail", 4, 6, 10, true},
		{"one past end", 4, 7, 10, false},
		{"offset past end", 11, 0, 10, false},
		{"negative offset", -1, 1, 10, false},
		{"negative length", 0, -1, 10, false},
		{"overflowing sum", 5, math.MaxInt64, 10, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Within(tt.off, tt.n, tt.lim), tt.name)
	}
}

func TestFitsInt(t *testing.T) {
	t.Parallel()

	assert.True(t, FitsInt(1))
	assert.False(t, FitsInt(0))
	assert.False(t, FitsInt(-5))
}
