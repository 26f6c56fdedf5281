package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewThrottle(t *testing.T) {
	t.Parallel()

	none, err := newThrottle(0, "")
	require.NoError(t, err)
	assert.Nil(t, none)

	th, err := newThrottle(10*time.Millisecond, "2MiB/s")
	require.NoError(t, err)
	assert.Equal(t, int64(2<<20), th.bytesPerSecond)
	assert.Equal(t, 10*time.Millisecond, th.latency)

	_, err = newThrottle(0, "fast")
	assert.Error(t, err)
	_, err = newThrottle(0, "0")
	assert.Error(t, err)
}
