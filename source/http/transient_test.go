package http //nolint:revive // intentional naming for domain clarity

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"syscall"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/meigma/rangezip/source"
)

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func TestIsTransient(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "dial refused", err: &url.Error{Op: "Get", URL: "http://x", Err: &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}}, want: true},
		{name: "reset", err: fmt.Errorf("read: %w", syscall.ECONNRESET), want: true},
		{name: "unexpected eof", err: io.ErrUnexpectedEOF, want: true},
		{name: "timeout", err: &url.Error{Op: "Get", URL: "http://x", Err: timeoutError{}}, want: true},
		{name: "attempt deadline", err: context.DeadlineExceeded, want: true},
		{name: "canceled", err: context.Canceled, want: false},
		{name: "protocol violation", err: fmt.Errorf("range: %w", source.ErrProtocolViolation), want: false},
		{name: "other", err: errors.New("boom"), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, isTransient(tt.err))
		})
	}
}

func TestMetrics(t *testing.T) {
	t.Parallel()

	m := NewMetrics(prometheus.NewRegistry())
	m.request("GET", 206)
	m.request("GET", 206)
	m.request("HEAD", 200)
	m.retried()
	m.received(100)
	m.received(28)

	assert.InDelta(t, 2, promtest.ToFloat64(m.requests.WithLabelValues("GET", "206")), 0)
	assert.InDelta(t, 1, promtest.ToFloat64(m.requests.WithLabelValues("HEAD", "200")), 0)
	assert.InDelta(t, 1, promtest.ToFloat64(m.retries), 0)
	assert.InDelta(t, 128, promtest.ToFloat64(m.bytes), 0)

	var nilMetrics *Metrics
	assert.NotPanics(t, func() {
		nilMetrics.request("GET", 200)
		nilMetrics.retried()
		nilMetrics.received(1)
	})
}
