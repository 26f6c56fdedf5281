package main

import (
	"fmt"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// serveFile serves path from a local HTTP server and returns its URL.
func serveFile(path string) (string, func(), error) {
	if _, err := os.Stat(path); err != nil {
		return "", nil, fmt.Errorf("serve %s: %w", path, err)
	}
	name := filepath.Base(path)
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		nethttp.ServeFile(w, r, path)
	}))
	return server.URL + "/" + name, server.Close, nil
}

// throttle slows remote responses down to emulate a distant server.
type throttle struct {
	latency        time.Duration
	bytesPerSecond int64
}

// newThrottle returns nil when neither latency nor bandwidth is limited.
func newThrottle(latency time.Duration, bps string) (*throttle, error) {
	t := &throttle{latency: latency}
	if bps != "" {
		text := strings.TrimSuffix(strings.TrimSpace(bps), "/s")
		n, err := humanize.ParseBytes(text)
		if err != nil || n == 0 {
			return nil, fmt.Errorf("invalid bytes-per-second %q", bps)
		}
		t.bytesPerSecond = int64(n) //nolint:gosec // flag values are small
	}
	if t.latency <= 0 && t.bytesPerSecond <= 0 {
		return nil, nil //nolint:nilnil // no throttle requested
	}
	return t, nil
}

func (t *throttle) client() *nethttp.Client {
	transport := nethttp.DefaultTransport
	if base, ok := transport.(*nethttp.Transport); ok {
		clone := base.Clone()
		clone.DisableCompression = true
		transport = clone
	}
	return &nethttp.Client{Transport: &throttleRoundTripper{base: transport, throttle: t}}
}

type throttleRoundTripper struct {
	base     nethttp.RoundTripper
	throttle *throttle
}

func (rt *throttleRoundTripper) RoundTrip(req *nethttp.Request) (*nethttp.Response, error) {
	if rt.throttle.latency > 0 {
		time.Sleep(rt.throttle.latency)
	}
	resp, err := rt.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if rt.throttle.bytesPerSecond > 0 && resp.Body != nil {
		resp.Body = &throttleReadCloser{
			rc:             resp.Body,
			bytesPerSecond: rt.throttle.bytesPerSecond,
			start:          time.Now(),
		}
	}
	return resp, nil
}

type throttleReadCloser struct {
	rc             io.ReadCloser
	bytesPerSecond int64
	start          time.Time
	readBytes      int64
}

func (tr *throttleReadCloser) Read(p []byte) (int, error) {
	n, err := tr.rc.Read(p)
	if n > 0 {
		tr.readBytes += int64(n)
		expected := time.Duration(float64(tr.readBytes) / float64(tr.bytesPerSecond) * float64(time.Second))
		elapsed := time.Since(tr.start)
		if expected > elapsed {
			time.Sleep(expected - elapsed)
		}
	}
	return n, err
}

func (tr *throttleReadCloser) Close() error {
	return tr.rc.Close()
}
