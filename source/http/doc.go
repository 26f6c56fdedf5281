// Package http implements source.Source over HTTP range requests.
//
// [NewSource] probes the resource with a HEAD request and requires
// "Accept-Ranges: bytes" and a positive Content-Length. Reads issue
// "Range: bytes=start-end" GETs and accept only 206 Partial Content.
//
// # Resumption
//
// A read interrupted by a transient network failure is resumed with a new
// request for the bytes not yet received:
//
//	src, err := http.NewSource(ctx, url,
//	    http.WithMaxAttempts(10),
//	    http.WithAttemptTimeout(30*time.Second),
//	)
//	n, err := src.ReadAtContext(ctx, buf, off)
//
// Failures that persist past the attempt bound wrap
// source.ErrTransientNetwork; status or length mismatches wrap
// source.ErrProtocolViolation and are never retried.
package http //nolint:revive // intentional naming for domain clarity
