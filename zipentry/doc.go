// Package zipentry locates the raw data of a stored member inside a ZIP
// archive using only random reads.
//
// Only the archive's structural records are read: the end of central
// directory record (and its ZIP64 counterpart), the central directory, and
// the member's local file header. The result is an absolute offset and a
// length that callers can read directly from any source.Source, which makes
// it possible to pull one member out of a large remote archive with a handful
// of range requests.
//
// Members must be stored without compression. Multi-disk archives,
// encryption, and data descriptors are not interpreted.
package zipentry
