// Package source defines random access to a single resource, local or remote.
//
// [Source] is the canonical, offset-addressed interface: every call names the
// offset it operates on and no cursor is shared between calls. [Cursor] layers
// a private position on top of a Source for consumers that need an
// io.ReadSeeker.
//
// The error kinds of the whole module live here so that backends and the ZIP
// locator report failures the same way.
package source
