// Package rangezip locates and copies one stored member of a ZIP archive
// without reading the whole archive.
//
// Archives are opened from a local path or an http(s) URL. Remote archives
// are read with HTTP range requests that resume after transient network
// failures, so a multi-gigabyte archive costs a few small metadata reads plus
// the member's own bytes.
//
// # Quick Start
//
// Locate a member:
//
//	entry, err := rangezip.Locate(ctx, "https://example.com/ota.zip", "payload.bin")
//	if err != nil {
//	    return err
//	}
//	fmt.Println(entry.DataOffset, entry.Size)
//
// Copy it to a local file with several workers:
//
//	_, err = rangezip.Extract(ctx, "https://example.com/ota.zip", "payload.bin", "payload.bin",
//	    rangezip.WithExtractOptions(extract.WithWorkers(8)),
//	)
//
// # Handles
//
// [Open] returns a [source.Source] for a location. [NewOpener] returns a
// function that opens a fresh, independent handle on every call, which is
// what concurrent workers need.
package rangezip
