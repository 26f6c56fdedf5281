package zipentry

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/meigma/rangezip/internal/sizing"
	"github.com/meigma/rangezip/source"
)

// Source is the random access the locator needs. Every source.Source
// satisfies it.
type Source interface {
	io.ReaderAt
	Size() (int64, error)
}

// Entry describes a located archive member.
type Entry struct {
	// Name is the member name as stored in the central directory.
	Name string

	// Method is the compression method. Find only returns MethodStore entries.
	Method uint16

	// HeaderOffset is the absolute offset of the member's local file header.
	HeaderOffset int64

	// DataOffset is the absolute offset of the member's first data byte.
	DataOffset int64

	// Size is the uncompressed, and for stored members the stored, length.
	Size int64

	// CompressedSize is the length recorded as compressed in the central directory.
	CompressedSize int64

	// Disk is the disk number on which the member starts.
	Disk uint32
}

// Locate returns the offset and length of the raw data of the stored member
// name in the archive src.
func Locate(src Source, name string) (offset, size int64, err error) {
	e, err := Find(src, name)
	if err != nil {
		return 0, 0, err
	}
	return e.DataOffset, e.Size, nil
}

// Open returns a reader over the data of the stored member name.
func Open(src Source, name string) (*io.SectionReader, error) {
	e, err := Find(src, name)
	if err != nil {
		return nil, err
	}
	return io.NewSectionReader(src, e.DataOffset, e.Size), nil
}

// Find locates the stored member name in the archive src.
//
// It reads the end of central directory record (searching back through an
// archive comment when there is one), the ZIP64 locator and record when the
// 32-bit fields overflow, the central directory, and the matched member's
// local file header. No member data is read.
//
// Errors wrap source.ErrNotAZip when no end record exists,
// source.ErrEntryNotFound when no member has the name,
// source.ErrUnsupportedCompression when the member is compressed, and
// source.ErrProtocolViolation for malformed structures.
func Find(src Source, name string) (Entry, error) {
	size, err := src.Size()
	if err != nil {
		return Entry{}, fmt.Errorf("zipentry: %w", err)
	}

	eocd, eocdOffset, err := findEOCD(src, size)
	if err != nil {
		return Entry{}, fmt.Errorf("zipentry: %w", err)
	}

	dir := parseEOCD(eocd)
	if dir.needsZip64() {
		if dir, err = readZip64Directory(src, eocdOffset); err != nil {
			return Entry{}, fmt.Errorf("zipentry: %w", err)
		}
	}

	e, err := scanDirectory(src, size, dir, name)
	if err != nil {
		return Entry{}, fmt.Errorf("zipentry: %s: %w", name, err)
	}

	dataOffset, err := resolveDataOffset(src, e.HeaderOffset)
	if err != nil {
		return Entry{}, fmt.Errorf("zipentry: %s: %w", name, err)
	}
	if !sizing.Within(dataOffset, e.Size, size) {
		return Entry{}, fmt.Errorf("zipentry: %s: %w: data [%d, +%d) exceeds archive size %d",
			name, source.ErrProtocolViolation, dataOffset, e.Size, size)
	}
	e.DataOffset = dataOffset
	return e, nil
}

// findEOCD returns the end of central directory record and its offset.
//
// The trailing 22 bytes are tried first. Otherwise the last 65535+22 bytes
// are searched for a comment length L, walking back from the end with
// L = 1, 2, 3, ..., accepting the first L whose length field equals L and
// whose record starts with the EOCD signature.
func findEOCD(src io.ReaderAt, size int64) ([]byte, int64, error) {
	if size < eocdLen {
		return nil, 0, fmt.Errorf("%w: %d bytes cannot hold an end of central directory record", source.ErrNotAZip, size)
	}

	tail, err := readAt(src, size-eocdLen, eocdLen, "end of central directory")
	if err != nil {
		return nil, 0, err
	}
	if bytes.Equal(tail[:4], eocdSignature) && tail[20] == 0 && tail[21] == 0 {
		return tail, size - eocdLen, nil
	}

	window := min(size, int64(maxCommentLen+eocdLen))
	data, err := readAt(src, size-window, window, "archive comment window")
	if err != nil {
		return nil, 0, err
	}
	w := int(window)
	for l := 1; l <= w-eocdLen; l++ {
		if int(le.Uint16(data[w-l-2:w-l])) != l {
			continue
		}
		start := w - l - eocdLen
		if bytes.Equal(data[start:start+4], eocdSignature) {
			return data[start : start+eocdLen], size - int64(l) - eocdLen, nil
		}
	}
	return nil, 0, fmt.Errorf("%w: no end of central directory record in the last %d bytes", source.ErrNotAZip, window)
}

// readZip64Directory follows the ZIP64 locator immediately preceding the end
// of central directory record to the ZIP64 record.
func readZip64Directory(src io.ReaderAt, eocdOffset int64) (directory, error) {
	if eocdOffset < zip64LocatorLen {
		return directory{}, fmt.Errorf("%w: no room for a zip64 locator before offset %d", source.ErrProtocolViolation, eocdOffset)
	}
	loc, err := readAt(src, eocdOffset-zip64LocatorLen, zip64LocatorLen, "zip64 locator")
	if err != nil {
		return directory{}, err
	}
	if !bytes.Equal(loc[:4], zip64LocatorSignature) {
		return directory{}, fmt.Errorf("%w: zip64 locator signature %x", source.ErrProtocolViolation, loc[:4])
	}

	recordOffset, err := sizing.ToInt64(le.Uint64(loc[8:16]), source.ErrProtocolViolation)
	if err != nil {
		return directory{}, fmt.Errorf("zip64 record offset: %w", err)
	}
	record, err := readAt(src, recordOffset, zip64EOCDLen, "zip64 end of central directory")
	if err != nil {
		return directory{}, err
	}
	return parseZip64EOCD(record)
}

// scanDirectory reads the central directory and walks its records in order
// until one is named name.
func scanDirectory(src io.ReaderAt, size int64, dir directory, name string) (Entry, error) {
	end, ok := sizing.AddUint64(dir.offset, dir.size)
	if !ok || end > uint64(size) { //nolint:gosec // size is non-negative
		return Entry{}, fmt.Errorf("%w: central directory [%d, +%d) exceeds archive size %d",
			source.ErrProtocolViolation, dir.offset, dir.size, size)
	}
	data, err := readAt(src, int64(dir.offset), int64(dir.size), "central directory") //nolint:gosec // bounded by size above
	if err != nil {
		return Entry{}, err
	}

	want := []byte(name)
	p := 0
	for i := uint64(0); i < dir.count && p < len(data); i++ {
		if p+centralHeaderLen > len(data) {
			return Entry{}, fmt.Errorf("%w: central directory record %d truncated", source.ErrProtocolViolation, i)
		}
		rec, err := parseCentralRecord(data[p : p+centralHeaderLen])
		if err != nil {
			return Entry{}, fmt.Errorf("record %d: %w", i, err)
		}
		if p+rec.length() > len(data) {
			return Entry{}, fmt.Errorf("%w: central directory record %d overruns the directory", source.ErrProtocolViolation, i)
		}

		nameStart := p + centralHeaderLen
		if bytes.Equal(data[nameStart:nameStart+rec.nameLen], want) {
			extra := data[nameStart+rec.nameLen : nameStart+rec.nameLen+rec.extraLen]
			return entryFromRecord(rec, extra, name)
		}
		p += rec.length()
	}
	return Entry{}, source.ErrEntryNotFound
}

// entryFromRecord resolves ZIP64 overrides and checks the method of a
// matched record.
func entryFromRecord(rec centralRecord, extra []byte, name string) (Entry, error) {
	if rec.needsZip64() {
		if err := rec.applyZip64(extra); err != nil {
			return Entry{}, err
		}
	}
	if rec.method != MethodStore {
		return Entry{}, fmt.Errorf("%w: method %d", source.ErrUnsupportedCompression, rec.method)
	}

	headerOffset, err := sizing.ToInt64(rec.headerOffset, source.ErrProtocolViolation)
	if err != nil {
		return Entry{}, fmt.Errorf("local header offset: %w", err)
	}
	size, err := sizing.ToInt64(rec.uncompressedSize, source.ErrProtocolViolation)
	if err != nil {
		return Entry{}, fmt.Errorf("uncompressed size: %w", err)
	}
	compressed, err := sizing.ToInt64(rec.compressedSize, source.ErrProtocolViolation)
	if err != nil {
		return Entry{}, fmt.Errorf("compressed size: %w", err)
	}
	return Entry{
		Name:           name,
		Method:         rec.method,
		HeaderOffset:   headerOffset,
		Size:           size,
		CompressedSize: compressed,
		Disk:           rec.disk,
	}, nil
}

// resolveDataOffset reads the local file header at off and returns the
// offset just past its name and extra field.
func resolveDataOffset(src io.ReaderAt, off int64) (int64, error) {
	b, err := readAt(src, off, localHeaderLen, "local file header")
	if err != nil {
		return 0, err
	}
	h, err := parseLocalHeader(b)
	if err != nil {
		return 0, err
	}
	return off + localHeaderLen + int64(h.nameLen) + int64(h.extraLen), nil
}

// readAt reads exactly n bytes at off. A short read means the structure
// named what runs past the end of the archive.
func readAt(src io.ReaderAt, off, n int64, what string) ([]byte, error) {
	if off < 0 {
		return nil, fmt.Errorf("%w: %s at negative offset %d", source.ErrProtocolViolation, what, off)
	}
	buf := make([]byte, n)
	if err := source.ReadFull(src, buf, off); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: %s at %d truncated", source.ErrProtocolViolation, what, off)
		}
		return nil, fmt.Errorf("read %s at %d: %w", what, off, err)
	}
	return buf, nil
}
