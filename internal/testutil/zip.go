package testutil

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"testing"

	"github.com/klauspost/compress/zip"
)

// ZipFile describes one member written by BuildZip.
type ZipFile struct {
	Name    string
	Data    []byte
	Deflate bool
}

// BuildZip writes files into a ZIP archive using a regular archive writer.
func BuildZip(tb testing.TB, comment string, files ...ZipFile) []byte {
	tb.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, f := range files {
		method := zip.Store
		if f.Deflate {
			method = zip.Deflate
		}
		w, err := zw.CreateHeader(&zip.FileHeader{Name: f.Name, Method: method})
		if err != nil {
			tb.Fatalf("create %s: %v", f.Name, err)
		}
		if _, err := w.Write(f.Data); err != nil {
			tb.Fatalf("write %s: %v", f.Name, err)
		}
	}
	if comment != "" {
		if err := zw.SetComment(comment); err != nil {
			tb.Fatalf("set comment: %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		tb.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

// Zip64Field selects which fields of a record are replaced by their 32-bit
// or 16-bit sentinel and carried as 64-bit values instead.
type Zip64Field uint8

// Central directory record fields.
const (
	Zip64Uncompressed Zip64Field = 1 << iota
	Zip64Compressed
	Zip64HeaderOffset
	Zip64Disk
)

// End of central directory fields.
const (
	Zip64Count Zip64Field = 1 << iota
	Zip64DirSize
	Zip64DirOffset
)

// RawEntry is one member of a RawArchive.
type RawEntry struct {
	Name string
	Data []byte
	// Method is the compression method recorded in both headers.
	// The data is written as-is regardless.
	Method uint16
	// LocalExtra is written only into the local file header.
	LocalExtra []byte
	// CentralExtra is written into the central directory record ahead of any
	// ZIP64 extension.
	CentralExtra []byte
	// Zip64 selects the record fields that move into a ZIP64 extension.
	Zip64 Zip64Field
}

// RawArchive assembles a ZIP archive byte by byte so tests can control every
// header field, including ZIP64 records and archive comments.
type RawArchive struct {
	// Prefix is written before the first local file header.
	Prefix  []byte
	Entries []RawEntry
	Comment []byte
	// Zip64 selects which end of central directory fields carry sentinels.
	// Any non-zero value writes the ZIP64 record and locator.
	Zip64 Zip64Field
}

// Bytes returns the encoded archive.
func (a RawArchive) Bytes() []byte {
	le := binary.LittleEndian
	out := append([]byte(nil), a.Prefix...)

	offsets := make([]uint64, len(a.Entries))
	for i, e := range a.Entries {
		offsets[i] = uint64(len(out))
		crc := crc32.ChecksumIEEE(e.Data)
		out = le.AppendUint32(out, 0x04034b50)
		out = le.AppendUint16(out, 20)
		out = le.AppendUint16(out, 0)
		out = le.AppendUint16(out, e.Method)
		out = le.AppendUint16(out, 0)
		out = le.AppendUint16(out, 0)
		out = le.AppendUint32(out, crc)
		out = le.AppendUint32(out, uint32(len(e.Data)))
		out = le.AppendUint32(out, uint32(len(e.Data)))
		out = le.AppendUint16(out, uint16(len(e.Name)))
		out = le.AppendUint16(out, uint16(len(e.LocalExtra)))
		out = append(out, e.Name...)
		out = append(out, e.LocalExtra...)
		out = append(out, e.Data...)
	}

	cdStart := uint64(len(out))
	for i, e := range a.Entries {
		size := uint32(len(e.Data))
		uncompressed, compressed, offset := size, size, uint32(offsets[i])
		var disk uint16
		var ext []byte
		if e.Zip64&Zip64Uncompressed != 0 {
			uncompressed = 0xFFFFFFFF
			ext = le.AppendUint64(ext, uint64(len(e.Data)))
		}
		if e.Zip64&Zip64Compressed != 0 {
			compressed = 0xFFFFFFFF
			ext = le.AppendUint64(ext, uint64(len(e.Data)))
		}
		if e.Zip64&Zip64HeaderOffset != 0 {
			offset = 0xFFFFFFFF
			ext = le.AppendUint64(ext, offsets[i])
		}
		if e.Zip64&Zip64Disk != 0 {
			disk = 0xFFFF
			ext = le.AppendUint32(ext, 0)
		}
		extra := append([]byte(nil), e.CentralExtra...)
		if e.Zip64 != 0 {
			extra = le.AppendUint16(extra, 0x0001)
			extra = le.AppendUint16(extra, uint16(len(ext)))
			extra = append(extra, ext...)
		}

		out = le.AppendUint32(out, 0x02014b50)
		out = le.AppendUint16(out, 45)
		out = le.AppendUint16(out, 45)
		out = le.AppendUint16(out, 0)
		out = le.AppendUint16(out, e.Method)
		out = le.AppendUint16(out, 0)
		out = le.AppendUint16(out, 0)
		out = le.AppendUint32(out, crc32.ChecksumIEEE(e.Data))
		out = le.AppendUint32(out, compressed)
		out = le.AppendUint32(out, uncompressed)
		out = le.AppendUint16(out, uint16(len(e.Name)))
		out = le.AppendUint16(out, uint16(len(extra)))
		out = le.AppendUint16(out, 0)
		out = le.AppendUint16(out, disk)
		out = le.AppendUint16(out, 0)
		out = le.AppendUint32(out, 0)
		out = le.AppendUint32(out, offset)
		out = append(out, e.Name...)
		out = append(out, extra...)
	}
	cdSize := uint64(len(out)) - cdStart
	count := uint64(len(a.Entries))

	if a.Zip64 != 0 {
		recordOffset := uint64(len(out))
		out = le.AppendUint32(out, 0x06064b50)
		out = le.AppendUint64(out, 44)
		out = le.AppendUint16(out, 45)
		out = le.AppendUint16(out, 45)
		out = le.AppendUint32(out, 0)
		out = le.AppendUint32(out, 0)
		out = le.AppendUint64(out, count)
		out = le.AppendUint64(out, count)
		out = le.AppendUint64(out, cdSize)
		out = le.AppendUint64(out, cdStart)

		out = le.AppendUint32(out, 0x07064b50)
		out = le.AppendUint32(out, 0)
		out = le.AppendUint64(out, recordOffset)
		out = le.AppendUint32(out, 1)
	}

	eocdCount, eocdSize, eocdOffset := uint16(count), uint32(cdSize), uint32(cdStart)
	if a.Zip64&Zip64Count != 0 {
		eocdCount = 0xFFFF
	}
	if a.Zip64&Zip64DirSize != 0 {
		eocdSize = 0xFFFFFFFF
	}
	if a.Zip64&Zip64DirOffset != 0 {
		eocdOffset = 0xFFFFFFFF
	}
	out = le.AppendUint32(out, 0x06054b50)
	out = le.AppendUint16(out, 0)
	out = le.AppendUint16(out, 0)
	out = le.AppendUint16(out, eocdCount)
	out = le.AppendUint16(out, eocdCount)
	out = le.AppendUint32(out, eocdSize)
	out = le.AppendUint32(out, eocdOffset)
	out = le.AppendUint16(out, uint16(len(a.Comment)))
	out = append(out, a.Comment...)
	return out
}

// DataOffset returns the offset of entry i's data within Bytes().
func (a RawArchive) DataOffset(i int) int64 {
	off := int64(len(a.Prefix))
	for j, e := range a.Entries {
		off += 30 + int64(len(e.Name)) + int64(len(e.LocalExtra))
		if j == i {
			return off
		}
		off += int64(len(e.Data))
	}
	return -1
}
