package zipentry

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/meigma/rangezip/source"
)

// Fixed lengths of the ZIP structures read by the locator.
const (
	eocdLen          = 22
	zip64LocatorLen  = 20
	zip64EOCDLen     = 56
	centralHeaderLen = 46
	localHeaderLen   = 30

	// maxCommentLen bounds the archive comment, and with it the EOCD search window.
	maxCommentLen = 1<<16 - 1
)

// Sentinels marking a field whose real value lives in a ZIP64 structure.
const (
	sentinel16 = 0xFFFF
	sentinel32 = 0xFFFFFFFF
)

// zip64ExtraTag identifies the ZIP64 extended information extra field.
const zip64ExtraTag = 0x0001

// MethodStore is the compression method of members stored without compression.
const MethodStore = 0

var (
	eocdSignature          = []byte("PK\x05\x06")
	zip64LocatorSignature  = []byte("PK\x06\x07")
	zip64EOCDSignature     = []byte("PK\x06\x06")
	centralHeaderSignature = []byte("PK\x01\x02")
	localHeaderSignature   = []byte("PK\x03\x04")
)

var le = binary.LittleEndian

// directory summarizes the archive's central directory as recorded by the
// end of central directory record, or its ZIP64 counterpart.
type directory struct {
	count  uint64
	size   uint64
	offset uint64
	zip64  bool
}

// parseEOCD decodes a 22-byte end of central directory record.
func parseEOCD(b []byte) directory {
	return directory{
		count:  uint64(le.Uint16(b[10:12])),
		size:   uint64(le.Uint32(b[12:16])),
		offset: uint64(le.Uint32(b[16:20])),
	}
}

// needsZip64 reports whether any field carries its overflow sentinel.
func (d directory) needsZip64() bool {
	return d.count == sentinel16 || d.size == sentinel32 || d.offset == sentinel32
}

// parseZip64EOCD decodes the 56-byte fixed part of a ZIP64 end of central
// directory record. Its values replace the 16/32-bit ones entirely.
func parseZip64EOCD(b []byte) (directory, error) {
	if !bytes.Equal(b[:4], zip64EOCDSignature) {
		return directory{}, fmt.Errorf("%w: zip64 end of central directory signature %x", source.ErrProtocolViolation, b[:4])
	}
	return directory{
		count:  le.Uint64(b[32:40]),
		size:   le.Uint64(b[40:48]),
		offset: le.Uint64(b[48:56]),
		zip64:  true,
	}, nil
}

// centralRecord holds the fields of a central directory file header the
// locator needs.
type centralRecord struct {
	method           uint16
	compressedSize   uint64
	uncompressedSize uint64
	headerOffset     uint64
	disk             uint32
	nameLen          int
	extraLen         int
	commentLen       int
}

// parseCentralRecord decodes the 46-byte fixed part of a central directory
// file header.
func parseCentralRecord(b []byte) (centralRecord, error) {
	if !bytes.Equal(b[:4], centralHeaderSignature) {
		return centralRecord{}, fmt.Errorf("%w: central directory signature %x", source.ErrProtocolViolation, b[:4])
	}
	return centralRecord{
		method:           le.Uint16(b[10:12]),
		compressedSize:   uint64(le.Uint32(b[20:24])),
		uncompressedSize: uint64(le.Uint32(b[24:28])),
		nameLen:          int(le.Uint16(b[28:30])),
		extraLen:         int(le.Uint16(b[30:32])),
		commentLen:       int(le.Uint16(b[32:34])),
		disk:             uint32(le.Uint16(b[34:36])),
		headerOffset:     uint64(le.Uint32(b[42:46])),
	}, nil
}

// length returns the full size of the record including its variable parts.
func (r centralRecord) length() int {
	return centralHeaderLen + r.nameLen + r.extraLen + r.commentLen
}

// needsZip64 reports whether any field carries its overflow sentinel.
func (r centralRecord) needsZip64() bool {
	return r.uncompressedSize == sentinel32 || r.compressedSize == sentinel32 ||
		r.headerOffset == sentinel32 || r.disk == sentinel16
}

// applyZip64 walks the extra field as (tag, length) blocks and takes 64-bit
// values from a ZIP64 block. The block holds, in this order, only those of
// uncompressed size, compressed size, header offset and disk whose record
// field carries its sentinel.
func (r *centralRecord) applyZip64(extra []byte) error {
	for len(extra) >= 4 {
		tag := le.Uint16(extra[0:2])
		n := int(le.Uint16(extra[2:4]))
		if 4+n > len(extra) {
			return fmt.Errorf("%w: extra field 0x%04x length %d exceeds %d remaining bytes",
				source.ErrProtocolViolation, tag, n, len(extra)-4)
		}
		if tag == zip64ExtraTag {
			if err := r.readZip64(extra[4 : 4+n]); err != nil {
				return err
			}
		}
		extra = extra[4+n:]
	}
	return nil
}

func (r *centralRecord) readZip64(b []byte) error {
	take := func(width int, field string) ([]byte, error) {
		if len(b) < width {
			return nil, fmt.Errorf("%w: zip64 extra field too short for %s", source.ErrProtocolViolation, field)
		}
		v := b[:width]
		b = b[width:]
		return v, nil
	}
	if r.uncompressedSize == sentinel32 {
		v, err := take(8, "uncompressed size")
		if err != nil {
			return err
		}
		r.uncompressedSize = le.Uint64(v)
	}
	if r.compressedSize == sentinel32 {
		v, err := take(8, "compressed size")
		if err != nil {
			return err
		}
		r.compressedSize = le.Uint64(v)
	}
	if r.headerOffset == sentinel32 {
		v, err := take(8, "local header offset")
		if err != nil {
			return err
		}
		r.headerOffset = le.Uint64(v)
	}
	if r.disk == sentinel16 {
		v, err := take(4, "disk number")
		if err != nil {
			return err
		}
		r.disk = le.Uint32(v)
	}
	return nil
}

// localHeader holds the variable-length sizes of a local file header. They
// can differ from the central directory's, so only these locate the data.
type localHeader struct {
	nameLen  int
	extraLen int
}

// parseLocalHeader decodes the 30-byte fixed part of a local file header.
func parseLocalHeader(b []byte) (localHeader, error) {
	if !bytes.Equal(b[:4], localHeaderSignature) {
		return localHeader{}, fmt.Errorf("%w: local file header signature %x", source.ErrProtocolViolation, b[:4])
	}
	return localHeader{
		nameLen:  int(le.Uint16(b[26:28])),
		extraLen: int(le.Uint16(b[28:30])),
	}, nil
}
