package cache

import (
	"encoding/binary"
)

// FileMagic identifies a cache file.
const FileMagic = "MCAC"

// FormatVersion is the on-disk format version.
const FormatVersion = 1

// fixedHeaderSize is the portion of the header before the variable-length
// field name table.
const fixedHeaderSize = 20

const (
	hdrOffMagic     = 0
	hdrOffVersion   = 4
	hdrOffIndexID   = 8
	hdrOffHeaderLen = 12 // total header size, fixed + field table
	hdrOffFieldCnt  = 16
)

// Header is the fixed portion of a cache file's header, followed by a
// serialized field-name table (see EncodeHeader/DecodeHeader) that lets
// a reopened cache recover the same Registry indices it last used.
type Header struct {
	Version  uint32
	IndexID  uint32 // must match the paired main index's IndexID
	FieldCnt uint32
}

// EncodeHeader serializes h and reg's field table into one buffer.
func EncodeHeader(h Header, reg *Registry) []byte {
	type fieldEnc struct {
		name      string
		fixedSize uint32
	}

	fields := make([]fieldEnc, reg.Len())
	tableLen := 0

	for i := range fields {
		f := reg.Field(i)
		fields[i] = fieldEnc{name: f.Name, fixedSize: f.FixedSize}
		tableLen += 4 + len(f.Name) + 4 // namelen, name, fixedsize
	}

	total := fixedHeaderSize + tableLen
	buf := make([]byte, total)

	copy(buf[hdrOffMagic:], FileMagic)
	binary.LittleEndian.PutUint32(buf[hdrOffVersion:], h.Version)
	binary.LittleEndian.PutUint32(buf[hdrOffIndexID:], h.IndexID)
	binary.LittleEndian.PutUint32(buf[hdrOffHeaderLen:], uint32(total))
	binary.LittleEndian.PutUint32(buf[hdrOffFieldCnt:], uint32(len(fields)))

	off := fixedHeaderSize
	for _, f := range fields {
		binary.LittleEndian.PutUint32(buf[off:], uint32(len(f.name)))
		off += 4
		copy(buf[off:], f.name)
		off += len(f.name)
		binary.LittleEndian.PutUint32(buf[off:], f.fixedSize)
		off += 4
	}

	return buf
}

// DecodeHeader parses buf into a Header and a freshly populated
// Registry.
func DecodeHeader(buf []byte) (Header, *Registry, error) {
	if len(buf) < fixedHeaderSize {
		return Header{}, nil, ErrShortChunk
	}

	if string(buf[hdrOffMagic:hdrOffMagic+4]) != FileMagic {
		return Header{}, nil, ErrBadChunkMagic
	}

	h := Header{
		Version:  binary.LittleEndian.Uint32(buf[hdrOffVersion:]),
		IndexID:  binary.LittleEndian.Uint32(buf[hdrOffIndexID:]),
		FieldCnt: binary.LittleEndian.Uint32(buf[hdrOffFieldCnt:]),
	}

	reg := NewRegistry()
	off := fixedHeaderSize

	for range h.FieldCnt {
		if off+4 > len(buf) {
			return Header{}, nil, ErrShortChunk
		}

		nameLen := int(binary.LittleEndian.Uint32(buf[off:]))
		off += 4

		if off+nameLen+4 > len(buf) {
			return Header{}, nil, ErrShortChunk
		}

		name := string(buf[off : off+nameLen])
		off += nameLen

		fixedSize := binary.LittleEndian.Uint32(buf[off:])
		off += 4

		reg.Index(name, fixedSize)
	}

	return h, reg, nil
}

// HeaderLen returns the total on-disk size of h's header region,
// including the field table for reg.
func HeaderLen(reg *Registry) int {
	total := fixedHeaderSize
	for i := range reg.Len() {
		total += 4 + len(reg.Field(i).Name) + 4
	}

	return total
}
