package cache

import (
	"encoding/binary"
	"hash/crc32"
)

// ChunkMagic marks the start of a live per-UID chunk record.
const ChunkMagic uint32 = 0xCACE0001

// HoleMagic marks dead space left behind by a superseded chunk (Compress
// drops every hole); readers skip the hole's size bytes and keep scanning.
const HoleMagic uint32 = 0xFFEEDEFF

const chunkFixedSize = 4 + 4 + 4 + 4 + 4 // magic, totalSize, uid, nextOffset, numEntries
const entryFixedSize = 4 + 4             // fieldIdx, dataLen
const chunkTrailerSize = 4               // CRC32-C
const holeHeaderSize = 8                 // magic, totalSize

var cacheCRCTable = crc32.MakeTable(crc32.Castagnoli)

// Entry is one field's value within a chunk.
type Entry struct {
	FieldIdx uint32
	Data     []byte
}

// Chunk is one UID's cache data: every cached field value currently
// valid for that message, plus a forward link to an earlier or later
// chunk extending the same UID's field set (fields are appended as they
// get promoted to DecisionYes after the UID's first chunk was written).
type Chunk struct {
	UID        uint32
	NextOffset uint32
	Entries    []Entry
}

// EncodedSize returns the on-disk size of c, including framing.
func (c Chunk) EncodedSize() int {
	size := chunkFixedSize
	for _, e := range c.Entries {
		size += entryFixedSize + len(e.Data)
	}

	return size + chunkTrailerSize
}

// EncodeChunk serializes c.
func EncodeChunk(c Chunk) []byte {
	total := c.EncodedSize()
	buf := make([]byte, total)

	binary.LittleEndian.PutUint32(buf[0:], ChunkMagic)
	binary.LittleEndian.PutUint32(buf[4:], uint32(total))
	binary.LittleEndian.PutUint32(buf[8:], c.UID)
	binary.LittleEndian.PutUint32(buf[12:], c.NextOffset)
	binary.LittleEndian.PutUint32(buf[16:], uint32(len(c.Entries)))

	off := chunkFixedSize
	for _, e := range c.Entries {
		binary.LittleEndian.PutUint32(buf[off:], e.FieldIdx)
		binary.LittleEndian.PutUint32(buf[off+4:], uint32(len(e.Data)))
		copy(buf[off+8:], e.Data)
		off += entryFixedSize + len(e.Data)
	}

	crc := crc32.Checksum(buf[:off], cacheCRCTable)
	binary.LittleEndian.PutUint32(buf[off:], crc)

	return buf
}

// DecodeChunk parses one chunk starting at the beginning of buf (buf may
// be longer than the chunk; only the first totalSize bytes are
// consumed).
func DecodeChunk(buf []byte) (Chunk, int, error) {
	if len(buf) < chunkFixedSize+chunkTrailerSize {
		return Chunk{}, 0, ErrShortChunk
	}

	magic := binary.LittleEndian.Uint32(buf[0:])
	if magic != ChunkMagic {
		return Chunk{}, 0, ErrBadChunkMagic
	}

	total := int(binary.LittleEndian.Uint32(buf[4:]))
	if total < chunkFixedSize+chunkTrailerSize || total > len(buf) {
		return Chunk{}, 0, ErrShortChunk
	}

	uid := binary.LittleEndian.Uint32(buf[8:])
	next := binary.LittleEndian.Uint32(buf[12:])
	numEntries := int(binary.LittleEndian.Uint32(buf[16:]))

	body := buf[:total-chunkTrailerSize]
	wantCRC := binary.LittleEndian.Uint32(buf[total-chunkTrailerSize : total])

	if crc32.Checksum(body, cacheCRCTable) != wantCRC {
		return Chunk{}, 0, ErrChunkCorrupt
	}

	entries := make([]Entry, 0, numEntries)
	off := chunkFixedSize

	for range numEntries {
		if off+entryFixedSize > len(body) {
			return Chunk{}, 0, ErrShortChunk
		}

		fieldIdx := binary.LittleEndian.Uint32(body[off:])
		dataLen := int(binary.LittleEndian.Uint32(body[off+4:]))
		off += entryFixedSize

		if off+dataLen > len(body) {
			return Chunk{}, 0, ErrShortChunk
		}

		entries = append(entries, Entry{FieldIdx: fieldIdx, Data: body[off : off+dataLen]})
		off += dataLen
	}

	return Chunk{UID: uid, NextOffset: next, Entries: entries}, total, nil
}

// EncodeHole writes a hole record reserving exactly size bytes
// (size >= holeHeaderSize).
func EncodeHole(size int) []byte {
	buf := make([]byte, size)
	binary.LittleEndian.PutUint32(buf[0:], HoleMagic)
	binary.LittleEndian.PutUint32(buf[4:], uint32(size))

	return buf
}

// PeekRecord inspects buf's leading magic and reports whether it is a
// live chunk or a hole, and the record's total on-disk size.
func PeekRecord(buf []byte) (isHole bool, size int, err error) {
	if len(buf) < holeHeaderSize {
		return false, 0, ErrShortChunk
	}

	magic := binary.LittleEndian.Uint32(buf[0:])
	size = int(binary.LittleEndian.Uint32(buf[4:]))

	switch magic {
	case HoleMagic:
		return true, size, nil
	case ChunkMagic:
		return false, size, nil
	default:
		return false, 0, ErrBadChunkMagic
	}
}
