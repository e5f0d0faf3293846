package mailindex

import (
	"encoding/binary"
	"sort"
)

// baseRecordSize is the fixed portion of every record: UID (4 bytes) +
// Flags (1 byte) + 3 bytes padding to keep the keyword bitmap that
// follows 4-byte aligned.
const baseRecordSize = 8

// RecordSize returns the on-disk stride of a record given the mailbox's
// current keyword bitmap width and extension region width (both in
// bytes), rounded to a 4-byte multiple so records stay aligned in the
// mmap'd region. The extension region, when present, always follows the
// keyword bitmap.
func RecordSize(keywordsMaskSize, extRegionSize uint32) uint32 {
	size := baseRecordSize + keywordsMaskSize + extRegionSize
	if rem := size % 4; rem != 0 {
		size += 4 - rem
	}

	return size
}

// MessageFlag bits stored in Record.Flags, matching the IMAP system
// flags.
type MessageFlag uint8

const (
	FlagAnswered MessageFlag = 1 << iota
	FlagFlagged
	FlagDeleted
	FlagSeen
	FlagDraft
	FlagRecent

	// FlagDirty marks a record whose flags changed locally but haven't
	// been confirmed written back to the mailbox's own storage by a
	// backend yet. The sync engine sets it when applying a non-external
	// flag update (unless FlagAvoidFlagUpdates is set); a backend clears
	// it via Transaction.ClearDirty once the write lands.
	FlagDirty
)

// Record is one fixed-stride entry in the main index, ordered by
// ascending UID, so lookups can binary search.
type Record struct {
	UID      uint32
	Flags    MessageFlag
	Keywords []byte // KeywordsMaskSize bytes, see package internal/bitset
}

// EncodeRecord serializes r into a baseRecordSize+keywordsMaskSize byte
// buffer: the UID/Flags fixed fields followed by the keyword bitmap.
// Callers writing this into a wider, extension-bearing record stride
// must copy only these bytes, not the whole stride, so any extension
// data already stored past the keyword bitmap survives the write.
func EncodeRecord(r Record, keywordsMaskSize uint32) []byte {
	buf := make([]byte, baseRecordSize+keywordsMaskSize)

	binary.LittleEndian.PutUint32(buf[0:4], r.UID)
	buf[4] = byte(r.Flags)
	copy(buf[baseRecordSize:], r.Keywords)

	return buf
}

// DecodeRecord parses a recordSize-byte slice (keywordsMaskSize of which
// is the keyword bitmap) into a Record. The returned Keywords slice
// aliases buf; callers that retain it across a Map remap must copy.
func DecodeRecord(buf []byte, keywordsMaskSize uint32) Record {
	return Record{
		UID:      binary.LittleEndian.Uint32(buf[0:4]),
		Flags:    MessageFlag(buf[4]),
		Keywords: buf[baseRecordSize : baseRecordSize+keywordsMaskSize],
	}
}

// Records is a read-only view over the main index's record array,
// backed by the Map's mmap region (or heap fallback). Every accessor
// reads the current bytes of that region; there is no generation check,
// so a reader sees whatever the Map's write methods last stored.
type Records struct {
	data       []byte
	recordSize uint32
	maskSize   uint32
}

// NewRecords wraps data (the record region following the header) for
// lookups. Every whole recordSize-byte stride in data counts as one
// record.
func NewRecords(data []byte, recordSize, maskSize uint32) Records {
	return Records{data: data, recordSize: recordSize, maskSize: maskSize}
}

// Count returns the number of records currently addressable in data.
func (r Records) Count() int {
	if r.recordSize == 0 {
		return 0
	}

	return len(r.data) / int(r.recordSize)
}

// At returns the 1-indexed (seq 1..Count()) record.
func (r Records) At(seq int) (Record, bool) {
	if seq < 1 || seq > r.Count() {
		return Record{}, false
	}

	off := (seq - 1) * int(r.recordSize)

	return DecodeRecord(r.data[off:off+int(r.recordSize)], r.maskSize), true
}

// LookupUID returns the seq of the record with the given UID, using
// binary search over the UID-ascending array.
func (r Records) LookupUID(uid uint32) (seq int, found bool) {
	n := r.Count()

	idx := sort.Search(n, func(i int) bool {
		rec, _ := r.At(i + 1)
		return rec.UID >= uid
	})

	if idx >= n {
		return 0, false
	}

	rec, _ := r.At(idx + 1)
	if rec.UID != uid {
		return 0, false
	}

	return idx + 1, true
}

// LookupUIDRange returns the inclusive seq range [seq1, seq2] covering
// UIDs in [uid1, uid2]. If no records fall in range, found is false.
func (r Records) LookupUIDRange(uid1, uid2 uint32) (seq1, seq2 int, found bool) {
	n := r.Count()
	if n == 0 || uid1 > uid2 {
		return 0, 0, false
	}

	lo := sort.Search(n, func(i int) bool {
		rec, _ := r.At(i + 1)
		return rec.UID >= uid1
	})

	if lo >= n {
		return 0, 0, false
	}
	if rec, _ := r.At(lo + 1); rec.UID > uid2 {
		return 0, 0, false
	}

	hi := sort.Search(n, func(i int) bool {
		rec, _ := r.At(i + 1)
		return rec.UID > uid2
	}) - 1

	return lo + 1, hi + 1, true
}

// LookupFirst scans forward from seq 1 for the first record whose Flags,
// masked by mask, equals flags. Used to find e.g. the first unseen message.
func (r Records) LookupFirst(flags, mask MessageFlag) (seq int, found bool) {
	n := r.Count()
	for i := 1; i <= n; i++ {
		rec, _ := r.At(i)
		if rec.Flags&mask == flags&mask {
			return i, true
		}
	}

	return 0, false
}
