package mailindex

import (
	"encoding/binary"
	"hash/crc32"
)

// Magic identifies an index file, written at offset 0.
const Magic = "MIDX"

// FormatVersion is the on-disk format version gating upgrades.
const FormatVersion = 1

// BaseHeaderSize is the number of bytes the fixed fields below occupy.
// HeaderSize (the value stored in the file) may be larger; the excess is
// reserved for forward compatibility.
const BaseHeaderSize = 136

// Header offsets, little-endian.
const (
	offMagic                  = 0x00 // [4]byte
	offVersion                = 0x04 // uint32
	offBaseHeaderSize         = 0x08 // uint32
	offHeaderSize             = 0x0C // uint32
	offRecordSize             = 0x10 // uint32
	offKeywordsMaskSize       = 0x14 // uint32
	offFlags                  = 0x18 // uint32
	offIndexID                = 0x1C // uint32
	offUIDValidity            = 0x20 // uint32
	offNextUID                = 0x24 // uint32
	offMessagesCount          = 0x28 // uint32
	offRecentMessagesCount    = 0x2C // uint32
	offSeenMessagesCount      = 0x30 // uint32
	offDeletedMessagesCount   = 0x34 // uint32
	offFirstRecentUIDLowwater = 0x38 // uint32
	offFirstUnseenUIDLowwater = 0x3C // uint32
	offFirstDeletedUIDLowwater = 0x40 // uint32
	offLogFileSeq             = 0x44 // uint32
	offLogFileTailOffset      = 0x48 // uint32
	offLogFileHeadOffset      = 0x4C // uint32
	offSyncSize               = 0x50 // uint64 -- grows the struct past 0x58
	offSyncStamp              = 0x58 // uint32
	offDayStamp               = 0x5C // uint32
	offHeaderCRC32C           = 0x60 // uint32
	// offDayFirstUID occupies 0x64..0x84 (8 x uint32).
	offDayFirstUID = 0x64
	// offExtRegionSize sits right after DayFirstUID, pushing the fixed
	// region to 0x88 and setting BaseHeaderSize.
	offExtRegionSize = 0x84 // uint32
)

// numDayFirstUID is the length of Header.DayFirstUID.
const numDayFirstUID = 8

// Header is the fixed-size struct at the start of every index file,
// carrying mailbox-wide counters.
type Header struct {
	Version          uint32
	BaseHeaderSize   uint32
	HeaderSize       uint32 // total header size on disk; >= BaseHeaderSize
	RecordSize       uint32
	KeywordsMaskSize uint32
	Flags            uint32
	IndexID          uint32 // creation timestamp; must match every sibling file

	UIDValidity uint32
	NextUID     uint32

	MessagesCount        uint32
	RecentMessagesCount  uint32
	SeenMessagesCount    uint32
	DeletedMessagesCount uint32

	FirstRecentUIDLowwater  uint32
	FirstUnseenUIDLowwater  uint32
	FirstDeletedUIDLowwater uint32

	LogFileSeq        uint32
	LogFileTailOffset uint32
	LogFileHeadOffset uint32

	SyncSize  uint64
	SyncStamp uint32
	DayStamp  uint32

	DayFirstUID [numDayFirstUID]uint32

	// ExtRegionSize is the combined byte width of every registered
	// per-record extension's slot, appended after the keyword bitmap in
	// every record. See ExtRegister and Map.GrowExtRegion.
	ExtRegionSize uint32
}

// HeaderFlag bits stored in Header.Flags.
type HeaderFlag uint32

const (
	// FlagCorrupted marks the index as known-bad; readers must run fsck
	// before trusting it.
	FlagCorrupted HeaderFlag = 1 << iota
	// FlagFsckInProgress is set while a repair is underway so concurrent
	// openers don't race the repair.
	FlagFsckInProgress
)

// EncodeHeader serializes h into a HeaderSize-byte buffer (h.HeaderSize
// must already be set and >= the encoded fixed-field region) and stamps
// the CRC.
func EncodeHeader(h *Header) []byte {
	buf := make([]byte, h.HeaderSize)

	copy(buf[offMagic:], Magic)
	binary.LittleEndian.PutUint32(buf[offVersion:], h.Version)
	binary.LittleEndian.PutUint32(buf[offBaseHeaderSize:], h.BaseHeaderSize)
	binary.LittleEndian.PutUint32(buf[offHeaderSize:], h.HeaderSize)
	binary.LittleEndian.PutUint32(buf[offRecordSize:], h.RecordSize)
	binary.LittleEndian.PutUint32(buf[offKeywordsMaskSize:], h.KeywordsMaskSize)
	binary.LittleEndian.PutUint32(buf[offFlags:], h.Flags)
	binary.LittleEndian.PutUint32(buf[offIndexID:], h.IndexID)
	binary.LittleEndian.PutUint32(buf[offUIDValidity:], h.UIDValidity)
	binary.LittleEndian.PutUint32(buf[offNextUID:], h.NextUID)
	binary.LittleEndian.PutUint32(buf[offMessagesCount:], h.MessagesCount)
	binary.LittleEndian.PutUint32(buf[offRecentMessagesCount:], h.RecentMessagesCount)
	binary.LittleEndian.PutUint32(buf[offSeenMessagesCount:], h.SeenMessagesCount)
	binary.LittleEndian.PutUint32(buf[offDeletedMessagesCount:], h.DeletedMessagesCount)
	binary.LittleEndian.PutUint32(buf[offFirstRecentUIDLowwater:], h.FirstRecentUIDLowwater)
	binary.LittleEndian.PutUint32(buf[offFirstUnseenUIDLowwater:], h.FirstUnseenUIDLowwater)
	binary.LittleEndian.PutUint32(buf[offFirstDeletedUIDLowwater:], h.FirstDeletedUIDLowwater)
	binary.LittleEndian.PutUint32(buf[offLogFileSeq:], h.LogFileSeq)
	binary.LittleEndian.PutUint32(buf[offLogFileTailOffset:], h.LogFileTailOffset)
	binary.LittleEndian.PutUint32(buf[offLogFileHeadOffset:], h.LogFileHeadOffset)
	binary.LittleEndian.PutUint64(buf[offSyncSize:], h.SyncSize)
	binary.LittleEndian.PutUint32(buf[offSyncStamp:], h.SyncStamp)
	binary.LittleEndian.PutUint32(buf[offDayStamp:], h.DayStamp)

	for i, v := range h.DayFirstUID {
		binary.LittleEndian.PutUint32(buf[offDayFirstUID+i*4:], v)
	}

	binary.LittleEndian.PutUint32(buf[offExtRegionSize:], h.ExtRegionSize)

	crc := computeHeaderCRC(buf)
	binary.LittleEndian.PutUint32(buf[offHeaderCRC32C:], crc)

	return buf
}

// DecodeHeader parses a HeaderSize-byte buffer into a Header, without
// validating the CRC; callers validate separately with ValidateHeaderCRC
// so that callers doing forensic dumps (cmd/mindexctl) can still see a
// corrupt header's fields.
func DecodeHeader(buf []byte) Header {
	var h Header

	h.Version = binary.LittleEndian.Uint32(buf[offVersion:])
	h.BaseHeaderSize = binary.LittleEndian.Uint32(buf[offBaseHeaderSize:])
	h.HeaderSize = binary.LittleEndian.Uint32(buf[offHeaderSize:])
	h.RecordSize = binary.LittleEndian.Uint32(buf[offRecordSize:])
	h.KeywordsMaskSize = binary.LittleEndian.Uint32(buf[offKeywordsMaskSize:])
	h.Flags = binary.LittleEndian.Uint32(buf[offFlags:])
	h.IndexID = binary.LittleEndian.Uint32(buf[offIndexID:])
	h.UIDValidity = binary.LittleEndian.Uint32(buf[offUIDValidity:])
	h.NextUID = binary.LittleEndian.Uint32(buf[offNextUID:])
	h.MessagesCount = binary.LittleEndian.Uint32(buf[offMessagesCount:])
	h.RecentMessagesCount = binary.LittleEndian.Uint32(buf[offRecentMessagesCount:])
	h.SeenMessagesCount = binary.LittleEndian.Uint32(buf[offSeenMessagesCount:])
	h.DeletedMessagesCount = binary.LittleEndian.Uint32(buf[offDeletedMessagesCount:])
	h.FirstRecentUIDLowwater = binary.LittleEndian.Uint32(buf[offFirstRecentUIDLowwater:])
	h.FirstUnseenUIDLowwater = binary.LittleEndian.Uint32(buf[offFirstUnseenUIDLowwater:])
	h.FirstDeletedUIDLowwater = binary.LittleEndian.Uint32(buf[offFirstDeletedUIDLowwater:])
	h.LogFileSeq = binary.LittleEndian.Uint32(buf[offLogFileSeq:])
	h.LogFileTailOffset = binary.LittleEndian.Uint32(buf[offLogFileTailOffset:])
	h.LogFileHeadOffset = binary.LittleEndian.Uint32(buf[offLogFileHeadOffset:])
	h.SyncSize = binary.LittleEndian.Uint64(buf[offSyncSize:])
	h.SyncStamp = binary.LittleEndian.Uint32(buf[offSyncStamp:])
	h.DayStamp = binary.LittleEndian.Uint32(buf[offDayStamp:])

	for i := range h.DayFirstUID {
		h.DayFirstUID[i] = binary.LittleEndian.Uint32(buf[offDayFirstUID+i*4:])
	}

	h.ExtRegionSize = binary.LittleEndian.Uint32(buf[offExtRegionSize:])

	return h
}

// computeHeaderCRC computes CRC32-C over buf with the CRC field itself
// zeroed.
func computeHeaderCRC(buf []byte) uint32 {
	tmp := make([]byte, len(buf))
	copy(tmp, buf)

	for i := offHeaderCRC32C; i < offHeaderCRC32C+4; i++ {
		tmp[i] = 0
	}

	return crc32.Checksum(tmp, crc32.MakeTable(crc32.Castagnoli))
}

// ValidateHeaderCRC reports whether buf's stored CRC matches its computed
// CRC.
func ValidateHeaderCRC(buf []byte) bool {
	if len(buf) < offHeaderCRC32C+4 {
		return false
	}

	stored := binary.LittleEndian.Uint32(buf[offHeaderCRC32C:])

	return stored == computeHeaderCRC(buf)
}

// NewHeader builds a fresh header for a newly created mailbox index.
// headerSize must be >= the fixed-field region; callers pad with
// HeaderSize to leave room for future fields.
func NewHeader(uidValidity, indexID uint32, keywordsMaskSize uint32, headerSize uint32) Header {
	if headerSize < BaseHeaderSize {
		headerSize = BaseHeaderSize
	}

	return Header{
		Version:          FormatVersion,
		BaseHeaderSize:   BaseHeaderSize,
		HeaderSize:       headerSize,
		RecordSize:       RecordSize(keywordsMaskSize, 0),
		KeywordsMaskSize: keywordsMaskSize,
		IndexID:          indexID,
		UIDValidity:      uidValidity,
		NextUID:          1,
	}
}
