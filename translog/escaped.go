package translog

// Escaped-uint32 size encoding: a record's size field is written as 0
// first, then patched in place once the record body has been fully
// written and fsynced. A reader that sees 0 knows the writer crashed
// (or is still running) mid-append and must stop replaying at that
// point rather than trusting whatever garbage bytes follow.
//
// Values are also "escaped" so the two reserved markers (0 meaning
// "uncommitted" and the all-ones value meaning "corrupt/sentinel") never
// collide with a legitimate size: EncodeSize stores size+1, and a size of
// maxPlainSize or more is written as the corrupt marker instead.
const (
	sizeUncommitted uint32 = 0
	sizeCorrupt     uint32 = 0xFFFFFFFF
	maxPlainSize    uint32 = sizeCorrupt - 1
)

// EncodeSize returns the wire representation of a record body size.
// size must be < maxPlainSize; larger sizes never occur in practice since
// individual transaction-log records stay well under 4GiB, but the
// bound is enforced defensively.
func EncodeSize(size uint32) uint32 {
	if size >= maxPlainSize {
		return sizeCorrupt
	}

	return size + 1
}

// DecodeSize reverses EncodeSize. ok is false if raw is the
// uncommitted or corrupt marker.
func DecodeSize(raw uint32) (size uint32, ok bool) {
	if raw == sizeUncommitted || raw == sizeCorrupt {
		return 0, false
	}

	return raw - 1, true
}

// IsUncommitted reports whether raw is the placeholder a writer stores
// before a record body is fully durable.
func IsUncommitted(raw uint32) bool {
	return raw == sizeUncommitted
}
