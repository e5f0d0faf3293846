package sync

// Flags controls optional Begin/Commit behavior.
type Flags uint32

const (
	// FlagAvoidFlagUpdates keeps every replayed flag-update record out of
	// Next and stops replay from synthesizing FlagDirty on the records it
	// touches; the flag changes themselves are still applied to the index.
	FlagAvoidFlagUpdates Flags = 1 << iota

	// FlagExternal marks records written by an external process sharing
	// the same index (another IMAP session), which some callers use to
	// decide whether to notify a client via untagged responses.
	FlagExternal
)

func (f Flags) has(bit Flags) bool {
	return f&bit != 0
}
