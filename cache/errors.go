package cache

import "errors"

var (
	// ErrShortChunk is returned when fewer bytes are available than a
	// chunk or hole record's declared size.
	ErrShortChunk = errors.New("cache: short chunk record")

	// ErrBadChunkMagic is returned when a record's leading magic is
	// neither ChunkMagic nor HoleMagic.
	ErrBadChunkMagic = errors.New("cache: bad chunk magic")

	// ErrChunkCorrupt is returned when a chunk's CRC doesn't match its
	// body.
	ErrChunkCorrupt = errors.New("cache: chunk checksum mismatch")

	// ErrFieldNotCached is returned by lookups for a field that has no
	// cached value for the given UID (the caller should ask the backend
	// directly and decide whether to record the access).
	ErrFieldNotCached = errors.New("cache: field not cached for uid")

	// ErrUIDNotCached is returned when no chunk at all exists for a UID.
	ErrUIDNotCached = errors.New("cache: uid not cached")

	// ErrIndexIDMismatch is returned when a cache file's index_id doesn't
	// match the main index it's supposed to pair with.
	ErrIndexIDMismatch = errors.New("cache: index_id mismatch")
)
