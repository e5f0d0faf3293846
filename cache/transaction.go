package cache

import (
	"fmt"
	"io"
)

// ErrGenerationChanged is returned by Commit when another transaction
// committed to the same Cache between this transaction's Begin and
// Commit. The caller must discard its buffered writes and retry against
// the cache's new state; nothing from the stale transaction is applied.
var ErrGenerationChanged = fmt.Errorf("cache: generation changed since transaction began")

// Transaction batches field writes for one or more UIDs and flushes them
// as a single pass over the cache file on Commit. Buffering matters
// because a mailbox sync typically updates many fields across many UIDs
// in one pass, and each would otherwise be its own seek+write+fsync.
type Transaction struct {
	cache      *Cache
	generation uint64
	pending    map[uint32]map[uint32][]byte // uid -> fieldIdx -> data
}

// OffsetUpdate reports a UID whose most current chunk moved to Offset as
// part of a Commit, for a caller (the sync engine's CommitCache) that
// persists the offset into the main index's cache-offset extension so
// it's recoverable by replay rather than only by rescanning the cache
// file.
type OffsetUpdate struct {
	UID    uint32
	Offset int64
}

// Begin starts a transaction against c, capturing its current
// generation.
func (c *Cache) Begin() *Transaction {
	return &Transaction{
		cache:      c,
		generation: c.generation,
		pending:    make(map[uint32]map[uint32][]byte),
	}
}

// SetField buffers a field value for uid. Last write wins if SetField is
// called twice for the same uid+fieldIdx before Commit.
func (t *Transaction) SetField(uid uint32, fieldIdx int, data []byte) {
	m, ok := t.pending[uid]
	if !ok {
		m = make(map[uint32][]byte)
		t.pending[uid] = m
	}

	m[uint32(fieldIdx)] = data
}

// Commit flushes all buffered writes. Each UID's new values are merged
// with its existing cached fields (if any) into one fresh chunk, written
// at the current end of file; any previous chunk(s) for that UID become
// holes. Commit fails with ErrGenerationChanged, leaving the cache
// untouched, if a concurrent transaction committed first. On success it
// returns one OffsetUpdate per UID whose chunk offset moved, in
// unspecified order; a caller wiring the cache into the main index (see
// sync.Ctx.CommitCache) uses these to persist the new offsets.
func (t *Transaction) Commit() ([]OffsetUpdate, error) {
	if t.generation != t.cache.generation {
		return nil, ErrGenerationChanged
	}

	if len(t.pending) == 0 {
		return nil, nil
	}

	updates := make([]OffsetUpdate, 0, len(t.pending))

	for uid, fields := range t.pending {
		newOff, err := t.flushUID(uid, fields)
		if err != nil {
			return nil, fmt.Errorf("cache: commit uid %d: %w", uid, err)
		}

		updates = append(updates, OffsetUpdate{UID: uid, Offset: newOff})
	}

	if err := t.cache.file.Sync(); err != nil {
		return nil, fmt.Errorf("cache: sync: %w", err)
	}

	t.cache.generation++
	t.pending = nil

	return updates, nil
}

// flushUID merges fields with uid's existing chunk chain (if any),
// writes one new chunk containing the merged set, and turns the old
// chain's head into a hole. It returns the new chunk's offset.
func (t *Transaction) flushUID(uid uint32, fields map[uint32][]byte) (int64, error) {
	merged := make(map[uint32][]byte, len(fields))

	oldOff, hadOld := t.cache.index[uid]
	oldSize := 0

	if hadOld {
		chunk, err := t.cache.readChunkAt(oldOff)
		if err != nil {
			return 0, err
		}

		for _, e := range chunk.Entries {
			merged[e.FieldIdx] = e.Data
		}

		oldSize = chunk.EncodedSize()

		// Follow the chain so fields written before an even older split
		// aren't lost; each hop's values are weaker than what we already
		// have (closer hops override further ones).
		next := chunk.NextOffset
		for next != 0 {
			older, err := t.cache.readChunkAt(int64(next))
			if err != nil {
				break
			}

			for _, e := range older.Entries {
				if _, exists := merged[e.FieldIdx]; !exists {
					merged[e.FieldIdx] = e.Data
				}
			}

			next = older.NextOffset
		}
	}

	for idx, data := range fields {
		merged[idx] = data
	}

	entries := make([]Entry, 0, len(merged))
	for idx, data := range merged {
		entries = append(entries, Entry{FieldIdx: idx, Data: data})
	}

	newChunk := Chunk{UID: uid, Entries: entries}
	buf := EncodeChunk(newChunk)

	if _, err := t.cache.file.Seek(t.cache.tail, io.SeekStart); err != nil {
		return 0, fmt.Errorf("seek: %w", err)
	}

	if _, err := t.cache.file.Write(buf); err != nil {
		return 0, fmt.Errorf("write chunk: %w", err)
	}

	newOff := t.cache.tail
	t.cache.tail += int64(len(buf))
	t.cache.index[uid] = newOff

	if hadOld {
		if err := t.cache.writeHole(oldOff, oldSize); err != nil {
			return 0, err
		}
	}

	return newOff, nil
}

// writeHole overwrites the size bytes at off with a Hole record,
// reclaiming nothing immediately but marking the space as free for a
// future Compress pass.
func (c *Cache) writeHole(off int64, size int) error {
	if _, err := c.file.Seek(off, io.SeekStart); err != nil {
		return fmt.Errorf("cache: seek hole: %w", err)
	}

	if _, err := c.file.Write(EncodeHole(size)); err != nil {
		return fmt.Errorf("cache: write hole: %w", err)
	}

	return nil
}
