package cache

import (
	"bytes"
	"fmt"
	"io"

	"github.com/natefinch/atomic"

	mfs "github.com/dcvt/mindex/fs"
)

// CompressThreshold is the fraction of a cache file that must be dead
// (hole) space before ShouldCompress recommends a rewrite.
const CompressThreshold = 0.5

// DecisionCoverage is a per-UID fraction of DecisionYes/DecisionForced
// fields. Compress does not read it: every UID's chunk chain is flattened
// and rewritten the same way regardless of its fields' decisions.
const DecisionCoverage = 0.0

// Stats summarizes a cache file's live/dead byte split, used to decide
// whether to compress.
type Stats struct {
	LiveBytes int64
	DeadBytes int64
}

// ShouldCompress reports whether dead space has crossed CompressThreshold
// of the file.
func (s Stats) ShouldCompress() bool {
	total := s.LiveBytes + s.DeadBytes
	if total == 0 {
		return false
	}

	return float64(s.DeadBytes)/float64(total) >= CompressThreshold
}

// Scan computes live/dead byte totals by walking every record after the
// header.
func (c *Cache) Scan() (Stats, error) {
	fi, err := c.file.Stat()
	if err != nil {
		return Stats{}, fmt.Errorf("cache: stat: %w", err)
	}

	whole := make([]byte, fi.Size())
	if _, err := c.file.Seek(0, 0); err != nil {
		return Stats{}, err
	}

	if _, err := readFullCache(c.file, whole); err != nil {
		return Stats{}, err
	}

	var stats Stats

	off := c.headerLen
	for off < int64(len(whole)) {
		isHole, size, err := PeekRecord(whole[off:])
		if err != nil || size <= 0 || off+int64(size) > int64(len(whole)) {
			break
		}

		if isHole {
			stats.DeadBytes += int64(size)
		} else {
			stats.LiveBytes += int64(size)
		}

		off += int64(size)
	}

	return stats, nil
}

// Compress rewrites the cache file, dropping every hole and keeping only
// each UID's most current, chain-flattened chunk. The rewrite is written
// to a temp file and atomically renamed into place so a crash mid
// rewrite leaves the previous cache file intact.
func (c *Cache) Compress(fsys mfs.FS, path string) error {
	var out bytes.Buffer

	hdrBuf := EncodeHeader(c.Header, c.Registry)
	out.Write(hdrBuf)

	uids := make([]uint32, 0, len(c.index))
	for uid := range c.index {
		uids = append(uids, uid)
	}

	for _, uid := range uids {
		flat, err := c.flattenUID(uid)
		if err != nil {
			return fmt.Errorf("cache: compress uid %d: %w", uid, err)
		}

		out.Write(EncodeChunk(flat))
	}

	if err := atomic.WriteFile(path, &out); err != nil {
		return fmt.Errorf("cache: atomic replace: %w", err)
	}

	reopened, err := Open(fsys, path, c.Header.IndexID)
	if err != nil {
		return fmt.Errorf("cache: reopen after compress: %w", err)
	}

	_ = c.file.Close()

	c.file = reopened.file
	c.headerLen = reopened.headerLen
	c.tail = reopened.tail
	c.index = reopened.index
	c.Registry = reopened.Registry

	return nil
}

// flattenUID merges a UID's whole chunk chain into one chunk with no
// NextOffset, as Compress needs so the rewritten file never carries
// forward dangling chain offsets (which would point at the old file).
func (c *Cache) flattenUID(uid uint32) (Chunk, error) {
	off, ok := c.index[uid]
	if !ok {
		return Chunk{}, ErrUIDNotCached
	}

	merged := make(map[uint32][]byte)

	for {
		chunk, err := c.readChunkAt(off)
		if err != nil {
			return Chunk{}, err
		}

		for _, e := range chunk.Entries {
			if _, exists := merged[e.FieldIdx]; !exists {
				merged[e.FieldIdx] = e.Data
			}
		}

		if chunk.NextOffset == 0 {
			break
		}

		off = int64(chunk.NextOffset)
	}

	entries := make([]Entry, 0, len(merged))
	for idx, data := range merged {
		entries = append(entries, Entry{FieldIdx: idx, Data: data})
	}

	return Chunk{UID: uid, Entries: entries}, nil
}

func readFullCache(f mfs.File, buf []byte) (int, error) {
	n, err := io.ReadFull(f, buf)
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		err = nil
	}

	return n, err
}
