package cache

import (
	"fmt"
	"io"
	"os"

	mfs "github.com/dcvt/mindex/fs"
)

// Cache is a log-structured per-UID field store: new or changed field
// values are appended as Chunk records, and a reopen scans the whole
// file once to rebuild an in-memory UID -> latest-chunk-offset index.
// Space freed by superseding a chunk is left as a Hole record rather
// than reclaimed in place; Compress (see compress.go) is what actually
// shrinks the file.
type Cache struct {
	fsys mfs.FS
	file mfs.File

	Header   Header
	Registry *Registry

	headerLen  int64
	index      map[uint32]int64 // uid -> offset of its most recent chunk
	tail       int64
	generation uint64 // bumped on every successful Transaction.Commit
}

// Generation returns the cache's current write generation, the value a
// Transaction captures at Begin and revalidates at Commit.
func (c *Cache) Generation() uint64 {
	return c.generation
}

// RegisterField adds name to the field registry if not already present
// and rewrites the header in place so the assigned index survives a
// reopen. Since the header grows in place and every chunk offset is
// relative to its current length, RegisterField only succeeds while the
// cache is still empty of chunks; register every field a session needs
// before its first SetField.
func (c *Cache) RegisterField(name string, fixedSize uint32) (int, error) {
	if idx, ok := c.Registry.Lookup(name); ok {
		return idx, nil
	}

	if c.tail != c.headerLen {
		return 0, fmt.Errorf("cache: cannot register field %q: chunks already written", name)
	}

	idx := c.Registry.Index(name, fixedSize)
	c.Header.FieldCnt = uint32(c.Registry.Len())
	buf := EncodeHeader(c.Header, c.Registry)

	if _, err := c.file.Seek(0, io.SeekStart); err != nil {
		return 0, fmt.Errorf("cache: seek header: %w", err)
	}
	if _, err := c.file.Write(buf); err != nil {
		return 0, fmt.Errorf("cache: write header: %w", err)
	}
	if err := c.file.Sync(); err != nil {
		return 0, fmt.Errorf("cache: sync header: %w", err)
	}

	c.headerLen = int64(len(buf))
	c.tail = c.headerLen

	return idx, nil
}

// Create creates a brand new cache file at path.
func Create(fsys mfs.FS, path string, indexID uint32) (*Cache, error) {
	f, err := fsys.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return nil, fmt.Errorf("cache: create %s: %w", path, err)
	}

	reg := NewRegistry()
	h := Header{Version: FormatVersion, IndexID: indexID}

	buf := EncodeHeader(h, reg)
	if _, err := f.Write(buf); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("cache: write header: %w", err)
	}

	if err := f.Sync(); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("cache: sync: %w", err)
	}

	return &Cache{
		fsys:      fsys,
		file:      f,
		Header:    h,
		Registry:  reg,
		headerLen: int64(len(buf)),
		index:     make(map[uint32]int64),
		tail:      int64(len(buf)),
	}, nil
}

// Open opens an existing cache file, validates its header against
// wantIndexID, and scans its body to rebuild the UID index.
//
// Open never fails outright on a torn trailing record (a crash mid
// chunk-write leaves a short, CRC-mismatched tail): scanning stops at
// the first bad record and the cache is usable with everything written
// before that point, matching the "hdr==nil means usable but empty"
// tolerance the main index applies at the file level.
func Open(fsys mfs.FS, path string, wantIndexID uint32) (*Cache, error) {
	f, err := fsys.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("cache: open %s: %w", path, err)
	}

	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("cache: stat: %w", err)
	}

	whole := make([]byte, fi.Size())
	if _, err := io.ReadFull(f, whole); err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		_ = f.Close()
		return nil, fmt.Errorf("cache: read: %w", err)
	}

	h, reg, err := DecodeHeader(whole)
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	if h.IndexID != wantIndexID {
		_ = f.Close()
		return nil, fmt.Errorf("cache: %s: index_id %d, want %d: %w",
			path, h.IndexID, wantIndexID, ErrIndexIDMismatch)
	}

	headerLen := int64(HeaderLen(reg))

	c := &Cache{
		fsys:      fsys,
		file:      f,
		Header:    h,
		Registry:  reg,
		headerLen: headerLen,
		index:     make(map[uint32]int64),
		tail:      headerLen,
	}

	c.scan(whole)

	return c, nil
}

// scan walks every record from the end of the header to EOF (or the
// first unreadable record) and records the latest chunk offset per UID.
func (c *Cache) scan(whole []byte) {
	off := c.headerLen

	for off < int64(len(whole)) {
		buf := whole[off:]

		isHole, size, err := PeekRecord(buf)
		if err != nil || size <= 0 || off+int64(size) > int64(len(whole)) {
			break
		}

		if !isHole {
			chunk, _, err := DecodeChunk(buf)
			if err != nil {
				break
			}

			c.index[chunk.UID] = off
		}

		off += int64(size)
	}

	c.tail = off
}

// Close closes the underlying file handle.
func (c *Cache) Close() error {
	return c.file.Close()
}

// readChunkAt reads and decodes the chunk at offset off.
func (c *Cache) readChunkAt(off int64) (Chunk, error) {
	if _, err := c.file.Seek(off, io.SeekStart); err != nil {
		return Chunk{}, fmt.Errorf("cache: seek: %w", err)
	}

	// A chunk's size is self-describing once we've read its fixed
	// header, so read that much first.
	head := make([]byte, chunkFixedSize)
	if _, err := io.ReadFull(c.file, head); err != nil {
		return Chunk{}, fmt.Errorf("cache: read chunk head: %w", err)
	}

	_, size, err := PeekRecord(head)
	if err != nil {
		return Chunk{}, err
	}

	full := make([]byte, size)
	copy(full, head)

	if _, err := io.ReadFull(c.file, full[chunkFixedSize:]); err != nil {
		return Chunk{}, fmt.Errorf("cache: read chunk body: %w", err)
	}

	chunk, _, err := DecodeChunk(full)

	return chunk, err
}

// GetField returns the cached value for fieldIdx on uid, walking the
// chunk chain (a UID's fields may be split across chunks written at
// different times) until the field is found or the chain ends.
func (c *Cache) GetField(uid uint32, fieldIdx int) ([]byte, error) {
	off, ok := c.index[uid]
	if !ok {
		return nil, ErrUIDNotCached
	}

	for {
		chunk, err := c.readChunkAt(off)
		if err != nil {
			return nil, err
		}

		for _, e := range chunk.Entries {
			if e.FieldIdx == uint32(fieldIdx) {
				return e.Data, nil
			}
		}

		if chunk.NextOffset == 0 {
			return nil, ErrFieldNotCached
		}

		off = int64(chunk.NextOffset)
	}
}
