package mailindex

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	mfs "github.com/dcvt/mindex/fs"
)

// ErrCorrupt is returned when the index file fails a structural or CRC
// check; the caller should treat the index as unusable and trigger the
// sync engine's fsck path.
var ErrCorrupt = errors.New("mailindex: corrupt index file")

// ErrIncompatible is returned when an existing index file's fixed layout
// (record size, keyword mask size) doesn't match what the caller expects
// and can't simply be grown in place.
var ErrIncompatible = errors.New("mailindex: incompatible index layout")

// Backend selects how a Map's bytes are obtained.
type Backend int

const (
	// BackendMmap maps the index file with MAP_SHARED, the default and
	// fastest path.
	BackendMmap Backend = iota
	// BackendHeap reads the whole file into a heap buffer instead of
	// mmapping it; used on filesystems or configurations where mmap is
	// unreliable, e.g. on NFS; see internal/nfspolicy.
	BackendHeap
)

// Map is a view over one main index file: its Header plus the record
// array that follows it. Its write methods (SetHeader, AppendRecord,
// PutRecord, ExpungeRecord and the Grow methods) change the file's bytes
// in place; the sync engine calls them while replaying transaction-log
// records.
type Map struct {
	backend Backend
	fsys    mfs.FS
	path    string
	file    mfs.File
	data    []byte // mmap'd or heap-resident bytes, full file contents
	mapped  bool   // true if data is an mmap region that must be Munmap'd

	Header  Header
	Records Records

	// Exts is the in-memory registry of per-record extensions introduced
	// against this mailbox. It starts empty on Open/Create; the sync
	// engine populates it by replaying EXT_INTRO records. Nil until the
	// first extension is registered or replayed.
	Exts *ExtRegistry
}

// Open reads path (an existing index file) and validates its header.
// The caller chooses the backend; BackendMmap is appropriate unless
// nfspolicy has determined the filesystem is unsafe to mmap.
func Open(fsys mfs.FS, path string, backend Backend) (*Map, error) {
	f, err := fsys.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("mailindex: open %s: %w", path, err)
	}

	m, err := load(fsys, f, backend)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	m.path = path

	return m, nil
}

// Create creates a brand new index file at path with the given header,
// writes it out, and opens it per backend.
func Create(fsys mfs.FS, path string, h Header, backend Backend) (*Map, error) {
	f, err := fsys.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return nil, fmt.Errorf("mailindex: create %s: %w", path, err)
	}

	buf := EncodeHeader(&h)
	if _, err := f.Write(buf); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("mailindex: write header: %w", err)
	}

	if err := f.Sync(); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("mailindex: sync: %w", err)
	}

	if _, err := f.Seek(0, 0); err != nil {
		_ = f.Close()
		return nil, err
	}

	m, err := load(fsys, f, backend)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	m.path = path

	return m, nil
}

func load(fsys mfs.FS, f mfs.File, backend Backend) (*Map, error) {
	fi, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("mailindex: stat: %w", err)
	}

	size := fi.Size()
	if size < BaseHeaderSize {
		return nil, fmt.Errorf("mailindex: file too small (%d bytes): %w", size, ErrCorrupt)
	}

	var (
		data   []byte
		mapped bool
	)

	switch backend {
	case BackendMmap:
		data, err = unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
		if err != nil {
			return nil, fmt.Errorf("mailindex: mmap: %w", err)
		}
		mapped = true
	case BackendHeap:
		data = make([]byte, size)
		if _, err := f.Seek(0, 0); err != nil {
			return nil, err
		}
		if _, err := readFull(f, data); err != nil {
			return nil, fmt.Errorf("mailindex: read: %w", err)
		}
	default:
		return nil, fmt.Errorf("mailindex: unknown backend %d", backend)
	}

	hdrSize := int(DecodeHeader(data[:BaseHeaderSize]).HeaderSize)
	if hdrSize < BaseHeaderSize || hdrSize > len(data) {
		unmap(data, mapped)
		return nil, fmt.Errorf("mailindex: invalid header_size %d: %w", hdrSize, ErrCorrupt)
	}

	hdrBuf := data[:hdrSize]
	if string(hdrBuf[offMagic:offMagic+4]) != Magic {
		unmap(data, mapped)
		return nil, fmt.Errorf("mailindex: bad magic: %w", ErrCorrupt)
	}

	if !ValidateHeaderCRC(hdrBuf) {
		unmap(data, mapped)
		return nil, fmt.Errorf("mailindex: header CRC mismatch: %w", ErrCorrupt)
	}

	h := DecodeHeader(hdrBuf)
	if h.RecordSize == 0 || h.RecordSize != RecordSize(h.KeywordsMaskSize, h.ExtRegionSize) {
		unmap(data, mapped)
		return nil, fmt.Errorf("mailindex: record_size %d inconsistent with keywords_mask_size %d + ext_region_size %d: %w",
			h.RecordSize, h.KeywordsMaskSize, h.ExtRegionSize, ErrIncompatible)
	}

	recordRegion := data[hdrSize:]
	// Records must tile the remainder of the file exactly.
	if len(recordRegion)%int(h.RecordSize) != 0 {
		recordRegion = recordRegion[:len(recordRegion)-len(recordRegion)%int(h.RecordSize)]
	}

	return &Map{
		backend: backend,
		fsys:    fsys,
		file:    f,
		data:    data,
		mapped:  mapped,
		Header:  h,
		Records: NewRecords(recordRegion, h.RecordSize, h.KeywordsMaskSize),
	}, nil
}

// Grow extends the file (and, for BackendMmap, remaps it) so it can hold
// at least count records.
func (m *Map) Grow(count int) error {
	want := int(m.Header.HeaderSize) + count*int(m.Header.RecordSize)
	if len(m.data) >= want {
		return nil
	}

	if err := m.file.Truncate(int64(want)); err != nil {
		return fmt.Errorf("mailindex: truncate: %w", err)
	}

	if m.mapped {
		if err := unix.Munmap(m.data); err != nil {
			return fmt.Errorf("mailindex: munmap: %w", err)
		}

		data, err := unix.Mmap(int(m.file.Fd()), 0, want, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
		if err != nil {
			return fmt.Errorf("mailindex: remap: %w", err)
		}

		m.data = data
	} else {
		grown := make([]byte, want)
		copy(grown, m.data)
		m.data = grown
	}

	hdrSize := int(m.Header.HeaderSize)
	m.Records = NewRecords(m.data[hdrSize:], m.Header.RecordSize, m.Header.KeywordsMaskSize)

	return nil
}

// Close releases the Map's resources (unmapping if applicable) and
// closes the underlying file.
func (m *Map) Close() error {
	unmap(m.data, m.mapped)
	return m.file.Close()
}

func unmap(data []byte, mapped bool) {
	if mapped && data != nil {
		_ = unix.Munmap(data)
	}
}

// MessagesCount returns the number of message records currently in the
// index.
func (m *Map) MessagesCount() int {
	return m.Records.Count()
}

// GetHeader returns a copy of the current header.
func (m *Map) GetHeader() Header {
	return m.Header
}

// Lookup returns the record at the given 1-based sequence number.
func (m *Map) Lookup(seq int) (Record, error) {
	rec, ok := m.Records.At(seq)
	if !ok {
		return Record{}, ErrSeqOutOfRange
	}

	return rec, nil
}

// LookupUID returns the sequence number of the record with the given
// UID.
func (m *Map) LookupUID(uid uint32) (int, error) {
	seq, ok := m.Records.LookupUID(uid)
	if !ok {
		return 0, ErrUIDNotFound
	}

	return seq, nil
}

// LookupUIDRange returns the inclusive seq range covering [uid1, uid2].
func (m *Map) LookupUIDRange(uid1, uid2 uint32) (seq1, seq2 int, err error) {
	s1, s2, ok := m.Records.LookupUIDRange(uid1, uid2)
	if !ok {
		return 0, 0, ErrUIDNotFound
	}

	return s1, s2, nil
}

// LookupFirst returns the seq of the first record matching flags under
// mask.
func (m *Map) LookupFirst(flags, mask MessageFlag) (int, error) {
	seq, ok := m.Records.LookupFirst(flags, mask)
	if !ok {
		return 0, ErrUIDNotFound
	}

	return seq, nil
}

// SetHeader replaces the map's header in place (counters, UID state, log
// position bookkeeping) and re-stamps its CRC. The header's HeaderSize,
// RecordSize and KeywordsMaskSize must match what's already on disk;
// changing the record layout requires a fresh Map, not SetHeader.
func (m *Map) SetHeader(h Header) error {
	if h.HeaderSize != m.Header.HeaderSize || h.RecordSize != m.Header.RecordSize {
		return fmt.Errorf("mailindex: SetHeader: layout change not supported: %w", ErrIncompatible)
	}

	buf := EncodeHeader(&h)
	copy(m.data[:len(buf)], buf)
	m.Header = h

	return nil
}

// AppendRecord appends rec as the new highest-UID record, growing the
// file if needed. The caller (the sync engine, replaying a log in UID
// order) is responsible for ensuring rec.UID is greater than every
// existing record's UID.
func (m *Map) AppendRecord(rec Record) error {
	n := m.Records.Count()
	if err := m.Grow(n + 1); err != nil {
		return err
	}

	hdrSize := int(m.Header.HeaderSize)
	stride := int(m.Header.RecordSize)
	off := hdrSize + n*stride
	clear(m.data[off : off+stride])
	copy(m.data[off:], EncodeRecord(rec, m.Header.KeywordsMaskSize))

	m.Records = NewRecords(m.data[hdrSize:off+stride], m.Header.RecordSize, m.Header.KeywordsMaskSize)

	return nil
}

// PutRecord overwrites the record at the given 1-based sequence number
// in place, e.g. to apply a flag or keyword update. rec.UID must match
// the existing record's UID; UID changes aren't representable this way.
func (m *Map) PutRecord(seq int, rec Record) error {
	existing, ok := m.Records.At(seq)
	if !ok {
		return ErrSeqOutOfRange
	}

	if existing.UID != rec.UID {
		return fmt.Errorf("mailindex: PutRecord: uid mismatch (have %d, want %d)", rec.UID, existing.UID)
	}

	off := int(m.Header.HeaderSize) + (seq-1)*int(m.Header.RecordSize)
	// Only the UID/Flags/keywords prefix is overwritten here; bytes past
	// it belong to whatever per-record extensions are registered (see
	// ExtRegister/SetExtRecord) and must survive a flag or keyword write.
	copy(m.data[off:], EncodeRecord(rec, m.Header.KeywordsMaskSize))

	return nil
}

// ExpungeRecord removes the record at seq by shifting every later record
// down by one stride and shrinking the logical record count. It does not
// shrink the underlying file; freed space at the tail is reused by a
// later AppendRecord or reclaimed by a fresh Create.
func (m *Map) ExpungeRecord(seq int) error {
	n := m.Records.Count()
	if seq < 1 || seq > n {
		return ErrSeqOutOfRange
	}

	hdrSize := int(m.Header.HeaderSize)
	stride := int(m.Header.RecordSize)

	dst := hdrSize + (seq-1)*stride
	src := hdrSize + seq*stride
	tail := hdrSize + n*stride

	copy(m.data[dst:tail-stride], m.data[src:tail])

	m.Records = NewRecords(m.data[hdrSize:tail-stride], m.Header.RecordSize, m.Header.KeywordsMaskSize)

	return nil
}

// Sync flushes the map's in-memory bytes to stable storage; for a heap
// backend this writes the whole buffer back, for mmap it's an msync-less
// no-op relying on the kernel's own writeback plus an explicit file sync.
func (m *Map) Sync() error {
	if !m.mapped {
		if _, err := m.file.Seek(0, 0); err != nil {
			return err
		}
		if _, err := m.file.Write(m.data); err != nil {
			return err
		}
	}

	return m.file.Sync()
}

func readFull(f mfs.File, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		k, err := f.Read(buf[n:])
		n += k
		if err != nil {
			return n, err
		}
		if k == 0 {
			break
		}
	}

	return n, nil
}
