package mailindex

import "fmt"

// Ext describes one registered per-record extension: a named, fixed-
// width byte range appended after the keyword bitmap in every record,
// used by higher layers (the cache file's offset pointer, in
// particular) to attach extra fixed-size state to a message without
// widening Record itself.
type Ext struct {
	ID         uint32
	Name       string
	HdrSize    uint32
	RecordSize uint32
	Offset     uint32 // byte offset within the per-record extension region
}

// ExtRegistry tracks the extensions introduced against one mailbox. It
// is rebuilt each session by replaying EXT_INTRO records (see package
// sync) rather than persisted as its own file section; only the combined
// region width (Header.ExtRegionSize) is durable.
type ExtRegistry struct {
	byName map[string]*Ext
	byID   map[uint32]*Ext
	next   uint32
	total  uint32
}

// NewExtRegistry returns an empty registry.
func NewExtRegistry() *ExtRegistry {
	return &ExtRegistry{byName: make(map[string]*Ext), byID: make(map[uint32]*Ext)}
}

// NextID returns the ID Register would assign to a brand new extension,
// for a caller that wants to announce one via an EXT_INTRO record before
// registering it locally.
func (r *ExtRegistry) NextID() uint32 {
	return r.next + 1
}

// Register declares name with the given header/record sizes under id,
// returning its existing Ext if name is already known (EXT_INTRO is
// idempotent: a second introduction just re-validates it) or assigning
// it a byte range at the current tail of the extension region.
func (r *ExtRegistry) Register(id uint32, name string, hdrSize, recordSize uint32) Ext {
	if e, ok := r.byName[name]; ok {
		return *e
	}

	if id > r.next {
		r.next = id
	}

	e := &Ext{ID: id, Name: name, HdrSize: hdrSize, RecordSize: recordSize, Offset: r.total}
	r.byName[name] = e
	r.byID[id] = e
	r.total += recordSize

	return *e
}

// Lookup returns the extension registered under name.
func (r *ExtRegistry) Lookup(name string) (Ext, bool) {
	e, ok := r.byName[name]
	if !ok {
		return Ext{}, false
	}
	return *e, true
}

// ByID returns the extension with the given ID, as carried by an
// EXT_REC_UPDATE record.
func (r *ExtRegistry) ByID(id uint32) (Ext, bool) {
	e, ok := r.byID[id]
	if !ok {
		return Ext{}, false
	}
	return *e, true
}

// All returns every registered extension, in registration order.
func (r *ExtRegistry) All() []Ext {
	out := make([]Ext, 0, len(r.byID))
	for id := uint32(1); id <= r.next; id++ {
		if e, ok := r.byID[id]; ok {
			out = append(out, *e)
		}
	}
	return out
}

// TotalSize returns the combined byte width of every registered
// extension's record slot, i.e. the current extension region size.
func (r *ExtRegistry) TotalSize() uint32 {
	return r.total
}

// ExtRegister declares (or re-validates) a per-record extension against
// idx, growing the index file in place if its current extension region
// is too narrow to hold it. The sync engine is responsible for
// announcing a freshly assigned ID to other sessions via an EXT_INTRO
// log record.
func ExtRegister(idx *Map, name string, hdrSize, recordSize uint32) (extID uint32, err error) {
	if idx.Exts == nil {
		idx.Exts = NewExtRegistry()
	}

	if ext, ok := idx.Exts.Lookup(name); ok {
		return ext.ID, nil
	}

	ext := idx.Exts.Register(idx.Exts.NextID(), name, hdrSize, recordSize)

	if idx.Exts.TotalSize() > idx.Header.ExtRegionSize {
		if err := idx.GrowExtRegion(idx.Exts.TotalSize()); err != nil {
			return 0, fmt.Errorf("mailindex: ext register %q: %w", name, err)
		}
	}

	return ext.ID, nil
}

// GetExtRecord returns a copy of ext's record slot bytes for the
// message at seq.
func (m *Map) GetExtRecord(seq int, ext Ext) ([]byte, error) {
	if seq < 1 || seq > m.Records.Count() {
		return nil, ErrSeqOutOfRange
	}

	off := m.extRecordOffset(seq, ext)
	buf := make([]byte, ext.RecordSize)
	copy(buf, m.data[off:off+int(ext.RecordSize)])

	return buf, nil
}

// SetExtRecord writes data into ext's record slot for the message at
// seq, zero-padding if data is shorter than ext.RecordSize.
func (m *Map) SetExtRecord(seq int, ext Ext, data []byte) error {
	if seq < 1 || seq > m.Records.Count() {
		return ErrSeqOutOfRange
	}

	off := m.extRecordOffset(seq, ext)
	n := copy(m.data[off:off+int(ext.RecordSize)], data)
	for i := off + n; i < off+int(ext.RecordSize); i++ {
		m.data[i] = 0
	}

	return nil
}

func (m *Map) extRecordOffset(seq int, ext Ext) int {
	return int(m.Header.HeaderSize) + (seq-1)*int(m.Header.RecordSize) +
		baseRecordSize + int(m.Header.KeywordsMaskSize) + int(ext.Offset)
}
