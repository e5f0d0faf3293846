package mailindex

import (
	"bytes"
	"fmt"

	"github.com/natefinch/atomic"
)

// GrowKeywordsMask widens the keyword bitmap to at least newMaskSize
// bytes, rewriting the index file in place (atomic replace, then
// reopen) so every existing record gains the extra bits, zeroed, at the
// same record offset the keyword bitmap has always occupied. Existing
// extension data, if any, is preserved verbatim past the wider bitmap.
func (m *Map) GrowKeywordsMask(newMaskSize uint32) error {
	if newMaskSize <= m.Header.KeywordsMaskSize {
		return nil
	}

	return m.regrowRecordLayout(newMaskSize, m.Header.ExtRegionSize)
}

// GrowExtRegion widens the per-record extension region to at least
// newExtRegionSize bytes, the same way GrowKeywordsMask widens the
// keyword bitmap.
func (m *Map) GrowExtRegion(newExtRegionSize uint32) error {
	if newExtRegionSize <= m.Header.ExtRegionSize {
		return nil
	}

	return m.regrowRecordLayout(m.Header.KeywordsMaskSize, newExtRegionSize)
}

// regrowRecordLayout rebuilds the index file with a wider record stride,
// copying every record's existing fields (UID, Flags, keyword bitmap,
// extension bytes) into their new, wider slots and zero-filling the
// newly added space. The rewrite goes to a temp file that's atomically
// renamed into place, mirroring cache.Cache.Compress, so a crash mid
// rewrite leaves the original index file intact; the Map is then
// reopened from the replaced file and its fields swapped in place.
func (m *Map) regrowRecordLayout(keywordsMaskSize, extRegionSize uint32) error {
	if m.path == "" {
		return fmt.Errorf("mailindex: regrow: map has no backing path")
	}

	newRecordSize := RecordSize(keywordsMaskSize, extRegionSize)

	h := m.Header
	h.KeywordsMaskSize = keywordsMaskSize
	h.ExtRegionSize = extRegionSize
	h.RecordSize = newRecordSize

	var out bytes.Buffer
	out.Write(EncodeHeader(&h))

	oldStride := int(m.Header.RecordSize)
	oldMaskSize := m.Header.KeywordsMaskSize
	oldExtSize := m.Header.ExtRegionSize
	hdrSize := int(m.Header.HeaderSize)

	n := m.Records.Count()
	for seq := 1; seq <= n; seq++ {
		off := hdrSize + (seq-1)*oldStride
		old := m.data[off : off+oldStride]

		rec := DecodeRecord(old, oldMaskSize)

		buf := make([]byte, newRecordSize)
		copy(buf, EncodeRecord(rec, keywordsMaskSize))

		oldExt := old[baseRecordSize+int(oldMaskSize) : baseRecordSize+int(oldMaskSize)+int(oldExtSize)]
		copy(buf[baseRecordSize+int(keywordsMaskSize):], oldExt)

		out.Write(buf)
	}

	if err := atomic.WriteFile(m.path, &out); err != nil {
		return fmt.Errorf("mailindex: regrow: atomic replace: %w", err)
	}

	reopened, err := Open(m.fsys, m.path, m.backend)
	if err != nil {
		return fmt.Errorf("mailindex: regrow: reopen: %w", err)
	}

	unmap(m.data, m.mapped)
	_ = m.file.Close()

	m.file = reopened.file
	m.data = reopened.data
	m.mapped = reopened.mapped
	m.Header = reopened.Header
	m.Records = reopened.Records

	return nil
}
