package cache

import "testing"

func TestEncodeDecodeChunk_RoundTrip(t *testing.T) {
	c := Chunk{
		UID:        42,
		NextOffset: 0,
		Entries: []Entry{
			{FieldIdx: 0, Data: []byte("hello")},
			{FieldIdx: 1, Data: []byte{}},
			{FieldIdx: 2, Data: []byte("envelope-bytes-here")},
		},
	}

	buf := EncodeChunk(c)
	if len(buf) != c.EncodedSize() {
		t.Fatalf("EncodedSize() = %d, encoded buf len = %d", c.EncodedSize(), len(buf))
	}

	got, n, err := DecodeChunk(buf)
	if err != nil {
		t.Fatalf("DecodeChunk: %v", err)
	}

	if n != len(buf) {
		t.Fatalf("consumed %d bytes, want %d", n, len(buf))
	}

	if got.UID != c.UID || len(got.Entries) != len(c.Entries) {
		t.Fatalf("round trip mismatch: got %+v", got)
	}

	for i, e := range got.Entries {
		if e.FieldIdx != c.Entries[i].FieldIdx || string(e.Data) != string(c.Entries[i].Data) {
			t.Fatalf("entry %d mismatch: got %+v, want %+v", i, e, c.Entries[i])
		}
	}
}

func TestDecodeChunk_DetectsCorruption(t *testing.T) {
	c := Chunk{UID: 1, Entries: []Entry{{FieldIdx: 0, Data: []byte("x")}}}
	buf := EncodeChunk(c)
	buf[len(buf)-1] ^= 0xFF

	if _, _, err := DecodeChunk(buf); err != ErrChunkCorrupt {
		t.Fatalf("DecodeChunk = %v, want ErrChunkCorrupt", err)
	}
}

func TestPeekRecord_HoleAndChunk(t *testing.T) {
	hole := EncodeHole(32)
	isHole, size, err := PeekRecord(hole)
	if err != nil || !isHole || size != 32 {
		t.Fatalf("PeekRecord(hole) = (%v, %d, %v)", isHole, size, err)
	}

	chunk := EncodeChunk(Chunk{UID: 7})
	isHole, size, err = PeekRecord(chunk)
	if err != nil || isHole || size != len(chunk) {
		t.Fatalf("PeekRecord(chunk) = (%v, %d, %v)", isHole, size, err)
	}
}

func TestRegistry_IndexAndPromote(t *testing.T) {
	r := NewRegistry()

	i0 := r.Index("imap.envelope", 0)
	i1 := r.Index("body.snippet", 64)

	if i0 == i1 {
		t.Fatalf("distinct fields got same index")
	}

	if again := r.Index("imap.envelope", 0); again != i0 {
		t.Fatalf("re-Index changed index: got %d, want %d", again, i0)
	}

	if r.Decision(i0) != DecisionNo {
		t.Fatalf("fresh field decision = %v, want No", r.Decision(i0))
	}

	r.RecordAccess(i0)
	if r.Decision(i0) != DecisionTemp {
		t.Fatalf("after one access = %v, want Temp", r.Decision(i0))
	}

	r.RecordAccess(i0)
	if r.Decision(i0) != DecisionYes || !r.Decision(i0).ShouldCache() {
		t.Fatalf("after two accesses = %v, want Yes+ShouldCache", r.Decision(i0))
	}

	r.Force(i1)
	if r.Decision(i1) != DecisionForced {
		t.Fatalf("Force did not set Forced")
	}

	r.RecordAccess(i1)
	if r.Decision(i1) != DecisionForced {
		t.Fatalf("Forced regressed after RecordAccess: %v", r.Decision(i1))
	}
}
