package mailindex

import "testing"

func buildRecords(t *testing.T, uids []uint32, maskSize uint32) Records {
	t.Helper()

	rs := RecordSize(maskSize, 0)
	buf := make([]byte, int(rs)*len(uids))

	for i, uid := range uids {
		rec := Record{UID: uid, Keywords: make([]byte, maskSize)}
		copy(buf[i*int(rs):], EncodeRecord(rec, maskSize))
	}

	return NewRecords(buf, rs, maskSize)
}

func TestRecords_LookupUID(t *testing.T) {
	recs := buildRecords(t, []uint32{1, 3, 7, 9}, 0)

	seq, ok := recs.LookupUID(7)
	if !ok || seq != 3 {
		t.Fatalf("LookupUID(7) = (%d, %v), want (3, true)", seq, ok)
	}

	if _, ok := recs.LookupUID(4); ok {
		t.Fatalf("LookupUID(4) should not be found")
	}
}

func TestRecords_LookupUIDRange(t *testing.T) {
	recs := buildRecords(t, []uint32{1, 3, 7, 9, 12}, 0)

	seq1, seq2, ok := recs.LookupUIDRange(4, 10)
	if !ok || seq1 != 3 || seq2 != 4 {
		t.Fatalf("LookupUIDRange(4,10) = (%d,%d,%v), want (3,4,true)", seq1, seq2, ok)
	}

	if _, _, ok := recs.LookupUIDRange(100, 200); ok {
		t.Fatalf("LookupUIDRange outside range should not be found")
	}
}

func TestRecords_LookupFirst(t *testing.T) {
	rs := RecordSize(0, 0)
	uids := []uint32{1, 2, 3}
	buf := make([]byte, int(rs)*len(uids))

	flags := []MessageFlag{0, FlagSeen, FlagSeen}
	for i, uid := range uids {
		rec := Record{UID: uid, Flags: flags[i]}
		copy(buf[i*int(rs):], EncodeRecord(rec, 0))
	}

	recs := NewRecords(buf, rs, 0)

	seq, ok := recs.LookupFirst(FlagSeen, FlagSeen)
	if !ok || seq != 2 {
		t.Fatalf("LookupFirst(Seen) = (%d,%v), want (2,true)", seq, ok)
	}
}

func TestRecords_At_OutOfRange(t *testing.T) {
	recs := buildRecords(t, []uint32{1, 2}, 0)

	if _, ok := recs.At(0); ok {
		t.Fatalf("At(0) should be out of range")
	}
	if _, ok := recs.At(3); ok {
		t.Fatalf("At(3) should be out of range")
	}
}
