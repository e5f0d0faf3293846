package backend

import (
	"testing"

	"github.com/dcvt/mindex/mailindex"
)

func TestMemory_WriteReadUpdateExpunge(t *testing.T) {
	m := NewMemory()

	uid, err := m.WriteMessage([]byte("hello"), mailindex.FlagSeen)
	if err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}

	body, err := m.ReadByUID(uid)
	if err != nil || string(body) != "hello" {
		t.Fatalf("ReadByUID = (%q, %v), want (hello, nil)", body, err)
	}

	if err := m.UpdateFlags(uid, mailindex.FlagFlagged, mailindex.FlagSeen); err != nil {
		t.Fatalf("UpdateFlags: %v", err)
	}

	msgs, err := m.Enumerate()
	if err != nil || len(msgs) != 1 {
		t.Fatalf("Enumerate = (%v, %v), want 1 message", msgs, err)
	}
	if msgs[0].Flags != mailindex.FlagFlagged {
		t.Fatalf("flags after update = %d, want FlagFlagged", msgs[0].Flags)
	}

	if err := m.Expunge(uid); err != nil {
		t.Fatalf("Expunge: %v", err)
	}
	if _, err := m.ReadByUID(uid); err != ErrNotFound {
		t.Fatalf("ReadByUID after expunge = %v, want ErrNotFound", err)
	}
}

func TestEnumerator_SortsByUIDAndAdaptsToMailindexRecords(t *testing.T) {
	m := NewMemory()

	var uids []uint32
	for range 3 {
		uid, err := m.WriteMessage([]byte("x"), 0)
		if err != nil {
			t.Fatalf("WriteMessage: %v", err)
		}
		uids = append(uids, uid)
	}

	enumerate := Enumerator(m)
	recs, err := enumerate()
	if err != nil {
		t.Fatalf("enumerate: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("got %d records, want 3", len(recs))
	}

	for i := 1; i < len(recs); i++ {
		if recs[i-1].UID >= recs[i].UID {
			t.Fatalf("records not sorted ascending by uid: %v", recs)
		}
	}
}

func TestMaildir_FilenameReflectsFlags(t *testing.T) {
	m := NewMaildir()

	uid, err := m.WriteMessage([]byte("hi"), mailindex.FlagSeen|mailindex.FlagAnswered)
	if err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}

	name, err := m.Filename(uid)
	if err != nil {
		t.Fatalf("Filename: %v", err)
	}

	want := "uid:1:2,RS"
	if name != want {
		t.Fatalf("Filename = %q, want %q", name, want)
	}

	if err := m.UpdateFlags(uid, mailindex.FlagDeleted, mailindex.FlagAnswered); err != nil {
		t.Fatalf("UpdateFlags: %v", err)
	}

	name, err = m.Filename(uid)
	if err != nil {
		t.Fatalf("Filename after update: %v", err)
	}
	if want := "uid:1:2,ST"; name != want {
		t.Fatalf("Filename after update = %q, want %q", name, want)
	}
}

func TestDecodeInfo_RoundTripsEncodeInfo(t *testing.T) {
	flags := mailindex.FlagDraft | mailindex.FlagFlagged | mailindex.FlagDeleted
	info := encodeInfo(flags)

	if got := decodeInfo(info); got != flags {
		t.Fatalf("decodeInfo(encodeInfo(flags)) = %d, want %d", got, flags)
	}
}
