package view

import (
	"path/filepath"
	"testing"

	"github.com/dcvt/mindex/mailindex"
	"github.com/dcvt/mindex/translog"

	mfs "github.com/dcvt/mindex/fs"
)

func newTestView(t *testing.T) (*View, *mailindex.Map, *translog.File) {
	t.Helper()

	fsys := mfs.NewReal()
	dir := t.TempDir()

	h := mailindex.NewHeader(1, 1, 0, mailindex.BaseHeaderSize)
	idx, err := mailindex.Create(fsys, filepath.Join(dir, "index"), h, mailindex.BackendMmap)
	if err != nil {
		t.Fatalf("mailindex.Create: %v", err)
	}
	t.Cleanup(func() { idx.Close() })

	log, err := translog.Create(fsys, filepath.Join(dir, "index.log"), translog.FileHeader{
		IndexID: idx.Header.IndexID, FileSeq: 1, CreateStamp: 1,
	})
	if err != nil {
		t.Fatalf("translog.Create: %v", err)
	}
	t.Cleanup(func() { log.Close() })

	w, err := translog.NewWriter(log)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}

	return Open(idx, w, 1, int64(translog.FileHeaderSize)), idx, log
}

func TestTransaction_AppendAssignsSeqAndCommitsAppendRecord(t *testing.T) {
	v, _, log := newTestView(t)

	tx := v.Begin(0)
	seq, err := tx.Append(0, mailindex.FlagSeen, nil)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if seq != 1 {
		t.Fatalf("Append seq = %d, want 1", seq)
	}

	if _, _, err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	reader := translog.NewReader(log, int64(translog.FileHeaderSize))
	rec, err := reader.Next()
	if err != nil {
		t.Fatalf("reader.Next: %v", err)
	}
	if rec.Type.Base() != translog.TypeAppend {
		t.Fatalf("record type = %v, want append", rec.Type)
	}

	p, err := translog.DecodeAppendPayload(rec.Payload)
	if err != nil {
		t.Fatalf("DecodeAppendPayload: %v", err)
	}
	if p.UID != 1 {
		t.Fatalf("appended uid = %d, want 1", p.UID)
	}
	if mailindex.MessageFlag(p.Flags) != mailindex.FlagSeen {
		t.Fatalf("appended flags = %d, want FlagSeen", p.Flags)
	}
}

func TestTransaction_ExternalFlagSetsExternalBit(t *testing.T) {
	v, _, log := newTestView(t)

	tx := v.Begin(External)
	if _, err := tx.Append(0, 0, nil); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if _, _, err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	reader := translog.NewReader(log, int64(translog.FileHeaderSize))
	rec, err := reader.Next()
	if err != nil {
		t.Fatalf("reader.Next: %v", err)
	}
	if !rec.Type.IsExternal() {
		t.Fatalf("record type %v is not external", rec.Type)
	}
}

func TestTransaction_DoubleCommitFails(t *testing.T) {
	v, _, _ := newTestView(t)

	tx := v.Begin(0)
	if _, _, err := tx.Commit(); err != nil {
		t.Fatalf("first Commit: %v", err)
	}
	if _, _, err := tx.Commit(); err == nil {
		t.Fatalf("second Commit succeeded, want error")
	}
}

func TestTransaction_ExpungeTwiceFails(t *testing.T) {
	v, idx, _ := newTestView(t)

	if err := idx.AppendRecord(mailindex.Record{UID: 1, Keywords: nil}); err != nil {
		t.Fatalf("AppendRecord: %v", err)
	}
	h := idx.GetHeader()
	h.MessagesCount = 1
	h.NextUID = 2
	if err := idx.SetHeader(h); err != nil {
		t.Fatalf("SetHeader: %v", err)
	}

	tx := v.Begin(0)
	if err := tx.Expunge(1); err != nil {
		t.Fatalf("Expunge: %v", err)
	}
	if err := tx.Expunge(1); err != ErrAlreadyExpunged {
		t.Fatalf("second Expunge = %v, want ErrAlreadyExpunged", err)
	}
}

func TestTransaction_UpdateFlagsOnPendingAppend(t *testing.T) {
	v, _, log := newTestView(t)

	tx := v.Begin(0)
	seq, err := tx.Append(0, 0, nil)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := tx.UpdateFlags(seq, ModifyAdd, mailindex.FlagFlagged); err != nil {
		t.Fatalf("UpdateFlags: %v", err)
	}
	if _, _, err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	reader := translog.NewReader(log, int64(translog.FileHeaderSize))

	appendRec, err := reader.Next()
	if err != nil {
		t.Fatalf("reader.Next (append): %v", err)
	}
	if appendRec.Type.Base() != translog.TypeAppend {
		t.Fatalf("first record type = %v, want append", appendRec.Type)
	}

	flagRec, err := reader.Next()
	if err != nil {
		t.Fatalf("reader.Next (flag): %v", err)
	}
	if flagRec.Type.Base() != translog.TypeFlagUpdate {
		t.Fatalf("second record type = %v, want flag_update", flagRec.Type)
	}

	fp, err := translog.DecodeFlagUpdatePayload(flagRec.Payload)
	if err != nil {
		t.Fatalf("DecodeFlagUpdatePayload: %v", err)
	}
	if fp.UID1 != 1 || fp.UID2 != 1 {
		t.Fatalf("flag update uid range = [%d,%d], want [1,1]", fp.UID1, fp.UID2)
	}
	if mailindex.MessageFlag(fp.AddFlags) != mailindex.FlagFlagged {
		t.Fatalf("flag update add = %d, want FlagFlagged", fp.AddFlags)
	}
}

func TestTransactionView_SeesOwnPendingAppend(t *testing.T) {
	v, _, _ := newTestView(t)

	tx := v.Begin(0)
	seq, err := tx.Append(0, mailindex.FlagDraft, nil)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}

	tv := NewTransactionView(tx)
	if tv.MessagesCount() != 1 {
		t.Fatalf("MessagesCount = %d, want 1", tv.MessagesCount())
	}

	rec, err := tv.Lookup(seq)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if rec.UID != 1 || rec.Flags != mailindex.FlagDraft {
		t.Fatalf("Lookup = %+v, want uid 1 with FlagDraft", rec)
	}
}

func TestView_SeqToUIDRejectsOutOfRange(t *testing.T) {
	v, _, _ := newTestView(t)

	tx := v.Begin(0)
	if err := tx.Expunge(1); err != ErrSeqOutOfRange {
		t.Fatalf("Expunge(1) on empty view = %v, want ErrSeqOutOfRange", err)
	}
}
