package mailindex

import (
	"os"
	"path/filepath"
	"testing"

	mfs "github.com/dcvt/mindex/fs"
)

func TestCreateOpen_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dovecot.index")

	h := NewHeader(111, 222, 0, BaseHeaderSize)

	m, err := Create(mfs.NewReal(), path, h, BackendHeap)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := Open(mfs.NewReal(), path, BackendHeap)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = reopened.Close() }()

	if reopened.Header.UIDValidity != 111 {
		t.Fatalf("UIDValidity = %d, want 111", reopened.Header.UIDValidity)
	}
	if reopened.MessagesCount() != 0 {
		t.Fatalf("MessagesCount() = %d, want 0", reopened.MessagesCount())
	}
}

func TestMap_Grow(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dovecot.index")

	h := NewHeader(1, 1, 0, BaseHeaderSize)

	m, err := Create(mfs.NewReal(), path, h, BackendHeap)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer func() { _ = m.Close() }()

	if err := m.Grow(10); err != nil {
		t.Fatalf("Grow: %v", err)
	}

	if m.Records.Count() != 10 {
		t.Fatalf("Records.Count() = %d, want 10", m.Records.Count())
	}
}

func TestOpen_RejectsCorruptHeader(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dovecot.index")

	h := NewHeader(1, 1, 0, BaseHeaderSize)

	m, err := Create(mfs.NewReal(), path, h, BackendHeap)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	_ = m.Close()

	fsys := mfs.NewReal()
	f, err := fsys.OpenFile(path, os.O_WRONLY, 0o600)
	if err != nil {
		t.Fatalf("open for corruption: %v", err)
	}
	if _, err := f.Write([]byte{0xFF}); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = f.Close()

	if _, err := Open(fsys, path, BackendHeap); err == nil {
		t.Fatalf("expected Open to reject corrupted header")
	}
}
