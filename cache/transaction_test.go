package cache

import (
	"path/filepath"
	"testing"

	mfs "github.com/dcvt/mindex/fs"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "index.cache")

	c, err := Create(mfs.NewReal(), path, 1)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	t.Cleanup(func() { c.Close() })

	return c
}

func TestTransaction_MergesWithExistingChunk(t *testing.T) {
	c := newTestCache(t)

	a := c.Registry.Index("a", 0)
	b := c.Registry.Index("b", 0)

	t1 := c.Begin()
	t1.SetField(1, a, []byte("a1"))
	if _, err := t1.Commit(); err != nil {
		t.Fatalf("commit 1: %v", err)
	}

	t2 := c.Begin()
	t2.SetField(1, b, []byte("b1"))
	if _, err := t2.Commit(); err != nil {
		t.Fatalf("commit 2: %v", err)
	}

	got, err := c.GetField(1, a)
	if err != nil || string(got) != "a1" {
		t.Fatalf("GetField(a) = (%q, %v), want (a1, nil)", got, err)
	}

	got, err = c.GetField(1, b)
	if err != nil || string(got) != "b1" {
		t.Fatalf("GetField(b) = (%q, %v), want (b1, nil)", got, err)
	}
}

func TestTransaction_LastWriteWinsWithinOneTransaction(t *testing.T) {
	c := newTestCache(t)
	a := c.Registry.Index("a", 0)

	txn := c.Begin()
	txn.SetField(1, a, []byte("first"))
	txn.SetField(1, a, []byte("second"))
	if _, err := txn.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	got, err := c.GetField(1, a)
	if err != nil || string(got) != "second" {
		t.Fatalf("GetField = (%q, %v), want (second, nil)", got, err)
	}
}

func TestTransaction_NewerCommitOverridesOlderField(t *testing.T) {
	c := newTestCache(t)
	a := c.Registry.Index("a", 0)

	t1 := c.Begin()
	t1.SetField(1, a, []byte("old"))
	if _, err := t1.Commit(); err != nil {
		t.Fatalf("commit 1: %v", err)
	}

	t2 := c.Begin()
	t2.SetField(1, a, []byte("new"))
	if _, err := t2.Commit(); err != nil {
		t.Fatalf("commit 2: %v", err)
	}

	got, err := c.GetField(1, a)
	if err != nil || string(got) != "new" {
		t.Fatalf("GetField = (%q, %v), want (new, nil)", got, err)
	}
}

func TestTransaction_ErrGenerationChanged(t *testing.T) {
	c := newTestCache(t)
	a := c.Registry.Index("a", 0)

	t1 := c.Begin()
	t2 := c.Begin()

	t1.SetField(1, a, []byte("from t1"))
	if _, err := t1.Commit(); err != nil {
		t.Fatalf("commit t1: %v", err)
	}

	t2.SetField(1, a, []byte("from t2"))
	if _, err := t2.Commit(); err != ErrGenerationChanged {
		t.Fatalf("commit t2 = %v, want ErrGenerationChanged", err)
	}

	got, err := c.GetField(1, a)
	if err != nil || string(got) != "from t1" {
		t.Fatalf("cache state after rejected commit = (%q, %v), want (from t1, nil)", got, err)
	}

	if c.Generation() != 1 {
		t.Fatalf("Generation() = %d, want 1 (only t1's commit counted)", c.Generation())
	}
}

func TestTransaction_OldChunkBecomesHole(t *testing.T) {
	c := newTestCache(t)
	a := c.Registry.Index("a", 0)

	t1 := c.Begin()
	t1.SetField(1, a, []byte("v1"))
	if _, err := t1.Commit(); err != nil {
		t.Fatalf("commit 1: %v", err)
	}

	t2 := c.Begin()
	t2.SetField(1, a, []byte("v2"))
	if _, err := t2.Commit(); err != nil {
		t.Fatalf("commit 2: %v", err)
	}

	stats, err := c.Scan()
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	if stats.DeadBytes == 0 {
		t.Fatalf("Scan reported no dead bytes after superseding a chunk")
	}
}
