package cache

import (
	"path/filepath"
	"testing"

	mfs "github.com/dcvt/mindex/fs"
)

func TestCompress_ReclaimsHolesAndPreservesFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index.cache")
	real := mfs.NewReal()

	c, err := Create(real, path, 1)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	a := c.Registry.Index("a", 0)
	b := c.Registry.Index("b", 0)

	for i := 0; i < 5; i++ {
		txn := c.Begin()
		txn.SetField(1, a, []byte("rev"))
		if _, err := txn.Commit(); err != nil {
			t.Fatalf("commit %d: %v", i, err)
		}
	}

	txn := c.Begin()
	txn.SetField(2, b, []byte("other"))
	if _, err := txn.Commit(); err != nil {
		t.Fatalf("commit uid 2: %v", err)
	}

	before, err := c.Scan()
	if err != nil {
		t.Fatalf("Scan before: %v", err)
	}

	if before.DeadBytes == 0 {
		t.Fatalf("expected dead bytes from 4 superseded chunks before compress")
	}

	if err := c.Compress(real, path); err != nil {
		t.Fatalf("Compress: %v", err)
	}

	after, err := c.Scan()
	if err != nil {
		t.Fatalf("Scan after: %v", err)
	}

	if after.DeadBytes != 0 {
		t.Fatalf("Scan after Compress: DeadBytes = %d, want 0", after.DeadBytes)
	}

	got, err := c.GetField(1, a)
	if err != nil || string(got) != "rev" {
		t.Fatalf("GetField(1,a) after compress = (%q, %v), want (rev, nil)", got, err)
	}

	got, err = c.GetField(2, b)
	if err != nil || string(got) != "other" {
		t.Fatalf("GetField(2,b) after compress = (%q, %v), want (other, nil)", got, err)
	}
}

func TestStats_ShouldCompress(t *testing.T) {
	cases := []struct {
		stats Stats
		want  bool
	}{
		{Stats{LiveBytes: 100, DeadBytes: 0}, false},
		{Stats{LiveBytes: 100, DeadBytes: 100}, true},
		{Stats{LiveBytes: 40, DeadBytes: 60}, true},
		{Stats{LiveBytes: 0, DeadBytes: 0}, false},
	}

	for _, tc := range cases {
		if got := tc.stats.ShouldCompress(); got != tc.want {
			t.Errorf("Stats%+v.ShouldCompress() = %v, want %v", tc.stats, got, tc.want)
		}
	}
}
