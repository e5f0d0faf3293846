package translog

import (
	"fmt"
	"time"

	"github.com/dcvt/mindex/internal/filelock"

	mfs "github.com/dcvt/mindex/fs"
)

// Rotate closes the current log file, renames it to path+".2" (replacing
// any previous .2, which by then has been fully replayed by every
// reader), and creates a fresh log file at path with FileSeq
// incremented. Concurrent Rotate calls serialize on an exclusive lock at
// path+".rotate.lock"; sync.Ctx calls Rotate while holding the log's own
// lock (path+".lock"), which keeps Begin from opening the log mid-rename.
func Rotate(fsys mfs.FS, locker filelock.Locker, path string, cur *File, nowUnix uint32) (*File, error) {
	h, err := locker.Acquire(path+".rotate.lock", filelock.Exclusive, filelock.DefaultDotlockTimeout)
	if err != nil {
		return nil, fmt.Errorf("translog: rotate lock: %w", err)
	}
	defer func() { _ = h.Release() }()

	if err := cur.Close(); err != nil {
		return nil, fmt.Errorf("translog: close current: %w", err)
	}

	oldPath := path + ".2"

	_ = fsys.Remove(oldPath) // best-effort; absence is fine

	if err := fsys.Rename(path, oldPath); err != nil {
		return nil, fmt.Errorf("translog: rename to .2: %w", err)
	}

	next := FileHeader{
		IndexID:     cur.Header.IndexID,
		FileSeq:     cur.Header.FileSeq + 1,
		CreateStamp: nowUnix,
	}

	f, err := Create(fsys, path, next)
	if err != nil {
		return nil, fmt.Errorf("translog: create rotated file: %w", err)
	}

	return f, nil
}

// NowUnix returns the current time as a uint32 Unix timestamp, the form
// Rotate's nowUnix parameter takes.
func NowUnix() uint32 {
	return uint32(time.Now().Unix())
}
