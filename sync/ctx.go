package sync

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/dcvt/mindex/cache"
	"github.com/dcvt/mindex/internal/filelock"
	"github.com/dcvt/mindex/mailindex"
	"github.com/dcvt/mindex/translog"

	mfs "github.com/dcvt/mindex/fs"
)

// RotateThreshold is the log tail offset, in bytes from the start of the
// log file (its header included), past which Commit rotates to a fresh
// log file.
const RotateThreshold = 1 << 20 // 1 MiB

// Paths names the on-disk files one mailbox's sync engine operates on.
type Paths struct {
	IndexPath string
	LogPath   string
	CachePath string // empty disables the cache entirely
}

// Ctx is one Begin..Commit/Rollback cycle against a mailbox's index,
// log and (optionally) cache.
type Ctx struct {
	fsys   mfs.FS
	locker filelock.Locker
	paths  Paths
	flags  Flags

	lock filelock.Handle

	Index *mailindex.Map
	Log   *translog.File
	Cache *cache.Cache // nil if paths.CachePath == ""

	pending    []SyncRec
	cursor     int
	replayedTo int64 // log offset after applying every pending record

	// Warnings collects non-fatal problems from Commit (cache compress or
	// log rotation failures); Commit itself still returns nil as long as
	// the index and log stayed consistent.
	Warnings []error
}

// Begin locks the log exclusively, opens (or creates) the index, log
// and cache, replays every log record since the index's recorded tail
// offset directly onto the index, and returns a Ctx ready for Next and
// Commit/Rollback. If the index can't be opened at all, Begin runs Fsck
// once and retries; a second failure is returned as fatal.
func Begin(fsys mfs.FS, locker filelock.Locker, paths Paths, flags Flags) (*Ctx, error) {
	lock, err := locker.Acquire(paths.LogPath+".lock", filelock.Exclusive, filelock.DefaultDotlockTimeout)
	if err != nil {
		return nil, fmt.Errorf("sync: acquire log lock: %w", err)
	}

	ctx, err := beginLocked(fsys, locker, paths, flags)
	if err != nil {
		_ = lock.Release()
		return nil, err
	}

	ctx.lock = lock

	return ctx, nil
}

func beginLocked(fsys mfs.FS, locker filelock.Locker, paths Paths, flags Flags) (*Ctx, error) {
	idx, log, cch, err := openAll(fsys, paths)
	if err != nil {
		if !errors.Is(err, mailindex.ErrCorrupt) && !errors.Is(err, translog.ErrRecordCorrupt) {
			return nil, fmt.Errorf("sync: begin: %w", err)
		}

		if ferr := fsck(fsys, paths); ferr != nil {
			return nil, fmt.Errorf("sync: begin: index unusable and fsck failed: %w", ferr)
		}

		idx, log, cch, err = openAll(fsys, paths)
		if err != nil {
			return nil, fmt.Errorf("sync: begin: index still unusable after fsck: %w", err)
		}
	}

	ctx := &Ctx{
		fsys:   fsys,
		locker: locker,
		paths:  paths,
		flags:  flags,
		Index:  idx,
		Log:    log,
		Cache:  cch,
	}

	if err := ctx.replay(); err != nil {
		_ = idx.Close()
		_ = log.Close()
		if cch != nil {
			_ = cch.Close()
		}

		return nil, fmt.Errorf("sync: begin: replay: %w", err)
	}

	return ctx, nil
}

func openAll(fsys mfs.FS, paths Paths) (*mailindex.Map, *translog.File, *cache.Cache, error) {
	idx, err := openOrCreateIndex(fsys, paths.IndexPath)
	if err != nil {
		return nil, nil, nil, err
	}

	log, err := openOrCreateLog(fsys, paths.LogPath, idx.Header.IndexID)
	if err != nil {
		_ = idx.Close()
		return nil, nil, nil, err
	}

	var cch *cache.Cache
	if paths.CachePath != "" {
		cch, err = openOrCreateCache(fsys, paths.CachePath, idx.Header.IndexID)
		if err != nil {
			_ = idx.Close()
			_ = log.Close()
			return nil, nil, nil, err
		}
	}

	return idx, log, cch, nil
}

func openOrCreateIndex(fsys mfs.FS, path string) (*mailindex.Map, error) {
	m, err := mailindex.Open(fsys, path, mailindex.BackendMmap)
	if err == nil {
		return m, nil
	}

	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	now := uint32(time.Now().Unix())
	h := mailindex.NewHeader(now, now, 0, mailindex.BaseHeaderSize)

	return mailindex.Create(fsys, path, h, mailindex.BackendMmap)
}

func openOrCreateLog(fsys mfs.FS, path string, indexID uint32) (*translog.File, error) {
	f, err := translog.Open(fsys, path, indexID)
	if err == nil {
		return f, nil
	}

	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	return translog.Create(fsys, path, translog.FileHeader{
		IndexID:     indexID,
		FileSeq:     1,
		CreateStamp: uint32(time.Now().Unix()),
	})
}

func openOrCreateCache(fsys mfs.FS, path string, indexID uint32) (*cache.Cache, error) {
	c, err := cache.Open(fsys, path, indexID)
	if err == nil {
		return c, nil
	}

	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	return cache.Create(fsys, path, indexID)
}

// replay reads every record from the index's recorded tail offset
// forward and applies each directly to the index map, building the
// synthetic ascending-UID transaction Next walks.
func (c *Ctx) replay() error {
	start := int64(c.Index.Header.LogFileTailOffset)
	if start < translog.FileHeaderSize {
		start = translog.FileHeaderSize
	}

	reader := translog.NewReader(c.Log, start)

	for {
		rec, err := reader.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}

			return err
		}

		sr, err := applyRecord(c.Index, rec, c.flags)
		if err != nil {
			return fmt.Errorf("sync: apply %s record: %w", rec.Type, err)
		}

		// A record is always applied to the index regardless of flags;
		// FlagAvoidFlagUpdates keeps every flag-update record out of Next
		// (and, in applyRecord, stops Dirty from being synthesized).
		if rec.Type.Base() == translog.TypeFlagUpdate && c.flags.has(FlagAvoidFlagUpdates) {
			continue
		}

		sr.Seq = len(c.pending) + 1
		c.pending = append(c.pending, sr)
	}

	c.replayedTo = reader.Offset()

	// UID-scoped records are delivered in ascending UID order; UID-0
	// records keep their log positions, and the sort is stable so records
	// for the same UID stay in log order.
	var slots []int
	var scoped []SyncRec
	for i, sr := range c.pending {
		if sr.UID != 0 {
			slots = append(slots, i)
			scoped = append(scoped, sr)
		}
	}
	sort.SliceStable(scoped, func(a, b int) bool { return scoped[a].UID < scoped[b].UID })
	for k, i := range slots {
		c.pending[i] = scoped[k]
	}
	for i := range c.pending {
		c.pending[i].Seq = i + 1
	}

	return nil
}

// Commit persists the new log tail offset, compresses the cache if it
// has crossed its dead-space threshold, rotates the log if its tail has
// grown past RotateThreshold, and releases the lock. Cache compression
// and log rotation failures are collected in Warnings rather than
// failing the commit, since the index and log are already consistent
// once the tail offset is written.
func (c *Ctx) Commit() error {
	h := c.Index.GetHeader()
	h.LogFileTailOffset = uint32(c.replayedTo)

	if err := c.Index.SetHeader(h); err != nil {
		return fmt.Errorf("sync: commit: update header: %w", err)
	}

	if err := c.Index.Sync(); err != nil {
		return fmt.Errorf("sync: commit: sync index: %w", err)
	}

	if c.Cache != nil {
		if stats, err := c.Cache.Scan(); err != nil {
			c.Warnings = append(c.Warnings, fmt.Errorf("sync: cache scan: %w", err))
		} else if stats.ShouldCompress() {
			if err := c.Cache.Compress(c.fsys, c.paths.CachePath); err != nil {
				c.Warnings = append(c.Warnings, fmt.Errorf("sync: cache compress: %w", err))
			}
		}
	}

	if c.replayedTo > RotateThreshold {
		rotated, err := translog.Rotate(c.fsys, c.locker, c.paths.LogPath, c.Log, uint32(time.Now().Unix()))
		if err != nil {
			c.Warnings = append(c.Warnings, fmt.Errorf("sync: rotate log: %w", err))
		} else {
			c.Log = rotated

			if err := c.reintroduceExts(); err != nil {
				c.Warnings = append(c.Warnings, fmt.Errorf("sync: reintroduce exts after rotate: %w", err))
			}

			h := c.Index.GetHeader()
			h.LogFileSeq = rotated.Header.FileSeq
			h.LogFileTailOffset = uint32(c.replayedTo)
			if err := c.Index.SetHeader(h); err != nil {
				c.Warnings = append(c.Warnings, fmt.Errorf("sync: update header after rotate: %w", err))
			} else if err := c.Index.Sync(); err != nil {
				c.Warnings = append(c.Warnings, fmt.Errorf("sync: sync index after rotate: %w", err))
			}
		}
	}

	return c.finish()
}

// Rollback discards every record applied during replay without
// recording a new tail offset, so the same log records are replayed
// again the next time Begin runs. It does not attempt to undo bytes
// already written into the index's mmap region; isolation from
// concurrent readers relies on the exclusive log lock held for the
// whole Ctx lifetime, the same guarantee Commit relies on.
func (c *Ctx) Rollback() error {
	return c.finish()
}

// reintroduceExts re-announces every currently known per-record
// extension into c.Log (expected to be a freshly rotated, empty file) by
// appending fresh EXT_INTRO records, since Rotate's renamed-away old log
// is never read by a later replay and would otherwise take the
// extension registry's only record of those extensions' names and sizes
// with it. It also sets c.replayedTo to the rotated file's resulting
// tail, since nothing in the new file has been "replayed" yet.
func (c *Ctx) reintroduceExts() error {
	w, err := translog.NewWriter(c.Log)
	if err != nil {
		return err
	}

	if c.Index.Exts != nil {
		for _, ext := range c.Index.Exts.All() {
			payload := translog.EncodeExtIntroPayload(translog.ExtIntroPayload{
				ExtID: ext.ID, Name: ext.Name, HdrSize: ext.HdrSize, RecordSize: ext.RecordSize,
			})
			if _, err := w.Append(translog.TypeExtIntro, payload); err != nil {
				return fmt.Errorf("reintroduce ext %q: %w", ext.Name, err)
			}
		}
	}

	c.replayedTo = w.Tail()

	return nil
}

func (c *Ctx) finish() error {
	var errs []error

	if err := c.Index.Close(); err != nil {
		errs = append(errs, err)
	}

	if err := c.Log.Close(); err != nil {
		errs = append(errs, err)
	}

	if c.Cache != nil {
		if err := c.Cache.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if err := c.lock.Release(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}
