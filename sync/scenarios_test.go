package sync

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dcvt/mindex/cache"
	"github.com/dcvt/mindex/mailindex"
	"github.com/dcvt/mindex/translog"
	"github.com/dcvt/mindex/view"

	"github.com/dcvt/mindex/internal/filelock"

	mfs "github.com/dcvt/mindex/fs"
)

// TestScenario_AppendAndRead exercises append-and-read: a freshly
// bootstrapped mailbox, three appended messages with no flags, and the
// header/record state a reader expects afterward.
func TestScenario_AppendAndRead(t *testing.T) {
	fsys, locker, paths := testPaths(t)

	ctx, err := Begin(fsys, locker, paths, 0)
	require.NoError(t, err)

	v, err := ctx.View()
	require.NoError(t, err)

	tx := v.Begin(0)
	for i := 0; i < 3; i++ {
		_, err := tx.Append(0, 0, nil)
		require.NoError(t, err)
	}
	_, _, err = tx.Commit()
	require.NoError(t, err)
	require.NoError(t, ctx.Commit())

	ctx2, err := Begin(fsys, locker, paths, 0)
	require.NoError(t, err)
	defer ctx2.Commit()

	h := ctx2.Index.GetHeader()
	require.Equal(t, uint32(3), h.MessagesCount)
	require.Equal(t, uint32(4), h.NextUID)

	for seq, wantUID := range []uint32{1, 2, 3} {
		rec, err := ctx2.Index.Lookup(seq + 1)
		require.NoError(t, err)
		require.Equal(t, wantUID, rec.UID)
	}
}

// TestScenario_FlagReplay exercises flag replay: from a three-message
// mailbox, an external transaction adds Seen to UID 2, and a second
// process opening a view after commit sees both the per-record flag and
// the header's seen_messages_count reflect it.
func TestScenario_FlagReplay(t *testing.T) {
	fsys, locker, paths := testPaths(t)

	bootstrap3(t, fsys, locker, paths)

	ctx, err := Begin(fsys, locker, paths, 0)
	require.NoError(t, err)

	v, err := ctx.View()
	require.NoError(t, err)

	tx := v.Begin(view.External)
	require.NoError(t, tx.UpdateFlags(2, view.ModifyAdd, mailindex.FlagSeen))
	_, _, err = tx.Commit()
	require.NoError(t, err)
	require.NoError(t, ctx.Commit())

	ctx2, err := Begin(fsys, locker, paths, 0)
	require.NoError(t, err)
	defer ctx2.Commit()

	rec, err := ctx2.Index.Lookup(2)
	require.NoError(t, err)
	require.NotZero(t, rec.Flags&mailindex.FlagSeen, "seq 2 flags = %#x, want Seen set", rec.Flags)

	h := ctx2.Index.GetHeader()
	require.Equal(t, uint32(1), h.SeenMessagesCount)

	sr, ok := ctx2.Next()
	require.True(t, ok, "want the external flag update delivered via Next")
	require.Equal(t, translog.TypeFlagUpdate, sr.Type.Base())
	require.True(t, sr.Type.IsExternal())
}

// TestScenario_ExpungeMidRange exercises expunging the middle of a
// three-message mailbox.
func TestScenario_ExpungeMidRange(t *testing.T) {
	fsys, locker, paths := testPaths(t)

	bootstrap3(t, fsys, locker, paths)

	ctx, err := Begin(fsys, locker, paths, 0)
	require.NoError(t, err)

	v, err := ctx.View()
	require.NoError(t, err)

	tx := v.Begin(0)
	require.NoError(t, tx.Expunge(2))
	_, _, err = tx.Commit()
	require.NoError(t, err)
	require.NoError(t, ctx.Commit())

	ctx2, err := Begin(fsys, locker, paths, 0)
	require.NoError(t, err)
	defer ctx2.Commit()

	h := ctx2.Index.GetHeader()
	require.Equal(t, uint32(2), h.MessagesCount)
	require.Equal(t, uint32(4), h.NextUID)

	for seq, wantUID := range []uint32{1, 3} {
		rec, err := ctx2.Index.Lookup(seq + 1)
		require.NoError(t, err)
		require.Equal(t, wantUID, rec.UID)
	}
}

// TestScenario_CacheRoundTrip exercises the cache: registering a fixed
// field, writing a value for one UID, closing both the index and the
// cache, and reading the same bytes back after reopening.
func TestScenario_CacheRoundTrip(t *testing.T) {
	fsys, locker, paths := testPaths(t)
	paths.CachePath = filepath.Join(filepath.Dir(paths.IndexPath), "index.cache")

	bootstrap3(t, fsys, locker, paths)

	ctx, err := Begin(fsys, locker, paths, 0)
	require.NoError(t, err)

	fieldIdx, err := ctx.Cache.RegisterField("hdr.date", 4)
	require.NoError(t, err)

	cacheTx := ctx.Cache.Begin()
	cacheTx.SetField(3, fieldIdx, []byte{0x44, 0x33, 0x22, 0x11})
	require.NoError(t, ctx.CommitCache(cacheTx))

	require.NoError(t, ctx.Commit())

	idx, err := mailindex.Open(fsys, paths.IndexPath, mailindex.BackendMmap)
	require.NoError(t, err)
	defer idx.Close()

	c, err := cache.Open(fsys, paths.CachePath, idx.Header.IndexID)
	require.NoError(t, err)
	defer c.Close()

	reopenedIdx, ok := c.Registry.Lookup("hdr.date")
	require.True(t, ok, "field registry lost across reopen")

	got, err := c.GetField(3, reopenedIdx)
	require.NoError(t, err)
	require.Equal(t, []byte{0x44, 0x33, 0x22, 0x11}, got)
}

// TestScenario_LogRotation forces the log past RotateThreshold by
// appending flag updates directly to it (bypassing the lock a live Ctx
// would hold, mirroring how ctx_test.go seeds a log out of band), then
// observes that the next Begin/Commit cycle rotates: .log.2 holds the
// old file's full history, and the new log starts at a higher FileSeq.
func TestScenario_LogRotation(t *testing.T) {
	fsys, locker, paths := testPaths(t)

	bootstrap3(t, fsys, locker, paths)

	ctx, err := Begin(fsys, locker, paths, 0)
	require.NoError(t, err)
	indexID := ctx.Index.Header.IndexID
	oldFileSeq := ctx.Log.Header.FileSeq
	require.NoError(t, ctx.Commit())

	log, err := translog.Open(fsys, paths.LogPath, indexID)
	require.NoError(t, err)

	w, err := translog.NewWriter(log)
	require.NoError(t, err)

	payload := translog.EncodeFlagUpdatePayload(translog.FlagUpdatePayload{
		UID1: 1, UID2: 1, AddFlags: uint8(mailindex.FlagSeen),
	})

	var recordCount int
	for {
		_, err := w.Append(translog.TypeFlagUpdate, payload)
		require.NoError(t, err)
		recordCount++
		if w.Tail() > RotateThreshold {
			break
		}
	}

	require.NoError(t, log.Close())

	ctx2, err := Begin(fsys, locker, paths, 0)
	require.NoError(t, err)
	for i := 0; i < recordCount; i++ {
		_, ok := ctx2.Next()
		require.True(t, ok, "Next() exhausted after %d records, want %d", i, recordCount)
	}

	require.NoError(t, ctx2.Commit(), "expected commit to rotate the log")

	_, err = fsys.Stat(paths.LogPath + ".2")
	require.NoError(t, err, "want rotated-out file to exist")

	rotated, err := translog.Open(fsys, paths.LogPath, indexID)
	require.NoError(t, err)
	defer rotated.Close()

	require.Greater(t, rotated.Header.FileSeq, oldFileSeq)

	old, err := translog.Open(fsys, paths.LogPath+".2", indexID)
	require.NoError(t, err)
	defer old.Close()

	reader := translog.NewReader(old, translog.FileHeaderSize)
	n := 0
	for {
		if _, err := reader.Next(); err != nil {
			break
		}
		n++
	}
	require.Equal(t, recordCount+3, n, ".log.2 should replay every record written before rotation (bootstrap3's 3 appends plus the flag updates)")
}

// TestScenario_CorruptedHeaderRecovery corrupts the main index header's
// messages_count field directly on disk (invalidating its CRC without
// touching the log), then confirms Begin notices the index is unusable,
// runs fsck, and reconstructs the correct messages_count from the log.
func TestScenario_CorruptedHeaderRecovery(t *testing.T) {
	fsys, locker, paths := testPaths(t)

	bootstrap3(t, fsys, locker, paths)

	f, err := fsys.OpenFile(paths.IndexPath, os.O_RDWR, 0)
	require.NoError(t, err)
	// offMessagesCount in mailindex/header.go; corrupting it without
	// restamping the CRC makes ValidateHeaderCRC fail on the next Open.
	_, err = f.Seek(0x28, io.SeekStart)
	require.NoError(t, err)
	_, err = f.Write([]byte{0xFF, 0xFF, 0xFF, 0xFF})
	require.NoError(t, err)
	require.NoError(t, f.Close())

	ctx, err := Begin(fsys, locker, paths, 0)
	require.NoError(t, err, "want fsck to recover from the corrupted header")

	require.Equal(t, 3, ctx.Index.MessagesCount())
	require.Equal(t, uint32(3), ctx.Index.GetHeader().MessagesCount)

	require.NoError(t, ctx.Commit())
}

// TestScenario_KeywordBitmapSizing exercises keyword bitmap sizing: after
// registering keywords a, b, c and adding {a,c} to one message, reading
// that message back yields exactly {a,c}, and this stays true even after
// a later session grows the bitmap further by introducing a fourth
// keyword against a different message.
func TestScenario_KeywordBitmapSizing(t *testing.T) {
	fsys, locker, paths := testPaths(t)

	bootstrap3(t, fsys, locker, paths)

	kw := view.NewKeywords()
	idxA := kw.KeywordsCreate("a")
	_ = kw.KeywordsCreate("b")
	idxC := kw.KeywordsCreate("c")

	ctx, err := Begin(fsys, locker, paths, 0)
	require.NoError(t, err)

	v, err := ctx.View()
	require.NoError(t, err)

	tx := v.Begin(0)
	require.NoError(t, tx.UpdateKeywords(2, view.ModifyAdd, idxA))
	require.NoError(t, tx.UpdateKeywords(2, view.ModifyAdd, idxC))
	_, _, err = tx.Commit()
	require.NoError(t, err)
	require.NoError(t, ctx.Commit())

	// A concurrent session introduces a fourth keyword against a
	// different message, growing the bitmap further.
	idxD := kw.KeywordsCreate("d")

	ctx2, err := Begin(fsys, locker, paths, 0)
	require.NoError(t, err)

	v2, err := ctx2.View()
	require.NoError(t, err)

	tx2 := v2.Begin(0)
	require.NoError(t, tx2.UpdateKeywords(1, view.ModifyAdd, idxD))
	_, _, err = tx2.Commit()
	require.NoError(t, err)
	require.NoError(t, ctx2.Commit())

	ctx3, err := Begin(fsys, locker, paths, 0)
	require.NoError(t, err)
	defer ctx3.Commit()

	rec, err := ctx3.Index.Lookup(2)
	require.NoError(t, err)

	require.ElementsMatch(t, []string{"a", "c"}, kw.Names(rec.Keywords))

	rec1, err := ctx3.Index.Lookup(1)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"d"}, kw.Names(rec1.Keywords))
}

// bootstrap3 creates a fresh mailbox and appends UIDs 1..3 with no
// flags, committing before returning.
func bootstrap3(t *testing.T, fsys mfs.FS, locker filelock.Locker, paths Paths) {
	t.Helper()

	ctx, err := Begin(fsys, locker, paths, 0)
	require.NoError(t, err)

	v, err := ctx.View()
	require.NoError(t, err)

	tx := v.Begin(0)
	for i := 0; i < 3; i++ {
		_, err := tx.Append(0, 0, nil)
		require.NoError(t, err)
	}
	_, _, err = tx.Commit()
	require.NoError(t, err)
	require.NoError(t, ctx.Commit())
}
