package sync

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dcvt/mindex/mailindex"
	"github.com/dcvt/mindex/translog"

	mfs "github.com/dcvt/mindex/fs"
)

// Enumerator lists every message a backend currently holds, used by
// Fsck's last-resort path when the transaction log itself can't be
// trusted and the index has to be rebuilt from the backend's own notion
// of what exists rather than from history.
type Enumerator func() ([]mailindex.Record, error)

// Fsck rebuilds the index file at paths.IndexPath from scratch: a fresh
// header plus a full replay of paths.LogPath from its first record. If
// the log itself can't be read at all, Fsck falls back to enumerate (if
// given), resetting UIDVALIDITY and rebuilding records straight from the
// backend's current state, since a log that can't be replayed carries
// no trustworthy UID history to preserve.
func Fsck(fsys mfs.FS, paths Paths, indexID uint32, enumerate Enumerator) error {
	if err := fsck(fsys, paths); err == nil {
		return nil
	}

	if enumerate == nil {
		return fmt.Errorf("sync: fsck: log unusable and no fallback enumerator given")
	}

	return fsckFromBackend(fsys, paths, indexID, enumerate)
}

// fsck is Begin's internal retry path: rebuild the index from the
// existing log without touching UIDVALIDITY or consulting a backend.
func fsck(fsys mfs.FS, paths Paths) error {
	log, err := openLogIgnoringIndexID(fsys, paths.LogPath)
	if err != nil {
		return fmt.Errorf("sync: fsck: open log: %w", err)
	}
	defer log.Close()

	h := mailindex.NewHeader(log.Header.CreateStamp, log.Header.IndexID, 0, mailindex.BaseHeaderSize)
	h.LogFileSeq = log.Header.FileSeq

	idx, err := mailindex.Create(fsys, paths.IndexPath, h, mailindex.BackendMmap)
	if err != nil {
		return fmt.Errorf("sync: fsck: recreate index: %w", err)
	}
	defer idx.Close()

	reader := translog.NewReader(log, translog.FileHeaderSize)

	for {
		rec, err := reader.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}

			return fmt.Errorf("sync: fsck: replay: %w", err)
		}

		if _, err := applyRecord(idx, rec, Flags(0)); err != nil {
			return fmt.Errorf("sync: fsck: apply %s record: %w", rec.Type, err)
		}
	}

	hdr := idx.GetHeader()
	hdr.LogFileTailOffset = uint32(reader.Offset())

	if err := idx.SetHeader(hdr); err != nil {
		return fmt.Errorf("sync: fsck: finalize header: %w", err)
	}

	return idx.Sync()
}

// openLogIgnoringIndexID opens paths.LogPath without validating its
// IndexID, for the recovery path where the index (the thing that would
// normally supply the expected IndexID) is itself what's being rebuilt.
func openLogIgnoringIndexID(fsys mfs.FS, path string) (*translog.File, error) {
	probe, err := translog.Open(fsys, path, 0)
	if err == nil {
		return probe, nil
	}

	if errors.Is(err, translog.ErrIndexIDMismatch) {
		// Open already read and validated the header's CRC before
		// comparing IndexID; re-derive it by opening once more and
		// accepting whatever IndexID is actually stored.
		return reopenWithStoredIndexID(fsys, path)
	}

	return nil, err
}

func reopenWithStoredIndexID(fsys mfs.FS, path string) (*translog.File, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return nil, err
	}

	hdrBuf := make([]byte, translog.FileHeaderSize)
	if _, err := io.ReadFull(f, hdrBuf); err != nil {
		_ = f.Close()
		return nil, err
	}
	_ = f.Close()

	h, err := translog.DecodeFileHeader(hdrBuf)
	if err != nil {
		return nil, err
	}

	return translog.Open(fsys, path, h.IndexID)
}

// fsckFromBackend rebuilds the index with a new UIDVALIDITY and a fresh
// empty log, assigning UIDs to whatever enumerate currently reports, for
// when the log itself is unusable.
func fsckFromBackend(fsys mfs.FS, paths Paths, indexID uint32, enumerate Enumerator) error {
	records, err := enumerate()
	if err != nil {
		return fmt.Errorf("sync: fsck: enumerate backend: %w", err)
	}

	now := uint32(time.Now().Unix())

	h := mailindex.NewHeader(now, indexID, 0, mailindex.BaseHeaderSize)

	idx, err := mailindex.Create(fsys, paths.IndexPath, h, mailindex.BackendMmap)
	if err != nil {
		return fmt.Errorf("sync: fsck: recreate index: %w", err)
	}
	defer idx.Close()

	nextUID := uint32(1)
	for _, rec := range records {
		if rec.UID == 0 {
			rec.UID = nextUID
		}
		if rec.UID >= nextUID {
			nextUID = rec.UID + 1
		}

		if err := idx.AppendRecord(rec); err != nil {
			return fmt.Errorf("sync: fsck: append uid %d: %w", rec.UID, err)
		}
	}

	hdr := idx.GetHeader()
	hdr.MessagesCount = uint32(len(records))
	hdr.NextUID = nextUID

	if err := idx.SetHeader(hdr); err != nil {
		return fmt.Errorf("sync: fsck: finalize header: %w", err)
	}

	if err := idx.Sync(); err != nil {
		return err
	}

	_ = fsys.Remove(paths.LogPath)

	_, err = translog.Create(fsys, paths.LogPath, translog.FileHeader{
		IndexID:     indexID,
		FileSeq:     1,
		CreateStamp: now,
	})
	if err != nil {
		return fmt.Errorf("sync: fsck: recreate log: %w", err)
	}

	return nil
}
