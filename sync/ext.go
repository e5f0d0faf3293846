package sync

import (
	"encoding/binary"
	"fmt"

	"github.com/dcvt/mindex/cache"
	"github.com/dcvt/mindex/mailindex"
	"github.com/dcvt/mindex/translog"
)

// CacheOffsetExtName is the per-record extension that carries each
// message's cache-file chunk offset inside the main index, so the
// offset survives a rebuild by log replay instead of depending solely
// on the cache file's own scan-on-open index. See CommitCache.
const CacheOffsetExtName = "cache.offset"

// RegisterExt declares (or looks up) a per-record extension against this
// Ctx's index. A freshly assigned extension is announced to other
// sessions with an EXT_INTRO log record so their next replay learns its
// name and size too; looking up an already-known extension is a no-op
// past the local registry check.
func (c *Ctx) RegisterExt(name string, hdrSize, recordSize uint32) (extID uint32, err error) {
	if c.Index.Exts != nil {
		if ext, ok := c.Index.Exts.Lookup(name); ok {
			return ext.ID, nil
		}
	}

	extID, err = mailindex.ExtRegister(c.Index, name, hdrSize, recordSize)
	if err != nil {
		return 0, fmt.Errorf("sync: register ext %q: %w", name, err)
	}

	w, err := translog.NewWriter(c.Log)
	if err != nil {
		return 0, fmt.Errorf("sync: register ext %q: %w", name, err)
	}

	payload := translog.EncodeExtIntroPayload(translog.ExtIntroPayload{
		ExtID: extID, Name: name, HdrSize: hdrSize, RecordSize: recordSize,
	})
	if _, err := w.Append(translog.TypeExtIntro, payload); err != nil {
		return 0, fmt.Errorf("sync: register ext %q: append: %w", name, err)
	}

	return extID, nil
}

// CommitCache flushes txn and records each affected UID's resulting
// cache-file offset into the main index's cache-offset extension via
// EXT_REC_UPDATE log records, so the offset is recoverable by replay
// rather than living only in the cache file's own scanned index. Callers
// writing cache fields through a Ctx with a non-nil Cache should commit
// through this method rather than calling txn.Commit directly, so the
// offset extension stays in sync with the cache file.
func (c *Ctx) CommitCache(txn *cache.Transaction) error {
	updates, err := txn.Commit()
	if err != nil {
		return fmt.Errorf("sync: commit cache: %w", err)
	}

	if len(updates) == 0 {
		return nil
	}

	extID, err := c.RegisterExt(CacheOffsetExtName, 0, 8)
	if err != nil {
		return fmt.Errorf("sync: commit cache: %w", err)
	}

	ext, ok := c.Index.Exts.ByID(extID)
	if !ok {
		return fmt.Errorf("sync: commit cache: ext %q vanished after registration", CacheOffsetExtName)
	}

	w, err := translog.NewWriter(c.Log)
	if err != nil {
		return fmt.Errorf("sync: commit cache: %w", err)
	}

	for _, u := range updates {
		data := make([]byte, 8)
		binary.LittleEndian.PutUint64(data, uint64(u.Offset))

		payload := translog.EncodeExtRecUpdatePayload(translog.ExtRecUpdatePayload{
			ExtID: extID, UID: u.UID, Data: data,
		})
		if _, err := w.Append(translog.TypeExtRecUpdate, payload); err != nil {
			return fmt.Errorf("sync: commit cache: append offset for uid %d: %w", u.UID, err)
		}

		seq, err := c.Index.LookupUID(u.UID)
		if err != nil {
			// Appended but not applicable yet (e.g. the append for this
			// UID hasn't been committed to the index in this same Ctx);
			// a later replay picks it up once the UID exists.
			continue
		}

		if err := c.Index.SetExtRecord(seq, ext, data); err != nil {
			return fmt.Errorf("sync: commit cache: apply offset for uid %d: %w", u.UID, err)
		}
	}

	return nil
}

// CacheOffset returns the cache-file offset previously recorded via
// CommitCache for the message at seq, or ok=false if the extension isn't
// registered or no offset has been recorded for that message yet.
func (c *Ctx) CacheOffset(seq int) (offset int64, ok bool) {
	if c.Index.Exts == nil {
		return 0, false
	}

	ext, found := c.Index.Exts.Lookup(CacheOffsetExtName)
	if !found {
		return 0, false
	}

	data, err := c.Index.GetExtRecord(seq, ext)
	if err != nil {
		return 0, false
	}

	v := binary.LittleEndian.Uint64(data)
	if v == 0 {
		return 0, false
	}

	return int64(v), true
}
