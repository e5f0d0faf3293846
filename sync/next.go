package sync

import (
	"fmt"

	"github.com/dcvt/mindex/internal/bitset"
	"github.com/dcvt/mindex/mailindex"
	"github.com/dcvt/mindex/translog"
)

// SyncRec is one applied log record, delivered by Next in ascending-UID
// order (append/expunge/flag records are UID-scoped; header and
// extension records carry UID 0 and are delivered in log order
// interleaved with whichever UID range they were appended between).
type SyncRec struct {
	Seq  int // 1-based position in this Ctx's synthetic transaction
	Type translog.Type
	UID  uint32 // 0 for non-UID-scoped record types
	Rec  translog.Record
}

// Next returns the next record in delivery order, or ok=false once
// every replayed record has been returned.
func (c *Ctx) Next() (SyncRec, bool) {
	if c.cursor >= len(c.pending) {
		return SyncRec{}, false
	}

	sr := c.pending[c.cursor]
	c.cursor++

	return sr, true
}

// TransactionLookup returns the record at the given 1-based sequence
// number within this Ctx's synthetic transaction, for callers that
// recorded a Seq from an earlier Next call and want random access back
// into it (e.g. to re-read an append's full payload).
func (c *Ctx) TransactionLookup(seq int) (SyncRec, bool) {
	if seq < 1 || seq > len(c.pending) {
		return SyncRec{}, false
	}

	return c.pending[seq-1], true
}

// applyRecord mutates idx according to rec and returns the SyncRec
// describing what changed (Seq is filled in by the caller). flags is the
// replaying Ctx's Begin flags, consulted only by the flag-update case:
// FlagAvoidFlagUpdates stops it from synthesizing a Dirty marker.
func applyRecord(idx *mailindex.Map, rec translog.Record, flags Flags) (SyncRec, error) {
	switch rec.Type.Base() {
	case translog.TypeAppend:
		p, err := translog.DecodeAppendPayload(rec.Payload)
		if err != nil {
			return SyncRec{}, err
		}

		keywords := append([]byte(nil), p.Keywords...)
		if err := idx.AppendRecord(mailindex.Record{
			UID:      p.UID,
			Flags:    mailindex.MessageFlag(p.Flags),
			Keywords: keywords,
		}); err != nil {
			return SyncRec{}, err
		}

		h := idx.GetHeader()
		h.MessagesCount++
		if p.UID >= h.NextUID {
			h.NextUID = p.UID + 1
		}
		addCounts(&h, mailindex.MessageFlag(p.Flags))
		if err := idx.SetHeader(h); err != nil {
			return SyncRec{}, err
		}

		return SyncRec{Type: rec.Type, UID: p.UID, Rec: rec}, nil

	case translog.TypeExpunge:
		p, err := translog.DecodeExpungePayload(rec.Payload)
		if err != nil {
			return SyncRec{}, err
		}

		seq, err := idx.LookupUID(p.UID)
		if err != nil {
			// Already gone (e.g. replayed twice across a crash); expunging
			// a UID that isn't present is a no-op, not corruption.
			return SyncRec{Type: rec.Type, UID: p.UID, Rec: rec}, nil
		}

		old, err := idx.Lookup(seq)
		if err != nil {
			return SyncRec{}, err
		}

		if err := idx.ExpungeRecord(seq); err != nil {
			return SyncRec{}, err
		}

		h := idx.GetHeader()
		if h.MessagesCount > 0 {
			h.MessagesCount--
		}
		subCounts(&h, old.Flags)
		if err := idx.SetHeader(h); err != nil {
			return SyncRec{}, err
		}

		return SyncRec{Type: rec.Type, UID: p.UID, Rec: rec}, nil

	case translog.TypeFlagUpdate:
		p, err := translog.DecodeFlagUpdatePayload(rec.Payload)
		if err != nil {
			return SyncRec{}, err
		}

		seq1, seq2, err := idx.LookupUIDRange(p.UID1, p.UID2)
		if err != nil {
			return SyncRec{Type: rec.Type, UID: p.UID1, Rec: rec}, nil
		}

		h := idx.GetHeader()

		// A record clearing exactly FlagDirty and nothing else is the
		// backend confirming a write landed; synthesizing Dirty back onto
		// it here would mean dirty never clears.
		isDirtyClear := p.RemoveFlags == uint8(mailindex.FlagDirty) && p.AddFlags == 0

		for seq := seq1; seq <= seq2; seq++ {
			cur, err := idx.Lookup(seq)
			if err != nil {
				return SyncRec{}, err
			}

			before := cur.Flags
			cur.Flags = (cur.Flags &^ mailindex.MessageFlag(p.RemoveFlags)) | mailindex.MessageFlag(p.AddFlags)

			if !isDirtyClear && !rec.Type.IsExternal() && !flags.has(FlagAvoidFlagUpdates) {
				cur.Flags |= mailindex.FlagDirty
			}

			if err := idx.PutRecord(seq, cur); err != nil {
				return SyncRec{}, err
			}

			subCounts(&h, before)
			addCounts(&h, cur.Flags)
		}

		if err := idx.SetHeader(h); err != nil {
			return SyncRec{}, err
		}

		return SyncRec{Type: rec.Type, UID: p.UID1, Rec: rec}, nil

	case translog.TypeHeaderUpdate:
		p, err := translog.DecodeHeaderUpdatePayload(rec.Payload)
		if err != nil {
			return SyncRec{}, err
		}

		h := idx.GetHeader()
		buf := mailindex.EncodeHeader(&h)
		end := int(p.Offset) + len(p.Data)
		if end > len(buf) {
			return SyncRec{}, fmt.Errorf("sync: header update [%d,%d) past header size %d", p.Offset, end, len(buf))
		}

		copy(buf[p.Offset:], p.Data)
		if err := idx.SetHeader(mailindex.DecodeHeader(buf)); err != nil {
			return SyncRec{}, err
		}

		return SyncRec{Type: rec.Type, Rec: translog.Record{Type: rec.Type, Payload: p.Data}}, nil

	case translog.TypeKeywordUpdate:
		p, err := translog.DecodeKeywordUpdatePayload(rec.Payload)
		if err != nil {
			return SyncRec{}, err
		}

		if err := growKeywordsMask(idx, int(p.KeywordIdx)+1); err != nil {
			return SyncRec{}, err
		}

		seq1, seq2, err := idx.LookupUIDRange(p.UID1, p.UID2)
		if err != nil {
			return SyncRec{Type: rec.Type, UID: p.UID1, Rec: rec}, nil
		}

		for seq := seq1; seq <= seq2; seq++ {
			cur, err := idx.Lookup(seq)
			if err != nil {
				return SyncRec{}, err
			}

			kw := append([]byte(nil), cur.Keywords...)
			if p.Add {
				bitset.Set(kw, int(p.KeywordIdx))
			} else {
				bitset.Clear(kw, int(p.KeywordIdx))
			}
			cur.Keywords = kw

			if err := idx.PutRecord(seq, cur); err != nil {
				return SyncRec{}, err
			}
		}

		return SyncRec{Type: rec.Type, UID: p.UID1, Rec: rec}, nil

	case translog.TypeKeywordReset:
		p, err := translog.DecodeKeywordResetPayload(rec.Payload)
		if err != nil {
			return SyncRec{}, err
		}

		seq1, seq2, err := idx.LookupUIDRange(p.UID1, p.UID2)
		if err != nil {
			return SyncRec{Type: rec.Type, UID: p.UID1, Rec: rec}, nil
		}

		for seq := seq1; seq <= seq2; seq++ {
			cur, err := idx.Lookup(seq)
			if err != nil {
				return SyncRec{}, err
			}

			cur.Keywords = make([]byte, idx.Header.KeywordsMaskSize)

			if err := idx.PutRecord(seq, cur); err != nil {
				return SyncRec{}, err
			}
		}

		return SyncRec{Type: rec.Type, UID: p.UID1, Rec: rec}, nil

	case translog.TypeExtIntro:
		p, err := translog.DecodeExtIntroPayload(rec.Payload)
		if err != nil {
			return SyncRec{}, err
		}

		if idx.Exts == nil {
			idx.Exts = mailindex.NewExtRegistry()
		}

		idx.Exts.Register(p.ExtID, p.Name, p.HdrSize, p.RecordSize)

		if idx.Exts.TotalSize() > idx.Header.ExtRegionSize {
			if err := idx.GrowExtRegion(idx.Exts.TotalSize()); err != nil {
				return SyncRec{}, fmt.Errorf("sync: grow ext region for %q: %w", p.Name, err)
			}
		}

		return SyncRec{Type: rec.Type, Rec: rec}, nil

	case translog.TypeExtReset:
		// Extension reset IDs are bookkeeping for the introducing session
		// to detect a stale ext_id across a mailbox rebuild; nothing in
		// the index layout needs to change here.
		return SyncRec{Type: rec.Type, Rec: rec}, nil

	case translog.TypeExtHdrUpdate:
		// Per-extension header bytes aren't modeled on Map; extensions
		// registered so far only use the per-record slot (see
		// TypeExtRecUpdate), so this is delivered to callers unapplied.
		return SyncRec{Type: rec.Type, Rec: rec}, nil

	case translog.TypeExtRecUpdate:
		p, err := translog.DecodeExtRecUpdatePayload(rec.Payload)
		if err != nil {
			return SyncRec{}, err
		}

		if idx.Exts != nil {
			if ext, ok := idx.Exts.ByID(p.ExtID); ok {
				if seq, err := idx.LookupUID(p.UID); err == nil {
					if err := idx.SetExtRecord(seq, ext, p.Data); err != nil {
						return SyncRec{}, err
					}
				}
			}
		}

		return SyncRec{Type: rec.Type, UID: p.UID, Rec: rec}, nil

	default:
		return SyncRec{}, fmt.Errorf("sync: unknown record type %d", rec.Type.Base())
	}
}

// growKeywordsMask ensures idx's keyword bitmap can address keyword index
// n-1, growing both the header's mask size and every record's stride if
// not.
func growKeywordsMask(idx *mailindex.Map, n int) error {
	want := uint32(bitset.Size(n))
	if want <= idx.Header.KeywordsMaskSize {
		return nil
	}

	return idx.GrowKeywordsMask(want)
}

// addCounts bumps h's Recent/Seen/Deleted tallies for a message holding
// flags.
func addCounts(h *mailindex.Header, flags mailindex.MessageFlag) {
	if flags&mailindex.FlagRecent != 0 {
		h.RecentMessagesCount++
	}
	if flags&mailindex.FlagSeen != 0 {
		h.SeenMessagesCount++
	}
	if flags&mailindex.FlagDeleted != 0 {
		h.DeletedMessagesCount++
	}
}

// subCounts reverses addCounts for a message that held flags and is now
// being expunged or re-flagged.
func subCounts(h *mailindex.Header, flags mailindex.MessageFlag) {
	if flags&mailindex.FlagRecent != 0 && h.RecentMessagesCount > 0 {
		h.RecentMessagesCount--
	}
	if flags&mailindex.FlagSeen != 0 && h.SeenMessagesCount > 0 {
		h.SeenMessagesCount--
	}
	if flags&mailindex.FlagDeleted != 0 && h.DeletedMessagesCount > 0 {
		h.DeletedMessagesCount--
	}
}
