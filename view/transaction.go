package view

import (
	"errors"
	"fmt"

	"github.com/dcvt/mindex/mailindex"
	"github.com/dcvt/mindex/translog"
)

// TxFlag controls how a Transaction's changes are recorded and
// delivered to other sessions.
type TxFlag uint32

const (
	// External marks records written by replication/replay rather than
	// a live client action, the same bit the transaction log carries per
	// record.
	External TxFlag = 1 << iota

	// AvoidFlagUpdates is accepted and stored but not read by this
	// package: it changes neither the records Commit writes nor what a
	// later sync.Ctx Next delivers (the Begin flag
	// sync.FlagAvoidFlagUpdates is what keeps flag updates out of Next).
	AvoidFlagUpdates

	// Hide is accepted and stored but not read by this package; it does
	// not change what Commit writes or what any reader sees. A
	// TransactionView overlays only its own Transaction's buffers.
	Hide
)

// Modify selects how UpdateFlags/UpdateKeywords combine their argument
// with the existing value.
type Modify uint8

const (
	ModifyAdd Modify = iota + 1
	ModifyRemove
	ModifyReplace
)

type pendingAppend struct {
	uid      uint32
	flags    mailindex.MessageFlag
	keywords []byte
}

type flagUpdate struct {
	uid1, uid2  uint32
	addFlags    mailindex.MessageFlag
	removeFlags mailindex.MessageFlag
}

type keywordUpdate struct {
	uid1, uid2 uint32
	idx        uint32
	add        bool
}

type keywordReset struct {
	uid1, uid2 uint32
}

type headerUpdate struct {
	offset uint32
	data   []byte
}

type extUpdate struct {
	extID uint32
	uid   uint32
	data  []byte
}

// Transaction buffers a batch of changes against a View until Commit
// serializes them into the transaction log in one pass. Nothing is
// visible to other sessions, or even durable, until Commit returns.
type Transaction struct {
	view  *View
	flags TxFlag

	nextUID  uint32 // next UID Append will assign, absent an explicit hint
	baseSeq  int    // view.MessagesCount() at Begin, appends start past this
	expunged map[int]bool

	appends        []pendingAppend
	flagUpdates    []flagUpdate
	keywordUpdates []keywordUpdate
	keywordResets  []keywordReset
	headerUpdates  []headerUpdate
	extUpdates     []extUpdate

	committed bool
}

// Append buffers a new message, returning the sequence number it will
// occupy once committed. uidHint pins the assigned UID (used when
// restoring a message whose UID is already known, e.g. from a backend
// rescan); pass 0 to let the transaction assign the next UID in order.
func (t *Transaction) Append(uidHint uint32, flags mailindex.MessageFlag, keywords []byte) (seq int, err error) {
	uid := t.nextUID
	if uidHint != 0 {
		if uidHint < t.nextUID {
			return 0, fmt.Errorf("view: append uid %d precedes next uid %d", uidHint, t.nextUID)
		}
		uid = uidHint
	}
	t.nextUID = uid + 1

	t.appends = append(t.appends, pendingAppend{
		uid:      uid,
		flags:    flags,
		keywords: append([]byte(nil), keywords...),
	})

	return t.baseSeq + len(t.appends), nil
}

// Expunge marks seq for removal. Expunging the same seq twice in one
// transaction returns ErrAlreadyExpunged.
func (t *Transaction) Expunge(seq int) error {
	if _, err := t.seqToUID(seq); err != nil {
		return err
	}

	if t.expunged == nil {
		t.expunged = make(map[int]bool)
	}
	if t.expunged[seq] {
		return ErrAlreadyExpunged
	}
	t.expunged[seq] = true

	return nil
}

// UpdateFlags buffers a flag change over the single-message range
// [seq, seq]. modify selects whether flags are added, removed, or
// become the record's full flag set.
func (t *Transaction) UpdateFlags(seq int, modify Modify, flags mailindex.MessageFlag) error {
	uid, err := t.seqToUID(seq)
	if err != nil {
		return err
	}

	var add, remove mailindex.MessageFlag
	switch modify {
	case ModifyAdd:
		add = flags
	case ModifyRemove:
		remove = flags
	case ModifyReplace:
		add = flags
		remove = ^mailindex.MessageFlag(0) &^ flags
	default:
		return fmt.Errorf("view: unknown modify type %d", modify)
	}

	t.flagUpdates = append(t.flagUpdates, flagUpdate{uid1: uid, uid2: uid, addFlags: add, removeFlags: remove})

	return nil
}

// UpdateKeywords buffers a keyword toggle over the single-message range
// [seq, seq]. keyword is the registry index returned by KeywordsCreate.
func (t *Transaction) UpdateKeywords(seq int, modify Modify, keyword int) error {
	uid, err := t.seqToUID(seq)
	if err != nil {
		return err
	}

	if modify != ModifyAdd && modify != ModifyRemove {
		return fmt.Errorf("view: keywords support only add/remove, got modify type %d", modify)
	}

	t.keywordUpdates = append(t.keywordUpdates, keywordUpdate{
		uid1: uid, uid2: uid,
		idx: uint32(keyword),
		add: modify == ModifyAdd,
	})

	return nil
}

// ResetKeywords buffers clearing every keyword bit for seq's message, the
// counterpart to UpdateKeywords' per-bit add/remove.
func (t *Transaction) ResetKeywords(seq int) error {
	uid, err := t.seqToUID(seq)
	if err != nil {
		return err
	}

	t.keywordResets = append(t.keywordResets, keywordReset{uid1: uid, uid2: uid})

	return nil
}

// ClearDirty buffers confirmation that seq's message was durably written
// back by a backend, clearing the Dirty marker the sync engine
// synthesized when the flag change was first applied.
func (t *Transaction) ClearDirty(seq int) error {
	uid, err := t.seqToUID(seq)
	if err != nil {
		return err
	}

	t.flagUpdates = append(t.flagUpdates, flagUpdate{uid1: uid, uid2: uid, removeFlags: mailindex.FlagDirty})

	return nil
}

// UpdateExt buffers a per-message extension record patch for seq's UID.
// old is always nil: this method does not read the message's current
// extension record (kept in the main index's per-record extension
// region), so it has no previous value to return.
func (t *Transaction) UpdateExt(seq int, extID uint32, data []byte) (old []byte, err error) {
	uid, err := t.seqToUID(seq)
	if err != nil {
		return nil, err
	}

	t.extUpdates = append(t.extUpdates, extUpdate{extID: extID, uid: uid, data: append([]byte(nil), data...)})

	return nil, nil
}

// UpdateHeader buffers a patch to the main index header starting at
// offset.
func (t *Transaction) UpdateHeader(offset uint32, data []byte) {
	t.headerUpdates = append(t.headerUpdates, headerUpdate{offset: offset, data: append([]byte(nil), data...)})
}

// seqToUID resolves seq against the view's base records, or against
// this transaction's own pending appends if seq falls past the base
// message count.
func (t *Transaction) seqToUID(seq int) (uint32, error) {
	if seq < 1 {
		return 0, ErrSeqOutOfRange
	}

	if seq <= t.view.MessagesCount() {
		rec, err := t.view.Lookup(seq)
		if err != nil {
			return 0, err
		}
		return rec.UID, nil
	}

	idx := seq - t.view.MessagesCount() - 1
	if idx < 0 || idx >= len(t.appends) {
		return 0, ErrSeqOutOfRange
	}

	return t.appends[idx].uid, nil
}

// Commit serializes every buffered operation into the transaction log,
// in append/expunge/flag/keyword/ext/header order, and returns the
// sequence number the last buffered append occupies (the view's message
// count at Begin plus the number of appends) and the log writer's tail
// offset after the last record written. Commit on an empty transaction
// (nothing buffered) writes nothing and returns that base message count
// and the writer's current tail.
func (t *Transaction) Commit() (seq int, offset int64, err error) {
	if t.committed {
		return 0, 0, errors.New("view: transaction already committed")
	}
	t.committed = true

	if t.view.log == nil {
		return 0, 0, errors.New("view: transaction has no log to commit into")
	}

	for _, a := range t.appends {
		payload := translog.EncodeAppendPayload(translog.AppendPayload{
			UID: a.uid, Flags: uint8(a.flags), Keywords: a.keywords,
		})
		if offset, err = t.view.log.Append(t.typ(translog.TypeAppend), payload); err != nil {
			return 0, 0, fmt.Errorf("view: commit append: %w", err)
		}
	}

	for s := range t.expunged {
		uid, err2 := t.seqToUID(s)
		if err2 != nil {
			return 0, 0, err2
		}
		payload := translog.EncodeExpungePayload(translog.ExpungePayload{UID: uid})
		if offset, err = t.view.log.Append(t.typ(translog.TypeExpunge), payload); err != nil {
			return 0, 0, fmt.Errorf("view: commit expunge: %w", err)
		}
	}

	for _, f := range t.flagUpdates {
		payload := translog.EncodeFlagUpdatePayload(translog.FlagUpdatePayload{
			UID1: f.uid1, UID2: f.uid2, AddFlags: uint8(f.addFlags), RemoveFlags: uint8(f.removeFlags),
		})
		if offset, err = t.view.log.Append(t.typ(translog.TypeFlagUpdate), payload); err != nil {
			return 0, 0, fmt.Errorf("view: commit flag update: %w", err)
		}
	}

	for _, k := range t.keywordUpdates {
		payload := translog.EncodeKeywordUpdatePayload(translog.KeywordUpdatePayload{
			UID1: k.uid1, UID2: k.uid2, KeywordIdx: k.idx, Add: k.add,
		})
		if offset, err = t.view.log.Append(t.typ(translog.TypeKeywordUpdate), payload); err != nil {
			return 0, 0, fmt.Errorf("view: commit keyword update: %w", err)
		}
	}

	for _, k := range t.keywordResets {
		payload := translog.EncodeKeywordResetPayload(translog.KeywordResetPayload{UID1: k.uid1, UID2: k.uid2})
		if offset, err = t.view.log.Append(t.typ(translog.TypeKeywordReset), payload); err != nil {
			return 0, 0, fmt.Errorf("view: commit keyword reset: %w", err)
		}
	}

	for _, e := range t.extUpdates {
		payload := translog.EncodeExtRecUpdatePayload(translog.ExtRecUpdatePayload{
			ExtID: e.extID, UID: e.uid, Data: e.data,
		})
		if offset, err = t.view.log.Append(t.typ(translog.TypeExtRecUpdate), payload); err != nil {
			return 0, 0, fmt.Errorf("view: commit ext update: %w", err)
		}
	}

	for _, h := range t.headerUpdates {
		payload := translog.EncodeHeaderUpdatePayload(translog.HeaderUpdatePayload{Offset: h.offset, Data: h.data})
		if offset, err = t.view.log.Append(t.typ(translog.TypeHeaderUpdate), payload); err != nil {
			return 0, 0, fmt.Errorf("view: commit header update: %w", err)
		}
	}

	return t.baseSeq + len(t.appends), t.view.log.Tail(), nil
}

// typ OR's ExternalBit into base when this transaction was opened with
// the External flag.
func (t *Transaction) typ(base translog.Type) translog.Type {
	if t.flags&External != 0 {
		return base | translog.ExternalBit
	}

	return base
}
