package view

import (
	"github.com/dcvt/mindex/mailindex"
	"github.com/dcvt/mindex/translog"
)

// View is a mailbox's main index map anchored at the transaction-log
// position it was opened at. It is not a snapshot: every accessor reads
// the underlying Map, so changes a sync.Ctx replay in the same process
// applies to that Map after Open are visible through the View.
//
// A View opened without a log writer (log == nil) is read-only: Begin
// still returns a Transaction, but its Commit fails, since there is
// nowhere to append the serialized records.
type View struct {
	idx *mailindex.Map
	log *translog.Writer

	// LogSeq and LogOffset record the log position the View was opened
	// at; a Transaction's Commit does not change them.
	LogSeq    uint32
	LogOffset int64
}

// Open anchors a View over idx at the given log position, typically the
// index header's LogFileSeq/LogFileTailOffset as sync.Ctx.View reads
// them during a Ctx. w is the writer new Transactions append through; pass nil for
// a read-only view.
func Open(idx *mailindex.Map, w *translog.Writer, logSeq uint32, logOffset int64) *View {
	return &View{idx: idx, log: w, LogSeq: logSeq, LogOffset: logOffset}
}

// MessagesCount returns the number of messages in the underlying index.
func (v *View) MessagesCount() int {
	return v.idx.MessagesCount()
}

// Lookup returns the record at the given 1-based sequence number.
func (v *View) Lookup(seq int) (mailindex.Record, error) {
	rec, err := v.idx.Lookup(seq)
	if err != nil {
		return mailindex.Record{}, ErrSeqOutOfRange
	}

	return rec, nil
}

// LookupUID returns the seq of the record with the given UID.
func (v *View) LookupUID(uid uint32) (int, error) {
	seq, err := v.idx.LookupUID(uid)
	if err != nil {
		return 0, ErrSeqOutOfRange
	}

	return seq, nil
}

// LookupUIDRange returns the inclusive seq range covering [uid1, uid2].
func (v *View) LookupUIDRange(uid1, uid2 uint32) (int, int, error) {
	s1, s2, err := v.idx.LookupUIDRange(uid1, uid2)
	if err != nil {
		return 0, 0, ErrSeqOutOfRange
	}

	return s1, s2, nil
}

// Header returns the anchored index's header.
func (v *View) Header() mailindex.Header {
	return v.idx.GetHeader()
}

// Begin starts a Transaction buffering changes against v.
func (v *View) Begin(flags TxFlag) *Transaction {
	return &Transaction{
		view:    v,
		flags:   flags,
		nextUID: v.idx.GetHeader().NextUID,
		baseSeq: v.MessagesCount(),
	}
}
