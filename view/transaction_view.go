package view

import "github.com/dcvt/mindex/mailindex"

// TransactionView overlays a Transaction's still-uncommitted buffers on
// top of its base View, so a caller can see its own pending appends and
// flag changes before Commit makes them durable, without any other
// session observing them.
type TransactionView struct {
	tx *Transaction
}

// NewTransactionView returns a TransactionView over tx.
func NewTransactionView(tx *Transaction) *TransactionView {
	return &TransactionView{tx: tx}
}

// MessagesCount is the base view's message count plus this
// transaction's own pending appends, minus anything it has expunged.
func (tv *TransactionView) MessagesCount() int {
	n := tv.tx.view.MessagesCount() + len(tv.tx.appends)

	for seq := range tv.tx.expunged {
		if seq <= n {
			n--
		}
	}

	return n
}

// Lookup returns the record at seq, applying this transaction's own
// buffered flag changes and appends on top of the base view.
func (tv *TransactionView) Lookup(seq int) (mailindex.Record, error) {
	if seq < 1 {
		return mailindex.Record{}, ErrSeqOutOfRange
	}

	if tv.tx.expunged[seq] {
		return mailindex.Record{}, ErrSeqOutOfRange
	}

	base := tv.tx.view.MessagesCount()

	var rec mailindex.Record
	if seq <= base {
		r, err := tv.tx.view.Lookup(seq)
		if err != nil {
			return mailindex.Record{}, err
		}
		rec = r
	} else {
		idx := seq - base - 1
		if idx < 0 || idx >= len(tv.tx.appends) {
			return mailindex.Record{}, ErrSeqOutOfRange
		}
		a := tv.tx.appends[idx]
		rec = mailindex.Record{UID: a.uid, Flags: a.flags, Keywords: a.keywords}
	}

	for _, f := range tv.tx.flagUpdates {
		if f.uid1 <= rec.UID && rec.UID <= f.uid2 {
			rec.Flags = (rec.Flags &^ f.removeFlags) | f.addFlags
		}
	}

	return rec, nil
}
