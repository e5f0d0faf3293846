package backend

import (
	"errors"
	"sort"

	"github.com/dcvt/mindex/mailindex"
	"github.com/dcvt/mindex/sync"
)

// ErrNotFound is returned by ReadByUID/UpdateFlags/Expunge when no
// message with the given UID exists.
var ErrNotFound = errors.New("backend: uid not found")

// Message is one backend-held message as Enumerate reports it: its UID,
// current flags/keywords, and body bytes.
type Message struct {
	UID      uint32
	Flags    mailindex.MessageFlag
	Keywords []byte
	Body     []byte
}

// Backend is the minimal surface the sync engine's Fsck needs to rebuild
// an index from a mail store's actual current state, once the
// transaction log itself can no longer be trusted. It deliberately
// excludes everything a real mail storage format also has to do
// (locking, quota, search indexing) — those belong to the storage
// implementation, not to this package's fakes.
type Backend interface {
	// Enumerate lists every message currently held, in any order.
	Enumerate() ([]Message, error)

	// ReadByUID returns uid's body bytes.
	ReadByUID(uid uint32) ([]byte, error)

	// WriteMessage stores a new message with the given initial flags,
	// returning the UID the backend assigned it.
	WriteMessage(body []byte, flags mailindex.MessageFlag) (uid uint32, err error)

	// UpdateFlags applies add/remove masks to uid's stored flags.
	UpdateFlags(uid uint32, add, remove mailindex.MessageFlag) error

	// Expunge removes uid.
	Expunge(uid uint32) error
}

// Enumerator adapts b into a sync.Enumerator, sorting by UID so the
// rebuilt index's record array comes out already UID-ordered.
func Enumerator(b Backend) sync.Enumerator {
	return func() ([]mailindex.Record, error) {
		msgs, err := b.Enumerate()
		if err != nil {
			return nil, err
		}

		sort.Slice(msgs, func(i, j int) bool { return msgs[i].UID < msgs[j].UID })

		recs := make([]mailindex.Record, len(msgs))
		for i, m := range msgs {
			recs[i] = mailindex.Record{UID: m.UID, Flags: m.Flags, Keywords: m.Keywords}
		}

		return recs, nil
	}
}
