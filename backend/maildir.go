package backend

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/dcvt/mindex/mailindex"
)

// maildirFlagOrder is the canonical flag-letter ordering maildir
// filenames sort their info section by (Draft, Flagged, Replied, Seen,
// Trashed in dovecot's mapping): "P1,2.hostname:2,FRS".
const maildirFlagOrder = "DFRST"

// letterToFlag maps a maildir info letter to its MessageFlag bit.
// Recent has no maildir representation (new/ vs cur/ placement covers
// it instead), so it's simply dropped on the way out and never set
// coming back in.
func letterToFlag(c byte) mailindex.MessageFlag {
	switch c {
	case 'D':
		return mailindex.FlagDraft
	case 'F':
		return mailindex.FlagFlagged
	case 'R':
		return mailindex.FlagAnswered
	case 'S':
		return mailindex.FlagSeen
	case 'T':
		return mailindex.FlagDeleted
	default:
		return 0
	}
}

// encodeInfo renders flags as a maildir ":2,<letters>" info suffix, the
// letters sorted into maildirFlagOrder as real maildir deliveries do.
func encodeInfo(flags mailindex.MessageFlag) string {
	var b strings.Builder

	for i := 0; i < len(maildirFlagOrder); i++ {
		l := maildirFlagOrder[i]
		if flags&letterToFlag(l) != 0 {
			b.WriteByte(l)
		}
	}

	return ":2," + b.String()
}

func decodeInfo(info string) mailindex.MessageFlag {
	var flags mailindex.MessageFlag

	i := strings.Index(info, ":2,")
	if i < 0 {
		return 0
	}

	for _, c := range info[i+3:] {
		flags |= letterToFlag(byte(c))
	}

	return flags
}

type maildirEntry struct {
	uid   uint32
	body  []byte
	flags mailindex.MessageFlag
}

// Maildir is a minimal maildir-flavored Backend fake: it keeps entries
// keyed by a synthetic "uid:<n>" base filename plus a maildir info
// suffix, enough to exercise flag-letter round-tripping without
// touching a real cur/new/tmp directory tree on disk.
type Maildir struct {
	mu      sync.Mutex
	nextUID uint32
	entries map[uint32]*maildirEntry
}

var _ Backend = (*Maildir)(nil)

// NewMaildir returns an empty Maildir fake.
func NewMaildir() *Maildir {
	return &Maildir{nextUID: 1, entries: make(map[uint32]*maildirEntry)}
}

// Filename returns the synthetic maildir-style filename uid currently
// has on "disk", for tests that want to assert on flag-letter encoding.
func (m *Maildir) Filename(uid uint32) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[uid]
	if !ok {
		return "", ErrNotFound
	}

	return fmt.Sprintf("uid:%d%s", uid, encodeInfo(e.flags)), nil
}

func (m *Maildir) Enumerate() ([]Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Message, 0, len(m.entries))
	for uid, e := range m.entries {
		out = append(out, Message{UID: uid, Flags: e.flags, Body: append([]byte(nil), e.body...)})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].UID < out[j].UID })

	return out, nil
}

func (m *Maildir) ReadByUID(uid uint32) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[uid]
	if !ok {
		return nil, ErrNotFound
	}

	return append([]byte(nil), e.body...), nil
}

func (m *Maildir) WriteMessage(body []byte, flags mailindex.MessageFlag) (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	uid := m.nextUID
	m.nextUID++

	m.entries[uid] = &maildirEntry{uid: uid, body: append([]byte(nil), body...), flags: flags}

	return uid, nil
}

func (m *Maildir) UpdateFlags(uid uint32, add, remove mailindex.MessageFlag) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[uid]
	if !ok {
		return ErrNotFound
	}

	// A real maildir rewrites the info suffix by renaming the file;
	// here the rename is implicit since Filename derives it from flags.
	e.flags = (e.flags &^ remove) | add

	return nil
}

func (m *Maildir) Expunge(uid uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entries[uid]; !ok {
		return ErrNotFound
	}

	delete(m.entries, uid)

	return nil
}
