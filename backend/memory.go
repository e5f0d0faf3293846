package backend

import (
	"sync"

	"github.com/dcvt/mindex/mailindex"
)

var _ Backend = (*Memory)(nil)

type memMessage struct {
	flags    mailindex.MessageFlag
	keywords []byte
	body     []byte
}

// Memory is an in-memory Backend, useful for exercising the sync
// engine's fsck-from-backend path without touching disk.
type Memory struct {
	mu      sync.Mutex
	nextUID uint32
	byUID   map[uint32]*memMessage
}

// NewMemory returns an empty Memory backend.
func NewMemory() *Memory {
	return &Memory{nextUID: 1, byUID: make(map[uint32]*memMessage)}
}

func (m *Memory) Enumerate() ([]Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Message, 0, len(m.byUID))
	for uid, msg := range m.byUID {
		out = append(out, Message{
			UID:      uid,
			Flags:    msg.flags,
			Keywords: append([]byte(nil), msg.keywords...),
			Body:     append([]byte(nil), msg.body...),
		})
	}

	return out, nil
}

func (m *Memory) ReadByUID(uid uint32) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	msg, ok := m.byUID[uid]
	if !ok {
		return nil, ErrNotFound
	}

	return append([]byte(nil), msg.body...), nil
}

func (m *Memory) WriteMessage(body []byte, flags mailindex.MessageFlag) (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	uid := m.nextUID
	m.nextUID++

	m.byUID[uid] = &memMessage{flags: flags, body: append([]byte(nil), body...)}

	return uid, nil
}

func (m *Memory) UpdateFlags(uid uint32, add, remove mailindex.MessageFlag) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	msg, ok := m.byUID[uid]
	if !ok {
		return ErrNotFound
	}

	msg.flags = (msg.flags &^ remove) | add

	return nil
}

func (m *Memory) Expunge(uid uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byUID[uid]; !ok {
		return ErrNotFound
	}

	delete(m.byUID, uid)

	return nil
}
