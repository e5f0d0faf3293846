package view

import "github.com/dcvt/mindex/internal/bitset"

// Keywords is a mailbox's registry of keyword names to bitmap indices,
// the same index space the main index record's Keywords bitmap and the
// transaction log's KeywordUpdatePayload.KeywordIdx address into.
// An index freed with Free is handed out again by a later
// KeywordsCreate; every other index keeps its assignment as the registry
// grows, so a keyword bitmap written under an older registry stays valid
// as long as it has no bit set for a freed index.
type Keywords struct {
	names []string
	free  map[int]bool
}

// NewKeywords returns an empty registry.
func NewKeywords() *Keywords {
	return &Keywords{free: make(map[int]bool)}
}

// KeywordsCreate returns the index for name, registering it if it
// isn't already known. Freed indices are reused before the registry
// grows.
func (k *Keywords) KeywordsCreate(name string) int {
	for i, n := range k.names {
		if n == name && !k.free[i] {
			return i
		}
	}

	for i := range k.free {
		if k.free[i] {
			delete(k.free, i)
			k.names[i] = name
			return i
		}
	}

	k.names = append(k.names, name)
	return len(k.names) - 1
}

// Free releases idx back to the registry for reuse by a future
// KeywordsCreate call. idx must have no remaining set bits in any live
// record's bitmap; the caller (the sync engine, via a KeywordReset
// sweep) is responsible for that invariant.
func (k *Keywords) Free(idx int) error {
	if idx < 0 || idx >= len(k.names) {
		return ErrUnknownKeyword
	}
	if k.free[idx] {
		return ErrUnknownKeyword
	}

	k.free[idx] = true
	k.names[idx] = ""

	return nil
}

// Lookup returns the registered name for idx.
func (k *Keywords) Lookup(idx int) (string, error) {
	if idx < 0 || idx >= len(k.names) || k.free[idx] {
		return "", ErrUnknownKeyword
	}

	return k.names[idx], nil
}

// Names returns every set keyword name in buf, a KeywordsMaskSize-sized
// bitmap as stored in a mailindex.Record.
func (k *Keywords) Names(buf []byte) []string {
	var out []string

	for _, i := range bitset.Indices(buf, len(k.names)) {
		if !k.free[i] {
			out = append(out, k.names[i])
		}
	}

	return out
}
