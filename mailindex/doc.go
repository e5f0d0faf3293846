// Package mailindex implements the main index file: the authoritative,
// fixed-stride table of message records ordered by ascending UID.
//
// A Map owns a read-side view of the index file - either an mmap region
// or a heap copy - plus the parsed Header and a typed Records array.
// Mutation happens only through the sync engine (package sync), which
// replays the transaction log into a Map and, periodically, rewrites the
// index file from scratch.
package mailindex
