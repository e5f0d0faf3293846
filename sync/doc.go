// Package sync is the engine that brings a main index up to date with
// its transaction log: Begin replays every log record since the
// index's last recorded tail offset directly onto the index's mmap'd
// (or heap) records, Next/TransactionLookup let a caller walk the
// records that were just applied (to tell an IMAP client what changed,
// say), and Commit persists the new tail offset and triggers cache
// compression and log rotation when the usual thresholds are crossed.
// Rollback discards the in-progress work without advancing the tail,
// so the same log records are replayed again on the next Begin.
//
// Fsck rebuilds an index from scratch by replaying the whole log over
// a fresh header, for when the index file itself (not just its tail
// position) can no longer be trusted.
package sync
