// Package translog implements the transaction log: an append-only,
// variable-size record stream that is the sole source of durable truth
// for mailbox mutations until the sync engine folds it into the main
// index.
//
// Records are framed with an escaped-uint32 size prefix that doubles as
// a commit marker (see escaped.go), followed by a type byte, payload,
// and a CRC32-C trailer. Ten record types cover every mutation the
// index supports: append, expunge, flag/keyword updates and resets,
// header patches, and the four extension-data operations.
package translog
