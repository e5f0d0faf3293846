// Package backend defines the small interface the sync engine's Fsck
// falls back to when a mailbox's transaction log can't be trusted: an
// enumerate/read/write/flag/expunge surface any concrete mail store
// (maildir, dbox, a remote IMAP backend) implements, so a fresh index
// can be rebuilt from whatever the backend currently holds. This
// package ships two fakes — an in-memory store and a minimal
// maildir-flavored one — for tests; it is not a mail storage format
// implementation.
package backend
