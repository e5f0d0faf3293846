// Package view is the public read/write surface over a mailbox index:
// View is anchored at a specific (index, log sequence, log offset)
// triple and reads the index map live (it is not a snapshot), and
// Transaction buffers a batch of
// appends, expunges, flag/keyword/extension/header changes and commits
// them as a run of transaction-log records in one pass. TransactionView
// overlays a Transaction's still-uncommitted buffers on top of its base
// View so a caller can see its own pending appends and flag changes
// before they're durable.
package view
