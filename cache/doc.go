// Package cache implements the per-UID field cache: a log-structured
// companion file that stores expensive-to-recompute or expensive-to-fetch
// message metadata (parsed headers, body structure, envelope fields, and
// so on) keyed by UID, so a backend doesn't have to refetch or reparse
// the message to answer the same question twice.
//
// The file is a header (format version, paired index_id, and a field
// name table so Registry indices survive a reopen) followed by a stream
// of Chunk and Hole records. A Chunk holds one or more field values for
// a single UID; a UID whose fields were written in more than one pass
// has its chunks linked via NextOffset, oldest values further down the
// chain. Transaction.Commit flattens a UID's chain into one fresh chunk
// on every commit and turns the chunk(s) it replaces into Holes, which
// Compress later reclaims by rewriting the file with only live chunks.
//
// A Registry tracks, per field, whether it's worth caching at all
// (Decision: No/Temp/Yes/Forced) based on access patterns, mirroring the
// idea that caching something nobody reads wastes space.
package cache
