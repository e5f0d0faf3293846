// Package nfspolicy bundles the handful of behaviors an index/log/cache
// file needs only when the directory holding it might be NFS-mounted:
// retrying a stale file handle (ESTALE), flushing the client's
// attribute cache before trusting a staleness decision, and detecting
// that a file was replaced out from under an open descriptor. A no-op
// NoopPolicy is the default everywhere; StrictPolicy opts a deployment
// into the extra round trips.
package nfspolicy
