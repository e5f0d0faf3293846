package nfspolicy

import (
	"errors"
	"os"
	"syscall"
	"time"

	mfs "github.com/dcvt/mindex/fs"
)

// maxStaleRetries bounds how many times RetryStale re-runs fn after
// ESTALE before giving up, mirroring the capped-retry shape of the
// flock EINTR retry used one layer down in internal/filelock.
const maxStaleRetries = 10

// Policy is the seam components that touch a possibly-NFS-mounted path
// call through for the behaviors plain local disk never needs.
type Policy interface {
	// RetryStale runs fn, retrying with a capped exponential backoff as
	// long as fn fails with ESTALE.
	RetryStale(fn func() error) error

	// FlushAttrCache signals that path's cached attributes should not be
	// trusted for an upcoming staleness decision (e.g. "has this file
	// been rewritten since I last looked at it").
	FlushAttrCache(fsys mfs.FS, path string) error

	// SameFile reports whether before and after describe the same
	// underlying file (inode unchanged across a reopen), used to detect
	// "this path was replaced while I was mid-operation."
	SameFile(before, after os.FileInfo) bool
}

// NoopPolicy is the default: no retries, no extra stat calls, and
// SameFile always succeeds. Appropriate for local disk, where none of
// NFS's failure modes apply.
type NoopPolicy struct{}

func (NoopPolicy) RetryStale(fn func() error) error                  { return fn() }
func (NoopPolicy) FlushAttrCache(_ mfs.FS, _ string) error            { return nil }
func (NoopPolicy) SameFile(_, _ os.FileInfo) bool                     { return true }

// StrictPolicy implements the full NFS-safety behavior: ESTALE retry
// with backoff, an explicit re-stat to flush the client's attribute
// cache before a staleness decision, and inode-based SameFile checks.
type StrictPolicy struct{}

func (StrictPolicy) RetryStale(fn func() error) error {
	backoff := time.Millisecond

	var err error
	for range maxStaleRetries {
		err = fn()
		if err == nil || !errors.Is(err, syscall.ESTALE) {
			return err
		}

		time.Sleep(backoff)
		if backoff < 25*time.Millisecond {
			backoff *= 2
			if backoff > 25*time.Millisecond {
				backoff = 25 * time.Millisecond
			}
		}
	}

	return err
}

// FlushAttrCache re-stats path. NFS clients attach a short-lived
// attribute cache to each inode; a fresh stat call is the only portable
// way to force the client to ask the server again before trusting
// mtime/size for a staleness decision.
func (StrictPolicy) FlushAttrCache(fsys mfs.FS, path string) error {
	_, err := fsys.Stat(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	return nil
}

// SameFile compares device and inode numbers, falling back to size+mtime
// when the platform's FileInfo doesn't expose a *syscall.Stat_t (the
// heap-backed fs.FS used by tests, for one).
func (StrictPolicy) SameFile(before, after os.FileInfo) bool {
	bs, bok := before.Sys().(*syscall.Stat_t)
	as, aok := after.Sys().(*syscall.Stat_t)

	if bok && aok {
		return bs.Dev == as.Dev && bs.Ino == as.Ino
	}

	return before.Size() == after.Size() && before.ModTime().Equal(after.ModTime())
}
