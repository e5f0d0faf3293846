// Package filelock implements the two cross-process locking primitives
// used to guard the index, log and cache files: fcntl/flock byte-range
// advisory locks, and dotlock files for cases where flock is unsafe or
// insufficient (NFS, cross-process subscription/ACL writes).
//
// Both backends satisfy Locker, so translog and cache callers are
// agnostic to which one guards a given path.
package filelock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	mfs "github.com/dcvt/mindex/fs"
)

// Sentinel errors returned by Locker implementations.
var (
	// ErrWouldBlock is returned by non-blocking acquisition attempts when
	// the lock is already held, and by timed acquisition when the timeout
	// expires. Callers should treat this as transient and surface it as
	// "mailbox busy" rather than corruption.
	ErrWouldBlock = errors.New("filelock: would block")

	// ErrInvalidTimeout is not returned by either Locker in this package:
	// Acquire treats a zero timeout as "block indefinitely" and a negative
	// one as a single attempt.
	ErrInvalidTimeout = errors.New("filelock: invalid timeout")
)

// DefaultFcntlTimeout and DefaultDotlockTimeout are the default wait
// budgets before giving up on an fcntl lock or a dotlock respectively.
const (
	DefaultFcntlTimeout   = 60 * time.Second
	DefaultDotlockTimeout = 120 * time.Second
)

// Kind selects which lock mode to acquire.
type Kind int

const (
	// Shared allows concurrent readers; excludes Exclusive holders.
	Shared Kind = iota
	// Exclusive excludes all other Shared or Exclusive holders.
	Exclusive
)

// Handle represents a held lock. Release it exactly once.
type Handle interface {
	// Release releases the lock. Idempotent.
	Release() error
}

// Locker acquires and releases locks on a path.
type Locker interface {
	// Acquire blocks (up to timeout, if > 0) until the lock is held, or
	// returns ErrWouldBlock. timeout == 0 means block indefinitely.
	Acquire(path string, kind Kind, timeout time.Duration) (Handle, error)

	// TryAcquire attempts to acquire the lock without blocking.
	TryAcquire(path string, kind Kind) (Handle, error)
}

// flockLocker implements Locker with fcntl/flock byte-range locks on the
// whole file: concurrent readers share, writers are exclusive,
// acquisition blocks up to a timeout, and a timed-out caller gets
// ErrWouldBlock.
//
// It verifies the locked file still matches the inode currently at path
// (a lock file can be renamed/recreated out from under a waiting
// acquirer) and retries flock on EINTR rather than treating it as
// failure.
type flockLocker struct {
	fsys mfs.FS
}

// NewFlockLocker returns a Locker backed by flock(2) byte-range locks,
// using fsys for all file operations.
func NewFlockLocker(fsys mfs.FS) Locker {
	return &flockLocker{fsys: fsys}
}

type flockHandle struct {
	mu   sync.Mutex
	file mfs.File
}

func (h *flockHandle) Release() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.file == nil {
		return nil
	}

	fd := int(h.file.Fd())
	unlockErr := flockRetryEINTR(fd, unix.LOCK_UN)
	closeErr := h.file.Close()
	h.file = nil

	if unlockErr != nil {
		return fmt.Errorf("filelock: unlock: %w", unlockErr)
	}

	if closeErr != nil {
		return fmt.Errorf("filelock: close: %w", closeErr)
	}

	return nil
}

func (l *flockLocker) Acquire(path string, kind Kind, timeout time.Duration) (Handle, error) {
	if timeout == 0 {
		return l.lockBlocking(path, kind)
	}

	return l.lockPolling(path, kind, timeout)
}

func (l *flockLocker) TryAcquire(path string, kind Kind) (Handle, error) {
	h, err := l.lockPolling(path, kind, -1)
	if err != nil {
		return nil, err
	}

	return h, nil
}

func (l *flockLocker) lockBlocking(path string, kind Kind) (Handle, error) {
	for {
		file, err := l.openLockFile(path, kind)
		if err != nil {
			return nil, fmt.Errorf("filelock: open: %w", err)
		}

		err = l.acquire(file, path, kind, false)
		if err == nil {
			return &flockHandle{file: file}, nil
		}

		_ = file.Close()

		if errors.Is(err, errInodeMismatch) {
			continue
		}

		return nil, err
	}
}

// lockPolling attempts non-blocking acquisition with backoff.
// timeout < 0 means try exactly once (TryAcquire behavior).
func (l *flockLocker) lockPolling(path string, kind Kind, timeout time.Duration) (Handle, error) {
	var deadline time.Time

	single := timeout < 0
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	backoff := time.Millisecond

	for {
		file, err := l.openLockFile(path, kind)
		if err != nil {
			return nil, fmt.Errorf("filelock: open: %w", err)
		}

		err = l.acquire(file, path, kind, true)
		if err == nil {
			return &flockHandle{file: file}, nil
		}

		_ = file.Close()

		retryable := errors.Is(err, ErrWouldBlock) || errors.Is(err, errInodeMismatch)
		if !retryable {
			return nil, err
		}

		if single {
			return nil, ErrWouldBlock
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, fmt.Errorf("filelock: timed out after %s: %w", timeout, ErrWouldBlock)
		}

		sleep := backoff
		if sleep > remaining {
			sleep = remaining
		}

		time.Sleep(sleep)

		if backoff < 25*time.Millisecond {
			backoff *= 2
			if backoff > 25*time.Millisecond {
				backoff = 25 * time.Millisecond
			}
		}
	}
}

var errInodeMismatch = errors.New("filelock: lock file replaced during acquisition")

const (
	lockFilePerm = 0o600
	lockDirPerm  = 0o755
)

func (l *flockLocker) openLockFile(path string, kind Kind) (mfs.File, error) {
	flag := os.O_RDWR
	if kind == Shared {
		flag = os.O_RDONLY
	}

	f, err := l.fsys.OpenFile(path, flag|os.O_CREATE, lockFilePerm)
	if err == nil || !errors.Is(err, os.ErrNotExist) {
		return f, err
	}

	if err := l.fsys.MkdirAll(filepath.Dir(path), lockDirPerm); err != nil {
		return nil, err
	}

	return l.fsys.OpenFile(path, flag|os.O_CREATE, lockFilePerm)
}

// acquire flocks file and verifies it still refers to the inode currently
// at path (flock locks inodes, not pathnames, so a concurrent
// rename/recreate of the lock file could otherwise let two callers believe
// they both hold "the" lock on different inodes).
func (l *flockLocker) acquire(file mfs.File, path string, kind Kind, nonBlocking bool) error {
	fd := int(file.Fd())

	how := unix.LOCK_EX
	if kind == Shared {
		how = unix.LOCK_SH
	}

	if nonBlocking {
		how |= unix.LOCK_NB
	}

	if err := flockRetryEINTR(fd, how); err != nil {
		if errors.Is(err, unix.EWOULDBLOCK) || errors.Is(err, unix.EAGAIN) {
			return ErrWouldBlock
		}

		return err
	}

	match, err := l.inodeMatchesPath(path, file)
	if err != nil {
		_ = flockRetryEINTR(fd, unix.LOCK_UN)

		if errors.Is(err, os.ErrNotExist) {
			return errInodeMismatch
		}

		return fmt.Errorf("filelock: verify inode: %w", err)
	}

	if !match {
		_ = flockRetryEINTR(fd, unix.LOCK_UN)
		return errInodeMismatch
	}

	return nil
}

func (l *flockLocker) inodeMatchesPath(path string, f mfs.File) (bool, error) {
	openInfo, err := f.Stat()
	if err != nil {
		return false, err
	}

	openSys, ok := openInfo.Sys().(*unix.Stat_t)
	if !ok || openSys == nil {
		return false, fmt.Errorf("file.Stat Sys=%T, want *unix.Stat_t", openInfo.Sys())
	}

	pathInfo, err := l.fsys.Stat(path)
	if err != nil {
		return false, err
	}

	pathSys, ok := pathInfo.Sys().(*unix.Stat_t)
	if !ok || pathSys == nil {
		return false, fmt.Errorf("fs.Stat Sys=%T, want *unix.Stat_t", pathInfo.Sys())
	}

	return openSys.Dev == pathSys.Dev && openSys.Ino == pathSys.Ino, nil
}

// flockRetryEINTR retries flock on EINTR, which means a signal interrupted
// the syscall before it completed, not that the lock attempt failed.
func flockRetryEINTR(fd int, how int) error {
	const maxEINTRRetries = 10000

	var err error

	for range maxEINTRRetries {
		err = unix.Flock(fd, how)
		if err == nil || !errors.Is(err, unix.EINTR) {
			return err
		}
	}

	return err
}

var _ Locker = (*flockLocker)(nil)
