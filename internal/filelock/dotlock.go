package filelock

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
	"time"

	mfs "github.com/dcvt/mindex/fs"
)

// dotLocker implements the dotlock protocol: create "<path>.lock" by
// linking a per-attempt temp file into place (link is atomic on POSIX,
// unlike create-with-O_EXCL on some network filesystems).
//
// Staleness is decided by three signals, checked on every retry:
//   - (a) the PID recorded in the lock file is no longer alive;
//   - (b) the lock file's mtime is older than ImmediateStaleTimeout;
//   - (c) the target file (the file being protected, not the lock file
//     itself) hasn't changed for StaleTimeout, i.e. the holder appears to
//     have stalled rather than merely being slow.
//
// On any positive signal the stale lock is unlinked and the attempt
// retried. Retries sleep a jittered 100-200ms.
//
// dotLocker has no notion of Shared locks: the dotlock protocol is always
// exclusive (it guards cooperative writers, not reader/writer fairness),
// so Kind is accepted for interface parity and Shared behaves identically
// to Exclusive.
type dotLocker struct {
	fsys                  mfs.FS
	pid                   int
	hostname              string
	immediateStaleTimeout time.Duration
	staleTimeout          time.Duration
	// The file whose mtime is consulted for signal (c) is always the lock
	// path with ".lock" trimmed (see trimLockSuffix).
	now func() time.Time
}

// DotlockOption configures a dotLocker.
type DotlockOption func(*dotLocker)

// WithStaleTimeouts overrides the default staleness thresholds, primarily
// for tests.
func WithStaleTimeouts(immediate, stale time.Duration) DotlockOption {
	return func(d *dotLocker) {
		d.immediateStaleTimeout = immediate
		d.staleTimeout = stale
	}
}

// WithClock overrides the time source, for deterministic tests.
func WithClock(now func() time.Time) DotlockOption {
	return func(d *dotLocker) { d.now = now }
}

// NewDotLocker returns a Locker implementing the link(tmp, path.lock)
// dotlock protocol.
func NewDotLocker(fsys mfs.FS, opts ...DotlockOption) Locker {
	hostname, _ := os.Hostname()

	d := &dotLocker{
		fsys:                  fsys,
		pid:                   os.Getpid(),
		hostname:              hostname,
		immediateStaleTimeout: 2 * time.Second,
		staleTimeout:          30 * time.Second,
		now:                   time.Now,
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

func (d *dotLocker) Acquire(path string, _ Kind, timeout time.Duration) (Handle, error) {
	var deadline time.Time
	if timeout > 0 {
		deadline = d.now().Add(timeout)
	}

	for {
		h, err := d.tryOnce(path)
		if err == nil {
			return h, nil
		}

		if !errors.Is(err, ErrWouldBlock) {
			return nil, err
		}

		if timeout == 0 {
			// Blocking mode (timeout==0 means "no deadline"): keep retrying.
		} else if d.now().After(deadline) {
			return nil, fmt.Errorf("filelock: dotlock timed out after %s: %w", timeout, ErrWouldBlock)
		}

		time.Sleep(100*time.Millisecond + time.Duration(rand.IntN(100))*time.Millisecond)
	}
}

func (d *dotLocker) TryAcquire(path string, _ Kind) (Handle, error) {
	return d.tryOnce(path)
}

// tryOnce makes one dotlock attempt: write a unique temp file, link it to
// path, and check staleness of any existing lock that blocked the link.
func (d *dotLocker) tryOnce(path string) (Handle, error) {
	tmp := fmt.Sprintf("%s.tmp.%s.%d.%d", path, d.hostname, d.pid, rand.Int64())

	content := []byte(strconv.Itoa(d.pid) + " " + d.hostname + "\n")

	f, err := d.fsys.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if mkErr := d.fsys.MkdirAll(filepath.Dir(path), 0o755); mkErr != nil {
				return nil, fmt.Errorf("filelock: mkdir: %w", mkErr)
			}

			f, err = d.fsys.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
		}

		if err != nil {
			return nil, fmt.Errorf("filelock: create dotlock temp: %w", err)
		}
	}

	if _, err := f.Write(content); err != nil {
		_ = f.Close()
		_ = d.fsys.Remove(tmp)

		return nil, fmt.Errorf("filelock: write dotlock temp: %w", err)
	}

	if err := f.Close(); err != nil {
		_ = d.fsys.Remove(tmp)
		return nil, fmt.Errorf("filelock: close dotlock temp: %w", err)
	}

	err = d.fsys.Link(tmp, path)
	if err == nil {
		return &dotHandle{fsys: d.fsys, path: path, tmp: tmp}, nil
	}

	if !errors.Is(err, os.ErrExist) {
		_ = d.fsys.Remove(tmp)
		return nil, fmt.Errorf("filelock: link dotlock: %w", err)
	}

	// Lock already exists. Decide staleness; if stale, unlink it and make
	// the link once more. A lock that is still held (or was re-taken by
	// someone else in between) yields ErrWouldBlock, keeping this attempt
	// uniform with flockLocker's polling contract.
	if d.isStale(path) {
		_ = d.fsys.Remove(path)

		if err := d.fsys.Link(tmp, path); err == nil {
			return &dotHandle{fsys: d.fsys, path: path, tmp: tmp}, nil
		}
	}

	_ = d.fsys.Remove(tmp)

	return nil, ErrWouldBlock
}

// isStale applies the three staleness signals. Any positive signal is
// enough to reclaim the lock.
func (d *dotLocker) isStale(path string) bool {
	info, err := d.fsys.Stat(path)
	if err != nil {
		// Lock vanished between the failed Link and this Stat (released
		// concurrently) - not stale, just gone; caller's next attempt will
		// succeed.
		return false
	}

	if d.now().Sub(info.ModTime()) > d.immediateStaleTimeout {
		return true
	}

	pid, ok := readLockPID(d.fsys, path)
	if ok && !pidAlive(pid) {
		return true
	}

	targetPath := trimLockSuffix(path)
	if targetInfo, err := d.fsys.Stat(targetPath); err == nil {
		if d.now().Sub(targetInfo.ModTime()) > d.staleTimeout &&
			d.now().Sub(info.ModTime()) > d.staleTimeout {
			return true
		}
	}

	return false
}

func trimLockSuffix(path string) string {
	const suffix = ".lock"
	if len(path) > len(suffix) && path[len(path)-len(suffix):] == suffix {
		return path[:len(path)-len(suffix)]
	}

	return path
}

func readLockPID(fsys mfs.FS, path string) (int, bool) {
	f, err := fsys.Open(path)
	if err != nil {
		return 0, false
	}
	defer func() { _ = f.Close() }()

	buf := make([]byte, 64)

	n, _ := f.Read(buf)

	var pid int
	_, scanErr := fmt.Sscanf(string(buf[:n]), "%d", &pid)

	return pid, scanErr == nil
}

// pidAlive reports whether pid appears to still be running, using
// signal-0 semantics (no signal delivered, just existence/permission
// checked). Always reports alive on lookup error other than
// "no such process" so transient failures don't cause wrongful reclaim.
func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	err = proc.Signal(syscallSignalZero())

	return err == nil || !errors.Is(err, os.ErrProcessDone)
}

type dotHandle struct {
	fsys mfs.FS
	path string
	tmp  string
}

func (h *dotHandle) Release() error {
	if h.path == "" {
		return nil
	}

	err := h.fsys.Remove(h.path)
	h.path = ""

	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("filelock: release dotlock: %w", err)
	}

	return nil
}

var _ Locker = (*dotLocker)(nil)
