package filelock

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	mfs "github.com/dcvt/mindex/fs"
)

func TestFlockLocker_TryAcquire_ReturnsErrWouldBlock_WhenHeld(t *testing.T) {
	t.Parallel()

	locker := NewFlockLocker(mfs.NewReal())
	path := filepath.Join(t.TempDir(), "index.lock")

	h1, err := locker.TryAcquire(path, Exclusive)
	if err != nil {
		t.Fatalf("TryAcquire(1): %v", err)
	}
	defer func() { _ = h1.Release() }()

	h2, err := locker.TryAcquire(path, Exclusive)
	if !errors.Is(err, ErrWouldBlock) {
		t.Fatalf("TryAcquire(2): err=%v, want ErrWouldBlock", err)
	}
	if h2 != nil {
		t.Fatalf("TryAcquire(2): want nil handle, got %v", h2)
	}

	if err := h1.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}

	h3, err := locker.TryAcquire(path, Exclusive)
	if err != nil {
		t.Fatalf("TryAcquire(3) after release: %v", err)
	}
	_ = h3.Release()
}

func TestFlockLocker_Shared_AllowsMultipleReaders(t *testing.T) {
	t.Parallel()

	locker := NewFlockLocker(mfs.NewReal())
	path := filepath.Join(t.TempDir(), "index.lock")

	h1, err := locker.TryAcquire(path, Shared)
	if err != nil {
		t.Fatalf("TryAcquire(shared 1): %v", err)
	}
	defer func() { _ = h1.Release() }()

	h2, err := locker.TryAcquire(path, Shared)
	if err != nil {
		t.Fatalf("TryAcquire(shared 2): %v", err)
	}
	defer func() { _ = h2.Release() }()

	if _, err := locker.TryAcquire(path, Exclusive); !errors.Is(err, ErrWouldBlock) {
		t.Fatalf("TryAcquire(exclusive) while shared held: err=%v, want ErrWouldBlock", err)
	}
}

func TestFlockLocker_AcquireWithTimeout_TimesOut(t *testing.T) {
	t.Parallel()

	locker := NewFlockLocker(mfs.NewReal())
	path := filepath.Join(t.TempDir(), "index.lock")

	h1, err := locker.TryAcquire(path, Exclusive)
	if err != nil {
		t.Fatalf("TryAcquire: %v", err)
	}
	defer func() { _ = h1.Release() }()

	start := time.Now()

	_, err = locker.Acquire(path, Exclusive, 50*time.Millisecond)
	if !errors.Is(err, ErrWouldBlock) {
		t.Fatalf("Acquire with timeout: err=%v, want ErrWouldBlock", err)
	}

	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Fatalf("Acquire returned too early: %s", elapsed)
	}
}

func TestDotLocker_StaleLock_IsReclaimed(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "dovecot-uidlist.lock")

	fixed := time.Now()
	locker := NewDotLocker(mfs.NewReal(),
		WithStaleTimeouts(10*time.Millisecond, time.Hour),
		WithClock(func() time.Time { return fixed }),
	)

	h1, err := locker.TryAcquire(path, Exclusive)
	if err != nil {
		t.Fatalf("TryAcquire(1): %v", err)
	}

	// Don't release h1: simulate an abandoned lock. Advance the fake clock
	// past immediateStaleTimeout so the next attempt reclaims it.
	fixed = fixed.Add(time.Second)

	h2, err := locker.TryAcquire(path, Exclusive)
	if err != nil {
		t.Fatalf("TryAcquire(2) after staleness window: %v", err)
	}

	_ = h1.Release()
	_ = h2.Release()
}

func TestDotLocker_FreshLock_IsNotReclaimed(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "dovecot-uidlist.lock")

	locker := NewDotLocker(mfs.NewReal(), WithStaleTimeouts(time.Hour, time.Hour))

	h1, err := locker.TryAcquire(path, Exclusive)
	if err != nil {
		t.Fatalf("TryAcquire(1): %v", err)
	}
	defer func() { _ = h1.Release() }()

	if _, err := locker.TryAcquire(path, Exclusive); !errors.Is(err, ErrWouldBlock) {
		t.Fatalf("TryAcquire(2) on fresh lock: err=%v, want ErrWouldBlock", err)
	}
}
