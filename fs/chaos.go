package fs

import (
	"errors"
	"io"
	"math/rand/v2"
	"os"
	"sync"
)

// ChaosConfig controls fault injection probabilities for Chaos.
//
// Each rate is a float64 from 0.0 (never) to 1.0 (always). The zero value
// disables all injection.
type ChaosConfig struct {
	// WriteFailRate controls how often File.Write fails entirely with EIO.
	WriteFailRate float64

	// PartialWriteRate controls how often File.Write writes only a prefix
	// of the requested bytes and returns io.ErrShortWrite, simulating a
	// crash or ENOSPC mid-write. Checked only when WriteFailRate does not
	// already fire.
	PartialWriteRate float64

	// SyncFailRate controls how often File.Sync fails with EIO, simulating
	// a delayed write error surfacing at fsync time.
	SyncFailRate float64

	// ReadFailRate controls how often File.Read fails entirely with EIO.
	ReadFailRate float64

	// RenameFailRate controls how often FS.Rename fails with EIO, testing
	// that atomic-replace paths (index rewrite, cache compression) leave
	// on-disk state untouched on failure.
	RenameFailRate float64
}

// Chaos wraps an FS and injects faults according to Config, drawing its
// randomness from a PCG generator seeded in NewChaos. Tests construct
// Chaos with a fixed seed for reproducibility.
type Chaos struct {
	mu     sync.Mutex
	inner  FS
	Config ChaosConfig
	rand   *rand.Rand
}

// NewChaos wraps inner with fault injection seeded from seed, for
// reproducible test runs.
func NewChaos(inner FS, cfg ChaosConfig, seed uint64) *Chaos {
	return &Chaos{
		inner:  inner,
		Config: cfg,
		rand:   rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

func (c *Chaos) roll(rate float64) bool {
	if rate <= 0 {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	return c.rand.Float64() < rate
}

func (c *Chaos) Open(path string) (File, error) {
	f, err := c.inner.Open(path)
	if err != nil {
		return nil, err
	}

	return &chaosFile{inner: f, chaos: c}, nil
}

func (c *Chaos) OpenFile(path string, flag int, perm os.FileMode) (File, error) {
	f, err := c.inner.OpenFile(path, flag, perm)
	if err != nil {
		return nil, err
	}

	return &chaosFile{inner: f, chaos: c}, nil
}

func (c *Chaos) Stat(path string) (os.FileInfo, error)        { return c.inner.Stat(path) }
func (c *Chaos) MkdirAll(path string, perm os.FileMode) error { return c.inner.MkdirAll(path, perm) }
func (c *Chaos) Remove(path string) error                     { return c.inner.Remove(path) }
func (c *Chaos) Link(oldname, newname string) error           { return c.inner.Link(oldname, newname) }

func (c *Chaos) Rename(oldpath, newpath string) error {
	if c.roll(c.Config.RenameFailRate) {
		return &os.LinkError{Op: "rename", Old: oldpath, New: newpath, Err: errIO}
	}

	return c.inner.Rename(oldpath, newpath)
}

var errIO = errors.New("chaos: injected i/o error")

type chaosFile struct {
	inner File
	chaos *Chaos
}

func (f *chaosFile) Read(p []byte) (int, error) {
	if f.chaos.roll(f.chaos.Config.ReadFailRate) {
		return 0, errIO
	}

	return f.inner.Read(p)
}

func (f *chaosFile) Write(p []byte) (int, error) {
	if f.chaos.roll(f.chaos.Config.WriteFailRate) {
		return 0, errIO
	}

	if f.chaos.roll(f.chaos.Config.PartialWriteRate) && len(p) > 1 {
		n := 1 + f.chaos.rand.IntN(len(p)-1)

		written, err := f.inner.Write(p[:n])
		if err != nil {
			return written, err
		}

		return written, io.ErrShortWrite
	}

	return f.inner.Write(p)
}

func (f *chaosFile) Close() error { return f.inner.Close() }

func (f *chaosFile) Seek(offset int64, whence int) (int64, error) {
	return f.inner.Seek(offset, whence)
}

func (f *chaosFile) Fd() uintptr                { return f.inner.Fd() }
func (f *chaosFile) Stat() (os.FileInfo, error) { return f.inner.Stat() }
func (f *chaosFile) Truncate(size int64) error  { return f.inner.Truncate(size) }

func (f *chaosFile) Sync() error {
	if f.chaos.roll(f.chaos.Config.SyncFailRate) {
		return errIO
	}

	return f.inner.Sync()
}

var (
	_ FS   = (*Chaos)(nil)
	_ File = (*chaosFile)(nil)
)
