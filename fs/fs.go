// Package fs provides the filesystem seam every on-disk component of
// mindex is built against.
//
// Index maps, transaction logs and cache files never call os.* directly;
// they take an FS so tests can exercise torn writes, ENOSPC, and partial
// renames deterministically instead of hoping the real filesystem
// misbehaves on cue.
package fs

import (
	"io"
	"os"
)

// File is an open OS-backed file descriptor.
//
// Implementations must behave like *os.File, in particular Fd must return
// a descriptor usable with syscalls such as unix.Flock and unix.Mmap for
// as long as the file remains open.
//
// Implementations must be safe for concurrent use by multiple goroutines.
type File interface {
	io.ReadWriteCloser
	io.Seeker

	// Fd returns the OS file descriptor. See os.File.Fd.
	Fd() uintptr

	// Stat returns file metadata. See os.File.Stat.
	Stat() (os.FileInfo, error)

	// Sync commits the file's in-core state to stable storage. See os.File.Sync.
	Sync() error

	// Truncate changes the file size. See os.File.Truncate.
	Truncate(size int64) error
}

// FS defines filesystem operations needed by mindex's on-disk components.
//
// All methods mirror their os package equivalents. Paths use OS semantics,
// not the slash-separated paths of io/fs.
//
// Implementations must be safe for concurrent use by multiple goroutines.
type FS interface {
	// Open opens a file for reading. See os.Open.
	Open(path string) (File, error)

	// OpenFile opens a file with explicit flags and permissions. See os.OpenFile.
	OpenFile(path string, flag int, perm os.FileMode) (File, error)

	// Stat returns file metadata. See os.Stat. Returns os.ErrNotExist if
	// the file does not exist.
	Stat(path string) (os.FileInfo, error)

	// MkdirAll creates a directory and all necessary parents. See os.MkdirAll.
	MkdirAll(path string, perm os.FileMode) error

	// Remove deletes a single file. See os.Remove.
	Remove(path string) error

	// Rename atomically replaces newpath with oldpath on the same filesystem.
	// See os.Rename.
	Rename(oldpath, newpath string) error

	// Link creates newname as a hard link to oldname. See os.Link.
	// Used by the dotlock protocol, which depends on link(2) being atomic.
	Link(oldname, newname string) error
}

var _ File = (*os.File)(nil)
