// Package config bundles the small set of options lib-index components
// take as explicit constructor arguments instead of reading off package
// globals: environment-derived mailbox placement, the sync engine's log
// rotation and cache compression thresholds, and whether the backing
// filesystem needs NFS-safe behavior.
package config

import (
	"time"

	"github.com/dcvt/mindex/internal/nfspolicy"
)

// Env carries the resolved values of the environment variables mailbox
// setup keys off of. It is populated once at the process edge (Load) and
// threaded down explicitly; core packages never call os.Getenv.
type Env struct {
	Mail         string // $MAIL
	MailLocation string // $MAIL_LOCATION
	User         string // $USER
	Home         string // $HOME
	MailPlugins  string // $MAIL_PLUGINS
	Debug        bool   // $DEBUG set to a non-empty value
}

// Config is the full set of options a mailbox session is opened with.
type Config struct {
	Env Env

	// RotateThreshold is the transaction log size, in bytes, past which
	// the sync engine rotates to a fresh log file on its next commit.
	RotateThreshold int64

	// CompressThreshold is the fraction of a cache file's bytes that are
	// dead at which the file is due for compression. cache.Stats.
	// ShouldCompress does not read this field; it applies its own
	// cache.CompressThreshold constant (also 0.5) to dead/(live+dead).
	CompressThreshold float64

	// LockTimeout bounds how long a blocking lock acquisition waits
	// before giving up with filelock.ErrWouldBlock.
	LockTimeout time.Duration

	// NFS selects the NFS-safe filesystem policy (ESTALE retry, attribute
	// cache flushing, inode-based SameFile) over the local-disk no-op.
	NFS bool
}

// Default returns the conservative values most callers use: a 1 MiB log
// rotation threshold, 50% dead-byte compression threshold, a 30 second
// lock timeout, and no NFS accommodations.
func Default() Config {
	return Config{
		RotateThreshold:   1 << 20,
		CompressThreshold: 0.5,
		LockTimeout:       30 * time.Second,
	}
}

// Load resolves Env by calling getenv for each of the recognized
// variables (os.Getenv in production, a stub map lookup in tests),
// leaving every other field at its Default.
func Load(getenv func(string) string) Config {
	cfg := Default()
	cfg.Env = Env{
		Mail:         getenv("MAIL"),
		MailLocation: getenv("MAIL_LOCATION"),
		User:         getenv("USER"),
		Home:         getenv("HOME"),
		MailPlugins:  getenv("MAIL_PLUGINS"),
		Debug:        getenv("DEBUG") != "",
	}
	return cfg
}

// Policy returns the NFS policy this Config selects.
func (c Config) Policy() nfspolicy.Policy {
	if c.NFS {
		return nfspolicy.StrictPolicy{}
	}
	return nfspolicy.NoopPolicy{}
}
