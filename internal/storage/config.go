package storage

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"time"
)

// SyncMode selects how hard a backend pushes each batch to stable storage.
type SyncMode string

const (
	// SyncFull fsyncs (or uses synchronous=FULL) on every batch.
	SyncFull SyncMode = "full"
	// SyncNormal relies on the backend's normal durability. For sqlite this is
	// synchronous=NORMAL under WAL: safe against process exit, not power loss.
	SyncNormal SyncMode = "normal"
	// SyncOff never forces a flush. Tests and benchmarks only.
	SyncOff SyncMode = "off"
)

// DefaultBackend is used when Config.Backend is empty.
const DefaultBackend = "sqlite"

// DefaultBaseDir is used when Config.BaseDir is empty.
const DefaultBaseDir = ".evstore-data"

// Config selects and tunes the backend for a store.
type Config struct {
	// Backend is the registered kind: "sqlite", "fs" or "bolt".
	Backend string

	// BaseDir is the directory holding every store's files.
	BaseDir string

	// Sync is the durability mode. Default: SyncFull.
	Sync SyncMode

	// ReadOnly opens without the lock file and refuses appends. A store
	// that does not exist yet reads as empty and is not created.
	ReadOnly bool

	// LockTimeout bounds how long Open waits for the lock. Zero fails fast,
	// which is the contract for the single-writer rule.
	LockTimeout time.Duration

	// MaxBatch caps the records per group commit. Default: 512.
	MaxBatch int

	// Logger receives storage diagnostics. Default: slog.Default().
	Logger *slog.Logger
}

// DefaultMaxBatch is the group-commit cap used when Config.MaxBatch is zero.
const DefaultMaxBatch = 512

// withDefaults returns a copy of c with zero fields filled in.
func (c Config) withDefaults() Config {
	if c.Backend == "" {
		c.Backend = DefaultBackend
	}
	if c.BaseDir == "" {
		c.BaseDir = DefaultBaseDir
	}
	if c.Sync == "" {
		c.Sync = SyncFull
	}
	if c.MaxBatch <= 0 {
		c.MaxBatch = DefaultMaxBatch
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Validate checks field values without filling defaults.
func (c Config) Validate() error {
	switch c.Sync {
	case "", SyncFull, SyncNormal, SyncOff:
	default:
		return fmt.Errorf("invalid sync mode %q: must be one of full, normal, off", c.Sync)
	}
	if c.LockTimeout < 0 {
		return fmt.Errorf("lock timeout must not be negative")
	}
	if c.Backend != "" && !Registered(c.Backend) {
		return fmt.Errorf("unknown backend %q (registered: %v)", c.Backend, Kinds())
	}
	return nil
}

// Path returns the file for storeID with the given extension under BaseDir.
func (c Config) Path(storeID, ext string) string {
	base := c.BaseDir
	if base == "" {
		base = DefaultBaseDir
	}
	return filepath.Join(base, storeID+ext)
}

var storeIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// ValidateStoreID checks that id can safely name a file.
func ValidateStoreID(id string) error {
	if !storeIDPattern.MatchString(id) {
		return fmt.Errorf("invalid store id %q: must match %s", id, storeIDPattern.String())
	}
	return nil
}
