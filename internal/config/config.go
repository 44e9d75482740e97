// Package config loads evstore's YAML configuration file.
//
// Every field is optional; missing fields keep their defaults:
//
//	storage:
//	  backend: sqlite       # sqlite | fs | bolt
//	  base_dir: .evstore-data
//	  sync: full            # full | normal | off
//	  lock_timeout: 0s      # 0 fails fast on a held lock
//	  max_batch: 512
//	document:
//	  schema: ""            # CUE file; empty uses the embedded uiState schema
//	  name: uiState
//	logging:
//	  level: info           # debug | info | warn | error
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/evstore/internal/schema"
	"github.com/roach88/evstore/internal/storage"
)

// StorageConfig holds backend selection and tuning.
type StorageConfig struct {
	Backend     string `yaml:"backend"`
	BaseDir     string `yaml:"base_dir"`
	Sync        string `yaml:"sync"`
	LockTimeout string `yaml:"lock_timeout"`
	MaxBatch    int    `yaml:"max_batch"`
}

// DocumentConfig selects the client document schema.
type DocumentConfig struct {
	Schema string `yaml:"schema"`
	Name   string `yaml:"name"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Config is the top-level configuration.
type Config struct {
	Storage  StorageConfig  `yaml:"storage"`
	Document DocumentConfig `yaml:"document"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Storage: StorageConfig{
			Backend:     storage.DefaultBackend,
			BaseDir:     storage.DefaultBaseDir,
			Sync:        string(storage.SyncFull),
			LockTimeout: "0s",
			MaxBatch:    storage.DefaultMaxBatch,
		},
		Document: DocumentConfig{
			Name: schema.DefaultDocument,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from r over the defaults. A nil reader or empty
// input yields the defaults.
func Load(r io.Reader) (*Config, error) {
	cfg := Default()
	if r == nil {
		return cfg, nil
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read config data: %w", err)
	}
	if len(data) == 0 {
		return cfg, nil
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile reads configuration from path. An empty path yields the defaults.
func LoadFile(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file %s: %w", path, err)
	}
	defer file.Close()

	return Load(file)
}

// Validate checks values that the storage and schema layers would reject
// later with a less specific error.
func (c *Config) Validate() error {
	if _, err := c.lockTimeout(); err != nil {
		return err
	}
	if c.Storage.MaxBatch < 0 {
		return fmt.Errorf("config: storage.max_batch must not be negative")
	}
	if _, err := ParseLevel(c.Logging.Level); err != nil {
		return err
	}
	if err := c.storage(nil).Validate(); err != nil {
		return fmt.Errorf("config: storage: %w", err)
	}
	return nil
}

func (c *Config) lockTimeout() (time.Duration, error) {
	if c.Storage.LockTimeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Storage.LockTimeout)
	if err != nil {
		return 0, fmt.Errorf("config: storage.lock_timeout: %w", err)
	}
	return d, nil
}

func (c *Config) storage(logger *slog.Logger) storage.Config {
	timeout, _ := c.lockTimeout()
	return storage.Config{
		Backend:     c.Storage.Backend,
		BaseDir:     c.Storage.BaseDir,
		Sync:        storage.SyncMode(c.Storage.Sync),
		LockTimeout: timeout,
		MaxBatch:    c.Storage.MaxBatch,
		Logger:      logger,
	}
}

// ToStorage maps the file to a storage.Config. Call Validate first.
func (c *Config) ToStorage(logger *slog.Logger) storage.Config {
	return c.storage(logger)
}

// LoadSchema compiles the configured document schema.
func (c *Config) LoadSchema() (*schema.Schema, error) {
	name := c.Document.Name
	if name == "" {
		name = schema.DefaultDocument
	}
	if c.Document.Schema == "" {
		if name != schema.DefaultDocument {
			return nil, fmt.Errorf("config: document %q needs a schema file", name)
		}
		return schema.Default(), nil
	}
	return schema.Load(c.Document.Schema, name)
}

// ParseLevel maps a level name to a slog.Level. Empty means info.
func ParseLevel(level string) (slog.Level, error) {
	var l slog.Level
	if level == "" {
		return slog.LevelInfo, nil
	}
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return 0, fmt.Errorf("config: logging.level: %w", err)
	}
	return l, nil
}
