// Package config loads the import settings file.
//
// Settings are read exactly once at process startup and treated as
// immutable for the process lifetime. There is no mid-run re-read: a
// scheduler tick always operates on the configuration it was built with.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvConfigPath, when set, overrides the --config flag default.
const EnvConfigPath = "SFIMPORT_CONFIG"

// DefaultLockName is the named lock serializing import runs.
const DefaultLockName = "sf_import"

// DefaultLockTTL caps how long a single run may hold the import lock.
// A run exceeding this can overlap with the next tick; see internal/lock.
const DefaultLockTTL = 20 * time.Minute

// DefaultGroup is the migration group processed by the importer.
const DefaultGroup = "sf"

// Settings is the complete import configuration.
type Settings struct {
	// Enabled gates the whole importer. When false every run is a no-op.
	Enabled bool `yaml:"enabled"`

	// Group is the migration group identifier all operations target.
	Group string `yaml:"group"`

	// SourceRoot is the directory the fetcher drops batch directories into.
	SourceRoot string `yaml:"source_root"`

	// StagingPath is the flat directory the transform engine reads from.
	StagingPath string `yaml:"staging_path"`

	// Database is the path to the migration registry SQLite database.
	Database string `yaml:"database"`

	// Schema is an optional CUE schema path. When set, every JSON file in
	// a batch is validated against it before staging.
	Schema string `yaml:"schema,omitempty"`

	Backup BackupSettings `yaml:"backup"`
	Lock   LockSettings   `yaml:"lock"`
	Engine EngineSettings `yaml:"engine"`
}

// BackupSettings controls post-import archival of batch directories.
type BackupSettings struct {
	// Enabled selects archival over deletion after a successful import.
	Enabled bool `yaml:"enabled"`

	// Root is the directory archived batches are moved under.
	Root string `yaml:"root"`

	// Limit caps how many backups are retained; oldest are pruned first.
	// Zero or negative means unlimited.
	Limit int `yaml:"limit"`
}

// LockSettings configures the single-flight import lock.
type LockSettings struct {
	// Name is the lock key. All instances sharing a backend must agree on it.
	Name string `yaml:"name"`

	// TTL is the maximum lock hold time.
	TTL Duration `yaml:"ttl"`

	// RedisURL selects the distributed Redis backend when non-empty
	// (e.g. "redis://localhost:6379/0"). Empty means in-process locking,
	// which only serializes ticks within one process.
	RedisURL string `yaml:"redis_url,omitempty"`
}

// EngineSettings configures the external transform engine invocation.
type EngineSettings struct {
	// Command is the argv of the synchronous import trigger. The staged
	// path and group are passed via SFIMPORT_STAGING / SFIMPORT_GROUP.
	Command []string `yaml:"command"`
}

// Duration wraps time.Duration with YAML decoding from strings like "20m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Default returns settings with all defaults applied and the importer
// disabled. Loading a file starts from this value, so omitted keys keep
// their defaults.
func Default() Settings {
	return Settings{
		Group: DefaultGroup,
		Lock: LockSettings{
			Name: DefaultLockName,
			TTL:  Duration(DefaultLockTTL),
		},
	}
}

// Load reads and validates a settings file.
func Load(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("read settings: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Settings{}, fmt.Errorf("parse settings: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Settings{}, err
	}
	return cfg, nil
}

// Validate checks invariants that hold regardless of the Enabled flag
// being true, plus the paths required for an enabled importer.
func (s Settings) Validate() error {
	if s.Group == "" {
		return fmt.Errorf("settings: group must not be empty")
	}
	if s.Lock.Name == "" {
		return fmt.Errorf("settings: lock.name must not be empty")
	}
	if s.Lock.TTL <= 0 {
		return fmt.Errorf("settings: lock.ttl must be positive")
	}
	if !s.Enabled {
		return nil
	}
	if s.SourceRoot == "" {
		return fmt.Errorf("settings: source_root is required when enabled")
	}
	if s.StagingPath == "" {
		return fmt.Errorf("settings: staging_path is required when enabled")
	}
	if s.Database == "" {
		return fmt.Errorf("settings: database is required when enabled")
	}
	if s.Backup.Enabled && s.Backup.Root == "" {
		return fmt.Errorf("settings: backup.root is required when backup.enabled")
	}
	return nil
}
