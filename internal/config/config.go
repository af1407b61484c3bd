// Package config loads engine configuration from a YAML file with
// environment variable overrides. Every field has a working default so a
// zero-configuration start is always valid.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/AgenticGames/miningspice/pkg/domain"
)

// Environment variables override file values:
//
//	MININGSPICE_CONFIG: config file path (default miningspice.yaml)
//	MININGSPICE_LOG_LEVEL: debug|info|warn|error
//	MININGSPICE_SCHED_WORKERS: worker count (default NumCPU)
//	MININGSPICE_SNAPSHOT_DRIVER: memory|fs|badger|s3
//	MININGSPICE_SNAPSHOT_FS_ROOT: directory root when driver=fs
//	MININGSPICE_SNAPSHOT_BADGER_PATH: database dir when driver=badger
//	MININGSPICE_SNAPSHOT_S3_BUCKET / _REGION / _ENDPOINT: s3 driver settings
//	MININGSPICE_CATALOG_DRIVER: memory|sqlite|postgres
//	MININGSPICE_CATALOG_SQLITE_PATH: database file when driver=sqlite
//	MININGSPICE_CATALOG_POSTGRES_DSN: connection string when driver=postgres

// Duration wraps time.Duration so YAML documents can use "10ms" style
// strings.
type Duration time.Duration

// UnmarshalYAML accepts either a duration string or integer nanoseconds.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var n int64
	if err := value.Decode(&n); err != nil {
		return fmt.Errorf("invalid duration node: %w", err)
	}
	*d = Duration(n)
	return nil
}

// MarshalYAML renders the string form.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the standard library representation.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the root configuration document.
type Config struct {
	Logging     Logging                              `yaml:"logging"`
	Scheduler   Scheduler                            `yaml:"scheduler"`
	Txn         Txn                                  `yaml:"transactions"`
	Zones       Zones                                `yaml:"zones"`
	Snapshot    Snapshot                             `yaml:"snapshot"`
	Catalog     Catalog                              `yaml:"catalog"`
	Compression map[string]domain.CompressionProfile `yaml:"compression"`
	Metrics     Metrics                              `yaml:"metrics"`
}

// Logging controls the structured logger.
type Logging struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is text or json.
	Format string `yaml:"format"`
}

// Scheduler controls the worker pool.
type Scheduler struct {
	// Workers is the worker goroutine count; 0 means one per CPU.
	Workers int `yaml:"workers"`
	// NUMAAware enables sysfs topology detection and domain queues.
	NUMAAware bool `yaml:"numa_aware"`
}

// Txn controls transaction retry and fast-path behavior.
type Txn struct {
	MaxRetries int `yaml:"max_retries"`
	// BaseDelay seeds retry backoff.
	BaseDelay Duration `yaml:"base_delay"`
	// FastPathThreshold is the conflict rate below which commits lock
	// only their write sets.
	FastPathThreshold float64 `yaml:"fast_path_threshold"`
}

// Zones controls spatial partitioning.
type Zones struct {
	DefaultSpan float64 `yaml:"default_span"`
}

// Snapshot selects the snapshot store backend.
type Snapshot struct {
	Driver     string   `yaml:"driver"`
	FSRoot     string   `yaml:"fs_root"`
	BadgerPath string   `yaml:"badger_path"`
	BadgerTTL  Duration `yaml:"badger_ttl"`
	S3         S3       `yaml:"s3"`
}

// S3 configures the object storage cold tier. Empty credentials fall
// back to the SDK's default chain.
type S3 struct {
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	PathStyle       bool   `yaml:"path_style"`
}

// Catalog selects the hibernation catalog backend.
type Catalog struct {
	Driver      string `yaml:"driver"`
	SQLitePath  string `yaml:"sqlite_path"`
	PostgresDSN string `yaml:"postgres_dsn"`
}

// Metrics controls the exporters.
type Metrics struct {
	// Prometheus registers collectors on the default registry.
	Prometheus bool `yaml:"prometheus"`
	// Expvar publishes counters through expvar.
	Expvar bool `yaml:"expvar"`
}

// Default returns the zero-configuration defaults.
func Default() Config {
	return Config{
		Logging:   Logging{Level: "info", Format: "text"},
		Scheduler: Scheduler{Workers: 0, NUMAAware: true},
		Txn: Txn{
			MaxRetries:        3,
			BaseDelay:         Duration(time.Millisecond),
			FastPathThreshold: 0.05,
		},
		Zones:    Zones{DefaultSpan: domain.DefaultZoneSpan},
		Snapshot: Snapshot{Driver: "fs", FSRoot: "./snapdata"},
		Catalog:  Catalog{Driver: "sqlite", SQLitePath: "hibernate.db"},
		Metrics:  Metrics{Prometheus: false, Expvar: true},
	}
}

// Load reads the YAML file at path over the defaults and then applies
// environment overrides. A missing file is not an error; the defaults
// plus environment carry.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv("MININGSPICE_CONFIG")
	}
	if path == "" {
		path = "miningspice.yaml"
	}
	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		// defaults carry
	case err != nil:
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("MININGSPICE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("MININGSPICE_SCHED_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Scheduler.Workers = n
		}
	}
	if v := os.Getenv("MININGSPICE_SNAPSHOT_DRIVER"); v != "" {
		c.Snapshot.Driver = v
	}
	if v := os.Getenv("MININGSPICE_SNAPSHOT_FS_ROOT"); v != "" {
		c.Snapshot.FSRoot = v
	}
	if v := os.Getenv("MININGSPICE_SNAPSHOT_BADGER_PATH"); v != "" {
		c.Snapshot.BadgerPath = v
	}
	if v := os.Getenv("MININGSPICE_SNAPSHOT_S3_BUCKET"); v != "" {
		c.Snapshot.S3.Bucket = v
	}
	if v := os.Getenv("MININGSPICE_SNAPSHOT_S3_REGION"); v != "" {
		c.Snapshot.S3.Region = v
	}
	if v := os.Getenv("MININGSPICE_SNAPSHOT_S3_ENDPOINT"); v != "" {
		c.Snapshot.S3.Endpoint = v
	}
	if v := os.Getenv("MININGSPICE_SNAPSHOT_S3_ACCESS_KEY_ID"); v != "" {
		c.Snapshot.S3.AccessKeyID = v
	}
	if v := os.Getenv("MININGSPICE_SNAPSHOT_S3_SECRET_ACCESS_KEY"); v != "" {
		c.Snapshot.S3.SecretAccessKey = v
	}
	if v := os.Getenv("MININGSPICE_CATALOG_DRIVER"); v != "" {
		c.Catalog.Driver = v
	}
	if v := os.Getenv("MININGSPICE_CATALOG_SQLITE_PATH"); v != "" {
		c.Catalog.SQLitePath = v
	}
	if v := os.Getenv("MININGSPICE_CATALOG_POSTGRES_DSN"); v != "" {
		c.Catalog.PostgresDSN = v
	}
}

// Validate rejects configurations the engine cannot start with.
func (c *Config) Validate() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log level %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("config: unknown log format %q", c.Logging.Format)
	}
	if c.Scheduler.Workers < 0 {
		return fmt.Errorf("config: negative worker count %d", c.Scheduler.Workers)
	}
	if c.Txn.MaxRetries < 0 {
		return fmt.Errorf("config: negative max retries %d", c.Txn.MaxRetries)
	}
	if c.Txn.FastPathThreshold < 0 || c.Txn.FastPathThreshold > 1 {
		return fmt.Errorf("config: fast path threshold %v out of [0,1]", c.Txn.FastPathThreshold)
	}
	switch c.Snapshot.Driver {
	case "memory", "fs", "badger", "s3":
	default:
		return fmt.Errorf("config: unknown snapshot driver %q", c.Snapshot.Driver)
	}
	if c.Snapshot.Driver == "s3" && c.Snapshot.S3.Bucket == "" {
		return fmt.Errorf("config: s3 snapshot driver requires a bucket")
	}
	switch c.Catalog.Driver {
	case "memory", "sqlite", "postgres":
	default:
		return fmt.Errorf("config: unknown catalog driver %q", c.Catalog.Driver)
	}
	if c.Catalog.Driver == "postgres" && c.Catalog.PostgresDSN == "" {
		return fmt.Errorf("config: postgres catalog requires a dsn")
	}
	return nil
}

// Span returns the configured zone span clamped to the supported range.
func (c *Config) Span() float64 {
	span := c.Zones.DefaultSpan
	if span < domain.MinZoneSpan {
		return domain.MinZoneSpan
	}
	if span > domain.MaxZoneSpan {
		return domain.MaxZoneSpan
	}
	return span
}
