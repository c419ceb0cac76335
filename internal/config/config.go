// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults.
// - Load layers defaults, an optional YAML file and CERTIFICA_* env vars.
package config

import (
	"time"
)

// Storage drivers for the local durable key-value store.
const (
	StorageMemory = "memory"
	StorageFile   = "file"
	StorageRedis  = "redis"
)

// Database drivers for the remote store.
const (
	DatabasePostgres = "postgres"
	DatabaseSQLite   = "sqlite"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// StorageDriver selects where the offline queue and caches live.
	StorageDriver string `koanf:"storage_driver"`

	// StorageDir is the directory used by the file storage driver.
	StorageDir string `koanf:"storage_dir"`

	// RedisAddr and RedisPrefix configure the redis storage driver.
	RedisAddr   string `koanf:"redis_addr"`
	RedisPrefix string `koanf:"redis_prefix"`

	// DatabaseDriver and DatabaseDSN configure the remote store.
	DatabaseDriver string `koanf:"database_driver"`
	DatabaseDSN    string `koanf:"database_dsn"`

	// ProbeIntervalMS is how often connectivity to the remote store is checked.
	ProbeIntervalMS int `koanf:"probe_interval_ms"`

	// ActionTimeoutMS bounds every remote call made while reconciling.
	ActionTimeoutMS int `koanf:"action_timeout_ms"`

	// DedupeSize bounds the in-process memory of applied action ids.
	DedupeSize int `koanf:"dedupe_size"`

	// Resources lists the remote tables offline actions may target.
	Resources []string `koanf:"resources"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:        "info",
		LogFormat:       "text",
		Addr:            ":9080",
		StorageDriver:   StorageFile,
		StorageDir:      "./data",
		RedisAddr:       "localhost:6379",
		RedisPrefix:     "certifica:",
		DatabaseDriver:  DatabasePostgres,
		DatabaseDSN:     "postgres://postgres@localhost:5432/certifica?sslmode=disable",
		ProbeIntervalMS: 5_000,
		ActionTimeoutMS: 10_000,
		DedupeSize:      10_000,
		Resources: []string{
			"academies",
			"evaluators",
			"kpi_categories",
			"kpis",
			"evaluations",
			"evaluation_scores",
		},
	}
}

// ProbeInterval returns ProbeIntervalMS as a duration.
func (c *Config) ProbeInterval() time.Duration {
	return time.Duration(c.ProbeIntervalMS) * time.Millisecond
}

// ActionTimeout returns ActionTimeoutMS as a duration.
func (c *Config) ActionTimeout() time.Duration {
	return time.Duration(c.ActionTimeoutMS) * time.Millisecond
}
