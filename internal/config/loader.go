package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "CERTIFICA_"

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if CERTIFICA_CONFIG is set
//  3. env (prefix CERTIFICA_); RESOURCES is a comma separated list
func Load(_ context.Context) (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path := os.Getenv(envPrefix + "CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
		}
	}

	// CERTIFICA_QUEUE_KEY -> queue_key; underscores are kept to match the koanf tags.
	envProvider := env.ProviderWithValue(envPrefix, ".", func(key, value string) (string, any) {
		key = strings.TrimPrefix(strings.ToLower(key), strings.ToLower(envPrefix))
		if key == "config" {
			return "", nil
		}
		if key == "resources" {
			return key, splitList(value)
		}
		return key, value
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the fields the process cannot start without.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Addr) == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	switch c.StorageDriver {
	case StorageMemory, StorageRedis:
	case StorageFile:
		if strings.TrimSpace(c.StorageDir) == "" {
			return fmt.Errorf("%w: storage_dir must not be empty for the file driver", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown storage_driver %q", ErrInvalidConfig, c.StorageDriver)
	}
	switch c.DatabaseDriver {
	case DatabasePostgres, DatabaseSQLite:
	default:
		return fmt.Errorf("%w: unknown database_driver %q", ErrInvalidConfig, c.DatabaseDriver)
	}
	if c.ActionTimeoutMS <= 0 {
		return fmt.Errorf("%w: action_timeout_ms must be positive", ErrInvalidConfig)
	}
	if len(c.Resources) == 0 {
		return fmt.Errorf("%w: resources must not be empty", ErrInvalidConfig)
	}
	return nil
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
