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

// EnvPrefix is the prefix for environment overrides.
const EnvPrefix = "ARENA_"

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if ARENA_CONFIG is set
//  3. env (prefix ARENA_)
func Load(_ context.Context) (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path := os.Getenv(EnvPrefix + "CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	// Map env keys like ARENA_REDIS_URL -> redis_url (flat keys).
	// Underscores are kept to match the koanf tags on the struct.
	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.ToLower(s)
		s = strings.TrimPrefix(s, strings.ToLower(EnvPrefix))
		return s
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
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

// Validate checks values that would otherwise fail later at startup.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Addr) == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.SQLitePath == "":
		return fmt.Errorf("%w: sqlite_path must not be empty", ErrInvalidConfig)
	case c.SeriesPath == "":
		return fmt.Errorf("%w: series_path must not be empty", ErrInvalidConfig)
	case c.RelayRetryInitialMS <= 0 || c.RelayRetryMaxMS < c.RelayRetryInitialMS:
		return fmt.Errorf("%w: relay retry window must satisfy 0 < initial <= max", ErrInvalidConfig)
	case c.RelayReadWindowMS <= 0:
		return fmt.Errorf("%w: relay_read_window_ms must be positive", ErrInvalidConfig)
	case c.RelaySubscribeTimeoutMS <= 0 || c.RelaySendTimeoutMS <= 0:
		return fmt.Errorf("%w: relay subscribe and send timeouts must be positive", ErrInvalidConfig)
	case c.ConnSendBuffer <= 0:
		return fmt.Errorf("%w: conn_send_buffer must be positive", ErrInvalidConfig)
	case c.MaxListLimit <= 0:
		return fmt.Errorf("%w: max_list_limit must be positive", ErrInvalidConfig)
	}
	for metric, w := range c.BattleWeights {
		if w <= 0 {
			return fmt.Errorf("%w: battle weight for %q must be positive", ErrInvalidConfig, metric)
		}
	}
	return nil
}
