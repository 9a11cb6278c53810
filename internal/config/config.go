// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() initializer to build a Config with defaults.
// - Loading layers defaults, an optional YAML file and ARENA_ env vars.
// - External errors are wrapped with this package's sentinel errors.
package config

import (
	"runtime"
	"time"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects console or json output.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8000".
	Addr string `koanf:"addr"`

	// RedisURL points at the pub/sub bus. Empty selects the in-process bus.
	RedisURL string `koanf:"redis_url"`

	// SQLitePath is the relational store file.
	SQLitePath string `koanf:"sqlite_path"`

	// SeriesPath is the bbolt file holding benchmark time series.
	SeriesPath string `koanf:"series_path"`

	// AuthSecret is the HS256 key for write API bearer tokens. Empty disables auth.
	AuthSecret string `koanf:"auth_secret"`

	// SeriesQueueSize bounds the in-memory series write queue.
	SeriesQueueSize int `koanf:"series_queue_size"`

	// SeriesWorkers sets the number of series writer goroutines.
	SeriesWorkers int `koanf:"series_workers"`

	// DedupeSize and DedupeTTLSeconds bound the submission id cache.
	DedupeSize       int `koanf:"dedupe_size"`
	DedupeTTLSeconds int `koanf:"dedupe_ttl_s"`

	// Relay resubscribe backoff. After RelayRetryAttempts failures the relay
	// reports degraded and keeps retrying at RelayRetryMaxMS.
	RelayRetryInitialMS int `koanf:"relay_retry_initial_ms"`
	RelayRetryMaxMS     int `koanf:"relay_retry_max_ms"`
	RelayRetryAttempts  int `koanf:"relay_retry_attempts"`

	// RelayReadWindowMS bounds one blocking read on the bus subscription.
	RelayReadWindowMS int `koanf:"relay_read_window_ms"`

	// RelaySubscribeTimeoutMS bounds one subscribe attempt and
	// RelaySendTimeoutMS one delivery to one connection.
	RelaySubscribeTimeoutMS int `koanf:"relay_subscribe_timeout_ms"`
	RelaySendTimeoutMS      int `koanf:"relay_send_timeout_ms"`

	// ConnSendBuffer is the per-connection outbound queue length.
	ConnSendBuffer int `koanf:"conn_send_buffer"`

	// ConnWriteTimeoutMS bounds a single websocket write.
	ConnWriteTimeoutMS int `koanf:"conn_write_timeout_ms"`

	// MaxListLimit caps ?limit on list endpoints.
	MaxListLimit int `koanf:"max_list_limit"`

	// BattleWeights are the default comprehensive-mode metric weights.
	BattleWeights map[string]float64 `koanf:"battle_weights"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:                "info",
		LogFormat:               "console",
		Addr:                    ":8000",
		RedisURL:                "redis://localhost:6379/0",
		SQLitePath:              "arena.db",
		SeriesPath:              "arena-series.db",
		SeriesQueueSize:         10_000,
		SeriesWorkers:           runtime.NumCPU(),
		DedupeSize:              50_000,
		DedupeTTLSeconds:        3600,
		RelayRetryInitialMS:     100,
		RelayRetryMaxMS:         5_000,
		RelayRetryAttempts:      8,
		RelayReadWindowMS:       1_000,
		RelaySubscribeTimeoutMS: 5_000,
		RelaySendTimeoutMS:      10_000,
		ConnSendBuffer:          256,
		ConnWriteTimeoutMS:      10_000,
		MaxListLimit:            100,
		BattleWeights:           map[string]float64{},
	}
}

// DedupeTTL returns the submission cache TTL as a duration.
func (c *Config) DedupeTTL() time.Duration {
	return time.Duration(c.DedupeTTLSeconds) * time.Second
}

// Millis converts a millisecond setting to a duration.
func Millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
