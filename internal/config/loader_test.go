package config_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/okian/arena/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		clearConfigEnvVars()

		convey.Convey("When loading config with defaults only", func() {
			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8000")
				convey.So(cfg.SQLitePath, convey.ShouldEqual, "arena.db")
				convey.So(cfg.RelayReadWindowMS, convey.ShouldEqual, 1000)
				convey.So(cfg.RelaySubscribeTimeoutMS, convey.ShouldEqual, 5000)
				convey.So(cfg.RelaySendTimeoutMS, convey.ShouldEqual, 10000)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("ARENA_ADDR", ":9090")
			_ = os.Setenv("ARENA_REDIS_URL", "redis://bus:6379/1")
			_ = os.Setenv("ARENA_RELAY_RETRY_ATTEMPTS", "3")
			_ = os.Setenv("ARENA_AUTH_SECRET", "s3cret")
			_ = os.Setenv("ARENA_RELAY_SUBSCRIBE_TIMEOUT_MS", "750")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.RedisURL, convey.ShouldEqual, "redis://bus:6379/1")
				convey.So(cfg.RelayRetryAttempts, convey.ShouldEqual, 3)
				convey.So(cfg.AuthSecret, convey.ShouldEqual, "s3cret")
				convey.So(cfg.RelaySubscribeTimeoutMS, convey.ShouldEqual, 750)
			})
		})

		convey.Convey("When loading config with a YAML file and env overrides", func() {
			tmpFile := createTempConfigFile(`
addr: ":7000"
series_workers: 2
conn_send_buffer: 32
battle_weights:
  accuracy: 3
  speed_ms: 1.5
`)
			defer func() { _ = os.Remove(tmpFile) }()
			_ = os.Setenv("ARENA_CONFIG", tmpFile)
			_ = os.Setenv("ARENA_SERIES_WORKERS", "6")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then file values apply and env wins over the file", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":7000")
				convey.So(cfg.SeriesWorkers, convey.ShouldEqual, 6)
				convey.So(cfg.ConnSendBuffer, convey.ShouldEqual, 32)
				convey.So(cfg.BattleWeights["accuracy"], convey.ShouldEqual, 3.0)
				convey.So(cfg.BattleWeights["speed_ms"], convey.ShouldEqual, 1.5)
			})
		})

		convey.Convey("When the config file does not exist", func() {
			_ = os.Setenv("ARENA_CONFIG", "/non/existent/arena.yaml")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(cfg, convey.ShouldBeNil)
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the config file is invalid YAML", func() {
			tmpFile := createTempConfigFile(`invalid: yaml: content: [`)
			defer func() { _ = os.Remove(tmpFile) }()
			_ = os.Setenv("ARENA_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When a numeric env var is not a number", func() {
			_ = os.Setenv("ARENA_SERIES_QUEUE_SIZE", "lots")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When validation fails", func() {
			cases := map[string]string{
				"ARENA_ADDR":                   "",
				"ARENA_RELAY_RETRY_INITIAL_MS": "0",
				"ARENA_CONN_SEND_BUFFER":       "-1",
				"ARENA_MAX_LIST_LIMIT":         "0",
			}
			for key, val := range cases {
				_ = os.Setenv(key, val)
				cfg, err := config.Load(ctx)
				convey.So(cfg, convey.ShouldBeNil)
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				_ = os.Unsetenv(key)
			}
		})

		convey.Convey("When a battle weight is not positive", func() {
			tmpFile := createTempConfigFile("battle_weights:\n  accuracy: 0\n")
			defer func() { _ = os.Remove(tmpFile) }()
			_ = os.Setenv("ARENA_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			_, err := config.Load(ctx)

			convey.Convey("Then validation rejects it", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})
	})
}

// Helper functions.

func clearConfigEnvVars() {
	for _, envVar := range []string{
		"ARENA_CONFIG",
		"ARENA_ADDR",
		"ARENA_REDIS_URL",
		"ARENA_AUTH_SECRET",
		"ARENA_SERIES_WORKERS",
		"ARENA_SERIES_QUEUE_SIZE",
		"ARENA_RELAY_RETRY_ATTEMPTS",
		"ARENA_RELAY_RETRY_INITIAL_MS",
		"ARENA_CONN_SEND_BUFFER",
		"ARENA_MAX_LIST_LIMIT",
		"ARENA_RELAY_SUBSCRIBE_TIMEOUT_MS",
		"ARENA_RELAY_SEND_TIMEOUT_MS",
	} {
		_ = os.Unsetenv(envVar)
	}
}

func createTempConfigFile(content string) string {
	tmpFile, err := os.CreateTemp("", "arena-config-*.yaml")
	if err != nil {
		panic(err)
	}
	if _, err := tmpFile.WriteString(content); err != nil {
		panic(err)
	}
	if err := tmpFile.Close(); err != nil {
		panic(err)
	}
	return tmpFile.Name()
}
