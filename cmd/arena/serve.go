package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/arena/internal/adapters/bus"
	"github.com/okian/arena/internal/adapters/http/api"
	"github.com/okian/arena/internal/adapters/http/auth"
	"github.com/okian/arena/internal/adapters/http/stream"
	"github.com/okian/arena/internal/adapters/publisher"
	"github.com/okian/arena/internal/adapters/relay"
	"github.com/okian/arena/internal/adapters/repository"
	"github.com/okian/arena/internal/adapters/series"
	service "github.com/okian/arena/internal/app"
	"github.com/okian/arena/internal/config"
	"github.com/okian/arena/internal/domain/dedupe"
	"github.com/okian/arena/pkg/logger"
	"github.com/okian/arena/pkg/metrics"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/spf13/cobra"
)

// HTTP server timeout constants. WriteTimeout is left unset: it would cut
// long-lived websocket streams.
const (
	readTimeout           = 10 * time.Second
	idleTimeout           = 60 * time.Second
	readHeaderTimeout     = 5 * time.Second
	shutdownTimeout       = 30 * time.Second
	systemMetricsInterval = 10 * time.Second
	busPingTimeout        = 5 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, the websocket stream and the series writers",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx)
	},
}

func serve(ctx context.Context) error {
	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := logger.InitWith(os.Stdout, cfg.LogFormat); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	log := logger.Get()

	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	store, err := repository.Open(ctx, cfg.SQLitePath)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	points, err := series.NewBoltStore(cfg.SeriesPath)
	if err != nil {
		return err
	}
	defer func() { _ = points.Close() }()

	b, err := openBus(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = b.Close() }()

	hub := relay.NewHub(b,
		relay.WithRetry(
			config.Millis(cfg.RelayRetryInitialMS),
			config.Millis(cfg.RelayRetryMaxMS),
			cfg.RelayRetryAttempts,
		),
		relay.WithSubscribeTimeout(config.Millis(cfg.RelaySubscribeTimeoutMS)),
		relay.WithSendTimeout(config.Millis(cfg.RelaySendTimeoutMS)),
	)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := hub.Close(closeCtx); err != nil {
			log.Warn(closeCtx, "relay close", logger.Error(err))
		}
	}()

	svc := service.New(
		service.WithLogger(log),
		service.WithStore(store),
		service.WithSeries(points),
		service.WithPublisher(publisher.New(b)),
		service.WithRelay(hub),
		service.WithBattleWeights(cfg.BattleWeights),
		service.WithDeduper(dedupe.NewInMemoryDeduper(
			dedupe.WithMaxSize(cfg.DedupeSize),
			dedupe.WithTTL(cfg.DedupeTTL()),
		)),
		service.WithWorkerCount(cfg.SeriesWorkers),
		service.WithQueueSize(cfg.SeriesQueueSize),
	)
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start service: %w", err)
	}
	defer svc.Stop()

	go startSystemMetricsUpdater(ctx)

	opts := []api.Option{
		api.WithMaxListLimit(cfg.MaxListLimit),
		api.WithStream(stream.NewHandler(hub,
			stream.WithSendBuffer(cfg.ConnSendBuffer),
			stream.WithWriteTimeout(config.Millis(cfg.ConnWriteTimeoutMS)),
		)),
	}
	if cfg.AuthSecret != "" {
		verifier, err := auth.NewVerifier(cfg.AuthSecret)
		if err != nil {
			return err
		}
		opts = append(opts, api.WithAuth(verifier.Middleware))
	} else {
		log.Warn(ctx, "auth_secret is empty; write routes are unauthenticated")
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.NewServer(svc, opts...).Handler(ctx),
		ReadTimeout:       readTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(shutdownCtx, "server shutdown failed", logger.Error(err))
	}

	log.Info(shutdownCtx, "server stopped")
	return nil
}

// openBus connects to Redis when a URL is configured and falls back to the
// in-process bus otherwise.
func openBus(ctx context.Context, cfg *config.Config) (bus.Bus, error) {
	if cfg.RedisURL == "" {
		logger.Get().Warn(ctx, "redis_url is empty; using the in-process bus")
		return bus.NewMemory(), nil
	}
	rb, err := bus.NewRedis(cfg.RedisURL, bus.WithReadWindow(config.Millis(cfg.RelayReadWindowMS)))
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, busPingTimeout)
	defer cancel()
	if err := rb.Ping(pingCtx); err != nil {
		// The relay retries on its own; a cold Redis only delays the stream.
		logger.Get().Warn(ctx, "redis not reachable at startup", logger.Error(err))
	}
	return rb, nil
}

// startSystemMetricsUpdater refreshes process and host gauges until ctx ends.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics(ctx)
		}
	}
}

func updateSystemMetrics(ctx context.Context) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	if pct, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(pct) > 0 {
		metrics.UpdateSystemCPUPercent(pct[0])
	}
}
