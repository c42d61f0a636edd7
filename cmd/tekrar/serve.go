package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tuncerburak97/tekrar/internal/api"
	"github.com/tuncerburak97/tekrar/internal/config"
	"github.com/tuncerburak97/tekrar/internal/cookies"
	"github.com/tuncerburak97/tekrar/internal/ledger"
	"github.com/tuncerburak97/tekrar/internal/logger"
	"github.com/tuncerburak97/tekrar/internal/metrics"
	"github.com/tuncerburak97/tekrar/internal/model"
	"github.com/tuncerburak97/tekrar/internal/proxy"
	"github.com/tuncerburak97/tekrar/internal/ratelimit"
	"github.com/tuncerburak97/tekrar/internal/recorder"
	"github.com/tuncerburak97/tekrar/internal/replay"
	"github.com/tuncerburak97/tekrar/internal/repository"
	"github.com/tuncerburak97/tekrar/internal/service"
	"github.com/tuncerburak97/tekrar/internal/telemetry"
	"github.com/tuncerburak97/tekrar/internal/transform"
)

const defaultConfigPath = "config/config.yaml"

func newServeCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the capture proxy and control API",
		RunE: func(cmd *cobra.Command, args []string) error {
			// The default file is optional; an explicit one is not.
			if !cmd.Flags().Changed("config") {
				if _, err := os.Stat(configPath); err != nil {
					configPath = ""
				}
			}
			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			return serve(cfg)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to config file")
	return cmd
}

func serve(cfg *config.Config) error {
	appLog := logger.Init(cfg.Log)
	ctx := context.Background()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}

	// Initialize metrics collector
	metricsCollector := metrics.GetMetricsCollector("tekrar", "tekrar")

	state := ledger.NewState(ledger.Options{
		PendingTTL:      cfg.Capture.PendingTTL,
		PendingCapacity: cfg.Capture.PendingCapacity,
		Recording:       cfg.Capture.Recording,
	})
	rec := recorder.New(state, appLog, metricsCollector)

	cookieStore, err := cookies.NewStore(cfg.Cookies)
	if err != nil {
		return fmt.Errorf("failed to initialize cookie store: %w", err)
	}

	dispatcher := replay.NewHTTPDispatcher(cfg.Replay.Transport)
	replayer := replay.New(state, cookieStore, dispatcher, appLog, metricsCollector)
	if len(cfg.Transform.Services) > 0 {
		engine, err := transform.NewEngine(cfg.Transform, appLog)
		if err != nil {
			return fmt.Errorf("failed to initialize transform engine: %w", err)
		}
		replayer.WithTransformer(engine)
		appLog.Info().Int("services", engine.Services()).Msg("Replay scripts loaded")
	}

	var archive *service.ArchiveService
	if cfg.Archive.Enabled {
		repo, err := repository.NewRepository(ctx, &cfg.Archive.DB)
		if err != nil {
			return fmt.Errorf("failed to initialize archive repository: %w", err)
		}
		zapLogger, err := zap.NewProduction()
		if err != nil {
			return fmt.Errorf("failed to initialize archive logger: %w", err)
		}
		archive = service.NewArchiveService(repo, cfg.Archive, metricsCollector, zapLogger)
		state.OnFinalize(func(r model.RecordedRequest) { archive.Archive(r) })
	}

	var sweeper *ledger.Sweeper
	if cfg.Capture.PendingTTL > 0 && cfg.Capture.SweepInterval > 0 {
		sweeper = ledger.StartSweeper(state, cfg.Capture.SweepInterval, func(removed int) {
			appLog.Warn().Int("removed", removed).Msg("Dropped stale pending requests")
			metricsCollector.SetLedgerState(state.Sizes())
		})
	}

	// Initialize rate limiter if enabled
	var limiter ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		store, err := ratelimit.NewStore(cfg.RateLimit)
		if err != nil {
			return fmt.Errorf("failed to create rate limit store: %w", err)
		}
		limiter = ratelimit.NewService(&cfg.RateLimit, store)
	}

	app := fiber.New(fiber.Config{
		ReadTimeout:           cfg.Server.ReadTimeout,
		WriteTimeout:          cfg.Server.WriteTimeout,
		IdleTimeout:           cfg.Server.IdleTimeout,
		DisableStartupMessage: true,
	})

	api.RegisterPrometheus(app, prometheus.DefaultGatherer)
	handler := api.NewHandler(state, rec, replayer, cookieStore, metricsCollector, appLog)
	handler.Register(app.Group(cfg.Server.ControlPrefix), limiter)

	// Capture proxy takes every path the control API does not
	if cfg.Proxy.Target != "" {
		proxyHandler, err := proxy.NewProxyHandler(&cfg.Proxy, rec, cookieStore, appLog, metricsCollector)
		if err != nil {
			return fmt.Errorf("failed to initialize proxy handler: %w", err)
		}
		app.All("/*", proxyHandler.Handle)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	listenErr := make(chan error, 1)
	go func() {
		appLog.Info().
			Str("addr", addr).
			Str("control_prefix", cfg.Server.ControlPrefix).
			Str("proxy_target", cfg.Proxy.Target).
			Bool("recording", cfg.Capture.Recording).
			Msg("Starting server")
		listenErr <- app.Listen(addr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-listenErr:
		if err != nil {
			appLog.Error().Err(err).Msg("Server stopped")
		}
	}

	appLog.Info().Msg("Shutting down server...")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		appLog.Error().Err(err).Msg("Failed to shutdown server")
	}

	closeAll(appLog, sweeper, archive, limiter, cookieStore, dispatcher)
	metricsCollector.Close()

	tctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdownTracing(tctx); err != nil {
		appLog.Error().Err(err).Msg("Failed to flush traces")
	}
	return nil
}

func closeAll(logger zerolog.Logger, sweeper *ledger.Sweeper, archive *service.ArchiveService, limiter ratelimit.Limiter, cookieStore cookies.Store, dispatcher *replay.HTTPDispatcher) {
	if sweeper != nil {
		sweeper.Stop()
	}
	if archive != nil {
		if err := archive.Shutdown(); err != nil {
			logger.Error().Err(err).Msg("Failed to close archive")
		}
	}
	if limiter != nil {
		if err := limiter.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close rate limiter")
		}
	}
	if err := cookieStore.Close(); err != nil {
		logger.Error().Err(err).Msg("Failed to close cookie store")
	}
	dispatcher.Close()
	logger.Info().Msg("Shutdown complete")
}
