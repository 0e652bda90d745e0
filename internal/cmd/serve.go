package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fulmenhq/gofulmen/signals"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/minisuite/minisuite/internal/config"
	"github.com/minisuite/minisuite/internal/core/auth"
	"github.com/minisuite/minisuite/internal/core/ratelimit"
	errwrap "github.com/minisuite/minisuite/internal/errors"
	"github.com/minisuite/minisuite/internal/metrics"
	"github.com/minisuite/minisuite/internal/observability"
	"github.com/minisuite/minisuite/internal/server"
	"github.com/minisuite/minisuite/internal/server/handlers"
)

var (
	serverPort int
	serverHost string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Start the HTTP server with graceful shutdown support.

Signal Handling:
  • Ctrl+C (SIGINT) or SIGTERM: Graceful shutdown
  • Ctrl+C twice within 2s: Force quit
  • SIGHUP: Reload and validate configuration

Rate limiting, token signing and CORS are read at startup; changing them
requires a restart.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serverHost, "host", "", "server host (overrides server.host)")
	serveCmd.Flags().IntVarP(&serverPort, "port", "p", 0, "server port (overrides server.port)")
}

func serveOverrides() map[string]any {
	srv := map[string]any{}
	if serverHost != "" {
		srv["host"] = serverHost
	}
	if serverPort > 0 {
		srv["port"] = serverPort
	}
	if len(srv) == 0 {
		return nil
	}
	return map[string]any{"server": srv}
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	cfg, err := loadConfig(ctx, serveOverrides())
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return errwrap.WrapInvalidInput(ctx, err, "invalid configuration")
	}

	observability.InitServerLogger(config.AppName, cfg.Logging.Level, cfg.Logging.Profile)
	logger := observability.ServerLogger

	if cfg.Metrics.Enabled {
		if err := observability.InitMetrics(config.AppName, cfg.Metrics.Port); err != nil {
			logger.Error("Failed to initialize metrics", zap.Error(err))
			return errwrap.WrapInternal(ctx, err, "metrics initialization failed")
		}
		metrics.SetServerStartTime(time.Now().Unix())
	}

	var shutdownTracing func(context.Context) error
	if cfg.Tracing.Enabled {
		shutdownTracing, err = observability.InitTracing(ctx, observability.TracingOptions{
			ServiceName: config.AppName,
			Version:     versionInfo.Version,
			Exporter:    cfg.Tracing.Exporter,
			SampleRatio: cfg.Tracing.SampleRatio,
		})
		if err != nil {
			return errwrap.WrapInternal(ctx, err, "tracing initialization failed")
		}
	}

	db, err := openStore(ctx, cfg)
	if err != nil {
		return errwrap.WrapDatabaseError(ctx, err, "store initialization failed")
	}

	backend, err := openRateLimitBackend(ctx, cfg, db)
	if err != nil {
		_ = db.Close()
		return errwrap.WrapServiceUnavailable(ctx, err, "rate limit backend unavailable")
	}
	backend.janitor(cfg.RateLimit).Start(ctx)
	limiter := ratelimit.New(backend.counters, cfg.RateLimit.EffectiveWindow(), cfg.RateLimit.Max)

	tokenOpts := []auth.TokenOption{auth.WithTTL(cfg.Auth.TokenTTL)}
	if cfg.Auth.Issuer != "" {
		tokenOpts = append(tokenOpts, auth.WithIssuer(cfg.Auth.Issuer))
	}
	tokens, err := auth.NewTokenManager(cfg.Auth.JWTSecret, tokenOpts...)
	if err != nil {
		_ = db.Close()
		return errwrap.WrapInvalidInput(ctx, err, "token manager initialization failed")
	}
	throttle := auth.NewThrottle(cfg.Auth.LoginBurst, cfg.Auth.LoginInterval)
	throttle.Start(ctx, time.Minute)

	authService, err := auth.NewService(db, tokens, throttle)
	if err != nil {
		_ = db.Close()
		return errwrap.WrapInternal(ctx, err, "auth service initialization failed")
	}

	health := handlers.NewHealthManager(versionInfo.Version)
	health.RegisterChecker("store", handlers.CheckerFunc(db.Ping))
	if backend.health != nil {
		health.RegisterChecker("rate_limit_"+backend.name, backend.health)
	}
	if cfg.Metrics.Enabled {
		health.RegisterChecker("telemetry", handlers.CheckerFunc(func(context.Context) error {
			if observability.TelemetrySystem == nil || observability.PrometheusExporter == nil {
				return errors.New("telemetry system not initialized")
			}
			return nil
		}))
	}

	srv := server.New(server.Options{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		Auth:         authService,
		Users:        db,
		Limiter:      limiter,
		Inspector:    backend.inspector,
		Backend:      backend.name,
		ExemptPaths:  cfg.RateLimit.ExemptPaths,
		CORSOrigins:  cfg.CORS.Origins,
		HSTS:         cfg.Security.HSTS,
		Health:       health,
		AdminToken:   cfg.AdminToken,
		Tracing:      cfg.Tracing.Enabled,
	})

	logger.Info("Initializing server",
		zap.String("service", config.AppName),
		zap.String("version", versionInfo.Version),
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
		zap.String("rate_limit_backend", backend.name),
		zap.Duration("rate_limit_window", cfg.RateLimit.EffectiveWindow()),
		zap.Int("rate_limit_max", cfg.RateLimit.Max),
		zap.Strings("cors_origins", cfg.CORS.Origins))

	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}

	// Handlers run LIFO: the HTTP server stops first, the logger flushes last.
	signals.OnShutdown(func(ctx context.Context) error {
		if err := logger.Sync(); err != nil {
			logger.Warn("Logger sync returned error (may be benign)", zap.Error(err))
		}
		return nil
	})
	signals.OnShutdown(func(ctx context.Context) error {
		cancel()
		var errs []error
		if shutdownTracing != nil {
			errs = append(errs, shutdownTracing(ctx))
		}
		errs = append(errs, backend.close(), db.Close())
		if err := errors.Join(errs...); err != nil {
			logger.Warn("Resource cleanup reported errors", zap.Error(err))
		}
		return nil
	})
	signals.OnShutdown(func(ctx context.Context) error {
		logger.Info("Shutting down HTTP server...")
		shutdownCtx, stop := context.WithTimeout(ctx, shutdownTimeout)
		defer stop()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return errwrap.WrapInternal(ctx, err, "server shutdown failed")
		}
		logger.Info("HTTP server stopped gracefully")
		return nil
	})

	signals.OnReload(func(ctx context.Context) error {
		logger.Info("Received SIGHUP: reloading configuration")
		next, err := config.Load(ctx, serveOverrides())
		if err != nil {
			logger.Error("Failed to reload configuration", zap.Error(err))
			return errwrap.WrapInvalidInput(ctx, err, "config reload failed")
		}
		if err := next.Validate(); err != nil {
			logger.Error("Reloaded configuration is invalid", zap.Error(err))
			return errwrap.WrapInvalidInput(ctx, err, "config reload failed")
		}
		if next.RateLimit.EffectiveWindow() != cfg.RateLimit.EffectiveWindow() || next.RateLimit.Max != cfg.RateLimit.Max {
			logger.Warn("Rate limit settings changed; restart to apply",
				zap.Duration("window", next.RateLimit.EffectiveWindow()),
				zap.Int("max", next.RateLimit.Max))
		}
		logger.Info("Configuration reloaded")
		return nil
	})

	if err := signals.EnableDoubleTap(signals.DoubleTapConfig{
		Window:  2 * time.Second,
		Message: "Press Ctrl+C again within 2 seconds to force quit",
	}); err != nil {
		logger.Warn("Failed to enable double-tap force quit", zap.Error(err))
	}

	errChan := make(chan error, 2)
	go func() {
		errChan <- srv.Start()
	}()
	go func() {
		if err := signals.Listen(ctx); err != nil {
			logger.Error("Signal handler error", zap.Error(err))
			errChan <- err
		}
	}()

	if err := <-errChan; err != nil {
		return errwrap.WrapInternal(ctx, fmt.Errorf("serve: %w", err), "server error")
	}
	return nil
}
