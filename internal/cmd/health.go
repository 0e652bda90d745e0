package cmd

import (
	"context"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/minisuite/minisuite/internal/observability"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Run self-health check",
	Long:  "Verify the configuration is valid for serve and the store and rate limit backend are reachable.",
	Run: func(cmd *cobra.Command, args []string) {
		log := observability.CLILogger
		log.Info("Running health check...")

		cfg, err := loadConfig(cmd.Context())
		if err != nil {
			ExitWithCode(log, foundry.ExitConfigInvalid, "Configuration could not be loaded", err)
			return
		}
		if err := cfg.Validate(); err != nil {
			ExitWithCode(log, foundry.ExitConfigInvalid, "Configuration is invalid", err)
			return
		}
		log.Info("✅ Configuration valid")

		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()

		db, err := openStore(ctx, cfg)
		if err != nil {
			ExitWithCode(log, foundry.ExitFailure, "Store unavailable", err)
			return
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup
		if err := db.Ping(ctx); err != nil {
			ExitWithCode(log, foundry.ExitFailure, "Store ping failed", err)
			return
		}
		log.Info("✅ Store reachable", zap.String("driver", db.Driver()))

		backend, err := openRateLimitBackend(ctx, cfg, db)
		if err != nil {
			ExitWithCode(log, foundry.ExitFailure, "Rate limit backend unavailable", err)
			return
		}
		defer backend.close() // nolint:errcheck // best-effort cleanup
		if backend.health != nil {
			if err := backend.health.CheckHealth(ctx); err != nil {
				ExitWithCode(log, foundry.ExitFailure, "Rate limit backend unhealthy", err)
				return
			}
		}
		log.Info("✅ Rate limit backend ready", zap.String("backend", backend.name))

		log.Info("")
		log.Info("✅ All health checks passed")
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
