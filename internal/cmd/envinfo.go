package cmd

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/minisuite/minisuite/internal/config"
	"github.com/minisuite/minisuite/internal/observability"
)

var envInfoCmd = &cobra.Command{
	Use:   "envinfo",
	Short: "Display environment information",
	Long:  "Display environment, configuration, and version information. Secrets are reported as set or not set.",
	Run: func(cmd *cobra.Command, args []string) {
		log := observability.CLILogger
		version := crucible.GetVersion()

		log.Info("=== minisuite Environment Information ===")
		log.Info("")

		log.Info("Application:")
		log.Info("  Name:       " + config.AppName)
		log.Info("  Version:    " + versionInfo.Version)
		log.Info("  Commit:     " + versionInfo.Commit)
		log.Info("  Built:      " + versionInfo.BuildDate)
		log.Info("  Gofulmen:   "+version.Gofulmen, zap.String("gofulmen_version", version.Gofulmen))
		log.Info("")

		log.Info("Runtime:")
		log.Info("  Go Version: "+runtime.Version(), zap.String("go_version", runtime.Version()))
		log.Info("  GOOS:       "+runtime.GOOS, zap.String("goos", runtime.GOOS))
		log.Info("  GOARCH:     "+runtime.GOARCH, zap.String("goarch", runtime.GOARCH))
		log.Info("")

		cfg, err := config.Load(cmd.Context())
		if err != nil {
			log.Warn("Config load failed", zap.Error(err))
			return
		}

		log.Info("Server:")
		log.Info(fmt.Sprintf("  Address:        %s:%d", cfg.Server.Host, cfg.Server.Port))
		log.Info("  Log Level:      "+cfg.Logging.Level, zap.String("log_level", cfg.Logging.Level))
		log.Info("  Log Profile:    " + cfg.Logging.Profile)
		log.Info(fmt.Sprintf("  Metrics:        %t (port %d)", cfg.Metrics.Enabled, cfg.Metrics.Port))
		log.Info(fmt.Sprintf("  Tracing:        %t (%s)", cfg.Tracing.Enabled, cfg.Tracing.Exporter))
		log.Info("  Config File:    " + config.DefaultConfigPath())
		log.Info("")

		log.Info("Store:")
		log.Info("  Driver:         " + cfg.Store.Driver)
		if strings.TrimSpace(cfg.Store.URL) != "" {
			log.Info("  URL:            " + cfg.Store.URL)
		} else {
			log.Info("  Path:           " + cfg.Store.Path)
		}
		log.Info("")

		log.Info("Security:")
		log.Info("  JWT Secret:     " + setOrNot(cfg.Auth.JWTSecret))
		log.Info("  Token TTL:      " + cfg.Auth.TokenTTL.String())
		log.Info("  Admin Token:    " + setOrNot(cfg.AdminToken))
		log.Info(fmt.Sprintf("  HSTS:           %t", cfg.Security.HSTS))
		if len(cfg.CORS.Origins) == 0 {
			log.Info("  CORS Origins:   * (any)")
		} else {
			log.Info("  CORS Origins:   " + strings.Join(cfg.CORS.Origins, ", "))
		}
		log.Info("")

		log.Info("Rate Limit:")
		log.Info("  Backend:        " + cfg.RateLimit.Backend)
		log.Info(fmt.Sprintf("  Window:         %s", cfg.RateLimit.EffectiveWindow()))
		log.Info(fmt.Sprintf("  Max:            %d", cfg.RateLimit.Max))
		log.Info("  Exempt:         " + strings.Join(cfg.RateLimit.ExemptPaths, ", "))
		if cfg.RateLimit.Backend == "redis" {
			log.Info("  Redis:          " + cfg.Redis.Addr)
		}
		log.Info("")

		if err := cfg.Validate(); err != nil {
			log.Warn("Configuration is not valid for serve", zap.Error(err))
		}
		log.Info("=== End Environment Information ===")
	},
}

func setOrNot(value string) string {
	if strings.TrimSpace(value) == "" {
		return "(not set)"
	}
	return "(set)"
}

func init() {
	rootCmd.AddCommand(envInfoCmd)
}
