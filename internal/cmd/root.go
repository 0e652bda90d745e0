package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/fulmenhq/gofulmen/telemetry"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/minisuite/minisuite/internal/config"
	"github.com/minisuite/minisuite/internal/observability"
)

var (
	cfgFile string
	envFile string
	verbose bool

	// Version info set by main package
	versionInfo struct {
		Version   string
		Commit    string
		BuildDate string
	}
)

// SetVersionInfo is called by main package to set version information
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   config.AppName,
	Short: "Multi-tenant web platform core",
	Long: config.AppName + ` serves the authenticated JSON API behind a rate limited,
validated middleware pipeline, and administers its users and rate limit state.

Use the subcommands to perform specific operations.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.ExecuteContext(context.Background())
}

func init() {
	// Keep config loading quiet; serve installs the Prometheus-backed system.
	if sys, err := telemetry.NewSystem(&telemetry.Config{Enabled: false}); err == nil {
		telemetry.SetGlobalSystem(sys)
	}

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		fmt.Sprintf("config file (default is $XDG_CONFIG_HOME/%s/config.yaml)", config.AppName))
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before configuration (missing file is ignored)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (sets log level to debug)")
}

// initConfig prepares logging and config sources; commands call loadConfig.
func initConfig() {
	observability.InitCLILogger(config.AppName, verbose)

	if err := loadDotenv(envFile); err != nil {
		ExitWithCode(observability.CLILogger, foundry.ExitConfigInvalid, "Failed to read env file", err)
	}

	config.SetConfigFile(cfgFile)
	if verbose && cfgFile != "" {
		observability.CLILogger.Debug("Using config file", zap.String("path", cfgFile))
	}
}

// loadDotenv fills unset variables from path. Existing environment wins.
func loadDotenv(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	if observability.CLILogger != nil {
		observability.CLILogger.Debug("Loaded env file", zap.String("path", path))
	}
	return nil
}

// loadConfig loads and validates configuration for commands that need it.
func loadConfig(ctx context.Context, overrides ...map[string]any) (*config.Config, error) {
	cfg, err := config.Load(ctx, overrides...)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
