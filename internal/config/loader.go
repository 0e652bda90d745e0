// Package config loads minisuite configuration from defaults, an optional YAML
// file, MINISUITE_* environment variables and runtime overrides.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Application naming used for env prefixes and XDG paths.
const (
	AppName   = "minisuite"
	EnvPrefix = "MINISUITE_"
)

// minSecretLength mirrors auth.MinSecretLength.
const minSecretLength = 32

var (
	appConfig  *Config
	configFile string
	configMu   sync.RWMutex
)

// EnvVarSpec maps one environment variable to a config path.
type EnvVarSpec = gfconfig.EnvVarSpec

// Environment variable types
const (
	EnvString = gfconfig.EnvString
	EnvInt    = gfconfig.EnvInt
	EnvBool   = gfconfig.EnvBool
)

// SetConfigFile selects an explicit YAML file; it must exist when set.
func SetConfigFile(path string) {
	configMu.Lock()
	defer configMu.Unlock()
	configFile = strings.TrimSpace(path)
}

// Load resolves the configuration and stores it for GetConfig. Later runtime
// override maps win over earlier ones. Safe to call again on reload.
func Load(ctx context.Context, runtimeOverrides ...map[string]any) (*Config, error) {
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	v := viper.New()
	setDefaults(v)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	// Short aliases are applied first so MINISUITE_* names take precedence.
	for _, specs := range [][]EnvVarSpec{aliasEnvSpecs(), getEnvSpecs()} {
		overrides, err := gfconfig.LoadEnvOverrides(specs)
		if err != nil {
			return nil, fmt.Errorf("failed to load environment overrides: %w", err)
		}
		if err := v.MergeConfigMap(overrides); err != nil {
			return nil, fmt.Errorf("failed to merge environment overrides: %w", err)
		}
	}

	for _, overrides := range runtimeOverrides {
		if len(overrides) == 0 {
			continue
		}
		if err := v.MergeConfigMap(overrides); err != nil {
			return nil, fmt.Errorf("failed to merge runtime overrides: %w", err)
		}
	}

	cfg, err := decode(v.AllSettings())
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(cfg.Store.URL) == "" && strings.TrimSpace(cfg.Store.Path) == "" {
		cfg.Store.Path = DefaultStorePath()
	}

	setConfig(cfg)
	return cfg, nil
}

func decode(settings map[string]any) (*Config, error) {
	cfg := &Config{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
			mapstructure.StringToFloat64HookFunc(),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}
	if err := decoder.Decode(settings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.CORS.Origins = trimList(cfg.CORS.Origins)
	cfg.RateLimit.ExemptPaths = trimList(cfg.RateLimit.ExemptPaths)
	return cfg, nil
}

func readConfigFile(v *viper.Viper) error {
	configMu.RLock()
	explicit := configFile
	configMu.RUnlock()

	path := explicit
	if path == "" {
		path = DefaultConfigPath()
		if path == "" {
			return nil
		}
		if _, err := os.Stat(path); err != nil {
			return nil
		}
	}

	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return nil
}

// setDefaults holds the built-in values for every key.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("store.driver", "libsql")
	v.SetDefault("store.path", "")
	v.SetDefault("store.url", "")
	v.SetDefault("store.auth_token", "")

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", "168h")
	v.SetDefault("auth.issuer", "")
	v.SetDefault("auth.login_burst", 5)
	v.SetDefault("auth.login_interval", "1m")

	v.SetDefault("rate_limit.backend", "memory")
	v.SetDefault("rate_limit.window", "15m")
	v.SetDefault("rate_limit.window_ms", 0)
	v.SetDefault("rate_limit.max", 100)
	v.SetDefault("rate_limit.exempt_paths", []string{"/health", "/health/*", "/metrics"})
	v.SetDefault("rate_limit.sweep_interval", "1m")
	v.SetDefault("rate_limit.grace", "1m")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", AppName+":ratelimit")

	v.SetDefault("cors.origins", []string{})
	v.SetDefault("security.hsts", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", "structured")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)
	v.SetDefault("health.enabled", true)
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.exporter", "stdout")
	v.SetDefault("tracing.sample_ratio", 1.0)
	v.SetDefault("debug.enabled", false)
	v.SetDefault("admin_token", "")
}

// GetConfig returns the current application configuration (thread-safe)
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

func setConfig(cfg *Config) {
	configMu.Lock()
	defer configMu.Unlock()
	appConfig = cfg
}

// getEnvSpecs maps MINISUITE_* variables to config paths.
func getEnvSpecs() []EnvVarSpec {
	p := EnvPrefix
	return []EnvVarSpec{
		{Name: p + "HOST", Path: []string{"server", "host"}, Type: EnvString},
		{Name: p + "PORT", Path: []string{"server", "port"}, Type: EnvInt},
		{Name: p + "READ_TIMEOUT", Path: []string{"server", "read_timeout"}, Type: EnvString},
		{Name: p + "WRITE_TIMEOUT", Path: []string{"server", "write_timeout"}, Type: EnvString},
		{Name: p + "IDLE_TIMEOUT", Path: []string{"server", "idle_timeout"}, Type: EnvString},
		{Name: p + "SHUTDOWN_TIMEOUT", Path: []string{"server", "shutdown_timeout"}, Type: EnvString},

		{Name: p + "LOG_LEVEL", Path: []string{"logging", "level"}, Type: EnvString},
		{Name: p + "LOG_PROFILE", Path: []string{"logging", "profile"}, Type: EnvString},

		{Name: p + "DB_DRIVER", Path: []string{"store", "driver"}, Type: EnvString},
		{Name: p + "DB_PATH", Path: []string{"store", "path"}, Type: EnvString},
		{Name: p + "DB_URL", Path: []string{"store", "url"}, Type: EnvString},
		{Name: p + "DB_AUTH_TOKEN", Path: []string{"store", "auth_token"}, Type: EnvString},

		{Name: p + "JWT_SECRET", Path: []string{"auth", "jwt_secret"}, Type: EnvString},
		{Name: p + "TOKEN_TTL", Path: []string{"auth", "token_ttl"}, Type: EnvString},
		{Name: p + "TOKEN_ISSUER", Path: []string{"auth", "issuer"}, Type: EnvString},
		{Name: p + "LOGIN_BURST", Path: []string{"auth", "login_burst"}, Type: EnvInt},
		{Name: p + "LOGIN_INTERVAL", Path: []string{"auth", "login_interval"}, Type: EnvString},

		{Name: p + "RATE_LIMIT_BACKEND", Path: []string{"rate_limit", "backend"}, Type: EnvString},
		{Name: p + "RATE_LIMIT_WINDOW", Path: []string{"rate_limit", "window"}, Type: EnvString},
		{Name: p + "RATE_LIMIT_WINDOW_MS", Path: []string{"rate_limit", "window_ms"}, Type: EnvInt},
		{Name: p + "RATE_LIMIT_MAX", Path: []string{"rate_limit", "max"}, Type: EnvInt},
		{Name: p + "RATE_LIMIT_EXEMPT_PATHS", Path: []string{"rate_limit", "exempt_paths"}, Type: EnvString},
		{Name: p + "RATE_LIMIT_SWEEP_INTERVAL", Path: []string{"rate_limit", "sweep_interval"}, Type: EnvString},

		{Name: p + "REDIS_ADDR", Path: []string{"redis", "addr"}, Type: EnvString},
		{Name: p + "REDIS_PASSWORD", Path: []string{"redis", "password"}, Type: EnvString},
		{Name: p + "REDIS_DB", Path: []string{"redis", "db"}, Type: EnvInt},

		{Name: p + "CORS_ORIGINS", Path: []string{"cors", "origins"}, Type: EnvString},
		{Name: p + "HSTS", Path: []string{"security", "hsts"}, Type: EnvBool},

		{Name: p + "METRICS_ENABLED", Path: []string{"metrics", "enabled"}, Type: EnvBool},
		{Name: p + "METRICS_PORT", Path: []string{"metrics", "port"}, Type: EnvInt},
		{Name: p + "HEALTH_ENABLED", Path: []string{"health", "enabled"}, Type: EnvBool},
		{Name: p + "TRACING_ENABLED", Path: []string{"tracing", "enabled"}, Type: EnvBool},
		{Name: p + "TRACING_EXPORTER", Path: []string{"tracing", "exporter"}, Type: EnvString},
		{Name: p + "DEBUG_ENABLED", Path: []string{"debug", "enabled"}, Type: EnvBool},
		{Name: p + "ADMIN_TOKEN", Path: []string{"admin_token"}, Type: EnvString},
	}
}

// aliasEnvSpecs are the unprefixed names common in deployment manifests.
func aliasEnvSpecs() []EnvVarSpec {
	return []EnvVarSpec{
		{Name: "JWT_SECRET", Path: []string{"auth", "jwt_secret"}, Type: EnvString},
		{Name: "CORS_ORIGIN", Path: []string{"cors", "origins"}, Type: EnvString},
		{Name: "RATE_LIMIT_WINDOW_MS", Path: []string{"rate_limit", "window_ms"}, Type: EnvInt},
		{Name: "RATE_LIMIT_MAX", Path: []string{"rate_limit", "max"}, Type: EnvInt},
		{Name: "REDIS_URL", Path: []string{"redis", "addr"}, Type: EnvString},
	}
}

// DefaultConfigPath returns the XDG-compliant path to the user config file.
func DefaultConfigPath() string {
	dir := gfconfig.GetAppConfigDir(AppName)
	if strings.TrimSpace(dir) == "" {
		return ""
	}
	return filepath.Join(dir, "config.yaml")
}

// DefaultStorePath returns the XDG-compliant path to the database file.
func DefaultStorePath() string {
	dir := gfconfig.GetAppDataDir(AppName)
	if strings.TrimSpace(dir) == "" {
		return "./" + AppName + ".db"
	}
	return filepath.Join(dir, AppName+".db")
}

// Validate reports every setting the server cannot start with.
func (c *Config) Validate() error {
	var errs []error

	if len(c.Auth.JWTSecret) < minSecretLength {
		errs = append(errs, fmt.Errorf("auth.jwt_secret must be at least %d bytes (set JWT_SECRET)", minSecretLength))
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New("auth.token_ttl must be positive"))
	}
	if c.RateLimit.EffectiveWindow() <= 0 {
		errs = append(errs, errors.New("rate_limit.window must be positive"))
	}
	if c.RateLimit.Max <= 0 {
		errs = append(errs, errors.New("rate_limit.max must be positive"))
	}

	switch c.RateLimit.Backend {
	case "memory", "sql":
	case "redis":
		if strings.TrimSpace(c.Redis.Addr) == "" {
			errs = append(errs, errors.New("redis.addr is required for the redis rate limit backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("rate_limit.backend %q is not one of memory, sql, redis", c.RateLimit.Backend))
	}

	switch c.Store.Driver {
	case "", "libsql", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("store.driver %q is not one of libsql, sqlite", c.Store.Driver))
	}

	if c.Tracing.Enabled {
		switch c.Tracing.Exporter {
		case "stdout", "none":
		default:
			errs = append(errs, fmt.Errorf("tracing.exporter %q is not one of stdout, none", c.Tracing.Exporter))
		}
	}

	return errors.Join(errs...)
}

func trimList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
