package config

import (
	"time"
)

// Config represents the complete application configuration. Values are layered:
// built-in defaults, then an optional YAML file, then environment variables, then
// runtime overrides.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Store     StoreConfig     `mapstructure:"store"`
	Auth      AuthConfig      `mapstructure:"auth"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Redis     RedisConfig     `mapstructure:"redis"`
	CORS      CORSConfig      `mapstructure:"cors"`
	Security  SecurityConfig  `mapstructure:"security"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Health    HealthConfig    `mapstructure:"health"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	Debug     DebugConfig     `mapstructure:"debug"`

	// AdminToken enables POST /admin/signal when set.
	AdminToken string `mapstructure:"admin_token"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// StoreConfig selects the SQL driver and location of the primary database.
type StoreConfig struct {
	// Driver is "libsql" (default) or "sqlite".
	Driver    string `mapstructure:"driver"`
	Path      string `mapstructure:"path"`
	URL       string `mapstructure:"url"`
	AuthToken string `mapstructure:"auth_token"`
}

// AuthConfig configures token signing and login throttling.
type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
	Issuer    string        `mapstructure:"issuer"`

	// LoginBurst attempts per email are allowed, refilled one per LoginInterval.
	LoginBurst    int           `mapstructure:"login_burst"`
	LoginInterval time.Duration `mapstructure:"login_interval"`
}

// RateLimitConfig configures the per-client fixed window.
type RateLimitConfig struct {
	// Backend is one of "memory", "sql" or "redis".
	Backend string        `mapstructure:"backend"`
	Window  time.Duration `mapstructure:"window"`
	// WindowMS overrides Window when positive.
	WindowMS    int64    `mapstructure:"window_ms"`
	Max         int      `mapstructure:"max"`
	ExemptPaths []string `mapstructure:"exempt_paths"`

	// SweepInterval and Grace control removal of expired buckets.
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	Grace         time.Duration `mapstructure:"grace"`
}

// EffectiveWindow resolves WindowMS over Window.
func (c RateLimitConfig) EffectiveWindow() time.Duration {
	if c.WindowMS > 0 {
		return time.Duration(c.WindowMS) * time.Millisecond
	}
	return c.Window
}

// RedisConfig is used when the rate limit backend is "redis".
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// CORSConfig lists allowed browser origins; empty means any.
type CORSConfig struct {
	Origins []string `mapstructure:"origins"`
}

// SecurityConfig toggles transport-dependent headers.
type SecurityConfig struct {
	HSTS bool `mapstructure:"hsts"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	// Level controls the minimum log level
	// Valid values: trace, debug, info, warn, error
	Level string `mapstructure:"level"`

	// Profile selects the logging complexity level (SIMPLE, STRUCTURED)
	Profile string `mapstructure:"profile"`
}

// MetricsConfig contains Prometheus metrics configuration
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// Port is the dedicated exporter port; /metrics on the main port proxies it.
	Port int `mapstructure:"port"`
}

// HealthConfig contains health check configuration
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// TracingConfig enables OpenTelemetry spans around the HTTP pipeline.
type TracingConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Exporter is "stdout" or "none".
	Exporter    string  `mapstructure:"exporter"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// DebugConfig contains debug configuration
type DebugConfig struct {
	Enabled bool `mapstructure:"enabled"`
}
