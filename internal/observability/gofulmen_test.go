package observability_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/fulmenhq/gofulmen/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/minisuite/minisuite/internal/observability"
)

func TestLoggers(t *testing.T) {
	t.Run("CLI logger", func(t *testing.T) {
		observability.InitCLILogger("minisuite-test", true)
		require.NotNil(t, observability.CLILogger)
		observability.CLILogger.Debug("cli debug", zap.String("mode", "verbose"))
	})

	t.Run("structured server logger", func(t *testing.T) {
		observability.InitServerLogger("minisuite-test", "debug", "structured")
		require.NotNil(t, observability.ServerLogger)
		observability.ServerLogger.Info("server ready", zap.Int("port", 8080))
	})

	t.Run("simple server logger", func(t *testing.T) {
		cfg := observability.ServerLoggerConfig("minisuite-test", "warn", "SIMPLE")
		assert.Equal(t, logging.ProfileSimple, cfg.Profile)
		assert.Equal(t, "WARN", cfg.DefaultLevel)
		assert.Equal(t, "console", cfg.Sinks[0].Format)
		assert.Empty(t, cfg.Middleware)

		logger, err := logging.New(cfg)
		require.NoError(t, err)
		logger.Warn("simple line")
	})

	t.Run("unknown level falls back to info", func(t *testing.T) {
		cfg := observability.ServerLoggerConfig("minisuite-test", "loud", "")
		assert.Equal(t, "INFO", cfg.DefaultLevel)
		assert.Equal(t, logging.ProfileStructured, cfg.Profile)
	})
}

func TestMetricNamespace(t *testing.T) {
	tests := map[string]string{
		"minisuite":      "minisuite",
		"Mini-Suite":     "mini_suite",
		"  ":             "app",
		"9lives":         "_9lives",
		"svc.rate.limit": "svc_rate_limit",
	}
	for in, want := range tests {
		assert.Equal(t, want, observability.MetricNamespace(in), in)
	}
}

func TestInitTracing(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := observability.InitTracing(context.Background(), observability.TracingOptions{
		ServiceName: "minisuite-test",
		Version:     "dev",
		Exporter:    "stdout",
		Writer:      &buf,
	})
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "unit-span")
	span.End()

	require.NoError(t, shutdown(context.Background()))
	assert.Contains(t, buf.String(), "unit-span")
}

func TestInitTracingRejectsUnknownExporter(t *testing.T) {
	_, err := observability.InitTracing(context.Background(), observability.TracingOptions{Exporter: "zipkin"})
	require.Error(t, err)
}

func TestCrucibleVersion(t *testing.T) {
	version := crucible.GetVersion()
	assert.NotEmpty(t, version.Gofulmen)
	assert.NotEmpty(t, version.Crucible)
	assert.NotEmpty(t, crucible.GetVersionString())
}
