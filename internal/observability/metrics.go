package observability

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/fulmenhq/gofulmen/telemetry"
	"github.com/fulmenhq/gofulmen/telemetry/exporters"
)

// fallbackMetricsPort is reported when an ephemeral exporter port cannot be resolved.
const fallbackMetricsPort = 9090

var (
	// TelemetrySystem receives every metric emitted by internal/metrics.
	TelemetrySystem *telemetry.System

	// PrometheusExporter serves the scrape endpoint proxied by GET /metrics.
	PrometheusExporter *exporters.PrometheusExporter

	metricsPort int
)

// InitMetrics starts the Prometheus exporter on port (0 picks a free port)
// and installs the telemetry system. Metric names are prefixed with the
// sanitized namespace, or serviceName when none is given.
func InitMetrics(serviceName string, port int, namespace ...string) error {
	if port < 0 {
		port = 0
	}
	metricsPort = port

	ns := serviceName
	if len(namespace) > 0 && namespace[0] != "" {
		ns = namespace[0]
	}

	exporter := exporters.NewPrometheusExporter(MetricNamespace(ns), fmt.Sprintf(":%d", port))
	if err := exporter.Start(); err != nil {
		return fmt.Errorf("start prometheus exporter: %w", err)
	}
	PrometheusExporter = exporter

	if actual, err := resolvePort(exporter.GetAddr()); err == nil {
		metricsPort = actual
	} else if port == 0 {
		metricsPort = fallbackMetricsPort
	}

	sys, err := telemetry.NewSystem(&telemetry.Config{
		Enabled: true,
		Emitter: exporter,
	})
	if err != nil {
		return fmt.Errorf("create telemetry system: %w", err)
	}
	TelemetrySystem = sys
	return nil
}

// GetMetricsPort returns the port the Prometheus exporter is listening on
func GetMetricsPort() int {
	return metricsPort
}

// MetricNamespace maps a service name onto the Prometheus name charset.
func MetricNamespace(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return "app"
	}
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := b.String()
	if out[0] >= '0' && out[0] <= '9' {
		out = "_" + out
	}
	return out
}

func resolvePort(addr string) (int, error) {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(portStr)
}
