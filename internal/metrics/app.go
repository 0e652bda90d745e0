package metrics

import (
	"time"

	"github.com/minisuite/minisuite/internal/observability"
)

// Application-level metric names.
const (
	HealthCheckTotal    = "app_health_check_total"
	HealthCheckDuration = "app_health_check_duration_ms"
	ServerStartTime     = "app_server_start_time_seconds"
	RateBucketsSwept    = "app_rate_buckets_swept"
)

// RecordHealthCheck records one checker execution.
func RecordHealthCheck(checkName string, healthy bool, duration time.Duration) {
	if observability.TelemetrySystem == nil {
		return
	}

	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}
	_ = observability.TelemetrySystem.Counter(HealthCheckTotal, 1, map[string]string{
		"check":  checkName,
		"status": status,
	})
	_ = observability.TelemetrySystem.Histogram(HealthCheckDuration, duration, map[string]string{
		"check": checkName,
	})
}

// SetServerStartTime records the server start time as a Unix timestamp.
func SetServerStartTime(timestamp int64) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Gauge(ServerStartTime, float64(timestamp), nil)
	}
}

// RecordBucketsSwept reports how many expired rate buckets the last sweep removed.
func RecordBucketsSwept(backend string, removed int) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Gauge(RateBucketsSwept, float64(removed), map[string]string{
			"backend": backend,
		})
	}
}
