package metrics

import "github.com/minisuite/minisuite/internal/observability"

// Metric names for the rate limiter and authentication.
const (
	RateLimitDecisionsTotal = "rate_limit_decisions_total"
	RateLimitErrorsTotal    = "rate_limit_store_errors_total"
	AuthOutcomesTotal       = "auth_outcomes_total"
)

// RecordRateLimitDecision counts allowed and rejected requests.
func RecordRateLimitDecision(allowed bool) {
	if observability.TelemetrySystem == nil {
		return
	}
	decision := "allowed"
	if !allowed {
		decision = "limited"
	}
	_ = observability.TelemetrySystem.Counter(RateLimitDecisionsTotal, 1, map[string]string{
		"decision": decision,
	})
}

// RecordRateLimitError counts counter store failures.
func RecordRateLimitError() {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(RateLimitErrorsTotal, 1, nil)
	}
}

// RecordAuthOutcome counts auth events, e.g. ("login", "ok") or ("verify", "invalid").
func RecordAuthOutcome(operation, outcome string) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(AuthOutcomesTotal, 1, map[string]string{
			"operation": operation,
			"outcome":   outcome,
		})
	}
}
