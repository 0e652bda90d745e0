package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/minisuite/minisuite/internal/core/ratelimit"
	"github.com/minisuite/minisuite/internal/metrics"
	"github.com/minisuite/minisuite/internal/observability"
)

// Rate limit response headers.
const (
	HeaderRateLimitLimit     = "X-RateLimit-Limit"
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"
	HeaderRateLimitReset     = "X-RateLimit-Reset"
	HeaderRetryAfter         = "Retry-After"
)

// Client address headers, in priority order.
const (
	HeaderForwardedFor     = "X-Forwarded-For"
	HeaderCFConnectingIP   = "CF-Connecting-IP"
	tooManyRequestsMessage = "Too Many Requests"
)

// DefaultExemptPaths skips probes and scrapes.
var DefaultExemptPaths = []string{"/health", "/health/*", "/metrics"}

// RateLimitOptions configures RateLimit.
type RateLimitOptions struct {
	Limiter *ratelimit.Limiter
	// KeyFunc derives the bucket key; ClientKey when nil.
	KeyFunc func(*http.Request) string
	// ExemptPaths are exact paths, or prefixes when ending in "*".
	ExemptPaths []string
}

// ClientKey picks the first X-Forwarded-For entry, then CF-Connecting-IP, then "unknown".
func ClientKey(r *http.Request) string {
	if fwd := r.Header.Get(HeaderForwardedFor); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if ip := strings.TrimSpace(r.Header.Get(HeaderCFConnectingIP)); ip != "" {
		return ip
	}
	return ratelimit.UnknownClientKey
}

// RateLimit enforces the fixed-window limit per client key. Headers describing the
// bucket are set on every counted request; over-limit requests get a 429 and never
// reach next.
func RateLimit(opts RateLimitOptions) func(http.Handler) http.Handler {
	keyFunc := opts.KeyFunc
	if keyFunc == nil {
		keyFunc = ClientKey
	}
	exempt := opts.ExemptPaths

	return func(next http.Handler) http.Handler {
		if opts.Limiter == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isExempt(r.URL.Path, exempt) {
				next.ServeHTTP(w, r)
				return
			}

			decision, err := opts.Limiter.Take(r.Context(), keyFunc(r))
			if err != nil {
				metrics.RecordRateLimitError()
				respondWithError(w, r, fmt.Errorf("rate limit check: %w", err))
				return
			}

			setRateLimitHeaders(w.Header(), decision)
			metrics.RecordRateLimitDecision(decision.Allowed)

			if !decision.Allowed {
				retry := decision.RetryAfter(opts.Limiter.Now())
				w.Header().Set(HeaderRetryAfter, strconv.FormatInt(ceilSeconds(retry), 10))

				if observability.ServerLogger != nil {
					observability.ServerLogger.Warn("rate limit exceeded",
						zap.String("client", decision.Key),
						zap.Int("count", decision.Count),
						zap.Int("limit", decision.Limit),
						zap.Time("reset_at", decision.ResetAt),
						zap.String("request_id", GetRequestID(r.Context())),
					)
				}

				respondWithError(w, r, &StatusError{
					Status:  http.StatusTooManyRequests,
					Message: tooManyRequestsMessage,
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func setRateLimitHeaders(h http.Header, d ratelimit.Decision) {
	h.Set(HeaderRateLimitLimit, strconv.Itoa(d.Limit))
	h.Set(HeaderRateLimitRemaining, strconv.Itoa(d.Remaining))
	h.Set(HeaderRateLimitReset, strconv.FormatInt(d.ResetAt.Unix(), 10))
}

func ceilSeconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return int64((d + time.Second - 1) / time.Second)
}

func isExempt(path string, patterns []string) bool {
	for _, p := range patterns {
		if prefix, ok := strings.CutSuffix(p, "*"); ok {
			if strings.HasPrefix(path, prefix) {
				return true
			}
			continue
		}
		if path == p {
			return true
		}
	}
	return false
}
