package middleware

import (
	"net/http"
	"strings"

	"github.com/go-chi/cors"
)

// SecureHeadersOptions configures SecureHeaders.
type SecureHeadersOptions struct {
	// HSTS adds Strict-Transport-Security; only enable behind TLS.
	HSTS bool
	// NoStorePrefix marks responses under this path as non-cacheable.
	NoStorePrefix string
}

// SecureHeaders sets conservative browser security headers on every response.
func SecureHeaders(opts SecureHeadersOptions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Frame-Options", "DENY")
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("Referrer-Policy", "no-referrer")
			h.Set("X-XSS-Protection", "0")
			h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
			if opts.HSTS {
				h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}
			if opts.NoStorePrefix != "" && strings.HasPrefix(r.URL.Path, opts.NoStorePrefix) {
				h.Set("Cache-Control", "no-store")
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CORS allows the configured origins. An empty list or "*" allows any origin
// without credentials.
func CORS(origins []string) func(http.Handler) http.Handler {
	allowed := make([]string, 0, len(origins))
	wildcard := len(origins) == 0
	for _, origin := range origins {
		origin = strings.TrimSpace(origin)
		if origin == "" {
			continue
		}
		if origin == "*" {
			wildcard = true
		}
		allowed = append(allowed, origin)
	}
	if wildcard {
		allowed = []string{"*"}
	}

	return cors.Handler(cors.Options{
		AllowedOrigins: allowed,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", RequestIDHeader},
		ExposedHeaders: []string{
			RequestIDHeader,
			HeaderRateLimitLimit,
			HeaderRateLimitRemaining,
			HeaderRateLimitReset,
			HeaderRetryAfter,
		},
		AllowCredentials: !wildcard,
		MaxAge:           300,
	})
}
