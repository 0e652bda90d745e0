package middleware

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/minisuite/minisuite/internal/core"
	"github.com/minisuite/minisuite/internal/core/auth"
	"github.com/minisuite/minisuite/internal/metrics"
	"github.com/minisuite/minisuite/internal/observability"
)

// TokenVerifier validates bearer tokens.
type TokenVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

type claimsContextKey struct{}

const bearerPrefix = "bearer "

// WithClaims stores verified claims in ctx.
func WithClaims(ctx context.Context, claims *auth.Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey{}, claims)
}

// ClaimsFromContext returns the claims set by Authenticate.
func ClaimsFromContext(ctx context.Context) (*auth.Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey{}).(*auth.Claims)
	return claims, ok && claims != nil
}

// Authenticate requires "Authorization: Bearer <token>" and attaches the verified
// claims to the request context. Every failure yields the same 401.
func Authenticate(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				metrics.RecordAuthOutcome("verify", "missing")
				respondWithError(w, r, &StatusError{Status: http.StatusUnauthorized, Message: "Unauthorized"})
				return
			}

			claims, err := verifier.Verify(token)
			if err != nil {
				metrics.RecordAuthOutcome("verify", "invalid")
				if observability.ServerLogger != nil {
					observability.ServerLogger.Debug("token rejected",
						zap.Error(err),
						zap.String("request_id", GetRequestID(r.Context())),
					)
				}
				respondWithError(w, r, &StatusError{Status: http.StatusUnauthorized, Message: "Unauthorized", Err: err})
				return
			}

			metrics.RecordAuthOutcome("verify", "ok")
			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// RequireRole admits requests whose claims carry one of roles. It must run after
// Authenticate; a missing claim set is treated as unauthenticated.
func RequireRole(roles ...core.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				respondWithError(w, r, &StatusError{Status: http.StatusUnauthorized, Message: "Unauthorized"})
				return
			}
			for _, role := range roles {
				if claims.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			respondWithError(w, r, &StatusError{Status: http.StatusForbidden, Message: "Forbidden"})
		})
	}
}

func bearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if len(header) <= len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(bearerPrefix):])
	return token, token != ""
}
