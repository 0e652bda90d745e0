package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecoveryReturnsGenericInternalError(t *testing.T) {
	collector := setupTelemetry(t)

	handler := Recovery(RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("secret database password in panic message")
	})))

	rec := httptest.NewRecorder()
	require.NotPanics(t, func() {
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"error":"Internal Server Error"}`, rec.Body.String())
	assert.Greater(t, collector.CountMetricsByName("panics_total"), 0)
}

func TestRecoveryUsesInjectedResponder(t *testing.T) {
	var got error
	SetErrorResponder(func(w http.ResponseWriter, r *http.Request, err error) {
		got = err
		w.WriteHeader(http.StatusTeapot)
	})
	t.Cleanup(func() { SetErrorResponder(nil) })

	handler := Recovery(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(errors.New("kaboom"))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	require.Error(t, got)
	assert.Contains(t, got.Error(), "kaboom")
}

func TestRecoveryKeepsRequestID(t *testing.T) {
	var seen string
	SetErrorResponder(func(w http.ResponseWriter, r *http.Request, err error) {
		seen = GetRequestID(r.Context())
		w.WriteHeader(http.StatusInternalServerError)
	})
	t.Cleanup(func() { SetErrorResponder(nil) })

	handler := Recovery(RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})))

	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "req-123", rec.Header().Get(RequestIDHeader))
	assert.Equal(t, "req-123", seen)
}

func TestRecoveryRepanicsOnAbort(t *testing.T) {
	handler := Recovery(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}

func TestFallbackResponderStatusCarrier(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		body   string
	}{
		{"client status", &StatusError{Status: http.StatusForbidden}, http.StatusForbidden, `{"error":"Forbidden"}`},
		{"wrapped client status", errors.Join(errors.New("ctx"), &StatusError{Status: http.StatusConflict}), http.StatusConflict, `{"error":"Conflict"}`},
		{"server status keeps code, hides message", &StatusError{Status: http.StatusBadGateway, Message: "upstream x"}, http.StatusBadGateway, `{"error":"Bad Gateway"}`},
		{"plain error", errors.New("boom"), http.StatusInternalServerError, `{"error":"Internal Server Error"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			fallbackResponder(rec, httptest.NewRequest(http.MethodGet, "/", nil), tt.err)
			assert.Equal(t, tt.status, rec.Code)
			assert.JSONEq(t, tt.body, rec.Body.String())
		})
	}
}

func TestSecureHeaders(t *testing.T) {
	handler := SecureHeaders(SecureHeadersOptions{HSTS: true, NoStorePrefix: "/api/"})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/auth/me", nil))

	h := rec.Header()
	assert.Equal(t, "DENY", h.Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", h.Get("X-Content-Type-Options"))
	assert.Equal(t, "no-referrer", h.Get("Referrer-Policy"))
	assert.Contains(t, h.Get("Content-Security-Policy"), "default-src 'none'")
	assert.NotEmpty(t, h.Get("Strict-Transport-Security"))
	assert.Equal(t, "no-store", h.Get("Cache-Control"))

	rec = httptest.NewRecorder()
	SecureHeaders(SecureHeadersOptions{NoStorePrefix: "/api/"})(http.NotFoundHandler()).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Empty(t, rec.Header().Get("Strict-Transport-Security"))
	assert.Empty(t, rec.Header().Get("Cache-Control"))
}

func TestCORSAllowsConfiguredOrigin(t *testing.T) {
	handler := CORS([]string{"https://app.example.com"})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodOptions, "/api/auth/login", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))

	req = httptest.NewRequest(http.MethodGet, "/api/auth/login", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
