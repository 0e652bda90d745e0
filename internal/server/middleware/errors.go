package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"sync"

	"go.uber.org/zap"

	"github.com/minisuite/minisuite/internal/metrics"
	"github.com/minisuite/minisuite/internal/observability"
)

// ErrorResponder renders an error as an HTTP response.
type ErrorResponder func(w http.ResponseWriter, r *http.Request, err error)

var (
	responderMu sync.RWMutex
	responder   ErrorResponder = fallbackResponder
)

// SetErrorResponder lets the server package inject the centralized error handler.
// Passing nil restores the built-in fallback.
func SetErrorResponder(fn ErrorResponder) {
	responderMu.Lock()
	defer responderMu.Unlock()
	if fn == nil {
		responder = fallbackResponder
		return
	}
	responder = fn
}

func respondWithError(w http.ResponseWriter, r *http.Request, err error) {
	responderMu.RLock()
	fn := responder
	responderMu.RUnlock()
	fn(w, r, err)
}

// StatusError is a client-facing failure that knows its HTTP status.
type StatusError struct {
	Status  int
	Message string
	Err     error
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return http.StatusText(e.Status)
}

// HTTPStatus reports the response status for this error.
func (e *StatusError) HTTPStatus() int { return e.Status }

func (e *StatusError) Unwrap() error { return e.Err }

// Recovery turns a panic anywhere below it into a generic 500 response.
// http.ErrAbortHandler is re-raised so net/http can abort the connection.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}

			req := withRecoveredRequestID(w, r)
			metrics.RecordPanic()
			if observability.ServerLogger != nil {
				observability.ServerLogger.Error("panic recovered",
					zap.String("panic", fmt.Sprint(rec)),
					zap.String("stack_trace", string(debug.Stack())),
					zap.String("path", req.URL.Path),
					zap.String("request_id", GetRequestID(req.Context())),
				)
			}

			respondWithError(w, req, fmt.Errorf("panic: %v", rec))
		}()

		next.ServeHTTP(w, r)
	})
}

// withRecoveredRequestID restores the request ID for a panic raised below RequestID.
// The inner request context is gone by then, but the echoed header is still on w.
func withRecoveredRequestID(w http.ResponseWriter, r *http.Request) *http.Request {
	if GetRequestID(r.Context()) != "" {
		return r
	}
	requestID := w.Header().Get(RequestIDHeader)
	if requestID == "" {
		return r
	}
	return r.WithContext(context.WithValue(r.Context(), RequestIDContextKey, requestID))
}

// errorBody mirrors the shape written by the centralized responder.
type errorBody struct {
	Error string `json:"error"`
}

// fallbackResponder is used until a responder is injected.
func fallbackResponder(w http.ResponseWriter, _ *http.Request, err error) {
	status := http.StatusInternalServerError
	message := http.StatusText(status)

	var carrier interface{ HTTPStatus() int }
	if errors.As(err, &carrier) {
		if s := carrier.HTTPStatus(); s >= 400 && s <= 599 {
			status = s
			message = http.StatusText(s)
		}
	}

	writeJSON(w, status, errorBody{Error: message})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
