package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/fulmenhq/gofulmen/errors"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/minisuite/minisuite/internal/metrics"
	"github.com/minisuite/minisuite/internal/observability"
	"github.com/minisuite/minisuite/internal/server/middleware"
)

// Error codes carried by envelopes and mapped to HTTP status codes.
const (
	CodeInvalidInput       = "INVALID_INPUT"
	CodeValidationFailed   = "VALIDATION_FAILED"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeForbidden          = "FORBIDDEN"
	CodeNotFound           = "NOT_FOUND"
	CodeMethodNotAllowed   = "METHOD_NOT_ALLOWED"
	CodeConflict           = "CONFLICT"
	CodeRateLimited        = "RATE_LIMITED"
	CodeInternal           = "INTERNAL_ERROR"
	CodeDatabase           = "DATABASE_ERROR"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	CodeTimeout            = "TIMEOUT"
)

// Messages exposed to callers where the cause must stay private.
const (
	MessageUnauthorized    = "Unauthorized"
	MessageForbidden       = "Forbidden"
	MessageTooManyRequests = "Too Many Requests"
	MessageInternal        = "Internal Server Error"
	MessageValidation      = "Validation failed"
)

// Detail keys holding the validation breakdown on an envelope.
const (
	detailFieldErrors = "fieldErrors"
	detailFormErrors  = "formErrors"
)

// contextHTTPStatus records a status attached by the failing component.
const contextHTTPStatus = "http_status"

// User Errors (400-level)
func NewInvalidInputError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeInvalidInput, message)
}

func NewNotFoundError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeNotFound, message)
}

func NewUnauthorizedError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeUnauthorized, message)
}

func NewForbiddenError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeForbidden, message)
}

func NewMethodNotAllowedError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeMethodNotAllowed, message)
}

func NewConflictError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeConflict, message)
}

func NewRateLimitedError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeRateLimited, message)
}

// NewValidationError builds a 400 envelope carrying per-field and form-level messages.
func NewValidationError(fieldErrors map[string][]string, formErrors []string) *errors.ErrorEnvelope {
	if fieldErrors == nil {
		fieldErrors = map[string][]string{}
	}
	if formErrors == nil {
		formErrors = []string{}
	}

	// Context only admits scalars and string slices, so the breakdown rides in Details.
	return errors.NewErrorEnvelope(CodeValidationFailed, MessageValidation).
		WithDetails(map[string]interface{}{
			detailFieldErrors: fieldErrors,
			detailFormErrors:  formErrors,
		})
}

// Server Errors (500-level)
func NewInternalError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeInternal, message)
}

func NewDatabaseError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeDatabase, message)
}

func NewServiceUnavailableError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeServiceUnavailable, message)
}

// Wrap functions for existing errors
// These functions accept a context to extract correlation/trace IDs from the request context

func WrapInvalidInput(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	return wrap(ctx, CodeInvalidInput, err, message)
}

func WrapNotFound(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	return wrap(ctx, CodeNotFound, err, message)
}

func WrapUnauthorized(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	return wrap(ctx, CodeUnauthorized, err, message)
}

func WrapForbidden(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	return wrap(ctx, CodeForbidden, err, message)
}

func WrapConflict(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	return wrap(ctx, CodeConflict, err, message)
}

func WrapRateLimited(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	return wrap(ctx, CodeRateLimited, err, message)
}

func WrapInternal(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	env := wrap(ctx, CodeInternal, err, message)
	if updated, sevErr := env.WithSeverity(errors.SeverityHigh); sevErr == nil {
		env = updated
	}
	return env
}

func WrapDatabaseError(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	env := wrap(ctx, CodeDatabase, err, message)
	if updated, sevErr := env.WithSeverity(errors.SeverityHigh); sevErr == nil {
		env = updated
	}
	return env
}

func WrapServiceUnavailable(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	return wrap(ctx, CodeServiceUnavailable, err, message)
}

func wrap(ctx context.Context, code string, err error, message string) *errors.ErrorEnvelope {
	envelope := errors.NewErrorEnvelope(code, message)
	envelope = envelope.WithCorrelationID(extractCorrelationID(ctx))
	envelope = envelope.WithTraceID(extractTraceID(ctx))
	return withWrappedError(envelope, err)
}

// Helper functions for ID generation

// extractCorrelationID gets correlation ID from context, falls back to generating new UUID
func extractCorrelationID(ctx context.Context) string {
	if ctx != nil {
		if requestID := middleware.GetRequestID(ctx); requestID != "" {
			return requestID
		}
	}
	return uuid.New().String()
}

// extractTraceID prefers the active OpenTelemetry span and falls back to the correlation ID.
func extractTraceID(ctx context.Context) string {
	if ctx != nil {
		if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
			return sc.TraceID().String()
		}
	}
	return extractCorrelationID(ctx)
}

// fieldErrorCarrier is satisfied by validation failures.
type fieldErrorCarrier interface {
	FieldErrors() map[string][]string
	FormErrors() []string
}

// statusCarrier is satisfied by errors that know their own HTTP status.
type statusCarrier interface {
	HTTPStatus() int
}

// EnsureEnvelope normalizes any error into a gofulmen ErrorEnvelope.
func EnsureEnvelope(err error) *errors.ErrorEnvelope {
	if err == nil {
		env := errors.NewErrorEnvelope(CodeInternal, "unexpected nil error")
		env, _ = env.WithSeverity(errors.SeverityCritical)
		return env
	}

	var envelope *errors.ErrorEnvelope
	if stderrors.As(err, &envelope) && envelope != nil {
		return envelope
	}

	var fields fieldErrorCarrier
	if stderrors.As(err, &fields) {
		return NewValidationError(fields.FieldErrors(), fields.FormErrors())
	}

	var carrier statusCarrier
	if stderrors.As(err, &carrier) {
		if status := carrier.HTTPStatus(); isErrorStatus(status) {
			return fromStatusCarrier(carrier, status)
		}
	}

	env := errors.NewErrorEnvelope(CodeInternal, "unexpected error")
	env = withContextValues(env, map[string]interface{}{
		"wrapped_error": err.Error(),
	})
	env, _ = env.WithSeverity(errors.SeverityHigh)
	return env
}

// fromStatusCarrier keeps the attached status. Server errors get the status text
// as their message; the cause is only logged.
func fromStatusCarrier(carrier statusCarrier, status int) *errors.ErrorEnvelope {
	message := http.StatusText(status)
	e, isErr := carrier.(error)
	if isErr && status < 500 {
		message = e.Error()
	}

	env := errors.NewErrorEnvelope(CodeFromStatus(status), message)
	values := map[string]interface{}{contextHTTPStatus: status}
	if isErr {
		if status >= 500 {
			values["wrapped_error"] = e.Error()
		} else if cause := stderrors.Unwrap(e); cause != nil {
			values["wrapped_error"] = cause.Error()
		}
	}
	env = withContextValues(env, values)
	if status >= 500 {
		env, _ = env.WithSeverity(errors.SeverityHigh)
	}
	return env
}

func isErrorStatus(status int) bool {
	return status >= 400 && status <= 599
}

// EnsureCorrelationID attaches a correlation ID to the envelope using the context when available.
func EnsureCorrelationID(envelope *errors.ErrorEnvelope, ctx context.Context) *errors.ErrorEnvelope {
	if envelope == nil {
		return nil
	}

	if envelope.CorrelationID != "" {
		return envelope
	}

	var correlationID string
	if ctx != nil {
		correlationID = middleware.GetRequestID(ctx)
	}

	if correlationID == "" {
		correlationID = "fallback-" + errors.GenerateCorrelationID()
	}

	return envelope.WithCorrelationID(correlationID)
}

// HTTPStatusFromEnvelope resolves the HTTP status code corresponding to an error envelope.
func HTTPStatusFromEnvelope(envelope *errors.ErrorEnvelope) int {
	if envelope == nil {
		return http.StatusInternalServerError
	}
	if status, ok := envelope.Context[contextHTTPStatus].(int); ok && isErrorStatus(status) {
		return status
	}
	return HTTPStatusFromCode(envelope.Code)
}

// HTTPStatusFromCode resolves the HTTP status code corresponding to an error code.
func HTTPStatusFromCode(code string) int {
	switch code {
	case CodeInvalidInput, CodeValidationFailed:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case CodeConflict:
		return http.StatusConflict
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeTimeout:
		return http.StatusGatewayTimeout
	case CodeServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// CodeFromStatus is the inverse of HTTPStatusFromCode for client errors.
func CodeFromStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return CodeInvalidInput
	case http.StatusUnauthorized:
		return CodeUnauthorized
	case http.StatusForbidden:
		return CodeForbidden
	case http.StatusNotFound:
		return CodeNotFound
	case http.StatusMethodNotAllowed:
		return CodeMethodNotAllowed
	case http.StatusConflict:
		return CodeConflict
	case http.StatusTooManyRequests:
		return CodeRateLimited
	case http.StatusServiceUnavailable:
		return CodeServiceUnavailable
	case http.StatusGatewayTimeout:
		return CodeTimeout
	default:
		if status >= 400 && status < 500 {
			return CodeInvalidInput
		}
		return CodeInternal
	}
}

func withWrappedError(envelope *errors.ErrorEnvelope, err error) *errors.ErrorEnvelope {
	if envelope == nil || err == nil {
		return envelope
	}
	return withContextValues(envelope, map[string]interface{}{
		"wrapped_error": err.Error(),
	})
}

// withContextValues merges values into the envelope context. gofulmen replaces the
// whole map on WithContext and filters out unsupported types; those are logged.
func withContextValues(envelope *errors.ErrorEnvelope, values map[string]interface{}) *errors.ErrorEnvelope {
	merged := make(map[string]interface{}, len(envelope.Context)+len(values))
	for key, value := range envelope.Context {
		merged[key] = value
	}
	for key, value := range values {
		merged[key] = value
	}

	updated, err := envelope.WithContext(merged)
	if err != nil && observability.ServerLogger != nil {
		observability.ServerLogger.Warn("Dropped error context entries",
			zap.String("error_code", envelope.Code),
			zap.Error(err))
	}
	return updated
}

// ResponseDetails returns the caller-visible details of an envelope. Only validation
// failures expose details; everything else stays in the logs.
func ResponseDetails(envelope *errors.ErrorEnvelope) map[string]interface{} {
	if envelope == nil || envelope.Code != CodeValidationFailed {
		return nil
	}

	fieldErrors, ok := envelope.Details[detailFieldErrors]
	if !ok || fieldErrors == nil {
		fieldErrors = map[string][]string{}
	}
	formErrors, ok := envelope.Details[detailFormErrors]
	if !ok || formErrors == nil {
		formErrors = []string{}
	}

	return map[string]interface{}{
		detailFieldErrors: fieldErrors,
		detailFormErrors:  formErrors,
	}
}

// HTTPErrorResponse is the error body returned to callers.
type HTTPErrorResponse struct {
	Error   string                 `json:"error"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// RespondWithError normalizes the supplied error and writes a JSON response.
func RespondWithError(w http.ResponseWriter, r *http.Request, err error) {
	RespondWithEnvelope(w, r, EnsureEnvelope(err))
}

// RespondWithEnvelope finalizes the provided envelope, logging and emitting metrics.
func RespondWithEnvelope(w http.ResponseWriter, r *http.Request, envelope *errors.ErrorEnvelope) {
	if w == nil {
		return
	}

	if envelope == nil {
		envelope = EnsureEnvelope(nil)
	}

	if r != nil {
		envelope = EnsureCorrelationID(envelope, r.Context())
	} else {
		envelope = EnsureCorrelationID(envelope, nil)
	}

	statusCode := HTTPStatusFromEnvelope(envelope)

	message := envelope.Message
	if statusCode == http.StatusInternalServerError || message == "" {
		message = http.StatusText(statusCode)
	}

	response := HTTPErrorResponse{
		Error:   message,
		Details: ResponseDetails(envelope),
	}

	logHTTPError(envelope, statusCode)
	emitErrorMetrics(r, envelope, statusCode)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(response)
}

func logHTTPError(envelope *errors.ErrorEnvelope, statusCode int) {
	if observability.ServerLogger == nil || envelope == nil {
		return
	}

	fields := []zap.Field{
		zap.String("error_code", envelope.Code),
		zap.Int("http_status", statusCode),
	}

	if envelope.Severity != "" {
		fields = append(fields, zap.String("severity", string(envelope.Severity)))
	}

	for key, value := range envelope.Context {
		fields = append(fields, zap.Any(key, value))
	}
	if len(envelope.Details) > 0 {
		fields = append(fields, zap.Any("details", envelope.Details))
	}

	if envelope.CorrelationID != "" {
		fields = append(fields, zap.String("request_id", envelope.CorrelationID))
	}

	switch envelope.Severity {
	case errors.SeverityCritical, errors.SeverityHigh:
		observability.ServerLogger.Error(envelope.Message, fields...)
	case errors.SeverityMedium:
		observability.ServerLogger.Warn(envelope.Message, fields...)
	default:
		observability.ServerLogger.Info(envelope.Message, fields...)
	}
}

func emitErrorMetrics(r *http.Request, envelope *errors.ErrorEnvelope, statusCode int) {
	if envelope == nil {
		return
	}

	metrics.RecordError(envelope.Code, statusCode)
	if r != nil {
		metrics.RecordErrorByEndpoint(middleware.EndpointPattern(r), envelope.Code)
	}
}
