package validation

import "context"

type payloadKey struct{ source string }

var (
	bodyKey  = payloadKey{source: "body"}
	queryKey = payloadKey{source: "query"}
)

// WithBody attaches a validated body to ctx.
func WithBody[T any](ctx context.Context, v T) context.Context {
	return context.WithValue(ctx, bodyKey, v)
}

// BodyFrom returns the validated body attached by WithBody.
func BodyFrom[T any](ctx context.Context) (T, bool) {
	v, ok := ctx.Value(bodyKey).(T)
	return v, ok
}

// WithQuery attaches a validated query to ctx.
func WithQuery[T any](ctx context.Context, v T) context.Context {
	return context.WithValue(ctx, queryKey, v)
}

// QueryFrom returns the validated query attached by WithQuery.
func QueryFrom[T any](ctx context.Context) (T, bool) {
	v, ok := ctx.Value(queryKey).(T)
	return v, ok
}
