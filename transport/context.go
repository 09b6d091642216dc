package transport

import "context"

type retriedKey struct{}

// WithRetried marks ctx as belonging to a request that has already been
// replayed after a refresh.
func WithRetried(ctx context.Context) context.Context {
	return context.WithValue(ctx, retriedKey{}, true)
}

// Retried reports whether ctx was marked by [WithRetried].
func Retried(ctx context.Context) bool {
	v, _ := ctx.Value(retriedKey{}).(bool)
	return v
}
