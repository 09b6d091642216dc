package goSession

import "context"

type requestIDContextKey struct{}

// WithRequestID attaches a correlation id to ctx. Requests built with
// [Client.NewRequest] carry it in the configured request id header instead of
// a generated one, including when they are replayed after a refresh.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDContextKey{}, id)
}

func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDContextKey{}).(string)
	return id
}
