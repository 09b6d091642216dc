package tokenstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned by a [Persister] when nothing is stored under key.
var ErrNotFound = errors.New("token not found")

// Persister is durable storage for one opaque token per key.
type Persister interface {
	Load(ctx context.Context, key string) (string, error)
	Save(ctx context.Context, key, token string) error
	Delete(ctx context.Context, key string) error
}
