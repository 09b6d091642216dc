package tokenstore

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisPersister stores tokens in Redis under prefix:key. It suits clients
// that run as several processes sharing one session (workers, CLIs on a host).
type RedisPersister struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisPersister returns a persister using client. A ttl of zero keeps keys
// until they are deleted.
func NewRedisPersister(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisPersister {
	if prefix == "" {
		prefix = "gs"
	}
	return &RedisPersister{client: client, prefix: prefix, ttl: ttl}
}

func (p *RedisPersister) redisKey(key string) string {
	return p.prefix + ":token:" + key
}

func (p *RedisPersister) Load(ctx context.Context, key string) (string, error) {
	token, err := p.client.Get(ctx, p.redisKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return token, nil
}

func (p *RedisPersister) Save(ctx context.Context, key, token string) error {
	return p.client.Set(ctx, p.redisKey(key), token, p.ttl).Err()
}

func (p *RedisPersister) Delete(ctx context.Context, key string) error {
	n, err := p.client.Del(ctx, p.redisKey(key)).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
