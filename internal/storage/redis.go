package storage

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

// KV is the subset of redis commands the blob needs.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

type redisAdapter struct{ c redis.Cmdable }

// NewRedisKV adapts a go-redis client to KV.
func NewRedisKV(c redis.Cmdable) KV { return &redisAdapter{c: c} }

func (r *redisAdapter) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := r.c.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	return b, err
}

func (r *redisAdapter) Set(ctx context.Context, key string, value []byte) error {
	return r.c.Set(ctx, key, value, 0).Err()
}

// RedisBlob stores the record under a single key.
type RedisBlob struct {
	kv  KV
	key string
}

func NewRedisBlob(kv KV, key string) *RedisBlob {
	return &RedisBlob{kv: kv, key: key}
}

func (r *RedisBlob) Load(ctx context.Context) ([]byte, error) {
	return r.kv.Get(ctx, r.key)
}

func (r *RedisBlob) Save(ctx context.Context, data []byte) error {
	return r.kv.Set(ctx, r.key, data)
}
