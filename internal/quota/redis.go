package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// recordTTL must exceed one quota window.
const recordTTL = 48 * time.Hour

// RedisStore keeps the quota record in Redis so it survives restarts and can
// be seeded by another process. A Tracker reads it once at construction and
// afterwards only writes, so concurrent writers are not merged.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects using a redis:// URL.
func NewRedisStore(rawURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &RedisStore{client: redis.NewClient(opts)}, nil
}

func (r *RedisStore) Load(ctx context.Context, key string) ([]byte, error) {
	b, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	return b, err
}

func (r *RedisStore) Save(ctx context.Context, key string, value []byte) error {
	return r.client.Set(ctx, key, value, recordTTL).Err()
}

func (r *RedisStore) Close() error { return r.client.Close() }
