package storage

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore shares state between processes. With a non-zero TTL every write
// refreshes the expiry, plus jitter so idle carts do not expire together.
type RedisStore struct {
	client    *redis.Client
	namespace string
	baseTTL   time.Duration
}

func NewRedisStore(client *redis.Client, namespace string, ttl time.Duration) *RedisStore {
	return &RedisStore{
		client:    client,
		namespace: namespace,
		baseTTL:   ttl,
	}
}

func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := r.client.Get(ctx, r.stateKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}
	return data, nil
}

func (r *RedisStore) Set(ctx context.Context, key string, value []byte) error {
	var ttl time.Duration
	if r.baseTTL > 0 {
		jitter := time.Duration(rand.Intn(5)) * time.Minute
		ttl = r.baseTTL + jitter
	}
	if err := r.client.Set(ctx, r.stateKey(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.stateKey(key)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

func (r *RedisStore) stateKey(key string) string {
	if r.namespace == "" {
		return fmt.Sprintf("state:%s", key)
	}
	return fmt.Sprintf("state:%s:%s", r.namespace, key)
}
