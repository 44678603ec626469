package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
)

// Idempotency remembers keys of work that already happened.
type Idempotency interface {
	// Claim records key and reports whether this call was the first.
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Seen(ctx context.Context, key string) (bool, error)
	Forget(ctx context.Context, key string) error
}

// RedisIdempotency shares claims between processes.
type RedisIdempotency struct {
	client *redis.Client
	prefix string
}

func NewRedisIdempotency(client *redis.Client) *RedisIdempotency {
	return &RedisIdempotency{client: client, prefix: "leadflow:idem:"}
}

func (r *RedisIdempotency) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, r.prefix+key, time.Now().UTC().Format(time.RFC3339), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", key, err)
	}
	return ok, nil
}

func (r *RedisIdempotency) Seen(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, r.prefix+key).Result()
	if err != nil {
		return false, fmt.Errorf("lookup %s: %w", key, err)
	}
	return n > 0, nil
}

func (r *RedisIdempotency) Forget(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		return fmt.Errorf("forget %s: %w", key, err)
	}
	return nil
}

// LocalIdempotency keeps claims in a bounded in-process LRU. Every entry
// shares the cache TTL; the per-call ttl is ignored.
type LocalIdempotency struct {
	mu    sync.Mutex
	cache *expirable.LRU[string, struct{}]
}

func NewLocalIdempotency(size int, ttl time.Duration) *LocalIdempotency {
	return &LocalIdempotency{cache: expirable.NewLRU[string, struct{}](size, nil, ttl)}
}

func (l *LocalIdempotency) Claim(_ context.Context, key string, _ time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cache.Contains(key) {
		return false, nil
	}
	l.cache.Add(key, struct{}{})
	return true, nil
}

func (l *LocalIdempotency) Seen(_ context.Context, key string) (bool, error) {
	return l.cache.Contains(key), nil
}

func (l *LocalIdempotency) Forget(_ context.Context, key string) error {
	l.cache.Remove(key)
	return nil
}
