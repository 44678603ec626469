package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Locker grants exclusive, expiring ownership of a serialization key.
type Locker interface {
	// Acquire returns ErrLeaseHeld when another owner holds key.
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error)
}

// Lease is held ownership of one key.
type Lease interface {
	Release(ctx context.Context) error
}

// releaseScript deletes the lease only if it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

// RedisLocker serializes keys across processes.
type RedisLocker struct {
	client *redis.Client
	prefix string
}

func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client, prefix: "leadflow:lease:"}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.prefix+key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lease %s: %w", key, err)
	}
	if !ok {
		return nil, ErrLeaseHeld
	}
	return &redisLease{client: l.client, key: l.prefix + key, token: token}, nil
}

type redisLease struct {
	client *redis.Client
	key    string
	token  string
}

func (l *redisLease) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Err(); err != nil {
		return fmt.Errorf("release lease %s: %w", l.key, err)
	}
	return nil
}

// LocalLocker serializes keys within one process.
type LocalLocker struct {
	mu     sync.Mutex
	leases map[string]localLease
	now    func() time.Time
}

type localLease struct {
	token   string
	expires time.Time
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{leases: map[string]localLease{}, now: time.Now}
}

func (l *LocalLocker) Acquire(_ context.Context, key string, ttl time.Duration) (Lease, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if held, ok := l.leases[key]; ok && now.Before(held.expires) {
		return nil, ErrLeaseHeld
	}
	token := uuid.NewString()
	l.leases[key] = localLease{token: token, expires: now.Add(ttl)}
	return &localHandle{locker: l, key: key, token: token}, nil
}

type localHandle struct {
	locker *LocalLocker
	key    string
	token  string
}

func (h *localHandle) Release(context.Context) error {
	h.locker.mu.Lock()
	defer h.locker.mu.Unlock()
	if held, ok := h.locker.leases[h.key]; ok && held.token == h.token {
		delete(h.locker.leases, h.key)
	}
	return nil
}
