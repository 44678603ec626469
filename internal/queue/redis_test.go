package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func newTestBroker(client *redis.Client) *RedisBroker {
	return NewRedisBroker(nil, client, RedisBrokerOptions{
		Partitions:   4,
		PollTimeout:  50 * time.Millisecond,
		HeartbeatTTL: time.Minute,
	})
}

func TestRedisBrokerPublishConsumeAck(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	_, client := newTestRedis(t)
	b := newTestBroker(client)

	first := mustTask(t, "1:alice")
	second := mustTask(t, "1:alice")
	require.NoError(t, b.Publish(ctx, first))
	require.NoError(t, b.Publish(ctx, second))

	slot := Partition("1:alice", 4)
	d, err := b.Consume(ctx, slot)
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, first.ID, d.Task.ID)

	depth, err := b.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), depth.Ready)
	assert.Equal(t, int64(1), depth.Processing)

	require.NoError(t, b.Ack(ctx, d))
	depth, _ = b.Depth(ctx)
	assert.Equal(t, int64(0), depth.Processing)
}

func TestRedisBrokerIdlePoll(t *testing.T) {
	t.Parallel()

	_, client := newTestRedis(t)
	b := newTestBroker(client)
	d, err := b.Consume(context.Background(), 0)
	require.NoError(t, err)
	assert.Nil(t, d)
}

func TestRedisBrokerReleaseGoesToFront(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	_, client := newTestRedis(t)
	b := newTestBroker(client)

	first := mustTask(t, "9:bob")
	second := mustTask(t, "9:bob")
	require.NoError(t, b.Publish(ctx, first))
	require.NoError(t, b.Publish(ctx, second))
	slot := Partition("9:bob", 4)

	d, err := b.Consume(ctx, slot)
	require.NoError(t, err)
	require.NoError(t, b.Release(ctx, d))

	d, err = b.Consume(ctx, slot)
	require.NoError(t, err)
	assert.Equal(t, first.ID, d.Task.ID)
}

func TestRedisBrokerRetryPromote(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	_, client := newTestRedis(t)
	b := newTestBroker(client)

	task := mustTask(t, "2:carol")
	require.NoError(t, b.Publish(ctx, task))
	slot := Partition(task.Key, 4)
	d, err := b.Consume(ctx, slot)
	require.NoError(t, err)

	require.NoError(t, b.Retry(ctx, d, time.Minute, errors.New("llm timeout")))
	depth, _ := b.Depth(ctx)
	assert.Equal(t, int64(1), depth.Delayed)
	assert.Equal(t, int64(0), depth.Processing)

	n, err := b.PromoteDue(ctx, time.Now())
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = b.PromoteDue(ctx, time.Now().Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	d, err = b.Consume(ctx, slot)
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, 2, d.Task.Attempt)
	assert.Equal(t, "llm timeout", d.Task.LastError)
}

func TestRedisBrokerBuryAndRequeue(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	_, client := newTestRedis(t)
	b := newTestBroker(client)

	task := mustTask(t, "3:dave")
	require.NoError(t, b.Publish(ctx, task))
	d, err := b.Consume(ctx, Partition(task.Key, 4))
	require.NoError(t, err)
	require.NoError(t, b.Bury(ctx, d, errors.New("tenant inactive")))

	dead, err := b.ListDead(ctx, 10)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, "tenant inactive", dead[0].LastError)

	_, err = b.Requeue(ctx, "nope")
	assert.ErrorIs(t, err, ErrEmpty)

	requeued, err := b.Requeue(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, requeued.Attempt)

	depth, _ := b.Depth(ctx)
	assert.Equal(t, int64(0), depth.Dead)
	assert.Equal(t, int64(1), depth.Ready)
}

func TestRedisBrokerRecoversStoppedConsumer(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mr, client := newTestRedis(t)
	crashed := newTestBroker(client)
	survivor := newTestBroker(client)

	task := mustTask(t, "4:erin")
	slot := Partition(task.Key, 4)
	require.NoError(t, crashed.Publish(ctx, task))
	d, err := crashed.Consume(ctx, slot)
	require.NoError(t, err)
	require.NotNil(t, d)

	// heartbeat still alive: nothing to recover
	n, err := survivor.RecoverStranded(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	mr.FastForward(2 * time.Minute)
	n, err = survivor.RecoverStranded(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := survivor.Consume(ctx, slot)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, task.ID, got.Task.ID)
}

func TestRedisLocker(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mr, client := newTestRedis(t)
	locker := NewRedisLocker(client)

	lease, err := locker.Acquire(ctx, "1:alice", time.Minute)
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, "1:alice", time.Minute)
	assert.ErrorIs(t, err, ErrLeaseHeld)

	_, err = locker.Acquire(ctx, "1:bob", time.Minute)
	assert.NoError(t, err)

	require.NoError(t, lease.Release(ctx))
	next, err := locker.Acquire(ctx, "1:alice", time.Minute)
	require.NoError(t, err)

	// an expired lease must not delete its successor's key
	mr.FastForward(2 * time.Minute)
	_, err = locker.Acquire(ctx, "1:alice", time.Minute)
	require.NoError(t, err)
	require.NoError(t, next.Release(ctx))
	_, err = locker.Acquire(ctx, "1:alice", time.Minute)
	assert.ErrorIs(t, err, ErrLeaseHeld)
}

func TestLocalLocker(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Now()
	locker := NewLocalLocker()
	locker.now = func() time.Time { return now }

	lease, err := locker.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)
	_, err = locker.Acquire(ctx, "k", time.Minute)
	assert.ErrorIs(t, err, ErrLeaseHeld)

	now = now.Add(2 * time.Minute)
	_, err = locker.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.NoError(t, lease.Release(ctx))
	_, err = locker.Acquire(ctx, "k", time.Minute)
	assert.ErrorIs(t, err, ErrLeaseHeld)
}

func TestIdempotencyStores(t *testing.T) {
	t.Parallel()

	_, client := newTestRedis(t)
	stores := map[string]Idempotency{
		"redis": NewRedisIdempotency(client),
		"local": NewLocalIdempotency(16, time.Hour),
	}
	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			first, err := store.Claim(ctx, "mid:1:m_1", time.Hour)
			require.NoError(t, err)
			assert.True(t, first)

			again, err := store.Claim(ctx, "mid:1:m_1", time.Hour)
			require.NoError(t, err)
			assert.False(t, again)

			seen, err := store.Seen(ctx, "mid:1:m_1")
			require.NoError(t, err)
			assert.True(t, seen)

			require.NoError(t, store.Forget(ctx, "mid:1:m_1"))
			seen, _ = store.Seen(ctx, "mid:1:m_1")
			assert.False(t, seen)
		})
	}
}
