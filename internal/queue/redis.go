package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	defaultRedisPrefix = "leadflow:queue"
	promoteBatch       = 100
)

// promoteScript moves due members of a delayed set onto the ready list.
var promoteScript = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[2]))
for _, raw in ipairs(due) do
  redis.call('ZREM', KEYS[1], raw)
  redis.call('LPUSH', KEYS[2], raw)
end
return #due
`)

// NewRedisClient parses url and checks the connection.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// RedisBroker stores tasks in Redis lists. Producers push to the left of a
// partition's ready list and consumers move from its right into a
// per-consumer processing list, so a crashed consumer's tasks can be found
// and recovered.
type RedisBroker struct {
	client      *redis.Client
	prefix      string
	partitions  int
	pollTimeout time.Duration
	consumerID  string
	beatTTL     time.Duration
	logger      *slog.Logger

	beatMu   sync.Mutex
	lastBeat time.Time
}

// RedisBrokerOptions configures a RedisBroker.
type RedisBrokerOptions struct {
	Prefix      string
	Partitions  int
	PollTimeout time.Duration
	// HeartbeatTTL is how long a silent consumer keeps its processing lists.
	HeartbeatTTL time.Duration
}

func NewRedisBroker(log *slog.Logger, client *redis.Client, opts RedisBrokerOptions) *RedisBroker {
	if log == nil {
		log = slog.Default()
	}
	if opts.Prefix == "" {
		opts.Prefix = defaultRedisPrefix
	}
	if opts.Partitions < 1 {
		opts.Partitions = 1
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = 2 * time.Second
	}
	if opts.HeartbeatTTL <= 0 {
		opts.HeartbeatTTL = time.Minute
	}
	consumerID := strings.ReplaceAll(uuid.NewString(), "-", "")
	return &RedisBroker{
		client:      client,
		prefix:      opts.Prefix,
		partitions:  opts.Partitions,
		pollTimeout: opts.PollTimeout,
		consumerID:  consumerID,
		beatTTL:     opts.HeartbeatTTL,
		logger:      log.With(slog.String("component", "redis_broker"), slog.String("consumer", consumerID)),
	}
}

func (b *RedisBroker) Slots() int { return b.partitions }

func (b *RedisBroker) readyKey(p int) string   { return fmt.Sprintf("%s:ready:%d", b.prefix, p) }
func (b *RedisBroker) delayedKey(p int) string { return fmt.Sprintf("%s:delayed:%d", b.prefix, p) }
func (b *RedisBroker) deadKey() string         { return b.prefix + ":dead" }
func (b *RedisBroker) heartbeatKey(consumer string) string {
	return b.prefix + ":consumer:" + consumer
}
func (b *RedisBroker) processingKey(consumer string, p int) string {
	return fmt.Sprintf("%s:processing:%s:%d", b.prefix, consumer, p)
}

func (b *RedisBroker) partition(task Task) int {
	return Partition(task.Key, b.partitions)
}

func (b *RedisBroker) Publish(ctx context.Context, task Task) error {
	raw, err := encodeTask(task)
	if err != nil {
		return err
	}
	if err := b.client.LPush(ctx, b.readyKey(b.partition(task)), raw).Err(); err != nil {
		return fmt.Errorf("publish task %s: %w", task.ID, err)
	}
	return nil
}

func (b *RedisBroker) Consume(ctx context.Context, slot int) (*Delivery, error) {
	if slot < 0 || slot >= b.partitions {
		return nil, fmt.Errorf("slot %d out of range", slot)
	}
	if err := b.heartbeat(ctx); err != nil {
		return nil, err
	}
	raw, err := b.client.BLMove(ctx, b.readyKey(slot), b.processingKey(b.consumerID, slot), "RIGHT", "LEFT", b.pollTimeout).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("consume slot %d: %w", slot, err)
	}
	task, err := decodeTask(raw)
	if err != nil {
		// unreadable entries can never succeed
		b.logger.Error("dropping undecodable task", slog.Int("slot", slot), slog.Any("error", err))
		_, _ = b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.LRem(ctx, b.processingKey(b.consumerID, slot), 1, raw)
			pipe.LPush(ctx, b.deadKey(), raw)
			return nil
		})
		return nil, nil
	}
	return &Delivery{Task: task, Slot: slot, receipt: raw}, nil
}

func (b *RedisBroker) Ack(ctx context.Context, d *Delivery) error {
	if err := b.client.LRem(ctx, b.processingKey(b.consumerID, d.Slot), 1, d.receipt).Err(); err != nil {
		return fmt.Errorf("ack task %s: %w", d.Task.ID, err)
	}
	return nil
}

func (b *RedisBroker) Retry(ctx context.Context, d *Delivery, delay time.Duration, cause error) error {
	raw, err := encodeTask(nextAttempt(d.Task, cause))
	if err != nil {
		return err
	}
	due := time.Now().Add(delay).UnixMilli()
	_, err = b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, b.processingKey(b.consumerID, d.Slot), 1, d.receipt)
		pipe.ZAdd(ctx, b.delayedKey(b.partition(d.Task)), redis.Z{Score: float64(due), Member: raw})
		return nil
	})
	if err != nil {
		return fmt.Errorf("retry task %s: %w", d.Task.ID, err)
	}
	return nil
}

func (b *RedisBroker) Bury(ctx context.Context, d *Delivery, cause error) error {
	task := d.Task
	if cause != nil {
		task.LastError = cause.Error()
	}
	raw, err := encodeTask(task)
	if err != nil {
		return err
	}
	_, err = b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, b.processingKey(b.consumerID, d.Slot), 1, d.receipt)
		pipe.LPush(ctx, b.deadKey(), raw)
		return nil
	})
	if err != nil {
		return fmt.Errorf("bury task %s: %w", d.Task.ID, err)
	}
	return nil
}

func (b *RedisBroker) Release(ctx context.Context, d *Delivery) error {
	_, err := b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, b.processingKey(b.consumerID, d.Slot), 1, d.receipt)
		// the right end is consumed next
		pipe.RPush(ctx, b.readyKey(b.partition(d.Task)), d.receipt)
		return nil
	})
	if err != nil {
		return fmt.Errorf("release task %s: %w", d.Task.ID, err)
	}
	return nil
}

func (b *RedisBroker) ListDead(ctx context.Context, limit int) ([]Task, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	raws, err := b.client.LRange(ctx, b.deadKey(), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("list dead tasks: %w", err)
	}
	tasks := make([]Task, 0, len(raws))
	for _, raw := range raws {
		task, err := decodeTask(raw)
		if err != nil {
			b.logger.Warn("skipping undecodable dead task", slog.Any("error", err))
			continue
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

func (b *RedisBroker) Requeue(ctx context.Context, id string) (Task, error) {
	raws, err := b.client.LRange(ctx, b.deadKey(), 0, -1).Result()
	if err != nil {
		return Task{}, fmt.Errorf("list dead tasks: %w", err)
	}
	for _, raw := range raws {
		task, err := decodeTask(raw)
		if err != nil || task.ID != id {
			continue
		}
		removed, err := b.client.LRem(ctx, b.deadKey(), 1, raw).Result()
		if err != nil {
			return Task{}, fmt.Errorf("remove dead task %s: %w", id, err)
		}
		if removed == 0 {
			break
		}
		task = resetAttempts(task)
		if err := b.Publish(ctx, task); err != nil {
			return Task{}, err
		}
		return task, nil
	}
	return Task{}, fmt.Errorf("dead task %s: %w", id, ErrEmpty)
}

func (b *RedisBroker) PromoteDue(ctx context.Context, now time.Time) (int, error) {
	total := 0
	cutoff := strconv.FormatInt(now.UnixMilli(), 10)
	for p := 0; p < b.partitions; p++ {
		n, err := promoteScript.Run(ctx, b.client, []string{b.delayedKey(p), b.readyKey(p)}, cutoff, promoteBatch).Int()
		if err != nil {
			return total, fmt.Errorf("promote partition %d: %w", p, err)
		}
		total += n
	}
	return total, nil
}

// RecoverStranded moves tasks out of processing lists whose consumer stopped
// sending heartbeats. They go back to the consuming end of their ready list.
func (b *RedisBroker) RecoverStranded(ctx context.Context) (int, error) {
	keys, err := b.processingKeys(ctx)
	if err != nil {
		return 0, err
	}
	recovered := 0
	for _, key := range keys {
		consumer, p, ok := b.parseProcessingKey(key)
		if !ok || consumer == b.consumerID {
			continue
		}
		alive, err := b.client.Exists(ctx, b.heartbeatKey(consumer)).Result()
		if err != nil {
			return recovered, fmt.Errorf("check consumer %s: %w", consumer, err)
		}
		if alive > 0 {
			continue
		}
		for {
			_, err := b.client.LMove(ctx, key, b.readyKey(p), "LEFT", "RIGHT").Result()
			if errors.Is(err, redis.Nil) {
				break
			}
			if err != nil {
				return recovered, fmt.Errorf("recover %s: %w", key, err)
			}
			recovered++
		}
		b.logger.Warn("recovered tasks from stopped consumer", slog.String("stopped_consumer", consumer), slog.Int("partition", p))
	}
	return recovered, nil
}

func (b *RedisBroker) Depth(ctx context.Context) (Depth, error) {
	var d Depth
	for p := 0; p < b.partitions; p++ {
		ready, err := b.client.LLen(ctx, b.readyKey(p)).Result()
		if err != nil {
			return d, fmt.Errorf("ready depth: %w", err)
		}
		delayed, err := b.client.ZCard(ctx, b.delayedKey(p)).Result()
		if err != nil {
			return d, fmt.Errorf("delayed depth: %w", err)
		}
		d.Ready += ready
		d.Delayed += delayed
	}
	keys, err := b.processingKeys(ctx)
	if err != nil {
		return d, err
	}
	for _, key := range keys {
		n, err := b.client.LLen(ctx, key).Result()
		if err != nil {
			return d, fmt.Errorf("processing depth: %w", err)
		}
		d.Processing += n
	}
	dead, err := b.client.LLen(ctx, b.deadKey()).Result()
	if err != nil {
		return d, fmt.Errorf("dead depth: %w", err)
	}
	d.Dead = dead
	return d, nil
}

func (b *RedisBroker) heartbeat(ctx context.Context) error {
	b.beatMu.Lock()
	defer b.beatMu.Unlock()
	if time.Since(b.lastBeat) < b.beatTTL/3 {
		return nil
	}
	if err := b.client.Set(ctx, b.heartbeatKey(b.consumerID), time.Now().UTC().Format(time.RFC3339), b.beatTTL).Err(); err != nil {
		return fmt.Errorf("consumer heartbeat: %w", err)
	}
	b.lastBeat = time.Now()
	return nil
}

func (b *RedisBroker) processingKeys(ctx context.Context) ([]string, error) {
	var keys []string
	iter := b.client.Scan(ctx, 0, b.prefix+":processing:*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan processing lists: %w", err)
	}
	return keys, nil
}

func (b *RedisBroker) parseProcessingKey(key string) (string, int, bool) {
	rest, ok := strings.CutPrefix(key, b.prefix+":processing:")
	if !ok {
		return "", 0, false
	}
	consumer, partition, ok := strings.Cut(rest, ":")
	if !ok {
		return "", 0, false
	}
	p, err := strconv.Atoi(partition)
	if err != nil || p < 0 || p >= b.partitions {
		return "", 0, false
	}
	return consumer, p, true
}
