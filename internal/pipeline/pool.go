package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/memohai/leadflow/internal/metrics"
	"github.com/memohai/leadflow/internal/queue"
)

// PoolConfig configures task execution.
type PoolConfig struct {
	// LeaseTTL bounds a single task execution and the key lease held for it.
	LeaseTTL time.Duration
	Retry    queue.RetryPolicy
	// ContentionDelay is the pause after handing a contended task back.
	ContentionDelay time.Duration
}

// Pool drains a broker with one goroutine per slot, so tasks sharing a key
// run one at a time and in order within a process. The locker extends that
// guarantee across processes.
type Pool struct {
	broker   queue.Broker
	locker   queue.Locker
	cfg      PoolConfig
	logger   *slog.Logger
	handlers map[queue.Kind]Handler

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewPool(log *slog.Logger, broker queue.Broker, locker queue.Locker, cfg PoolConfig) *Pool {
	if log == nil {
		log = slog.Default()
	}
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = 2 * time.Minute
	}
	if cfg.ContentionDelay <= 0 {
		cfg.ContentionDelay = 200 * time.Millisecond
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry.MaxAttempts = 1
	}
	return &Pool{
		broker:   broker,
		locker:   locker,
		cfg:      cfg,
		logger:   log.With(slog.String("component", "worker_pool")),
		handlers: map[queue.Kind]Handler{},
	}
}

// Register routes tasks of kind to h. Call before Start.
func (p *Pool) Register(kind queue.Kind, h Handler) {
	p.handlers[kind] = h
}

// Start launches the slot workers. They stop when ctx is cancelled or
// Shutdown is called.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return
	}
	ctx, p.cancel = context.WithCancel(ctx)
	slots := p.broker.Slots()
	p.logger.Info("worker pool start", slog.Int("slots", slots))
	for slot := 0; slot < slots; slot++ {
		p.wg.Add(1)
		go func(slot int) {
			defer p.wg.Done()
			p.runSlot(ctx, slot)
		}(slot)
	}
}

// Shutdown stops consuming and waits for in-flight tasks or ctx expiry.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	cancel := p.cancel
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		p.logger.Info("worker pool stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("worker pool shutdown: %w", ctx.Err())
	}
}

func (p *Pool) runSlot(ctx context.Context, slot int) {
	for {
		if ctx.Err() != nil {
			return
		}
		d, err := p.broker.Consume(ctx, slot)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Error("consume failed", slog.Int("slot", slot), slog.Any("error", err))
			sleep(ctx, time.Second)
			continue
		}
		if d == nil {
			continue
		}
		p.process(ctx, d)
	}
}

// process runs one delivery and settles it with the broker.
func (p *Pool) process(ctx context.Context, d *queue.Delivery) {
	kind := string(d.Task.Kind)
	settle := context.WithoutCancel(ctx)
	log := p.logger.With(
		slog.String("task_id", d.Task.ID),
		slog.String("kind", kind),
		slog.String("key", d.Task.Key),
		slog.Int("attempt", d.Task.Attempt),
	)

	handler, ok := p.handlers[d.Task.Kind]
	if !ok {
		p.bury(settle, log, d, queue.Permanent(fmt.Errorf("no handler for task kind %q", kind)))
		return
	}

	lease, err := p.locker.Acquire(ctx, d.Task.Key, p.cfg.LeaseTTL)
	if errors.Is(err, queue.ErrLeaseHeld) {
		metrics.TasksProcessed.WithLabelValues(kind, "deferred").Inc()
		log.Debug("key busy in another worker, deferring")
		if err := p.broker.Release(settle, d); err != nil {
			log.Error("release failed", slog.Any("error", err))
		}
		sleep(ctx, p.cfg.ContentionDelay)
		return
	}
	if err != nil {
		p.fail(settle, log, d, err)
		return
	}
	defer func() {
		if err := lease.Release(settle); err != nil {
			log.Warn("lease release failed", slog.Any("error", err))
		}
	}()

	taskCtx, cancel := context.WithTimeout(ctx, p.cfg.LeaseTTL)
	start := time.Now()
	err = handler.Handle(taskCtx, d.Task)
	cancel()
	metrics.TaskDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())

	if err == nil {
		if err := p.broker.Ack(settle, d); err != nil {
			log.Error("ack failed", slog.Any("error", err))
		}
		metrics.TasksProcessed.WithLabelValues(kind, "succeeded").Inc()
		return
	}
	if ctx.Err() != nil {
		// shutting down: hand the task back without spending an attempt
		if rerr := p.broker.Release(settle, d); rerr != nil {
			log.Error("release on shutdown failed", slog.Any("error", rerr))
		}
		return
	}
	p.fail(settle, log, d, err)
}

func (p *Pool) fail(ctx context.Context, log *slog.Logger, d *queue.Delivery, cause error) {
	if !p.cfg.Retry.ShouldRetry(d.Task.Attempt, cause) {
		p.bury(ctx, log, d, cause)
		return
	}
	delay := p.cfg.Retry.Backoff(d.Task.Attempt)
	log.Warn("task failed, retrying", slog.Duration("delay", delay), slog.Any("error", cause))
	if err := p.broker.Retry(ctx, d, delay, cause); err != nil {
		log.Error("schedule retry failed", slog.Any("error", err))
		return
	}
	metrics.TasksProcessed.WithLabelValues(string(d.Task.Kind), "retried").Inc()
}

func (p *Pool) bury(ctx context.Context, log *slog.Logger, d *queue.Delivery, cause error) {
	if err := p.broker.Bury(ctx, d, cause); err != nil {
		log.Error("dead-letter failed", slog.Any("error", err))
		return
	}
	kind := string(d.Task.Kind)
	metrics.TasksDeadLettered.WithLabelValues(kind).Inc()
	metrics.TasksProcessed.WithLabelValues(kind, "dead_lettered").Inc()
	log.Error("task dead-lettered",
		slog.Bool("permanent", queue.IsPermanent(cause)),
		slog.Any("error", cause),
	)
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
