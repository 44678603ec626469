package queue

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryBroker keeps tasks in process memory. It is meant for single-process
// deployments and tests; nothing survives a restart.
type MemoryBroker struct {
	pollTimeout time.Duration

	mu         sync.Mutex
	slots      []*memorySlot
	delayed    []delayedTask
	processing map[string]Task
	dead       []Task
}

type memorySlot struct {
	items  []Task
	notify chan struct{}
}

type delayedTask struct {
	task Task
	due  time.Time
}

func NewMemoryBroker(slots int, pollTimeout time.Duration) *MemoryBroker {
	if slots < 1 {
		slots = 1
	}
	if pollTimeout <= 0 {
		pollTimeout = time.Second
	}
	b := &MemoryBroker{
		pollTimeout: pollTimeout,
		slots:       make([]*memorySlot, slots),
		processing:  map[string]Task{},
	}
	for i := range b.slots {
		b.slots[i] = &memorySlot{notify: make(chan struct{}, 1)}
	}
	return b
}

func (b *MemoryBroker) Slots() int { return len(b.slots) }

func (b *MemoryBroker) Publish(_ context.Context, task Task) error {
	if task.ID == "" {
		return errors.New("task id is required")
	}
	b.mu.Lock()
	b.pushBackLocked(task)
	b.mu.Unlock()
	return nil
}

func (b *MemoryBroker) Consume(ctx context.Context, slot int) (*Delivery, error) {
	s, err := b.slot(slot)
	if err != nil {
		return nil, err
	}
	timer := time.NewTimer(b.pollTimeout)
	defer timer.Stop()
	for {
		b.mu.Lock()
		if len(s.items) > 0 {
			task := s.items[0]
			s.items = s.items[1:]
			b.processing[task.ID] = task
			b.mu.Unlock()
			return &Delivery{Task: task, Slot: slot, receipt: task.ID}, nil
		}
		b.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return nil, nil
		case <-s.notify:
		}
	}
}

func (b *MemoryBroker) Ack(_ context.Context, d *Delivery) error {
	b.mu.Lock()
	delete(b.processing, d.receipt)
	b.mu.Unlock()
	return nil
}

func (b *MemoryBroker) Retry(_ context.Context, d *Delivery, delay time.Duration, cause error) error {
	task := nextAttempt(d.Task, cause)
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.processing, d.receipt)
	if delay <= 0 {
		b.pushBackLocked(task)
		return nil
	}
	b.delayed = append(b.delayed, delayedTask{task: task, due: time.Now().Add(delay)})
	return nil
}

func (b *MemoryBroker) Bury(_ context.Context, d *Delivery, cause error) error {
	task := d.Task
	if cause != nil {
		task.LastError = cause.Error()
	}
	b.mu.Lock()
	delete(b.processing, d.receipt)
	b.dead = append(b.dead, task)
	b.mu.Unlock()
	return nil
}

func (b *MemoryBroker) Release(_ context.Context, d *Delivery) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.processing, d.receipt)
	s := b.slots[Partition(d.Task.Key, len(b.slots))]
	s.items = append([]Task{d.Task}, s.items...)
	signal(s.notify)
	return nil
}

func (b *MemoryBroker) ListDead(_ context.Context, limit int) ([]Task, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Task, 0, len(b.dead))
	// newest first
	for i := len(b.dead) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, b.dead[i])
	}
	return out, nil
}

func (b *MemoryBroker) Requeue(_ context.Context, id string) (Task, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, task := range b.dead {
		if task.ID != id {
			continue
		}
		b.dead = append(b.dead[:i], b.dead[i+1:]...)
		task = resetAttempts(task)
		b.pushBackLocked(task)
		return task, nil
	}
	return Task{}, fmt.Errorf("dead task %s: %w", id, ErrEmpty)
}

func (b *MemoryBroker) PromoteDue(_ context.Context, now time.Time) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sort.SliceStable(b.delayed, func(i, j int) bool { return b.delayed[i].due.Before(b.delayed[j].due) })
	promoted := 0
	for promoted < len(b.delayed) && !b.delayed[promoted].due.After(now) {
		b.pushBackLocked(b.delayed[promoted].task)
		promoted++
	}
	b.delayed = b.delayed[promoted:]
	return promoted, nil
}

// RecoverStranded is a no-op: in-flight tasks die with the process.
func (b *MemoryBroker) RecoverStranded(context.Context) (int, error) {
	return 0, nil
}

func (b *MemoryBroker) Depth(context.Context) (Depth, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var ready int64
	for _, s := range b.slots {
		ready += int64(len(s.items))
	}
	return Depth{
		Ready:      ready,
		Delayed:    int64(len(b.delayed)),
		Processing: int64(len(b.processing)),
		Dead:       int64(len(b.dead)),
	}, nil
}

func (b *MemoryBroker) pushBackLocked(task Task) {
	s := b.slots[Partition(task.Key, len(b.slots))]
	s.items = append(s.items, task)
	signal(s.notify)
}

func (b *MemoryBroker) slot(i int) (*memorySlot, error) {
	if i < 0 || i >= len(b.slots) {
		return nil, fmt.Errorf("slot %d out of range", i)
	}
	return b.slots[i], nil
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

func nextAttempt(task Task, cause error) Task {
	task.Attempt++
	if cause != nil {
		task.LastError = cause.Error()
	}
	return task
}

func resetAttempts(task Task) Task {
	task.Attempt = 1
	task.LastError = ""
	task.EnqueuedAt = time.Now().UTC()
	return task
}
