package queue

import (
	"context"
	"time"
)

// Delivery is a task handed to one consumer. It must be settled with exactly
// one of Ack, Retry, Bury or Release.
type Delivery struct {
	Task    Task
	Slot    int
	receipt string
}

// Broker is a durable task queue with per-slot consumption.
type Broker interface {
	Publish(ctx context.Context, task Task) error
	// Consume blocks up to the poll timeout and returns nil when idle.
	Consume(ctx context.Context, slot int) (*Delivery, error)
	Ack(ctx context.Context, d *Delivery) error
	// Retry schedules the next attempt after delay.
	Retry(ctx context.Context, d *Delivery, delay time.Duration, cause error) error
	// Bury moves the task to the dead-letter queue.
	Bury(ctx context.Context, d *Delivery, cause error) error
	// Release puts the task back at the front of its slot without counting
	// an attempt.
	Release(ctx context.Context, d *Delivery) error
	// Slots is the number of independent consumption slots.
	Slots() int
}

// DeadLetters gives operators access to buried tasks.
type DeadLetters interface {
	ListDead(ctx context.Context, limit int) ([]Task, error)
	// Requeue republishes a buried task with its attempt count reset.
	Requeue(ctx context.Context, id string) (Task, error)
}

// Depth is a snapshot of queue sizes.
type Depth struct {
	Ready      int64
	Delayed    int64
	Processing int64
	Dead       int64
}

// Maintainer is implemented by brokers that need periodic housekeeping.
type Maintainer interface {
	// PromoteDue moves delayed tasks whose time has come back to ready.
	PromoteDue(ctx context.Context, now time.Time) (int, error)
	// RecoverStranded returns tasks held by consumers that are gone.
	RecoverStranded(ctx context.Context) (int, error)
	Depth(ctx context.Context) (Depth, error)
}

// Backend bundles everything a queue implementation offers.
type Backend interface {
	Broker
	DeadLetters
	Maintainer
}
