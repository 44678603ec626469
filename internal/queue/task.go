// Package queue carries pipeline tasks between the webhook and the workers.
package queue

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/oklog/ulid/v2"
)

// Kind names the handler a task is routed to.
type Kind string

const (
	KindProcessDM Kind = "process_dm"
	KindSendReply Kind = "send_reply"
)

// Task is the durable envelope stored by every broker.
type Task struct {
	ID         string          `json:"id"`
	Kind       Kind            `json:"kind"`
	Key        string          `json:"key"`     // serialization key, tenant:sender
	Attempt    int             `json:"attempt"` // 1-based number of the next execution
	Payload    json.RawMessage `json:"payload"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	LastError  string          `json:"last_error,omitempty"`
}

// NewTask wraps payload into a fresh task for key.
func NewTask(kind Kind, key string, payload any) (Task, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Task{}, fmt.Errorf("encode %s payload: %w", kind, err)
	}
	return Task{
		ID:         ulid.Make().String(),
		Kind:       kind,
		Key:        key,
		Attempt:    1,
		Payload:    raw,
		EnqueuedAt: time.Now().UTC(),
	}, nil
}

// Decode unmarshals the payload into v.
func (t Task) Decode(v any) error {
	if err := json.Unmarshal(t.Payload, v); err != nil {
		return Permanent(fmt.Errorf("decode %s payload: %w", t.Kind, err))
	}
	return nil
}

// Key builds the per-conversation serialization key.
func Key(tenantID int64, senderID string) string {
	return fmt.Sprintf("%d:%s", tenantID, senderID)
}

// Partition maps a key onto one of n partitions.
func Partition(key string, n int) int {
	if n <= 1 {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(n))
}

func encodeTask(t Task) (string, error) {
	raw, err := json.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("encode task %s: %w", t.ID, err)
	}
	return string(raw), nil
}

func decodeTask(raw string) (Task, error) {
	var t Task
	if err := json.Unmarshal([]byte(raw), &t); err != nil {
		return Task{}, fmt.Errorf("decode task: %w", err)
	}
	return t, nil
}
