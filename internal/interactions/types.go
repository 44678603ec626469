package interactions

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("interaction turn not found")

// Channel is the surface an interaction arrived through.
type Channel string

const (
	ChannelDirect  Channel = "DIRECT"
	ChannelComment Channel = "COMMENT"
)

// Turn is one recorded inbound message and the reply generated for it.
type Turn struct {
	ID           int64     `json:"id"`
	TenantID     int64     `json:"tenant_id"`
	RemoteUserID string    `json:"remote_user_id"`
	Username     string    `json:"username"`
	Channel      Channel   `json:"channel"`
	MessageID    string    `json:"message_id,omitempty"`
	Message      string    `json:"message"`
	Reply        string    `json:"reply"`
	CreatedAt    time.Time `json:"created_at"`
}

// AppendInput describes a turn to record.
type AppendInput struct {
	TenantID     int64
	RemoteUserID string
	Username     string
	Channel      Channel
	MessageID    string
	Message      string
	Reply        string
}
