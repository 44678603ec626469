package leads

import (
	"errors"
	"strings"
	"time"
)

// StatusNew is the lifecycle status assigned when a lead is first seen.
const StatusNew = "NEW"

var ErrNotFound = errors.New("lead not found")

// Lead is a remote messaging user tracked per tenant. FullName and PhoneNumber
// are empty until captured and are never overwritten by the pipeline afterwards.
type Lead struct {
	ID           int64     `json:"id"`
	TenantID     int64     `json:"tenant_id"`
	RemoteUserID string    `json:"remote_user_id"`
	Username     string    `json:"username"`
	FullName     string    `json:"full_name,omitempty"`
	PhoneNumber  string    `json:"phone_number,omitempty"`
	Status       string    `json:"status"`
	WhenCall     string    `json:"when_call,omitempty"`
	Interest     string    `json:"interest,omitempty"`
	Message      string    `json:"message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (l Lead) HasFullName() bool {
	return strings.TrimSpace(l.FullName) != ""
}

func (l Lead) HasPhoneNumber() bool {
	return strings.TrimSpace(l.PhoneNumber) != ""
}
