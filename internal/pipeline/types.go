// Package pipeline turns queued inbound messages into replies and delivers
// them.
package pipeline

import (
	"context"
	"errors"

	"github.com/memohai/leadflow/internal/campaigns"
	"github.com/memohai/leadflow/internal/chat"
	"github.com/memohai/leadflow/internal/instagram"
	"github.com/memohai/leadflow/internal/interactions"
	"github.com/memohai/leadflow/internal/leads"
	"github.com/memohai/leadflow/internal/queue"
	"github.com/memohai/leadflow/internal/tenants"
)

var errTenantInactive = errors.New("tenant is inactive")

// Handler executes one kind of task. Returning an error wrapped with
// queue.Permanent dead-letters the task immediately.
type Handler interface {
	Handle(ctx context.Context, task queue.Task) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, task queue.Task) error

func (f HandlerFunc) Handle(ctx context.Context, task queue.Task) error { return f(ctx, task) }

type TenantStore interface {
	Get(ctx context.Context, id int64) (tenants.Tenant, error)
}

type LeadStore interface {
	FindOrCreate(ctx context.Context, tenantID int64, remoteUserID, username string) (leads.Lead, bool, error)
	SetFullNameIfEmpty(ctx context.Context, leadID int64, name string) (bool, error)
	SetPhoneIfEmpty(ctx context.Context, leadID int64, phone string) (bool, error)
}

type TurnStore interface {
	AppendTurn(ctx context.Context, input interactions.AppendInput) (interactions.Turn, bool, error)
	GetByMessageID(ctx context.Context, tenantID int64, messageID string) (interactions.Turn, error)
	RecentTurns(ctx context.Context, tenantID int64, remoteUserID string, limit int) ([]interactions.Turn, error)
}

type CampaignStore interface {
	ActiveCampaigns(ctx context.Context, tenantID int64) ([]campaigns.Campaign, error)
	EnabledTemplates(ctx context.Context, tenantID int64) ([]campaigns.Template, error)
}

type ProfileClient interface {
	Username(ctx context.Context, accessToken, userID string) (string, error)
}

type MessageSender interface {
	SendText(ctx context.Context, accessToken, recipientID, text string) (instagram.SendResult, error)
}

type AttributeExtractor interface {
	ExtractName(ctx context.Context, provider chat.Provider, text string) (string, error)
	ExtractPhone(ctx context.Context, provider chat.Provider, text string) (string, error)
}

type ReplyGenerator interface {
	Generate(ctx context.Context, provider chat.Provider, system string, history []chat.Message, recentReplies []string) (chat.Reply, error)
}

type taskPublisher interface {
	Publish(ctx context.Context, task queue.Task) error
}

// SendReply is the payload of a send_reply task.
type SendReply struct {
	TenantID    int64  `json:"tenant_id" validate:"required"`
	RecipientID string `json:"recipient_id" validate:"required"`
	Text        string `json:"text" validate:"required"`
	MessageID   string `json:"message_id,omitempty"`
	TurnID      int64  `json:"turn_id,omitempty"`
}
