package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/time/rate"

	"github.com/memohai/leadflow/internal/instagram"
	"github.com/memohai/leadflow/internal/metrics"
	"github.com/memohai/leadflow/internal/queue"
	"github.com/memohai/leadflow/internal/tenants"
)

// DispatcherConfig throttles sends per tenant and sets how long a sent
// marker is remembered.
type DispatcherConfig struct {
	SendRate  float64 // messages per second per tenant
	SendBurst int
	SentTTL   time.Duration
}

// Dispatcher runs send_reply tasks with the tenant's own access token.
type Dispatcher struct {
	tenants  TenantStore
	sender   MessageSender
	sent     queue.Idempotency
	cfg      DispatcherConfig
	logger   *slog.Logger
	validate *validator.Validate

	mu       sync.RWMutex
	limiters map[int64]*rate.Limiter
}

func NewDispatcher(log *slog.Logger, tenants TenantStore, sender MessageSender, sent queue.Idempotency, cfg DispatcherConfig) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	if cfg.SendRate <= 0 {
		cfg.SendRate = 5
	}
	if cfg.SendBurst <= 0 {
		cfg.SendBurst = 1
	}
	return &Dispatcher{
		tenants:  tenants,
		sender:   sender,
		sent:     sent,
		cfg:      cfg,
		logger:   log.With(slog.String("component", "dispatcher")),
		validate: validator.New(),
		limiters: map[int64]*rate.Limiter{},
	}
}

func (d *Dispatcher) Handle(ctx context.Context, task queue.Task) error {
	var in SendReply
	if err := task.Decode(&in); err != nil {
		return err
	}
	if err := d.validate.Struct(in); err != nil {
		return queue.Permanent(fmt.Errorf("invalid send_reply payload: %w", err))
	}
	log := d.logger.With(
		slog.String("task_id", task.ID),
		slog.Int64("tenant_id", in.TenantID),
		slog.String("recipient_id", in.RecipientID),
	)

	marker := sentKey(in, task)
	if d.sent != nil {
		seen, err := d.sent.Seen(ctx, marker)
		if err != nil {
			return err
		}
		if seen {
			metrics.MessagesSent.WithLabelValues("skipped").Inc()
			log.Info("reply already sent, skipping")
			return nil
		}
	}

	tenant, err := d.tenants.Get(ctx, in.TenantID)
	if errors.Is(err, tenants.ErrNotFound) {
		return queue.Permanent(err)
	}
	if err != nil {
		return err
	}
	if !tenant.Active {
		return queue.Permanent(errTenantInactive)
	}

	if err := d.limiter(tenant.ID).Wait(ctx); err != nil {
		return fmt.Errorf("send throttle: %w", err)
	}
	res, err := d.sender.SendText(ctx, tenant.AccessToken, in.RecipientID, in.Text)
	if err != nil {
		metrics.MessagesSent.WithLabelValues("failed").Inc()
		if instagram.IsPermanent(err) {
			return queue.Permanent(err)
		}
		return err
	}
	metrics.MessagesSent.WithLabelValues("sent").Inc()

	if d.sent != nil {
		if _, err := d.sent.Claim(context.WithoutCancel(ctx), marker, d.cfg.SentTTL); err != nil {
			// the reply is out; a failed marker only risks a duplicate on redelivery
			log.Warn("record sent marker failed", slog.Any("error", err))
		}
	}
	log.Info("reply sent", slog.String("message_id", res.MessageID), slog.Int64("turn_id", in.TurnID))
	return nil
}

// limiter returns the tenant's token bucket, creating it on first use.
func (d *Dispatcher) limiter(tenantID int64) *rate.Limiter {
	d.mu.RLock()
	l, ok := d.limiters[tenantID]
	d.mu.RUnlock()
	if ok {
		return l
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if l, ok = d.limiters[tenantID]; ok {
		return l
	}
	l = rate.NewLimiter(rate.Limit(d.cfg.SendRate), d.cfg.SendBurst)
	d.limiters[tenantID] = l
	return l
}

func sentKey(in SendReply, task queue.Task) string {
	if in.MessageID != "" {
		return fmt.Sprintf("sent:%d:%s", in.TenantID, in.MessageID)
	}
	return fmt.Sprintf("sent:%d:task:%s", in.TenantID, task.ID)
}
