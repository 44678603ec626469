package instagram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/memohai/leadflow/internal/metrics"
	"github.com/memohai/leadflow/internal/queue"
	"github.com/memohai/leadflow/internal/tenants"
)

const webhookMaxBodyBytes int64 = 1 << 20 // 1 MiB

type tenantLookup interface {
	FindActiveByPlatformAccountID(ctx context.Context, accountID string) (tenants.Tenant, error)
}

type taskPublisher interface {
	Publish(ctx context.Context, task queue.Task) error
}

// WebhookConfig holds the webhook's shared secret and dedup window.
type WebhookConfig struct {
	VerifyToken string
	DedupTTL    time.Duration
}

// WebhookHandler receives Instagram messaging webhooks. It never calls the
// Graph API or a model; all work is handed to the queue.
type WebhookHandler struct {
	logger    *slog.Logger
	cfg       WebhookConfig
	tenants   tenantLookup
	publisher taskPublisher
	dedup     queue.Idempotency
	validate  *validator.Validate
}

// NewWebhookHandler builds the handler. dedup may be nil.
func NewWebhookHandler(log *slog.Logger, cfg WebhookConfig, tenants tenantLookup, publisher taskPublisher, dedup queue.Idempotency) *WebhookHandler {
	if log == nil {
		log = slog.Default()
	}
	return &WebhookHandler{
		logger:    log.With(slog.String("handler", "instagram_webhook")),
		cfg:       cfg,
		tenants:   tenants,
		publisher: publisher,
		dedup:     dedup,
		validate:  validator.New(),
	}
}

// Register registers webhook routes.
func (h *WebhookHandler) Register(e *echo.Echo) {
	e.GET("/webhook/instagram", h.Verify)
	e.POST("/webhook/instagram", h.Receive)
}

// Verify answers the subscription handshake.
func (h *WebhookHandler) Verify(c echo.Context) error {
	mode := c.QueryParam("hub.mode")
	token := c.QueryParam("hub.verify_token")
	challenge := c.QueryParam("hub.challenge")

	if mode == "subscribe" && h.cfg.VerifyToken != "" && token == h.cfg.VerifyToken {
		h.logger.Info("webhook verification succeeded")
		return c.String(http.StatusOK, challenge)
	}
	h.logger.Warn("webhook verification failed", slog.String("mode", mode))
	return c.String(http.StatusForbidden, "Verification failed")
}

// Receive acknowledges a messaging event and enqueues its processing. Apart
// from an unknown tenant, every outcome is answered with 200 so the platform
// does not redeliver.
func (h *WebhookHandler) Receive(c echo.Context) error {
	ctx := c.Request().Context()

	payload, err := io.ReadAll(io.LimitReader(c.Request().Body, webhookMaxBodyBytes+1))
	if err != nil {
		return h.malformed(c, fmt.Errorf("read body: %w", err))
	}
	if int64(len(payload)) > webhookMaxBodyBytes {
		return h.malformed(c, fmt.Errorf("payload too large: max %d bytes", webhookMaxBodyBytes))
	}
	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return h.malformed(c, fmt.Errorf("decode event: %w", err))
	}
	msg, err := event.FirstMessage()
	if err != nil {
		return h.malformed(c, err)
	}
	if msg.IsEcho {
		metrics.WebhookEvents.WithLabelValues("echo").Inc()
		return ok(c)
	}
	if err := h.validate.Struct(msg); err != nil {
		return h.malformed(c, err)
	}

	tenant, err := h.tenants.FindActiveByPlatformAccountID(ctx, msg.AccountID)
	if errors.Is(err, tenants.ErrNotFound) {
		metrics.WebhookEvents.WithLabelValues("unknown_tenant").Inc()
		h.logger.Warn("webhook for unknown tenant", slog.String("account_id", msg.AccountID))
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Company not found"})
	}
	if err != nil {
		metrics.WebhookEvents.WithLabelValues("enqueue_failed").Inc()
		h.logger.Error("tenant lookup failed", slog.String("account_id", msg.AccountID), slog.Any("error", err))
		return c.JSON(http.StatusOK, map[string]string{"error": "tenant lookup failed"})
	}

	dedupKey := ""
	if msg.MessageID != "" && h.dedup != nil {
		dedupKey = fmt.Sprintf("mid:%d:%s", tenant.ID, msg.MessageID)
		first, err := h.dedup.Claim(ctx, dedupKey, h.cfg.DedupTTL)
		switch {
		case err != nil:
			// processing is idempotent on the message id as well
			h.logger.Warn("dedup claim failed", slog.Any("error", err))
			dedupKey = ""
		case !first:
			metrics.WebhookEvents.WithLabelValues("duplicate").Inc()
			h.logger.Info("duplicate delivery ignored", slog.Int64("tenant_id", tenant.ID), slog.String("mid", msg.MessageID))
			return ok(c)
		}
	}

	task, err := queue.NewTask(queue.KindProcessDM, queue.Key(tenant.ID, msg.SenderID), ProcessDM{
		TenantID:   tenant.ID,
		SenderID:   msg.SenderID,
		MessageID:  msg.MessageID,
		Text:       msg.Text,
		ReceivedAt: time.Now().UTC(),
	})
	if err == nil {
		err = h.publisher.Publish(ctx, task)
	}
	if err != nil {
		if dedupKey != "" {
			if ferr := h.dedup.Forget(context.WithoutCancel(ctx), dedupKey); ferr != nil {
				h.logger.Warn("dedup release failed", slog.Any("error", ferr))
			}
		}
		metrics.WebhookEvents.WithLabelValues("enqueue_failed").Inc()
		h.logger.Error("enqueue failed", slog.Int64("tenant_id", tenant.ID), slog.Any("error", err))
		return c.JSON(http.StatusOK, map[string]string{"error": "enqueue failed"})
	}

	metrics.WebhookEvents.WithLabelValues("enqueued").Inc()
	h.logger.Info("message enqueued",
		slog.Int64("tenant_id", tenant.ID),
		slog.String("sender_id", msg.SenderID),
		slog.String("task_id", task.ID),
	)
	return ok(c)
}

func (h *WebhookHandler) malformed(c echo.Context, err error) error {
	metrics.WebhookEvents.WithLabelValues("malformed").Inc()
	h.logger.Error("malformed webhook event", slog.Any("error", err))
	return c.JSON(http.StatusOK, map[string]string{"error": err.Error()})
}

func ok(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
