package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/memohai/leadflow/internal/auth"
	"github.com/memohai/leadflow/internal/interactions"
	"github.com/memohai/leadflow/internal/queue"
)

const (
	defaultDeadLetterLimit = 50
	maxDeadLetterLimit     = 500
)

type turnLister interface {
	ListBetween(ctx context.Context, tenantID int64, from, to time.Time) ([]interactions.Turn, error)
}

type tenantCache interface {
	Invalidate(id int64)
}

// AdminHandler exposes dead-letter inspection and conversation export to
// operators holding a signed token.
type AdminHandler struct {
	logger *slog.Logger
	secret string
	dead   queue.DeadLetters
	turns  turnLister
	cache  tenantCache
}

type deadLetterView struct {
	ID         string     `json:"id"`
	Kind       queue.Kind `json:"kind"`
	Key        string     `json:"key"`
	Attempt    int        `json:"attempt"`
	LastError  string     `json:"last_error,omitempty"`
	EnqueuedAt time.Time  `json:"enqueued_at"`
}

// NewAdminHandler builds the handler. An empty secret leaves the routes
// unregistered.
func NewAdminHandler(log *slog.Logger, secret string, dead queue.DeadLetters, turns turnLister, cache tenantCache) *AdminHandler {
	if log == nil {
		log = slog.Default()
	}
	return &AdminHandler{
		logger: log.With(slog.String("handler", "admin")),
		secret: secret,
		dead:   dead,
		turns:  turns,
		cache:  cache,
	}
}

// Register registers admin routes behind the operator token check.
func (h *AdminHandler) Register(e *echo.Echo) {
	if h.secret == "" {
		h.logger.Warn("auth.jwt_secret is empty, admin endpoints disabled")
		return
	}
	g := e.Group("/admin", auth.JWTMiddleware(h.secret, nil), auth.RequireOperator)
	g.GET("/dead-letters", h.ListDeadLetters)
	g.POST("/dead-letters/:id/requeue", h.RequeueDeadLetter)
	g.GET("/tenants/:id/turns", h.ListTurns)
	g.POST("/tenants/:id/invalidate", h.InvalidateTenant)
}

// ListDeadLetters returns buried tasks, newest first.
func (h *AdminHandler) ListDeadLetters(c echo.Context) error {
	limit := defaultDeadLetterLimit
	if raw := c.QueryParam("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = min(v, maxDeadLetterLimit)
	}
	tasks, err := h.dead.ListDead(c.Request().Context(), limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	items := make([]deadLetterView, 0, len(tasks))
	for _, t := range tasks {
		items = append(items, deadLetterView{
			ID:         t.ID,
			Kind:       t.Kind,
			Key:        t.Key,
			Attempt:    t.Attempt,
			LastError:  t.LastError,
			EnqueuedAt: t.EnqueuedAt,
		})
	}
	return c.JSON(http.StatusOK, map[string]any{"items": items})
}

// RequeueDeadLetter republishes one buried task with a fresh attempt budget.
func (h *AdminHandler) RequeueDeadLetter(c echo.Context) error {
	id := c.Param("id")
	task, err := h.dead.Requeue(c.Request().Context(), id)
	if errors.Is(err, queue.ErrEmpty) {
		return echo.NewHTTPError(http.StatusNotFound, "dead letter not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	sub, _ := auth.SubjectFromContext(c)
	h.logger.Info("dead letter requeued",
		slog.String("task_id", task.ID),
		slog.String("kind", string(task.Kind)),
		slog.String("operator", sub),
	)
	return c.JSON(http.StatusOK, map[string]string{"status": "requeued", "id": task.ID})
}

// ListTurns exports a tenant's turns within [from, to). Both bounds are
// RFC 3339; from defaults to 24 hours before to, and to defaults to now.
func (h *AdminHandler) ListTurns(c echo.Context) error {
	tenantID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || tenantID <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid tenant id")
	}
	to := time.Now().UTC()
	if raw := c.QueryParam("to"); raw != "" {
		if to, err = time.Parse(time.RFC3339, raw); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "to must be RFC 3339")
		}
	}
	from := to.Add(-24 * time.Hour)
	if raw := c.QueryParam("from"); raw != "" {
		if from, err = time.Parse(time.RFC3339, raw); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "from must be RFC 3339")
		}
	}
	if !from.Before(to) {
		return echo.NewHTTPError(http.StatusBadRequest, "from must be before to")
	}
	turns, err := h.turns.ListBetween(c.Request().Context(), tenantID, from, to)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if turns == nil {
		turns = []interactions.Turn{}
	}
	return c.JSON(http.StatusOK, map[string]any{"items": turns})
}

// InvalidateTenant drops the cached tenant record after an operator changed
// its status or credentials in the database.
func (h *AdminHandler) InvalidateTenant(c echo.Context) error {
	tenantID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || tenantID <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid tenant id")
	}
	h.cache.Invalidate(tenantID)
	sub, _ := auth.SubjectFromContext(c)
	h.logger.Info("tenant cache invalidated by operator",
		slog.Int64("tenant_id", tenantID),
		slog.String("operator", sub),
	)
	return c.JSON(http.StatusOK, map[string]any{"status": "invalidated", "id": tenantID})
}
