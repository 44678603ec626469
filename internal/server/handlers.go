package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/memohai/leadflow/internal/healthcheck"
)

type PingHandler struct{}

func NewPingHandler() *PingHandler {
	return &PingHandler{}
}

func (h *PingHandler) Register(e *echo.Echo) {
	e.GET("/ping", h.Ping)
	e.HEAD("/ping", h.PingHead)
}

func (h *PingHandler) Ping(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

func (h *PingHandler) PingHead(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}

// HealthHandler reports the reachability of backing services.
type HealthHandler struct {
	logger  *slog.Logger
	checker healthcheck.Checker
	timeout time.Duration
}

func NewHealthHandler(log *slog.Logger, checker healthcheck.Checker) *HealthHandler {
	if log == nil {
		log = slog.Default()
	}
	return &HealthHandler{
		logger:  log.With(slog.String("handler", "health")),
		checker: checker,
		timeout: 3 * time.Second,
	}
}

func (h *HealthHandler) Register(e *echo.Echo) {
	e.GET("/health", h.Health)
}

func (h *HealthHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()

	checks := []healthcheck.CheckResult{}
	if h.checker != nil {
		checks = h.checker.ListChecks(ctx)
	}
	if !healthcheck.Healthy(checks) {
		h.logger.Warn("health check failed", slog.Any("checks", checks))
		return c.JSON(http.StatusServiceUnavailable, map[string]any{
			"status": healthcheck.StatusError,
			"checks": checks,
		})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"status": healthcheck.StatusOK,
		"checks": checks,
	})
}

// MetricsHandler serves the default prometheus registry.
type MetricsHandler struct{}

func NewMetricsHandler() *MetricsHandler {
	return &MetricsHandler{}
}

func (h *MetricsHandler) Register(e *echo.Echo) {
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}
