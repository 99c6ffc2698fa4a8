// Package handlers contains the HTTP handlers of the liveness server.
package handlers

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
)

// PipelineInfo reports what the running bot has loaded.
type PipelineInfo interface {
	Units() []string
}

// ResolverInfo reports the registered video groups and providers.
type ResolverInfo interface {
	Groups() []string
	CandidateCount() int
}

// TriggerInfo reports the registered AI trigger rules.
type TriggerInfo interface {
	Rules() []string
}

type PingHandler struct {
	logger   *slog.Logger
	pipeline PipelineInfo
	resolver ResolverInfo
	triggers TriggerInfo
}

func NewPingHandler(log *slog.Logger, pipeline PipelineInfo, resolver ResolverInfo, triggers TriggerInfo) *PingHandler {
	if log == nil {
		log = slog.Default()
	}
	return &PingHandler{
		logger:   log.With(slog.String("handler", "ping")),
		pipeline: pipeline,
		resolver: resolver,
		triggers: triggers,
	}
}

func (h *PingHandler) Register(e *echo.Echo) {
	e.GET("/ping", h.Ping)
	e.HEAD("/health", h.PingHead)
}

// Ping reports liveness along with the loaded unit, group, provider and
// rule counts so a glance at the endpoint shows what the bot is running.
func (h *PingHandler) Ping(c echo.Context) error {
	resp := map[string]any{
		"status": "ok",
	}
	if h.pipeline != nil {
		resp["units"] = h.pipeline.Units()
	}
	if h.resolver != nil {
		resp["groups"] = h.resolver.Groups()
		resp["providers"] = h.resolver.CandidateCount()
	}
	if h.triggers != nil {
		resp["triggers"] = h.triggers.Rules()
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *PingHandler) PingHead(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}
