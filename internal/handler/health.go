package handler

import (
	"net/http"
	"time"

	"gowa-blast/config"
	"gowa-blast/internal/service"

	"github.com/labstack/echo/v4"
)

// ClientCounter reports connected realtime clients; ws.Hub implements it.
type ClientCounter interface {
	ClientCount() int
}

type HealthHandler struct {
	registry *service.Registry
	cfg      *config.Config
	clients  ClientCounter
	started  time.Time
}

func NewHealthHandler(registry *service.Registry, cfg *config.Config, clients ClientCounter) *HealthHandler {
	return &HealthHandler{registry: registry, cfg: cfg, clients: clients, started: time.Now()}
}

// GET /health
func (h *HealthHandler) Health(c echo.Context) error {
	data := map[string]interface{}{
		"status":   "ok",
		"uptime":   time.Since(h.started).Round(time.Second).String(),
		"sessions": h.registry.Stats(),
		"config": map[string]interface{}{
			"maxSessions":        h.cfg.MaxSessions,
			"idleTimeout":        h.cfg.IdleTimeout.String(),
			"cleanupInterval":    h.cfg.CleanupInterval.String(),
			"defaultDelay":       h.cfg.DefaultDelay.String(),
			"maxDelay":           h.cfg.MaxDelay.String(),
			"retryAttempts":      h.cfg.RetryAttempts,
			"spintax":            h.cfg.Spintax,
			"defaultCountryCode": h.cfg.DefaultCountryCode,
			"authEnabled":        h.cfg.JWTSecret != "",
		},
	}
	if h.clients != nil {
		data["realtimeClients"] = h.clients.ClientCount()
	}
	return SuccessResponse(c, http.StatusOK, "Service healthy", data)
}
