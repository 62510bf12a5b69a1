package handler

import (
	"net/http"

	customMiddleware "gowa-blast/internal/middleware"
	"gowa-blast/internal/service"

	"github.com/labstack/echo/v4"
)

// Routes groups the handlers served by the API. Auth is nil when no JWT
// secret is configured, in which case every route is open.
type Routes struct {
	Sessions     *SessionHandler
	Messages     *MessageHandler
	Jobs         *JobHandler
	Capabilities *CapabilityHandler
	Health       *HealthHandler
	WebSocket    echo.HandlerFunc
	Metrics      http.Handler
	Auth         echo.MiddlewareFunc
}

func (r Routes) Register(e *echo.Echo) {
	e.GET("/health", r.Health.Health)
	if r.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(r.Metrics))
	}

	var (
		group  []echo.MiddlewareFunc
		scoped []echo.MiddlewareFunc
		writer []echo.MiddlewareFunc
	)
	if r.Auth != nil {
		group = append(group, r.Auth)
		scoped = append(scoped, customMiddleware.RequireSessionAccess())
		writer = append(writer, customMiddleware.RequireRole(service.RoleAdmin, service.RoleOperator))
	}
	if r.WebSocket != nil {
		e.GET("/ws", r.WebSocket, group...)
	}

	api := e.Group("/api", group...)
	writeScoped := append(append([]echo.MiddlewareFunc{}, writer...), scoped...)

	// =====================================================
	// SESSION ROUTES
	// =====================================================
	api.GET("/sessions", r.Sessions.List)
	api.POST("/sessions", r.Sessions.Create, writer...)
	api.GET("/sessions/:userId/status", r.Sessions.Status, scoped...)
	api.GET("/sessions/:userId/qr", r.Sessions.QR, scoped...)
	api.DELETE("/sessions/:userId", r.Sessions.Close, writeScoped...)

	// =====================================================
	// BULK DISPATCH
	// =====================================================
	api.POST("/sessions/:userId/send", r.Messages.Send, writeScoped...)
	api.GET("/jobs/:jobId", r.Jobs.Get)
	api.GET("/jobs/:jobId/failures", r.Jobs.ExportFailures)

	// =====================================================
	// OPTIONAL CAPABILITIES
	// =====================================================
	api.GET("/sessions/:userId/account", r.Capabilities.Account, scoped...)
	api.GET("/sessions/:userId/labels", r.Capabilities.Labels, scoped...)
	api.GET("/sessions/:userId/labels/:labelId/chats", r.Capabilities.ChatsByLabel, scoped...)
	api.GET("/sessions/:userId/chats", r.Capabilities.Chats, scoped...)
	api.GET("/sessions/:userId/chats/:chatId/participants", r.Capabilities.Participants, scoped...)
}
