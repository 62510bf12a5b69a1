package middleware

import (
	"gowa-blast/internal/service"

	"github.com/labstack/echo/v4"
)

// RequireSessionAccess ensures the caller may act on the :userId session.
// Admins reach every session; any other token only the session named by its
// subject.
func RequireSessionAccess() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims, ok := Claims(c)
			if !ok {
				return unauthorized(c, "Authentication required", "UNAUTHORIZED")
			}
			sessionID := c.Param("userId")
			// routes without a session id are not scoped
			if claims.Role == service.RoleAdmin || sessionID == "" || claims.Subject == sessionID {
				return next(c)
			}
			return forbidden(c, "You don't have access to this session", "SESSION_ACCESS_DENIED")
		}
	}
}
