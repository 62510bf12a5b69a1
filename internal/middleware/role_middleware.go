package middleware

import (
	"slices"

	"github.com/labstack/echo/v4"
)

// RequireRole lets a request through only when its token carries one of
// roles. Mount it after JWTAuthMiddleware.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims, ok := Claims(c)
			if !ok {
				return unauthorized(c, "Authentication required", "UNAUTHORIZED")
			}
			if !slices.Contains(roles, claims.Role) {
				return forbidden(c, "Role "+claims.Role+" cannot perform this action", "FORBIDDEN")
			}
			return next(c)
		}
	}
}
