// internal/middleware/jwt_middleware.go
package middleware

import (
	"net/http"
	"strings"

	"gowa-blast/internal/service"

	"github.com/labstack/echo/v4"
)

// ClaimsKey is the echo context key holding the validated *service.Claims.
const ClaimsKey = "user_claims"

// Claims returns the claims stored by JWTAuthMiddleware. ok is false on
// unauthenticated routes or when auth is disabled.
func Claims(c echo.Context) (*service.Claims, bool) {
	claims, ok := c.Get(ClaimsKey).(*service.Claims)
	return claims, ok && claims != nil
}

// TokenValidator is implemented by service.TokenIssuer.
type TokenValidator interface {
	Validate(token string) (*service.Claims, error)
}

// JWTAuthMiddleware validates the bearer token and stores its claims in the
// context. A token may also come from the "token" query parameter, which is
// what browsers use for the websocket endpoint.
func JWTAuthMiddleware(tokens TokenValidator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tokenString := c.QueryParam("token")

			if authHeader := c.Request().Header.Get("Authorization"); authHeader != "" {
				parts := strings.Split(authHeader, " ")
				if len(parts) != 2 || parts[0] != "Bearer" {
					return unauthorized(c, "Invalid authorization header format", "INVALID_AUTH_HEADER")
				}
				tokenString = parts[1]
			}
			if tokenString == "" {
				return unauthorized(c, "Unauthorized", "UNAUTHORIZED")
			}

			claims, err := tokens.Validate(tokenString)
			if err != nil {
				return unauthorized(c, "Invalid or expired token", "INVALID_TOKEN")
			}

			c.Set(ClaimsKey, claims)

			return next(c)
		}
	}
}

func unauthorized(c echo.Context, message, code string) error {
	return c.JSON(http.StatusUnauthorized, map[string]interface{}{
		"success": false,
		"message": message,
		"error": map[string]string{
			"code": code,
		},
	})
}

func forbidden(c echo.Context, message, code string) error {
	return c.JSON(http.StatusForbidden, map[string]interface{}{
		"success": false,
		"message": message,
		"error": map[string]string{
			"code": code,
		},
	})
}
