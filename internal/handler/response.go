package handler

import (
	"errors"
	"fmt"
	"net/http"

	customMiddleware "gowa-blast/internal/middleware"
	"gowa-blast/internal/service"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

func SuccessResponse(c echo.Context, code int, message string, data interface{}) error {
	return c.JSON(code, map[string]interface{}{
		"success": true,
		"message": message,
		"data":    data,
	})
}

func ErrorResponse(c echo.Context, code int, message, errorCode, details string) error {
	errBody := map[string]string{"code": errorCode}
	if details != "" {
		errBody["details"] = details
	}
	return c.JSON(code, map[string]interface{}{
		"success": false,
		"message": message,
		"error":   errBody,
	})
}

// serviceError maps the service sentinels to HTTP responses.
func serviceError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, service.ErrInvalidSessionID):
		return ErrorResponse(c, http.StatusBadRequest, "Invalid userId", "INVALID_USER_ID", err.Error())
	case errors.Is(err, service.ErrSessionNotFound):
		return ErrorResponse(c, http.StatusNotFound, "Session not found", "SESSION_NOT_FOUND", "Create the session first")
	case errors.Is(err, service.ErrSessionNotReady):
		return ErrorResponse(c, http.StatusConflict, "Session is not ready", "SESSION_NOT_READY", "Please check the status endpoint")
	case errors.Is(err, service.ErrSessionBusy):
		return ErrorResponse(c, http.StatusConflict, "Session is busy", "SESSION_BUSY", err.Error())
	case errors.Is(err, service.ErrSessionClosed):
		return ErrorResponse(c, http.StatusConflict, "Session was closed", "SESSION_CLOSED", err.Error())
	case errors.Is(err, service.ErrNoRecipients), errors.Is(err, service.ErrEmptyPayload):
		return ErrorResponse(c, http.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", err.Error())
	case errors.Is(err, service.ErrUnsupported):
		return ErrorResponse(c, http.StatusNotImplemented, "Not supported for this account", "NOT_SUPPORTED", err.Error())
	case errors.Is(err, service.ErrNotGroup):
		return ErrorResponse(c, http.StatusBadRequest, "Chat is not a group", "NOT_A_GROUP", err.Error())
	}
	return ErrorResponse(c, http.StatusInternalServerError, "Internal Server Error", "INTERNAL_ERROR", err.Error())
}

// HTTPErrorHandler renders echo errors in the same envelope as handlers.
func HTTPErrorHandler(log zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code := http.StatusInternalServerError
		message := "Internal Server Error"
		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
			message = fmt.Sprintf("%v", he.Message)
		} else {
			log.Error().Err(err).Str("path", c.Path()).Msg("unhandled error")
		}

		errorCode := "HTTP_ERROR"
		switch code {
		case http.StatusUnauthorized:
			message = "Authentication required"
			errorCode = "UNAUTHORIZED"
		case http.StatusMethodNotAllowed:
			message = "Method not allowed for this endpoint"
			errorCode = "METHOD_NOT_ALLOWED"
		case http.StatusNotFound:
			message = "Endpoint not found"
			errorCode = "NOT_FOUND"
		case http.StatusTooManyRequests:
			errorCode = "RATE_LIMITED"
		case http.StatusRequestEntityTooLarge:
			errorCode = "PAYLOAD_TOO_LARGE"
		}

		if err := ErrorResponse(c, code, message, errorCode, ""); err != nil {
			log.Warn().Err(err).Msg("write error response")
		}
	}
}

// allowedSession reports whether the caller may act on sessionID. Without
// auth configured every caller is allowed.
func allowedSession(c echo.Context, sessionID string) bool {
	claims, ok := customMiddleware.Claims(c)
	if !ok {
		return true
	}
	return claims.Role == service.RoleAdmin || claims.Subject == sessionID
}
