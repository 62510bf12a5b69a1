package handler

import (
	"errors"
	"net/http"
	"strings"

	customMiddleware "gowa-blast/internal/middleware"
	"gowa-blast/internal/model"
	"gowa-blast/internal/service"

	"github.com/labstack/echo/v4"
)

type CreateSessionRequest struct {
	UserID string `json:"userId"`
}

type SessionHandler struct {
	registry *service.Registry
}

func NewSessionHandler(registry *service.Registry) *SessionHandler {
	return &SessionHandler{registry: registry}
}

// POST /api/sessions
func (h *SessionHandler) Create(c echo.Context) error {
	var req CreateSessionRequest
	if err := c.Bind(&req); err != nil {
		return ErrorResponse(c, http.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		return ErrorResponse(c, http.StatusBadRequest, "Field 'userId' is required", "VALIDATION_ERROR", "")
	}
	if !allowedSession(c, req.UserID) {
		return ErrorResponse(c, http.StatusForbidden, "You don't have access to this session", "SESSION_ACCESS_DENIED", "")
	}

	res, err := h.registry.CreateSession(c.Request().Context(), req.UserID)
	if err != nil {
		if errors.Is(err, service.ErrInitFailed) {
			return c.JSON(http.StatusInternalServerError, map[string]interface{}{
				"success": false,
				"message": "Session initialization failed",
				"data": map[string]interface{}{
					"userId": req.UserID,
					"status": res.Status,
				},
				"error": map[string]string{
					"code":    "INIT_ERROR",
					"details": err.Error(),
				},
			})
		}
		return serviceError(c, err)
	}

	data := map[string]interface{}{
		"userId":   req.UserID,
		"status":   res.Status,
		"existing": res.Existing,
	}
	if res.Evicted != "" {
		data["evicted"] = res.Evicted
	}

	if res.Existing {
		return SuccessResponse(c, http.StatusOK, "Session already exists", data)
	}
	return SuccessResponse(c, http.StatusCreated, "Session created", data)
}

// GET /api/sessions/:userId/status
func (h *SessionHandler) Status(c echo.Context) error {
	id := c.Param("userId")
	h.registry.Touch(id)
	info, ok := h.registry.Info(id)

	data := map[string]interface{}{
		"userId": id,
		"status": info.Status,
	}
	if ok {
		data["lastActivity"] = info.LastActivity
		data["hasQr"] = info.HasQR
		data["locked"] = info.Locked
		if client, _, found := h.registry.Client(id); found {
			data["connectionState"] = client.ConnectionState()
		}
	}
	return SuccessResponse(c, http.StatusOK, "Session status", data)
}

// GET /api/sessions/:userId/qr
func (h *SessionHandler) QR(c echo.Context) error {
	id := c.Param("userId")
	h.registry.Touch(id)
	qr, ok := h.registry.QRCode(id)
	if !ok {
		status := h.registry.Status(id)
		if status == model.StatusNoSession {
			return ErrorResponse(c, http.StatusNotFound, "Session not found", "SESSION_NOT_FOUND", "Create the session first")
		}
		return ErrorResponse(c, http.StatusNotFound, "QR code not available", "QR_NOT_AVAILABLE", "status: "+string(status))
	}
	return SuccessResponse(c, http.StatusOK, "QR code", map[string]interface{}{
		"userId": id,
		"qr":     qr,
	})
}

// DELETE /api/sessions/:userId
func (h *SessionHandler) Close(c echo.Context) error {
	id := c.Param("userId")
	closed := h.registry.DestroySession(c.Request().Context(), id)

	message := "Session closed"
	if !closed {
		message = "No session to close"
	}
	return SuccessResponse(c, http.StatusOK, message, map[string]interface{}{
		"userId": id,
		"status": model.StatusNoSession,
		"closed": closed,
	})
}

// GET /api/sessions
func (h *SessionHandler) List(c echo.Context) error {
	sessions := h.registry.List()

	claims, ok := customMiddleware.Claims(c)
	if ok && claims.Role != service.RoleAdmin {
		visible := sessions[:0]
		for _, s := range sessions {
			if s.ID == claims.Subject {
				visible = append(visible, s)
			}
		}
		sessions = visible
	}

	return SuccessResponse(c, http.StatusOK, "Sessions", map[string]interface{}{
		"sessions": sessions,
		"stats":    h.registry.Stats(),
	})
}
