package handler

import (
	"net/http"

	"gowa-blast/internal/model"
	"gowa-blast/internal/service"

	"github.com/labstack/echo/v4"
)

// CapabilityHandler serves the optional read-only queries a client may
// support. Clients that lack a capability answer 501.
type CapabilityHandler struct {
	registry *service.Registry
}

func NewCapabilityHandler(registry *service.Registry) *CapabilityHandler {
	return &CapabilityHandler{registry: registry}
}

// readyClient returns the client of a ready session or writes the error
// response itself.
func (h *CapabilityHandler) readyClient(c echo.Context) (service.MessagingClient, bool, error) {
	id := c.Param("userId")
	if !allowedSession(c, id) {
		return nil, false, ErrorResponse(c, http.StatusForbidden, "You don't have access to this session", "SESSION_ACCESS_DENIED", "")
	}
	client, status, ok := h.registry.Client(id)
	if !ok {
		return nil, false, serviceError(c, service.ErrSessionNotFound)
	}
	if status != model.StatusReady || client == nil {
		return nil, false, serviceError(c, service.ErrSessionNotReady)
	}
	h.registry.Touch(id)
	return client, true, nil
}

// GET /api/sessions/:userId/labels
func (h *CapabilityHandler) Labels(c echo.Context) error {
	client, ok, err := h.readyClient(c)
	if !ok {
		return err
	}
	lister, supported := client.(service.LabelLister)
	if !supported {
		return serviceError(c, service.ErrUnsupported)
	}
	labels, err := lister.ListLabels(c.Request().Context())
	if err != nil {
		return serviceError(c, err)
	}
	return SuccessResponse(c, http.StatusOK, "Labels", labels)
}

// GET /api/sessions/:userId/labels/:labelId/chats
func (h *CapabilityHandler) ChatsByLabel(c echo.Context) error {
	client, ok, err := h.readyClient(c)
	if !ok {
		return err
	}
	lister, supported := client.(service.LabelLister)
	if !supported {
		return serviceError(c, service.ErrUnsupported)
	}
	chats, err := lister.ChatsByLabel(c.Request().Context(), c.Param("labelId"))
	if err != nil {
		return serviceError(c, err)
	}
	return SuccessResponse(c, http.StatusOK, "Chats", chats)
}

// GET /api/sessions/:userId/chats
func (h *CapabilityHandler) Chats(c echo.Context) error {
	client, ok, err := h.readyClient(c)
	if !ok {
		return err
	}
	lister, supported := client.(service.ChatLister)
	if !supported {
		return serviceError(c, service.ErrUnsupported)
	}
	chats, err := lister.ListChats(c.Request().Context())
	if err != nil {
		return serviceError(c, err)
	}
	return SuccessResponse(c, http.StatusOK, "Chats", chats)
}

// GET /api/sessions/:userId/chats/:chatId/participants
func (h *CapabilityHandler) Participants(c echo.Context) error {
	client, ok, err := h.readyClient(c)
	if !ok {
		return err
	}
	lister, supported := client.(service.ParticipantLister)
	if !supported {
		return serviceError(c, service.ErrUnsupported)
	}
	chatID := c.Param("chatId")
	participants, err := lister.ChatParticipants(c.Request().Context(), chatID)
	if err != nil {
		return serviceError(c, err)
	}
	return SuccessResponse(c, http.StatusOK, "Participants", map[string]interface{}{
		"chatId":       chatID,
		"participants": participants,
	})
}
