package handler

import (
	"net/http"

	"gowa-blast/internal/service"

	"github.com/labstack/echo/v4"
)

// GET /api/sessions/:userId/account
func (h *CapabilityHandler) Account(c echo.Context) error {
	client, ok, err := h.readyClient(c)
	if !ok {
		return err
	}
	describer, supported := client.(service.AccountDescriber)
	if !supported {
		return serviceError(c, service.ErrUnsupported)
	}

	account, paired := describer.Account()
	if !paired {
		return ErrorResponse(c, http.StatusConflict, "Not logged in", "NOT_LOGGED_IN", "Please scan QR code first")
	}
	return SuccessResponse(c, http.StatusOK, "Account info retrieved", map[string]interface{}{
		"userId":  c.Param("userId"),
		"account": account,
	})
}
