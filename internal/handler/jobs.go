package handler

import (
	"net/http"

	"gowa-blast/internal/service"

	"github.com/labstack/echo/v4"
)

type JobHandler struct {
	dispatcher *service.Dispatcher
}

func NewJobHandler(dispatcher *service.Dispatcher) *JobHandler {
	return &JobHandler{dispatcher: dispatcher}
}

// GET /api/jobs/:jobId
func (h *JobHandler) Get(c echo.Context) error {
	job, ok := h.dispatcher.Job(c.Param("jobId"))
	if !ok || !allowedSession(c, job.SessionID) {
		return ErrorResponse(c, http.StatusNotFound, "Job not found", "JOB_NOT_FOUND", "Job results are kept for a limited number of recent jobs")
	}
	return SuccessResponse(c, http.StatusOK, "Job result", job)
}
