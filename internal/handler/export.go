package handler

import (
	"fmt"
	"net/http"

	"gowa-blast/internal/helper"
	"gowa-blast/internal/model"

	"github.com/labstack/echo/v4"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// GET /api/jobs/:jobId/failures?format=xlsx|csv
//
// The file lists failed numbers first so it can be sent back as the
// recipients sheet of a new dispatch.
func (h *JobHandler) ExportFailures(c echo.Context) error {
	format := c.QueryParam("format")
	if format == "" {
		format = "xlsx"
	}
	if format != "xlsx" && format != "csv" {
		return ErrorResponse(c, http.StatusBadRequest, "Invalid format", "INVALID_FORMAT", "Format must be 'xlsx' or 'csv'")
	}

	job, ok := h.dispatcher.Job(c.Param("jobId"))
	if !ok || !allowedSession(c, job.SessionID) {
		return ErrorResponse(c, http.StatusNotFound, "Job not found", "JOB_NOT_FOUND", "Job results are kept for a limited number of recent jobs")
	}
	if job.State == model.JobRunning {
		return ErrorResponse(c, http.StatusConflict, "Job is still running", "JOB_RUNNING", "")
	}

	rows := make([][]string, 0, len(job.Failures))
	for _, f := range job.Failures {
		rows = append(rows, []string{f.Number, f.Reason})
	}

	contentType := xlsxContentType
	if format == "csv" {
		contentType = "text/csv"
	}
	filename := fmt.Sprintf("failures_%s.%s", job.JobID, format)
	c.Response().Header().Set(echo.HeaderContentType, contentType)
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%s", filename))
	c.Response().WriteHeader(http.StatusOK)

	return helper.WriteSheet(c.Response().Writer, format, "Failures", []string{"Number", "Reason"}, rows)
}
