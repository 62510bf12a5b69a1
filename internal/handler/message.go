package handler

import (
	"encoding/base64"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"gowa-blast/internal/helper"
	"gowa-blast/internal/model"
	"gowa-blast/internal/service"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// MediaPayload is the JSON form of an attachment; Data is base64.
type MediaPayload struct {
	Data     string `json:"data"`
	MimeType string `json:"mimetype"`
	FileName string `json:"filename"`
}

// SendMessagesRequest is the JSON body of a bulk send. Delay is in seconds.
type SendMessagesRequest struct {
	Message              string        `json:"message"`
	Delay                float64       `json:"delay"`
	Numbers              []string      `json:"numbers"`
	PerRecipientMessages []string      `json:"perRecipientMessages"`
	Media                *MediaPayload `json:"media"`
}

type MessageHandler struct {
	dispatcher *service.Dispatcher
	registry   *service.Registry
	dirs       helper.SessionDirs
	maxBytes   int64
	log        zerolog.Logger
}

func NewMessageHandler(dispatcher *service.Dispatcher, registry *service.Registry, dirs helper.SessionDirs, maxBytes int64, log zerolog.Logger) *MessageHandler {
	return &MessageHandler{
		dispatcher: dispatcher,
		registry:   registry,
		dirs:       dirs,
		maxBytes:   maxBytes,
		log:        log.With().Str("component", "send").Logger(),
	}
}

// POST /api/sessions/:userId/send
func (h *MessageHandler) Send(c echo.Context) error {
	id := c.Param("userId")
	if !allowedSession(c, id) {
		return ErrorResponse(c, http.StatusForbidden, "You don't have access to this session", "SESSION_ACCESS_DENIED", "")
	}

	// Fail fast so uploads are never staged for a missing session.
	if h.registry.Status(id) == model.StatusNoSession {
		return serviceError(c, service.ErrSessionNotFound)
	}

	var (
		req service.DispatchRequest
		err error
	)
	if strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		req, err = h.parseMultipart(c, id)
	} else {
		req, err = h.parseJSON(c)
	}
	if err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return ErrorResponse(c, he.Code, fmt.Sprintf("%v", he.Message), "INVALID_REQUEST", "")
		}
		return err
	}
	req.SessionID = id

	ack, err := h.dispatcher.Dispatch(c.Request().Context(), req)
	if err != nil {
		return serviceError(c, err)
	}
	return SuccessResponse(c, http.StatusAccepted, "Dispatch accepted", ack)
}

func (h *MessageHandler) parseJSON(c echo.Context) (service.DispatchRequest, error) {
	var body SendMessagesRequest
	if err := c.Bind(&body); err != nil {
		return service.DispatchRequest{}, echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}

	req := service.DispatchRequest{
		Message:              body.Message,
		Numbers:              body.Numbers,
		PerRecipientMessages: body.PerRecipientMessages,
		Delay:                secondsToDuration(body.Delay),
	}

	if body.Media != nil && body.Media.Data != "" {
		data, err := base64.StdEncoding.DecodeString(body.Media.Data)
		if err != nil {
			return req, echo.NewHTTPError(http.StatusBadRequest, "media.data is not valid base64")
		}
		if int64(len(data)) > h.maxBytes {
			return req, echo.NewHTTPError(http.StatusRequestEntityTooLarge, fmt.Sprintf("media too large: max size is %d bytes", h.maxBytes))
		}
		name := body.Media.FileName
		if name == "" {
			name = "media"
		}
		media, err := buildMedia(data, name, body.Media.MimeType)
		if err != nil {
			return req, echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		req.Media = media
	}
	return req, nil
}

func (h *MessageHandler) parseMultipart(c echo.Context, sessionID string) (service.DispatchRequest, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return service.DispatchRequest{}, echo.NewHTTPError(http.StatusBadRequest, "Invalid multipart form")
	}

	req := service.DispatchRequest{
		Message:              firstValue(form, "message"),
		PerRecipientMessages: form.Value["perRecipientMessages"],
	}
	if raw := firstValue(form, "delay"); raw != "" {
		secs, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return req, echo.NewHTTPError(http.StatusBadRequest, "delay must be a number of seconds")
		}
		req.Delay = secondsToDuration(secs)
	}
	for _, v := range form.Value["numbers"] {
		req.Numbers = append(req.Numbers, splitNumbers(v)...)
	}

	if files := form.File["recipients"]; len(files) > 0 {
		rows, err := readRecipientSheet(files[0])
		if err != nil {
			return req, echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		req.Numbers, req.PerRecipientMessages = mergeSheet(req.Numbers, req.PerRecipientMessages, rows)
	}

	if files := form.File["media"]; len(files) > 0 {
		media, err := h.stageMedia(sessionID, files[0])
		if err != nil {
			return req, err
		}
		req.Media = media
	}
	return req, nil
}

// stageMedia copies the upload into the session cache. The staged file is
// removed when the dispatcher releases the media.
func (h *MessageHandler) stageMedia(sessionID string, fh *multipart.FileHeader) (*service.Media, error) {
	if fh.Size > h.maxBytes {
		return nil, echo.NewHTTPError(http.StatusRequestEntityTooLarge, fmt.Sprintf("media too large: max size is %d bytes", h.maxBytes))
	}
	src, err := fh.Open()
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "Failed to read media file")
	}
	defer src.Close()

	path, err := h.dirs.StageUpload(sessionID, fh.Filename, src, h.maxBytes)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	cleanup := func() error { return os.Remove(path) }

	data, err := os.ReadFile(path)
	if err != nil {
		_ = cleanup()
		return nil, fmt.Errorf("read staged media: %w", err)
	}
	media, err := buildMedia(data, fh.Filename, fh.Header.Get(echo.HeaderContentType))
	if err != nil {
		_ = cleanup()
		return nil, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	media.Cleanup = cleanup

	h.log.Debug().Str("session", sessionID).Str("file", path).Str("mimetype", media.MimeType).Msg("media staged")
	return media, nil
}

// buildMedia prepares raw bytes for sending. A declared mimetype is used only
// when the content could not be sniffed.
func buildMedia(data []byte, filename, declared string) (*service.Media, error) {
	prepared, err := helper.PrepareMedia(data, filename)
	if err != nil {
		return nil, err
	}
	mimeType := prepared.MimeType
	if declared != "" && mimeType == "application/octet-stream" {
		mimeType = declared
	}
	return &service.Media{
		Data:      prepared.Data,
		MimeType:  mimeType,
		FileName:  prepared.FileName,
		Thumbnail: prepared.Thumbnail,
		Width:     prepared.Width,
		Height:    prepared.Height,
	}, nil
}

func readRecipientSheet(fh *multipart.FileHeader) ([]helper.RecipientRow, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return helper.ParseRecipientSheet(fh.Filename, f)
}

// mergeSheet appends sheet rows after the form numbers. Messages are
// realigned so form messages never spill onto sheet rows.
func mergeSheet(numbers, messages []string, rows []helper.RecipientRow) ([]string, []string) {
	aligned := make([]string, len(numbers), len(numbers)+len(rows))
	copy(aligned, messages)
	for _, r := range rows {
		numbers = append(numbers, r.Number)
		aligned = append(aligned, r.Message)
	}
	return numbers, aligned
}

// splitNumbers accepts comma, semicolon or newline separated lists.
func splitNumbers(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ';' || r == '\n' || r == '\r'
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

func firstValue(form *multipart.Form, key string) string {
	if v := form.Value[key]; len(v) > 0 {
		return v[0]
	}
	return ""
}

func secondsToDuration(secs float64) time.Duration {
	if secs <= 0 {
		return 0
	}
	return time.Duration(secs * float64(time.Second))
}
