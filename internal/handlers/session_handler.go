package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/SAP-F-2025/worksheet-session/internal/models"
	"github.com/SAP-F-2025/worksheet-session/internal/services"
	"github.com/SAP-F-2025/worksheet-session/internal/utils"
	"github.com/SAP-F-2025/worksheet-session/internal/validator"
	"github.com/gin-gonic/gin"
)

const (
	maxHandwritingBytes = 10 << 20
	defaultHandoffWait  = 25 * time.Second
	maxHandoffWait      = 2 * time.Minute
	countdownTick       = time.Second
)

type SessionHandler struct {
	BaseHandler
	sessions  *services.SessionRegistry
	handoffs  *services.HandoffStore
	exporter  *services.ResultExporter
	validator *validator.Validator
}

type AnswerRequest struct {
	Answer string `json:"answer"`
}

type CursorRequest struct {
	Index *int `json:"index" validate:"required"`
}

// OpenResponse reports which deep link, if any, was applied.
type OpenResponse struct {
	Dispatch *services.Dispatch       `json:"dispatch"`
	Session  services.SessionSnapshot `json:"session"`
}

type SubmitResponse struct {
	Result  models.GradingResult     `json:"result"`
	Session services.SessionSnapshot `json:"session"`
}

func NewSessionHandler(
	sessions *services.SessionRegistry,
	handoffs *services.HandoffStore,
	exporter *services.ResultExporter,
	validator *validator.Validator,
	logger utils.Logger,
) *SessionHandler {
	return &SessionHandler{
		BaseHandler: NewBaseHandler(logger),
		sessions:    sessions,
		handoffs:    handoffs,
		exporter:    exporter,
		validator:   validator,
	}
}

func (h *SessionHandler) controller(c *gin.Context) *services.SessionController {
	return h.sessions.Get(studentID(c))
}

// ListAssignments re-reads the learner's assignments from every subject.
// Subjects that fail are skipped as long as at least one answered.
func (h *SessionHandler) ListAssignments(c *gin.Context) {
	list, err := h.controller(c).RefreshAssignments(c.Request.Context())
	if err != nil {
		if len(list) == 0 {
			h.handleServiceError(c, err)
			return
		}
		h.LogWarn(c, "Assignment list is partial", "error", err)
	}
	if list == nil {
		list = []models.Assignment{}
	}
	h.RespondWithSuccess(c, http.StatusOK, "Assignments retrieved", list)
}

// SelectWorksheet opens a worksheet for answering or, when finished, for review.
func (h *SessionHandler) SelectWorksheet(c *gin.Context) {
	var ws models.Worksheet
	if err := c.ShouldBindJSON(&ws); err != nil {
		h.RespondWithBindError(c, err)
		return
	}

	h.LogRequest(c, "Selecting worksheet", "worksheet_id", ws.ID)

	controller := h.controller(c)
	if a, ok := controller.FindAssignment(ws.ID); ok {
		ws = a.Worksheet
	}
	if err := controller.SelectWorksheet(c.Request.Context(), ws); err != nil {
		h.handleServiceError(c, err)
		return
	}
	h.RespondWithSuccess(c, http.StatusOK, "Worksheet selected", controller.Snapshot())
}

// OpenDeepLink applies the assignment named in the query string, or the
// pending handoff when the query names none. Reloading a page with a link
// that is already applied to the current selection changes nothing.
func (h *SessionHandler) OpenDeepLink(c *gin.Context) {
	var link models.DeepLink
	if err := c.ShouldBindQuery(&link); err != nil {
		h.RespondWithBindError(c, err)
		return
	}

	var urlLink *models.DeepLink
	if !link.IsZero() {
		if err := h.validator.ValidateStruct(link); err != nil {
			h.handleServiceError(c, err)
			return
		}
		urlLink = &link
	}

	controller := h.controller(c)
	resolver := services.NewDeepLinkResolver(controller, h.handoffs, h.requestLogger(c).Slog())
	dispatch, err := resolver.Resolve(c.Request.Context(), urlLink)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	h.RespondWithSuccess(c, http.StatusOK, "Deep link resolved", OpenResponse{
		Dispatch: dispatch,
		Session:  controller.Snapshot(),
	})
}

// WaitHandoff long-polls for an assignment handed off by another page.
// It answers 204 when nothing arrived within the wait window.
func (h *SessionHandler) WaitHandoff(c *gin.Context) {
	wait := defaultHandoffWait
	if raw := c.Query("wait"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			h.RespondWithBindError(c, fmt.Errorf("invalid wait %q", raw))
			return
		}
		wait = min(d, maxHandoffWait)
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), wait)
	defer cancel()

	controller := h.controller(c)
	resolver := services.NewDeepLinkResolver(controller, h.handoffs, h.requestLogger(c).Slog())
	dispatch, err := resolver.Next(ctx)
	if errors.Is(err, context.DeadlineExceeded) && c.Request.Context().Err() == nil {
		c.Status(http.StatusNoContent)
		return
	}
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	h.RespondWithSuccess(c, http.StatusOK, "Handoff applied", OpenResponse{
		Dispatch: dispatch,
		Session:  controller.Snapshot(),
	})
}

// PutHandoff stores an assignment for the learner's worksheet page to open.
func (h *SessionHandler) PutHandoff(c *gin.Context) {
	var link models.DeepLink
	if err := c.ShouldBindJSON(&link); err != nil {
		h.RespondWithBindError(c, err)
		return
	}

	h.LogRequest(c, "Storing handoff", "assignment_id", link.AssignmentID)

	if err := h.handoffs.Put(c.Request.Context(), studentID(c), link); err != nil {
		h.handleServiceError(c, err)
		return
	}
	h.RespondWithSuccess(c, http.StatusAccepted, "Handoff stored", link)
}

func (h *SessionHandler) StartSession(c *gin.Context) {
	h.LogRequest(c, "Starting session")

	controller := h.controller(c)
	if _, err := controller.Start(c.Request.Context()); err != nil {
		h.handleServiceError(c, err)
		return
	}
	h.RespondWithSuccess(c, http.StatusCreated, "Session started", controller.Snapshot())
}

func (h *SessionHandler) SaveAnswer(c *gin.Context) {
	problemID := ParseStringIDParam(c, "problem_id")
	if problemID == "" {
		return
	}

	var req AnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.RespondWithBindError(c, err)
		return
	}

	if err := h.controller(c).Answer(problemID, req.Answer); err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// CaptureHandwriting accepts a multipart "image" upload for a problem.
func (h *SessionHandler) CaptureHandwriting(c *gin.Context) {
	problemID := ParseStringIDParam(c, "problem_id")
	if problemID == "" {
		return
	}

	file, err := c.FormFile("image")
	if err != nil {
		h.RespondWithBindError(c, err)
		return
	}
	if file.Size > maxHandwritingBytes {
		h.RespondWithBindError(c, fmt.Errorf("image exceeds %d bytes", maxHandwritingBytes))
		return
	}
	f, err := file.Open()
	if err != nil {
		h.RespondWithBindError(c, err)
		return
	}
	defer f.Close()

	image, err := io.ReadAll(io.LimitReader(f, maxHandwritingBytes))
	if err != nil {
		h.RespondWithBindError(c, err)
		return
	}

	h.LogRequest(c, "Capturing handwriting", "problem_id", problemID, "bytes", len(image))

	result, err := h.controller(c).CaptureHandwriting(c.Request.Context(), problemID, image, file.Filename)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	h.RespondWithSuccess(c, http.StatusOK, "Handwriting recognized", result)
}

func (h *SessionHandler) Submit(c *gin.Context) {
	h.LogRequest(c, "Submitting session")

	controller := h.controller(c)
	result, err := controller.Submit(c.Request.Context())
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	h.RespondWithSuccess(c, http.StatusOK, "Session graded", SubmitResponse{
		Result:  result,
		Session: controller.Snapshot(),
	})
}

func (h *SessionHandler) MoveCursor(c *gin.Context) {
	var req CursorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.RespondWithBindError(c, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		h.handleServiceError(c, err)
		return
	}

	index, err := h.controller(c).GoTo(*req.Index)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	h.RespondWithSuccess(c, http.StatusOK, "Cursor moved", gin.H{"index": index})
}

func (h *SessionHandler) GetSession(c *gin.Context) {
	h.RespondWithSuccess(c, http.StatusOK, "Session retrieved", h.controller(c).Snapshot())
}

// StreamCountdown sends the remaining session time as server-sent events
// until the limit passes or the client goes away. Expiry is only reported;
// submitting stays with the client.
func (h *SessionHandler) StreamCountdown(c *gin.Context) {
	countdown, ok := h.controller(c).Countdown()
	if !ok {
		h.handleServiceError(c, services.ErrInvalidTransition)
		return
	}

	ticks := make(chan time.Duration, 1)
	go func() {
		defer close(ticks)
		countdown.Watch(c.Request.Context(), countdownTick, func(remaining time.Duration) {
			select {
			case ticks <- remaining:
			case <-c.Request.Context().Done():
			}
		}, nil)
	}()

	c.Stream(func(w io.Writer) bool {
		remaining, open := <-ticks
		if !open {
			return false
		}
		if remaining == 0 {
			c.SSEvent("expired", gin.H{"remaining_seconds": 0})
			return false
		}
		c.SSEvent("tick", gin.H{"remaining_seconds": int(remaining.Seconds())})
		return true
	})
}

// LeaveSession drops the learner's selection and unsaved session.
func (h *SessionHandler) LeaveSession(c *gin.Context) {
	h.LogRequest(c, "Leaving session")
	h.sessions.Remove(studentID(c))
	c.Status(http.StatusNoContent)
}

// ExportResults downloads the graded review as xlsx (default) or csv.
func (h *SessionHandler) ExportResults(c *gin.Context) {
	snap := h.controller(c).Snapshot()
	name := "results"
	if snap.Worksheet != nil {
		name = "results-" + snap.Worksheet.ID
	}

	var (
		data        []byte
		err         error
		contentType string
	)
	switch format := c.DefaultQuery("format", "xlsx"); format {
	case "xlsx":
		data, err = h.exporter.ExportExcel(snap)
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
		name += ".xlsx"
	case "csv":
		data, err = h.exporter.ExportCSV(snap)
		contentType = "text/csv"
		name += ".csv"
	default:
		h.RespondWithBindError(c, fmt.Errorf("unsupported format %q", format))
		return
	}
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Data(http.StatusOK, contentType, data)
}
