package handlers

import (
	"errors"
	"net/http"

	"github.com/SAP-F-2025/worksheet-session/internal/services"
	"github.com/SAP-F-2025/worksheet-session/internal/utils"
	"github.com/gin-gonic/gin"
)

// ===== COMMON RESPONSE STRUCTURES =====

// ErrorResponse represents an error response
type ErrorResponse struct {
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
	Code    string      `json:"code,omitempty"`
}

// SuccessResponse represents a success response
type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ===== BASE HANDLER STRUCT =====

// BaseHandler provides common logging functionality for all handlers
type BaseHandler struct {
	logger utils.Logger
}

func NewBaseHandler(logger utils.Logger) BaseHandler {
	return BaseHandler{
		logger: logger,
	}
}

func (h *BaseHandler) requestLogger(c *gin.Context) utils.Logger {
	return utils.GetLoggerFromContext(c, h.logger)
}

// LogRequest logs an incoming request with the caller's identity
func (h *BaseHandler) LogRequest(c *gin.Context, message string, additionalFields ...interface{}) {
	fields := append([]interface{}{
		"student_id", studentID(c),
		"remote_addr", c.ClientIP(),
	}, additionalFields...)
	h.requestLogger(c).Info(message, fields...)
}

// LogError logs error details with context information
func (h *BaseHandler) LogError(c *gin.Context, err error, message string, additionalFields ...interface{}) {
	fields := append([]interface{}{"student_id", studentID(c)}, additionalFields...)
	h.requestLogger(c).LogError(err, message, fields...)
}

// LogWarn logs warning messages with context
func (h *BaseHandler) LogWarn(c *gin.Context, message string, additionalFields ...interface{}) {
	fields := append([]interface{}{"student_id", studentID(c)}, additionalFields...)
	h.requestLogger(c).Warn(message, fields...)
}

// RespondWithSuccess sends a consistent success response
func (h *BaseHandler) RespondWithSuccess(c *gin.Context, statusCode int, message string, data interface{}) {
	c.JSON(statusCode, SuccessResponse{
		Message: message,
		Data:    data,
	})
}

// RespondWithBindError rejects a request whose payload could not be bound
func (h *BaseHandler) RespondWithBindError(c *gin.Context, err error) {
	h.LogWarn(c, "Invalid request payload", "error", err)
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Message: "Invalid request payload",
		Details: err.Error(),
		Code:    "validation",
	})
}

// handleServiceError maps service errors onto HTTP responses
func (h *BaseHandler) handleServiceError(c *gin.Context, err error) {
	status := statusForError(err)
	details := services.FormatError(err)

	if status >= http.StatusInternalServerError {
		h.LogError(c, err, "Request failed", "status_code", status)
	} else {
		h.LogWarn(c, "Request rejected", "status_code", status, "error", err)
	}

	code, _ := details["type"].(string)
	c.JSON(status, ErrorResponse{
		Message: services.UserMessage(err),
		Details: details,
		Code:    code,
	})
}

func statusForError(err error) int {
	var gate *services.SubmissionGateError
	switch {
	case errors.As(err, &gate):
		return http.StatusUnprocessableEntity
	case services.IsValidation(err):
		return http.StatusBadRequest
	case services.IsUnauthorized(err):
		return http.StatusUnauthorized
	case services.IsNotFound(err):
		return http.StatusNotFound
	case services.IsTimeout(err):
		return http.StatusGatewayTimeout
	case services.IsConflict(err), services.IsCancelled(err):
		return http.StatusConflict
	case services.IsRemoteFailure(err):
		return http.StatusBadGateway
	case errors.Is(err, services.ErrWorksheetLoadFailed), services.IsNetwork(err):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
