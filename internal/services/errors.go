package services

import (
	"context"
	"errors"
	"fmt"

	apperrors "github.com/SAP-F-2025/worksheet-session/internal/errors"
)

// ===== COMMON SERVICE ERRORS =====

var (
	// Generic errors, shared with the repository clients
	ErrNotFound     = apperrors.ErrNotFound
	ErrUnauthorized = apperrors.ErrUnauthorized

	ErrValidationFailed = errors.New("validation failed")

	// Session specific errors
	ErrInvalidTransition   = errors.New("operation not allowed in current session state")
	ErrNoWorksheetSelected = errors.New("no worksheet selected")
	ErrWorksheetFinished   = errors.New("worksheet already submitted")
	ErrWorksheetLoadFailed = errors.New("failed to load worksheet")
	ErrUnknownProblem      = errors.New("problem does not belong to the selected worksheet")
	ErrNoRemoteSession     = errors.New("subject has no active remote session")
	ErrSelectionSuperseded = errors.New("worksheet selection was superseded")

	// Job specific errors
	ErrJobTimedOut     = errors.New("job timed out")
	ErrJobCancelled    = errors.New("job cancelled")
	ErrJobFailed       = errors.New("job failed")
	ErrNoPendingReview = errors.New("no regeneration preview pending")
)

// ===== CUSTOM ERROR TYPES =====

// Use shared error types from errors package
type ValidationError = apperrors.ValidationError
type ValidationErrors = apperrors.ValidationErrors
type NetworkError = apperrors.NetworkError
type RemoteFailureError = apperrors.RemoteFailureError

// SubmissionGateError rejects a submit while problems remain unanswered.
type SubmissionGateError struct {
	Answered  int `json:"answered"`
	Total     int `json:"total"`
	Remaining int `json:"remaining"`
}

func (e *SubmissionGateError) Error() string {
	return fmt.Sprintf("%d remaining", e.Remaining)
}

// JobError carries the terminal failure of a job run.
type JobError struct {
	TaskID  string `json:"task_id,omitempty"`
	Message string `json:"message"`
}

func (e *JobError) Error() string {
	return e.Message
}

func (e *JobError) Unwrap() error {
	return ErrJobFailed
}

// ===== ERROR HELPERS =====

func NewValidationError(field, message string, value interface{}) *ValidationError {
	return apperrors.NewValidationError(field, message, value)
}

func NewSubmissionGateError(answered, total int) *SubmissionGateError {
	return &SubmissionGateError{
		Answered:  answered,
		Total:     total,
		Remaining: total - answered,
	}
}

// IsNotFound checks if error represents a "not found" condition
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsUnauthorized checks if error represents an "unauthorized" condition
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// IsValidation checks if error represents a validation failure, including
// the submission gate
func IsValidation(err error) bool {
	if errors.Is(err, ErrValidationFailed) || errors.Is(err, ErrUnknownProblem) {
		return true
	}
	var ve apperrors.ValidationErrors
	if errors.As(err, &ve) {
		return true
	}
	var gate *SubmissionGateError
	return errors.As(err, &gate)
}

// IsNetwork checks if error is a transient transport failure
func IsNetwork(err error) bool {
	return apperrors.IsNetwork(err) || errors.Is(err, context.DeadlineExceeded)
}

// IsRemoteFailure checks if a backend reported an explicit failure
func IsRemoteFailure(err error) bool {
	return apperrors.IsRemoteFailure(err) || errors.Is(err, ErrJobFailed)
}

// IsTimeout checks if bounded polling was exhausted
func IsTimeout(err error) bool {
	return errors.Is(err, ErrJobTimedOut)
}

func IsCancelled(err error) bool {
	return errors.Is(err, ErrJobCancelled) || errors.Is(err, context.Canceled)
}

// IsConflict checks if the operation does not fit the current state
func IsConflict(err error) bool {
	return errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrNoWorksheetSelected) ||
		errors.Is(err, ErrWorksheetFinished) ||
		errors.Is(err, ErrSelectionSuperseded) ||
		errors.Is(err, ErrNoRemoteSession) ||
		errors.Is(err, ErrNoPendingReview)
}

// UserMessage maps an error onto guidance suitable for display
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var gate *SubmissionGateError
	var remote *RemoteFailureError
	var jobErr *JobError

	switch {
	case errors.As(err, &gate):
		return fmt.Sprintf("Please answer every problem before submitting (%d remaining).", gate.Remaining)
	case IsValidation(err):
		return "Some answers are invalid. Please review them."
	case IsUnauthorized(err):
		return "Your session has expired. Please log in again."
	case IsNotFound(err):
		return "This assignment has not been deployed yet."
	case IsTimeout(err):
		return "The request is taking longer than expected. Please try again."
	case IsCancelled(err):
		return "The request was cancelled."
	case errors.As(err, &jobErr):
		return jobErr.Message
	case errors.As(err, &remote):
		return remote.Message
	case errors.Is(err, ErrWorksheetLoadFailed):
		return "The worksheet could not be loaded. Please reload the page."
	case IsNetwork(err):
		return "Network problem. Please check your connection and try again."
	case IsConflict(err):
		return "This action is not available right now."
	}
	return "Something went wrong. Please try again."
}
