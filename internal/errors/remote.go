package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Repository-level sentinels shared by every backend client.
var (
	ErrNotFound     = errors.New("resource not found")
	ErrUnauthorized = errors.New("unauthorized access")
)

// NetworkError is a transient transport failure. Polling loops count it as
// an ordinary attempt and autosave swallows it.
type NetworkError struct {
	Op         string `json:"op"`
	StatusCode int    `json:"status_code,omitempty"`
	Err        error  `json:"-"`
}

func (e *NetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("network error during %s: status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("network error during %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// RemoteFailureError is an explicit failure reported by a backend.
type RemoteFailureError struct {
	Op         string `json:"op"`
	StatusCode int    `json:"status_code,omitempty"`
	Message    string `json:"message"`
}

func (e *RemoteFailureError) Error() string {
	return fmt.Sprintf("%s failed: %s", e.Op, e.Message)
}

// ClassifyStatus maps a non-2xx HTTP status onto the error taxonomy.
// message is the backend-supplied detail, if any.
func ClassifyStatus(op string, status int, message string) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%s: %w", op, ErrUnauthorized)
	case status == http.StatusNotFound:
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case status == http.StatusRequestTimeout || status == http.StatusTooManyRequests || status >= 500:
		return &NetworkError{Op: op, StatusCode: status}
	}
	if message == "" {
		message = http.StatusText(status)
	}
	return &RemoteFailureError{Op: op, StatusCode: status, Message: message}
}

func IsNetwork(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

func IsRemoteFailure(err error) bool {
	var rf *RemoteFailureError
	return errors.As(err, &rf)
}
