package models

import (
	"time"
)

type SessionStatus string

const (
	SessionNotStarted SessionStatus = "not_started"
	SessionInProgress SessionStatus = "in_progress"
	SessionSubmitting SessionStatus = "submitting"
	SessionDone       SessionStatus = "done"
)

// Session is one learner's attempt at a worksheet. It lives only as long as
// the worksheet stays selected.
type Session struct {
	ID              string            `json:"id"`
	WorksheetID     string            `json:"worksheet_id"`
	Subject         Subject           `json:"subject"`
	StudentID       string            `json:"student_id"`
	Answers         map[string]string `json:"answers"`
	CurrentIndex    int               `json:"current_index"`
	Status          SessionStatus     `json:"status"`
	RemoteSessionID *string           `json:"remote_session_id,omitempty"`
	StartedAt       time.Time         `json:"started_at"`
}

// AcceptsAutosave reports whether answers may be persisted incrementally.
func (s *Session) AcceptsAutosave() bool {
	return s.Subject.TracksRemoteSession() &&
		s.Status == SessionInProgress &&
		s.RemoteSessionID != nil && *s.RemoteSessionID != ""
}

// Clone returns a deep copy safe to hand to another goroutine.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Answers = make(map[string]string, len(s.Answers))
	for k, v := range s.Answers {
		cp.Answers[k] = v
	}
	if s.RemoteSessionID != nil {
		id := *s.RemoteSessionID
		cp.RemoteSessionID = &id
	}
	return &cp
}

// SubmitRequest is the payload of a grade call.
type SubmitRequest struct {
	WorksheetID string            `json:"worksheet_id" validate:"required"`
	SessionID   *string           `json:"session_id,omitempty"`
	StudentID   string            `json:"student_id" validate:"required"`
	Answers     map[string]string `json:"answers" validate:"required,min=1"`
	TimeSpent   *int              `json:"time_spent,omitempty"` // seconds
}

// OcrRequest uploads a handwriting image for extraction and scoring.
type OcrRequest struct {
	SessionID string `json:"session_id" validate:"required"`
	ProblemID string `json:"problem_id" validate:"required"`
	Answer    string `json:"answer"`
	Image     []byte `json:"-" validate:"required"`
	Filename  string `json:"filename"`
}

// OcrResult is returned either directly or, when the backend queues the
// work, as the result of the ocr job identified by TaskID.
type OcrResult struct {
	ExtractedText *string  `json:"extracted_text,omitempty"`
	Score         *float64 `json:"score,omitempty"`
	TaskID        string   `json:"task_id,omitempty"`
}
