package events

import (
	"time"

	"github.com/SAP-F-2025/worksheet-session/internal/models"
	"github.com/google/uuid"
)

// EventType represents the lifecycle events emitted by the session engine
type EventType string

const (
	// Session events
	EventSessionStarted   EventType = "session.started"
	EventSessionSubmitted EventType = "session.submitted"
	EventSessionGraded    EventType = "session.graded"

	// Job events
	EventJobSucceeded EventType = "job.succeeded"
	EventJobFailed    EventType = "job.failed"
	EventJobTimedOut  EventType = "job.timed_out"

	// Handoff events
	EventHandoffPublished EventType = "handoff.published"
)

const (
	eventSource  = "worksheet-session"
	eventVersion = "1.0"
)

// Event is the envelope for every published event
type Event struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Source    string                 `json:"source"`
	Version   string                 `json:"version"`
	Data      interface{}            `json:"data"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Session event payloads

type SessionStartedEvent struct {
	SessionID       string         `json:"session_id"`
	WorksheetID     string         `json:"worksheet_id"`
	Subject         models.Subject `json:"subject"`
	StudentID       string         `json:"student_id"`
	RemoteSessionID *string        `json:"remote_session_id,omitempty"`
	StartedAt       time.Time      `json:"started_at"`
}

type SessionSubmittedEvent struct {
	SessionID   string         `json:"session_id"`
	WorksheetID string         `json:"worksheet_id"`
	Subject     models.Subject `json:"subject"`
	StudentID   string         `json:"student_id"`
	AnswerCount int            `json:"answer_count"`
	SubmittedAt time.Time      `json:"submitted_at"`
}

type SessionGradedEvent struct {
	SessionID   string         `json:"session_id"`
	WorksheetID string         `json:"worksheet_id"`
	Subject     models.Subject `json:"subject"`
	StudentID   string         `json:"student_id"`
	Score       *float64       `json:"score,omitempty"`
	GradedAt    time.Time      `json:"graded_at"`
}

// Job event payloads

type JobFinishedEvent struct {
	JobID    string           `json:"job_id"`
	TaskID   string           `json:"task_id,omitempty"`
	Target   string           `json:"target"`
	Kind     models.JobKind   `json:"kind"`
	Status   models.JobStatus `json:"status"`
	Attempts int              `json:"attempts"`
	Error    string           `json:"error,omitempty"`
}

type HandoffPublishedEvent struct {
	StudentID    string         `json:"student_id"`
	AssignmentID string         `json:"assignment_id"`
	Subject      models.Subject `json:"subject"`
	ViewResult   bool           `json:"view_result"`
}

// Event factory functions

func newEvent(eventType EventType, data interface{}) *Event {
	return &Event{
		ID:        GenerateEventID(),
		Type:      eventType,
		Timestamp: time.Now(),
		Source:    eventSource,
		Version:   eventVersion,
		Data:      data,
	}
}

func NewSessionStartedEvent(s *models.Session) *Event {
	return newEvent(EventSessionStarted, SessionStartedEvent{
		SessionID:       s.ID,
		WorksheetID:     s.WorksheetID,
		Subject:         s.Subject,
		StudentID:       s.StudentID,
		RemoteSessionID: s.RemoteSessionID,
		StartedAt:       s.StartedAt,
	})
}

func NewSessionSubmittedEvent(s *models.Session) *Event {
	return newEvent(EventSessionSubmitted, SessionSubmittedEvent{
		SessionID:   s.ID,
		WorksheetID: s.WorksheetID,
		Subject:     s.Subject,
		StudentID:   s.StudentID,
		AnswerCount: len(s.Answers),
		SubmittedAt: time.Now(),
	})
}

func NewSessionGradedEvent(s *models.Session, result models.GradingResult) *Event {
	payload := SessionGradedEvent{
		SessionID:   s.ID,
		WorksheetID: s.WorksheetID,
		Subject:     s.Subject,
		StudentID:   s.StudentID,
		GradedAt:    time.Now(),
	}
	if score, ok := result.Score(); ok {
		payload.Score = &score
	}
	return newEvent(EventSessionGraded, payload)
}

// NewJobFinishedEvent maps a terminal job onto its event type. It returns nil
// for jobs that were cancelled or are not terminal.
func NewJobFinishedEvent(job models.Job) *Event {
	var eventType EventType
	switch job.Status {
	case models.JobSuccess:
		eventType = EventJobSucceeded
	case models.JobFailure:
		eventType = EventJobFailed
	case models.JobTimeout:
		eventType = EventJobTimedOut
	default:
		return nil
	}
	return newEvent(eventType, JobFinishedEvent{
		JobID:    job.ID,
		TaskID:   job.TaskID,
		Target:   job.Target,
		Kind:     job.Kind,
		Status:   job.Status,
		Attempts: job.Attempts,
		Error:    job.Error,
	})
}

func NewHandoffPublishedEvent(studentID string, link models.DeepLink) *Event {
	return newEvent(EventHandoffPublished, HandoffPublishedEvent{
		StudentID:    studentID,
		AssignmentID: link.AssignmentID,
		Subject:      link.Subject,
		ViewResult:   link.ViewResult,
	})
}

// GenerateEventID returns a new unique event identifier
func GenerateEventID() string {
	return uuid.NewString()
}
