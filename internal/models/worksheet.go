package models

import (
	"time"
)

type Subject string

const (
	SubjectMath    Subject = "math"
	SubjectKorean  Subject = "korean"
	SubjectEnglish Subject = "english"
)

// Subjects lists every supported subject in display order.
var Subjects = []Subject{SubjectMath, SubjectKorean, SubjectEnglish}

func (s Subject) Valid() bool {
	switch s {
	case SubjectMath, SubjectKorean, SubjectEnglish:
		return true
	}
	return false
}

// TracksRemoteSession reports whether the subject's backend keeps a server-side
// attempt that accepts incremental answers.
func (s Subject) TracksRemoteSession() bool {
	return s == SubjectMath
}

type WorksheetStatus string

const (
	WorksheetAssigned   WorksheetStatus = "assigned"
	WorksheetInProgress WorksheetStatus = "in_progress"
	WorksheetCompleted  WorksheetStatus = "completed"
	WorksheetSubmitted  WorksheetStatus = "submitted"
)

// IsFinished is true for worksheets that can only be opened for result review.
func (s WorksheetStatus) IsFinished() bool {
	return s == WorksheetCompleted || s == WorksheetSubmitted
}

func (s WorksheetStatus) rank() int {
	switch s {
	case WorksheetAssigned:
		return 0
	case WorksheetInProgress:
		return 1
	case WorksheetCompleted, WorksheetSubmitted:
		return 2
	}
	return -1
}

// CanAdvanceTo reports whether moving from s to next keeps status monotonic.
func (s WorksheetStatus) CanAdvanceTo(next WorksheetStatus) bool {
	from, to := s.rank(), next.rank()
	if from < 0 || to < 0 {
		return false
	}
	return to >= from
}

// Worksheet is a deployed problem set. The session engine never mutates it;
// canonical status is always re-read from the assignment repository.
type Worksheet struct {
	ID           string          `json:"id" validate:"required"`
	AssignmentID string          `json:"assignment_id,omitempty"`
	Subject      Subject         `json:"subject" validate:"required,subject"`
	Title        string          `json:"title"`
	Status       WorksheetStatus `json:"status" validate:"required,worksheet_status"`
	DeployedAt   time.Time       `json:"deployed_at"`
	ClassroomID  *string         `json:"classroom_id,omitempty"`
}

// ResultKey is the identifier used to look up grading results.
func (w Worksheet) ResultKey() string {
	if w.AssignmentID != "" {
		return w.AssignmentID
	}
	return w.ID
}

// Assignment is one entry of a learner's assignment list.
type Assignment struct {
	Worksheet
	StudentID    string   `json:"student_id"`
	ProblemCount int      `json:"problem_count"`
	Score        *float64 `json:"score,omitempty"`
}
