package models

import (
	"encoding/json"
	"strings"
)

type JobKind string

const (
	JobGenerate   JobKind = "generate"
	JobRegenerate JobKind = "regenerate"
	JobOCR        JobKind = "ocr"
)

func (k JobKind) Valid() bool {
	switch k {
	case JobGenerate, JobRegenerate, JobOCR:
		return true
	}
	return false
}

type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobProgress  JobStatus = "progress"
	JobSuccess   JobStatus = "success"
	JobFailure   JobStatus = "failure"
	JobTimeout   JobStatus = "timeout"
	JobCancelled JobStatus = "cancelled"
)

// IsTerminal is true once no further status change is accepted.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobSuccess, JobFailure, JobTimeout, JobCancelled:
		return true
	}
	return false
}

// Job mirrors one server-side task tracked by polling.
type Job struct {
	ID          string          `json:"id"`
	TaskID      string          `json:"task_id,omitempty"`
	Target      string          `json:"target"`
	Kind        JobKind         `json:"kind"`
	Status      JobStatus       `json:"status"`
	ProgressPct *float64        `json:"progress_pct,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
	Attempts    int             `json:"attempts"`
}

// JobSubmission is the response of a job submit call.
type JobSubmission struct {
	TaskID string `json:"task_id"`
}

// JobProgressInfo is the current/total pair reported while a task runs.
type JobProgressInfo struct {
	Current float64 `json:"current"`
	Total   float64 `json:"total"`
}

// Percent derives a 0-100 percentage. A zero total yields 0.
func (p JobProgressInfo) Percent() float64 {
	if p.Total <= 0 {
		return 0
	}
	pct := p.Current / p.Total * 100
	if pct > 100 {
		return 100
	}
	if pct < 0 {
		return 0
	}
	return pct
}

// JobStatusResponse is the backend's answer to a status query. Status carries
// the backend vocabulary (PENDING, PROGRESS, SUCCESS, FAILURE).
type JobStatusResponse struct {
	Status   string           `json:"status"`
	Progress *JobProgressInfo `json:"progress,omitempty"`
	Result   json.RawMessage  `json:"result,omitempty"`
	Error    string           `json:"error,omitempty"`
}

// Normalized maps the backend status onto JobStatus.
func (r *JobStatusResponse) Normalized() JobStatus {
	switch strings.ToUpper(strings.TrimSpace(r.Status)) {
	case "PENDING", "QUEUED", "STARTED", "RECEIVED", "RETRY":
		return JobPending
	case "PROGRESS", "RUNNING":
		return JobProgress
	case "SUCCESS", "SUCCEEDED":
		return JobSuccess
	case "FAILURE", "FAILED", "REVOKED":
		return JobFailure
	}
	return JobPending
}
