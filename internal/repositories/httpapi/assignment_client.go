package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/SAP-F-2025/worksheet-session/internal/models"
	"github.com/SAP-F-2025/worksheet-session/internal/repositories"
)

// AssignmentClient talks to one subject's assignment backend.
type AssignmentClient struct {
	client
	subject models.Subject
}

func NewAssignmentClient(subject models.Subject, baseURL string, timeout time.Duration, logger *slog.Logger) *AssignmentClient {
	return &AssignmentClient{
		client:  newClient(baseURL, timeout, logger.With("subject", subject)),
		subject: subject,
	}
}

// NewAssignmentRepositories builds one client per configured subject.
func NewAssignmentRepositories(urls map[models.Subject]string, timeout time.Duration, logger *slog.Logger) repositories.AssignmentRepositories {
	repos := make(repositories.AssignmentRepositories, len(urls))
	for subject, baseURL := range urls {
		repos[subject] = NewAssignmentClient(subject, baseURL, timeout, logger)
	}
	return repos
}

func (c *AssignmentClient) ListAssignments(ctx context.Context, studentID string) ([]models.Assignment, error) {
	target := c.endpoint("assignments") + "?" + url.Values{"student_id": {studentID}}.Encode()

	var assignments []models.Assignment
	if err := c.doJSON(ctx, "list assignments", http.MethodGet, target, nil, &assignments); err != nil {
		return nil, err
	}
	for i := range assignments {
		if assignments[i].Subject == "" {
			assignments[i].Subject = c.subject
		}
		if assignments[i].StudentID == "" {
			assignments[i].StudentID = studentID
		}
	}
	return assignments, nil
}

func (c *AssignmentClient) GetAssignmentDetail(ctx context.Context, worksheetID, studentID string) (*models.AssignmentDetail, error) {
	target := c.endpoint("assignments", worksheetID) + "?" + url.Values{"student_id": {studentID}}.Encode()

	var detail models.AssignmentDetail
	if err := c.doJSON(ctx, "get assignment detail", http.MethodGet, target, nil, &detail); err != nil {
		return nil, err
	}
	for i := range detail.Problems {
		if detail.Problems[i].Subject == "" {
			detail.Problems[i].Subject = c.subject
		}
	}
	return &detail, nil
}

func (c *AssignmentClient) StartSession(ctx context.Context, worksheetID, studentID string) (string, error) {
	if !c.subject.TracksRemoteSession() {
		return "", fmt.Errorf("start session: subject %s has no remote session", c.subject)
	}

	var resp struct {
		SessionID flexibleID `json:"session_id"`
	}
	body := map[string]string{"student_id": studentID}
	if err := c.doJSON(ctx, "start session", http.MethodPost, c.endpoint("assignments", worksheetID, "sessions"), body, &resp); err != nil {
		return "", err
	}
	if resp.SessionID == "" {
		return "", fmt.Errorf("start session: response carried no session_id")
	}
	return string(resp.SessionID), nil
}

func (c *AssignmentClient) SaveAnswer(ctx context.Context, sessionID, problemID, value string) error {
	body := map[string]string{"answer": value}
	return c.doJSON(ctx, "save answer", http.MethodPut, c.endpoint("sessions", sessionID, "answers", problemID), body, nil)
}

func (c *AssignmentClient) SubmitAnswers(ctx context.Context, req models.SubmitRequest) (models.GradingResult, error) {
	target := c.endpoint("assignments", req.WorksheetID, "submit")
	if req.SessionID != nil {
		target = c.endpoint("sessions", *req.SessionID, "submit")
	}

	var result models.GradingResult
	if err := c.doJSON(ctx, "submit answers", http.MethodPost, target, req, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// GetResults accepts both a bare array and a {"results": [...]} envelope.
func (c *AssignmentClient) GetResults(ctx context.Context, assignmentID string) ([]models.GradingResult, error) {
	var raw json.RawMessage
	if err := c.doJSON(ctx, "get results", http.MethodGet, c.endpoint("assignments", assignmentID, "results"), nil, &raw); err != nil {
		return nil, err
	}

	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	var results []models.GradingResult
	if raw[0] == '[' {
		if err := json.Unmarshal(raw, &results); err != nil {
			return nil, fmt.Errorf("get results: failed to decode response: %w", err)
		}
		return results, nil
	}

	var envelope struct {
		Results []models.GradingResult `json:"results"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("get results: failed to decode response: %w", err)
	}
	return envelope.Results, nil
}

// flexibleID accepts identifiers encoded either as JSON strings or numbers.
type flexibleID string

func (f *flexibleID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexibleID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexibleID(n.String())
	return nil
}
