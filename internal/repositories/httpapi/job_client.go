package httpapi

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/SAP-F-2025/worksheet-session/internal/models"
)

// JobClient submits and inspects server-side jobs.
type JobClient struct {
	client
}

func NewJobClient(baseURL string, timeout time.Duration, logger *slog.Logger) *JobClient {
	return &JobClient{client: newClient(baseURL, timeout, logger)}
}

func (c *JobClient) SubmitJob(ctx context.Context, kind models.JobKind, payload interface{}) (*models.JobSubmission, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("submit job: unknown kind %q", kind)
	}

	var resp struct {
		TaskID flexibleID `json:"task_id"`
	}
	if err := c.doJSON(ctx, "submit "+string(kind)+" job", http.MethodPost, c.endpoint("jobs", string(kind)), payload, &resp); err != nil {
		return nil, err
	}
	if resp.TaskID == "" {
		return nil, fmt.Errorf("submit %s job: response carried no task_id", kind)
	}
	return &models.JobSubmission{TaskID: string(resp.TaskID)}, nil
}

func (c *JobClient) GetJobStatus(ctx context.Context, taskID string) (*models.JobStatusResponse, error) {
	var status models.JobStatusResponse
	if err := c.doJSON(ctx, "get job status", http.MethodGet, c.endpoint("jobs", taskID, "status"), nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// SubmitOcr uploads a handwriting image as multipart form data.
func (c *JobClient) SubmitOcr(ctx context.Context, req models.OcrRequest) (*models.OcrResult, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fields := map[string]string{
		"session_id": req.SessionID,
		"problem_id": req.ProblemID,
		"answer":     req.Answer,
	}
	for name, value := range fields {
		if err := w.WriteField(name, value); err != nil {
			return nil, fmt.Errorf("ocr: failed to write field %s: %w", name, err)
		}
	}

	filename := req.Filename
	if filename == "" {
		filename = "handwriting.png"
	}
	part, err := w.CreateFormFile("image", filename)
	if err != nil {
		return nil, fmt.Errorf("ocr: failed to create image part: %w", err)
	}
	if _, err := part.Write(req.Image); err != nil {
		return nil, fmt.Errorf("ocr: failed to write image: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("ocr: failed to close form: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("ocr"), &buf)
	if err != nil {
		return nil, fmt.Errorf("ocr: failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", w.FormDataContentType())
	httpReq.Header.Set("Accept", "application/json")

	var result models.OcrResult
	if err := c.do(httpReq, "ocr", &result); err != nil {
		return nil, err
	}
	return &result, nil
}
