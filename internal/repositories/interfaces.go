package repositories

import (
	"context"
	"fmt"

	"github.com/SAP-F-2025/worksheet-session/internal/models"
)

// AssignmentRepository is the per-subject assignment backend. Every subject
// exposes the same contract; StartSession and SaveAnswer are only served by
// subjects that track a remote session.
type AssignmentRepository interface {
	ListAssignments(ctx context.Context, studentID string) ([]models.Assignment, error)
	GetAssignmentDetail(ctx context.Context, worksheetID, studentID string) (*models.AssignmentDetail, error)
	StartSession(ctx context.Context, worksheetID, studentID string) (string, error)
	SaveAnswer(ctx context.Context, sessionID, problemID, value string) error
	SubmitAnswers(ctx context.Context, req models.SubmitRequest) (models.GradingResult, error)
	GetResults(ctx context.Context, assignmentID string) ([]models.GradingResult, error)
}

// ContentRepository stores teacher-owned worksheet content.
type ContentRepository interface {
	GetWorksheetContent(ctx context.Context, worksheetID string) (*models.WorksheetContent, error)
	SaveWorksheetContent(ctx context.Context, content *models.WorksheetContent) error
	UpdateProblem(ctx context.Context, worksheetID string, problem models.Problem) error
	UpdatePassage(ctx context.Context, worksheetID string, passage models.Passage) error
}

// JobBackend runs generation, regeneration and OCR work server-side.
type JobBackend interface {
	SubmitJob(ctx context.Context, kind models.JobKind, payload interface{}) (*models.JobSubmission, error)
	GetJobStatus(ctx context.Context, taskID string) (*models.JobStatusResponse, error)
	SubmitOcr(ctx context.Context, req models.OcrRequest) (*models.OcrResult, error)
}

// AssignmentRepositories resolves the backend serving a subject.
type AssignmentRepositories map[models.Subject]AssignmentRepository

func (r AssignmentRepositories) For(subject models.Subject) (AssignmentRepository, error) {
	repo, ok := r[subject]
	if !ok || repo == nil {
		return nil, fmt.Errorf("no assignment repository for subject %q", subject)
	}
	return repo, nil
}
