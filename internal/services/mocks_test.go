package services

import (
	"context"
	"testing"
	"time"

	"github.com/SAP-F-2025/worksheet-session/internal/events"
	"github.com/SAP-F-2025/worksheet-session/internal/models"
	"github.com/SAP-F-2025/worksheet-session/internal/repositories"
	"github.com/SAP-F-2025/worksheet-session/internal/validator"
	"github.com/stretchr/testify/mock"
)

// MockAssignmentRepository is a mock implementation of AssignmentRepository
type MockAssignmentRepository struct {
	mock.Mock
}

func (m *MockAssignmentRepository) ListAssignments(ctx context.Context, studentID string) ([]models.Assignment, error) {
	args := m.Called(ctx, studentID)
	list, _ := args.Get(0).([]models.Assignment)
	return list, args.Error(1)
}

func (m *MockAssignmentRepository) GetAssignmentDetail(ctx context.Context, worksheetID, studentID string) (*models.AssignmentDetail, error) {
	args := m.Called(ctx, worksheetID, studentID)
	detail, _ := args.Get(0).(*models.AssignmentDetail)
	return detail, args.Error(1)
}

func (m *MockAssignmentRepository) StartSession(ctx context.Context, worksheetID, studentID string) (string, error) {
	args := m.Called(ctx, worksheetID, studentID)
	return args.String(0), args.Error(1)
}

func (m *MockAssignmentRepository) SaveAnswer(ctx context.Context, sessionID, problemID, value string) error {
	args := m.Called(ctx, sessionID, problemID, value)
	return args.Error(0)
}

func (m *MockAssignmentRepository) SubmitAnswers(ctx context.Context, req models.SubmitRequest) (models.GradingResult, error) {
	args := m.Called(ctx, req)
	result, _ := args.Get(0).(models.GradingResult)
	return result, args.Error(1)
}

func (m *MockAssignmentRepository) GetResults(ctx context.Context, assignmentID string) ([]models.GradingResult, error) {
	args := m.Called(ctx, assignmentID)
	results, _ := args.Get(0).([]models.GradingResult)
	return results, args.Error(1)
}

// MockJobBackend is a mock implementation of JobBackend
type MockJobBackend struct {
	mock.Mock
}

func (m *MockJobBackend) SubmitJob(ctx context.Context, kind models.JobKind, payload interface{}) (*models.JobSubmission, error) {
	args := m.Called(ctx, kind, payload)
	sub, _ := args.Get(0).(*models.JobSubmission)
	return sub, args.Error(1)
}

func (m *MockJobBackend) GetJobStatus(ctx context.Context, taskID string) (*models.JobStatusResponse, error) {
	args := m.Called(ctx, taskID)
	resp, _ := args.Get(0).(*models.JobStatusResponse)
	return resp, args.Error(1)
}

func (m *MockJobBackend) SubmitOcr(ctx context.Context, req models.OcrRequest) (*models.OcrResult, error) {
	args := m.Called(ctx, req)
	result, _ := args.Get(0).(*models.OcrResult)
	return result, args.Error(1)
}

// MockContentRepository is a mock implementation of ContentRepository
type MockContentRepository struct {
	mock.Mock
}

func (m *MockContentRepository) GetWorksheetContent(ctx context.Context, worksheetID string) (*models.WorksheetContent, error) {
	args := m.Called(ctx, worksheetID)
	content, _ := args.Get(0).(*models.WorksheetContent)
	return content, args.Error(1)
}

func (m *MockContentRepository) SaveWorksheetContent(ctx context.Context, content *models.WorksheetContent) error {
	args := m.Called(ctx, content)
	return args.Error(0)
}

func (m *MockContentRepository) UpdateProblem(ctx context.Context, worksheetID string, problem models.Problem) error {
	args := m.Called(ctx, worksheetID, problem)
	return args.Error(0)
}

func (m *MockContentRepository) UpdatePassage(ctx context.Context, worksheetID string, passage models.Passage) error {
	args := m.Called(ctx, worksheetID, passage)
	return args.Error(0)
}

type controllerFixture struct {
	repo      *MockAssignmentRepository
	jobs      *MockJobBackend
	publisher *events.MockEventPublisher
	answers   *AnswerStore
	deps      SessionDeps
}

func newControllerFixture(t *testing.T, subject models.Subject) *controllerFixture {
	t.Helper()
	logger := testLogger()
	f := &controllerFixture{
		repo:      new(MockAssignmentRepository),
		jobs:      new(MockJobBackend),
		publisher: events.NewMockEventPublisher(logger),
		answers:   NewAnswerStore(time.Second, logger),
	}
	f.deps = SessionDeps{
		Repositories: repositories.AssignmentRepositories{subject: f.repo},
		Jobs:         f.jobs,
		Orchestrator: NewJobOrchestrator(fastPolicies(20), nil, logger),
		Answers:      f.answers,
		Reconciler:   NewResultReconciler(logger),
		Validator:    validator.New(),
		Notifier:     NewEventNotifier(f.publisher, logger),
		Logger:       logger,
	}
	t.Cleanup(f.deps.Orchestrator.Shutdown)
	return f
}

func worksheet(id string, subject models.Subject, status models.WorksheetStatus) models.Worksheet {
	return models.Worksheet{ID: id, Subject: subject, Title: "Worksheet " + id, Status: status}
}

func problems(subject models.Subject, ids ...string) []models.Problem {
	out := make([]models.Problem, 0, len(ids))
	for _, id := range ids {
		out = append(out, models.Problem{ID: id, Subject: subject, QuestionText: "q" + id, CorrectAnswer: "4"})
	}
	return out
}
