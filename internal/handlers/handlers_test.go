package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/SAP-F-2025/worksheet-session/internal/cache"
	"github.com/SAP-F-2025/worksheet-session/internal/config"
	"github.com/SAP-F-2025/worksheet-session/internal/events"
	"github.com/SAP-F-2025/worksheet-session/internal/models"
	"github.com/SAP-F-2025/worksheet-session/internal/repositories"
	"github.com/SAP-F-2025/worksheet-session/internal/services"
	"github.com/SAP-F-2025/worksheet-session/internal/utils"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockAssignmentRepository struct {
	mock.Mock
}

func (m *mockAssignmentRepository) ListAssignments(ctx context.Context, studentID string) ([]models.Assignment, error) {
	args := m.Called(ctx, studentID)
	list, _ := args.Get(0).([]models.Assignment)
	return list, args.Error(1)
}

func (m *mockAssignmentRepository) GetAssignmentDetail(ctx context.Context, worksheetID, studentID string) (*models.AssignmentDetail, error) {
	args := m.Called(ctx, worksheetID, studentID)
	detail, _ := args.Get(0).(*models.AssignmentDetail)
	return detail, args.Error(1)
}

func (m *mockAssignmentRepository) StartSession(ctx context.Context, worksheetID, studentID string) (string, error) {
	args := m.Called(ctx, worksheetID, studentID)
	return args.String(0), args.Error(1)
}

func (m *mockAssignmentRepository) SaveAnswer(ctx context.Context, sessionID, problemID, value string) error {
	return m.Called(ctx, sessionID, problemID, value).Error(0)
}

func (m *mockAssignmentRepository) SubmitAnswers(ctx context.Context, req models.SubmitRequest) (models.GradingResult, error) {
	args := m.Called(ctx, req)
	result, _ := args.Get(0).(models.GradingResult)
	return result, args.Error(1)
}

func (m *mockAssignmentRepository) GetResults(ctx context.Context, assignmentID string) ([]models.GradingResult, error) {
	args := m.Called(ctx, assignmentID)
	results, _ := args.Get(0).([]models.GradingResult)
	return results, args.Error(1)
}

type testServer struct {
	router   *gin.Engine
	korean   *mockAssignmentRepository
	services services.ServiceManager
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	poll := config.JobPollConfig{Interval: time.Millisecond, MaxAttempts: 5}
	cfg := &config.Config{
		AutosaveTimeout: time.Second,
		HandoffTTL:      time.Minute,
		JobPolling: map[models.JobKind]config.JobPollConfig{
			models.JobRegenerate: poll,
			models.JobGenerate:   poll,
			models.JobOCR:        poll,
		},
	}

	bus := events.NewHandoffBus("handoffs", logger)
	t.Cleanup(func() { _ = bus.Close() })

	korean := new(mockAssignmentRepository)
	sm := services.NewServiceManager(services.ServiceDeps{
		Assignments: repositories.AssignmentRepositories{models.SubjectKorean: korean},
		Cache:       cache.NewMemoryCache(),
		Publisher:   events.NewMockEventPublisher(logger),
		HandoffBus:  bus,
		Config:      cfg,
		Logger:      logger,
	})
	t.Cleanup(sm.Shutdown)

	router := gin.New()
	NewHandlerManager(sm, utils.NewSlogLogger(logger)).SetupRoutes(router)
	return &testServer{router: router, korean: korean, services: sm}
}

func (s *testServer) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		payload, _ := json.Marshal(body)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(StudentIDHeader, "s1")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func koreanWorksheet() models.Worksheet {
	return models.Worksheet{ID: "K1", Subject: models.SubjectKorean, Title: "Reading", Status: models.WorksheetAssigned}
}

func (s *testServer) expectKoreanDetail() {
	s.korean.On("GetAssignmentDetail", mock.Anything, "K1", "s1").Return(&models.AssignmentDetail{
		Problems: []models.Problem{
			{ID: "1", Subject: models.SubjectKorean, QuestionText: "q1", CorrectAnswer: "a"},
			{ID: "2", Subject: models.SubjectKorean, QuestionText: "q2", CorrectAnswer: "b"},
		},
	}, nil)
}

func TestHealthCheck(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(utils.RequestIDHeader))
}

func TestStudentIdentity_MissingHeader(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/session", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "unauthorized", decodeError(t, w).Code)
}

func TestSessionFlow_GateSubmitAndExport(t *testing.T) {
	s := newTestServer(t)
	s.expectKoreanDetail()

	w := s.do(http.MethodPost, "/api/v1/session/select", koreanWorksheet())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(http.MethodPost, "/api/v1/session/start", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = s.do(http.MethodPut, "/api/v1/session/answers/1", AnswerRequest{Answer: "a"})
	require.Equal(t, http.StatusNoContent, w.Code)

	w = s.do(http.MethodPost, "/api/v1/session/submit", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	s.korean.AssertNotCalled(t, "SubmitAnswers", mock.Anything, mock.Anything)

	w = s.do(http.MethodGet, "/api/v1/session/export?format=csv", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(http.MethodPut, "/api/v1/session/answers/2", AnswerRequest{Answer: "c"})
	require.Equal(t, http.StatusNoContent, w.Code)

	s.korean.On("SubmitAnswers", mock.Anything, mock.MatchedBy(func(req models.SubmitRequest) bool {
		return req.WorksheetID == "K1" && req.SessionID == nil && len(req.Answers) == 2
	})).Return(models.GradingResult{
		"score": 50.0,
		"results": []any{
			map[string]any{"problem_id": "1", "is_correct": true},
			map[string]any{"problem_id": "2", "is_correct": false},
		},
	}, nil).Once()
	s.korean.On("ListAssignments", mock.Anything, "s1").Return([]models.Assignment{}, nil)

	w = s.do(http.MethodPost, "/api/v1/session/submit", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Data SubmitResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, services.StateGraded, resp.Data.Session.State)
	assert.Equal(t, 50.0, resp.Data.Result["score"])

	w = s.do(http.MethodGet, "/api/v1/session/export?format=csv", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "results-K1.csv")
	assert.Contains(t, w.Body.String(), "Correct")

	w = s.do(http.MethodGet, "/api/v1/session/export?format=pdf", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodDelete, "/api/v1/session", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, 0, s.services.Sessions().Len())
}

func TestSelectWorksheet_Errors(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/session/select", strings.NewReader("{"))
	req.Header.Set(StudentIDHeader, "s1")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	s.korean.On("GetAssignmentDetail", mock.Anything, "K1", "s1").
		Return(nil, errors.New("connection reset")).Once()
	w = s.do(http.MethodPost, "/api/v1/session/select", koreanWorksheet())
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = s.do(http.MethodGet, "/api/v1/session", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"state":"idle"`)
}

func TestStartSession_WithoutSelection(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodPost, "/api/v1/session/start", nil)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestMoveCursor(t *testing.T) {
	s := newTestServer(t)
	s.expectKoreanDetail()

	w := s.do(http.MethodPut, "/api/v1/session/cursor", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/api/v1/session/select", koreanWorksheet()).Code)
	require.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/api/v1/session/start", nil).Code)

	w = s.do(http.MethodPut, "/api/v1/session/cursor", map[string]any{"index": 9})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"index":1`)
}

func TestStreamCountdown_WithoutLimit(t *testing.T) {
	s := newTestServer(t)
	s.expectKoreanDetail()

	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/api/v1/session/select", koreanWorksheet()).Code)
	require.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/api/v1/session/start", nil).Code)

	w := s.do(http.MethodGet, "/api/v1/session/countdown", nil)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestOpenDeepLink(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodGet, "/api/v1/session/open?assignmentId=K1&subject=art", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodGet, "/api/v1/session/open", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"dispatch":null`)
}

func TestHandoff_StoredThenOpened(t *testing.T) {
	s := newTestServer(t)
	s.expectKoreanDetail()
	s.korean.On("ListAssignments", mock.Anything, "s1").
		Return([]models.Assignment{{Worksheet: koreanWorksheet()}}, nil).Maybe()

	w := s.do(http.MethodPost, "/api/v1/handoffs", models.DeepLink{AssignmentID: "K1", Subject: models.SubjectKorean})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	w = s.do(http.MethodGet, "/api/v1/session/open", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Data OpenResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Data.Dispatch)
	assert.Equal(t, models.HandoffFromStorage, resp.Data.Dispatch.Source)
	require.NotNil(t, resp.Data.Session.Worksheet)
	assert.Equal(t, "K1", resp.Data.Session.Worksheet.ID)

	w = s.do(http.MethodGet, "/api/v1/session/open", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"dispatch":null`)
}

func TestOpenDeepLink_RepeatedLinkKeepsAnswers(t *testing.T) {
	s := newTestServer(t)
	s.expectKoreanDetail()
	s.korean.On("ListAssignments", mock.Anything, "s1").
		Return([]models.Assignment{{Worksheet: koreanWorksheet()}}, nil)

	const link = "/api/v1/session/open?assignmentId=K1&subject=korean"

	w := s.do(http.MethodGet, link, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Data OpenResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Data.Dispatch)
	assert.Equal(t, models.HandoffFromURL, resp.Data.Dispatch.Source)
	assert.True(t, resp.Data.Dispatch.Started)

	w = s.do(http.MethodPut, "/api/v1/session/answers/1", AnswerRequest{Answer: "a"})
	require.Equal(t, http.StatusNoContent, w.Code)

	w = s.do(http.MethodGet, link, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp.Data = OpenResponse{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Nil(t, resp.Data.Dispatch)
	assert.Equal(t, services.StateInProgress, resp.Data.Session.State)
	require.NotNil(t, resp.Data.Session.Session)
	assert.Equal(t, map[string]string{"1": "a"}, resp.Data.Session.Session.Answers)
	s.korean.AssertNumberOfCalls(t, "GetAssignmentDetail", 1)
}

func TestWaitHandoff(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodGet, "/api/v1/session/handoff/wait?wait=20ms", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = s.do(http.MethodGet, "/api/v1/session/handoff/wait?wait=soon", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRegeneration_NoPreview(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodGet, "/api/v1/worksheets/W1/problems/1/regeneration", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(http.MethodPost, "/api/v1/worksheets/W1/problems/1/regeneration/apply", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(http.MethodDelete, "/api/v1/worksheets/W1/problems/1/regeneration", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = s.do(http.MethodGet, "/api/v1/worksheets/drafts/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGenerateWorksheet_InvalidRequest(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodPost, "/api/v1/worksheets/generate", services.GenerateRequest{Subject: "art", Title: "T"})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation", decodeError(t, w).Code)
}

func TestStatusForError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"gate", services.NewSubmissionGateError(1, 3), http.StatusUnprocessableEntity},
		{"validation", services.ErrUnknownProblem, http.StatusBadRequest},
		{"unauthorized", services.ErrUnauthorized, http.StatusUnauthorized},
		{"not found", services.ErrNotFound, http.StatusNotFound},
		{"timeout", services.ErrJobTimedOut, http.StatusGatewayTimeout},
		{"conflict", services.ErrInvalidTransition, http.StatusConflict},
		{"cancelled", services.ErrJobCancelled, http.StatusConflict},
		{"job failed", &services.JobError{Message: "overloaded"}, http.StatusBadGateway},
		{"load failed", services.ErrWorksheetLoadFailed, http.StatusServiceUnavailable},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusForError(tt.err))
		})
	}
}
