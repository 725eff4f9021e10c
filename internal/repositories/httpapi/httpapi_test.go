package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	apperrors "github.com/SAP-F-2025/worksheet-session/internal/errors"
	"github.com/SAP-F-2025/worksheet-session/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T, handler http.HandlerFunc) string {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv.URL
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestAssignmentClient_ListAssignments(t *testing.T) {
	url := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/assignments", r.URL.Path)
		assert.Equal(t, "42", r.URL.Query().Get("student_id"))
		writeJSON(w, http.StatusOK, []map[string]any{
			{"id": "w1", "title": "Fractions", "status": "assigned"},
		})
	})

	c := NewAssignmentClient(models.SubjectMath, url, time.Second, testLogger())
	list, err := c.ListAssignments(context.Background(), "42")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, models.SubjectMath, list[0].Subject)
	assert.Equal(t, "42", list[0].StudentID)
	assert.Equal(t, models.WorksheetAssigned, list[0].Status)
}

func TestAssignmentClient_GetAssignmentDetail(t *testing.T) {
	url := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/assignments/w1", r.URL.Path)
		writeJSON(w, http.StatusOK, map[string]any{
			"problems": []map[string]any{
				{"id": "1", "question_text": "Read", "english": map[string]any{"passage_id": "P1"}},
			},
			"passages": []map[string]any{{"id": "P1", "content_for_student": "text"}},
		})
	})

	c := NewAssignmentClient(models.SubjectEnglish, url, time.Second, testLogger())
	detail, err := c.GetAssignmentDetail(context.Background(), "w1", "42")
	require.NoError(t, err)
	require.Len(t, detail.Problems, 1)
	assert.Equal(t, models.SubjectEnglish, detail.Problems[0].Subject)
	pid, ok := detail.Problems[0].PassageID()
	require.True(t, ok)
	assert.Equal(t, "P1", pid)
	require.Len(t, detail.Passages, 1)
}

func TestAssignmentClient_StartSession(t *testing.T) {
	url := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/assignments/w1/sessions", r.URL.Path)
		writeJSON(w, http.StatusCreated, map[string]any{"session_id": 981})
	})

	c := NewAssignmentClient(models.SubjectMath, url, time.Second, testLogger())
	id, err := c.StartSession(context.Background(), "w1", "42")
	require.NoError(t, err)
	assert.Equal(t, "981", id)

	korean := NewAssignmentClient(models.SubjectKorean, url, time.Second, testLogger())
	_, err = korean.StartSession(context.Background(), "w1", "42")
	assert.Error(t, err)
}

func TestAssignmentClient_SubmitAnswers(t *testing.T) {
	var received models.SubmitRequest
	url := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sessions/s1/submit", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		writeJSON(w, http.StatusOK, map[string]any{"total_score": 90})
	})

	c := NewAssignmentClient(models.SubjectMath, url, time.Second, testLogger())
	sid := "s1"
	result, err := c.SubmitAnswers(context.Background(), models.SubmitRequest{
		WorksheetID: "w1", SessionID: &sid, StudentID: "42",
		Answers: map[string]string{"1": "4"},
	})
	require.NoError(t, err)
	score, ok := result.Score()
	require.True(t, ok)
	assert.Equal(t, 90.0, score)
	assert.Equal(t, "4", received.Answers["1"])
}

func TestAssignmentClient_GetResults_Envelope(t *testing.T) {
	var calls atomic.Int32
	url := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			writeJSON(w, http.StatusOK, []map[string]any{{"problem_id": "1"}})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"results": []map[string]any{{"id": "2"}, {"id": "3"}}})
	})

	c := NewAssignmentClient(models.SubjectKorean, url, time.Second, testLogger())
	results, err := c.GetResults(context.Background(), "a1")
	require.NoError(t, err)
	assert.Len(t, results, 1)

	results, err = c.GetResults(context.Background(), "a1")
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestAssignmentClient_ErrorClassification(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusNotFound)
	url := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, int(status.Load()), map[string]any{"detail": "answers incomplete"})
	})
	c := NewAssignmentClient(models.SubjectMath, url, time.Second, testLogger())

	_, err := c.GetAssignmentDetail(context.Background(), "w1", "42")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	status.Store(http.StatusUnauthorized)
	_, err = c.ListAssignments(context.Background(), "42")
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)

	status.Store(http.StatusServiceUnavailable)
	err = c.SaveAnswer(context.Background(), "s1", "1", "4")
	assert.True(t, apperrors.IsNetwork(err))

	status.Store(http.StatusBadRequest)
	_, err = c.SubmitAnswers(context.Background(), models.SubmitRequest{WorksheetID: "w1"})
	require.True(t, apperrors.IsRemoteFailure(err))
	assert.Contains(t, err.Error(), "answers incomplete")
}

func TestClient_TransportFailureIsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := NewJobClient(url, time.Second, testLogger())
	_, err := c.GetJobStatus(context.Background(), "t1")
	assert.True(t, apperrors.IsNetwork(err))
}

func TestJobClient_SubmitAndStatus(t *testing.T) {
	url := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/jobs/regenerate":
			var payload map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
			assert.Equal(t, "p1", payload["problem_id"])
			writeJSON(w, http.StatusAccepted, map[string]any{"task_id": "t-1"})
		case "/jobs/t-1/status":
			writeJSON(w, http.StatusOK, map[string]any{
				"status":   "PROGRESS",
				"progress": map[string]any{"current": 3, "total": 4},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	c := NewJobClient(url, time.Second, testLogger())
	sub, err := c.SubmitJob(context.Background(), models.JobRegenerate, map[string]string{"problem_id": "p1"})
	require.NoError(t, err)
	assert.Equal(t, "t-1", sub.TaskID)

	status, err := c.GetJobStatus(context.Background(), sub.TaskID)
	require.NoError(t, err)
	assert.Equal(t, models.JobProgress, status.Normalized())
	require.NotNil(t, status.Progress)
	assert.Equal(t, 75.0, status.Progress.Percent())

	_, err = c.SubmitJob(context.Background(), models.JobKind("bake"), nil)
	assert.Error(t, err)
}

func TestJobClient_SubmitOcr(t *testing.T) {
	url := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ocr", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "s1", r.FormValue("session_id"))
		assert.Equal(t, "p1", r.FormValue("problem_id"))

		file, header, err := r.FormFile("image")
		require.NoError(t, err)
		defer file.Close()
		data, _ := io.ReadAll(file)
		assert.Equal(t, "png-bytes", string(data))
		assert.Equal(t, "handwriting.png", header.Filename)

		writeJSON(w, http.StatusOK, map[string]any{"extracted_text": "x=4", "score": 1})
	})

	c := NewJobClient(url, time.Second, testLogger())
	res, err := c.SubmitOcr(context.Background(), models.OcrRequest{
		SessionID: "s1", ProblemID: "p1", Image: []byte("png-bytes"),
	})
	require.NoError(t, err)
	require.NotNil(t, res.ExtractedText)
	assert.Equal(t, "x=4", *res.ExtractedText)
}
