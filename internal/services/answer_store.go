package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/SAP-F-2025/worksheet-session/internal/models"
	"github.com/SAP-F-2025/worksheet-session/internal/repositories"
)

// AnswerStore persists answers incrementally for subjects whose backend
// keeps a remote session. Saves are fire-and-forget: they are never retried
// and their failure never touches the local answer.
type AnswerStore struct {
	timeout time.Duration
	logger  *slog.Logger
	wg      sync.WaitGroup
}

func NewAnswerStore(timeout time.Duration, logger *slog.Logger) *AnswerStore {
	return &AnswerStore{
		timeout: timeout,
		logger:  logger,
	}
}

// Save schedules a remote autosave and reports whether one was scheduled.
// session must be a snapshot owned by the caller.
func (s *AnswerStore) Save(repo repositories.AssignmentRepository, session *models.Session, problemID, value string) bool {
	if repo == nil || !session.AcceptsAutosave() {
		return false
	}

	sessionID := *session.RemoteSessionID
	logger := s.logger.With(
		"worksheet_id", session.WorksheetID,
		"student_id", session.StudentID,
		"problem_id", problemID,
		"remote_session_id", sessionID,
	)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()

		if err := repo.SaveAnswer(ctx, sessionID, problemID, value); err != nil {
			logger.Warn("Autosave failed", "error", err)
			return
		}
		logger.Debug("Autosaved answer")
	}()
	return true
}

// Wait blocks until every scheduled save has completed.
func (s *AnswerStore) Wait() {
	s.wg.Wait()
}
