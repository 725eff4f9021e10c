package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/SAP-F-2025/worksheet-session/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func inProgress(subject models.Subject, remoteID string) *models.Session {
	s := &models.Session{
		ID:          "local",
		WorksheetID: "W1",
		Subject:     subject,
		StudentID:   "s1",
		Answers:     map[string]string{},
		Status:      models.SessionInProgress,
	}
	if remoteID != "" {
		s.RemoteSessionID = &remoteID
	}
	return s
}

func TestAnswerStore_SavesForRemoteSessions(t *testing.T) {
	repo := new(MockAssignmentRepository)
	repo.On("SaveAnswer", mock.Anything, "r1", "1", "4").Return(nil)

	store := NewAnswerStore(time.Second, testLogger())
	assert.True(t, store.Save(repo, inProgress(models.SubjectMath, "r1"), "1", "4"))
	store.Wait()

	repo.AssertExpectations(t)
}

func TestAnswerStore_SkipsWithoutRemoteSession(t *testing.T) {
	repo := new(MockAssignmentRepository)
	store := NewAnswerStore(time.Second, testLogger())

	assert.False(t, store.Save(repo, inProgress(models.SubjectMath, ""), "1", "4"))
	assert.False(t, store.Save(repo, inProgress(models.SubjectEnglish, "r1"), "1", "4"))
	assert.False(t, store.Save(nil, inProgress(models.SubjectMath, "r1"), "1", "4"))

	submitting := inProgress(models.SubjectMath, "r1")
	submitting.Status = models.SessionSubmitting
	assert.False(t, store.Save(repo, submitting, "1", "4"))

	store.Wait()
	repo.AssertNotCalled(t, "SaveAnswer", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestAnswerStore_SaveIsBoundedByTimeout(t *testing.T) {
	repo := new(MockAssignmentRepository)
	var deadlineSet bool
	repo.On("SaveAnswer", mock.Anything, "r1", "1", "4").
		Run(func(args mock.Arguments) {
			ctx := args.Get(0).(context.Context)
			_, deadlineSet = ctx.Deadline()
		}).
		Return(errors.New("unreachable"))

	store := NewAnswerStore(50*time.Millisecond, testLogger())
	store.Save(repo, inProgress(models.SubjectMath, "r1"), "1", "4")
	store.Wait()

	assert.True(t, deadlineSet)
}
