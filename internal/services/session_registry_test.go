package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/SAP-F-2025/worksheet-session/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestSessionRegistry_GetCreatesOncePerLearner(t *testing.T) {
	f := newControllerFixture(t, models.SubjectMath)
	r := NewSessionRegistry(f.deps)

	var wg sync.WaitGroup
	got := make([]*SessionController, 8)
	for i := range got {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got[i] = r.Get("s1")
		}(i)
	}
	wg.Wait()

	for _, c := range got {
		assert.Same(t, got[0], c)
	}
	assert.NotSame(t, got[0], r.Get("s2"))
	assert.Equal(t, 2, r.Len())

	_, ok := r.Lookup("s3")
	assert.False(t, ok)
}

func TestSessionRegistry_RemoveLeavesSession(t *testing.T) {
	f := newControllerFixture(t, models.SubjectMath)
	f.repo.On("GetAssignmentDetail", mock.Anything, "W1", "s1").
		Return(&models.AssignmentDetail{Problems: problems(models.SubjectMath, "1")}, nil)

	r := NewSessionRegistry(f.deps)
	c := r.Get("s1")
	require.NoError(t, c.SelectWorksheet(context.Background(), worksheet("W1", models.SubjectMath, models.WorksheetAssigned)))

	r.Remove("s1")
	assert.Equal(t, StateIdle, c.State())
	assert.Equal(t, 0, r.Len())
	assert.NotSame(t, c, r.Get("s1"))
}

func TestSessionRegistry_ReloadProblems(t *testing.T) {
	ctx := context.Background()
	f := newControllerFixture(t, models.SubjectMath)
	f.repo.On("GetAssignmentDetail", mock.Anything, "W1", mock.Anything).
		Return(&models.AssignmentDetail{Problems: problems(models.SubjectMath, "1")}, nil).Twice()
	f.repo.On("GetAssignmentDetail", mock.Anything, "W1", "s1").
		Return(&models.AssignmentDetail{Problems: problems(models.SubjectMath, "1", "2")}, nil).Once()
	f.repo.On("GetAssignmentDetail", mock.Anything, "W1", "s2").
		Return(nil, errors.New("boom")).Once()

	r := NewSessionRegistry(f.deps)
	require.NoError(t, r.Get("s1").SelectWorksheet(ctx, worksheet("W1", models.SubjectMath, models.WorksheetAssigned)))
	require.NoError(t, r.Get("s2").SelectWorksheet(ctx, worksheet("W1", models.SubjectMath, models.WorksheetAssigned)))
	r.Get("s3")

	err := r.ReloadProblems(ctx, "W1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrWorksheetLoadFailed)
	assert.Len(t, r.Get("s1").Snapshot().Problems, 2)
}
