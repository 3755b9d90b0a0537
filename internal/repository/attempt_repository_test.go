package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-attempt/internal/model"
)

// exerciseAttemptRepository runs the behaviour every AttemptRepository shares.
func exerciseAttemptRepository(t *testing.T, repo AttemptRepository) {
	t.Helper()
	ctx := context.Background()
	studentID := int(time.Now().UnixNano() % 1_000_000)
	courseID := "course-" + uuid.NewString()

	_, err := repo.Get(ctx, uuid.NewString())
	assert.ErrorIs(t, err, ErrNotFound)

	first := &model.AttemptRecord{
		ID: uuid.NewString(), CourseID: courseID, StudentID: studentID, AttemptNumber: 1,
		Status: model.AttemptStatusInProgress, StartedAt: time.Now().UTC().Truncate(time.Second),
	}
	second := &model.AttemptRecord{
		ID: uuid.NewString(), CourseID: courseID, StudentID: studentID, AttemptNumber: 2,
		Status: model.AttemptStatusInProgress, StartedAt: time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, repo.Create(ctx, first))
	require.NoError(t, repo.Create(ctx, second))

	list, err := repo.ListByStudentCourse(ctx, studentID, courseID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, 1, list[0].AttemptNumber)
	assert.Equal(t, 2, list[1].AttemptNumber)

	score := 75.0
	now := time.Now().UTC().Truncate(time.Second)
	first.Status = model.AttemptStatusSubmitted
	first.Score = &score
	first.SubmittedAt = &now
	require.NoError(t, repo.Update(ctx, first))

	got, err := repo.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AttemptStatusSubmitted, got.Status)
	require.NotNil(t, got.Score)
	assert.Equal(t, 75.0, *got.Score)

	missing := &model.AttemptRecord{ID: uuid.NewString()}
	assert.ErrorIs(t, repo.Update(ctx, missing), ErrNotFound)

	answers, err := repo.GetAnswers(ctx, first.ID)
	require.NoError(t, err)
	assert.Empty(t, answers)

	require.NoError(t, repo.SaveAnswers(ctx, first.ID, model.AnswerSet{"q1": 0, "q2": 3}))
	require.NoError(t, repo.SaveAnswers(ctx, first.ID, model.AnswerSet{"q2": 1}))
	answers, err = repo.GetAnswers(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AnswerSet{"q2": 1}, answers)

	leave := model.LeaveRecord{AttemptID: first.ID, StudentID: studentID, Reason: model.LeaveHidden, Timestamp: now}
	require.NoError(t, repo.AppendLeave(ctx, leave))
	leave.Reason = model.LeaveClose
	require.NoError(t, repo.AppendLeave(ctx, leave))
	leaves, err := repo.ListLeaves(ctx, first.ID)
	require.NoError(t, err)
	require.Len(t, leaves, 2)
	assert.Equal(t, model.LeaveHidden, leaves[0].Reason)
	assert.Equal(t, model.LeaveClose, leaves[1].Reason)
}

func TestMemoryAttemptRepository(t *testing.T) {
	exerciseAttemptRepository(t, NewMemoryAttemptRepository())
}

func TestMemoryAttemptRepositoryCopiesAnswers(t *testing.T) {
	repo := NewMemoryAttemptRepository()
	ctx := context.Background()

	in := model.AnswerSet{"q1": 1}
	require.NoError(t, repo.SaveAnswers(ctx, "a", in))
	in["q1"] = 2

	out, err := repo.GetAnswers(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 1, out["q1"])
}
