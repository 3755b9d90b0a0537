// Package attempt drives one student's quiz attempt: starting it, keeping the
// countdown honest, autosaving answers, submitting and showing the result.
package attempt

import (
	"context"
	"errors"

	"github.com/stemsi/exstem-attempt/internal/model"
	"github.com/stemsi/exstem-attempt/internal/normalize"
)

// Service is the remote quiz service as the controller consumes it.
// Responses whose shape varies between deployments are returned raw and
// interpreted through the normalize package.
type Service interface {
	FetchRetryInfo(ctx context.Context, courseID string) (normalize.Object, error)
	StartAttempt(ctx context.Context, courseID string) (*StartedAttempt, error)
	FetchTimer(ctx context.Context, attemptID string) (normalize.Object, error)
	PushTimer(ctx context.Context, attemptID string, remainingSeconds int) error
	SaveAnswers(ctx context.Context, attemptID string, answers []model.Answer, elapsedSeconds *int) error
	SubmitAnswers(ctx context.Context, attemptID string, answers []model.Answer) (normalize.Object, error)
	FetchAttemptResult(ctx context.Context, attemptID string) (normalize.Object, error)
	RecordLeave(ctx context.Context, attemptID string, event model.LeaveEvent) error
}

// TimerFeed streams server timer snapshots for an attempt until ctx is done.
type TimerFeed interface {
	WatchTimer(ctx context.Context, attemptID string) (<-chan normalize.Object, error)
}

// StartedAttempt is the service's answer to a start request.
type StartedAttempt struct {
	AttemptID     string
	AttemptNumber int
	Questions     []model.Question
	SavedAnswers  model.AnswerSet
	// Raw is the full start response, consulted for pass score and retry info.
	Raw normalize.Object
}

var (
	ErrClosed            = errors.New("attempt: controller closed")
	ErrBusy              = errors.New("attempt: another operation is in progress")
	ErrNotSolving        = errors.New("attempt: no attempt is being solved")
	ErrNoAttemptsLeft    = errors.New("attempt: no attempts left for this course")
	ErrIncompleteAnswers = errors.New("attempt: every question needs an answer before submitting")
	ErrUnknownQuestion   = errors.New("attempt: unknown question")
	ErrInvalidChoice     = errors.New("attempt: choice out of range")
	ErrNoResult          = errors.New("attempt: no result to refresh")
	ErrStartCancelled    = errors.New("attempt: start cancelled")
)
