package service

import (
	"time"

	"github.com/stemsi/exstem-attempt/internal/model"
)

// RetryView tells a student whether another attempt may be started.
// RemainingAttempts and MaxAttempts are omitted for unlimited courses.
type RetryView struct {
	CanRetry          bool `json:"can_retry"`
	MaxAttempts       *int `json:"max_attempts,omitempty"`
	UsedAttempts      int  `json:"used_attempts"`
	RemainingAttempts *int `json:"remaining_attempts,omitempty"`
}

// StartView is returned when an attempt is created or resumed.
type StartView struct {
	AttemptID     string           `json:"attempt_id"`
	AttemptNumber int              `json:"attempt_number"`
	Resumed       bool             `json:"resumed"`
	Questions     []model.Question `json:"questions"`
	SavedAnswers  []model.Answer   `json:"saved_answers"`
	PassScore     float64          `json:"pass_score"`
	RetryInfo     RetryView        `json:"retry_info"`
}

// TimerView is the authoritative countdown. RemainingSeconds is omitted for
// unlimited attempts.
type TimerView struct {
	TimeLimitSeconds int  `json:"time_limit_seconds"`
	RemainingSeconds *int `json:"remaining_seconds,omitempty"`
	IsExpired        bool `json:"is_expired"`
}

// SubmitView acknowledges a submission.
type SubmitView struct {
	AttemptID   string              `json:"attempt_id"`
	Status      model.AttemptStatus `json:"status"`
	SubmittedAt time.Time           `json:"submitted_at"`
}

// ResultView is the graded outcome of a submitted attempt.
type ResultView struct {
	AttemptID     string    `json:"attempt_id"`
	AttemptNumber int       `json:"attempt_number"`
	Score         float64   `json:"score"`
	Passed        bool      `json:"passed"`
	CorrectCount  int       `json:"correct_count"`
	WrongCount    int       `json:"wrong_count"`
	TotalCount    int       `json:"total_questions"`
	PassScore     float64   `json:"pass_score"`
	SubmittedAt   time.Time `json:"submitted_at"`
	RetryInfo     RetryView `json:"retry_info"`
}

// AckView acknowledges a write that returns nothing else.
type AckView struct {
	AttemptID string `json:"attempt_id"`
	Saved     int    `json:"saved,omitempty"`
}
