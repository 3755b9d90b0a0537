package model

import (
	"strconv"
	"time"
)

// AttemptResult is the outcome of one submitted attempt.
type AttemptResult struct {
	AttemptID   string    `json:"attempt_id"`
	Score       *float64  `json:"score,omitempty"`
	Passed      Tristate  `json:"passed"`
	Correct     *int      `json:"correct,omitempty"`
	Wrong       *int      `json:"wrong,omitempty"`
	Total       *int      `json:"total,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
	Retry       RetryInfo `json:"retry_info"`
	PassScore   *float64  `json:"pass_score,omitempty"`
	// Derived is set when the result was built locally instead of fetched.
	Derived bool `json:"derived"`
}

// FormatScore renders the score for display, "-" when unknown.
func (r AttemptResult) FormatScore() string {
	if r.Score == nil {
		return "-"
	}
	return strconv.FormatFloat(*r.Score, 'f', -1, 64)
}

// FormatCount renders a count for display, "-" when unknown.
func FormatCount(v *int) string {
	if v == nil {
		return "-"
	}
	return strconv.Itoa(*v)
}
