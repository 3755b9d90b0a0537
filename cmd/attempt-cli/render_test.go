package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/stemsi/exstem-attempt/internal/attempt"
	"github.com/stemsi/exstem-attempt/internal/model"
)

func TestFormatClock(t *testing.T) {
	assert.Equal(t, "no limit", formatClock(model.TimerState{}))
	assert.Equal(t, "09:05", formatClock(model.TimerState{TimeLimitSeconds: 600, RemainingSeconds: 545}))
	assert.Equal(t, "1:01:01", formatClock(model.TimerState{TimeLimitSeconds: 7200, RemainingSeconds: 3661}))
}

func TestRenderSessionMarksSelection(t *testing.T) {
	var buf bytes.Buffer
	renderView(&buf, attempt.View{
		State: attempt.Solving,
		Session: &model.AttemptSession{
			AttemptNumber: 1,
			CourseID:      "go-basics",
			Questions:     []model.Question{{ID: "q1", Prompt: "Pick", Choices: []string{"one", "two"}}},
		},
		Timer:      model.TimerState{TimeLimitSeconds: 60, RemainingSeconds: 30},
		Answers:    model.AnswerSet{"q1": 1},
		SaveStatus: attempt.SaveSaved,
	})
	out := buf.String()
	assert.Contains(t, out, "answered 1/1")
	assert.Contains(t, out, "[ ] a) one")
	assert.Contains(t, out, "[x] b) two")
}

func TestRenderResult(t *testing.T) {
	score := 75.0
	correct, total := 3, 4
	var buf bytes.Buffer
	renderView(&buf, attempt.View{
		State: attempt.Result,
		Result: &model.AttemptResult{
			Score: &score, Passed: model.True, Correct: &correct, Total: &total,
			Retry: model.RetryInfo{CanRetry: model.False},
		},
	})
	out := buf.String()
	assert.Contains(t, out, "Score 75  PASSED")
	assert.Contains(t, out, "total 4")
	assert.Contains(t, out, "wrong -")
	assert.Contains(t, out, "No attempts left.")
}
