package normalize

import (
	"strings"

	"github.com/stemsi/exstem-attempt/internal/model"
)

var (
	top        = []string{}
	nestResult = []string{"result"}
)

// ─── Pass score ────────────────────────────────────────────────────────────

var passScoreRules = table(
	[][]string{top, nestResult, {"course"}, {"education"}},
	[]string{"passScore", "pass_score", "passingScore", "passing_score", "passMark", "pass_mark", "minScore", "min_score"},
	asPassScore,
)

// PassScore returns the passing threshold, nil when absent or out of [0, 1000].
func PassScore(obj Object) *float64 {
	if v, ok := first(obj, passScoreRules); ok {
		return &v
	}
	return nil
}

// ─── Retry info ────────────────────────────────────────────────────────────

var retryLocations = [][]string{top, {"retryInfo"}, {"retry_info"}, nestResult}

var (
	canRetryRules = table(retryLocations,
		[]string{"canRetry", "can_retry", "retryable", "isRetryable", "retry_allowed"}, asBool)
	remainingAttemptsRules = table(retryLocations,
		[]string{"remainingAttempts", "remaining_attempts", "attemptsLeft", "attempts_left"}, asCount)
	maxAttemptsRules = table(retryLocations,
		[]string{"maxAttempts", "max_attempts", "attemptLimit", "attempt_limit"}, asCount)
	usedAttemptsRules = table(retryLocations,
		[]string{"usedAttempts", "used_attempts", "attemptCount", "attempt_count"}, asCount)
)

// Retry extracts retry eligibility. Remaining attempts are derived from max
// and used when not given, and eligibility from remaining attempts.
func Retry(obj Object) model.RetryInfo {
	var info model.RetryInfo
	if v, ok := first(obj, remainingAttemptsRules); ok {
		info.RemainingAttempts = &v
	}
	if v, ok := first(obj, maxAttemptsRules); ok {
		info.MaxAttempts = &v
	}
	if v, ok := first(obj, usedAttemptsRules); ok {
		info.UsedAttempts = &v
	}
	if info.RemainingAttempts == nil && info.MaxAttempts != nil && info.UsedAttempts != nil {
		left := max(*info.MaxAttempts-*info.UsedAttempts, 0)
		info.RemainingAttempts = &left
	}

	if v, ok := first(obj, canRetryRules); ok {
		info.CanRetry = model.TristateOf(v)
	} else if info.RemainingAttempts != nil {
		info.CanRetry = model.TristateOf(*info.RemainingAttempts > 0)
	}
	return info
}

// ─── Attempt identity ──────────────────────────────────────────────────────

var attemptNumberRules = table(
	[][]string{top, nestResult, {"attempt"}},
	[]string{"attemptNumber", "attempt_number", "attemptNo", "attempt_no"},
	asOrdinal,
)

// AttemptNumber returns the 1-based ordinal of the attempt, 0 when unknown.
func AttemptNumber(obj Object) int {
	v, _ := first(obj, attemptNumberRules)
	return v
}

var attemptIDRules = table(
	[][]string{top, nestResult, {"attempt"}},
	[]string{"attemptId", "attempt_id", "id"},
	asID,
)

// AttemptID returns the attempt identifier, "" when absent.
func AttemptID(obj Object) string {
	v, _ := first(obj, attemptIDRules)
	return v
}

// ─── Saved answers ─────────────────────────────────────────────────────────

var savedAnswersRules = table(
	[][]string{top, {"attempt"}},
	[]string{"savedAnswers", "saved_answers", "answers"},
	asAnswerSet,
)

// SavedAnswers returns previously saved selections. Both an id-to-index map
// and a list of {question_id, choice_index} objects are understood.
func SavedAnswers(obj Object) model.AnswerSet {
	v, _ := first(obj, savedAnswersRules)
	return v
}

var (
	answerQuestionRules = table([][]string{top}, []string{"questionId", "question_id", "id"}, asID)
	answerChoiceRules   = table([][]string{top}, []string{"choiceIndex", "choice_index", "answer", "selected"}, asCount)
)

func asAnswerSet(v any) (model.AnswerSet, bool) {
	switch raw := v.(type) {
	case map[string]any:
		out := make(model.AnswerSet, len(raw))
		for id, c := range raw {
			if idx, ok := asCount(c); ok && strings.TrimSpace(id) != "" {
				out[id] = idx
			}
		}
		return out, true
	case []any:
		out := make(model.AnswerSet, len(raw))
		for _, item := range raw {
			entry, ok := item.(map[string]any)
			if !ok {
				continue
			}
			id, ok := first(entry, answerQuestionRules)
			if !ok {
				continue
			}
			if idx, ok := first(entry, answerChoiceRules); ok {
				out[id] = idx
			}
		}
		return out, true
	}
	return nil, false
}

// ─── Result ────────────────────────────────────────────────────────────────

var resultLocations = [][]string{top, nestResult}

var (
	scoreRules = table(resultLocations,
		[]string{"score", "finalScore", "final_score", "totalScore", "total_score"}, asFloat)
	passedRules = table(resultLocations,
		[]string{"passed", "isPassed", "is_passed", "pass"}, asBool)
	correctRules = table(resultLocations,
		[]string{"correct", "correctCount", "correct_count", "correctAnswers", "correct_answers"}, asCount)
	wrongRules = table(resultLocations,
		[]string{"wrong", "wrongCount", "wrong_count", "incorrect", "incorrect_count"}, asCount)
	totalRules = table(resultLocations,
		[]string{"total", "totalQuestions", "total_questions", "questionCount", "question_count"}, asCount)
	submittedAtRules = table(resultLocations,
		[]string{"submittedAt", "submitted_at", "finishedAt", "finished_at"}, asTime)
)

// Result extracts an attempt result. ok is false when the object carries no
// score, pass flag or answer counts at all.
func Result(obj Object) (model.AttemptResult, bool) {
	var (
		res   model.AttemptResult
		found bool
	)
	res.AttemptID = AttemptID(obj)

	if v, ok := first(obj, scoreRules); ok {
		res.Score = &v
		found = true
	}
	if v, ok := first(obj, passedRules); ok {
		res.Passed = model.TristateOf(v)
		found = true
	}
	if v, ok := first(obj, correctRules); ok {
		res.Correct = &v
		found = true
	}
	if v, ok := first(obj, totalRules); ok {
		res.Total = &v
		found = true
	}
	if v, ok := first(obj, wrongRules); ok {
		res.Wrong = &v
		found = true
	} else if res.Total != nil && res.Correct != nil && *res.Total >= *res.Correct {
		w := *res.Total - *res.Correct
		res.Wrong = &w
	}
	if v, ok := first(obj, submittedAtRules); ok {
		res.SubmittedAt = v
	}

	res.PassScore = PassScore(obj)
	res.Retry = Retry(obj)
	return res, found
}

// ─── Timer ─────────────────────────────────────────────────────────────────

var timerLocations = [][]string{top, {"timer"}}

var (
	timeLimitRules = table(timerLocations,
		[]string{"timeLimit", "time_limit", "timeLimitSeconds", "time_limit_seconds", "durationSeconds", "duration_seconds"}, asSeconds)
	remainingRules = table(timerLocations,
		[]string{"remainingSeconds", "remaining_seconds", "remainingTime", "remaining_time", "timeRemaining", "time_remaining"}, asSeconds)
	expiredRules = table(timerLocations,
		[]string{"isExpired", "is_expired", "expired"}, asBool)
)

// Timer extracts a countdown snapshot. ok is false when neither the limit
// nor the remaining time nor the expiry flag is present.
func Timer(obj Object) (model.TimerState, bool) {
	var (
		st    model.TimerState
		found bool
	)
	limit, hasLimit := first(obj, timeLimitRules)
	if hasLimit {
		st.TimeLimitSeconds = limit
		found = true
	}
	if v, ok := first(obj, remainingRules); ok {
		st.RemainingSeconds = v
		found = true
		// A remaining time without a limit still describes a timed attempt,
		// including one that has already run out.
		if !hasLimit {
			st.TimeLimitSeconds = max(v, 1)
		}
	}
	if v, ok := first(obj, expiredRules); ok {
		st.ServerExpired = v
		found = true
	}
	return st, found
}
