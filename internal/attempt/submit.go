package attempt

import (
	"context"
	"fmt"
	"time"

	"github.com/stemsi/exstem-attempt/internal/model"
	"github.com/stemsi/exstem-attempt/internal/normalize"
	"github.com/stemsi/exstem-attempt/internal/notify"
)

// Submit hands in the attempt. Every question must have an answer.
func (c *Controller) Submit(ctx context.Context) error {
	c.mu.Lock()
	r := c.att
	if r == nil || c.state != Solving {
		c.mu.Unlock()
		return ErrNotSolving
	}
	if missing := unanswered(r); missing > 0 {
		c.notes.Push(notify.Warning, "Answer every question",
			fmt.Sprintf("%d of %d questions have no answer yet.", missing, len(r.session.Questions)))
		c.mu.Unlock()
		return ErrIncompleteAnswers
	}
	c.state = ManualSubmitting
	c.mu.Unlock()

	// A failed flush is already reported; the submit carries every answer anyway.
	_ = c.save(ctx, r)
	return c.submit(ctx, r)
}

func unanswered(r *run) int {
	n := 0
	for _, q := range r.session.Questions {
		if _, ok := r.answers[q.ID]; !ok {
			n++
		}
	}
	return n
}

// submit is shared by the manual and the automatic path.
func (c *Controller) submit(ctx context.Context, r *run) error {
	c.mu.Lock()
	answers := r.answers.List(r.session.Questions)
	id, courseID := r.session.AttemptID, r.session.CourseID
	c.mu.Unlock()

	log := c.log.With().Str("attempt_id", id).Str("course_id", courseID).Logger()

	submitted, err := c.svc.SubmitAnswers(ctx, id, answers)
	if err != nil {
		log.Error().Err(err).Msg("Submit failed")
		c.mu.Lock()
		if c.att == r {
			c.notes.Push(notify.Warning, "Submission failed", notify.Describe(err))
			c.endAttemptLocked(r)
			c.state = Dashboard
		}
		c.mu.Unlock()
		return fmt.Errorf("submit answers: %w", err)
	}

	fetched, fetchErr := c.svc.FetchAttemptResult(ctx, id)
	if fetchErr != nil {
		log.Warn().Err(fetchErr).Msg("Result fetch failed, deriving from submit response")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.mergeMetaLocked(courseID, submitted)
	var (
		res model.AttemptResult
		ok  bool
	)
	if fetchErr == nil {
		c.mergeMetaLocked(courseID, fetched)
		res, ok = normalize.Result(fetched)
	}
	if !ok {
		res, _ = normalize.Result(submitted)
		res.Derived = true
	}
	res = c.completeResultLocked(courseID, id, res)

	if c.att != r {
		return nil
	}
	c.endAttemptLocked(r)
	c.state = Result
	c.result = &res
	c.resultCourse = courseID
	c.resultUnavailable = !ok
	if ok {
		c.notes.Push(notify.Success, "Attempt submitted", "Score: "+res.FormatScore())
	} else {
		c.notes.Push(notify.Warning, "Result unavailable", "Your answers were submitted. Retry to load the result.")
	}
	log.Info().Str("score", res.FormatScore()).Bool("derived", res.Derived).Msg("Attempt submitted")
	return nil
}

// RetryResult fetches the result of the attempt shown as unavailable.
func (c *Controller) RetryResult(ctx context.Context) error {
	c.mu.Lock()
	if c.state != Result || c.result == nil {
		c.mu.Unlock()
		return ErrNoResult
	}
	id, courseID := c.result.AttemptID, c.resultCourse
	c.mu.Unlock()

	obj, err := c.svc.FetchAttemptResult(ctx, id)
	res, ok := model.AttemptResult{}, false
	if err == nil {
		res, ok = normalize.Result(obj)
	}
	if !ok {
		c.notes.Push(notify.Warning, "Result still unavailable", notify.Describe(err))
		if err != nil {
			return fmt.Errorf("fetch result: %w", err)
		}
		return ErrNoResult
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.mergeMetaLocked(courseID, obj)
	res = c.completeResultLocked(courseID, id, res)
	if c.state == Result && c.result != nil && c.result.AttemptID == id {
		c.result = &res
		c.resultUnavailable = false
	}
	return nil
}

func (c *Controller) mergeMetaLocked(courseID string, obj normalize.Object) {
	c.meta[courseID] = c.meta[courseID].merge(normalize.PassScore(obj), normalize.Retry(obj))
}

// completeResultLocked fills what the response left out from the course
// metadata and caches the result.
func (c *Controller) completeResultLocked(courseID, attemptID string, res model.AttemptResult) model.AttemptResult {
	meta := c.meta[courseID]
	if res.AttemptID == "" {
		res.AttemptID = attemptID
	}
	if res.SubmittedAt.IsZero() {
		res.SubmittedAt = time.Now()
	}
	if meta.PassScore != nil {
		v := *meta.PassScore
		res.PassScore = &v
	}
	res.Retry = meta.Retry
	if !res.Passed.Known() && res.Score != nil {
		threshold := c.opts.DefaultPassScore
		if res.PassScore != nil {
			threshold = *res.PassScore
		}
		res.Passed = model.TristateOf(*res.Score >= threshold)
	}
	c.results[attemptID] = res
	return res
}
