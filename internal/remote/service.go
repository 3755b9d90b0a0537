package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/stemsi/exstem-attempt/internal/attempt"
	"github.com/stemsi/exstem-attempt/internal/model"
	"github.com/stemsi/exstem-attempt/internal/normalize"
)

var _ attempt.Service = (*Client)(nil)

func coursePath(courseID, suffix string) string {
	return "/student/courses/" + url.PathEscape(courseID) + suffix
}

func attemptPath(attemptID, suffix string) string {
	return "/student/attempts/" + url.PathEscape(attemptID) + suffix
}

func (c *Client) FetchRetryInfo(ctx context.Context, courseID string) (normalize.Object, error) {
	raw, err := c.call(ctx, "fetch retry info", http.MethodGet, coursePath(courseID, "/retry-info"), nil, c.timeouts.Read, true)
	if err != nil {
		return nil, err
	}
	return decodeObject(raw), nil
}

func (c *Client) StartAttempt(ctx context.Context, courseID string) (*attempt.StartedAttempt, error) {
	raw, err := c.call(ctx, "start attempt", http.MethodPost, coursePath(courseID, "/attempts"), nil, c.timeouts.Write, true)
	if err != nil {
		return nil, err
	}

	var typed struct {
		Questions []model.Question `json:"questions"`
	}
	if err := json.Unmarshal(raw, &typed); err != nil {
		return nil, fmt.Errorf("start attempt: decode questions: %w", err)
	}
	obj := decodeObject(raw)
	started := &attempt.StartedAttempt{
		AttemptID:     normalize.AttemptID(obj),
		AttemptNumber: normalize.AttemptNumber(obj),
		Questions:     typed.Questions,
		SavedAnswers:  normalize.SavedAnswers(obj),
		Raw:           obj,
	}
	if started.AttemptID == "" {
		return nil, fmt.Errorf("start attempt: response carries no attempt id")
	}
	return started, nil
}

func (c *Client) FetchTimer(ctx context.Context, attemptID string) (normalize.Object, error) {
	raw, err := c.call(ctx, "fetch timer", http.MethodGet, attemptPath(attemptID, "/timer"), nil, c.timeouts.Read, true)
	if err != nil {
		return nil, err
	}
	return decodeObject(raw), nil
}

func (c *Client) PushTimer(ctx context.Context, attemptID string, remainingSeconds int) error {
	_, err := c.call(ctx, "push timer", http.MethodPut, attemptPath(attemptID, "/timer"),
		model.PushTimerRequest{RemainingSeconds: &remainingSeconds}, c.timeouts.Write, true)
	return err
}

func (c *Client) SaveAnswers(ctx context.Context, attemptID string, answers []model.Answer, elapsedSeconds *int) error {
	if answers == nil {
		answers = []model.Answer{}
	}
	_, err := c.call(ctx, "save answers", http.MethodPut, attemptPath(attemptID, "/answers"),
		model.SaveAnswersRequest{Answers: answers, ElapsedSeconds: elapsedSeconds}, c.timeouts.Write, true)
	return err
}

func (c *Client) SubmitAnswers(ctx context.Context, attemptID string, answers []model.Answer) (normalize.Object, error) {
	if answers == nil {
		answers = []model.Answer{}
	}
	raw, err := c.call(ctx, "submit answers", http.MethodPost, attemptPath(attemptID, "/submit"),
		model.SubmitAnswersRequest{Answers: answers}, c.timeouts.Submit, true)
	if err != nil {
		return nil, err
	}
	return decodeObject(raw), nil
}

func (c *Client) FetchAttemptResult(ctx context.Context, attemptID string) (normalize.Object, error) {
	raw, err := c.call(ctx, "fetch result", http.MethodGet, attemptPath(attemptID, "/result"), nil, c.timeouts.Read, true)
	if err != nil {
		return nil, err
	}
	return decodeObject(raw), nil
}

func (c *Client) RecordLeave(ctx context.Context, attemptID string, event model.LeaveEvent) error {
	_, err := c.call(ctx, "record leave", http.MethodPost, attemptPath(attemptID, "/leave"),
		model.RecordLeaveRequest{Timestamp: event.Timestamp, Reason: event.Reason, LeaveSeconds: event.LeaveSeconds},
		c.timeouts.Write, true)
	return err
}
