package attempt

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-attempt/internal/model"
	"github.com/stemsi/exstem-attempt/internal/normalize"
	"github.com/stemsi/exstem-attempt/internal/notify"
)

var errOffline = errors.New("network unreachable")

// fakeService is an in-memory Service recording every call.
type fakeService struct {
	mu sync.Mutex

	retryInfo normalize.Object
	retryErr  error

	started    *StartedAttempt
	startErr   error
	startCalls int

	timer    normalize.Object
	timerErr error

	pushes  []int
	pushErr error

	saves   [][]model.Answer
	saveErr error

	submits    [][]model.Answer
	submitResp normalize.Object
	submitErr  error

	result      normalize.Object
	resultErr   error
	resultCalls int

	leaves      []model.LeaveEvent
	stallLeaves bool

	// calls lists save and submit calls in the order they arrived.
	calls []string
}

func threeQuestions() []model.Question {
	qs := make([]model.Question, 0, 3)
	for i, id := range []string{"q1", "q2", "q3"} {
		qs = append(qs, model.Question{
			ID:      id,
			Order:   i + 1,
			Prompt:  "Question " + id,
			Choices: []string{"A", "B", "C"},
		})
	}
	return qs
}

func newFake() *fakeService {
	return &fakeService{
		retryInfo: normalize.Object{"can_retry": true, "max_attempts": 3, "used_attempts": 0},
		started: &StartedAttempt{
			AttemptID:     "a-1",
			AttemptNumber: 1,
			Questions:     threeQuestions(),
		},
		timer:      normalize.Object{"time_limit_seconds": 600, "remaining_seconds": 600, "is_expired": false},
		submitResp: normalize.Object{"attempt_id": "a-1", "submitted_at": "2026-10-18T09:00:00Z"},
		result:     normalize.Object{"score": 100, "passed": true, "correct": 3, "total": 3},
	}
}

func (f *fakeService) set(fn func(f *fakeService)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeService) FetchRetryInfo(_ context.Context, _ string) (normalize.Object, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.retryInfo, f.retryErr
}

func (f *fakeService) StartAttempt(_ context.Context, _ string) (*StartedAttempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startCalls++
	if f.startErr != nil {
		return nil, f.startErr
	}
	s := *f.started
	return &s, nil
}

func (f *fakeService) FetchTimer(_ context.Context, _ string) (normalize.Object, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.timer, f.timerErr
}

func (f *fakeService) PushTimer(_ context.Context, _ string, remaining int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pushes = append(f.pushes, remaining)
	return f.pushErr
}

func (f *fakeService) SaveAnswers(_ context.Context, _ string, answers []model.Answer, _ *int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves = append(f.saves, answers)
	f.calls = append(f.calls, "save")
	return f.saveErr
}

func (f *fakeService) SubmitAnswers(_ context.Context, _ string, answers []model.Answer) (normalize.Object, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits = append(f.submits, answers)
	f.calls = append(f.calls, "submit")
	return f.submitResp, f.submitErr
}

func (f *fakeService) FetchAttemptResult(_ context.Context, _ string) (normalize.Object, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resultCalls++
	return f.result, f.resultErr
}

func (f *fakeService) RecordLeave(ctx context.Context, _ string, event model.LeaveEvent) error {
	f.mu.Lock()
	stall := f.stallLeaves
	f.mu.Unlock()
	if stall {
		<-ctx.Done()
		return ctx.Err()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.leaves = append(f.leaves, event)
	return nil
}

func (f *fakeService) saveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saves)
}

func (f *fakeService) lastSave() []model.Answer {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.saves) == 0 {
		return nil
	}
	return f.saves[len(f.saves)-1]
}

func (f *fakeService) submitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.submits)
}

func (f *fakeService) lastSubmit() []model.Answer {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.submits) == 0 {
		return nil
	}
	return f.submits[len(f.submits)-1]
}

func (f *fakeService) callOrder() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeService) pushCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pushes)
}

func (f *fakeService) leaveReasons() []model.LeaveReason {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.LeaveReason, 0, len(f.leaves))
	for _, e := range f.leaves {
		out = append(out, e.Reason)
	}
	return out
}

// quietOptions never ticks, reconciles or pushes on its own within a test.
func quietOptions() Options {
	return Options{
		TickInterval:      time.Hour,
		ReconcileInterval: time.Hour,
		PushInterval:      time.Hour,
		SaveDebounce:      30 * time.Millisecond,
		BestEffortTimeout: time.Second,
	}
}

func newController(t *testing.T, svc Service, opts Options) *Controller {
	t.Helper()
	notes := notify.New(0, zerolog.Nop())
	c := New(svc, notes, opts, zerolog.Nop())
	t.Cleanup(func() {
		c.Close()
		notes.Close()
	})
	return c
}

func hasNotification(c *Controller, title string) bool {
	for _, n := range c.Notifications().Active() {
		if n.Title == title {
			return true
		}
	}
	return false
}

func (c *Controller) currentState() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}
