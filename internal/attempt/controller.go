package attempt

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-attempt/internal/model"
	"github.com/stemsi/exstem-attempt/internal/normalize"
	"github.com/stemsi/exstem-attempt/internal/notify"
)

// Controller owns the attempt state machine for a single student.
//
// All state is guarded by mu and no remote call is made while mu is held.
// Work scheduled for an attempt (ticks, debounced saves, reconciles, pushes,
// auto-submit) captures its *run and turns into a no-op once that run is no
// longer current.
type Controller struct {
	svc   Service
	notes *notify.Notifier
	opts  Options
	log   zerolog.Logger

	base       context.Context
	cancelBase context.CancelFunc
	bg         sync.WaitGroup
	// detached tracks leave sequences, which outlive their attempt.
	detached sync.WaitGroup

	mu                sync.Mutex
	closed            bool
	state             State
	startGen          uint64
	att               *run
	result            *model.AttemptResult
	resultCourse      string
	resultUnavailable bool
	results           map[string]model.AttemptResult
	meta              map[string]CourseMeta
}

// run is everything owned by one attempt. A fresh run is created on each
// Start, which resets every latch and in-flight guard.
type run struct {
	ctx    context.Context
	cancel context.CancelFunc

	session model.AttemptSession
	timer   model.TimerState
	answers model.AnswerSet

	autoSubmitted bool
	reconciling   bool
	pushing       bool
	left          map[model.LeaveReason]bool

	saveTimer  *time.Timer
	saveStatus SaveStatus

	// saveMu serializes saves; lastSaved is only touched while holding it.
	saveMu    sync.Mutex
	lastSaved string
}

// New creates a Controller in the Dashboard state.
func New(svc Service, notes *notify.Notifier, opts Options, log zerolog.Logger) *Controller {
	base, cancel := context.WithCancel(context.Background())
	return &Controller{
		svc:        svc,
		notes:      notes,
		opts:       opts.withDefaults(),
		log:        log.With().Str("component", "attempt").Logger(),
		base:       base,
		cancelBase: cancel,
		state:      Dashboard,
		results:    make(map[string]model.AttemptResult),
		meta:       make(map[string]CourseMeta),
	}
}

// Notifications returns the notifier the controller reports to.
func (c *Controller) Notifications() *notify.Notifier { return c.notes }

// Start begins a new attempt for courseID and enters Solving.
func (c *Controller) Start(ctx context.Context, courseID string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	switch c.state {
	case Dashboard, Result:
	default:
		c.mu.Unlock()
		return ErrBusy
	}
	c.state = Starting
	c.result = nil
	c.resultUnavailable = false
	c.startGen++
	gen := c.startGen
	c.mu.Unlock()

	log := c.log.With().Str("course_id", courseID).Logger()

	// Eligibility is checked before a server-side attempt is created.
	if obj, err := c.svc.FetchRetryInfo(ctx, courseID); err != nil {
		log.Warn().Err(err).Msg("Retry info unavailable, starting anyway")
	} else {
		info := normalize.Retry(obj)
		c.mu.Lock()
		c.meta[courseID] = c.meta[courseID].merge(normalize.PassScore(obj), info)
		c.mu.Unlock()
		if info.CanRetry == model.False {
			c.failStart(gen, notify.Warning, "No attempts left", "You have used every attempt for this course.")
			return ErrNoAttemptsLeft
		}
	}
	if !c.startCurrent(gen) {
		return ErrStartCancelled
	}

	started, err := c.svc.StartAttempt(ctx, courseID)
	if err != nil {
		log.Error().Err(err).Msg("Failed to start attempt")
		c.failStart(gen, notify.Warning, "Could not start the attempt", notify.Describe(err))
		return fmt.Errorf("start attempt: %w", err)
	}

	session := model.AttemptSession{
		AttemptID:     started.AttemptID,
		AttemptNumber: started.AttemptNumber,
		CourseID:      courseID,
		Questions:     append([]model.Question(nil), started.Questions...),
	}
	if session.AttemptID == "" {
		session.AttemptID = normalize.AttemptID(started.Raw)
	}
	if session.AttemptNumber == 0 {
		session.AttemptNumber = normalize.AttemptNumber(started.Raw)
	}
	saved := started.SavedAnswers
	if saved == nil {
		saved = normalize.SavedAnswers(started.Raw)
	}
	answers := restoreAnswers(session.Questions, saved)

	timer, ok := model.TimerState{}, false
	if obj, err := c.svc.FetchTimer(ctx, session.AttemptID); err != nil {
		log.Warn().Err(err).Str("attempt_id", session.AttemptID).Msg("Timer unavailable, using fallback duration")
	} else {
		timer, ok = normalize.Timer(obj)
	}
	if !ok {
		secs := int(c.opts.FallbackDuration / time.Second)
		timer = model.TimerState{TimeLimitSeconds: secs, RemainingSeconds: secs}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.startGen != gen || c.state != Starting {
		log.Info().Str("attempt_id", session.AttemptID).Msg("Start abandoned before solving")
		return ErrStartCancelled
	}

	meta := c.meta[courseID].merge(normalize.PassScore(started.Raw), normalize.Retry(started.Raw))
	c.meta[courseID] = meta
	session.PassScore = meta.PassScore
	session.Retry = meta.Retry

	ctxRun, cancel := context.WithCancel(c.base)
	r := &run{
		ctx:        ctxRun,
		cancel:     cancel,
		session:    session,
		timer:      timer,
		answers:    answers,
		left:       make(map[model.LeaveReason]bool),
		saveStatus: SaveIdle,
		// The service already holds the restored answers.
		lastSaved: model.Fingerprint(answers.List(session.Questions)),
	}
	c.att = r
	c.state = Solving

	c.bg.Add(1)
	go c.loop(r)
	if c.opts.Feed != nil {
		c.bg.Add(1)
		go c.watchFeed(r)
	}

	log.Info().
		Str("attempt_id", session.AttemptID).
		Int("attempt_number", session.AttemptNumber).
		Int("questions", len(session.Questions)).
		Int("remaining_seconds", timer.RemainingSeconds).
		Msg("Attempt started")

	c.checkExpiryLocked(r)
	return nil
}

// restoreAnswers seeds an empty selection with the saved answers that still
// match a question and one of its choices.
func restoreAnswers(questions []model.Question, saved model.AnswerSet) model.AnswerSet {
	out := make(model.AnswerSet, len(questions))
	for _, q := range questions {
		if q.SavedChoice != nil && q.ValidChoice(*q.SavedChoice) {
			out[q.ID] = *q.SavedChoice
		}
		if idx, ok := saved[q.ID]; ok && q.ValidChoice(idx) {
			out[q.ID] = idx
		}
	}
	return out
}

func (c *Controller) startCurrent(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed && c.startGen == gen && c.state == Starting
}

func (c *Controller) failStart(gen uint64, kind notify.Kind, title, desc string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.startGen != gen || c.state != Starting {
		return
	}
	c.state = Dashboard
	c.notes.Push(kind, title, desc)
}

// SelectAnswer records a choice immediately and schedules a debounced save.
func (c *Controller) SelectAnswer(questionID string, choice int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	r := c.att
	if r == nil || c.state != Solving {
		return ErrNotSolving
	}
	q, ok := r.session.Question(questionID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownQuestion, questionID)
	}
	if !q.ValidChoice(choice) {
		return fmt.Errorf("%w: %d", ErrInvalidChoice, choice)
	}

	r.answers[questionID] = choice
	if r.saveTimer != nil {
		r.saveTimer.Stop()
	}
	r.saveTimer = time.AfterFunc(c.opts.SaveDebounce, func() {
		c.mu.Lock()
		if c.closed || c.att != r {
			c.mu.Unlock()
			return
		}
		c.bg.Add(1)
		c.mu.Unlock()
		defer c.bg.Done()
		c.save(r.ctx, r)
	})
	return nil
}

// BackToDashboard leaves the current attempt or result view. An attempt
// being solved is recorded as left with reason back.
func (c *Controller) BackToDashboard() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case Solving:
		c.leaveLocked(c.att, model.LeaveBack)
		c.endAttemptLocked(c.att)
	case Starting:
		c.startGen++
	case AutoSubmitting, ManualSubmitting:
		return ErrBusy
	}
	c.state = Dashboard
	c.result = nil
	c.resultUnavailable = false
	return nil
}

// Close tears the controller down. An attempt being solved is recorded as
// left with reason close. Close waits for the attempt's own loops and
// callbacks but not for leave sequences still on the wire; see Drain.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	if c.state == Solving && c.att != nil {
		c.leaveLocked(c.att, model.LeaveClose)
	}
	if c.att != nil {
		c.endAttemptLocked(c.att)
	}
	c.state = Dashboard
	c.mu.Unlock()

	c.bg.Wait()
	c.cancelBase()
}

// Drain waits for outstanding leave sequences, each bounded by
// BestEffortTimeout, or until ctx is done. A process about to exit calls it
// after Close so the last leave is not cut off.
func (c *Controller) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.detached.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot returns the current view.
func (c *Controller) Snapshot() View {
	c.mu.Lock()
	defer c.mu.Unlock()

	v := View{
		State:             c.state,
		SaveStatus:        SaveIdle,
		ResultUnavailable: c.resultUnavailable,
	}
	if r := c.att; r != nil {
		s := r.session
		s.Questions = append([]model.Question(nil), r.session.Questions...)
		v.Session = &s
		v.Timer = r.timer
		v.Answers = r.answers.Clone()
		v.SaveStatus = r.saveStatus
	}
	if c.result != nil {
		res := *c.result
		v.Result = &res
	}
	return v
}

// CourseMeta returns what is known about the course's pass score and retries.
func (c *Controller) CourseMeta(courseID string) CourseMeta {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.meta[courseID]
}

// CachedResult returns a previously obtained result.
func (c *Controller) CachedResult(attemptID string) (model.AttemptResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	res, ok := c.results[attemptID]
	return res, ok
}

// endAttemptLocked drops all solving state of r and cancels its context.
func (c *Controller) endAttemptLocked(r *run) {
	if r.saveTimer != nil {
		r.saveTimer.Stop()
		r.saveTimer = nil
	}
	r.cancel()
	if c.att == r {
		c.att = nil
	}
}
