package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempt/internal/model"
	"github.com/stemsi/exstem-attempt/internal/repository"
)

// Attempt errors. Handlers map each to an API error code.
var (
	ErrCourseNotFound    = errors.New("course not found")
	ErrAttemptNotFound   = errors.New("attempt not found")
	ErrNoAttemptsLeft    = errors.New("no attempts left")
	ErrAttemptSubmitted  = errors.New("attempt already submitted")
	ErrResultNotReady    = errors.New("result not ready")
	ErrUnknownQuestion   = errors.New("unknown question")
	ErrInvalidChoice     = errors.New("invalid choice")
	ErrInvalidRemaining  = errors.New("remaining seconds must not be negative")
	ErrUnlimitedAttempts = errors.New("attempt has no time limit")
)

// NoAttemptsError carries the retry info of a refused start.
type NoAttemptsError struct {
	Retry RetryView
}

func (e *NoAttemptsError) Error() string { return ErrNoAttemptsLeft.Error() }

func (e *NoAttemptsError) Is(target error) bool { return target == ErrNoAttemptsLeft }

// LeaveQueue hands leave events to durable storage.
type LeaveQueue interface {
	Enqueue(ctx context.Context, rec model.LeaveRecord) error
}

// AttemptService implements the student attempt lifecycle: start or resume,
// the countdown, autosave, submission with grading, results and leave events.
type AttemptService struct {
	courses  repository.CourseRepository
	attempts repository.AttemptRepository
	leaves   LeaveQueue
	locks    *keyedMutex
	now      func() time.Time
	log      zerolog.Logger
}

// NewAttemptService creates a new AttemptService. leaves may be nil.
func NewAttemptService(
	courses repository.CourseRepository,
	attempts repository.AttemptRepository,
	leaves LeaveQueue,
	log zerolog.Logger,
) *AttemptService {
	return &AttemptService{
		courses:  courses,
		attempts: attempts,
		leaves:   leaves,
		locks:    newKeyedMutex(),
		now:      time.Now,
		log:      log.With().Str("component", "attempt_service").Logger(),
	}
}

func studentCourseKey(studentID int, courseID string) string {
	return "sc:" + strconv.Itoa(studentID) + ":" + courseID
}

func attemptLockKey(attemptID string) string {
	return "a:" + attemptID
}

// RetryInfo reports how many attempts the student has used in a course.
func (s *AttemptService) RetryInfo(ctx context.Context, studentID int, courseID string) (*RetryView, error) {
	course, err := s.course(ctx, courseID)
	if err != nil {
		return nil, err
	}
	list, err := s.attempts.ListByStudentCourse(ctx, studentID, courseID)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	v := retryView(course, list)
	return &v, nil
}

// retryView counts every created attempt as used. An in-progress attempt
// can always be resumed, so it keeps CanRetry true.
func retryView(course *model.Course, list []model.AttemptRecord) RetryView {
	v := RetryView{UsedAttempts: len(list), CanRetry: true}
	if course.MaxAttempts > 0 {
		limit := course.MaxAttempts
		remaining := limit - len(list)
		if remaining < 0 {
			remaining = 0
		}
		v.MaxAttempts = &limit
		v.RemainingAttempts = &remaining
		v.CanRetry = remaining > 0
	}
	for _, rec := range list {
		if rec.Status == model.AttemptStatusInProgress {
			v.CanRetry = true
		}
	}
	return v
}

// Start resumes the student's in-progress attempt or creates the next one.
// An in-progress attempt whose time ran out is graded first.
func (s *AttemptService) Start(ctx context.Context, studentID int, courseID string) (*StartView, error) {
	course, err := s.course(ctx, courseID)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(studentCourseKey(studentID, courseID))
	defer unlock()

	list, err := s.attempts.ListByStudentCourse(ctx, studentID, courseID)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}

	now := s.now()
	for i := range list {
		rec := &list[i]
		if rec.Status != model.AttemptStatusInProgress {
			continue
		}
		if rec.Deadline.IsZero() || rec.Remaining(now) > 0 {
			return s.startView(ctx, course, rec, list, true)
		}
		if _, err := s.finishExpired(ctx, course, rec); err != nil {
			return nil, err
		}
	}

	retry := retryView(course, list)
	if !retry.CanRetry {
		return nil, &NoAttemptsError{Retry: retry}
	}

	rec := &model.AttemptRecord{
		ID:            uuid.New().String(),
		CourseID:      course.ID,
		StudentID:     studentID,
		AttemptNumber: len(list) + 1,
		Status:        model.AttemptStatusInProgress,
		StartedAt:     now.UTC(),
		Total:         len(course.Questions),
	}
	if course.TimeLimitSeconds > 0 {
		rec.Deadline = rec.StartedAt.Add(time.Duration(course.TimeLimitSeconds) * time.Second)
	}
	if err := s.attempts.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("create attempt: %w", err)
	}
	list = append(list, *rec)

	s.log.Info().
		Str("attempt_id", rec.ID).
		Int("student_id", studentID).
		Str("course_id", courseID).
		Int("attempt_number", rec.AttemptNumber).
		Msg("Attempt started")

	return s.startView(ctx, course, rec, list, false)
}

func (s *AttemptService) startView(ctx context.Context, course *model.Course, rec *model.AttemptRecord, list []model.AttemptRecord, resumed bool) (*StartView, error) {
	saved, err := s.attempts.GetAnswers(ctx, rec.ID)
	if err != nil {
		return nil, fmt.Errorf("load answers: %w", err)
	}
	questions := course.StudentQuestions()
	for i := range questions {
		if choice, ok := saved[questions[i].ID]; ok {
			c := choice
			questions[i].SavedChoice = &c
		}
	}
	return &StartView{
		AttemptID:     rec.ID,
		AttemptNumber: rec.AttemptNumber,
		Resumed:       resumed,
		Questions:     questions,
		SavedAnswers:  saved.List(questions),
		PassScore:     course.PassScore,
		RetryInfo:     retryView(course, list),
	}, nil
}

// Timer returns the attempt's countdown.
func (s *AttemptService) Timer(ctx context.Context, studentID int, attemptID string) (*TimerView, error) {
	rec, course, err := s.owned(ctx, studentID, attemptID)
	if err != nil {
		return nil, err
	}
	v := s.timerView(course, rec)
	return &v, nil
}

func (s *AttemptService) timerView(course *model.Course, rec *model.AttemptRecord) TimerView {
	v := TimerView{TimeLimitSeconds: course.TimeLimitSeconds}
	if rec.Deadline.IsZero() {
		return v
	}
	remaining := rec.Remaining(s.now())
	v.RemainingSeconds = &remaining
	v.IsExpired = remaining == 0
	return v
}

// PushTimer accepts the client's remaining seconds. The deadline only ever
// moves earlier.
func (s *AttemptService) PushTimer(ctx context.Context, studentID int, attemptID string, remainingSeconds int) (*TimerView, error) {
	if remainingSeconds < 0 {
		return nil, ErrInvalidRemaining
	}
	unlock := s.locks.Lock(attemptLockKey(attemptID))
	defer unlock()

	rec, course, err := s.owned(ctx, studentID, attemptID)
	if err != nil {
		return nil, err
	}
	if rec.Status != model.AttemptStatusInProgress {
		return nil, ErrAttemptSubmitted
	}
	if rec.Deadline.IsZero() {
		return nil, ErrUnlimitedAttempts
	}

	proposed := s.now().UTC().Add(time.Duration(remainingSeconds) * time.Second)
	if proposed.Before(rec.Deadline) {
		rec.Deadline = proposed
		if err := s.attempts.Update(ctx, rec); err != nil {
			return nil, fmt.Errorf("update deadline: %w", err)
		}
	}
	v := s.timerView(course, rec)
	return &v, nil
}

// SaveAnswers replaces the autosaved answers of an in-progress attempt.
func (s *AttemptService) SaveAnswers(ctx context.Context, studentID int, attemptID string, answers []model.Answer, elapsedSeconds *int) (*AckView, error) {
	unlock := s.locks.Lock(attemptLockKey(attemptID))
	defer unlock()

	rec, course, err := s.owned(ctx, studentID, attemptID)
	if err != nil {
		return nil, err
	}
	if rec.Status != model.AttemptStatusInProgress {
		return nil, ErrAttemptSubmitted
	}
	set, err := checkAnswers(course, answers)
	if err != nil {
		return nil, err
	}
	if err := s.attempts.SaveAnswers(ctx, attemptID, set); err != nil {
		return nil, fmt.Errorf("save answers: %w", err)
	}

	ev := s.log.Debug().Str("attempt_id", attemptID).Int("answers", len(set))
	if elapsedSeconds != nil {
		ev = ev.Int("elapsed_seconds", *elapsedSeconds)
	}
	ev.Msg("Answers saved")
	return &AckView{AttemptID: attemptID, Saved: len(set)}, nil
}

// Submit grades and closes an attempt. Submitting a submitted attempt
// returns the original acknowledgement.
func (s *AttemptService) Submit(ctx context.Context, studentID int, attemptID string, answers []model.Answer) (*SubmitView, error) {
	unlock := s.locks.Lock(attemptLockKey(attemptID))
	defer unlock()

	rec, course, err := s.owned(ctx, studentID, attemptID)
	if err != nil {
		return nil, err
	}
	if rec.Status == model.AttemptStatusSubmitted {
		return submitView(rec), nil
	}

	set, err := checkAnswers(course, answers)
	if err != nil {
		return nil, err
	}
	stored, err := s.attempts.GetAnswers(ctx, attemptID)
	if err != nil {
		return nil, fmt.Errorf("load answers: %w", err)
	}
	for q, choice := range set {
		stored[q] = choice
	}
	if err := s.attempts.SaveAnswers(ctx, attemptID, stored); err != nil {
		return nil, fmt.Errorf("save answers: %w", err)
	}
	if err := s.grade(ctx, course, rec, stored); err != nil {
		return nil, err
	}
	return submitView(rec), nil
}

// finishExpired grades an attempt whose deadline passed with what was saved.
func (s *AttemptService) finishExpired(ctx context.Context, course *model.Course, rec *model.AttemptRecord) (*model.AttemptRecord, error) {
	unlock := s.locks.Lock(attemptLockKey(rec.ID))
	defer unlock()

	stored, err := s.attempts.GetAnswers(ctx, rec.ID)
	if err != nil {
		return nil, fmt.Errorf("load answers: %w", err)
	}
	if err := s.grade(ctx, course, rec, stored); err != nil {
		return nil, err
	}
	s.log.Info().Str("attempt_id", rec.ID).Msg("Expired attempt graded")
	return rec, nil
}

func (s *AttemptService) grade(ctx context.Context, course *model.Course, rec *model.AttemptRecord, answers model.AnswerSet) error {
	correct := 0
	for _, q := range course.Questions {
		if choice, ok := answers[q.ID]; ok && choice == q.CorrectIndex {
			correct++
		}
	}
	total := len(course.Questions)
	score := 0.0
	if total > 0 {
		score = math.Round(float64(correct)/float64(total)*10000) / 100
	}

	now := s.now().UTC()
	rec.Status = model.AttemptStatusSubmitted
	rec.SubmittedAt = &now
	rec.Score = &score
	rec.Correct = correct
	rec.Total = total
	if err := s.attempts.Update(ctx, rec); err != nil {
		return fmt.Errorf("store result: %w", err)
	}

	s.log.Info().
		Str("attempt_id", rec.ID).
		Int("correct", correct).
		Int("total", total).
		Float64("score", score).
		Msg("Attempt graded")
	return nil
}

func submitView(rec *model.AttemptRecord) *SubmitView {
	v := &SubmitView{AttemptID: rec.ID, Status: rec.Status}
	if rec.SubmittedAt != nil {
		v.SubmittedAt = *rec.SubmittedAt
	}
	return v
}

// Result returns the graded outcome of a submitted attempt.
func (s *AttemptService) Result(ctx context.Context, studentID int, attemptID string) (*ResultView, error) {
	rec, course, err := s.owned(ctx, studentID, attemptID)
	if err != nil {
		return nil, err
	}
	if rec.Status != model.AttemptStatusSubmitted || rec.Score == nil {
		return nil, ErrResultNotReady
	}
	list, err := s.attempts.ListByStudentCourse(ctx, studentID, rec.CourseID)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}

	v := &ResultView{
		AttemptID:     rec.ID,
		AttemptNumber: rec.AttemptNumber,
		Score:         *rec.Score,
		Passed:        *rec.Score >= course.PassScore,
		CorrectCount:  rec.Correct,
		WrongCount:    rec.Total - rec.Correct,
		TotalCount:    rec.Total,
		PassScore:     course.PassScore,
		RetryInfo:     retryView(course, list),
	}
	if rec.SubmittedAt != nil {
		v.SubmittedAt = *rec.SubmittedAt
	}
	return v, nil
}

// RecordLeave stores a leave event and queues it for persistence.
func (s *AttemptService) RecordLeave(ctx context.Context, studentID int, attemptID string, req model.RecordLeaveRequest) (*AckView, error) {
	if _, _, err := s.owned(ctx, studentID, attemptID); err != nil {
		return nil, err
	}
	rec := model.LeaveRecord{
		AttemptID:    attemptID,
		StudentID:    studentID,
		Reason:       req.Reason,
		Timestamp:    req.Timestamp.UTC(),
		LeaveSeconds: req.LeaveSeconds,
	}
	if err := s.attempts.AppendLeave(ctx, rec); err != nil {
		return nil, fmt.Errorf("record leave: %w", err)
	}
	if s.leaves != nil {
		// The attempt copy is already stored; a queue failure only delays persistence.
		if err := s.leaves.Enqueue(ctx, rec); err != nil {
			s.log.Warn().Err(err).Str("attempt_id", attemptID).Msg("Failed to queue leave event")
		}
	}
	s.log.Info().Str("attempt_id", attemptID).Str("reason", string(req.Reason)).Msg("Leave recorded")
	return &AckView{AttemptID: attemptID}, nil
}

func (s *AttemptService) course(ctx context.Context, courseID string) (*model.Course, error) {
	course, err := s.courses.GetByID(ctx, courseID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrCourseNotFound
		}
		return nil, fmt.Errorf("get course: %w", err)
	}
	return course, nil
}

// owned loads an attempt of the student. Other students' attempts look missing.
func (s *AttemptService) owned(ctx context.Context, studentID int, attemptID string) (*model.AttemptRecord, *model.Course, error) {
	rec, err := s.attempts.Get(ctx, attemptID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, ErrAttemptNotFound
		}
		return nil, nil, fmt.Errorf("get attempt: %w", err)
	}
	if rec.StudentID != studentID {
		return nil, nil, ErrAttemptNotFound
	}
	course, err := s.course(ctx, rec.CourseID)
	if err != nil {
		return nil, nil, err
	}
	return rec, course, nil
}

func checkAnswers(course *model.Course, answers []model.Answer) (model.AnswerSet, error) {
	byID := make(map[string]model.CourseQuestion, len(course.Questions))
	for _, q := range course.Questions {
		byID[q.ID] = q
	}
	for _, a := range answers {
		q, ok := byID[a.QuestionID]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownQuestion, a.QuestionID)
		}
		if !q.ValidChoice(a.ChoiceIndex) {
			return nil, fmt.Errorf("%w: %d for %s", ErrInvalidChoice, a.ChoiceIndex, a.QuestionID)
		}
	}
	return model.AnswersFromList(answers), nil
}
