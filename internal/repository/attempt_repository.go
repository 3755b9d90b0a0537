package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/stemsi/exstem-attempt/internal/model"
)

// AttemptRepository stores attempts, their autosaved answers and leave events.
type AttemptRepository interface {
	Create(ctx context.Context, rec *model.AttemptRecord) error
	Get(ctx context.Context, id string) (*model.AttemptRecord, error)
	Update(ctx context.Context, rec *model.AttemptRecord) error
	// ListByStudentCourse returns the attempts in attempt-number order.
	ListByStudentCourse(ctx context.Context, studentID int, courseID string) ([]model.AttemptRecord, error)
	// SaveAnswers replaces the stored answer set.
	SaveAnswers(ctx context.Context, attemptID string, answers model.AnswerSet) error
	GetAnswers(ctx context.Context, attemptID string) (model.AnswerSet, error)
	AppendLeave(ctx context.Context, rec model.LeaveRecord) error
	ListLeaves(ctx context.Context, attemptID string) ([]model.LeaveRecord, error)
}

// MemoryAttemptRepository keeps attempts in process memory.
type MemoryAttemptRepository struct {
	mu       sync.RWMutex
	attempts map[string]model.AttemptRecord
	answers  map[string]model.AnswerSet
	leaves   map[string][]model.LeaveRecord
}

// NewMemoryAttemptRepository creates an empty MemoryAttemptRepository.
func NewMemoryAttemptRepository() *MemoryAttemptRepository {
	return &MemoryAttemptRepository{
		attempts: make(map[string]model.AttemptRecord),
		answers:  make(map[string]model.AnswerSet),
		leaves:   make(map[string][]model.LeaveRecord),
	}
}

func (r *MemoryAttemptRepository) Create(_ context.Context, rec *model.AttemptRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts[rec.ID] = *rec
	return nil
}

func (r *MemoryAttemptRepository) Get(_ context.Context, id string) (*model.AttemptRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.attempts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &rec, nil
}

func (r *MemoryAttemptRepository) Update(_ context.Context, rec *model.AttemptRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.attempts[rec.ID]; !ok {
		return ErrNotFound
	}
	r.attempts[rec.ID] = *rec
	return nil
}

func (r *MemoryAttemptRepository) ListByStudentCourse(_ context.Context, studentID int, courseID string) ([]model.AttemptRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []model.AttemptRecord
	for _, rec := range r.attempts {
		if rec.StudentID == studentID && rec.CourseID == courseID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AttemptNumber < out[j].AttemptNumber })
	return out, nil
}

func (r *MemoryAttemptRepository) SaveAnswers(_ context.Context, attemptID string, answers model.AnswerSet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.answers[attemptID] = answers.Clone()
	return nil
}

func (r *MemoryAttemptRepository) GetAnswers(_ context.Context, attemptID string) (model.AnswerSet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.answers[attemptID].Clone(), nil
}

func (r *MemoryAttemptRepository) AppendLeave(_ context.Context, rec model.LeaveRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaves[rec.AttemptID] = append(r.leaves[rec.AttemptID], rec)
	return nil
}

func (r *MemoryAttemptRepository) ListLeaves(_ context.Context, attemptID string) ([]model.LeaveRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]model.LeaveRecord(nil), r.leaves[attemptID]...), nil
}
