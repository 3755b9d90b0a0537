package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/stemsi/exstem-attempt/internal/model"
)

// CatalogStudent is a student entry of a catalog file. Passwords are hashed
// when the catalog is loaded into a StudentRepository.
type CatalogStudent struct {
	ID       int    `json:"id"`
	NISN     string `json:"nisn"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

// Catalog is the static course and student data of the reference service.
type Catalog struct {
	Courses  []model.Course   `json:"courses"`
	Students []CatalogStudent `json:"students"`
}

// LoadCatalog reads a catalog JSON file.
func LoadCatalog(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	var c Catalog
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if err := c.check(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalog) check() error {
	seen := make(map[string]struct{}, len(c.Courses))
	for _, course := range c.Courses {
		if course.ID == "" {
			return fmt.Errorf("catalog: course without id")
		}
		if _, dup := seen[course.ID]; dup {
			return fmt.Errorf("catalog: duplicate course %q", course.ID)
		}
		seen[course.ID] = struct{}{}
		if len(course.Questions) == 0 {
			return fmt.Errorf("catalog: course %q has no questions", course.ID)
		}
		for _, q := range course.Questions {
			if !q.ValidChoice(q.CorrectIndex) {
				return fmt.Errorf("catalog: question %q of course %q has no valid answer key", q.ID, course.ID)
			}
		}
	}
	return nil
}

// HashedStudents converts the catalog students, hashing every password.
func (c *Catalog) HashedStudents(hash func(string) (string, error)) ([]model.Student, error) {
	out := make([]model.Student, 0, len(c.Students))
	for _, s := range c.Students {
		h, err := hash(s.Password)
		if err != nil {
			return nil, fmt.Errorf("hash password of %s: %w", s.NISN, err)
		}
		out = append(out, model.Student{ID: s.ID, NISN: s.NISN, Name: s.Name, PasswordHash: h})
	}
	return out, nil
}

// DefaultCatalog is the demo data used when no catalog file is configured.
func DefaultCatalog() *Catalog {
	return &Catalog{
		Courses: []model.Course{
			{
				ID:               "go-basics",
				Title:            "Go Basics",
				TimeLimitSeconds: 600,
				MaxAttempts:      3,
				PassScore:        70,
				Questions: []model.CourseQuestion{
					{Question: model.Question{ID: "q1", Order: 1, Prompt: "Which keyword starts a goroutine?", Choices: []string{"go", "async", "spawn", "thread"}}, CorrectIndex: 0},
					{Question: model.Question{ID: "q2", Order: 2, Prompt: "What is the zero value of a map?", Choices: []string{"empty map", "nil", "panic", "0"}}, CorrectIndex: 1},
					{Question: model.Question{ID: "q3", Order: 3, Prompt: "Which statement runs when the function returns?", Choices: []string{"finally", "ensure", "defer", "after"}}, CorrectIndex: 2},
					{Question: model.Question{ID: "q4", Order: 4, Prompt: "How are errors usually reported?", Choices: []string{"exceptions", "return values", "signals", "globals"}}, CorrectIndex: 1},
				},
			},
			{
				ID:          "practice",
				Title:       "Untimed Practice",
				MaxAttempts: 0,
				PassScore:   50,
				Questions: []model.CourseQuestion{
					{Question: model.Question{ID: "p1", Order: 1, Prompt: "2 + 2 = ?", Choices: []string{"3", "4", "5"}}, CorrectIndex: 1},
					{Question: model.Question{ID: "p2", Order: 2, Prompt: "Capital of Indonesia?", Choices: []string{"Bandung", "Surabaya", "Jakarta"}}, CorrectIndex: 2},
				},
			},
		},
		Students: []CatalogStudent{
			{ID: 1, NISN: "user1", Name: "Budi Santoso", Password: "stemsijaya"},
			{ID: 2, NISN: "user2", Name: "Siti Aminah", Password: "stemsijaya"},
		},
	}
}

// CourseRepository resolves course definitions.
type CourseRepository interface {
	GetByID(ctx context.Context, id string) (*model.Course, error)
}

// MemoryCourseRepository serves courses from a catalog.
type MemoryCourseRepository struct {
	courses map[string]*model.Course
}

// NewMemoryCourseRepository indexes the catalog courses by id.
func NewMemoryCourseRepository(courses []model.Course) *MemoryCourseRepository {
	r := &MemoryCourseRepository{courses: make(map[string]*model.Course, len(courses))}
	for i := range courses {
		c := courses[i]
		r.courses[c.ID] = &c
	}
	return r
}

func (r *MemoryCourseRepository) GetByID(_ context.Context, id string) (*model.Course, error) {
	c, ok := r.courses[id]
	if !ok {
		return nil, ErrNotFound
	}
	return c, nil
}
