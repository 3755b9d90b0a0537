package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-attempt/internal/model"
)

// StudentRepository resolves login identities.
type StudentRepository interface {
	GetByID(ctx context.Context, id int) (*model.Student, error)
	GetByNISN(ctx context.Context, nisn string) (*model.Student, error)
}

// MemoryStudentRepository serves students loaded from a catalog.
type MemoryStudentRepository struct {
	byID   map[int]*model.Student
	byNISN map[string]*model.Student
}

// NewMemoryStudentRepository indexes students by id and NISN.
func NewMemoryStudentRepository(students []model.Student) (*MemoryStudentRepository, error) {
	r := &MemoryStudentRepository{
		byID:   make(map[int]*model.Student, len(students)),
		byNISN: make(map[string]*model.Student, len(students)),
	}
	for i := range students {
		s := students[i]
		if _, dup := r.byNISN[s.NISN]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateNISN, s.NISN)
		}
		r.byID[s.ID] = &s
		r.byNISN[s.NISN] = &s
	}
	return r, nil
}

func (r *MemoryStudentRepository) GetByID(_ context.Context, id int) (*model.Student, error) {
	if s, ok := r.byID[id]; ok {
		return s, nil
	}
	return nil, ErrNotFound
}

func (r *MemoryStudentRepository) GetByNISN(_ context.Context, nisn string) (*model.Student, error) {
	if s, ok := r.byNISN[nisn]; ok {
		return s, nil
	}
	return nil, ErrNotFound
}

// PostgresStudentRepository reads students from the students table.
type PostgresStudentRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresStudentRepository creates a new PostgresStudentRepository.
func NewPostgresStudentRepository(pool *pgxpool.Pool) *PostgresStudentRepository {
	return &PostgresStudentRepository{pool: pool}
}

// GetByID retrieves a student by ID.
func (r *PostgresStudentRepository) GetByID(ctx context.Context, id int) (*model.Student, error) {
	return r.scan(r.pool.QueryRow(ctx,
		`SELECT id, nisn, name, password_hash FROM students WHERE id = $1`, id))
}

// GetByNISN retrieves a student by their unique NISN.
func (r *PostgresStudentRepository) GetByNISN(ctx context.Context, nisn string) (*model.Student, error) {
	return r.scan(r.pool.QueryRow(ctx,
		`SELECT id, nisn, name, password_hash FROM students WHERE nisn = $1`, nisn))
}

// Create inserts a student and sets its generated ID.
func (r *PostgresStudentRepository) Create(ctx context.Context, s *model.Student) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO students (nisn, name, password_hash) VALUES ($1, $2, $3) RETURNING id`,
		s.NISN, s.Name, s.PasswordHash,
	).Scan(&s.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateNISN
		}
		return err
	}
	return nil
}

func (r *PostgresStudentRepository) scan(row pgx.Row) (*model.Student, error) {
	s := &model.Student{}
	if err := row.Scan(&s.ID, &s.NISN, &s.Name, &s.PasswordHash); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return s, nil
}
