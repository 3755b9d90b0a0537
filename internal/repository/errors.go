package repository

import "errors"

var (
	// ErrNotFound is returned when a lookup matches nothing.
	ErrNotFound      = errors.New("not found")
	ErrDuplicateNISN = errors.New("student with this NISN already exists")
)
