package model

import "time"

// AttemptStatus enumerates attempt states on the service side.
type AttemptStatus string

const (
	AttemptStatusInProgress AttemptStatus = "IN_PROGRESS"
	AttemptStatusSubmitted  AttemptStatus = "SUBMITTED"
)

// AttemptRecord is the service's view of one attempt.
type AttemptRecord struct {
	ID            string        `json:"id"`
	CourseID      string        `json:"course_id"`
	StudentID     int           `json:"student_id"`
	AttemptNumber int           `json:"attempt_number"`
	Status        AttemptStatus `json:"status"`
	StartedAt     time.Time     `json:"started_at"`
	// Deadline is zero for unlimited attempts.
	Deadline    time.Time  `json:"deadline"`
	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
	Score       *float64   `json:"score,omitempty"`
	Correct     int        `json:"correct"`
	Total       int        `json:"total"`
}

// Remaining returns the seconds left at now, -1 for unlimited attempts.
func (a *AttemptRecord) Remaining(now time.Time) int {
	if a.Deadline.IsZero() {
		return -1
	}
	left := a.Deadline.Sub(now)
	if left < 0 {
		return 0
	}
	return int(left.Seconds())
}

// Student is a login identity known to the reference service.
type Student struct {
	ID           int    `json:"id"`
	NISN         string `json:"nisn"`
	Name         string `json:"name"`
	PasswordHash string `json:"-"`
}

// LeaveRecord is a leave event as stored by the service.
type LeaveRecord struct {
	AttemptID    string      `json:"attempt_id"`
	StudentID    int         `json:"student_id"`
	Reason       LeaveReason `json:"reason"`
	Timestamp    time.Time   `json:"timestamp"`
	LeaveSeconds *int        `json:"leave_seconds,omitempty"`
}
