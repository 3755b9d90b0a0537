package model

import "time"

// AttemptSession identifies one in-progress exam instance on the client.
type AttemptSession struct {
	AttemptID     string     `json:"attempt_id"`
	AttemptNumber int        `json:"attempt_number"`
	CourseID      string     `json:"course_id"`
	Questions     []Question `json:"questions"`
	PassScore     *float64   `json:"pass_score,omitempty"`
	Retry         RetryInfo  `json:"retry_info"`
}

// Question returns the question with the given id.
func (s *AttemptSession) Question(id string) (Question, bool) {
	for _, q := range s.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return Question{}, false
}

// LeaveReason tags why the student left the solving view.
type LeaveReason string

const (
	LeaveHidden LeaveReason = "hidden"
	LeaveUnload LeaveReason = "unload"
	LeaveBack   LeaveReason = "back"
	LeaveClose  LeaveReason = "close"
)

// Valid reports whether r is one of the known reasons.
func (r LeaveReason) Valid() bool {
	switch r {
	case LeaveHidden, LeaveUnload, LeaveBack, LeaveClose:
		return true
	}
	return false
}

// LeaveEvent is recorded by the service each time the student leaves an attempt.
type LeaveEvent struct {
	Timestamp    time.Time   `json:"timestamp"`
	Reason       LeaveReason `json:"reason"`
	LeaveSeconds *int        `json:"leave_seconds,omitempty"`
}
