package model

import "time"

// StudentLoginRequest is the payload for student login.
type StudentLoginRequest struct {
	NISN     string `json:"nisn" binding:"required,min=3,max=32"`
	Password string `json:"password" binding:"required,min=6,max=72"`
}

// RefreshRequest exchanges a refresh token for a new token pair.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// TokenPair is returned by login and refresh.
type TokenPair struct {
	Token        string    `json:"token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// PushTimerRequest reports the client's remaining seconds.
type PushTimerRequest struct {
	RemainingSeconds *int `json:"remaining_seconds" binding:"required,min=0"`
}

// SaveAnswersRequest autosaves the full current answer set.
type SaveAnswersRequest struct {
	Answers        []Answer `json:"answers" binding:"dive"`
	ElapsedSeconds *int     `json:"elapsed_seconds,omitempty" binding:"omitempty,min=0"`
}

// SubmitAnswersRequest finishes an attempt.
type SubmitAnswersRequest struct {
	Answers []Answer `json:"answers" binding:"dive"`
}

// RecordLeaveRequest records a leave event.
type RecordLeaveRequest struct {
	Timestamp    time.Time   `json:"timestamp" binding:"required"`
	Reason       LeaveReason `json:"reason" binding:"required,oneof=hidden unload back close"`
	LeaveSeconds *int        `json:"leave_seconds,omitempty" binding:"omitempty,min=0"`
}
