package websocket

import "net/url"

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionPing Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError Event = "error"
	EventTimer Event = "timer"
	EventPong  Event = "pong"
)

// TimerEvent is the authoritative countdown of an attempt.
type TimerEvent struct {
	Event            Event  `json:"event"`
	AttemptID        string `json:"attempt_id"`
	TimeLimitSeconds int    `json:"time_limit_seconds"`
	RemainingSeconds *int   `json:"remaining_seconds,omitempty"`
	IsExpired        bool   `json:"is_expired"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}

// TimerFeedPath is the route of an attempt's timer feed.
func TimerFeedPath(attemptID string) string {
	return "/ws/v1/student/attempts/" + url.PathEscape(attemptID) + "/timer"
}
