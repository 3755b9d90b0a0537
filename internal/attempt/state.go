package attempt

import "github.com/stemsi/exstem-attempt/internal/model"

// State is the controller's position in the attempt lifecycle.
type State int

const (
	Dashboard State = iota
	Starting
	Solving
	AutoSubmitting
	ManualSubmitting
	Result
)

func (s State) String() string {
	switch s {
	case Dashboard:
		return "dashboard"
	case Starting:
		return "starting"
	case Solving:
		return "solving"
	case AutoSubmitting:
		return "auto_submitting"
	case ManualSubmitting:
		return "manual_submitting"
	case Result:
		return "result"
	default:
		return "unknown"
	}
}

// MarshalText renders the state by name.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// SaveStatus reports the autosave progress of the current attempt.
type SaveStatus string

const (
	SaveIdle   SaveStatus = "idle"
	SaveSaving SaveStatus = "saving"
	SaveSaved  SaveStatus = "saved"
	SaveError  SaveStatus = "error"
)

// View is a consistent snapshot of everything the UI renders.
type View struct {
	State             State                 `json:"state"`
	Session           *model.AttemptSession `json:"session,omitempty"`
	Timer             model.TimerState      `json:"timer"`
	Answers           model.AnswerSet       `json:"answers"`
	SaveStatus        SaveStatus            `json:"save_status"`
	Result            *model.AttemptResult  `json:"result,omitempty"`
	ResultUnavailable bool                  `json:"result_unavailable"`
}

// CourseMeta is what is known about a course across attempts.
type CourseMeta struct {
	PassScore *float64        `json:"pass_score,omitempty"`
	Retry     model.RetryInfo `json:"retry_info"`
}

// merge overlays newer known values; an unknown never replaces a known one.
func (m CourseMeta) merge(passScore *float64, retry model.RetryInfo) CourseMeta {
	if passScore != nil {
		v := *passScore
		m.PassScore = &v
	}
	m.Retry = m.Retry.Merge(retry)
	return m
}
