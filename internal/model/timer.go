package model

// TimerState is the countdown of one attempt. A zero TimeLimitSeconds means unlimited.
type TimerState struct {
	TimeLimitSeconds int  `json:"time_limit_seconds"`
	RemainingSeconds int  `json:"remaining_seconds"`
	ServerExpired    bool `json:"is_expired"`
}

// Unlimited reports whether the attempt has no time limit.
func (t TimerState) Unlimited() bool { return t.TimeLimitSeconds <= 0 }

// Expired reports whether the attempt must move to submission.
func (t TimerState) Expired() bool {
	if t.ServerExpired {
		return true
	}
	return !t.Unlimited() && t.RemainingSeconds <= 0
}

// ElapsedSeconds is the time used so far, nil for unlimited attempts.
func (t TimerState) ElapsedSeconds() *int {
	if t.Unlimited() {
		return nil
	}
	e := t.TimeLimitSeconds - t.RemainingSeconds
	if e < 0 {
		e = 0
	}
	return &e
}
