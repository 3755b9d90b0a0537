package model

// Tristate is a boolean that may not be known yet.
type Tristate int8

const (
	Unknown Tristate = iota
	True
	False
)

// TristateOf converts a known boolean.
func TristateOf(b bool) Tristate {
	if b {
		return True
	}
	return False
}

// Known reports whether the value is True or False.
func (t Tristate) Known() bool { return t != Unknown }

func (t Tristate) String() string {
	switch t {
	case True:
		return "true"
	case False:
		return "false"
	default:
		return "unknown"
	}
}

// RetryInfo describes whether the student may start another attempt.
type RetryInfo struct {
	CanRetry          Tristate `json:"can_retry"`
	RemainingAttempts *int     `json:"remaining_attempts,omitempty"`
	MaxAttempts       *int     `json:"max_attempts,omitempty"`
	UsedAttempts      *int     `json:"used_attempts,omitempty"`
}

// Empty reports whether nothing at all is known.
func (r RetryInfo) Empty() bool {
	return !r.CanRetry.Known() && r.RemainingAttempts == nil && r.MaxAttempts == nil && r.UsedAttempts == nil
}

// Merge overlays the known fields of newer onto r. A known field is never
// replaced by an unknown one.
func (r RetryInfo) Merge(newer RetryInfo) RetryInfo {
	if newer.CanRetry.Known() {
		r.CanRetry = newer.CanRetry
	}
	if newer.RemainingAttempts != nil {
		r.RemainingAttempts = intPtr(*newer.RemainingAttempts)
	}
	if newer.MaxAttempts != nil {
		r.MaxAttempts = intPtr(*newer.MaxAttempts)
	}
	if newer.UsedAttempts != nil {
		r.UsedAttempts = intPtr(*newer.UsedAttempts)
	}
	return r
}

func intPtr(v int) *int { return &v }
