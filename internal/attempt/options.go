package attempt

import "time"

// Options tunes the controller's timing. Zero fields take the defaults.
type Options struct {
	TickInterval      time.Duration
	ReconcileInterval time.Duration
	PushInterval      time.Duration
	SaveDebounce      time.Duration
	// JitterThreshold is the smallest server/local countdown difference that
	// is applied on reconcile.
	JitterThreshold time.Duration
	// FallbackDuration is used when the authoritative timer cannot be fetched.
	FallbackDuration time.Duration
	// DefaultPassScore decides pass/fail when neither the course nor the
	// result carries a threshold.
	DefaultPassScore  float64
	BestEffortTimeout time.Duration

	// Feed, when set, receives pushed timer snapshots in addition to polling.
	Feed TimerFeed
}

// DefaultOptions returns the production timings.
func DefaultOptions() Options {
	return Options{
		TickInterval:      time.Second,
		ReconcileInterval: 15 * time.Second,
		PushInterval:      10 * time.Second,
		SaveDebounce:      650 * time.Millisecond,
		JitterThreshold:   2 * time.Second,
		FallbackDuration:  30 * time.Minute,
		DefaultPassScore:  60,
		BestEffortTimeout: 10 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.TickInterval <= 0 {
		o.TickInterval = d.TickInterval
	}
	if o.ReconcileInterval <= 0 {
		o.ReconcileInterval = d.ReconcileInterval
	}
	if o.PushInterval <= 0 {
		o.PushInterval = d.PushInterval
	}
	if o.SaveDebounce <= 0 {
		o.SaveDebounce = d.SaveDebounce
	}
	if o.JitterThreshold <= 0 {
		o.JitterThreshold = d.JitterThreshold
	}
	if o.FallbackDuration <= 0 {
		o.FallbackDuration = d.FallbackDuration
	}
	if o.DefaultPassScore <= 0 {
		o.DefaultPassScore = d.DefaultPassScore
	}
	if o.BestEffortTimeout <= 0 {
		o.BestEffortTimeout = d.BestEffortTimeout
	}
	return o
}

func (o Options) jitterSeconds() int {
	s := int(o.JitterThreshold / time.Second)
	if s < 1 {
		return 1
	}
	return s
}
