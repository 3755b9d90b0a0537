package attempt

import (
	"time"

	"github.com/stemsi/exstem-attempt/internal/normalize"
	"github.com/stemsi/exstem-attempt/internal/notify"
)

// loop drives the countdown, reconcile and push intervals of r.
func (c *Controller) loop(r *run) {
	defer c.bg.Done()

	tick := time.NewTicker(c.opts.TickInterval)
	reconcile := time.NewTicker(c.opts.ReconcileInterval)
	push := time.NewTicker(c.opts.PushInterval)
	defer tick.Stop()
	defer reconcile.Stop()
	defer push.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-tick.C:
			c.tick(r)
		case <-reconcile.C:
			c.reconcile(r)
		case <-push.C:
			c.pushTimer(r)
		}
	}
}

func (c *Controller) tick(r *run) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.att != r || c.state != Solving {
		return
	}
	if !r.timer.Unlimited() && r.timer.RemainingSeconds > 0 {
		r.timer.RemainingSeconds--
	}
	c.checkExpiryLocked(r)
}

func (c *Controller) reconcile(r *run) {
	c.mu.Lock()
	if c.att != r || c.state != Solving || r.reconciling {
		c.mu.Unlock()
		return
	}
	r.reconciling = true
	id := r.session.AttemptID
	c.bg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.bg.Done()
		obj, err := c.svc.FetchTimer(r.ctx, id)

		c.mu.Lock()
		defer c.mu.Unlock()
		r.reconciling = false
		if err != nil {
			c.log.Debug().Err(err).Str("attempt_id", id).Msg("Timer reconcile failed")
			return
		}
		c.applyServerTimerLocked(r, obj)
	}()
}

func (c *Controller) pushTimer(r *run) {
	c.mu.Lock()
	if c.att != r || c.state != Solving || r.pushing || r.timer.Unlimited() {
		c.mu.Unlock()
		return
	}
	r.pushing = true
	id, remaining := r.session.AttemptID, r.timer.RemainingSeconds
	c.bg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.bg.Done()
		if err := c.svc.PushTimer(r.ctx, id, remaining); err != nil {
			c.log.Debug().Err(err).Str("attempt_id", id).Msg("Timer push failed")
		}
		c.mu.Lock()
		r.pushing = false
		c.mu.Unlock()
	}()
}

// watchFeed applies pushed timer snapshots the same way as a reconcile.
func (c *Controller) watchFeed(r *run) {
	defer c.bg.Done()

	ch, err := c.opts.Feed.WatchTimer(r.ctx, r.session.AttemptID)
	if err != nil {
		c.log.Debug().Err(err).Str("attempt_id", r.session.AttemptID).Msg("Timer feed unavailable, polling only")
		return
	}
	for {
		select {
		case <-r.ctx.Done():
			return
		case obj, ok := <-ch:
			if !ok {
				return
			}
			c.mu.Lock()
			c.applyServerTimerLocked(r, obj)
			c.mu.Unlock()
		}
	}
}

// applyServerTimerLocked folds an authoritative timer snapshot into r.
// Remaining time moves only when it differs by at least the jitter
// threshold; the expiry flag is always taken as is.
func (c *Controller) applyServerTimerLocked(r *run, obj normalize.Object) {
	if c.att != r || c.state != Solving {
		return
	}
	st, ok := normalize.Timer(obj)
	if !ok {
		return
	}
	r.timer.ServerExpired = st.ServerExpired
	if !r.timer.Unlimited() {
		diff := st.RemainingSeconds - r.timer.RemainingSeconds
		if diff < 0 {
			diff = -diff
		}
		if diff >= c.opts.jitterSeconds() {
			r.timer.RemainingSeconds = st.RemainingSeconds
		}
	}
	c.checkExpiryLocked(r)
}

// checkExpiryLocked moves r to AutoSubmitting the first time it is seen expired.
func (c *Controller) checkExpiryLocked(r *run) {
	if c.att != r || c.state != Solving || r.autoSubmitted || !r.timer.Expired() {
		return
	}
	r.autoSubmitted = true
	c.state = AutoSubmitting
	if r.saveTimer != nil {
		r.saveTimer.Stop()
	}
	c.notes.Push(notify.Info, "Time is up", "Your answers are being submitted.")
	c.log.Info().Str("attempt_id", r.session.AttemptID).Msg("Attempt expired, auto-submitting")

	c.bg.Add(1)
	go func() {
		defer c.bg.Done()
		c.save(r.ctx, r)
		_ = c.submit(r.ctx, r)
	}()
}
