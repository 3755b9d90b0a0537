package attempt

import (
	"context"
	"fmt"
	"time"

	"github.com/stemsi/exstem-attempt/internal/model"
)

// Leave records that the student left the attempt, for example by hiding
// the tab. Each reason is recorded at most once per attempt.
func (c *Controller) Leave(reason model.LeaveReason) error {
	if !reason.Valid() {
		return fmt.Errorf("attempt: unknown leave reason %q", reason)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.att == nil || c.state != Solving {
		return ErrNotSolving
	}
	c.leaveLocked(c.att, reason)
	return nil
}

// leaveLocked fires the best-effort leave sequence: flush the pending save,
// push the remaining time and record the event. Nothing waits for it.
func (c *Controller) leaveLocked(r *run, reason model.LeaveReason) {
	if r.left[reason] {
		return
	}
	r.left[reason] = true

	id := r.session.AttemptID
	timer := r.timer
	event := model.LeaveEvent{Timestamp: time.Now(), Reason: reason}
	c.log.Info().Str("attempt_id", id).Str("reason", string(reason)).Msg("Attempt left")

	// Detached so that ending the attempt right after does not abort it.
	parent := context.WithoutCancel(r.ctx)

	c.detached.Add(2)
	go func() {
		defer c.detached.Done()
		ctx, cancel := context.WithTimeout(parent, c.opts.BestEffortTimeout)
		defer cancel()
		_ = c.save(ctx, r)
	}()
	go func() {
		defer c.detached.Done()
		ctx, cancel := context.WithTimeout(parent, c.opts.BestEffortTimeout)
		defer cancel()

		if !timer.Unlimited() {
			if err := c.svc.PushTimer(ctx, id, timer.RemainingSeconds); err != nil {
				c.log.Debug().Err(err).Str("attempt_id", id).Msg("Timer push on leave failed")
			}
		}
		if err := c.svc.RecordLeave(ctx, id, event); err != nil {
			c.log.Debug().Err(err).Str("attempt_id", id).Str("reason", string(reason)).Msg("Leave record failed")
		}
	}()
}
