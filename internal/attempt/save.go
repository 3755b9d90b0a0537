package attempt

import (
	"context"

	"github.com/stemsi/exstem-attempt/internal/model"
	"github.com/stemsi/exstem-attempt/internal/notify"
)

// save sends the entire current answer set of r unless it matches the last
// successful save. Saves of one attempt run one at a time, and each takes
// its snapshot only once it holds the slot, so a later save never carries
// older answers than an earlier one.
func (c *Controller) save(ctx context.Context, r *run) error {
	r.saveMu.Lock()
	defer r.saveMu.Unlock()

	c.mu.Lock()
	if r.saveTimer != nil {
		r.saveTimer.Stop()
	}
	answers := r.answers.List(r.session.Questions)
	elapsed := r.timer.ElapsedSeconds()
	fp := model.Fingerprint(answers)
	if fp == r.lastSaved {
		c.mu.Unlock()
		return nil
	}
	r.saveStatus = SaveSaving
	id := r.session.AttemptID
	c.mu.Unlock()

	err := c.svc.SaveAnswers(ctx, id, answers, elapsed)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		r.saveStatus = SaveError
		c.log.Warn().Err(err).Str("attempt_id", id).Int("answers", len(answers)).Msg("Autosave failed")
		if c.att == r {
			c.notes.Push(notify.Warning, "Answers not saved", notify.Describe(err))
		}
		return err
	}
	r.lastSaved = fp
	if r.saveStatus == SaveSaving {
		r.saveStatus = SaveSaved
	}
	c.log.Debug().Str("attempt_id", id).Int("answers", len(answers)).Msg("Answers saved")
	return nil
}
