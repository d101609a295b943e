package scheduler

import (
	"context"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"stockquest/internal/bus"
	"stockquest/internal/model"
)

// Termination reasons recorded on the recalc request and in logs.
const (
	ReasonCompleted            = "simulation complete"
	ReasonChallengeDeactivated = "challenge deactivated"
)

// terminate ends a session: values the portfolio at the final simulated date,
// persists the outcome, queues a leaderboard recompute, and drops the state
// entry. A valuation or save failure leaves the session ACTIVE so the next
// tick retries; the recompute and eviction only run after a successful save.
func (s *Scheduler) terminate(ctx context.Context, sess *model.Session, challenge model.Challenge, reason string) error {
	finalDate := model.Day(challenge.PeriodEnd)
	if state, ok := s.states.Get(sess.ID); ok {
		finalDate = state.CurrentSimulationDate
	}

	finalValue, err := s.valuer.Value(ctx, sess.ID, challenge.Instruments, finalDate)
	if err != nil {
		return errors.Wrap(err, "final valuation").With("session", sess.ID)
	}

	now := s.clock.Now()
	sess.End(now, finalValue)
	if err := s.sessions.Save(ctx, sess); err != nil {
		// Roll back the in-memory transition so a retry sees an ACTIVE session.
		sess.Status = model.SessionActive
		sess.CompletedAt = nil
		return errors.Wrap(err, "persist ended session").With("session", sess.ID)
	}

	s.recalc.Enqueue(bus.RecalcRequest{
		ChallengeID: challenge.ID,
		SessionID:   sess.ID,
		Reason:      reason,
		EnqueuedAt:  now,
	})
	s.states.Delete(sess.ID)

	switch reason {
	case ReasonChallengeDeactivated:
		s.metrics.IncTerminationDeactivated()
	default:
		s.metrics.IncTerminationCompleted()
	}

	logs.Infof("session %d ended (%s): final date %s, final value %s, return %s%%",
		sess.ID, reason, finalDate.Format(time.DateOnly), finalValue, sess.ReturnRate)
	return nil
}
