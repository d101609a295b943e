// Package simstate holds the ephemeral per-session replay state tracked by
// the simulation scheduler. Entries live only in memory; losing them on
// restart is accepted because every field is re-derivable from the session
// and challenge records.
package simstate

import (
	"fmt"
	"time"

	"stockquest/internal/model"
)

// State tracks one active session's simulation progress between ticks.
type State struct {
	SessionID   int64
	ChallengeID int64

	SpeedFactor int
	PeriodStart time.Time
	PeriodEnd   time.Time

	CurrentSimulationDate time.Time
	SimulationStartedAt   time.Time
	LastProcessedAt       time.Time

	// LastLoggedProgress de-duplicates progress log lines. It carries no
	// correctness weight.
	LastLoggedProgress int
}

// Progress reports how far the simulated date has advanced through the
// period, from 0 to 100.
func (s *State) Progress() float64 {
	total := model.DaysBetween(s.PeriodStart, s.PeriodEnd)
	if total <= 0 {
		return 100
	}
	elapsed := model.DaysBetween(s.PeriodStart, s.CurrentSimulationDate)
	if elapsed <= 0 {
		return 0
	}
	p := float64(elapsed) * 100 / float64(total)
	if p > 100 {
		return 100
	}
	return p
}

// Completed reports whether the simulated date has reached the period end.
func (s *State) Completed() bool {
	return !s.CurrentSimulationDate.Before(model.Day(s.PeriodEnd))
}

// ElapsedRealMinutes is the wall-clock time this state has been ticking.
func (s *State) ElapsedRealMinutes() int64 {
	if s.LastProcessedAt.Before(s.SimulationStartedAt) {
		return 0
	}
	return int64(s.LastProcessedAt.Sub(s.SimulationStartedAt).Minutes())
}

// EstimatedCompletionAt extrapolates the completion instant from elapsed real
// time and current progress. The second return is false while progress is
// still zero.
func (s *State) EstimatedCompletionAt(now time.Time) (time.Time, bool) {
	if s.Completed() {
		return now, true
	}
	progress := s.Progress()
	if progress <= 0 {
		return time.Time{}, false
	}
	elapsed := now.Sub(s.SimulationStartedAt)
	total := time.Duration(float64(elapsed) / progress * 100)
	return now.Add(total - elapsed), true
}

// Summary renders a one-line operator view of the state.
func (s *State) Summary() string {
	return fmt.Sprintf("session[%d] %.1f%% complete, sim date %s, speed %dx, elapsed %dm",
		s.SessionID, s.Progress(), s.CurrentSimulationDate.Format(time.DateOnly),
		s.SpeedFactor, s.ElapsedRealMinutes())
}
