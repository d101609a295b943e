// Package scheduler advances active challenge sessions through simulated
// time and terminates them when their replay period elapses.
package scheduler

import (
	"context"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"

	"stockquest/internal/bus"
	"stockquest/internal/model"
	"stockquest/internal/obs"
	"stockquest/internal/simclock"
	"stockquest/internal/simstate"
	"stockquest/internal/valuation"
)

// SessionRepository is the persistence port for challenge sessions.
type SessionRepository interface {
	FindActive(ctx context.Context) ([]model.Session, error)
	Save(ctx context.Context, session *model.Session) error
}

// ChallengeRepository is the persistence port for challenges.
type ChallengeRepository interface {
	FindByID(ctx context.Context, id int64) (model.Challenge, error)
}

// Clock supplies the current instant. Tests swap it for a fake.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

// Config tunes the scheduler loops.
type Config struct {
	// TickInterval is the period of the main simulation pass.
	TickInterval time.Duration
	// MaxSessionsPerTick bounds tick latency; sessions beyond the cap wait
	// for the next tick. The derived clock makes deferral harmless.
	MaxSessionsPerTick int
	// ReaperInterval is the period of the stale-state sweep.
	ReaperInterval time.Duration
	// StaleAfter is how long an untouched state entry survives before the
	// reaper evicts it.
	StaleAfter time.Duration
	// StatsInterval is the period of the statistics log line.
	StatsInterval time.Duration
}

const (
	defaultTickInterval       = 10 * time.Second
	defaultMaxSessionsPerTick = 50
	defaultReaperInterval     = time.Hour
	defaultStaleAfter         = 2 * time.Hour
	defaultStatsInterval      = 5 * time.Minute
)

func (c Config) withDefaults() Config {
	if c.TickInterval <= 0 {
		c.TickInterval = defaultTickInterval
	}
	if c.MaxSessionsPerTick <= 0 {
		c.MaxSessionsPerTick = defaultMaxSessionsPerTick
	}
	if c.ReaperInterval <= 0 {
		c.ReaperInterval = defaultReaperInterval
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = defaultStaleAfter
	}
	if c.StatsInterval <= 0 {
		c.StatsInterval = defaultStatsInterval
	}
	return c
}

// Scheduler owns the periodic simulation pass. State entries are only ever
// mutated from Tick, which is single-flight: an overlapping invocation is
// counted and skipped rather than run concurrently.
type Scheduler struct {
	cfg        Config
	sessions   SessionRepository
	challenges ChallengeRepository
	valuer     *valuation.Engine
	states     simstate.Store
	recalc     *bus.Dispatcher
	metrics    *obs.Metrics
	clock      Clock

	ticking chan struct{}
}

// New creates a scheduler with defaults applied.
func New(cfg Config, sessions SessionRepository, challenges ChallengeRepository, valuer *valuation.Engine, states simstate.Store, recalc *bus.Dispatcher, metrics *obs.Metrics) *Scheduler {
	s := &Scheduler{
		cfg:        cfg.withDefaults(),
		sessions:   sessions,
		challenges: challenges,
		valuer:     valuer,
		states:     states,
		recalc:     recalc,
		metrics:    metrics,
		clock:      realClock{},
		ticking:    make(chan struct{}, 1),
	}
	s.ticking <- struct{}{}
	return s
}

// WithClock swaps the clock implementation.
func (s *Scheduler) WithClock(clock Clock) *Scheduler {
	if clock != nil {
		s.clock = clock
	}
	return s
}

// Run drives the main tick loop until the context is done.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	logs.Infof("simulation scheduler started, tick interval %s, per-tick cap %d",
		s.cfg.TickInterval, s.cfg.MaxSessionsPerTick)
	for {
		select {
		case <-sys.Shutdown():
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one simulation pass over all active sessions and returns the
// number processed. A pass still in flight causes the new one to be skipped.
func (s *Scheduler) Tick(ctx context.Context) int {
	select {
	case <-s.ticking:
	default:
		s.metrics.IncTickSkipped()
		logs.Warnf("simulation tick still in flight, skipping")
		return 0
	}
	defer func() { s.ticking <- struct{}{} }()

	started := time.Now()
	defer func() {
		s.metrics.ObserveTick(time.Since(started))
		s.metrics.IncTick()
	}()

	active, err := s.sessions.FindActive(ctx)
	if err != nil {
		logs.Errorf("active session query failed, err: %+v", err)
		return 0
	}
	if len(active) == 0 {
		logs.Debug("no active sessions, skipping tick")
		return 0
	}

	processed := 0
	for i := range active {
		if processed >= s.cfg.MaxSessionsPerTick {
			logs.Infof("per-tick cap reached at %d sessions, deferring %d to next tick",
				processed, len(active)-processed)
			break
		}
		if err := s.safeProcess(ctx, &active[i]); err != nil {
			s.metrics.IncSessionFailure()
			logs.Errorf("session %d tick failed, err: %+v", active[i].ID, err)
			continue
		}
		s.metrics.IncSessionProcessed()
		processed++
	}
	return processed
}

// safeProcess confines a panicking session to its own slot in the batch.
func (s *Scheduler) safeProcess(ctx context.Context, sess *model.Session) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("session processing panicked: %+v", r)
		}
	}()
	return s.processSession(ctx, sess)
}

func (s *Scheduler) processSession(ctx context.Context, sess *model.Session) error {
	challenge, err := s.challenges.FindByID(ctx, sess.ChallengeID)
	if err != nil {
		return errors.Wrap(err, "load challenge")
	}

	if challenge.Status != model.ChallengeActive {
		logs.Warnf("session %d belongs to inactive challenge %d, terminating", sess.ID, challenge.ID)
		return s.terminate(ctx, sess, challenge, ReasonChallengeDeactivated)
	}

	now := s.clock.Now()
	state := s.states.GetOrCreate(sess.ID, func() simstate.State {
		logs.Infof("tracking session %d: challenge %d, period %s..%s, speed %dx",
			sess.ID, challenge.ID,
			challenge.PeriodStart.Format(time.DateOnly), challenge.PeriodEnd.Format(time.DateOnly),
			challenge.SpeedFactor)
		return simstate.State{
			SessionID:             sess.ID,
			ChallengeID:           challenge.ID,
			SpeedFactor:           challenge.SpeedFactor,
			PeriodStart:           model.Day(challenge.PeriodStart),
			PeriodEnd:             model.Day(challenge.PeriodEnd),
			CurrentSimulationDate: model.Day(challenge.PeriodStart),
			SimulationStartedAt:   now,
			LastProcessedAt:       now,
		}
	})

	if err := simclock.ValidateWindow(state.SpeedFactor, state.PeriodStart, state.PeriodEnd); err != nil {
		return errors.Wrap(err, "invalid simulation window")
	}

	current := simclock.SimulatedDate(state.SimulationStartedAt, now, state.SpeedFactor, state.PeriodStart, state.PeriodEnd)

	if !current.Before(state.PeriodEnd) {
		// Record the final date so termination reads periodEnd, then end.
		s.states.Update(sess.ID, func(st *simstate.State) {
			st.CurrentSimulationDate = current
			st.LastProcessedAt = now
		})
		logs.Infof("session %d reached %s, ending simulation", sess.ID, current.Format(time.DateOnly))
		return s.terminate(ctx, sess, challenge, ReasonCompleted)
	}

	s.states.Update(sess.ID, func(st *simstate.State) {
		st.CurrentSimulationDate = current
		st.LastProcessedAt = now
		progress := int(st.Progress())
		if progress >= st.LastLoggedProgress+10 {
			st.LastLoggedProgress = progress / 10 * 10
			logs.Infof("session %d at %d%%, sim date %s", sess.ID, st.LastLoggedProgress, current.Format(time.DateOnly))
		}
	})
	return nil
}

// RunReaper drives the stale-state sweep until the context is done. The
// sweep only matters when a termination path failed to clean up; a healthy
// session is always touched every tick and never goes stale.
func (s *Scheduler) RunReaper(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.ReaperInterval)
	defer ticker.Stop()

	for {
		select {
		case <-sys.Shutdown():
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Reap()
		}
	}
}

// Reap evicts state entries untouched for longer than StaleAfter and returns
// how many were removed.
func (s *Scheduler) Reap() int {
	cutoff := s.clock.Now().Add(-s.cfg.StaleAfter)
	evicted := s.states.EvictStale(cutoff)
	for _, st := range evicted {
		logs.Warnf("evicted stale simulation state for session %d, last processed %s",
			st.SessionID, st.LastProcessedAt.Format(time.RFC3339))
	}
	s.metrics.AddStatesReaped(len(evicted))
	return len(evicted)
}

// RunStatsLogger periodically logs aggregate simulation statistics.
func (s *Scheduler) RunStatsLogger(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.StatsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-sys.Shutdown():
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.states.Len() == 0 {
				continue
			}
			stats := s.Statistics()
			logs.Infof("simulation stats: %d active, avg progress %.1f%%, avg elapsed %.1fm",
				stats.ActiveSessions, stats.AverageProgress, stats.AverageElapsedMinutes)
		}
	}
}

// StateFor returns a copy of one session's simulation state.
func (s *Scheduler) StateFor(sessionID int64) (simstate.State, bool) {
	return s.states.Get(sessionID)
}

// States returns copies of all tracked simulation states.
func (s *Scheduler) States() map[int64]simstate.State {
	return s.states.Snapshot()
}

// Now exposes the scheduler clock for read-side consumers.
func (s *Scheduler) Now() time.Time {
	return s.clock.Now()
}
