// Package obs collects lightweight counters for the simulation daemon.
package obs

import (
	"sync/atomic"
	"time"
)

// FallbackStep identifies which rung of the price fallback chain resolved a
// price.
type FallbackStep int

const (
	FallbackExact FallbackStep = iota
	FallbackLookback
	FallbackLatest
	FallbackDefault
	fallbackSteps
)

func (f FallbackStep) String() string {
	switch f {
	case FallbackExact:
		return "exact"
	case FallbackLookback:
		return "lookback"
	case FallbackLatest:
		return "latest"
	case FallbackDefault:
		return "default"
	default:
		return "unknown"
	}
}

// Metrics aggregates simulation counters and tick latency stats. All methods
// are safe for concurrent use and tolerate a nil receiver.
type Metrics struct {
	ticks             uint64
	sessionsProcessed uint64
	sessionFailures   uint64
	ticksSkipped      uint64

	terminationsCompleted   uint64
	terminationsDeactivated uint64
	statesReaped            uint64

	recalcOK      uint64
	recalcFailed  uint64
	recalcDropped uint64

	fallbackCounts [fallbackSteps]uint64

	tickLatency LatencyStats
}

// LatencyStats aggregates duration samples in nanoseconds.
type LatencyStats struct {
	count uint64
	sum   uint64
	min   uint64
	max   uint64
}

// LatencySnapshot is a point-in-time view of latency stats.
type LatencySnapshot struct {
	Count uint64
	Min   time.Duration
	Max   time.Duration
	Avg   time.Duration
}

// Snapshot captures the current metrics values.
type Snapshot struct {
	Ticks             uint64
	TicksSkipped      uint64
	SessionsProcessed uint64
	SessionFailures   uint64

	TerminationsCompleted   uint64
	TerminationsDeactivated uint64
	StatesReaped            uint64

	RecalcOK      uint64
	RecalcFailed  uint64
	RecalcDropped uint64

	FallbackCounts map[string]uint64
	TickLatency    LatencySnapshot
}

// NewMetrics allocates a metrics container.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// IncTick counts one completed scheduler pass.
func (m *Metrics) IncTick() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.ticks, 1)
}

// IncTickSkipped counts a tick refused because the previous one was still
// running.
func (m *Metrics) IncTickSkipped() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.ticksSkipped, 1)
}

// IncSessionProcessed counts one session advanced in a tick.
func (m *Metrics) IncSessionProcessed() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.sessionsProcessed, 1)
}

// IncSessionFailure counts one isolated per-session failure.
func (m *Metrics) IncSessionFailure() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.sessionFailures, 1)
}

// IncTerminationCompleted counts a session ended by period completion.
func (m *Metrics) IncTerminationCompleted() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.terminationsCompleted, 1)
}

// IncTerminationDeactivated counts a session ended by challenge deactivation.
func (m *Metrics) IncTerminationDeactivated() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.terminationsDeactivated, 1)
}

// AddStatesReaped counts entries removed by the stale-state reaper.
func (m *Metrics) AddStatesReaped(n int) {
	if m == nil || n <= 0 {
		return
	}
	atomic.AddUint64(&m.statesReaped, uint64(n))
}

// IncRecalcOK counts a successful leaderboard recompute.
func (m *Metrics) IncRecalcOK() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.recalcOK, 1)
}

// IncRecalcFailed counts a failed (and swallowed) leaderboard recompute.
func (m *Metrics) IncRecalcFailed() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.recalcFailed, 1)
}

// IncRecalcDropped counts a recompute request dropped by a full queue.
func (m *Metrics) IncRecalcDropped() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.recalcDropped, 1)
}

// IncFallback counts which fallback step resolved a price.
func (m *Metrics) IncFallback(step FallbackStep) {
	if m == nil {
		return
	}
	idx := int(step)
	if idx >= 0 && idx < len(m.fallbackCounts) {
		atomic.AddUint64(&m.fallbackCounts[idx], 1)
	}
}

// ObserveTick measures one scheduler pass.
func (m *Metrics) ObserveTick(d time.Duration) {
	if m == nil {
		return
	}
	m.tickLatency.Observe(d)
}

// Snapshot returns a copy of the current metrics values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	fallbacks := make(map[string]uint64)
	for i := range m.fallbackCounts {
		if v := atomic.LoadUint64(&m.fallbackCounts[i]); v > 0 {
			fallbacks[FallbackStep(i).String()] = v
		}
	}
	return Snapshot{
		Ticks:                   atomic.LoadUint64(&m.ticks),
		TicksSkipped:            atomic.LoadUint64(&m.ticksSkipped),
		SessionsProcessed:       atomic.LoadUint64(&m.sessionsProcessed),
		SessionFailures:         atomic.LoadUint64(&m.sessionFailures),
		TerminationsCompleted:   atomic.LoadUint64(&m.terminationsCompleted),
		TerminationsDeactivated: atomic.LoadUint64(&m.terminationsDeactivated),
		StatesReaped:            atomic.LoadUint64(&m.statesReaped),
		RecalcOK:                atomic.LoadUint64(&m.recalcOK),
		RecalcFailed:            atomic.LoadUint64(&m.recalcFailed),
		RecalcDropped:           atomic.LoadUint64(&m.recalcDropped),
		FallbackCounts:          fallbacks,
		TickLatency:             m.tickLatency.Snapshot(),
	}
}

// Observe records a duration sample.
func (l *LatencyStats) Observe(d time.Duration) {
	if d < 0 {
		return
	}
	nanos := uint64(d)
	atomic.AddUint64(&l.count, 1)
	atomic.AddUint64(&l.sum, nanos)

	for {
		min := atomic.LoadUint64(&l.min)
		if min != 0 && nanos >= min {
			break
		}
		if atomic.CompareAndSwapUint64(&l.min, min, nanos) {
			break
		}
	}

	for {
		max := atomic.LoadUint64(&l.max)
		if nanos <= max {
			break
		}
		if atomic.CompareAndSwapUint64(&l.max, max, nanos) {
			break
		}
	}
}

// Snapshot returns the aggregated latency stats.
func (l *LatencyStats) Snapshot() LatencySnapshot {
	count := atomic.LoadUint64(&l.count)
	if count == 0 {
		return LatencySnapshot{}
	}
	sum := atomic.LoadUint64(&l.sum)
	min := atomic.LoadUint64(&l.min)
	max := atomic.LoadUint64(&l.max)
	return LatencySnapshot{
		Count: count,
		Min:   time.Duration(min),
		Max:   time.Duration(max),
		Avg:   time.Duration(sum / count),
	}
}
