package simclock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestSimulatedDateTenTimesSpeed(t *testing.T) {
	start := date(2020, time.January, 1)
	end := date(2020, time.December, 31)
	t0 := time.Date(2024, time.June, 1, 9, 0, 0, 0, time.UTC)

	// 2.4 real hours at 10x is exactly one simulated day.
	got := SimulatedDate(t0, t0.Add(144*time.Minute), 10, start, end)
	assert.Equal(t, date(2020, time.January, 2), got)

	// Just under one simulated day floors to the start date.
	got = SimulatedDate(t0, t0.Add(143*time.Minute), 10, start, end)
	assert.Equal(t, start, got)
}

func TestSimulatedDateClampsToPeriodEnd(t *testing.T) {
	start := date(2020, time.January, 1)
	end := date(2020, time.January, 31)
	t0 := time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)

	got := SimulatedDate(t0, t0.Add(48*time.Hour), 30, start, end)
	assert.Equal(t, end, got)

	// Far beyond the window stays clamped.
	got = SimulatedDate(t0, t0.Add(1000*time.Hour), 30, start, end)
	assert.Equal(t, end, got)
}

func TestSimulatedDateNeverBeforePeriodStart(t *testing.T) {
	start := date(2020, time.January, 1)
	end := date(2020, time.January, 31)
	t0 := time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)

	// A clock skew where now precedes startedAt must not underflow the window.
	got := SimulatedDate(t0, t0.Add(-time.Hour), 10, start, end)
	assert.Equal(t, start, got)
}

func TestSimulatedDateMonotonic(t *testing.T) {
	start := date(2020, time.January, 1)
	end := date(2020, time.March, 31)
	t0 := time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)

	prev := SimulatedDate(t0, t0, 25, start, end)
	for i := 1; i <= 200; i++ {
		now := t0.Add(time.Duration(i) * 37 * time.Minute)
		cur := SimulatedDate(t0, now, 25, start, end)
		require.False(t, cur.Before(prev), "date went backwards at step %d", i)
		prev = cur
	}
}

func TestSimulatedDateDeterministic(t *testing.T) {
	start := date(2020, time.January, 1)
	end := date(2020, time.December, 31)
	t0 := time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)
	now := t0.Add(7*time.Hour + 13*time.Minute)

	first := SimulatedDate(t0, now, 42, start, end)
	second := SimulatedDate(t0, now, 42, start, end)
	assert.Equal(t, first, second)
}

func TestValidateWindow(t *testing.T) {
	start := date(2020, time.January, 1)
	end := date(2020, time.January, 31)

	assert.NoError(t, ValidateWindow(1, start, end))
	assert.NoError(t, ValidateWindow(100, start, start))
	assert.Error(t, ValidateWindow(0, start, end))
	assert.Error(t, ValidateWindow(-5, start, end))
	assert.Error(t, ValidateWindow(10, end, start))
}
