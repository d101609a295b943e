// Package simclock maps wall-clock elapsed time onto simulated calendar dates.
package simclock

import (
	"time"

	"github.com/yanun0323/errors"

	"stockquest/internal/model"
)

const millisPerDay = 86_400_000

// SimulatedDate computes the calendar date a session is replaying at the given
// instant. The result is derived, never accumulated: speedFactor simulated
// days pass per real day, floored to whole days from periodStart and clamped
// to periodEnd. Calling it twice with the same inputs yields the same date.
func SimulatedDate(startedAt, now time.Time, speedFactor int, periodStart, periodEnd time.Time) time.Time {
	elapsed := now.Sub(startedAt).Milliseconds()
	if elapsed < 0 {
		elapsed = 0
	}
	simulatedDays := elapsed * int64(speedFactor) / millisPerDay
	date := model.AddDays(periodStart, simulatedDays)
	if date.After(model.Day(periodEnd)) {
		return model.Day(periodEnd)
	}
	return date
}

// ValidateWindow rejects configurations that must never reach the tick loop.
func ValidateWindow(speedFactor int, periodStart, periodEnd time.Time) error {
	if speedFactor <= 0 {
		return errors.Errorf("speed factor must be positive, got %d", speedFactor)
	}
	if model.Day(periodEnd).Before(model.Day(periodStart)) {
		return errors.Errorf("period end %s before period start %s",
			model.Day(periodEnd).Format(time.DateOnly), model.Day(periodStart).Format(time.DateOnly))
	}
	return nil
}
