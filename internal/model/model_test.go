package model

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestReturnPercent(t *testing.T) {
	s := &Session{InitialBalance: dec("10000")}

	assert.True(t, s.ReturnPercent(dec("12500")).Equal(dec("25")))
	assert.True(t, s.ReturnPercent(dec("7500")).Equal(dec("-25")))
	assert.True(t, s.ReturnPercent(dec("10000")).IsZero())
}

func TestReturnPercentRounds(t *testing.T) {
	s := &Session{InitialBalance: dec("3")}
	// 1/3 of the balance gained: 33.3333...% rounded to four places.
	assert.True(t, s.ReturnPercent(dec("4")).Equal(dec("33.3333")), "got %s", s.ReturnPercent(dec("4")))
}

func TestReturnPercentZeroBalance(t *testing.T) {
	s := &Session{InitialBalance: decimal.Zero}
	assert.True(t, s.ReturnPercent(dec("500")).IsZero())
}

func TestSessionEnd(t *testing.T) {
	s := &Session{ID: 7, Status: SessionActive, InitialBalance: dec("200")}
	now := time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC)

	s.End(now, dec("300"))

	assert.Equal(t, SessionEnded, s.Status)
	require.NotNil(t, s.CompletedAt)
	assert.Equal(t, now, *s.CompletedAt)
	assert.True(t, s.FinalValue.Equal(dec("300")))
	assert.True(t, s.ReturnRate.Equal(dec("50")))
}

func TestPositionHelpers(t *testing.T) {
	p := Position{Quantity: dec("4"), AveragePrice: dec("25.50")}
	assert.True(t, p.HasPosition())
	assert.True(t, p.TotalCost().Equal(dec("102.00")))

	assert.False(t, Position{Quantity: decimal.Zero}.HasPosition())
}

func TestDay(t *testing.T) {
	loc := time.FixedZone("UTC+9", 9*3600)
	// 2020-01-02 03:00 +09 is 2020-01-01 18:00 UTC.
	ts := time.Date(2020, time.January, 2, 3, 0, 0, 0, loc)
	assert.True(t, Day(ts).Equal(time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC)))
}

func TestAddDays(t *testing.T) {
	d := time.Date(2020, time.February, 27, 15, 30, 0, 0, time.UTC)
	assert.True(t, AddDays(d, 2).Equal(time.Date(2020, time.February, 29, 0, 0, 0, 0, time.UTC)))
}

func TestDaysBetween(t *testing.T) {
	a := time.Date(2020, time.January, 1, 23, 0, 0, 0, time.UTC)
	b := time.Date(2020, time.January, 31, 1, 0, 0, 0, time.UTC)
	assert.Equal(t, int64(30), DaysBetween(a, b))
	assert.Equal(t, int64(-30), DaysBetween(b, a))
	assert.Equal(t, int64(0), DaysBetween(a, a))
}
