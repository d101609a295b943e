package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// SessionStatus is the lifecycle state of a challenge session.
type SessionStatus string

const (
	SessionReady     SessionStatus = "READY"
	SessionActive    SessionStatus = "ACTIVE"
	SessionEnded     SessionStatus = "ENDED"
	SessionCancelled SessionStatus = "CANCELLED"
)

// ChallengeStatus is the lifecycle state of a challenge.
type ChallengeStatus string

const (
	ChallengeDraft     ChallengeStatus = "DRAFT"
	ChallengeActive    ChallengeStatus = "ACTIVE"
	ChallengeCompleted ChallengeStatus = "COMPLETED"
	ChallengeArchived  ChallengeStatus = "ARCHIVED"
)

// Session is one user's participation in a challenge.
type Session struct {
	ID             int64
	ChallengeID    int64
	Status         SessionStatus
	StartedAt      time.Time
	CompletedAt    *time.Time
	InitialBalance decimal.Decimal
	FinalValue     decimal.Decimal
	ReturnRate     decimal.Decimal
}

// ReturnPercent computes the return of finalValue against the initial balance,
// expressed as a percentage.
func (s *Session) ReturnPercent(finalValue decimal.Decimal) decimal.Decimal {
	if s.InitialBalance.IsZero() {
		return decimal.Zero
	}
	return finalValue.
		Sub(s.InitialBalance).
		Div(s.InitialBalance).
		Mul(decimal.NewFromInt(100)).
		Round(4)
}

// End transitions the session to its terminal state with the final valuation.
func (s *Session) End(now time.Time, finalValue decimal.Decimal) {
	s.Status = SessionEnded
	s.CompletedAt = &now
	s.FinalValue = finalValue
	s.ReturnRate = s.ReturnPercent(finalValue)
}

// Challenge is the replayed market scenario a session participates in.
type Challenge struct {
	ID          int64
	Title       string
	Status      ChallengeStatus
	SpeedFactor int
	PeriodStart time.Time
	PeriodEnd   time.Time
	Instruments []string
}

// Position is a session's holding in one instrument.
type Position struct {
	SessionID     int64
	InstrumentKey string
	Quantity      decimal.Decimal
	AveragePrice  decimal.Decimal
}

// HasPosition reports whether the position holds a non-zero quantity.
func (p Position) HasPosition() bool {
	return !p.Quantity.IsZero()
}

// TotalCost is the cost basis of the position.
func (p Position) TotalCost() decimal.Decimal {
	return p.Quantity.Mul(p.AveragePrice)
}

// Day truncates t to its UTC calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// AddDays returns the calendar date n days after d.
func AddDays(d time.Time, n int64) time.Time {
	return Day(d).AddDate(0, 0, int(n))
}

// DaysBetween counts whole calendar days from a to b. Negative when b is
// before a.
func DaysBetween(a, b time.Time) int64 {
	return int64(Day(b).Sub(Day(a)) / (24 * time.Hour))
}
