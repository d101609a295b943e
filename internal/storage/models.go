// Package storage adapts the PostgreSQL schema to the domain ports used by
// the scheduler and valuation engine.
package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

type challengeRow struct {
	ID          int64     `gorm:"column:id;primaryKey"`
	Title       string    `gorm:"column:title"`
	Status      string    `gorm:"column:status"`
	SpeedFactor int       `gorm:"column:speed_factor"`
	PeriodStart time.Time `gorm:"column:period_start"`
	PeriodEnd   time.Time `gorm:"column:period_end"`
}

func (challengeRow) TableName() string { return "challenges" }

type challengeInstrumentRow struct {
	ChallengeID   int64  `gorm:"column:challenge_id"`
	InstrumentKey string `gorm:"column:instrument_key"`
}

func (challengeInstrumentRow) TableName() string { return "challenge_instruments" }

type sessionRow struct {
	ID             int64           `gorm:"column:id;primaryKey"`
	ChallengeID    int64           `gorm:"column:challenge_id"`
	Status         string          `gorm:"column:status"`
	StartedAt      time.Time       `gorm:"column:started_at"`
	CompletedAt    *time.Time      `gorm:"column:completed_at"`
	InitialBalance decimal.Decimal `gorm:"column:initial_balance"`
	FinalValue     decimal.Decimal `gorm:"column:final_value"`
	ReturnRate     decimal.Decimal `gorm:"column:return_rate"`
}

func (sessionRow) TableName() string { return "challenge_sessions" }

type positionRow struct {
	SessionID     int64           `gorm:"column:session_id"`
	InstrumentKey string          `gorm:"column:instrument_key"`
	Quantity      decimal.Decimal `gorm:"column:quantity"`
	AveragePrice  decimal.Decimal `gorm:"column:average_price"`
}

func (positionRow) TableName() string { return "portfolio_positions" }

type candleRow struct {
	InstrumentKey string          `gorm:"column:instrument_key"`
	TradeDate     time.Time       `gorm:"column:trade_date"`
	ClosePrice    decimal.Decimal `gorm:"column:close_price"`
}

func (candleRow) TableName() string { return "price_candles" }

type leaderboardRow struct {
	ChallengeID int64           `gorm:"column:challenge_id"`
	SessionID   int64           `gorm:"column:session_id"`
	Rank        int             `gorm:"column:rank"`
	ReturnRate  decimal.Decimal `gorm:"column:return_rate"`
	FinalValue  decimal.Decimal `gorm:"column:final_value"`
	UpdatedAt   time.Time       `gorm:"column:updated_at"`
}

func (leaderboardRow) TableName() string { return "leaderboard_entries" }
