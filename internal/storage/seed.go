package storage

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"stockquest/internal/model"
)

// AutoMigrate creates or updates the simulation tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&challengeRow{},
		&challengeInstrumentRow{},
		&sessionRow{},
		&positionRow{},
		&candleRow{},
		&leaderboardRow{},
	)
}

// SeedSpec describes the demo dataset written by SeedDemo.
type SeedSpec struct {
	Title       string
	SpeedFactor int
	PeriodStart time.Time
	PeriodEnd   time.Time
	Instruments []string
	Sessions    int
	Balance     decimal.Decimal
}

// SeedDemo writes one active challenge with synthetic daily candles, plus a
// set of active sessions each holding the first instrument. Meant for local
// development only.
func SeedDemo(db *gorm.DB, spec SeedSpec) error {
	if spec.Sessions <= 0 {
		spec.Sessions = 1
	}
	if spec.Balance.IsZero() {
		spec.Balance = decimal.NewFromInt(10_000)
	}
	if len(spec.Instruments) == 0 {
		return fmt.Errorf("seed requires at least one instrument")
	}

	return db.Transaction(func(tx *gorm.DB) error {
		challenge := challengeRow{
			Title:       spec.Title,
			Status:      string(model.ChallengeActive),
			SpeedFactor: spec.SpeedFactor,
			PeriodStart: model.Day(spec.PeriodStart),
			PeriodEnd:   model.Day(spec.PeriodEnd),
		}
		if err := tx.Create(&challenge).Error; err != nil {
			return fmt.Errorf("create challenge: %w", err)
		}

		for _, key := range spec.Instruments {
			row := challengeInstrumentRow{ChallengeID: challenge.ID, InstrumentKey: key}
			if err := tx.Create(&row).Error; err != nil {
				return fmt.Errorf("create instrument %s: %w", key, err)
			}
		}

		if err := seedCandles(tx, spec); err != nil {
			return err
		}

		now := time.Now().UTC()
		for i := 0; i < spec.Sessions; i++ {
			session := sessionRow{
				ChallengeID:    challenge.ID,
				Status:         string(model.SessionActive),
				StartedAt:      now,
				InitialBalance: spec.Balance,
				FinalValue:     decimal.Zero,
				ReturnRate:     decimal.Zero,
			}
			if err := tx.Create(&session).Error; err != nil {
				return fmt.Errorf("create session %d: %w", i, err)
			}

			position := positionRow{
				SessionID:     session.ID,
				InstrumentKey: spec.Instruments[0],
				Quantity:      decimal.NewFromInt(int64(10 + i)),
				AveragePrice:  decimal.NewFromInt(100),
			}
			if err := tx.Create(&position).Error; err != nil {
				return fmt.Errorf("create position for session %d: %w", session.ID, err)
			}
		}
		return nil
	})
}

// seedCandles writes a deterministic sine-wave close series per instrument so
// valuations move visibly as the simulated date advances.
func seedCandles(tx *gorm.DB, spec SeedSpec) error {
	days := model.DaysBetween(spec.PeriodStart, spec.PeriodEnd)
	for i, key := range spec.Instruments {
		base := 80 + 40*float64(i+1)
		for d := int64(0); d <= days; d++ {
			price := base * (1 + 0.1*math.Sin(float64(d)/5))
			row := candleRow{
				InstrumentKey: key,
				TradeDate:     model.AddDays(spec.PeriodStart, d),
				ClosePrice:    decimal.NewFromFloat(price).Round(2),
			}
			if err := tx.Create(&row).Error; err != nil {
				return fmt.Errorf("create candle %s day %d: %w", key, d, err)
			}
		}
	}
	return nil
}
