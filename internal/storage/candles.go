package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CandleRepo resolves closing prices from the daily candle table. It backs
// the valuation engine's price source.
type CandleRepo struct {
	db *gorm.DB
}

// NewCandleRepo creates a candle repository.
func NewCandleRepo(db *gorm.DB) *CandleRepo {
	return &CandleRepo{db: db}
}

// Close returns the closing price for the exact trade date.
func (r *CandleRepo) Close(ctx context.Context, instrumentKey string, date time.Time) (decimal.Decimal, bool, error) {
	var row candleRow
	err := r.db.WithContext(ctx).
		Where("instrument_key = ? AND trade_date = ?", instrumentKey, date).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("close for %s at %s: %w", instrumentKey, date.Format(time.DateOnly), err)
	}
	return row.ClosePrice, true, nil
}

// LastCloseInRange returns the most recent close in [from, to].
func (r *CandleRepo) LastCloseInRange(ctx context.Context, instrumentKey string, from, to time.Time) (decimal.Decimal, bool, error) {
	var row candleRow
	err := r.db.WithContext(ctx).
		Where("instrument_key = ? AND trade_date BETWEEN ? AND ?", instrumentKey, from, to).
		Order("trade_date DESC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("ranged close for %s: %w", instrumentKey, err)
	}
	return row.ClosePrice, true, nil
}

// Latest returns the most recent known close regardless of date.
func (r *CandleRepo) Latest(ctx context.Context, instrumentKey string) (decimal.Decimal, bool, error) {
	var row candleRow
	err := r.db.WithContext(ctx).
		Where("instrument_key = ?", instrumentKey).
		Order("trade_date DESC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("latest close for %s: %w", instrumentKey, err)
	}
	return row.ClosePrice, true, nil
}
