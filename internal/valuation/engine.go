// Package valuation marks portfolios to market as of a simulated date.
package valuation

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"stockquest/internal/model"
	"stockquest/internal/obs"
)

// PriceSource resolves historical and latest closing prices for instruments.
// The ok result distinguishes "no candle" from a lookup failure.
type PriceSource interface {
	// Close returns the closing price for the exact date.
	Close(ctx context.Context, instrumentKey string, date time.Time) (decimal.Decimal, bool, error)
	// LastCloseInRange returns the most recent close in [from, to].
	LastCloseInRange(ctx context.Context, instrumentKey string, from, to time.Time) (decimal.Decimal, bool, error)
	// Latest returns the most recent known close regardless of date.
	Latest(ctx context.Context, instrumentKey string) (decimal.Decimal, bool, error)
}

// PortfolioRepository provides a session's holdings.
type PortfolioRepository interface {
	Positions(ctx context.Context, sessionID int64) ([]model.Position, error)
}

// DefaultPrices is the last-resort price table, keyed by instrument. Unknown
// instruments fall back to ultimateDefault so valuation never fails outright.
type DefaultPrices map[string]decimal.Decimal

var ultimateDefault = decimal.RequireFromString("100.00")

// Resolve returns the default price for an instrument.
func (d DefaultPrices) Resolve(instrumentKey string) decimal.Decimal {
	if p, ok := d[instrumentKey]; ok {
		return p
	}
	return ultimateDefault
}

// Config tunes the valuation engine.
type Config struct {
	// LookbackDays bounds the search for the most recent close before the
	// requested date.
	LookbackDays int
	// Defaults is the per-instrument last-resort price table.
	Defaults DefaultPrices
}

const defaultLookbackDays = 30

func (c Config) withDefaults() Config {
	if c.LookbackDays <= 0 {
		c.LookbackDays = defaultLookbackDays
	}
	if c.Defaults == nil {
		c.Defaults = DefaultPrices{}
	}
	return c
}

// Engine values a session's portfolio against historical prices. Prices
// resolve through a fallback chain; valuation itself never fails on a missing
// price.
type Engine struct {
	portfolio PortfolioRepository
	prices    PriceSource
	metrics   *obs.Metrics

	mu  sync.RWMutex
	cfg Config
}

// NewEngine creates a valuation engine.
func NewEngine(portfolio PortfolioRepository, prices PriceSource, cfg Config, metrics *obs.Metrics) *Engine {
	return &Engine{
		portfolio: portfolio,
		prices:    prices,
		metrics:   metrics,
		cfg:       cfg.withDefaults(),
	}
}

// UpdateConfig swaps the lookback window and default price table. Used by
// config hot reload.
func (e *Engine) UpdateConfig(cfg Config) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg = cfg.withDefaults()
}

func (e *Engine) config() Config {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cfg
}

// Value computes the total mark-to-market value of the session's holdings as
// of asOf. Prices are resolved once per challenge instrument; a position in
// an instrument outside that list falls back to its average price.
func (e *Engine) Value(ctx context.Context, sessionID int64, instruments []string, asOf time.Time) (decimal.Decimal, error) {
	positions, err := e.portfolio.Positions(ctx, sessionID)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "load positions")
	}
	if len(positions) == 0 {
		return decimal.Zero, nil
	}

	prices := e.resolvePrices(ctx, instruments, positions, asOf)

	total := decimal.Zero
	for _, pos := range positions {
		if !pos.HasPosition() {
			continue
		}
		price, ok := prices[pos.InstrumentKey]
		if !ok {
			logs.Warnf("no resolved price for %s in session %d, using average price", pos.InstrumentKey, sessionID)
			price = pos.AveragePrice
		}
		total = total.Add(pos.Quantity.Mul(price))
	}
	return total, nil
}

// PositionDetail is the per-position breakdown of a valuation.
type PositionDetail struct {
	InstrumentKey string          `json:"instrumentKey"`
	Quantity      decimal.Decimal `json:"quantity"`
	AveragePrice  decimal.Decimal `json:"averagePrice"`
	MarketPrice   decimal.Decimal `json:"marketPrice"`
	Value         decimal.Decimal `json:"value"`
	UnrealizedPnL decimal.Decimal `json:"unrealizedPnl"`
}

// Detail is the full valuation breakdown for operational inspection.
type Detail struct {
	SessionID  int64            `json:"sessionId"`
	AsOf       time.Time        `json:"asOf"`
	TotalValue decimal.Decimal  `json:"totalValue"`
	Positions  []PositionDetail `json:"positions"`
}

// ValueDetail computes the valuation with a per-position breakdown.
func (e *Engine) ValueDetail(ctx context.Context, sessionID int64, instruments []string, asOf time.Time) (Detail, error) {
	positions, err := e.portfolio.Positions(ctx, sessionID)
	if err != nil {
		return Detail{}, errors.Wrap(err, "load positions")
	}

	prices := e.resolvePrices(ctx, instruments, positions, asOf)
	detail := Detail{SessionID: sessionID, AsOf: asOf, TotalValue: decimal.Zero}
	for _, pos := range positions {
		if !pos.HasPosition() {
			continue
		}
		price, ok := prices[pos.InstrumentKey]
		if !ok {
			price = pos.AveragePrice
		}
		value := pos.Quantity.Mul(price)
		detail.Positions = append(detail.Positions, PositionDetail{
			InstrumentKey: pos.InstrumentKey,
			Quantity:      pos.Quantity,
			AveragePrice:  pos.AveragePrice,
			MarketPrice:   price,
			Value:         value,
			UnrealizedPnL: value.Sub(pos.TotalCost()),
		})
		detail.TotalValue = detail.TotalValue.Add(value)
	}
	return detail, nil
}

// resolvePrices resolves one price per challenge instrument actually held
// with a non-zero quantity. Zero-quantity positions never cost a lookup.
func (e *Engine) resolvePrices(ctx context.Context, instruments []string, positions []model.Position, asOf time.Time) map[string]decimal.Decimal {
	held := make(map[string]bool, len(positions))
	for _, pos := range positions {
		if pos.HasPosition() {
			held[pos.InstrumentKey] = true
		}
	}
	prices := make(map[string]decimal.Decimal, len(instruments))
	for _, key := range instruments {
		if held[key] {
			prices[key] = e.resolvePrice(ctx, key, asOf)
		}
	}
	return prices
}

// resolvePrice walks the fallback chain: exact close, most recent close
// within the lookback window, latest known price, per-instrument default.
// Each degradation step is logged so silent drift stays diagnosable.
func (e *Engine) resolvePrice(ctx context.Context, instrumentKey string, asOf time.Time) decimal.Decimal {
	cfg := e.config()
	asOf = model.Day(asOf)
	day := asOf.Format(time.DateOnly)

	price, ok, err := e.prices.Close(ctx, instrumentKey, asOf)
	if err != nil {
		logs.Warnf("close lookup failed for %s at %s, err: %+v", instrumentKey, day, err)
	} else if ok {
		e.metrics.IncFallback(obs.FallbackExact)
		return price
	}

	from := model.AddDays(asOf, -int64(cfg.LookbackDays))
	price, ok, err = e.prices.LastCloseInRange(ctx, instrumentKey, from, asOf)
	if err != nil {
		logs.Warnf("lookback lookup failed for %s, err: %+v", instrumentKey, err)
	} else if ok {
		logs.Infof("no close for %s at %s, using most recent close in lookback window", instrumentKey, day)
		e.metrics.IncFallback(obs.FallbackLookback)
		return price
	}

	price, ok, err = e.prices.Latest(ctx, instrumentKey)
	if err != nil {
		logs.Warnf("latest lookup failed for %s, err: %+v", instrumentKey, err)
	} else if ok {
		logs.Warnf("no historical close for %s near %s, using latest known price", instrumentKey, day)
		e.metrics.IncFallback(obs.FallbackLatest)
		return price
	}

	price = cfg.Defaults.Resolve(instrumentKey)
	logs.Warnf("no price data at all for %s, using default %s", instrumentKey, price)
	e.metrics.IncFallback(obs.FallbackDefault)
	return price
}
