package valuation

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockquest/internal/model"
	"stockquest/internal/obs"
)

type fakePortfolio struct {
	positions []model.Position
	err       error
}

func (f *fakePortfolio) Positions(_ context.Context, _ int64) ([]model.Position, error) {
	return f.positions, f.err
}

// fakePrices records lookups and serves candles from fixed maps.
type fakePrices struct {
	closes  map[string]decimal.Decimal // keyed by instrument|date
	ranged  map[string]decimal.Decimal // keyed by instrument
	latest  map[string]decimal.Decimal
	lookups []string
}

func (f *fakePrices) key(instrument string, date time.Time) string {
	return instrument + "|" + date.Format(time.DateOnly)
}

func (f *fakePrices) Close(_ context.Context, instrument string, date time.Time) (decimal.Decimal, bool, error) {
	f.lookups = append(f.lookups, "close:"+instrument)
	p, ok := f.closes[f.key(instrument, date)]
	return p, ok, nil
}

func (f *fakePrices) LastCloseInRange(_ context.Context, instrument string, _, _ time.Time) (decimal.Decimal, bool, error) {
	f.lookups = append(f.lookups, "range:"+instrument)
	p, ok := f.ranged[instrument]
	return p, ok, nil
}

func (f *fakePrices) Latest(_ context.Context, instrument string) (decimal.Decimal, bool, error) {
	f.lookups = append(f.lookups, "latest:"+instrument)
	p, ok := f.latest[instrument]
	return p, ok, nil
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestValueUsesExactClose(t *testing.T) {
	asOf := day(2020, time.March, 10)
	prices := &fakePrices{
		closes: map[string]decimal.Decimal{"AAPL|2020-03-10": dec("150.00")},
	}
	portfolio := &fakePortfolio{positions: []model.Position{
		{SessionID: 1, InstrumentKey: "AAPL", Quantity: dec("4"), AveragePrice: dec("120.00")},
	}}
	engine := NewEngine(portfolio, prices, Config{}, obs.NewMetrics())

	total, err := engine.Value(context.Background(), 1, []string{"AAPL"}, asOf)
	require.NoError(t, err)
	assert.True(t, total.Equal(dec("600.00")), "got %s", total)
}

func TestValueFallsBackToLookbackClose(t *testing.T) {
	asOf := day(2020, time.March, 10)
	// No close for the exact date, but one three days earlier.
	prices := &fakePrices{
		ranged: map[string]decimal.Decimal{"AAPL": dec("140.00")},
		latest: map[string]decimal.Decimal{"AAPL": dec("999.00")},
	}
	portfolio := &fakePortfolio{positions: []model.Position{
		{SessionID: 1, InstrumentKey: "AAPL", Quantity: dec("2"), AveragePrice: dec("120.00")},
	}}
	engine := NewEngine(portfolio, prices, Config{}, obs.NewMetrics())

	total, err := engine.Value(context.Background(), 1, []string{"AAPL"}, asOf)
	require.NoError(t, err)
	assert.True(t, total.Equal(dec("280.00")), "lookback close must win over latest, got %s", total)
}

func TestValueFallsBackToLatest(t *testing.T) {
	asOf := day(2020, time.March, 10)
	prices := &fakePrices{
		latest: map[string]decimal.Decimal{"AAPL": dec("170.00")},
	}
	portfolio := &fakePortfolio{positions: []model.Position{
		{SessionID: 1, InstrumentKey: "AAPL", Quantity: dec("1"), AveragePrice: dec("120.00")},
	}}
	engine := NewEngine(portfolio, prices, Config{}, obs.NewMetrics())

	total, err := engine.Value(context.Background(), 1, []string{"AAPL"}, asOf)
	require.NoError(t, err)
	assert.True(t, total.Equal(dec("170.00")), "got %s", total)
}

func TestValueFallsBackToDefaultConstant(t *testing.T) {
	asOf := day(2020, time.March, 10)
	prices := &fakePrices{}
	portfolio := &fakePortfolio{positions: []model.Position{
		{SessionID: 1, InstrumentKey: "MSFT", Quantity: dec("2"), AveragePrice: dec("120.00")},
		{SessionID: 1, InstrumentKey: "ZZZZ", Quantity: dec("1"), AveragePrice: dec("50.00")},
	}}
	engine := NewEngine(portfolio, prices, Config{
		Defaults: DefaultPrices{"MSFT": dec("350.00")},
	}, obs.NewMetrics())

	total, err := engine.Value(context.Background(), 1, []string{"MSFT", "ZZZZ"}, asOf)
	require.NoError(t, err)
	// MSFT uses its table entry, ZZZZ the 100.00 ultimate default.
	assert.True(t, total.Equal(dec("800.00")), "got %s", total)
}

func TestZeroQuantityPositionResolvesNoPrice(t *testing.T) {
	asOf := day(2020, time.March, 10)
	prices := &fakePrices{
		closes: map[string]decimal.Decimal{"AAPL|2020-03-10": dec("150.00")},
	}
	portfolio := &fakePortfolio{positions: []model.Position{
		{SessionID: 1, InstrumentKey: "AAPL", Quantity: decimal.Zero, AveragePrice: dec("120.00")},
	}}
	engine := NewEngine(portfolio, prices, Config{}, obs.NewMetrics())

	total, err := engine.Value(context.Background(), 1, []string{"AAPL"}, asOf)
	require.NoError(t, err)
	assert.True(t, total.IsZero())
	assert.Empty(t, prices.lookups, "a zero-quantity position must not hit the price source")
}

func TestEmptyPortfolioShortCircuits(t *testing.T) {
	prices := &fakePrices{}
	engine := NewEngine(&fakePortfolio{}, prices, Config{}, obs.NewMetrics())

	total, err := engine.Value(context.Background(), 1, []string{"AAPL"}, day(2020, time.March, 10))
	require.NoError(t, err)
	assert.True(t, total.IsZero())
	assert.Empty(t, prices.lookups)
}

func TestPositionOutsideChallengeUsesAveragePrice(t *testing.T) {
	asOf := day(2020, time.March, 10)
	prices := &fakePrices{
		closes: map[string]decimal.Decimal{"AAPL|2020-03-10": dec("150.00")},
	}
	portfolio := &fakePortfolio{positions: []model.Position{
		{SessionID: 1, InstrumentKey: "TSLA", Quantity: dec("3"), AveragePrice: dec("200.00")},
	}}
	engine := NewEngine(portfolio, prices, Config{}, obs.NewMetrics())

	total, err := engine.Value(context.Background(), 1, []string{"AAPL"}, asOf)
	require.NoError(t, err)
	assert.True(t, total.Equal(dec("600.00")), "got %s", total)
}

func TestValueDetail(t *testing.T) {
	asOf := day(2020, time.March, 10)
	prices := &fakePrices{
		closes: map[string]decimal.Decimal{"AAPL|2020-03-10": dec("150.00")},
	}
	portfolio := &fakePortfolio{positions: []model.Position{
		{SessionID: 1, InstrumentKey: "AAPL", Quantity: dec("4"), AveragePrice: dec("120.00")},
		{SessionID: 1, InstrumentKey: "AAPL", Quantity: decimal.Zero, AveragePrice: dec("0")},
	}}
	engine := NewEngine(portfolio, prices, Config{}, obs.NewMetrics())

	detail, err := engine.ValueDetail(context.Background(), 1, []string{"AAPL"}, asOf)
	require.NoError(t, err)
	require.Len(t, detail.Positions, 1)
	pos := detail.Positions[0]
	assert.True(t, pos.Value.Equal(dec("600.00")))
	assert.True(t, pos.UnrealizedPnL.Equal(dec("120.00")), "got %s", pos.UnrealizedPnL)
	assert.True(t, detail.TotalValue.Equal(dec("600.00")))
}

func TestFallbackMetrics(t *testing.T) {
	asOf := day(2020, time.March, 10)
	metrics := obs.NewMetrics()
	prices := &fakePrices{
		ranged: map[string]decimal.Decimal{"AAPL": dec("140.00")},
	}
	portfolio := &fakePortfolio{positions: []model.Position{
		{SessionID: 1, InstrumentKey: "AAPL", Quantity: dec("1"), AveragePrice: dec("120.00")},
	}}
	engine := NewEngine(portfolio, prices, Config{}, metrics)

	_, err := engine.Value(context.Background(), 1, []string{"AAPL"}, asOf)
	require.NoError(t, err)

	snap := metrics.Snapshot()
	assert.Equal(t, uint64(1), snap.FallbackCounts["lookback"])
}
