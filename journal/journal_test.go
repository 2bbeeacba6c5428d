package journal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rustyeddy/tradeguard/backtest"
	"github.com/rustyeddy/tradeguard/circuit"
	"github.com/rustyeddy/tradeguard/internal/id"
	"github.com/rustyeddy/tradeguard/market"
	"github.com/rustyeddy/tradeguard/perf"
	"github.com/rustyeddy/tradeguard/trade"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day0 = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

func sampleTrade(id string, pnl float64, closeDay int) trade.ClosedTrade {
	return trade.ClosedTrade{
		ID:         id,
		Instrument: "EUR_USD",
		Direction:  market.Long,
		EntryPrice: 1.085,
		ExitPrice:  1.0875,
		Size:       5000,
		PnL:        pnl,
		PnLPercent: pnl / 5000 * 100,
		OpenedAt:   day0,
		ClosedAt:   day0.AddDate(0, 0, closeDay),
		ExitReason: trade.TakeProfit,
	}
}

type memStore struct {
	trades  []trade.ClosedTrade
	equity  []trade.EquityPoint
	firings []circuit.Firing
	runs    []Run
	fail    error
}

func (m *memStore) InsertTrade(_ string, t trade.ClosedTrade) error {
	m.trades = append(m.trades, t)
	return m.fail
}

func (m *memStore) InsertEquity(_ string, p trade.EquityPoint) error {
	m.equity = append(m.equity, p)
	return m.fail
}

func (m *memStore) InsertFiring(_ string, f circuit.Firing) error {
	m.firings = append(m.firings, f)
	return m.fail
}

func (m *memStore) InsertRun(r Run) error {
	m.runs = append(m.runs, r)
	return m.fail
}

func (m *memStore) Close() error {
	return nil
}

func TestRecorderForwards(t *testing.T) {
	t.Parallel()

	store := &memStore{}
	rec := NewRecorder(store, "RUN1", nil)
	ctx := context.Background()

	rec.TradeOpened(ctx, trade.Position{ID: "T1", Direction: market.Long})
	rec.TradeClosed(ctx, sampleTrade("T1", 12.5, 1))
	rec.EquityUpdated(ctx, trade.EquityPoint{Time: day0, Capital: 10000})
	rec.OnFiring(ctx, circuit.Firing{Level: 10, At: day0})
	require.NoError(t, rec.Finish(Run{Name: "x"}))

	assert.Len(t, store.trades, 1)
	assert.Len(t, store.equity, 1)
	assert.Len(t, store.firings, 1)
	require.Len(t, store.runs, 1)
	assert.Equal(t, "RUN1", store.runs[0].RunID)
	assert.Equal(t, "RUN1", rec.RunID())
	assert.NoError(t, rec.Err())
}

func TestRecorderKeepsFirstError(t *testing.T) {
	t.Parallel()

	boom := errors.New("disk full")
	store := &memStore{fail: boom}
	rec := NewRecorder(store, "RUN1", nil)
	ctx := context.Background()

	// writes keep going; the engine never sees the failure
	rec.TradeClosed(ctx, sampleTrade("T1", 1, 1))
	store.fail = errors.New("second")
	rec.EquityUpdated(ctx, trade.EquityPoint{Time: day0, Capital: 1})

	assert.ErrorIs(t, rec.Err(), boom)
	assert.Len(t, store.equity, 1)
}

func TestRunFromResult(t *testing.T) {
	t.Parallel()

	res := backtest.Result{
		RunID:    "R",
		Name:     "daily",
		Strategy: "ema-cross(EMA(10),EMA(30))",
		Bars:     40,
		Skipped:  1,
		Halted:   true,
		Start:    day0,
		End:      day0.AddDate(0, 0, 40),
		Report:   perf.Report{Trades: 3},
	}
	run := RunFromResult(res, "EUR_USD", "eurusd.csv")
	assert.Equal(t, "R", run.RunID)
	assert.Equal(t, "EUR_USD", run.Instrument)
	assert.Equal(t, "eurusd.csv", run.Dataset)
	assert.Equal(t, 40, run.Bars)
	assert.True(t, run.Halted)
	assert.Equal(t, 3, run.Report.Trades)
	assert.False(t, run.Created.IsZero())

	res.RunID = id.At(day0)
	run = RunFromResult(res, "EUR_USD", "eurusd.csv")
	assert.Equal(t, day0, run.Created)
}
