package perf

import (
	"encoding/json"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/rustyeddy/tradeguard/trade"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func curve(caps ...float64) []trade.EquityPoint {
	out := make([]trade.EquityPoint, len(caps))
	for i, c := range caps {
		out[i] = trade.EquityPoint{Time: t0.Add(time.Duration(i) * 24 * time.Hour), Capital: c}
	}
	return out
}

func trades(pnls ...float64) []trade.ClosedTrade {
	out := make([]trade.ClosedTrade, len(pnls))
	for i, p := range pnls {
		open := t0.Add(time.Duration(i) * 24 * time.Hour)
		out[i] = trade.ClosedTrade{PnL: p, OpenedAt: open, ClosedAt: open.Add(6 * time.Hour)}
	}
	return out
}

func TestComputeNoTrades(t *testing.T) {
	t.Parallel()

	r := Compute(nil, nil, Options{})
	assert.Equal(t, 0, r.Trades)
	assert.Equal(t, 0.0, r.WinRate)
	assert.Equal(t, 0.0, r.ProfitFactor)
	assert.Equal(t, time.Duration(0), r.AvgTradeDuration)
	assert.Equal(t, 0.0, r.MaxDrawdownPct)
	assert.Equal(t, 0.0, r.Sharpe)
	assert.Equal(t, 0.0, r.Calmar)

	_, err := json.Marshal(r)
	assert.NoError(t, err)
}

func TestProfitFactorSentinels(t *testing.T) {
	t.Parallel()

	assert.True(t, math.IsInf(ProfitFactor(trades(10, 20)), 1), "only winners")
	assert.Equal(t, 0.0, ProfitFactor(trades(-10, -20)), "only losers")
	assert.Equal(t, 0.0, ProfitFactor(trades(0, 0)), "only scratches")
	assert.InDelta(t, 1.5, ProfitFactor(trades(30, -10, -10)), 1e-12)

	// property: +Inf iff no losers and at least one winner; 0 iff no winners and a loser
	r := rand.New(rand.NewSource(3))
	for i := 0; i < 500; i++ {
		n := r.Intn(6)
		pnls := make([]float64, n)
		wins, losses := 0, 0
		for j := range pnls {
			pnls[j] = float64(r.Intn(21) - 10)
			if pnls[j] > 0 {
				wins++
			} else if pnls[j] < 0 {
				losses++
			}
		}
		pf := ProfitFactor(trades(pnls...))
		assert.Equal(t, losses == 0 && wins > 0, math.IsInf(pf, 1), "%v", pnls)
		if losses > 0 {
			assert.Equal(t, wins == 0, pf == 0, "%v", pnls)
		}
	}
}

func TestReportJSONInfiniteProfitFactor(t *testing.T) {
	t.Parallel()

	r := Compute(trades(10), curve(100, 110), Options{})
	b, err := json.Marshal(r)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	assert.Equal(t, "+Inf", m["profit_factor"])
	assert.Equal(t, 1.0, m["win_rate"])

	var back Report
	require.NoError(t, json.Unmarshal(b, &back))
	assert.True(t, math.IsInf(back.ProfitFactor, 1))
	assert.Equal(t, r.Trades, back.Trades)
	assert.Equal(t, r.EndCapital, back.EndCapital)

	var bad Report
	assert.Error(t, json.Unmarshal([]byte(`{"profit_factor":"lots"}`), &bad))
}

func TestMaxDrawdown(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0.0, MaxDrawdown(curve(100, 100, 110, 120)))
	assert.InDelta(t, 20.0, MaxDrawdown(curve(100, 80, 90)), 1e-9)
	// the deeper drawdown comes from a later, higher peak
	assert.InDelta(t, 25.0, MaxDrawdown(curve(100, 90, 200, 150, 180)), 1e-9)

	// property: 0 iff non-decreasing
	r := rand.New(rand.NewSource(11))
	for i := 0; i < 500; i++ {
		caps := make([]float64, 2+r.Intn(8))
		caps[0] = 1000
		mono := true
		for j := 1; j < len(caps); j++ {
			caps[j] = caps[j-1] + float64(r.Intn(11)-3)
			if caps[j] < caps[j-1] {
				mono = false
			}
		}
		assert.Equal(t, mono, MaxDrawdown(curve(caps...)) == 0, "%v", caps)
	}
}

func TestReturnStatistics(t *testing.T) {
	t.Parallel()

	flat := curve(100, 100, 100)
	assert.Equal(t, 0.0, Volatility(flat, Options{}))
	assert.Equal(t, 0.0, Sharpe(flat, Options{}))

	eq := curve(100, 110, 99, 108.9)
	rets := Returns(eq)
	require.Len(t, rets, 3)
	assert.InDelta(t, 0.1, rets[0], 1e-12)
	assert.InDelta(t, -0.1, rets[1], 1e-12)

	mean := (0.1 - 0.1 + 0.1) / 3
	sd := math.Sqrt((2*math.Pow(0.1-mean, 2) + math.Pow(-0.1-mean, 2)) / 2)
	assert.InDelta(t, sd*math.Sqrt(252), Volatility(eq, Options{PeriodsPerYear: 252}), 1e-9)
	assert.InDelta(t, mean/sd*math.Sqrt(252), Sharpe(eq, Options{PeriodsPerYear: 252}), 1e-9)
}

func TestAnnualizedReturnAndCalmar(t *testing.T) {
	t.Parallel()

	// two periods per year, one period => (1.1)^2 - 1
	assert.InDelta(t, 0.21, AnnualizedReturn(curve(100, 110), Options{PeriodsPerYear: 2}), 1e-9)
	assert.Equal(t, 0.0, Calmar(curve(100, 110), Options{}), "no drawdown")
	assert.Equal(t, -1.0, AnnualizedReturn(curve(100, 0), Options{}))

	eq := curve(100, 80, 120)
	ann := AnnualizedReturn(eq, Options{PeriodsPerYear: 2})
	assert.InDelta(t, 0.2, ann, 1e-9)
	assert.InDelta(t, ann/0.2, Calmar(eq, Options{PeriodsPerYear: 2}), 1e-9)
}

func TestComputeTotals(t *testing.T) {
	t.Parallel()

	r := Compute(trades(50, -20, 0, 30), curve(1000, 1050, 1030, 1030, 1060), Options{})
	assert.Equal(t, 4, r.Trades)
	assert.Equal(t, 2, r.Wins)
	assert.Equal(t, 1, r.Losses)
	assert.InDelta(t, 0.5, r.WinRate, 1e-12)
	assert.InDelta(t, 4.0, r.ProfitFactor, 1e-12)
	assert.InDelta(t, 60.0, r.NetPnL, 1e-12)
	assert.Equal(t, 50.0, r.BestTrade)
	assert.Equal(t, -20.0, r.WorstTrade)
	assert.InDelta(t, 6.0, r.ReturnPct, 1e-9)
	assert.Equal(t, 6*time.Hour, r.AvgTradeDuration)
	assert.InDelta(t, 24.0/96.0, r.Exposure, 1e-9)
}
