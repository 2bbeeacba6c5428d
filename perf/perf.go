// Package perf derives performance statistics from a closed trade log and an
// equity curve. Every function is total: empty or degenerate inputs produce
// documented sentinel values (0 or +Inf), never errors.
package perf

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/rustyeddy/tradeguard/indicators"
	"github.com/rustyeddy/tradeguard/trade"
)

// Options controls annualization. One bar is one period.
type Options struct {
	PeriodsPerYear float64 // 252 for daily bars
}

func (o Options) periods() float64 {
	if o.PeriodsPerYear <= 0 {
		return indicators.DefaultAnnualization
	}
	return o.PeriodsPerYear
}

// Report is a snapshot of run performance.
type Report struct {
	Trades int `json:"trades"`
	Wins   int `json:"wins"`
	Losses int `json:"losses"`

	WinRate      float64 `json:"win_rate"`      // 0..1
	ProfitFactor float64 `json:"profit_factor"` // +Inf when there are no losses
	GrossProfit  float64 `json:"gross_profit"`
	GrossLoss    float64 `json:"gross_loss"`
	NetPnL       float64 `json:"net_pnl"`
	BestTrade    float64 `json:"best_trade"`
	WorstTrade   float64 `json:"worst_trade"`

	StartCapital     float64 `json:"start_capital"`
	EndCapital       float64 `json:"end_capital"`
	ReturnPct        float64 `json:"return_pct"`
	AnnualizedReturn float64 `json:"annualized_return"` // fraction
	MaxDrawdownPct   float64 `json:"max_drawdown_pct"`
	Calmar           float64 `json:"calmar"`
	Volatility       float64 `json:"volatility"` // annualized fraction
	Sharpe           float64 `json:"sharpe"`

	AvgTradeDuration time.Duration `json:"avg_trade_duration"`
	Exposure         float64       `json:"exposure"` // share of the run spent in a position
}

// MarshalJSON writes an infinite profit factor as the string "+Inf"; plain
// encoding/json rejects infinities.
func (r Report) MarshalJSON() ([]byte, error) {
	type plain Report
	out := struct {
		plain
		ProfitFactor any `json:"profit_factor"`
	}{plain: plain(r), ProfitFactor: r.ProfitFactor}
	if math.IsInf(r.ProfitFactor, 1) {
		out.ProfitFactor = "+Inf"
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts the "+Inf" profit factor written by MarshalJSON.
func (r *Report) UnmarshalJSON(data []byte) error {
	type plain Report
	in := struct {
		*plain
		ProfitFactor any `json:"profit_factor"`
	}{plain: (*plain)(r)}
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	switch v := in.ProfitFactor.(type) {
	case float64:
		r.ProfitFactor = v
	case string:
		if v != "+Inf" {
			return fmt.Errorf("perf: bad profit_factor %q", v)
		}
		r.ProfitFactor = math.Inf(1)
	case nil:
		r.ProfitFactor = 0
	}
	return nil
}

// Compute builds the full report.
func Compute(trades []trade.ClosedTrade, equity []trade.EquityPoint, opts Options) Report {
	r := Report{
		Trades:           len(trades),
		WinRate:          WinRate(trades),
		ProfitFactor:     ProfitFactor(trades),
		MaxDrawdownPct:   MaxDrawdown(equity),
		AnnualizedReturn: AnnualizedReturn(equity, opts),
		Volatility:       Volatility(equity, opts),
		Sharpe:           Sharpe(equity, opts),
		AvgTradeDuration: AvgTradeDuration(trades),
		Exposure:         Exposure(trades, equity),
	}
	r.Calmar = Calmar(equity, opts)

	for i, t := range trades {
		switch {
		case t.PnL > 0:
			r.Wins++
			r.GrossProfit += t.PnL
		case t.PnL < 0:
			r.Losses++
			r.GrossLoss += -t.PnL
		}
		r.NetPnL += t.PnL
		if i == 0 || t.PnL > r.BestTrade {
			r.BestTrade = t.PnL
		}
		if i == 0 || t.PnL < r.WorstTrade {
			r.WorstTrade = t.PnL
		}
	}

	if len(equity) > 0 {
		r.StartCapital = equity[0].Capital
		r.EndCapital = equity[len(equity)-1].Capital
		if r.StartCapital > 0 {
			r.ReturnPct = (r.EndCapital - r.StartCapital) / r.StartCapital * 100
		}
	}
	return r
}

// WinRate is wins / trades, 0 without trades.
func WinRate(trades []trade.ClosedTrade) float64 {
	if len(trades) == 0 {
		return 0
	}
	wins := 0
	for _, t := range trades {
		if t.PnL > 0 {
			wins++
		}
	}
	return float64(wins) / float64(len(trades))
}

// ProfitFactor is gross profit / gross loss. +Inf with profit and no loss,
// 0 with no profit (including no trades).
func ProfitFactor(trades []trade.ClosedTrade) float64 {
	var won, lost float64
	for _, t := range trades {
		if t.PnL > 0 {
			won += t.PnL
		} else if t.PnL < 0 {
			lost += -t.PnL
		}
	}
	switch {
	case won == 0:
		return 0
	case lost == 0:
		return math.Inf(1)
	}
	return won / lost
}

// MaxDrawdown is the largest peak-to-trough decline in percent. It is 0 iff
// the curve never declines.
func MaxDrawdown(equity []trade.EquityPoint) float64 {
	peak := 0.0
	maxDD := 0.0
	for i, p := range equity {
		if i == 0 || p.Capital > peak {
			peak = p.Capital
			continue
		}
		if peak <= 0 {
			continue
		}
		if dd := (peak - p.Capital) / peak * 100; dd > maxDD {
			maxDD = dd
		}
	}
	return maxDD
}

// Returns are per-bar percentage changes of the equity curve as fractions.
// Steps from non-positive capital are skipped.
func Returns(equity []trade.EquityPoint) []float64 {
	if len(equity) < 2 {
		return nil
	}
	out := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		prev := equity[i-1].Capital
		if prev <= 0 {
			continue
		}
		out = append(out, (equity[i].Capital-prev)/prev)
	}
	return out
}

// AnnualizedReturn compounds the total return over the number of bar periods.
func AnnualizedReturn(equity []trade.EquityPoint, opts Options) float64 {
	if len(equity) < 2 {
		return 0
	}
	first, last := equity[0].Capital, equity[len(equity)-1].Capital
	if first <= 0 {
		return 0
	}
	if last <= 0 {
		return -1
	}
	n := float64(len(equity) - 1)
	r := math.Pow(last/first, opts.periods()/n) - 1
	if math.IsInf(r, 0) || math.IsNaN(r) {
		return 0
	}
	return r
}

// Calmar is annualized return / max drawdown (both as fractions); 0 without drawdown.
func Calmar(equity []trade.EquityPoint, opts Options) float64 {
	dd := MaxDrawdown(equity)
	if dd == 0 {
		return 0
	}
	return AnnualizedReturn(equity, opts) / math.Abs(dd/100)
}

// Volatility is the annualized sample stdev of per-bar returns.
func Volatility(equity []trade.EquityPoint, opts Options) float64 {
	return indicators.StdDev(Returns(equity)) * math.Sqrt(opts.periods())
}

// Sharpe is mean/stdev of per-bar returns, annualized; 0 when stdev is 0.
func Sharpe(equity []trade.EquityPoint, opts Options) float64 {
	rets := Returns(equity)
	sd := indicators.StdDev(rets)
	if sd == 0 {
		return 0
	}
	return indicators.Mean(rets) / sd * math.Sqrt(opts.periods())
}

// AvgTradeDuration is the mean holding time; 0 without trades.
func AvgTradeDuration(trades []trade.ClosedTrade) time.Duration {
	if len(trades) == 0 {
		return 0
	}
	var total time.Duration
	for _, t := range trades {
		total += t.Duration()
	}
	return total / time.Duration(len(trades))
}

// Exposure is total holding time over the equity curve's time span, clamped to [0,1].
func Exposure(trades []trade.ClosedTrade, equity []trade.EquityPoint) float64 {
	if len(equity) < 2 {
		return 0
	}
	span := equity[len(equity)-1].Time.Sub(equity[0].Time)
	if span <= 0 {
		return 0
	}
	var held time.Duration
	for _, t := range trades {
		held += t.Duration()
	}
	return math.Min(1, float64(held)/float64(span))
}
