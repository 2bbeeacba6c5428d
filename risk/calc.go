package risk

import "math"

// TradeStats summarises a window of closed trade PnLs for Kelly sizing.
type TradeStats struct {
	Trades  int
	Wins    int
	Losses  int
	WinRate float64 // p
	AvgWin  float64 // W, positive
	AvgLoss float64 // L, positive magnitude
}

// Payoff is b = W/L. +Inf when there are wins but no losses, 0 without wins.
func (s TradeStats) Payoff() float64 {
	if s.AvgWin <= 0 {
		return 0
	}
	if s.AvgLoss <= 0 {
		return math.Inf(1)
	}
	return s.AvgWin / s.AvgLoss
}

// Stats computes TradeStats over pnls. A zero PnL trade counts toward the
// total but is neither a win nor a loss.
func Stats(pnls []float64) TradeStats {
	s := TradeStats{Trades: len(pnls)}
	var won, lost float64
	for _, p := range pnls {
		switch {
		case p > 0:
			s.Wins++
			won += p
		case p < 0:
			s.Losses++
			lost += -p
		}
	}
	if s.Trades > 0 {
		s.WinRate = float64(s.Wins) / float64(s.Trades)
	}
	if s.Wins > 0 {
		s.AvgWin = won / float64(s.Wins)
	}
	if s.Losses > 0 {
		s.AvgLoss = lost / float64(s.Losses)
	}
	return s
}

// KellyFraction returns f* = (p*b - q)/b with q = 1-p. Any input without a
// positive edge (b*p <= q, b <= 0, p outside [0,1]) returns 0. With b = +Inf
// the limit p is returned.
func KellyFraction(p, b float64) float64 {
	if math.IsNaN(p) || math.IsNaN(b) || p <= 0 || p > 1 || b <= 0 {
		return 0
	}
	q := 1 - p
	if math.IsInf(b, 1) {
		return p
	}
	if b*p <= q {
		return 0
	}
	return (p*b - q) / b
}

// StopDistance is the price distance to the protective stop.
func StopDistance(atr, multiple float64) float64 {
	return math.Abs(atr * multiple)
}

// PlannedRisk is the currency lost if a position of notional size entered at
// entry is stopped out at stop.
func PlannedRisk(size, entry, stop float64) float64 {
	if entry <= 0 {
		return 0
	}
	return size * math.Abs(entry-stop) / entry
}

// RR is the reward to risk ratio of a bracket.
func RR(entry, stop, takeProfit float64) float64 {
	risk := math.Abs(entry - stop)
	reward := math.Abs(takeProfit - entry)
	if risk == 0 {
		return 0
	}
	return reward / risk
}
