// Package trade holds the position, closed trade and equity records shared by
// the engine, the metrics and the journal.
package trade

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rustyeddy/tradeguard/market"
)

// ExitReason says why a position was closed.
type ExitReason string

const (
	StopLoss       ExitReason = "StopLoss"
	TakeProfit     ExitReason = "TakeProfit"
	TrailingStop   ExitReason = "TrailingStop"
	SignalReversal ExitReason = "SignalReversal"
	ManualClose    ExitReason = "ManualClose"
)

// ParseExitReason is case insensitive.
func ParseExitReason(s string) (ExitReason, error) {
	for _, r := range []ExitReason{StopLoss, TakeProfit, TrailingStop, SignalReversal, ManualClose} {
		if strings.EqualFold(s, string(r)) {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown exit reason %q", s)
}

// Position is the single open position of an engine.
type Position struct {
	ID                   string           `json:"id"`
	Instrument           string           `json:"instrument"`
	Direction            market.Direction `json:"direction"`
	EntryPrice           float64          `json:"entry_price"`
	Size                 float64          `json:"size"` // notional, account currency
	StopPrice            float64          `json:"stop_price"`
	TakeProfitPrice      float64          `json:"take_profit_price"`
	TrailingStopDistance float64          `json:"trailing_stop_distance,omitempty"` // 0 = none
	OpenedAt             time.Time        `json:"opened_at"`

	// Ratcheted is set once the trailing stop moved the stop from its initial level.
	Ratcheted     bool    `json:"ratcheted"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
}

// PnLAt is the currency PnL of the position if it were closed at price.
func (p Position) PnLAt(price float64) float64 {
	if p.EntryPrice <= 0 {
		return 0
	}
	return float64(p.Direction) * (price - p.EntryPrice) / p.EntryPrice * p.Size
}

// ClosedTrade is an immutable record of a finished position.
type ClosedTrade struct {
	ID         string           `json:"id"`
	Instrument string           `json:"instrument"`
	Direction  market.Direction `json:"direction"`
	EntryPrice float64          `json:"entry_price"`
	ExitPrice  float64          `json:"exit_price"`
	Size       float64          `json:"size"`
	PnL        float64          `json:"pnl"`
	PnLPercent float64          `json:"pnl_percent"`
	OpenedAt   time.Time        `json:"opened_at"`
	ClosedAt   time.Time        `json:"closed_at"`
	ExitReason ExitReason       `json:"exit_reason"`
}

// ErrClosedBeforeOpened guards the closed_at >= opened_at invariant.
var ErrClosedBeforeOpened = errors.New("trade closed before it was opened")

// Close turns p into a ClosedTrade at price and time. pnl is passed in so the
// caller can floor a loss at the remaining capital.
func Close(p Position, price float64, at time.Time, reason ExitReason, pnl float64) (ClosedTrade, error) {
	if at.Before(p.OpenedAt) {
		return ClosedTrade{}, fmt.Errorf("close trade %s: %w", p.ID, ErrClosedBeforeOpened)
	}
	pct := 0.0
	if p.Size > 0 {
		pct = pnl / p.Size * 100
	}
	return ClosedTrade{
		ID:         p.ID,
		Instrument: p.Instrument,
		Direction:  p.Direction,
		EntryPrice: p.EntryPrice,
		ExitPrice:  price,
		Size:       p.Size,
		PnL:        pnl,
		PnLPercent: pct,
		OpenedAt:   p.OpenedAt,
		ClosedAt:   at,
		ExitReason: reason,
	}, nil
}

// Duration is ClosedAt - OpenedAt.
func (t ClosedTrade) Duration() time.Duration {
	return t.ClosedAt.Sub(t.OpenedAt)
}

// EquityPoint is one sample of the equity curve.
type EquityPoint struct {
	Time    time.Time `json:"time"`
	Capital float64   `json:"capital"`
}

// PnLs extracts realized PnLs, oldest first.
func PnLs(trades []ClosedTrade) []float64 {
	out := make([]float64, len(trades))
	for i, t := range trades {
		out[i] = t.PnL
	}
	return out
}
