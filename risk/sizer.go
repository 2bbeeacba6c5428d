// Package risk sizes positions from capital, volatility and trade history.
package risk

import (
	"math"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Basis records which rule produced a sizing decision.
type Basis string

const (
	BasisVolatility    Basis = "volatility"
	BasisKelly         Basis = "kelly"
	BasisKellyFallback Basis = "kelly-fallback"
	BasisNone          Basis = "none"
)

// SizeInput is everything the sizer may look at. History holds realized PnLs
// of closed trades, oldest first.
type SizeInput struct {
	Capital float64
	Price   float64
	ATR     float64
	History []float64
}

// Decision is a sizing result. A zero Amount is a decision, not an error.
type Decision struct {
	Amount   float64 `json:"amount"`
	Fraction float64 `json:"fraction"`
	Basis    Basis   `json:"basis"`
	Reason   string  `json:"reason,omitempty"`
}

// Sizer is a pure calculator; it logs every decision for audit.
type Sizer struct {
	cfg Config
	log *zap.Logger
}

func NewSizer(cfg Config, log *zap.Logger) *Sizer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Sizer{cfg: cfg, log: log.Named("sizer")}
}

func (s *Sizer) Config() Config { return s.cfg }

// Size returns the position size in currency units. The amount is never
// negative, never above MaxPositionFraction*Capital and is truncated to cents.
func (s *Sizer) Size(in SizeInput) Decision {
	d := s.decide(in)
	d.Amount = s.clip(in.Capital, d.Fraction)
	if d.Amount == 0 && d.Reason == "" {
		d.Reason = "rounds to zero"
	}
	s.log.Debug("position sized",
		zap.String("basis", string(d.Basis)),
		zap.Float64("fraction", d.Fraction),
		zap.Float64("amount", d.Amount),
		zap.Float64("capital", in.Capital),
		zap.String("reason", d.Reason),
	)
	return d
}

func (s *Sizer) decide(in SizeInput) Decision {
	if !finite(in.Capital, in.Price, in.ATR) || in.Capital <= 0 {
		return Decision{Basis: BasisNone, Reason: "no capital"}
	}

	if s.cfg.Mode == ModeKelly {
		if len(in.History) >= s.cfg.KellyLookback {
			return s.kelly(in.History[len(in.History)-s.cfg.KellyLookback:])
		}
		d := s.volatility(in)
		if d.Basis == BasisVolatility {
			d.Basis = BasisKellyFallback
			d.Reason = "not enough closed trades for kelly"
		}
		return d
	}
	return s.volatility(in)
}

func (s *Sizer) volatility(in SizeInput) Decision {
	if in.ATR <= 0 || in.Price <= 0 {
		return Decision{Basis: BasisNone, Reason: "volatility not available"}
	}
	// notional/capital = risk / (stop distance as a fraction of price)
	stopFrac := StopDistance(in.ATR, s.cfg.StopATRMultiple) / in.Price
	f := s.cfg.RiskFraction / stopFrac
	if f > s.cfg.MaxPositionFraction {
		return Decision{Fraction: s.cfg.MaxPositionFraction, Basis: BasisVolatility, Reason: "capped at max position fraction"}
	}
	return Decision{Fraction: f, Basis: BasisVolatility}
}

func (s *Sizer) kelly(window []float64) Decision {
	st := Stats(window)
	f := KellyFraction(st.WinRate, st.Payoff())
	if f <= 0 {
		return Decision{Basis: BasisKelly, Reason: "no statistical edge"}
	}
	f *= s.cfg.KellyFraction
	if f > s.cfg.MaxPositionFraction {
		return Decision{Fraction: s.cfg.MaxPositionFraction, Basis: BasisKelly, Reason: "capped at max position fraction"}
	}
	return Decision{Fraction: f, Basis: BasisKelly}
}

func (s *Sizer) clip(capital, fraction float64) float64 {
	if capital <= 0 || fraction <= 0 || !finite(fraction) {
		return 0
	}
	if fraction > s.cfg.MaxPositionFraction {
		fraction = s.cfg.MaxPositionFraction
	}
	c := decimal.NewFromFloat(capital)
	limit := c.Mul(decimal.NewFromFloat(s.cfg.MaxPositionFraction)).Truncate(2)
	// round away float noise (0.24999999999999997) before truncating to cents
	amt := c.Mul(decimal.NewFromFloat(fraction)).Round(6).Truncate(2)
	if amt.GreaterThan(limit) {
		amt = limit
	}
	if amt.IsNegative() {
		return 0
	}
	return amt.InexactFloat64()
}

func finite(xs ...float64) bool {
	for _, x := range xs {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}
