package strategies

import (
	"fmt"

	"github.com/rustyeddy/tradeguard/indicators"
	"github.com/rustyeddy/tradeguard/market"
)

// EMACross signals Long when the fast EMA crosses above the slow one and
// Short on the opposite cross. Between crosses it stays silent, so the engine
// keeps managing the open position with its stops.
type EMACross struct {
	fast *indicators.EMA
	slow *indicators.EMA

	lastDiff     float64
	haveLastDiff bool
}

func NewEMACross(fast, slow int) (*EMACross, error) {
	if fast <= 0 {
		fast = 10
	}
	if slow <= 0 {
		slow = 30
	}
	if fast >= slow {
		return nil, fmt.Errorf("ema-cross: fast period (%d) must be below slow period (%d)", fast, slow)
	}
	return &EMACross{
		fast: indicators.NewEMA(fast),
		slow: indicators.NewEMA(slow),
	}, nil
}

func (s *EMACross) Name() string {
	return fmt.Sprintf("ema-cross(%s,%s)", s.fast.Name(), s.slow.Name())
}

func (s *EMACross) Reset() {
	s.fast.Reset()
	s.slow.Reset()
	s.lastDiff = 0
	s.haveLastDiff = false
}

func (s *EMACross) Signal(b market.Bar) market.Signal {
	s.fast.Update(b)
	s.slow.Update(b)
	if !s.fast.Ready() || !s.slow.Ready() {
		return market.SignalNone
	}

	diff := s.fast.Value() - s.slow.Value()
	if !s.haveLastDiff {
		s.lastDiff = diff
		s.haveLastDiff = true
		return market.SignalNone
	}

	bullCross := diff > 0 && s.lastDiff <= 0
	bearCross := diff < 0 && s.lastDiff >= 0
	s.lastDiff = diff

	switch {
	case bullCross:
		return market.SignalLong
	case bearCross:
		return market.SignalShort
	}
	return market.SignalNone
}
