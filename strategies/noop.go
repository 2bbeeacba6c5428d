package strategies

import "github.com/rustyeddy/tradeguard/market"

// Noop never signals.
type Noop struct{}

func (Noop) Name() string                      { return "noop" }
func (Noop) Signal(b market.Bar) market.Signal { return market.SignalNone }
