package config

import (
	"fmt"
	"sort"

	"github.com/rustyeddy/tradeguard/backtest"
	"github.com/rustyeddy/tradeguard/circuit"
	"github.com/rustyeddy/tradeguard/risk"
)

// Handlers resolves custom action names used in the YAML.
type Handlers map[string]circuit.Handler

// Sizing is the sizer configuration.
func (c *Config) Sizing() risk.Config {
	return risk.Config{
		Mode:                risk.Mode(c.SizingMode),
		RiskFraction:        c.RiskFraction,
		StopATRMultiple:     c.StopATRMultiple,
		KellyFraction:       c.KellyFraction,
		KellyLookback:       c.KellyLookbackTrades,
		MaxPositionFraction: c.MaxPositionFraction,
	}
}

// Engine is the trade state machine configuration.
func (c *Config) Engine() backtest.Config {
	ec := backtest.Config{
		Instrument:            c.Run.Instrument,
		InitialCapital:        c.Run.InitialCapital,
		LookbackWindow:        c.LookbackWindow,
		Annualization:         c.Run.PeriodsPerYear,
		TakeProfitATRMultiple: c.TakeProfitATRMultiple,
		Fill:                  backtest.FillMode(c.Fill),
		MarkToMarket:          c.MarkToMarket,
	}
	if c.TrailingStopDistance != nil {
		ec.TrailingStopDistance = *c.TrailingStopDistance
	}
	return ec
}

// Breaker converts the thresholds into typed actions. Custom actions must
// name a handler in h.
func (c *Config) Breaker(h Handlers) (circuit.Config, error) {
	cc := circuit.Config{
		Enabled:       c.CircuitBreakerEnabled,
		OnlyRealMoney: c.OnlyFireOnRealMoney,
		RealMoney:     c.Run.RealMoney,
		CurveCap:      c.EquityCurveCap,
		Rearm:         circuit.RearmMode(c.Rearm),
		HysteresisPct: c.HysteresisPct,
		ActionTimeout: c.ActionTimeout,
	}

	for _, tc := range c.CircuitBreakerThresholds {
		th := circuit.Threshold{Level: tc.Level, Description: tc.Description}
		for i, ac := range tc.Actions {
			a, err := action(ac, h)
			if err != nil {
				return circuit.Config{}, fmt.Errorf("%w: threshold %v action %d: %v", ErrInvalidConfiguration, tc.Level, i, err)
			}
			th.Actions = append(th.Actions, a)
		}
		cc.Thresholds = append(cc.Thresholds, th)
	}

	if err := cc.Validate(); err != nil {
		return circuit.Config{}, fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
	}
	return cc, nil
}

func action(ac ActionConfig, h Handlers) (circuit.Action, error) {
	switch ac.Type {
	case "log":
		return circuit.Log{Message: ac.Message, Severity: circuit.Severity(ac.Severity)}, nil
	case "alert":
		return circuit.Alert{Channel: ac.Channel, Message: ac.Message}, nil
	case "pause":
		return circuit.PauseTrading{}, nil
	case "shutdown":
		return circuit.Shutdown{}, nil
	case "rebalance":
		return circuit.Rebalance{}, nil
	case "custom":
		fn, ok := h[ac.Name]
		if !ok {
			return nil, fmt.Errorf("no handler registered for custom action %q (have %v)", ac.Name, h.names())
		}
		return circuit.Custom{Name: ac.Name, Handler: fn}, nil
	}
	return nil, fmt.Errorf("unknown action type %q", ac.Type)
}

func (h Handlers) names() []string {
	out := make([]string, 0, len(h))
	for n := range h {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
