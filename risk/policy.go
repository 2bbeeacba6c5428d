package risk

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig is wrapped by Config.Validate failures.
var ErrInvalidConfig = errors.New("invalid sizing configuration")

// Mode selects the sizing strategy for a run.
type Mode string

const (
	ModeVolatility Mode = "volatility"
	ModeKelly      Mode = "kelly"
)

// Config is the sizing policy for one run.
type Config struct {
	Mode Mode

	// Volatility sizing: capital*RiskFraction is lost when the stop
	// (StopATRMultiple*ATR away from entry) is hit.
	RiskFraction    float64 // 0.01
	StopATRMultiple float64 // 2.0

	// Kelly sizing
	KellyFraction float64 // 0.5 == half-Kelly
	KellyLookback int     // trades considered, 20

	// Hard cap for every mode, as a fraction of capital.
	MaxPositionFraction float64 // 0.25
}

// DefaultConfig is volatility sizing at 1% risk with a 25% notional cap.
func DefaultConfig() Config {
	return Config{
		Mode:                ModeVolatility,
		RiskFraction:        0.01,
		StopATRMultiple:     2.0,
		KellyFraction:       0.5,
		KellyLookback:       20,
		MaxPositionFraction: 0.25,
	}
}

func (c Config) Validate() error {
	if c.Mode != ModeVolatility && c.Mode != ModeKelly {
		return fmt.Errorf("%w: unknown sizing mode %q", ErrInvalidConfig, c.Mode)
	}
	if c.RiskFraction <= 0 || c.RiskFraction > 1 {
		return fmt.Errorf("%w: risk fraction must be in (0,1], got %v", ErrInvalidConfig, c.RiskFraction)
	}
	if c.StopATRMultiple <= 0 {
		return fmt.Errorf("%w: stop atr multiple must be positive, got %v", ErrInvalidConfig, c.StopATRMultiple)
	}
	if c.KellyFraction <= 0 || c.KellyFraction > 1 {
		return fmt.Errorf("%w: kelly fraction must be in (0,1], got %v", ErrInvalidConfig, c.KellyFraction)
	}
	if c.MaxPositionFraction <= 0 || c.MaxPositionFraction > 1 {
		return fmt.Errorf("%w: max position fraction must be in (0,1], got %v", ErrInvalidConfig, c.MaxPositionFraction)
	}
	if c.KellyLookback <= 0 {
		return fmt.Errorf("%w: kelly lookback must be positive, got %d", ErrInvalidConfig, c.KellyLookback)
	}
	return nil
}
