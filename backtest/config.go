package backtest

import (
	"errors"
	"fmt"

	"github.com/rustyeddy/tradeguard/indicators"
)

// FillMode decides the execution price of an entry.
type FillMode string

const (
	FillClose    FillMode = "close"     // the signal bar's close
	FillNextOpen FillMode = "next_open" // the following bar's open
)

// ErrInvalidConfig is wrapped by Config.Validate failures.
var ErrInvalidConfig = errors.New("invalid engine configuration")

// Config describes one engine run. Stop distances come from the sizer's
// StopATRMultiple so sizing and the placed stop always agree.
type Config struct {
	Instrument     string
	InitialCapital float64

	LookbackWindow int     // volatility window in bars, 20
	Annualization  float64 // periods per year, 252

	TakeProfitATRMultiple float64 // 0 disables take profit
	TrailingStopDistance  float64 // absolute price distance, 0 disables

	Fill         FillMode
	MarkToMarket bool // equity includes unrealized PnL
}

func DefaultConfig() Config {
	return Config{
		Instrument:            "DEFAULT",
		InitialCapital:        10_000,
		LookbackWindow:        indicators.DefaultWindow,
		Annualization:         indicators.DefaultAnnualization,
		TakeProfitATRMultiple: 3,
		Fill:                  FillClose,
	}
}

func (c Config) Validate() error {
	if c.InitialCapital <= 0 {
		return fmt.Errorf("%w: initial capital must be positive", ErrInvalidConfig)
	}
	if c.LookbackWindow < 1 {
		return fmt.Errorf("%w: lookback window must be >= 1", ErrInvalidConfig)
	}
	if c.Annualization < 0 {
		return fmt.Errorf("%w: annualization must not be negative", ErrInvalidConfig)
	}
	if c.TakeProfitATRMultiple < 0 {
		return fmt.Errorf("%w: take profit multiple must not be negative", ErrInvalidConfig)
	}
	if c.TrailingStopDistance < 0 {
		return fmt.Errorf("%w: trailing stop distance must not be negative", ErrInvalidConfig)
	}
	switch c.Fill {
	case "", FillClose, FillNextOpen:
	default:
		return fmt.Errorf("%w: unknown fill mode %q", ErrInvalidConfig, c.Fill)
	}
	return nil
}
