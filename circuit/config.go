package circuit

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// ErrInvalidConfig is wrapped by Config.Validate failures.
var ErrInvalidConfig = errors.New("invalid circuit breaker configuration")

// RearmMode decides when a fired threshold becomes armed again.
type RearmMode string

const (
	// RearmOnPeak re-arms every fired threshold when equity sets a new high.
	RearmOnPeak RearmMode = "peak"
	// RearmOnRecovery re-arms a threshold once drawdown falls below
	// level - HysteresisPct, without requiring a new high.
	RearmOnRecovery RearmMode = "recovery"
)

const (
	DefaultCurveCap      = 10_000
	DefaultActionTimeout = 2 * time.Second
)

// Threshold is a drawdown level (percent) and the actions it triggers, in order.
type Threshold struct {
	Level       float64
	Actions     []Action
	Description string
}

// Config is fixed for the lifetime of a Manager.
type Config struct {
	Thresholds []Threshold

	Enabled       bool
	OnlyRealMoney bool // fire only when RealMoney is set
	RealMoney     bool

	CurveCap      int
	Rearm         RearmMode
	HysteresisPct float64
	ActionTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.CurveCap <= 0 {
		c.CurveCap = DefaultCurveCap
	}
	if c.Rearm == "" {
		c.Rearm = RearmOnPeak
	}
	if c.ActionTimeout <= 0 {
		c.ActionTimeout = DefaultActionTimeout
	}
	return c
}

// Validate rejects malformed thresholds before any equity is processed.
func (c Config) Validate() error {
	for i, th := range c.Thresholds {
		if th.Level <= 0 || th.Level >= 100 {
			return fmt.Errorf("%w: threshold %d: level must be in (0,100), got %v", ErrInvalidConfig, i, th.Level)
		}
		if i > 0 && th.Level <= c.Thresholds[i-1].Level {
			return fmt.Errorf("%w: threshold levels must be strictly increasing (%v after %v)",
				ErrInvalidConfig, th.Level, c.Thresholds[i-1].Level)
		}
		for j, a := range th.Actions {
			if err := validateAction(a); err != nil {
				return fmt.Errorf("%w: threshold %v action %d: %v", ErrInvalidConfig, th.Level, j, err)
			}
		}
	}
	switch c.Rearm {
	case "", RearmOnPeak, RearmOnRecovery:
	default:
		return fmt.Errorf("%w: unknown rearm mode %q", ErrInvalidConfig, c.Rearm)
	}
	if c.HysteresisPct < 0 {
		return fmt.Errorf("%w: hysteresis must not be negative", ErrInvalidConfig)
	}
	if c.CurveCap < 0 {
		return fmt.Errorf("%w: curve cap must not be negative", ErrInvalidConfig)
	}
	return nil
}

func validateAction(a Action) error {
	switch a := a.(type) {
	case nil:
		return errors.New("nil action")
	case Log:
		switch a.Severity {
		case "", SeverityInfo, SeverityWarn, SeverityError:
		default:
			return fmt.Errorf("unknown severity %q", a.Severity)
		}
	case Alert:
		if a.Channel == "" {
			return errors.New("alert needs a channel")
		}
	case Custom:
		if a.Handler == nil {
			return fmt.Errorf("custom action %q has no handler", a.Name)
		}
	}
	return nil
}

// sortedThresholds returns a copy ordered by level. Validate already demands
// order; sorting keeps Check correct for callers that skip validation.
func sortedThresholds(in []Threshold) []Threshold {
	out := append([]Threshold(nil), in...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Level < out[j].Level })
	return out
}
