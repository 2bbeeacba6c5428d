package market

import (
	"fmt"
	"strings"
)

// Direction of a position. Long is +1 and Short is -1 so that
// PnL = Direction * (exit - entry) works for both sides.
type Direction int8

const (
	Long  Direction = +1
	Short Direction = -1
)

func (d Direction) String() string {
	switch d {
	case Long:
		return "long"
	case Short:
		return "short"
	default:
		return "unknown"
	}
}

func (d Direction) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Direction) UnmarshalText(b []byte) error {
	switch strings.ToLower(string(b)) {
	case "long":
		*d = Long
	case "short":
		*d = Short
	default:
		return fmt.Errorf("unknown direction %q", string(b))
	}
	return nil
}

// Opposite returns the other side.
func (d Direction) Opposite() Direction {
	return -d
}

// Signal is the strategy's per-bar intent.
type Signal int8

const (
	SignalNone Signal = iota
	SignalLong
	SignalShort
	SignalFlat
)

func (s Signal) String() string {
	switch s {
	case SignalLong:
		return "long"
	case SignalShort:
		return "short"
	case SignalFlat:
		return "flat"
	default:
		return "none"
	}
}

// ParseSignal accepts long/short/flat/none plus the shorthands buy, sell, +1, -1, 0 and "".
func ParseSignal(s string) (Signal, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "-":
		return SignalNone, nil
	case "long", "buy", "+1", "1":
		return SignalLong, nil
	case "short", "sell", "-1":
		return SignalShort, nil
	case "flat", "exit", "0":
		return SignalFlat, nil
	}
	return SignalNone, fmt.Errorf("unknown signal %q", s)
}

// Direction maps an entry signal to a direction. ok is false for Flat and None.
func (s Signal) Direction() (Direction, bool) {
	switch s {
	case SignalLong:
		return Long, true
	case SignalShort:
		return Short, true
	}
	return 0, false
}

// Signaler produces a directional signal for each closed bar. Implementations
// may keep internal state (indicators) but must be driven in bar order.
type Signaler interface {
	Name() string
	Signal(b Bar) Signal
}

// SignalerFunc adapts a plain function to a Signaler.
type SignalerFunc func(b Bar) Signal

func (f SignalerFunc) Name() string        { return "func" }
func (f SignalerFunc) Signal(b Bar) Signal { return f(b) }
