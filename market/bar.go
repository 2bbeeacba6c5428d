package market

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrDataIntegrity is wrapped by every bar validation failure.
var ErrDataIntegrity = errors.New("data integrity violation")

// Bar is a single OHLCV interval. Bars are values and never mutated once
// they enter the engine.
type Bar struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// IntegrityError describes why a bar was rejected.
type IntegrityError struct {
	Time   time.Time
	Reason string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("bar %s: %s", e.Time.Format(time.RFC3339), e.Reason)
}

func (e *IntegrityError) Unwrap() error { return ErrDataIntegrity }

func integrity(t time.Time, format string, args ...any) error {
	return &IntegrityError{Time: t, Reason: fmt.Sprintf(format, args...)}
}

// Validate checks the OHLCV invariants. Bad data is reported, never fixed.
func (b Bar) Validate() error {
	if b.Time.IsZero() {
		return integrity(b.Time, "missing timestamp")
	}
	for _, v := range []float64{b.Open, b.High, b.Low, b.Close, b.Volume} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return integrity(b.Time, "non-finite value")
		}
	}
	if b.Open <= 0 || b.High <= 0 || b.Low <= 0 || b.Close <= 0 {
		return integrity(b.Time, "prices must be positive")
	}
	if b.High < b.Low {
		return integrity(b.Time, "high %.6f below low %.6f", b.High, b.Low)
	}
	if b.High < math.Max(b.Open, b.Close) {
		return integrity(b.Time, "high %.6f below open/close", b.High)
	}
	if b.Low > math.Min(b.Open, b.Close) {
		return integrity(b.Time, "low %.6f above open/close", b.Low)
	}
	if b.Volume < 0 {
		return integrity(b.Time, "negative volume %.2f", b.Volume)
	}
	return nil
}

// TrueRange is max(high-low, |high-prevClose|, |low-prevClose|).
func (b Bar) TrueRange(prevClose float64) float64 {
	highLow := b.High - b.Low
	highClose := math.Abs(b.High - prevClose)
	lowClose := math.Abs(b.Low - prevClose)
	return math.Max(highLow, math.Max(highClose, lowClose))
}

// CheckSequence reports an integrity error when cur does not strictly follow prev.
func CheckSequence(prev, cur Bar) error {
	if prev.Time.IsZero() {
		return nil
	}
	if !cur.Time.After(prev.Time) {
		return integrity(cur.Time, "timestamp not after previous bar %s", prev.Time.Format(time.RFC3339))
	}
	return nil
}
