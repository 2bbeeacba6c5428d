// Package indicators provides streaming technical indicators driven bar by bar.
package indicators

import (
	"errors"

	"github.com/rustyeddy/tradeguard/market"
)

// ErrInsufficientData means the indicator has not seen enough bars yet.
// It is a "not ready" state, not a failure.
var ErrInsufficientData = errors.New("insufficient data")

// Indicator computes a streaming value from closed bars.
// It is deterministic and safe to use in live, replay, and backtests.
type Indicator interface {
	// Name returns a stable identifier like "EMA(20)" or "ATR(14)".
	Name() string

	// Warmup returns how many updates are needed before Ready() can be true.
	Warmup() int

	// Reset clears all internal state.
	Reset()

	// Update consumes the next *closed* bar and updates internal state.
	Update(b market.Bar)

	// Ready reports whether Value() is meaningful (warmup completed).
	Ready() bool
}
