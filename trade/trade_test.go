package trade

import (
	"testing"
	"time"

	"github.com/rustyeddy/tradeguard/market"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPositionPnLAt(t *testing.T) {
	t.Parallel()

	long := Position{Direction: market.Long, EntryPrice: 100, Size: 1000}
	assert.InDelta(t, 50.0, long.PnLAt(105), 1e-9)
	assert.InDelta(t, -20.0, long.PnLAt(98), 1e-9)

	short := Position{Direction: market.Short, EntryPrice: 100, Size: 1000}
	assert.InDelta(t, -50.0, short.PnLAt(105), 1e-9)
	assert.InDelta(t, 20.0, short.PnLAt(98), 1e-9)
}

func TestClose(t *testing.T) {
	t.Parallel()

	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p := Position{ID: "T1", Direction: market.Long, EntryPrice: 100, Size: 1000, OpenedAt: t0}

	ct, err := Close(p, 110, t0.Add(2*time.Hour), TakeProfit, p.PnLAt(110))
	require.NoError(t, err)
	assert.Equal(t, TakeProfit, ct.ExitReason)
	assert.InDelta(t, 100.0, ct.PnL, 1e-9)
	assert.InDelta(t, 10.0, ct.PnLPercent, 1e-9)
	assert.Equal(t, 2*time.Hour, ct.Duration())

	_, err = Close(p, 110, t0.Add(-time.Second), ManualClose, 0)
	assert.ErrorIs(t, err, ErrClosedBeforeOpened)
}

func TestParseExitReason(t *testing.T) {
	t.Parallel()

	r, err := ParseExitReason("trailingstop")
	require.NoError(t, err)
	assert.Equal(t, TrailingStop, r)

	_, err = ParseExitReason("margin call")
	assert.Error(t, err)
}
