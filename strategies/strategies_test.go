package strategies

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rustyeddy/tradeguard/market"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func closes(xs ...float64) []market.Bar {
	out := make([]market.Bar, len(xs))
	for i, c := range xs {
		out[i] = market.Bar{Time: t0.Add(time.Duration(i) * time.Hour), Open: c, High: c, Low: c, Close: c}
	}
	return out
}

func TestNoop(t *testing.T) {
	t.Parallel()
	assert.Equal(t, market.SignalNone, Noop{}.Signal(market.Bar{}))
}

func TestEMACrossSignalsOnCross(t *testing.T) {
	t.Parallel()

	s, err := NewEMACross(2, 4)
	require.NoError(t, err)

	var got []market.Signal
	for _, b := range closes(10, 10, 10, 10, 9, 8, 7, 8, 10, 12, 14, 12, 9, 7) {
		got = append(got, s.Signal(b))
	}

	var longs, shorts int
	firstLong, firstShort := -1, -1
	for i, sig := range got {
		switch sig {
		case market.SignalLong:
			longs++
			if firstLong < 0 {
				firstLong = i
			}
		case market.SignalShort:
			shorts++
			if firstShort < 0 {
				firstShort = i
			}
		}
	}
	assert.Equal(t, 1, longs, "signals: %v", got)
	assert.Equal(t, 2, shorts, "signals: %v", got)
	assert.Less(t, firstShort, firstLong)
	for i := 0; i < 4; i++ {
		assert.Equal(t, market.SignalNone, got[i], "warmup bar %d", i)
	}

	s.Reset()
	assert.Equal(t, market.SignalNone, s.Signal(closes(1)[0]))
}

func TestEMACrossRejectsBadPeriods(t *testing.T) {
	t.Parallel()
	_, err := NewEMACross(30, 10)
	assert.Error(t, err)
}

func TestScripted(t *testing.T) {
	t.Parallel()

	in := "time,signal\n2024-01-01T00:00:00Z,long\n2024-01-01T02:00:00Z,flat\n# comment\n2024-01-01T03:00:00Z,sell\n"
	s, err := ReadScript(strings.NewReader(in))
	require.NoError(t, err)

	bars := closes(1, 1, 1, 1, 1)
	want := []market.Signal{market.SignalLong, market.SignalNone, market.SignalFlat, market.SignalShort, market.SignalNone}
	for i, b := range bars {
		assert.Equal(t, want[i], s.Signal(b), "bar %d", i)
	}

	_, err = ReadScript(strings.NewReader("2024-01-01,maybe\n"))
	assert.Error(t, err)
}

func TestByName(t *testing.T) {
	t.Parallel()

	s, err := ByName("EMA_Cross", Params{Fast: 3, Slow: 5})
	require.NoError(t, err)
	assert.Contains(t, s.Name(), "ema-cross")

	s, err = ByName("noop", Params{})
	require.NoError(t, err)
	assert.Equal(t, "noop", s.Name())

	path := filepath.Join(t.TempDir(), "script.csv")
	require.NoError(t, os.WriteFile(path, []byte("2024-01-01,long\n"), 0o644))
	s, err = ByName("scripted", Params{Script: path})
	require.NoError(t, err)
	assert.Equal(t, market.SignalLong, s.Signal(closes(1)[0]))

	_, err = ByName("scripted", Params{})
	assert.Error(t, err)
	_, err = ByName("martingale", Params{})
	assert.ErrorContains(t, err, "supported: ema-cross, noop, scripted")
}
