package market

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBarValidate(t *testing.T) {
	t.Parallel()

	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		bar     Bar
		wantErr bool
	}{
		{"valid", Bar{Time: ts, Open: 100, High: 105, Low: 99, Close: 102, Volume: 10}, false},
		{"flat bar", Bar{Time: ts, Open: 100, High: 100, Low: 100, Close: 100}, false},
		{"high below low", Bar{Time: ts, Open: 100, High: 98, Low: 99, Close: 100}, true},
		{"high below close", Bar{Time: ts, Open: 100, High: 101, Low: 99, Close: 102}, true},
		{"low above open", Bar{Time: ts, Open: 98, High: 101, Low: 99, Close: 100}, true},
		{"negative volume", Bar{Time: ts, Open: 100, High: 101, Low: 99, Close: 100, Volume: -1}, true},
		{"nan close", Bar{Time: ts, Open: 100, High: 101, Low: 99, Close: math.NaN()}, true},
		{"zero price", Bar{Time: ts, Open: 0, High: 1, Low: 0, Close: 1}, true},
		{"missing time", Bar{Open: 100, High: 101, Low: 99, Close: 100}, true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.bar.Validate()
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrDataIntegrity))
			var ie *IntegrityError
			assert.True(t, errors.As(err, &ie))
		})
	}
}

func TestTrueRange(t *testing.T) {
	t.Parallel()

	b := Bar{High: 105, Low: 100}
	assert.InDelta(t, 5.0, b.TrueRange(102), 1e-12)
	// gap up: previous close far below the low
	assert.InDelta(t, 15.0, b.TrueRange(90), 1e-12)
	// gap down: previous close far above the high
	assert.InDelta(t, 12.0, b.TrueRange(112), 1e-12)
}

func TestCheckSequence(t *testing.T) {
	t.Parallel()

	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.NoError(t, CheckSequence(Bar{}, Bar{Time: t0}))
	assert.NoError(t, CheckSequence(Bar{Time: t0}, Bar{Time: t0.Add(time.Hour)}))
	assert.ErrorIs(t, CheckSequence(Bar{Time: t0}, Bar{Time: t0}), ErrDataIntegrity)
}

func TestParseSignal(t *testing.T) {
	t.Parallel()

	cases := map[string]Signal{
		"":      SignalNone,
		"long":  SignalLong,
		"BUY":   SignalLong,
		"short": SignalShort,
		"-1":    SignalShort,
		"flat":  SignalFlat,
	}
	for in, want := range cases {
		got, err := ParseSignal(in)
		assert.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseSignal("maybe")
	assert.Error(t, err)

	d, ok := SignalShort.Direction()
	assert.True(t, ok)
	assert.Equal(t, Short, d)
	_, ok = SignalFlat.Direction()
	assert.False(t, ok)
}
