package backtest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rustyeddy/tradeguard/market"
	"github.com/rustyeddy/tradeguard/trade"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCSV = `time,open,high,low,close,volume,signal
2024-01-02,100,101,99,100,10,
2024-01-03,100,101,99,100,10,long
2024-01-04,100,98,99,100,10,
2024-01-05,100,101.5,99.5,101,10,
2024-01-06,101,103.5,100.5,103,10,long
`

var zeroTime time.Time

// errorFeed fails on Next.
type errorFeed struct{ closed bool }

func (f *errorFeed) Next() (Row, bool, error) {
	return Row{}, false, errors.New("mock error")
}

func (f *errorFeed) Close() error {
	f.closed = true
	return nil
}

type countingSignaler struct{ calls int }

func (s *countingSignaler) Name() string { return "counting" }
func (s *countingSignaler) Signal(b market.Bar) market.Signal {
	s.calls++
	return market.SignalNone
}

func TestRunner_Run_Validation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("missing engine", func(t *testing.T) {
		t.Parallel()
		r := &Runner{Feed: BarsFeed(nil)}
		_, err := r.Run(ctx)
		require.Error(t, err)
		assert.Equal(t, "backtest: Engine is required", err.Error())
	})

	t.Run("missing feed", func(t *testing.T) {
		t.Parallel()
		r := &Runner{Engine: newEngine(t, nil)}
		_, err := r.Run(ctx)
		require.Error(t, err)
		assert.Equal(t, "backtest: Feed is required", err.Error())
	})

	t.Run("feed error", func(t *testing.T) {
		t.Parallel()
		f := &errorFeed{}
		r := &Runner{Engine: newEngine(t, nil), Feed: f}
		_, err := r.Run(ctx)
		assert.EqualError(t, err, "mock error")
		assert.True(t, f.closed)
	})
}

func TestRunnerUsesFeedSignalsAndSkipsBadBars(t *testing.T) {
	t.Parallel()

	r := &Runner{
		Name:    "csv",
		Engine:  newEngine(t, nil),
		Feed:    NewCSVBarReader(strings.NewReader(sampleCSV), zeroTime, zeroTime),
		Options: RunnerOptions{CloseEnd: true},
	}
	res, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "csv", res.Name)
	assert.Equal(t, "feed", res.Strategy)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, 4, res.Bars)
	assert.Equal(t, 1, res.Skipped)
	assert.False(t, res.Halted)

	// opened long on the 3rd, still open at the end and closed by CloseEnd
	require.Len(t, res.Trades, 1)
	assert.Equal(t, trade.ManualClose, res.Trades[0].ExitReason)
	assert.Equal(t, 103.0, res.Trades[0].ExitPrice)
	assert.Equal(t, 1, res.Report.Trades)
	assert.Equal(t, 1, res.Report.Wins)
	assert.Equal(t, res.Start.Format("2006-01-02"), "2024-01-02")
	assert.Equal(t, res.End.Format("2006-01-02"), "2024-01-06")
}

func TestRunnerSignalerOverridesFeed(t *testing.T) {
	t.Parallel()

	sig := &countingSignaler{}
	r := &Runner{
		Engine:   newEngine(t, nil),
		Feed:     NewCSVBarReader(strings.NewReader(sampleCSV), zeroTime, zeroTime),
		Signaler: sig,
	}
	res, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "counting", res.Strategy)
	assert.Empty(t, res.Trades)
	// the invalid bar never reaches the signaler
	assert.Equal(t, 4, sig.calls)
}

func TestRunnerSignalerSkipsOutOfOrderBars(t *testing.T) {
	t.Parallel()

	sig := &countingSignaler{}
	r := &Runner{
		Engine: newEngine(t, nil),
		Feed: BarsFeed([]market.Bar{
			bar(1, 100, 101, 99, 100),
			bar(0, 100, 101, 99, 100), // before the last bar
			bar(1, 100, 101, 99, 100), // duplicate timestamp
			bar(2, 100, 101, 99, 100),
		}),
		Signaler: sig,
	}
	res, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Bars)
	assert.Equal(t, 2, res.Skipped)
	assert.Equal(t, 2, sig.calls)
}

func TestEngineAccepts(t *testing.T) {
	t.Parallel()

	e := newEngine(t, nil)
	require.NoError(t, e.Accepts(bar(0, 100, 101, 99, 100)))
	assert.ErrorIs(t, e.Accepts(bar(0, 100, 99, 101, 100)), market.ErrDataIntegrity)

	step(t, e, bar(1, 100, 101, 99, 100), market.SignalNone)
	assert.ErrorIs(t, e.Accepts(bar(1, 100, 101, 99, 100)), market.ErrDataIntegrity)
	assert.ErrorIs(t, e.Accepts(bar(0, 100, 101, 99, 100)), market.ErrDataIntegrity)
	assert.NoError(t, e.Accepts(bar(2, 100, 101, 99, 100)))
	// checking does not advance the engine
	assert.Len(t, e.Equity(), 1)
}

func TestRunnerMaxBadBars(t *testing.T) {
	t.Parallel()

	r := &Runner{
		Engine:  newEngine(t, nil),
		Feed:    NewCSVBarReader(strings.NewReader(sampleCSV), zeroTime, zeroTime),
		Options: RunnerOptions{MaxBadBars: 1},
	}
	_, err := r.Run(context.Background())
	assert.ErrorIs(t, err, market.ErrDataIntegrity)
}

func TestRunnerHonorsContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := &Runner{Engine: newEngine(t, nil), Feed: BarsFeed(warm())}
	_, err := r.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCSVBarFeedFromFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bars.csv")
	require.NoError(t, os.WriteFile(path, []byte(sampleCSV), 0o644))

	from := t0.Add(48 * time.Hour) // 2024-01-04
	to := t0.Add(96 * time.Hour)   // 2024-01-06, exclusive
	f, err := NewCSVBarFeed(path, from, to)
	require.NoError(t, err)
	defer f.Close()

	var got []Row
	for {
		row, ok, err := f.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		got = append(got, row)
	}
	require.Len(t, got, 2)
	assert.Equal(t, from, got[0].Bar.Time)
	assert.True(t, got[0].HasSignal)
	assert.Equal(t, market.SignalNone, got[0].Signal)
}

func TestParseBarRow(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		row     []string
		wantErr bool
		check   func(t *testing.T, r Row)
	}{
		{
			name: "rfc3339 without signal",
			row:  []string{"2024-01-02T09:30:00Z", "1.1", "1.2", "1.0", "1.15", "300"},
			check: func(t *testing.T, r Row) {
				assert.Equal(t, 1.15, r.Bar.Close)
				assert.False(t, r.HasSignal)
			},
		},
		{
			name: "unix seconds with short signal",
			row:  []string{"1704067200", "10", "11", "9", "10", "0", " sell "},
			check: func(t *testing.T, r Row) {
				assert.Equal(t, int64(1704067200), r.Bar.Time.Unix())
				assert.Equal(t, market.SignalShort, r.Signal)
			},
		},
		{
			name: "whitespace",
			row:  []string{" 2024-01-02 ", " 1 ", " 2 ", " 0.5 ", " 1.5 ", " 7 "},
			check: func(t *testing.T, r Row) {
				assert.Equal(t, 2.0, r.Bar.High)
			},
		},
		{name: "too few columns", row: []string{"2024-01-02", "1", "2"}, wantErr: true},
		{name: "bad time", row: []string{"yesterday", "1", "2", "0.5", "1", "1"}, wantErr: true},
		{name: "bad price", row: []string{"2024-01-02", "x", "2", "0.5", "1", "1"}, wantErr: true},
		{name: "bad signal", row: []string{"2024-01-02", "1", "2", "0.5", "1", "1", "maybe"}, wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r, err := parseBarRow(tt.row)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.check(t, r)
		})
	}
}

func TestInRange(t *testing.T) {
	t.Parallel()

	from := t0
	to := t0.Add(time.Hour)
	assert.True(t, inRange(t0, from, to))
	assert.False(t, inRange(to, from, to))
	assert.False(t, inRange(t0.Add(-time.Second), from, to))
	assert.True(t, inRange(t0.Add(-time.Second), zeroTime, zeroTime))
}
