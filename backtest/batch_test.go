package backtest

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/rustyeddy/tradeguard/market"
	"github.com/rustyeddy/tradeguard/risk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildJob(name string, sig market.Signal) Job {
	return Job{
		Name: name,
		Build: func(ctx context.Context) (*Runner, error) {
			e, err := NewEngine(DefaultConfig(), risk.NewSizer(risk.DefaultConfig(), nil), nil)
			if err != nil {
				return nil, err
			}
			bars := append(warm(), bar(2, 100, 106.5, 99, 106))
			return &Runner{
				Engine:   e,
				Feed:     BarsFeed(bars),
				Signaler: market.SignalerFunc(func(b market.Bar) market.Signal { return sig }),
			}, nil
		},
	}
}

func TestRunBatchKeepsOrderAndIsolatesFailures(t *testing.T) {
	t.Parallel()

	jobs := []Job{
		buildJob("long", market.SignalLong),
		{Name: "broken", Build: func(ctx context.Context) (*Runner, error) {
			return nil, errors.New("no data")
		}},
		buildJob("short", market.SignalShort),
		{Name: "panics", Build: func(ctx context.Context) (*Runner, error) {
			panic("boom")
		}},
		{Name: "nil"},
	}
	for i := 0; i < 10; i++ {
		jobs = append(jobs, buildJob(fmt.Sprintf("flat-%d", i), market.SignalNone))
	}

	out := RunBatch(context.Background(), jobs, 3)
	require.Len(t, out, len(jobs))
	for i, r := range out {
		assert.Equal(t, jobs[i].Name, r.Name)
	}

	require.NoError(t, out[0].Err)
	require.Len(t, out[0].Result.Trades, 1)
	assert.Greater(t, out[0].Result.Trades[0].PnL, 0.0)
	assert.Equal(t, "long", out[0].Result.Name)

	assert.ErrorContains(t, out[1].Err, "no data")

	require.NoError(t, out[2].Err)
	require.Len(t, out[2].Result.Trades, 1)
	assert.Less(t, out[2].Result.Trades[0].PnL, 0.0)

	require.Error(t, out[3].Err)
	assert.Contains(t, out[3].Err.Error(), "boom")
	assert.Error(t, out[4].Err)

	for _, r := range out[5:] {
		require.NoError(t, r.Err)
		assert.Empty(t, r.Result.Trades)
		assert.Len(t, r.Result.Equity, 3)
	}
}

func TestRunBatchEmpty(t *testing.T) {
	t.Parallel()
	assert.Empty(t, RunBatch(context.Background(), nil, 4))
}

func TestRunBatchDone(t *testing.T) {
	t.Parallel()

	var seen []string
	ok := buildJob("ok", market.SignalLong)
	ok.Done = func(r Result) error {
		seen = append(seen, r.Name)
		return nil
	}
	bad := buildJob("bad", market.SignalLong)
	bad.Done = func(Result) error { return errors.New("journal down") }

	out := RunBatch(context.Background(), []Job{ok, bad}, 1)
	require.NoError(t, out[0].Err)
	assert.Equal(t, []string{"ok"}, seen)
	assert.ErrorContains(t, out[1].Err, "journal down")
	assert.Len(t, out[1].Result.Trades, 1, "the result is kept")
}
