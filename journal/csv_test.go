package journal

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/rustyeddy/tradeguard/circuit"
	"github.com/rustyeddy/tradeguard/perf"
	"github.com/rustyeddy/tradeguard/trade"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	recs, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return recs
}

func TestCSVHeaders(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "journal")
	j, err := NewCSV(dir)
	require.NoError(t, err)
	require.NoError(t, j.Close())

	tests := []struct {
		file   string
		header []string
	}{
		{TradesFile, tradesHeader},
		{EquityFile, equityHeader},
		{BreakerFile, breakerHeader},
		{RunsFile, runsHeader},
	}
	for _, tt := range tests {
		recs := readCSV(t, filepath.Join(dir, tt.file))
		require.Len(t, recs, 1, tt.file)
		assert.Equal(t, tt.header, recs[0], tt.file)
	}
}

func TestCSVRecords(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	j, err := NewCSV(dir)
	require.NoError(t, err)

	require.NoError(t, j.InsertTrade("RUN1", sampleTrade("T1", 12.345, 1)))
	require.NoError(t, j.InsertEquity("RUN1", trade.EquityPoint{Time: day0, Capital: 10012.345}))
	require.NoError(t, j.InsertFiring("RUN1", circuit.Firing{
		Level:   10,
		At:      day0,
		Equity:  9000,
		Peak:    10000,
		Results: []circuit.ActionResult{{Action: "log", OK: true}, {Action: "alert", Error: "down"}},
	}))
	require.NoError(t, j.InsertRun(Run{RunID: "RUN1", Name: "daily", Report: perf.Report{Trades: 1, NetPnL: 12.345}}))
	require.NoError(t, j.Close())

	trades := readCSV(t, filepath.Join(dir, TradesFile))
	require.Len(t, trades, 2)
	assert.Equal(t, []string{
		"RUN1", "T1", "EUR_USD", "long", "5000.00", "1.085", "1.0875",
		"2024-01-02T00:00:00Z", "2024-01-03T00:00:00Z", "12.35", "0.246900", "TakeProfit",
	}, trades[1])

	equity := readCSV(t, filepath.Join(dir, EquityFile))
	require.Len(t, equity, 2)
	assert.Equal(t, []string{"RUN1", "2024-01-02T00:00:00Z", "10012.35"}, equity[1])

	breaker := readCSV(t, filepath.Join(dir, BreakerFile))
	require.Len(t, breaker, 2)
	assert.Equal(t, "log:ok;alert:failed", breaker[1][8])
	assert.Equal(t, "9000.00", breaker[1][4])

	runs := readCSV(t, filepath.Join(dir, RunsFile))
	require.Len(t, runs, 2)
	assert.Equal(t, "daily", runs[1][1])
	assert.Equal(t, "12.35", runs[1][12])
}

func TestCSVAppendsWithoutSecondHeader(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	for i := 0; i < 2; i++ {
		j, err := NewCSV(dir)
		require.NoError(t, err)
		require.NoError(t, j.InsertEquity("R", trade.EquityPoint{Time: day0, Capital: 1}))
		require.NoError(t, j.Close())
	}

	recs := readCSV(t, filepath.Join(dir, EquityFile))
	assert.Len(t, recs, 3)
}

func TestCSVClosed(t *testing.T) {
	t.Parallel()

	j, err := NewCSV(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, j.Close())
	assert.NoError(t, j.Close())
	assert.ErrorIs(t, j.InsertEquity("R", trade.EquityPoint{}), ErrClosed)
}
