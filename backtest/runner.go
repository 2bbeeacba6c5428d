package backtest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rustyeddy/tradeguard/internal/id"
	"github.com/rustyeddy/tradeguard/market"
	"github.com/rustyeddy/tradeguard/perf"
	"github.com/rustyeddy/tradeguard/trade"
	"go.uber.org/zap"
)

// RunnerOptions controls how the runner behaves around the engine.
type RunnerOptions struct {
	// CloseEnd closes an open position at the last bar with ManualClose.
	CloseEnd bool
	// MaxBadBars aborts the run after this many integrity violations; 0 means
	// no limit.
	MaxBadBars int
}

// Runner drives an engine from a feed and a signaler. With a nil Signaler
// the feed's own signal column is used.
type Runner struct {
	// RunID tags the result; a new ULID is used when empty.
	RunID    string
	Name     string
	Engine   *Engine
	Feed     BarFeed
	Signaler market.Signaler
	Options  RunnerOptions
	Log      *zap.Logger
}

// Result summarizes one run.
type Result struct {
	RunID    string              `json:"run_id"`
	Name     string              `json:"name"`
	Strategy string              `json:"strategy"`
	Bars     int                 `json:"bars"`
	Skipped  int                 `json:"skipped"`
	Halted   bool                `json:"halted"`
	Start    time.Time           `json:"start"`
	End      time.Time           `json:"end"`
	Report   perf.Report         `json:"report"`
	Trades   []trade.ClosedTrade `json:"trades"`
	Equity   []trade.EquityPoint `json:"equity"`
}

// Run executes the loop: read a row, check it against the engine, ask the
// signaler, feed the engine. Bad bars are logged and skipped; a halted engine ends the run.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	if r.Engine == nil {
		return Result{}, fmt.Errorf("backtest: Engine is required")
	}
	if r.Feed == nil {
		return Result{}, fmt.Errorf("backtest: Feed is required")
	}
	defer r.Feed.Close()

	log := r.Log
	if log == nil {
		log = zap.NewNop()
	}

	runID := r.RunID
	if runID == "" {
		runID = id.New()
	}
	res := Result{RunID: runID, Name: r.Name, Strategy: "feed"}
	if r.Signaler != nil {
		res.Strategy = r.Signaler.Name()
	}
	log = log.With(zap.String("run", res.RunID))

loop:
	for {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		row, ok, err := r.Feed.Next()
		if err != nil {
			return Result{}, err
		}
		if !ok {
			break
		}

		b := row.Bar
		sig := row.Signal
		// bars the engine will skip never reach the signaler
		if err := r.Engine.Accepts(b); err == nil && r.Signaler != nil {
			sig = r.Signaler.Signal(b)
		}

		err = r.Engine.OnBar(ctx, b, sig)
		switch {
		case err == nil:
			res.Bars++
			if res.Start.IsZero() {
				res.Start = b.Time
			}
			res.End = b.Time
		case errors.Is(err, market.ErrDataIntegrity):
			res.Skipped++
			log.Warn("skipping bar", zap.Error(err))
			if r.Options.MaxBadBars > 0 && res.Skipped >= r.Options.MaxBadBars {
				return Result{}, fmt.Errorf("backtest: too many bad bars (%d): %w", res.Skipped, err)
			}
		case errors.Is(err, ErrHalted):
			res.Halted = true
			log.Warn("engine halted, stopping run", zap.Time("at", b.Time))
			break loop
		default:
			return Result{}, err
		}
	}

	if r.Options.CloseEnd {
		if _, open := r.Engine.Position(); open {
			if err := r.Engine.Close(ctx, "end of data"); err != nil {
				return Result{}, fmt.Errorf("backtest: close at end: %w", err)
			}
		}
	}

	res.Halted = res.Halted || r.Engine.Halted()
	res.Trades = r.Engine.Trades()
	res.Equity = r.Engine.Equity()
	res.Report = r.Engine.Metrics()

	log.Info("run finished",
		zap.Int("bars", res.Bars),
		zap.Int("skipped", res.Skipped),
		zap.Int("trades", res.Report.Trades),
		zap.Float64("end_capital", res.Report.EndCapital),
		zap.Float64("max_drawdown_pct", res.Report.MaxDrawdownPct),
	)
	return res, nil
}
