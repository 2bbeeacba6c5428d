// Package journal persists closed trades, equity points, breaker firings and
// run summaries. It is an append-only sink; the engine never reads from it.
package journal

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rustyeddy/tradeguard/backtest"
	"github.com/rustyeddy/tradeguard/circuit"
	"github.com/rustyeddy/tradeguard/internal/id"
	"github.com/rustyeddy/tradeguard/perf"
	"github.com/rustyeddy/tradeguard/trade"
	"go.uber.org/zap"
)

// Run is the summary row written once per backtest.
type Run struct {
	RunID      string      `json:"run_id"`
	Name       string      `json:"name"`
	Strategy   string      `json:"strategy"`
	Instrument string      `json:"instrument"`
	Dataset    string      `json:"dataset"`
	Created    time.Time   `json:"created"`
	Start      time.Time   `json:"start"`
	End        time.Time   `json:"end"`
	Bars       int         `json:"bars"`
	Skipped    int         `json:"skipped"`
	Halted     bool        `json:"halted"`
	Report     perf.Report `json:"report"`
}

// RunFromResult builds the summary row for a finished backtest.
func RunFromResult(res backtest.Result, instrument, dataset string) Run {
	// run IDs are ULIDs minted when the run started
	created, err := id.Time(res.RunID)
	if err != nil {
		created = time.Now().UTC()
	}
	return Run{
		RunID:      res.RunID,
		Name:       res.Name,
		Strategy:   res.Strategy,
		Instrument: instrument,
		Dataset:    dataset,
		Created:    created,
		Start:      res.Start,
		End:        res.End,
		Bars:       res.Bars,
		Skipped:    res.Skipped,
		Halted:     res.Halted,
		Report:     res.Report,
	}
}

// Store is an append-only backing store.
type Store interface {
	InsertTrade(runID string, t trade.ClosedTrade) error
	InsertEquity(runID string, p trade.EquityPoint) error
	InsertFiring(runID string, f circuit.Firing) error
	InsertRun(r Run) error
	Close() error
}

// ErrClosed is returned by stores after Close.
var ErrClosed = errors.New("journal closed")

// Recorder adapts a Store to the engine and breaker event interfaces for a
// single run. Store errors never reach the engine; they are logged and the
// first one is kept for Err.
type Recorder struct {
	store Store
	runID string
	log   *zap.Logger

	mu  sync.Mutex
	err error
}

var (
	_ backtest.EventSink = (*Recorder)(nil)
	_ circuit.FiringSink = (*Recorder)(nil)
)

// NewRecorder tags every record with runID.
func NewRecorder(store Store, runID string, log *zap.Logger) *Recorder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Recorder{
		store: store,
		runID: runID,
		log:   log.With(zap.String("run", runID)),
	}
}

// RunID is the run the recorder tags records with.
func (r *Recorder) RunID() string { return r.runID }

// TradeOpened is not persisted; the closed trade carries the entry.
func (r *Recorder) TradeOpened(_ context.Context, p trade.Position) {
	r.log.Debug("trade opened",
		zap.String("trade", p.ID),
		zap.Stringer("direction", p.Direction),
		zap.Float64("size", p.Size))
}

func (r *Recorder) TradeClosed(_ context.Context, t trade.ClosedTrade) {
	r.keep("trade", r.store.InsertTrade(r.runID, t))
}

func (r *Recorder) EquityUpdated(_ context.Context, p trade.EquityPoint) {
	r.keep("equity", r.store.InsertEquity(r.runID, p))
}

func (r *Recorder) OnFiring(_ context.Context, f circuit.Firing) {
	r.keep("breaker event", r.store.InsertFiring(r.runID, f))
}

// Finish writes the run summary.
func (r *Recorder) Finish(run Run) error {
	run.RunID = r.runID
	err := r.store.InsertRun(run)
	r.keep("run", err)
	return err
}

// Err returns the first store error seen by the recorder.
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *Recorder) keep(what string, err error) {
	if err == nil {
		return
	}
	r.log.Error("journal write failed", zap.String("record", what), zap.Error(err))
	r.mu.Lock()
	if r.err == nil {
		r.err = err
	}
	r.mu.Unlock()
}
