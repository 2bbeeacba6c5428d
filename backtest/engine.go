// Package backtest drives a single-position trade state machine over an
// ordered bar series and reports trades, equity and performance.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rustyeddy/tradeguard/circuit"
	"github.com/rustyeddy/tradeguard/indicators"
	"github.com/rustyeddy/tradeguard/internal/id"
	"github.com/rustyeddy/tradeguard/market"
	"github.com/rustyeddy/tradeguard/perf"
	"github.com/rustyeddy/tradeguard/risk"
	"github.com/rustyeddy/tradeguard/trade"
	"go.uber.org/zap"
)

// State of the engine's single position slot.
type State string

const (
	Flat State = "flat"
	Open State = "open"
)

var (
	// ErrRejected marks an ignored transition: an entry while already open,
	// an entry while paused, or a zero size.
	ErrRejected = errors.New("transition rejected")
	// ErrHalted is returned by OnBar after Shutdown.
	ErrHalted = errors.New("engine halted")
)

// EventSink receives trade lifecycle and equity events, in order.
type EventSink interface {
	TradeOpened(ctx context.Context, p trade.Position)
	TradeClosed(ctx context.Context, t trade.ClosedTrade)
	EquityUpdated(ctx context.Context, p trade.EquityPoint)
}

// EquityListener is notified after every equity point. circuit.Manager
// implements it.
type EquityListener interface {
	OnEquity(ctx context.Context, p trade.EquityPoint)
}

type pendingEntry struct {
	dir      market.Direction
	signalAt time.Time
}

// Engine is the trade state machine. It is not safe for concurrent use; the
// host feeds bars from one goroutine.
type Engine struct {
	cfg   Config
	sizer *risk.Sizer
	vol   *indicators.VolatilityEstimator
	log   *zap.Logger

	sinks     []EventSink
	listeners []EquityListener
	breaker   *circuit.Manager

	capital float64
	pos     *trade.Position
	pending *pendingEntry
	trades  []trade.ClosedTrade
	equity  []trade.EquityPoint
	last    market.Bar
	haveBar bool

	paused      bool
	pauseReason string
	halted      bool

	// flatten requests raised while equity listeners run are applied once
	// the listeners return
	publishing bool
	flattenReq string

	rejected      int
	lastRejection error
}

func NewEngine(cfg Config, sizer *risk.Sizer, log *zap.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if sizer == nil {
		return nil, fmt.Errorf("backtest: sizer is required")
	}
	if err := sizer.Config().Validate(); err != nil {
		return nil, err
	}
	if cfg.Fill == "" {
		cfg.Fill = FillClose
	}
	if cfg.Annualization == 0 {
		cfg.Annualization = indicators.DefaultAnnualization
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &Engine{
		cfg:     cfg,
		sizer:   sizer,
		vol:     indicators.NewVolatilityEstimator(cfg.LookbackWindow, cfg.Annualization),
		log:     log.Named("engine").With(zap.String("instrument", cfg.Instrument)),
		capital: cfg.InitialCapital,
	}, nil
}

// AddSink registers an event sink.
func (e *Engine) AddSink(s EventSink) { e.sinks = append(e.sinks, s) }

// AddEquityListener registers an equity listener.
func (e *Engine) AddEquityListener(l EquityListener) { e.listeners = append(e.listeners, l) }

// AttachBreaker wires a circuit manager both ways: it listens to equity and
// drives the engine's Pause, Shutdown and Rebalance hooks.
func (e *Engine) AttachBreaker(m *circuit.Manager) {
	m.SetControls(e)
	e.breaker = m
	e.AddEquityListener(m)
}

// Accepts reports whether OnBar would take b: the bar must be well formed
// and strictly after the last accepted bar. Failures wrap
// market.ErrDataIntegrity.
func (e *Engine) Accepts(b market.Bar) error {
	if err := b.Validate(); err != nil {
		return err
	}
	if e.haveBar {
		return market.CheckSequence(e.last, b)
	}
	return nil
}

// OnBar advances the state machine by one bar. A bar that breaks its own
// invariants or the time order returns an error wrapping
// market.ErrDataIntegrity and leaves the engine untouched.
func (e *Engine) OnBar(ctx context.Context, b market.Bar, sig market.Signal) error {
	if e.halted {
		return ErrHalted
	}
	if err := e.Accepts(b); err != nil {
		return err
	}

	if e.pending != nil {
		e.fillPending(ctx, b)
	}

	e.vol.Update(b)

	// 1) exits on this bar's range, stop before take profit
	if e.pos != nil {
		if px, reason, hit := checkExit(*e.pos, b); hit {
			if err := e.closePosition(ctx, b.Time, px, reason); err != nil {
				return err
			}
		}
	}

	// 2) signal driven exits
	dir, entry := sig.Direction()
	if e.pos != nil {
		switch {
		case sig == market.SignalFlat:
			if err := e.closePosition(ctx, b.Time, b.Close, trade.ManualClose); err != nil {
				return err
			}
		case entry && dir == e.pos.Direction.Opposite():
			if err := e.closePosition(ctx, b.Time, b.Close, trade.SignalReversal); err != nil {
				return err
			}
		}
	}

	// 3) trailing stop and unrealized PnL
	if e.pos != nil {
		ratchet(e.pos, b)
		e.pos.UnrealizedPnL = e.pos.PnLAt(b.Close)
	}

	// 4) entries
	if entry {
		switch {
		case e.pos != nil:
			e.reject(b.Time, sig, "position already open")
		case e.paused:
			e.reject(b.Time, sig, "trading paused: "+e.pauseReason)
		case e.cfg.Fill == FillNextOpen:
			e.pending = &pendingEntry{dir: dir, signalAt: b.Time}
		default:
			e.openPosition(ctx, b.Time, b.Close, dir)
		}
	}

	e.last = b
	e.haveBar = true

	e.recordEquity(ctx, b.Time)
	return e.applyFlatten(ctx)
}

func (e *Engine) fillPending(ctx context.Context, b market.Bar) {
	p := e.pending
	e.pending = nil
	if e.pos != nil || e.paused {
		e.reject(b.Time, signalFor(p.dir), "pending entry cancelled")
		return
	}
	e.openPosition(ctx, b.Time, b.Open, p.dir)
}

func (e *Engine) openPosition(ctx context.Context, at time.Time, price float64, dir market.Direction) {
	atr, err := e.vol.ATR()
	if err != nil {
		e.reject(at, signalFor(dir), "volatility not ready")
		return
	}

	d := e.sizer.Size(risk.SizeInput{
		Capital: e.capital,
		Price:   price,
		ATR:     atr,
		History: trade.PnLs(e.trades),
	})
	if d.Amount <= 0 {
		e.reject(at, signalFor(dir), "zero size: "+d.Reason)
		return
	}

	sign := float64(dir)
	stop := price - sign*risk.StopDistance(atr, e.sizer.Config().StopATRMultiple)
	take := 0.0
	if e.cfg.TakeProfitATRMultiple > 0 {
		take = price + sign*atr*e.cfg.TakeProfitATRMultiple
	}

	e.pos = &trade.Position{
		ID:                   id.At(at),
		Instrument:           e.cfg.Instrument,
		Direction:            dir,
		EntryPrice:           price,
		Size:                 d.Amount,
		StopPrice:            stop,
		TakeProfitPrice:      take,
		TrailingStopDistance: e.cfg.TrailingStopDistance,
		OpenedAt:             at,
	}

	fields := []zap.Field{
		zap.String("id", e.pos.ID),
		zap.Stringer("direction", dir),
		zap.Float64("entry", price),
		zap.Float64("size", d.Amount),
		zap.String("basis", string(d.Basis)),
		zap.Float64("stop", stop),
		zap.Float64("planned_risk", risk.PlannedRisk(d.Amount, price, stop)),
		zap.Float64("take_profit", take),
		zap.Time("at", at),
	}
	if take > 0 {
		fields = append(fields, zap.Float64("rr", risk.RR(price, stop, take)))
	}
	e.log.Info("position opened", fields...)
	for _, s := range e.sinks {
		s.TradeOpened(ctx, *e.pos)
	}
}

func (e *Engine) closePosition(ctx context.Context, at time.Time, price float64, reason trade.ExitReason) error {
	p := *e.pos
	pnl := p.PnLAt(price)
	if e.capital+pnl < 0 {
		e.log.Warn("loss exceeds remaining capital, flooring",
			zap.String("id", p.ID),
			zap.Float64("pnl", pnl),
			zap.Float64("capital", e.capital),
		)
		pnl = -e.capital
	}

	ct, err := trade.Close(p, price, at, reason, pnl)
	if err != nil {
		return err
	}

	e.capital += pnl
	e.pos = nil
	e.trades = append(e.trades, ct)

	e.log.Info("position closed",
		zap.String("id", ct.ID),
		zap.String("reason", string(reason)),
		zap.Float64("exit", price),
		zap.Float64("pnl", pnl),
		zap.Float64("capital", e.capital),
		zap.Time("at", at),
	)
	for _, s := range e.sinks {
		s.TradeClosed(ctx, ct)
	}
	return nil
}

func (e *Engine) reject(at time.Time, sig market.Signal, why string) {
	e.rejected++
	e.lastRejection = fmt.Errorf("%w: %s signal at %s: %s", ErrRejected, sig, at.Format(time.RFC3339), why)
	e.log.Info("signal ignored", zap.Error(e.lastRejection))
}

func (e *Engine) recordEquity(ctx context.Context, at time.Time) {
	c := e.capital
	if e.cfg.MarkToMarket && e.pos != nil {
		c = math.Max(0, c+e.pos.UnrealizedPnL)
	}
	p := trade.EquityPoint{Time: at, Capital: c}
	e.equity = append(e.equity, p)

	for _, s := range e.sinks {
		s.EquityUpdated(ctx, p)
	}

	e.publishing = true
	for _, l := range e.listeners {
		l.OnEquity(ctx, p)
	}
	e.publishing = false
}

// applyFlatten closes the position for a Rebalance or Shutdown requested by a
// listener during this bar and records the resulting equity.
func (e *Engine) applyFlatten(ctx context.Context) error {
	if e.flattenReq == "" {
		return nil
	}
	reason := e.flattenReq
	e.flattenReq = ""
	if e.pos == nil {
		return nil
	}
	e.log.Warn("flattening position", zap.String("reason", reason))
	if err := e.closePosition(ctx, e.last.Time, e.last.Close, trade.ManualClose); err != nil {
		return err
	}
	e.recordEquity(ctx, e.last.Time)
	return e.applyFlatten(ctx)
}

func (e *Engine) flatten(ctx context.Context, reason string) error {
	e.pending = nil
	if e.pos == nil {
		return nil
	}
	if !e.haveBar {
		return fmt.Errorf("%w: no price to close at", ErrRejected)
	}
	e.flattenReq = reason
	if e.publishing {
		return nil
	}
	return e.applyFlatten(ctx)
}

// Close flattens the open position at the last seen close with ManualClose.
func (e *Engine) Close(ctx context.Context, reason string) error {
	if e.pos == nil {
		return fmt.Errorf("%w: no open position", ErrRejected)
	}
	return e.flatten(ctx, reason)
}

// Pause blocks new entries; open positions keep being managed.
func (e *Engine) Pause(reason string) {
	if e.paused {
		return
	}
	e.paused = true
	e.pauseReason = reason
	e.pending = nil
	e.log.Warn("trading paused", zap.String("reason", reason))
}

// Resume lifts a Pause. A halted engine stays halted.
func (e *Engine) Resume() {
	if e.halted || !e.paused {
		return
	}
	e.paused = false
	e.pauseReason = ""
	e.log.Info("trading resumed")
}

// Shutdown flattens the position and halts the engine; later bars are
// refused with ErrHalted.
func (e *Engine) Shutdown(ctx context.Context, reason string) error {
	e.Pause(reason)
	e.halted = true
	e.log.Error("engine shut down", zap.String("reason", reason))
	return e.flatten(ctx, reason)
}

// Rebalance flattens the position so the next entry is sized against the
// current capital.
func (e *Engine) Rebalance(ctx context.Context, reason string) error {
	return e.flatten(ctx, reason)
}

// checkExit models stop and take-profit hits within one bar. When the range
// covers both, the stop wins.
func checkExit(p trade.Position, b market.Bar) (float64, trade.ExitReason, bool) {
	stopReason := trade.StopLoss
	if p.Ratcheted {
		stopReason = trade.TrailingStop
	}
	hasTake := p.TakeProfitPrice > 0

	switch p.Direction {
	case market.Long:
		if b.Low <= p.StopPrice {
			return p.StopPrice, stopReason, true
		}
		if hasTake && b.High >= p.TakeProfitPrice {
			return p.TakeProfitPrice, trade.TakeProfit, true
		}
	case market.Short:
		if b.High >= p.StopPrice {
			return p.StopPrice, stopReason, true
		}
		if hasTake && b.Low <= p.TakeProfitPrice {
			return p.TakeProfitPrice, trade.TakeProfit, true
		}
	}
	return 0, "", false
}

// ratchet trails the stop TrailingStopDistance behind the bar's favorable
// extreme. It only ever tightens.
func ratchet(p *trade.Position, b market.Bar) {
	d := p.TrailingStopDistance
	if d <= 0 {
		return
	}
	switch p.Direction {
	case market.Long:
		if c := b.High - d; c > p.StopPrice {
			p.StopPrice = c
			p.Ratcheted = true
		}
	case market.Short:
		if c := b.Low + d; c < p.StopPrice {
			p.StopPrice = c
			p.Ratcheted = true
		}
	}
}

func signalFor(d market.Direction) market.Signal {
	if d == market.Short {
		return market.SignalShort
	}
	return market.SignalLong
}

// Capital is realized capital.
func (e *Engine) Capital() float64 { return e.capital }

// Position returns a copy of the open position.
func (e *Engine) Position() (trade.Position, bool) {
	if e.pos == nil {
		return trade.Position{}, false
	}
	return *e.pos, true
}

func (e *Engine) Trades() []trade.ClosedTrade {
	return append([]trade.ClosedTrade(nil), e.trades...)
}

func (e *Engine) Equity() []trade.EquityPoint {
	return append([]trade.EquityPoint(nil), e.equity...)
}

// LastRejection is the most recent ErrRejected, or nil.
func (e *Engine) LastRejection() error { return e.lastRejection }

func (e *Engine) Halted() bool { return e.halted }

// Metrics computes the performance report over everything seen so far.
func (e *Engine) Metrics() perf.Report {
	return perf.Compute(e.trades, e.equity, perf.Options{PeriodsPerYear: e.cfg.Annualization})
}
