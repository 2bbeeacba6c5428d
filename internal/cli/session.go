package cli

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/rustyeddy/tradeguard/backtest"
	"github.com/rustyeddy/tradeguard/circuit"
	"github.com/rustyeddy/tradeguard/config"
	"github.com/rustyeddy/tradeguard/internal/id"
	"github.com/rustyeddy/tradeguard/journal"
	"github.com/rustyeddy/tradeguard/market"
	"github.com/rustyeddy/tradeguard/notify"
	"github.com/rustyeddy/tradeguard/risk"
	"github.com/rustyeddy/tradeguard/strategies"
	"github.com/rustyeddy/tradeguard/telemetry"
)

// services are shared by every session of one command.
type services struct {
	log      *zap.Logger
	store    journal.Store
	notifier circuit.Notifier
	metrics  *telemetry.Metrics
	closers  []func() error
}

// openServices builds the journal store and the alert notifier described by
// cfg. metrics may be nil.
func openServices(cfg *config.Config, log *zap.Logger, metrics *telemetry.Metrics) (*services, error) {
	s := &services{log: log, metrics: metrics}

	switch cfg.Journal.Type {
	case "csv":
		st, err := journal.NewCSV(cfg.Journal.Dir)
		if err != nil {
			return nil, fmt.Errorf("open csv journal: %w", err)
		}
		s.store = st
		s.closers = append(s.closers, st.Close)
	case "sqlite":
		st, err := journal.NewSQLite(cfg.Journal.DBPath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite journal: %w", err)
		}
		s.store = st
		s.closers = append(s.closers, st.Close)
	}

	notifiers := notify.Multi{notify.NewLog(log)}
	if url := cfg.Notify.WebhookURL; url != "" {
		wh, err := notify.NewWebhook(notify.WebhookOptions{
			URL:     url,
			Timeout: cfg.Notify.Timeout,
			Async:   true,
		}, log)
		if err != nil {
			s.Close()
			return nil, err
		}
		notifiers = append(notifiers, wh)
		// drain queued alerts before the journal goes away
		s.closers = append([]func() error{wh.Close}, s.closers...)
	}
	s.notifier = notifiers
	return s, nil
}

// Close releases everything in reverse order of need.
func (s *services) Close() error {
	var errs []error
	for _, c := range s.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

// session is one fully wired run: sizer, engine, breaker, sinks and feed.
type session struct {
	cfg      *config.Config
	engine   *backtest.Engine
	breaker  *circuit.Manager
	runner   *backtest.Runner
	recorder *journal.Recorder
}

type sessionOptions struct {
	Name       string
	CloseEnd   bool
	MaxBadBars int
}

func newSession(cfg *config.Config, svc *services, opts sessionOptions) (*session, error) {
	log := svc.log
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Data.Path == "" {
		return nil, errors.New("no bar data: set data.path or --data")
	}

	name := opts.Name
	if name == "" {
		name = cfg.Run.Name
	}
	runID := id.New()
	log = log.With(zap.String("name", name))

	sizer := risk.NewSizer(cfg.Sizing(), log)
	engine, err := backtest.NewEngine(cfg.Engine(), sizer, log)
	if err != nil {
		return nil, err
	}

	bcfg, err := cfg.Breaker(builtinHandlers(engine, log))
	if err != nil {
		return nil, err
	}
	breaker, err := circuit.New(bcfg, circuit.Deps{Log: log, Notifier: svc.notifier})
	if err != nil {
		return nil, err
	}
	engine.AttachBreaker(breaker)

	s := &session{cfg: cfg, engine: engine, breaker: breaker}
	if svc.store != nil {
		s.recorder = journal.NewRecorder(svc.store, runID, log)
		engine.AddSink(s.recorder)
		breaker.AddSink(s.recorder)
	}
	if svc.metrics != nil {
		sink := svc.metrics.Sink(cfg.Run.Instrument)
		engine.AddSink(sink)
		breaker.AddSink(sink)
	}

	var signaler market.Signaler
	if cfg.Strategy.Name != "" {
		if signaler, err = strategies.ByName(cfg.Strategy.Name, cfg.Strategy.Params); err != nil {
			return nil, err
		}
	}

	feed, err := backtest.NewCSVBarFeed(cfg.Data.Path, cfg.Data.From, cfg.Data.To)
	if err != nil {
		return nil, err
	}

	s.runner = &backtest.Runner{
		RunID:    runID,
		Name:     name,
		Engine:   engine,
		Feed:     feed,
		Signaler: signaler,
		Options: backtest.RunnerOptions{
			CloseEnd:   opts.CloseEnd,
			MaxBadBars: opts.MaxBadBars,
		},
		Log: log,
	}
	return s, nil
}

// run drives the feed to the end and journals the run summary.
func (s *session) run(ctx context.Context) (backtest.Result, error) {
	res, err := s.runner.Run(ctx)
	if err != nil {
		return res, err
	}
	return res, s.finish(res)
}

// finish writes the run summary and reports journal write failures.
func (s *session) finish(res backtest.Result) error {
	if s.recorder == nil {
		return nil
	}
	run := journal.RunFromResult(res, s.cfg.Run.Instrument, filepath.Base(s.cfg.Data.Path))
	if err := s.recorder.Finish(run); err != nil {
		return fmt.Errorf("journal run: %w", err)
	}
	if err := s.recorder.Err(); err != nil {
		return fmt.Errorf("journal: %w", err)
	}
	return nil
}

// builtinHandlers are the custom breaker actions available from YAML.
func builtinHandlers(e *backtest.Engine, log *zap.Logger) config.Handlers {
	return config.Handlers{
		// snapshot logs the engine state at the moment of the firing
		"snapshot": func(_ context.Context, f circuit.Firing) error {
			st := e.Status()
			log.Warn("breaker snapshot",
				zap.Float64("level", f.Level),
				zap.Float64("capital", st.Capital),
				zap.String("state", string(st.State)),
				zap.Bool("paused", st.Paused),
				zap.Int("trades", len(st.Trades)))
			return nil
		},
		// resume lifts a pause set by a lower threshold
		"resume": func(_ context.Context, _ circuit.Firing) error {
			e.Resume()
			return nil
		},
	}
}
