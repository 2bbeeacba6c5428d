// Package circuit watches the equity curve and escalates protective actions
// when configured drawdown thresholds are crossed.
package circuit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rustyeddy/tradeguard/trade"
	"github.com/sourcegraph/conc/panics"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// State of one threshold within the current drawdown episode.
type State string

const (
	Armed      State = "armed"
	Fired      State = "fired"
	Suppressed State = "suppressed" // would have fired, but the run is not real money
)

// ActionResult is the audit entry of one executed action.
type ActionResult struct {
	Action string `json:"action"`
	OK     bool   `json:"ok"`
	Error  string `json:"error,omitempty"`
}

// Firing is one threshold crossing.
type Firing struct {
	Level       float64        `json:"level"`
	Description string         `json:"description"`
	At          time.Time      `json:"at"`
	Equity      float64        `json:"equity"`
	Peak        float64        `json:"peak"`
	DrawdownPct float64        `json:"drawdown_pct"`
	Suppressed  bool           `json:"suppressed"`
	Results     []ActionResult `json:"results,omitempty"`
}

type threshold struct {
	Threshold
	state   State
	firedAt time.Time
	count   int
}

// Deps are the collaborators of a Manager. All are optional.
type Deps struct {
	Log      *zap.Logger
	Controls Controls
	Notifier Notifier
	Sinks    []FiringSink
}

// Manager is the circuit breaker. Like the engine it is single threaded: the
// host serializes calls.
type Manager struct {
	cfg        Config
	log        *zap.Logger
	controls   Controls
	notifier   Notifier
	sinks      []FiringSink
	thresholds []*threshold

	curve    []trade.EquityPoint
	peak     float64
	havePeak bool
	equity   float64
	drawdown float64

	audit []Firing
}

// New validates cfg and returns a manager with every threshold armed.
func New(cfg Config, deps Deps) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}

	m := &Manager{
		cfg:      cfg,
		log:      log.Named("circuit"),
		controls: deps.Controls,
		notifier: deps.Notifier,
		sinks:    deps.Sinks,
	}
	for _, th := range sortedThresholds(cfg.Thresholds) {
		m.thresholds = append(m.thresholds, &threshold{Threshold: th, state: Armed})
	}
	return m, nil
}

// SetControls attaches the trading hooks after construction; the engine
// usually needs the manager before it exists itself.
func (m *Manager) SetControls(c Controls) { m.controls = c }

// AddSink registers another firing sink.
func (m *Manager) AddSink(s FiringSink) { m.sinks = append(m.sinks, s) }

// OnEquity lets the manager listen to an engine's equity updates.
func (m *Manager) OnEquity(ctx context.Context, p trade.EquityPoint) {
	m.Check(ctx, p.Time, p.Capital)
}

// Check records equity and fires every armed threshold at or below the
// current drawdown, lowest level first. It returns the thresholds that fired
// during this call; suppressed (dry run) crossings are not returned.
func (m *Manager) Check(ctx context.Context, at time.Time, equity float64) []Firing {
	if math.IsNaN(equity) || math.IsInf(equity, 0) || equity < 0 {
		m.log.Warn("ignoring invalid equity", zap.Float64("equity", equity))
		return nil
	}

	m.record(at, equity)

	if !m.cfg.Enabled {
		return nil
	}

	var fired []Firing
	for _, th := range m.thresholds {
		if th.state != Armed || th.Level > m.drawdown {
			continue
		}

		f := Firing{
			Level:       th.Level,
			Description: th.Description,
			At:          at,
			Equity:      equity,
			Peak:        m.peak,
			DrawdownPct: m.drawdown,
		}

		if m.cfg.OnlyRealMoney && !m.cfg.RealMoney {
			th.state = Suppressed
			f.Suppressed = true
			m.log.Info("circuit breaker would have fired",
				zap.Float64("level", th.Level),
				zap.Float64("drawdown_pct", m.drawdown),
				zap.String("description", th.Description),
			)
			m.publish(ctx, f)
			continue
		}

		th.state = Fired
		th.firedAt = at
		th.count++
		m.log.Warn("circuit breaker fired",
			zap.Float64("level", th.Level),
			zap.Float64("drawdown_pct", m.drawdown),
			zap.Float64("equity", equity),
			zap.Float64("peak", m.peak),
			zap.String("description", th.Description),
		)
		for _, a := range th.Actions {
			f.Results = append(f.Results, m.run(ctx, th.Level, a, f))
		}
		m.publish(ctx, f)
		fired = append(fired, f)
	}
	return fired
}

func (m *Manager) record(at time.Time, equity float64) {
	m.curve = append(m.curve, trade.EquityPoint{Time: at, Capital: equity})
	if len(m.curve) > m.cfg.CurveCap {
		m.curve = m.curve[len(m.curve)-m.cfg.CurveCap:]
	}
	m.equity = equity

	if !m.havePeak || equity > m.peak {
		newHigh := m.havePeak
		m.peak = equity
		m.havePeak = true
		if newHigh && m.cfg.Rearm == RearmOnPeak {
			m.rearm(func(*threshold) bool { return true }, "new equity peak")
		}
	}

	m.drawdown = 0
	if m.peak > 0 {
		m.drawdown = (m.peak - equity) / m.peak * 100
	}

	if m.cfg.Rearm == RearmOnRecovery {
		m.rearm(func(th *threshold) bool {
			return m.drawdown < th.Level-m.cfg.HysteresisPct
		}, "drawdown recovered")
	}
}

func (m *Manager) rearm(pred func(*threshold) bool, why string) {
	for _, th := range m.thresholds {
		if th.state == Armed || !pred(th) {
			continue
		}
		th.state = Armed
		m.log.Info("circuit breaker re-armed", zap.Float64("level", th.Level), zap.String("reason", why))
	}
}

func (m *Manager) run(ctx context.Context, level float64, a Action, f Firing) (res ActionResult) {
	res.Action = a.String()

	ctx, cancel := context.WithTimeout(ctx, m.cfg.ActionTimeout)
	defer cancel()

	var (
		pc  panics.Catcher
		err error
	)
	pc.Try(func() { err = m.execute(ctx, a, f) })
	if rec := pc.Recovered(); rec != nil {
		err = fmt.Errorf("panic: %v", rec.Value)
	}
	if err != nil {
		res.Error = m.failed(level, a, err).Error()
		return res
	}
	res.OK = true
	return res
}

func (m *Manager) failed(level float64, a Action, err error) error {
	ae := &ActionError{Level: level, Action: a.String(), Err: err}
	m.log.Error("circuit breaker action failed", zap.Error(ae))
	return ae
}

var errNoControls = errors.New("no trading controls attached")

func (m *Manager) execute(ctx context.Context, a Action, f Firing) error {
	reason := fmt.Sprintf("drawdown %.2f%% crossed %.2f%%", f.DrawdownPct, f.Level)

	switch a := a.(type) {
	case Log:
		msg := a.Message
		if msg == "" {
			msg = f.Description
		}
		m.log.Log(zapLevel(a.severity()), msg,
			zap.Float64("level", f.Level),
			zap.Float64("drawdown_pct", f.DrawdownPct),
		)
		return nil
	case Alert:
		if m.notifier == nil {
			return errors.New("no notifier attached")
		}
		msg := a.Message
		if msg == "" {
			msg = fmt.Sprintf("%s: %s", f.Description, reason)
		}
		return m.notifier.Notify(ctx, a.Channel, msg)
	case PauseTrading:
		if m.controls == nil {
			return errNoControls
		}
		m.controls.Pause(reason)
		return nil
	case Shutdown:
		if m.controls == nil {
			return errNoControls
		}
		return m.controls.Shutdown(ctx, reason)
	case Rebalance:
		if m.controls == nil {
			return errNoControls
		}
		return m.controls.Rebalance(ctx, reason)
	case Custom:
		return a.Handler(ctx, f)
	}
	return fmt.Errorf("unsupported action %T", a)
}

func (m *Manager) publish(ctx context.Context, f Firing) {
	m.audit = append(m.audit, f)
	for _, s := range m.sinks {
		s.OnFiring(ctx, f)
	}
}

func zapLevel(s Severity) zapcore.Level {
	switch s {
	case SeverityInfo:
		return zapcore.InfoLevel
	case SeverityError:
		return zapcore.ErrorLevel
	default:
		return zapcore.WarnLevel
	}
}

// Reset re-arms every threshold. With clearCurve the equity curve, peak and
// audit trail are dropped too, as between independent runs.
func (m *Manager) Reset(clearCurve bool) {
	for _, th := range m.thresholds {
		th.state = Armed
		th.firedAt = time.Time{}
	}
	if clearCurve {
		m.curve = nil
		m.peak = 0
		m.havePeak = false
		m.equity = 0
		m.drawdown = 0
		m.audit = nil
	}
}

// Curve returns a copy of the bounded equity curve.
func (m *Manager) Curve() []trade.EquityPoint {
	return append([]trade.EquityPoint(nil), m.curve...)
}

// Drawdown is the current drawdown in percent.
func (m *Manager) Drawdown() float64 { return m.drawdown }
