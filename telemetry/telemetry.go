// Package telemetry exports engine and circuit breaker activity as
// Prometheus metrics.
package telemetry

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rustyeddy/tradeguard/backtest"
	"github.com/rustyeddy/tradeguard/circuit"
	"github.com/rustyeddy/tradeguard/trade"
	"go.uber.org/zap"
)

const namespace = "tradeguard"

// Metrics owns a private registry and the collectors fed by Sinks.
type Metrics struct {
	registry *prometheus.Registry

	Equity        *prometheus.GaugeVec
	Drawdown      *prometheus.GaugeVec
	OpenPositions *prometheus.GaugeVec
	Trades        *prometheus.CounterVec
	RealizedPnL   *prometheus.CounterVec
	Firings       *prometheus.CounterVec

	mu    sync.Mutex
	peaks map[string]float64
}

// New registers the collectors. runtime adds the Go and process collectors.
func New(runtime bool) *Metrics {
	reg := prometheus.NewRegistry()
	if runtime {
		reg.MustRegister(collectors.NewGoCollector())
		reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}

	m := &Metrics{registry: reg, peaks: make(map[string]float64)}

	m.Equity = m.newGaugeVec(prometheus.GaugeOpts{
		Name: "equity",
		Help: "Latest equity point in account currency",
	}, []string{"instrument"})

	m.Drawdown = m.newGaugeVec(prometheus.GaugeOpts{
		Name: "drawdown_percent",
		Help: "Drawdown of the latest equity point from its running peak",
	}, []string{"instrument"})

	m.OpenPositions = m.newGaugeVec(prometheus.GaugeOpts{
		Name: "open_positions",
		Help: "1 while a position is open",
	}, []string{"instrument"})

	m.Trades = m.newCounterVec(prometheus.CounterOpts{
		Name: "trades_closed_total",
		Help: "Closed trades by exit reason",
	}, []string{"instrument", "reason"})

	m.RealizedPnL = m.newCounterVec(prometheus.CounterOpts{
		Name: "realized_pnl_total",
		Help: "Sum of realized profits and of realized losses, by side",
	}, []string{"instrument", "side"})

	m.Firings = m.newCounterVec(prometheus.CounterOpts{
		Name: "breaker_firings_total",
		Help: "Circuit breaker threshold firings",
	}, []string{"instrument", "level", "suppressed"})

	return m
}

func (m *Metrics) newGaugeVec(opts prometheus.GaugeOpts, labels []string) *prometheus.GaugeVec {
	opts.Namespace = namespace
	gv := prometheus.NewGaugeVec(opts, labels)
	m.registry.MustRegister(gv)
	return gv
}

func (m *Metrics) newCounterVec(opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	opts.Namespace = namespace
	cv := prometheus.NewCounterVec(opts, labels)
	m.registry.MustRegister(cv)
	return cv
}

// Registry exposes the private registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info("metrics listening", zap.String("addr", addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			log.Error("metrics shutdown", zap.Error(err))
			return err
		}
		return nil
	}
}

// Sink feeds the collectors for one instrument.
type Sink struct {
	m          *Metrics
	instrument string
}

var (
	_ backtest.EventSink = (*Sink)(nil)
	_ circuit.FiringSink = (*Sink)(nil)
)

// Sink returns the event sink labelled with instrument.
func (m *Metrics) Sink(instrument string) *Sink {
	return &Sink{m: m, instrument: instrument}
}

func (s *Sink) TradeOpened(_ context.Context, _ trade.Position) {
	s.m.OpenPositions.WithLabelValues(s.instrument).Set(1)
}

func (s *Sink) TradeClosed(_ context.Context, t trade.ClosedTrade) {
	s.m.OpenPositions.WithLabelValues(s.instrument).Set(0)
	s.m.Trades.WithLabelValues(s.instrument, string(t.ExitReason)).Inc()
	switch {
	case t.PnL > 0:
		s.m.RealizedPnL.WithLabelValues(s.instrument, "profit").Add(t.PnL)
	case t.PnL < 0:
		s.m.RealizedPnL.WithLabelValues(s.instrument, "loss").Add(-t.PnL)
	}
}

func (s *Sink) EquityUpdated(_ context.Context, p trade.EquityPoint) {
	s.m.mu.Lock()
	peak := s.m.peaks[s.instrument]
	if p.Capital > peak {
		peak = p.Capital
		s.m.peaks[s.instrument] = peak
	}
	s.m.mu.Unlock()

	dd := 0.0
	if peak > 0 {
		dd = (peak - p.Capital) / peak * 100
	}
	s.m.Equity.WithLabelValues(s.instrument).Set(p.Capital)
	s.m.Drawdown.WithLabelValues(s.instrument).Set(dd)
}

func (s *Sink) OnFiring(_ context.Context, f circuit.Firing) {
	level := strconv.FormatFloat(f.Level, 'f', -1, 64)
	s.m.Firings.WithLabelValues(s.instrument, level, strconv.FormatBool(f.Suppressed)).Inc()
}
