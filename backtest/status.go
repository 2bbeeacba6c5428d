package backtest

import (
	"github.com/rustyeddy/tradeguard/circuit"
	"github.com/rustyeddy/tradeguard/perf"
	"github.com/rustyeddy/tradeguard/trade"
)

// Status is the pull side snapshot consumed by reports and dashboards.
type Status struct {
	Instrument    string              `json:"instrument"`
	State         State               `json:"state"`
	Capital       float64             `json:"capital"`
	Paused        bool                `json:"paused"`
	PauseReason   string              `json:"pause_reason,omitempty"`
	Halted        bool                `json:"halted"`
	Position      *trade.Position     `json:"position,omitempty"`
	Trades        []trade.ClosedTrade `json:"trades"`
	Equity        []trade.EquityPoint `json:"equity"`
	Metrics       perf.Report         `json:"metrics"`
	Breaker       *circuit.Status     `json:"breaker,omitempty"`
	Rejected      int                 `json:"rejected"`
	LastRejection string              `json:"last_rejection,omitempty"`
}

func (e *Engine) Status() Status {
	st := Status{
		Instrument:  e.cfg.Instrument,
		State:       Flat,
		Capital:     e.capital,
		Paused:      e.paused,
		PauseReason: e.pauseReason,
		Halted:      e.halted,
		Trades:      e.Trades(),
		Equity:      e.Equity(),
		Metrics:     e.Metrics(),
		Rejected:    e.rejected,
	}
	if p, ok := e.Position(); ok {
		st.State = Open
		st.Position = &p
	}
	if e.breaker != nil {
		bs := e.breaker.Status()
		st.Breaker = &bs
	}
	if e.lastRejection != nil {
		st.LastRejection = e.lastRejection.Error()
	}
	return st
}
