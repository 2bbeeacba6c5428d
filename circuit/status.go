package circuit

import "time"

// ThresholdStatus is the externally visible state of one threshold.
type ThresholdStatus struct {
	Level       float64   `json:"level"`
	Description string    `json:"description"`
	State       State     `json:"state"`
	FiredAt     time.Time `json:"fired_at,omitempty"`
	TimesFired  int       `json:"times_fired"`
}

// Status is a point in time snapshot for dashboards and reports.
type Status struct {
	Enabled       bool              `json:"enabled"`
	RealMoney     bool              `json:"real_money"`
	OnlyRealMoney bool              `json:"only_real_money"`
	Rearm         RearmMode         `json:"rearm"`
	Equity        float64           `json:"equity"`
	Peak          float64           `json:"peak"`
	DrawdownPct   float64           `json:"drawdown_pct"`
	CurvePoints   int               `json:"curve_points"`
	Thresholds    []ThresholdStatus `json:"thresholds"`
	Audit         []Firing          `json:"audit,omitempty"`
}

func (m *Manager) Status() Status {
	st := Status{
		Enabled:       m.cfg.Enabled,
		RealMoney:     m.cfg.RealMoney,
		OnlyRealMoney: m.cfg.OnlyRealMoney,
		Rearm:         m.cfg.Rearm,
		Equity:        m.equity,
		Peak:          m.peak,
		DrawdownPct:   m.drawdown,
		CurvePoints:   len(m.curve),
		Audit:         append([]Firing(nil), m.audit...),
	}
	for _, th := range m.thresholds {
		st.Thresholds = append(st.Thresholds, ThresholdStatus{
			Level:       th.Level,
			Description: th.Description,
			State:       th.state,
			FiredAt:     th.firedAt,
			TimesFired:  th.count,
		})
	}
	return st
}

// Fired reports whether any threshold is currently fired.
func (m *Manager) Fired() bool {
	for _, th := range m.thresholds {
		if th.state == Fired {
			return true
		}
	}
	return false
}
