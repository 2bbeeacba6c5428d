package journal

import (
	"fmt"
	"io"
	"math"
	"strings"
	"text/template"
	"time"

	"github.com/rustyeddy/tradeguard/circuit"
	"github.com/rustyeddy/tradeguard/trade"
)

// Report is everything the org export renders for one run.
type Report struct {
	Run       Run
	Trades    []trade.ClosedTrade
	Firings   []circuit.Firing
	Notes     []string
	EquityPNG string
}

var orgFuncs = template.FuncMap{
	"mul100": func(x float64) float64 { return x * 100.0 },
	"money":  func(x float64) string { return money(x).StringFixed(2) },
	"ratio": func(x float64) string {
		if math.IsInf(x, 1) {
			return "inf"
		}
		return fmt.Sprintf("%.2f", x)
	},
	"day": func(t time.Time) string {
		if t.IsZero() {
			return "(none)"
		}
		return t.UTC().Format("2006-01-02")
	},
	"stamp": func(t time.Time) string {
		if t.IsZero() {
			t = time.Now()
		}
		return t.Format("2006-01-02 Mon 15:04")
	},
	"trade": FormatTradeOrg,
}

var runOrg = template.Must(template.New("run").Funcs(orgFuncs).Parse(RunOrgTemplate))

// WriteOrg renders the run as an org-mode document.
func WriteOrg(w io.Writer, rep Report) error {
	if err := runOrg.Execute(w, rep); err != nil {
		return fmt.Errorf("org report %s: %w", rep.Run.RunID, err)
	}
	return nil
}

// ExportOrg loads a run from the database and renders it.
func (j *SQLite) ExportOrg(w io.Writer, runID string) error {
	run, err := j.GetRun(runID)
	if err != nil {
		return err
	}
	trades, err := j.ListTradesByRun(runID)
	if err != nil {
		return err
	}
	firings, err := j.ListFiringsByRun(runID)
	if err != nil {
		return err
	}
	return WriteOrg(w, Report{Run: run, Trades: trades, Firings: firings})
}

// FormatTradeOrg renders a closed trade as an org heading with a PROPERTIES
// drawer and empty review sections.
func FormatTradeOrg(t trade.ClosedTrade) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*** Trade: %s %s (%s)\n", t.Instrument, t.Direction, shortID(t.ID))
	b.WriteString(":PROPERTIES:\n")
	fmt.Fprintf(&b, ":TRADE_ID: %s\n", t.ID)
	fmt.Fprintf(&b, ":INSTRUMENT: %s\n", t.Instrument)
	fmt.Fprintf(&b, ":DIRECTION: %s\n", t.Direction)
	fmt.Fprintf(&b, ":SIZE: %s\n", money(t.Size).StringFixed(2))
	fmt.Fprintf(&b, ":ENTRY_PRICE: %s\n", price(t.EntryPrice))
	fmt.Fprintf(&b, ":EXIT_PRICE: %s\n", price(t.ExitPrice))
	fmt.Fprintf(&b, ":OPEN_TIME: %s\n", t.OpenedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, ":CLOSE_TIME: %s\n", t.ClosedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, ":PNL: %s\n", money(t.PnL).StringFixed(2))
	fmt.Fprintf(&b, ":PNL_PCT: %.2f\n", t.PnLPercent)
	fmt.Fprintf(&b, ":EXIT_REASON: %s\n", t.ExitReason)
	b.WriteString(":END:\n")
	b.WriteString("**** Review\n- \n")
	return b.String()
}

func shortID(full string) string {
	if len(full) <= 8 {
		return full
	}
	return full[:8]
}

const RunOrgTemplate = `* BACKTEST: {{.Run.Strategy}} {{.Run.Instrument}}
:PROPERTIES:
:RUN_ID:      {{.Run.RunID}}
:NAME:        {{.Run.Name}}
:STRATEGY:    {{.Run.Strategy}}
:INSTRUMENT:  {{.Run.Instrument}}
:DATASET:     {{if .Run.Dataset}}{{.Run.Dataset}}{{else}}(dataset?){{end}}
:START_DATE:  {{day .Run.Start}}
:END_DATE:    {{day .Run.End}}
:BARS:        {{.Run.Bars}}
:SKIPPED:     {{.Run.Skipped}}
:HALTED:      {{.Run.Halted}}
:START_BAL:   {{money .Run.Report.StartCapital}}
:END_BAL:     {{money .Run.Report.EndCapital}}
:NET_PL:      {{money .Run.Report.NetPnL}}
:RETURN_PCT:  {{printf "%.2f" .Run.Report.ReturnPct}}
:MAX_DD_PCT:  {{printf "%.2f" .Run.Report.MaxDrawdownPct}}
:TRADES:      {{.Run.Report.Trades}}
:WINS:        {{.Run.Report.Wins}}
:LOSSES:      {{.Run.Report.Losses}}
:WIN_RATE:    {{printf "%.2f" (mul100 .Run.Report.WinRate)}}
:PROFIT_FAC:  {{ratio .Run.Report.ProfitFactor}}
:CREATED:     [{{stamp .Run.Created}}]
:END:

** Performance Summary
- Net P/L:          *{{money .Run.Report.NetPnL}}*
- Return:           *{{printf "%.2f" .Run.Report.ReturnPct}}%*
- Annualized:       *{{printf "%.2f" (mul100 .Run.Report.AnnualizedReturn)}}%*
- Max Drawdown:     *{{printf "%.2f" .Run.Report.MaxDrawdownPct}}%*
- Win Rate:         *{{printf "%.2f" (mul100 .Run.Report.WinRate)}}%*
- Profit Factor:    *{{ratio .Run.Report.ProfitFactor}}*
- Sharpe:           *{{ratio .Run.Report.Sharpe}}*
- Calmar:           *{{ratio .Run.Report.Calmar}}*
- Exposure:         *{{printf "%.2f" (mul100 .Run.Report.Exposure)}}%*

** Equity Curve
{{- if .EquityPNG }}
[[file:{{.EquityPNG}}]]
{{- else }}
# (optional) insert an exported equity curve image here
{{- end }}

** Trade Distribution
| Outcome | Count |
|---------+-------|
| Wins    | {{.Run.Report.Wins}} |
| Losses  | {{.Run.Report.Losses}} |
| Total   | {{.Run.Report.Trades}} |
{{- if .Firings }}

** Circuit Breaker
| Level | Time | Equity | Drawdown % | Suppressed |
|-------+------+--------+------------+------------|
{{- range .Firings }}
| {{printf "%.1f" .Level}} | {{day .At}} | {{money .Equity}} | {{printf "%.2f" .DrawdownPct}} | {{.Suppressed}} |
{{- end }}
{{- end }}
{{- if .Trades }}

** Trades
{{ range .Trades }}{{trade .}}{{ end }}
{{- end }}
{{- if .Notes }}

** Observations
{{- range .Notes }}
- {{.}}
{{- end }}
{{- end }}
`
