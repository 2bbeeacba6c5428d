package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/rustyeddy/tradeguard/backtest"
	"github.com/rustyeddy/tradeguard/config"
	"github.com/rustyeddy/tradeguard/journal"
	"github.com/rustyeddy/tradeguard/telemetry"
)

// runFlags override the config file for a single run. Each is also read from
// TRADEGUARD_<NAME>.
var runFlags = []string{"data", "from", "to", "strategy", "fast", "slow", "script", "instrument", "capital", "metrics-listen"}

func addRunFlags(fs *pflag.FlagSet) {
	fs.String("data", "", "bar CSV: time,open,high,low,close,volume[,signal]")
	fs.String("from", "", "first bar time (RFC3339 or YYYY-MM-DD)")
	fs.String("to", "", "bars at or after this time are skipped")
	fs.String("strategy", "", "strategy name; \"feed\" uses the signal column of the data")
	fs.Int("fast", 0, "ema-cross: fast EMA period")
	fs.Int("slow", 0, "ema-cross: slow EMA period")
	fs.String("script", "", "scripted: time,signal CSV")
	fs.String("instrument", "", "instrument label")
	fs.Float64("capital", 0, "initial capital")
	fs.String("metrics-listen", "", "serve prometheus metrics on this address")
}

func (a *app) bindRunFlags(fs *pflag.FlagSet) {
	for _, name := range runFlags {
		_ = a.v.BindPFlag(name, fs.Lookup(name))
	}
}

// applyRunFlags copies set flags and environment values over cfg.
func (a *app) applyRunFlags(cfg *config.Config) error {
	v := a.v
	if s := v.GetString("data"); s != "" {
		cfg.Data.Path = s
	}
	for _, tf := range []struct {
		key string
		dst *time.Time
	}{{"from", &cfg.Data.From}, {"to", &cfg.Data.To}} {
		s := v.GetString(tf.key)
		if s == "" {
			continue
		}
		t, err := parseDay(s)
		if err != nil {
			return fmt.Errorf("--%s: %w", tf.key, err)
		}
		*tf.dst = t
	}
	switch s := v.GetString("strategy"); s {
	case "":
	case "feed":
		cfg.Strategy.Name = ""
	default:
		cfg.Strategy.Name = s
	}
	if n := v.GetInt("fast"); n > 0 {
		cfg.Strategy.Fast = n
	}
	if n := v.GetInt("slow"); n > 0 {
		cfg.Strategy.Slow = n
	}
	if s := v.GetString("script"); s != "" {
		cfg.Strategy.Script = s
	}
	if s := v.GetString("instrument"); s != "" {
		cfg.Run.Instrument = s
	}
	if c := v.GetFloat64("capital"); c > 0 {
		cfg.Run.InitialCapital = c
	}
	if s := v.GetString("metrics-listen"); s != "" {
		cfg.Telemetry.Listen = s
	}
	return cfg.Validate()
}

func parseDay(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, time.RFC3339Nano, time.DateOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("bad time %q: want RFC3339 or YYYY-MM-DD", s)
}

func newBacktestCmd(a *app) *cobra.Command {
	var (
		name       string
		closeEnd   bool
		maxBadBars int
		asJSON     bool
		orgPath    string
		hold       bool
	)

	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Run one strategy over a bar file with risk controls",
		Long: `Backtest replays a bar CSV through the trading engine with position sizing,
stop/take-profit exits and the drawdown circuit breaker, then prints the
performance summary.

Examples:
  tradeguard backtest --data data/eurusd_d1.csv --strategy ema-cross --fast 10 --slow 30
  tradeguard backtest --config run.yaml --db trades.sqlite --org report.org`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.load(); err != nil {
				return err
			}
			defer a.close()
			if err := a.applyRunFlags(a.cfg); err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			var metrics *telemetry.Metrics
			if listen := a.cfg.Telemetry.Listen; listen != "" {
				metrics = telemetry.New(true)
				go func() {
					if err := metrics.Serve(ctx, listen, a.log); err != nil {
						a.log.Error("metrics server", zap.Error(err))
					}
				}()
			}

			svc, err := openServices(a.cfg, a.log, metrics)
			if err != nil {
				return err
			}
			defer svc.Close()

			s, err := newSession(a.cfg, svc, sessionOptions{Name: name, CloseEnd: closeEnd, MaxBadBars: maxBadBars})
			if err != nil {
				return err
			}
			res, err := s.run(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(struct {
					backtest.Result
					Status backtest.Status `json:"status"`
				}{res, s.engine.Status()}); err != nil {
					return err
				}
			} else {
				printResult(out, res, s.engine.Status())
			}

			if orgPath != "" {
				if err := writeOrgFile(orgPath, journal.Report{
					Run:     journal.RunFromResult(res, a.cfg.Run.Instrument, filepath.Base(a.cfg.Data.Path)),
					Trades:  res.Trades,
					Firings: s.breaker.Status().Audit,
				}); err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s\n", orgPath)
			}

			if hold && metrics != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "serving metrics on %s; interrupt to exit\n", a.cfg.Telemetry.Listen)
				<-ctx.Done()
			}
			return nil
		},
	}

	fs := cmd.Flags()
	addRunFlags(fs)
	a.bindRunFlags(fs)
	fs.StringVar(&name, "name", "", "run name (defaults to run.name)")
	fs.BoolVar(&closeEnd, "close-end", true, "close an open position at the last bar")
	fs.IntVar(&maxBadBars, "max-bad-bars", 0, "abort after this many invalid bars (0 = no limit)")
	fs.BoolVar(&asJSON, "json", false, "print the result as JSON")
	fs.StringVar(&orgPath, "org", "", "write an org-mode report to this file")
	fs.BoolVar(&hold, "hold", false, "keep serving metrics after the run")
	return cmd
}

func writeOrgFile(path string, rep journal.Report) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := journal.WriteOrg(f, rep); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func printResult(w io.Writer, res backtest.Result, st backtest.Status) {
	r := res.Report
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "run\t%s\n", res.RunID)
	fmt.Fprintf(tw, "name\t%s\n", res.Name)
	fmt.Fprintf(tw, "strategy\t%s\n", res.Strategy)
	fmt.Fprintf(tw, "bars\t%d (skipped %d)\n", res.Bars, res.Skipped)
	if !res.Start.IsZero() {
		fmt.Fprintf(tw, "period\t%s .. %s\n", res.Start.Format(time.DateOnly), res.End.Format(time.DateOnly))
	}
	fmt.Fprintf(tw, "capital\t%.2f -> %.2f\n", r.StartCapital, r.EndCapital)
	fmt.Fprintf(tw, "net pnl\t%.2f (%.2f%%)\n", r.NetPnL, r.ReturnPct)
	fmt.Fprintf(tw, "trades\t%d (won %d, lost %d, win rate %.1f%%)\n", r.Trades, r.Wins, r.Losses, r.WinRate*100)
	fmt.Fprintf(tw, "profit factor\t%s\n", ratio(r.ProfitFactor))
	fmt.Fprintf(tw, "max drawdown\t%.2f%%\n", r.MaxDrawdownPct)
	fmt.Fprintf(tw, "sharpe\t%.2f\n", r.Sharpe)
	fmt.Fprintf(tw, "calmar\t%.2f\n", r.Calmar)
	if st.Breaker != nil {
		fired := 0
		for _, f := range st.Breaker.Audit {
			if !f.Suppressed {
				fired++
			}
		}
		fmt.Fprintf(tw, "breaker firings\t%d\n", fired)
	}
	if st.Paused {
		fmt.Fprintf(tw, "paused\t%s\n", st.PauseReason)
	}
	if res.Halted {
		fmt.Fprintf(tw, "halted\tyes\n")
	}
	_ = tw.Flush()
}
