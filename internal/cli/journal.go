package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/tradeguard/journal"
	"github.com/rustyeddy/tradeguard/trade"
)

func newJournalCmd(a *app) *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Query the SQLite trade journal",
		Long: `Query runs, trades and breaker events recorded by backtest and batch.

Subcommands:
  runs                    - List recorded runs, newest first
  trades <run-id>         - List the trades of a run
  trade <run-id> <id>     - Show one trade as an org entry
  day <YYYY-MM-DD>        - List trades of every run closed on a day
  report <run-id>         - Render a run as an org-mode report

Examples:
  tradeguard journal --db trades.sqlite runs
  tradeguard journal --db trades.sqlite report 01J2Z... -o run.org`,
	}

	open := func() (*journal.SQLite, error) {
		path := dbPath
		if path == "" {
			path = a.v.GetString("db")
		}
		if path == "" {
			cfg, err := a.loadConfig(a.v.GetString("config"))
			if err != nil {
				return nil, err
			}
			path = cfg.Journal.DBPath
		}
		if path == "" {
			return nil, fmt.Errorf("no journal database: use --db or journal.db_path")
		}
		j, err := journal.NewSQLite(path)
		if err != nil {
			return nil, fmt.Errorf("open db: %w", err)
		}
		return j, nil
	}

	runs := &cobra.Command{
		Use:   "runs",
		Short: "List recorded runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := open()
			if err != nil {
				return err
			}
			defer j.Close()

			list, err := j.ListRuns()
			if err != nil {
				return err
			}
			printRuns(cmd.OutOrStdout(), list)
			return nil
		},
	}

	trades := &cobra.Command{
		Use:   "trades <run-id>",
		Short: "List the trades of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := open()
			if err != nil {
				return err
			}
			defer j.Close()

			list, err := j.ListTradesByRun(args[0])
			if err != nil {
				return err
			}
			printTrades(cmd.OutOrStdout(), list)
			return nil
		},
	}

	one := &cobra.Command{
		Use:   "trade <run-id> <trade-id>",
		Short: "Show one trade",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := open()
			if err != nil {
				return err
			}
			defer j.Close()

			t, err := j.GetTrade(args[0], args[1])
			if err != nil {
				return fmt.Errorf("get trade: %w", err)
			}
			fmt.Fprint(cmd.OutOrStdout(), journal.FormatTradeOrg(t))
			return nil
		},
	}

	day := &cobra.Command{
		Use:   "day <YYYY-MM-DD>",
		Short: "List trades closed on a day (UTC)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			start, err := time.Parse(time.DateOnly, args[0])
			if err != nil {
				return fmt.Errorf("bad day %q: %w", args[0], err)
			}
			j, err := open()
			if err != nil {
				return err
			}
			defer j.Close()

			list, err := j.ListTradesClosedBetween(start, start.AddDate(0, 0, 1))
			if err != nil {
				return err
			}
			printTrades(cmd.OutOrStdout(), list)
			return nil
		},
	}

	var output string
	report := &cobra.Command{
		Use:   "report <run-id>",
		Short: "Render a run as an org-mode report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := open()
			if err != nil {
				return err
			}
			defer j.Close()

			if output == "" {
				return j.ExportOrg(cmd.OutOrStdout(), args[0])
			}
			run, err := j.GetRun(args[0])
			if err != nil {
				return err
			}
			tr, err := j.ListTradesByRun(args[0])
			if err != nil {
				return err
			}
			firings, err := j.ListFiringsByRun(args[0])
			if err != nil {
				return err
			}
			return writeOrgFile(output, journal.Report{Run: run, Trades: tr, Firings: firings})
		},
	}
	report.Flags().StringVarP(&output, "output", "o", "", "write to this file instead of stdout")

	cmd.PersistentFlags().StringVar(&dbPath, "journal-db", "", "journal database (defaults to --db, then journal.db_path)")
	cmd.AddCommand(runs, trades, one, day, report)
	return cmd
}

func printRuns(w io.Writer, runs []journal.Run) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tCREATED\tNAME\tSTRATEGY\tINSTRUMENT\tBARS\tTRADES\tNET PNL\tMAX DD %\tHALTED")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%d\t%.2f\t%.2f\t%t\n",
			r.RunID, r.Created.Format("2006-01-02 15:04"), r.Name, r.Strategy, r.Instrument,
			r.Bars, r.Report.Trades, r.Report.NetPnL, r.Report.MaxDrawdownPct, r.Halted)
	}
	_ = tw.Flush()
}

func printTrades(w io.Writer, trades []trade.ClosedTrade) {
	if len(trades) == 0 {
		fmt.Fprintln(w, "no trades")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TRADE\tSIDE\tOPENED\tCLOSED\tENTRY\tEXIT\tSIZE\tPNL\tREASON")
	var total float64
	for _, t := range trades {
		total += t.PnL
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.5f\t%.5f\t%.2f\t%.2f\t%s\n",
			t.ID, t.Direction, t.OpenedAt.Format(time.DateOnly), t.ClosedAt.Format(time.DateOnly),
			t.EntryPrice, t.ExitPrice, t.Size, t.PnL, t.ExitReason)
	}
	fmt.Fprintf(tw, "\t\t\t\t\t\t\t%.2f\t(%d trades)\n", total, len(trades))
	_ = tw.Flush()
}
