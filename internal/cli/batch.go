package cli

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/tradeguard/backtest"
	"github.com/rustyeddy/tradeguard/config"
)

func newBatchCmd(a *app) *cobra.Command {
	var (
		datasets   []string
		strats     []string
		workers    int
		closeEnd   bool
		maxBadBars int
	)

	cmd := &cobra.Command{
		Use:   "batch [config...]",
		Short: "Run several configs, datasets or strategies in parallel",
		Long: `Batch runs every combination of config file, dataset and strategy on a
worker pool and prints one comparison row per run. Without config
arguments the --config file (or the defaults) is used. A failing run is
reported in its row and does not stop the others.

Example:
  tradeguard batch base.yaml tight-stops.yaml --data eurusd.csv --data gbpusd.csv --workers 4`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.load(); err != nil {
				return err
			}
			defer a.close()

			variants, err := a.batchVariants(args, datasets, strats)
			if err != nil {
				return err
			}

			svc, err := openServices(a.cfg, a.log, nil)
			if err != nil {
				return err
			}
			defer svc.Close()

			opts := sessionOptions{CloseEnd: closeEnd, MaxBadBars: maxBadBars}
			jobs := make([]backtest.Job, len(variants))
			for i, v := range variants {
				jobs[i] = batchJob(v, svc, opts)
			}

			results := backtest.RunBatch(cmd.Context(), jobs, workers)
			printBatch(cmd.OutOrStdout(), results)

			failed := 0
			for _, r := range results {
				if r.Err != nil {
					failed++
				}
			}
			if failed == len(results) {
				return fmt.Errorf("all %d runs failed", failed)
			}
			return nil
		},
	}

	fs := cmd.Flags()
	fs.StringArrayVar(&datasets, "data", nil, "bar CSV to run every config against (repeatable)")
	fs.StringSliceVar(&strats, "strategy", nil, "strategies to run every config with (comma separated)")
	fs.IntVar(&workers, "workers", 0, "parallel runs (0 = one per run)")
	fs.BoolVar(&closeEnd, "close-end", true, "close an open position at the last bar")
	fs.IntVar(&maxBadBars, "max-bad-bars", 0, "abort a run after this many invalid bars")
	return cmd
}

type variant struct {
	label string
	cfg   config.Config
}

// batchVariants expands configs x datasets x strategies. Each variant owns
// its copy of the configuration.
func (a *app) batchVariants(paths, datasets, strats []string) ([]variant, error) {
	var bases []variant
	if len(paths) == 0 {
		bases = append(bases, variant{label: a.cfg.Run.Name, cfg: *a.cfg})
	}
	for _, p := range paths {
		cfg, err := a.loadConfig(p)
		if err != nil {
			return nil, err
		}
		bases = append(bases, variant{label: strings.TrimSuffix(filepath.Base(p), filepath.Ext(p)), cfg: *cfg})
	}

	multi := len(datasets) > 1 || len(strats) > 1
	var out []variant
	for _, base := range bases {
		dataList := datasets
		if len(dataList) == 0 {
			dataList = []string{base.cfg.Data.Path}
		}
		stratList := strats
		if len(stratList) == 0 {
			stratList = []string{base.cfg.Strategy.Name}
		}
		for _, data := range dataList {
			for _, strat := range stratList {
				v := variant{label: base.label, cfg: base.cfg}
				v.cfg.Data.Path = data
				v.cfg.Strategy.Name = strat
				if strat == "feed" {
					v.cfg.Strategy.Name = ""
				}
				if multi {
					v.label = fmt.Sprintf("%s/%s/%s", base.label, strings.TrimSuffix(filepath.Base(data), filepath.Ext(data)), strat)
				}
				if err := v.cfg.Validate(); err != nil {
					return nil, fmt.Errorf("%s: %w", v.label, err)
				}
				out = append(out, v)
			}
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("nothing to run")
	}
	return out, nil
}

func batchJob(v variant, svc *services, opts sessionOptions) backtest.Job {
	var s *session
	opts.Name = v.label
	return backtest.Job{
		Name: v.label,
		Build: func(ctx context.Context) (*backtest.Runner, error) {
			var err error
			s, err = newSession(&v.cfg, svc, opts)
			if err != nil {
				return nil, err
			}
			return s.runner, nil
		},
		Done: func(res backtest.Result) error {
			return s.finish(res)
		},
	}
}

func printBatch(w io.Writer, results []backtest.BatchResult) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tSTRATEGY\tBARS\tTRADES\tNET PNL\tRETURN %\tMAX DD %\tWIN %\tPF\tSHARPE\tHALTED\tERROR")
	for _, br := range results {
		if br.Err != nil {
			fmt.Fprintf(tw, "%s\t-\t-\t-\t-\t-\t-\t-\t-\t-\t-\t%v\n", br.Name, br.Err)
			continue
		}
		res, r := br.Result, br.Result.Report
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%.2f\t%.2f\t%.2f\t%.1f\t%s\t%.2f\t%t\t\n",
			br.Name, res.Strategy, res.Bars, r.Trades, r.NetPnL, r.ReturnPct,
			r.MaxDrawdownPct, r.WinRate*100, ratio(r.ProfitFactor), r.Sharpe, res.Halted)
	}
	_ = tw.Flush()
}
