package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/tradeguard/config"
	"github.com/rustyeddy/tradeguard/strategies"
)

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Generate or validate configuration files",
		Long: `Manage run configuration files.

Subcommands:
  init     - Generate a default configuration file
  validate - Validate an existing configuration file

Examples:
  tradeguard config init -o run.yaml
  tradeguard config validate run.yaml`,
	}
	cmd.AddCommand(newConfigInitCmd(), newConfigValidateCmd(a))
	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Generate a default configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			if err := cfg.SaveToFile(output); err != nil {
				return fmt.Errorf("save config: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Created default configuration: %s\n", output)
			fmt.Fprintln(out, "\nSet data.path and run with:")
			fmt.Fprintf(out, "  tradeguard backtest --config %s\n", output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "tradeguard.yaml", "output config file path (.yaml or .json)")
	return cmd
}

func newConfigValidateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Validate a configuration file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig(args[0])
			if err != nil {
				return fmt.Errorf("validation failed: %w", err)
			}
			// custom action names resolve only against the built-in handlers
			if _, err := cfg.Breaker(builtinHandlers(nil, nil)); err != nil {
				return fmt.Errorf("validation failed: %w", err)
			}
			if cfg.Strategy.Name != "" {
				if _, err := strategies.ByName(cfg.Strategy.Name, cfg.Strategy.Params); err != nil {
					return fmt.Errorf("validation failed: strategy: %w", err)
				}
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Configuration valid: %s\n", args[0])
			fmt.Fprintf(out, "  Run: %s %s (capital %.2f, real money %t)\n",
				cfg.Run.Name, cfg.Run.Instrument, cfg.Run.InitialCapital, cfg.Run.RealMoney)
			strat := cfg.Strategy.Name
			if strat == "" {
				strat = "feed signals"
			}
			fmt.Fprintf(out, "  Strategy: %s\n", strat)
			fmt.Fprintf(out, "  Sizing: %s (risk %.2f%%, max position %.0f%%)\n",
				cfg.SizingMode, cfg.RiskFraction*100, cfg.MaxPositionFraction*100)
			fmt.Fprintf(out, "  Breaker: enabled=%t thresholds=%d rearm=%s\n",
				cfg.CircuitBreakerEnabled, len(cfg.CircuitBreakerThresholds), cfg.Rearm)
			fmt.Fprintf(out, "  Journal: %s\n", cfg.Journal.Type)
			return nil
		},
	}
}
