// Package cli is the tradeguard command tree.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/rustyeddy/tradeguard/config"
	"github.com/rustyeddy/tradeguard/logging"
)

// EnvPrefix namespaces environment overrides, e.g. TRADEGUARD_LOG_LEVEL.
const EnvPrefix = "TRADEGUARD"

// app is the state shared by every subcommand.
type app struct {
	v      *viper.Viper
	stderr io.Writer

	cfg      *config.Config
	log      *zap.Logger
	closeLog func() error
}

func NewRootCmd() *cobra.Command {
	a := &app{v: viper.New(), stderr: os.Stderr}
	a.v.SetEnvPrefix(EnvPrefix)
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "tradeguard",
		Short:         "tradeguard - strategy execution with drawdown circuit breakers",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global / persistent flags
	pf := cmd.PersistentFlags()
	pf.String("config", "", "path to config file (YAML or JSON); defaults are used without one")
	pf.String("log-level", "", "log level: debug|info|warn|error")
	pf.String("log-format", "", "log format: console|json")
	pf.String("log-file", "", "also write JSON logs to this file, rotated")
	pf.String("db", "", "SQLite journal database; overrides the journal section")
	for _, name := range []string{"config", "log-level", "log-format", "log-file", "db"} {
		_ = a.v.BindPFlag(name, pf.Lookup(name))
	}

	cmd.AddCommand(
		newBacktestCmd(a),
		newBatchCmd(a),
		newConfigCmd(a),
		newJournalCmd(a),
		newVersionCmd(),
	)
	return cmd
}

// load reads the config file, applies flag and environment overrides,
// validates the result and builds the logger.
func (a *app) load() error {
	cfg, err := a.loadConfig(a.v.GetString("config"))
	if err != nil {
		return err
	}
	a.cfg = cfg

	log, closeLog, err := logging.New(cfg.Logging, a.stderr)
	if err != nil {
		return err
	}
	a.log, a.closeLog = log, closeLog
	return nil
}

func (a *app) loadConfig(path string) (*config.Config, error) {
	cfg := config.Default()
	if path != "" {
		var err error
		if cfg, err = config.LoadFromFile(path); err != nil {
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}
	}

	if a.v.IsSet("log-level") && a.v.GetString("log-level") != "" {
		cfg.Logging.Level = a.v.GetString("log-level")
	}
	if a.v.IsSet("log-format") && a.v.GetString("log-format") != "" {
		cfg.Logging.Format = a.v.GetString("log-format")
	}
	if f := a.v.GetString("log-file"); f != "" {
		cfg.Logging.File = f
	}
	if db := a.v.GetString("db"); db != "" {
		cfg.Journal = config.JournalConfig{Type: "sqlite", DBPath: db}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (a *app) close() error {
	if a.closeLog == nil {
		return nil
	}
	err := a.closeLog()
	a.closeLog = nil
	return err
}

// Execute runs the command tree until it finishes or the process is
// interrupted.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}
