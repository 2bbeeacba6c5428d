// Package config is the typed run configuration: defaults, YAML load and
// save, validation, and conversion into the engine, sizer and breaker
// configurations.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rustyeddy/tradeguard/strategies"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfiguration wraps every validation failure. It is fatal at load
// time; no bar is processed with a configuration that fails it.
var ErrInvalidConfiguration = errors.New("invalid configuration")

// Config represents one complete run. Engine, sizing and breaker keys sit at
// the top level.
type Config struct {
	Run RunConfig `json:"run" yaml:"run"`

	LookbackWindow        int      `json:"lookback_window" yaml:"lookback_window" validate:"gte=1"`
	StopATRMultiple       float64  `json:"stop_atr_multiple" yaml:"stop_atr_multiple" validate:"gt=0"`
	TakeProfitATRMultiple float64  `json:"take_profit_atr_multiple" yaml:"take_profit_atr_multiple" validate:"gte=0"`
	TrailingStopDistance  *float64 `json:"trailing_stop_distance,omitempty" yaml:"trailing_stop_distance,omitempty" validate:"omitnil,gt=0"`
	Fill                  string   `json:"fill" yaml:"fill" validate:"omitempty,oneof=close next_open"`
	MarkToMarket          bool     `json:"mark_to_market" yaml:"mark_to_market"`

	SizingMode          string  `json:"sizing_mode" yaml:"sizing_mode" validate:"oneof=volatility kelly"`
	RiskFraction        float64 `json:"risk_fraction" yaml:"risk_fraction" validate:"gt=0,lte=1"`
	KellyFraction       float64 `json:"kelly_fraction" yaml:"kelly_fraction" validate:"gt=0,lte=1"`
	MaxPositionFraction float64 `json:"max_position_fraction" yaml:"max_position_fraction" validate:"gt=0,lte=1"`
	KellyLookbackTrades int     `json:"kelly_lookback_trades" yaml:"kelly_lookback_trades" validate:"gte=1"`

	CircuitBreakerThresholds []ThresholdConfig `json:"circuit_breaker_thresholds" yaml:"circuit_breaker_thresholds" validate:"dive"`
	CircuitBreakerEnabled    bool              `json:"circuit_breaker_enabled" yaml:"circuit_breaker_enabled"`
	OnlyFireOnRealMoney      bool              `json:"only_fire_on_real_money" yaml:"only_fire_on_real_money"`
	EquityCurveCap           int               `json:"equity_curve_cap" yaml:"equity_curve_cap" validate:"gte=0"`
	Rearm                    string            `json:"rearm" yaml:"rearm" validate:"omitempty,oneof=peak recovery"`
	HysteresisPct            float64           `json:"hysteresis_pct" yaml:"hysteresis_pct" validate:"gte=0"`
	ActionTimeout            time.Duration     `json:"action_timeout" yaml:"action_timeout" validate:"gte=0"`

	Strategy  StrategyConfig  `json:"strategy" yaml:"strategy"`
	Data      DataConfig      `json:"data" yaml:"data"`
	Journal   JournalConfig   `json:"journal" yaml:"journal"`
	Logging   LoggingConfig   `json:"logging" yaml:"logging"`
	Notify    NotifyConfig    `json:"notify" yaml:"notify"`
	Telemetry TelemetryConfig `json:"telemetry" yaml:"telemetry"`
}

// RunConfig identifies the run and its account.
type RunConfig struct {
	Name           string  `json:"name" yaml:"name"`
	Instrument     string  `json:"instrument" yaml:"instrument" validate:"required"`
	InitialCapital float64 `json:"initial_capital" yaml:"initial_capital" validate:"gt=0"`
	RealMoney      bool    `json:"real_money" yaml:"real_money"`
	PeriodsPerYear float64 `json:"periods_per_year" yaml:"periods_per_year" validate:"gte=0"`
}

// ThresholdConfig is one circuit breaker level.
type ThresholdConfig struct {
	Level       float64        `json:"level" yaml:"level" validate:"gt=0,lt=100"`
	Description string         `json:"description" yaml:"description"`
	Actions     []ActionConfig `json:"actions" yaml:"actions" validate:"dive"`
}

// ActionConfig is the YAML form of a circuit.Action. Type selects the
// variant; the other fields apply to the variants that use them.
type ActionConfig struct {
	Type     string `json:"type" yaml:"type" validate:"required,oneof=log alert pause shutdown rebalance custom"`
	Message  string `json:"message,omitempty" yaml:"message,omitempty"`
	Severity string `json:"severity,omitempty" yaml:"severity,omitempty" validate:"omitempty,oneof=info warn error"`
	Channel  string `json:"channel,omitempty" yaml:"channel,omitempty" validate:"required_if=Type alert"`
	Name     string `json:"name,omitempty" yaml:"name,omitempty" validate:"required_if=Type custom"`
}

// StrategyConfig selects a signal producer from the strategies registry.
// An empty name uses the signal column of the data file.
type StrategyConfig struct {
	Name string `json:"name" yaml:"name"`

	strategies.Params `yaml:",inline"`
}

// DataConfig locates the bar CSV.
type DataConfig struct {
	Path string    `json:"path" yaml:"path"`
	From time.Time `json:"from,omitempty" yaml:"from,omitempty"`
	To   time.Time `json:"to,omitempty" yaml:"to,omitempty"`
}

// JournalConfig contains journaling parameters
type JournalConfig struct {
	Type   string `json:"type" yaml:"type" validate:"omitempty,oneof=none csv sqlite"`
	Dir    string `json:"dir,omitempty" yaml:"dir,omitempty" validate:"required_if=Type csv"`
	DBPath string `json:"db_path,omitempty" yaml:"db_path,omitempty" validate:"required_if=Type sqlite"`
}

// LoggingConfig feeds logging.New.
type LoggingConfig struct {
	Level      string `json:"level" yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Format     string `json:"format" yaml:"format" validate:"omitempty,oneof=json console"`
	File       string `json:"file,omitempty" yaml:"file,omitempty"`
	MaxSizeMB  int    `json:"max_size_mb,omitempty" yaml:"max_size_mb,omitempty" validate:"gte=0"`
	MaxBackups int    `json:"max_backups,omitempty" yaml:"max_backups,omitempty" validate:"gte=0"`
	MaxAgeDays int    `json:"max_age_days,omitempty" yaml:"max_age_days,omitempty" validate:"gte=0"`
}

// NotifyConfig configures Alert delivery. Without a webhook alerts are logged.
type NotifyConfig struct {
	WebhookURL string        `json:"webhook_url,omitempty" yaml:"webhook_url,omitempty" validate:"omitempty,url"`
	Timeout    time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty" validate:"gte=0"`
}

// TelemetryConfig enables the prometheus endpoint.
type TelemetryConfig struct {
	Listen string `json:"listen,omitempty" yaml:"listen,omitempty" validate:"omitempty,hostname_port"`
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		Run: RunConfig{
			Name:           "default",
			Instrument:     "EUR_USD",
			InitialCapital: 10_000,
			PeriodsPerYear: 252,
		},
		LookbackWindow:        20,
		StopATRMultiple:       2,
		TakeProfitATRMultiple: 3,
		Fill:                  "close",

		SizingMode:          "volatility",
		RiskFraction:        0.01,
		KellyFraction:       0.5,
		MaxPositionFraction: 0.25,
		KellyLookbackTrades: 20,

		CircuitBreakerEnabled: true,
		EquityCurveCap:        10_000,
		Rearm:                 "peak",
		ActionTimeout:         2 * time.Second,
		CircuitBreakerThresholds: []ThresholdConfig{
			{Level: 10, Description: "drawdown warning", Actions: []ActionConfig{
				{Type: "log", Severity: "warn"},
			}},
			{Level: 20, Description: "pause new entries", Actions: []ActionConfig{
				{Type: "log", Severity: "error"},
				{Type: "alert", Channel: "ops"},
				{Type: "pause"},
			}},
			{Level: 30, Description: "stop trading", Actions: []ActionConfig{
				{Type: "alert", Channel: "ops"},
				{Type: "shutdown"},
			}},
		},

		Strategy: StrategyConfig{Name: "ema-cross", Params: strategies.Params{Fast: 10, Slow: 30}},
		Journal:  JournalConfig{Type: "none"},
		Logging:  LoggingConfig{Level: "info", Format: "console"},
		Notify:   NotifyConfig{Timeout: 5 * time.Second},
	}
}

// LoadFromFile loads configuration from a file (YAML, with a JSON fallback),
// applies defaults for unset keys and validates it.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes data on top of Default.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	// thresholds in the file replace the defaults rather than merging into them
	cfg.CircuitBreakerThresholds = nil

	if err := yaml.Unmarshal(data, cfg); err != nil {
		cfg = Default()
		cfg.CircuitBreakerThresholds = nil
		if jerr := json.Unmarshal(data, cfg); jerr != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveToFile writes YAML for .yaml/.yml paths and indented JSON otherwise.
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}
