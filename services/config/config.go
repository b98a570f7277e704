// Package config defines the run configuration for the backtest runners and
// live bots. Values come from defaults, then an optional TOML file, then
// BTLAB_* environment variable overrides.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/kelseyhightower/envconfig"

	"btlab/services/fees"
	"btlab/services/slippage"
)

// DefaultPath is consulted when no explicit config file is given.
const DefaultPath = "config/btlab.toml"

// Onramp caps the risk of a strategy's first trades: the first MaxTrades use
// min(riskPct, RiskCap).
type Onramp struct {
	MaxTrades int     `toml:"max_trades"`
	RiskCap   float64 `toml:"risk_cap"`
}

// Config is the root run configuration.
type Config struct {
	Capital        float64 `toml:"capital"`
	Commission     float64 `toml:"commission"`
	DataDir        string  `toml:"data_dir"`
	ResultsDir     string  `toml:"results_dir"`
	CachePath      string  `toml:"cache_path"`
	MaxAllocPct    float64 `toml:"max_alloc_pct"`
	CashPolicy     string  `toml:"cash_policy"` // reject | scale_down
	MonthlyDeposit float64 `toml:"monthly_deposit"`

	Fees     fees.Config      `toml:"fees"`
	Slippage slippage.Config  `toml:"slippage"`
	Latency  slippage.Latency `toml:"latency"`
	Onramp   Onramp           `toml:"onramp"`

	// Live bot settings
	SignalWebhook string `toml:"signal_webhook"`
	AlertWebhook  string `toml:"alert_webhook"`
	HeartbeatPath string `toml:"heartbeat_path"`
}

// Default returns the baseline configuration.
func Default() Config {
	return Config{
		Capital:     10000,
		Commission:  0,
		DataDir:     "data",
		ResultsDir:  "results",
		CachePath:   "config/exchange_info.json",
		MaxAllocPct: 0.85,
		CashPolicy:  "reject",
		Fees:        fees.DefaultConfig(),
		Slippage:    slippage.DefaultConfig(),
		Latency:     slippage.DefaultLatency(),
		Onramp:      Onramp{MaxTrades: 5, RiskCap: 0.0075},
	}
}

// Load builds the configuration: defaults, overlaid with the TOML file at
// path (or DefaultPath when it exists), then BTLAB_* env overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		if _, err := os.Stat(DefaultPath); err == nil {
			path = DefaultPath
		}
	}
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	if err := envconfig.Process("BTLAB", &cfg); err != nil {
		return nil, fmt.Errorf("config: env overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.Capital < 0 {
		return fmt.Errorf("config: capital must be >= 0")
	}
	if c.MaxAllocPct <= 0 || c.MaxAllocPct > 1 {
		return fmt.Errorf("config: max_alloc_pct must be in (0,1], got %v", c.MaxAllocPct)
	}
	switch c.CashPolicy {
	case "reject", "scale_down":
	default:
		return fmt.Errorf("config: cash_policy must be reject or scale_down, got %q", c.CashPolicy)
	}
	if c.Slippage.MinBps < 0 || c.Slippage.MaxBps < c.Slippage.MinBps {
		return fmt.Errorf("config: slippage bounds invalid: min=%v max=%v", c.Slippage.MinBps, c.Slippage.MaxBps)
	}
	for _, rate := range []float64{c.Fees.Maker, c.Fees.Taker, c.Fees.BuyholdIn, c.Fees.BuyholdOut} {
		if rate < 0 {
			return fmt.Errorf("config: fee rates must be non-negative")
		}
	}
	return nil
}

// CommissionOverride applies a CLI commission rate on top of the loaded
// config, rebuilding the fee rates from it.
func (c *Config) CommissionOverride(commission float64) {
	if commission > 0 {
		c.Commission = commission
		c.Fees = fees.ConfigWithCommission(commission)
	}
}
