package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err == nil {
		t.Fatal("explicit missing file must error")
	}

	cfg, err = Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Capital != 10000 || cfg.MaxAllocPct != 0.85 || cfg.CashPolicy != "reject" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.Fees.Taker != 0.0004 {
		t.Fatalf("taker default = %v, want 0.0004", cfg.Fees.Taker)
	}
	if cfg.Onramp.MaxTrades != 5 || cfg.Onramp.RiskCap != 0.0075 {
		t.Fatalf("onramp defaults = %+v", cfg.Onramp)
	}
}

func TestLoadTOMLOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "btlab.toml")
	content := `
capital = 5000
cash_policy = "scale_down"
monthly_deposit = 250

[fees]
taker = 0.001

[slippage]
max_bps = 60
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Capital != 5000 || cfg.CashPolicy != "scale_down" || cfg.MonthlyDeposit != 250 {
		t.Fatalf("toml overrides not applied: %+v", cfg)
	}
	if cfg.Fees.Taker != 0.001 {
		t.Fatalf("fees.taker = %v, want 0.001", cfg.Fees.Taker)
	}
	if cfg.Slippage.MaxBps != 60 {
		t.Fatalf("slippage.max_bps = %v, want 60", cfg.Slippage.MaxBps)
	}
	// untouched sections keep their defaults
	if cfg.Slippage.VolWeight != 0.35 {
		t.Fatalf("slippage.k_vol = %v, want default 0.35", cfg.Slippage.VolWeight)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := Default()
	cfg.CashPolicy = "maybe"
	if err := cfg.Validate(); err == nil {
		t.Fatal("bad cash policy must fail validation")
	}

	cfg = Default()
	cfg.MaxAllocPct = 1.5
	if err := cfg.Validate(); err == nil {
		t.Fatal("alloc pct above 1 must fail validation")
	}

	cfg = Default()
	cfg.Slippage.MinBps = 10
	cfg.Slippage.MaxBps = 5
	if err := cfg.Validate(); err == nil {
		t.Fatal("inverted slippage bounds must fail validation")
	}
}

func TestCommissionOverride(t *testing.T) {
	cfg := Default()
	cfg.CommissionOverride(0.001)
	if cfg.Fees.Taker != 0.001 || cfg.Fees.Maker != 0.0005 {
		t.Fatalf("commission override not applied: %+v", cfg.Fees)
	}
	// zero leaves the loaded rates alone
	cfg2 := Default()
	cfg2.CommissionOverride(0)
	if cfg2.Fees.Taker != 0.0004 {
		t.Fatalf("zero override must keep defaults, got %v", cfg2.Fees.Taker)
	}
}
