package execution

import (
	"math"
	"testing"

	"btlab/services/broker"
	"btlab/services/fees"
)

func TestAnalyzerVWAPRoundTrip(t *testing.T) {
	a := NewNetPnLAnalyzer(fees.ConfigWithCommission(0.01), nil)

	a.OnFill(broker.Fill{Symbol: "BTCUSDT", Side: broker.SideBuy, Size: 1, Price: 100, Fee: 1.0, Ts: 1000, Residual: 1})
	a.OnFill(broker.Fill{Symbol: "BTCUSDT", Side: broker.SideBuy, Size: 1, Price: 110, Fee: 1.1, Ts: 2000, Residual: 2})
	if len(a.Trades()) != 0 {
		t.Fatal("no trade should close before the position goes flat")
	}

	a.OnFill(broker.Fill{Symbol: "BTCUSDT", Side: broker.SideSell, Size: 2, Price: 120, Fee: 2.4, Ts: 3000, Residual: 0})

	trades := a.Trades()
	if len(trades) != 1 {
		t.Fatalf("trades = %d, want 1", len(trades))
	}
	tr := trades[0]
	if math.Abs(tr.EntryPrice-105) > 1e-9 {
		t.Fatalf("entry vwap = %v, want 105", tr.EntryPrice)
	}
	if math.Abs(tr.GrossPnl-30) > 1e-9 {
		t.Fatalf("gross = %v, want 30", tr.GrossPnl)
	}
	// net = 30 - (1.0 + 1.1) - 2.4
	if math.Abs(tr.NetPnl-25.5) > 1e-9 {
		t.Fatalf("net = %v, want 25.5", tr.NetPnl)
	}
	if tr.EntryTs != 1000 || tr.ExitTs != 3000 {
		t.Fatalf("timestamps %d/%d, want 1000/3000", tr.EntryTs, tr.ExitTs)
	}
	// the identity holds exactly, not approximately
	if tr.NetPnl != tr.GrossPnl-tr.FeeIn-tr.FeeOut {
		t.Fatal("net must equal gross minus both fee legs")
	}
}

func TestAnalyzerPartialExitKeepsVWAP(t *testing.T) {
	a := NewNetPnLAnalyzer(fees.ConfigWithCommission(0.01), nil)

	a.OnFill(broker.Fill{Symbol: "ETHUSDT", Side: broker.SideBuy, Size: 2, Price: 100, Fee: 2.0, Ts: 1000, Residual: 2})
	a.OnFill(broker.Fill{Symbol: "ETHUSDT", Side: broker.SideSell, Size: 1, Price: 130, Fee: 1.3, Ts: 2000, Residual: 1})
	if len(a.Trades()) != 0 {
		t.Fatal("partial exit must not emit a trade")
	}

	a.OnFill(broker.Fill{Symbol: "ETHUSDT", Side: broker.SideSell, Size: 1, Price: 140, Fee: 1.4, Ts: 3000, Residual: 0})
	trades := a.Trades()
	if len(trades) != 1 {
		t.Fatalf("trades = %d, want 1", len(trades))
	}
	tr := trades[0]
	if math.Abs(tr.EntryPrice-100) > 1e-9 {
		t.Fatalf("vwap drifted to %v after partial exit", tr.EntryPrice)
	}
	if math.Abs(tr.Quantity-1) > 1e-9 {
		t.Fatalf("closing qty = %v, want remaining 1", tr.Quantity)
	}
	// gross on the closing leg only
	if math.Abs(tr.GrossPnl-40) > 1e-9 {
		t.Fatalf("gross = %v, want 40", tr.GrossPnl)
	}
}

func TestAnalyzerSellWithoutOpenIsIgnored(t *testing.T) {
	a := NewNetPnLAnalyzer(fees.DefaultConfig(), nil)
	a.OnFill(broker.Fill{Symbol: "BTCUSDT", Side: broker.SideSell, Size: 1, Price: 100, Fee: 0.04, Ts: 1000, Residual: 0})
	if len(a.Trades()) != 0 {
		t.Fatal("sell with no accumulator must not emit a trade")
	}
}

func TestAnalyzerFeeTotals(t *testing.T) {
	cfg := fees.ConfigWithCommission(0.001)
	a := NewNetPnLAnalyzer(cfg, nil)

	a.OnFill(broker.Fill{Symbol: "BTCUSDT", Side: broker.SideBuy, Size: 1, Price: 1000, Fee: 1.0, Ts: 1, Residual: 1})
	a.OnFill(broker.Fill{Symbol: "BTCUSDT", Side: broker.SideSell, Size: 1, Price: 1000, Fee: 1.0, Ts: 2, Residual: 0})

	if math.Abs(a.TotalFeeIn()-1.0) > 1e-9 {
		t.Fatalf("feeIn total = %v, want 1.0", a.TotalFeeIn())
	}
	if math.Abs(a.TotalFeeOut()-1.0) > 1e-9 {
		t.Fatalf("feeOut total = %v, want 1.0", a.TotalFeeOut())
	}
}
