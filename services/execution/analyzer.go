package execution

import (
	"go.uber.org/zap"

	"btlab/services/broker"
	"btlab/services/fees"
)

// ClosedTrade is one completed round trip: entry at the volume-weighted
// effective entry price, exit at the effective exit price, with both fee
// legs. NetPnl = GrossPnl - FeeIn - FeeOut, exactly.
type ClosedTrade struct {
	Symbol     string  `json:"symbol"`
	EntryTs    int64   `json:"entry_ts"`
	EntryPrice float64 `json:"entry_price_eff"`
	Quantity   float64 `json:"qty"`
	FeeIn      float64 `json:"fee_in"`
	ExitTs     int64   `json:"exit_ts"`
	ExitPrice  float64 `json:"exit_price_eff"`
	FeeOut     float64 `json:"fee_out"`
	GrossPnl   float64 `json:"gross_pnl"`
	NetPnl     float64 `json:"net_pnl"`
}

// openPosition accumulates buy fills for one symbol until the position goes
// flat. Created on the first buy fill, deleted when the broker-reported
// residual reaches zero.
type openPosition struct {
	entryNotional float64
	feeIn         float64
	qty           float64
	vwap          float64
	entryTs       int64
}

// NetPnLAnalyzer observes order fills and emits one ClosedTrade per full flat
// crossing, using effective (slippage-adjusted) prices throughout. It owns
// the only mutable cross-call state in the core: the per-symbol accumulator
// table. Single-threaded by contract, driven by the fill callback.
type NetPnLAnalyzer struct {
	fees   fees.Config
	open   map[string]*openPosition
	trades []ClosedTrade

	totalFeeIn  float64
	totalFeeOut float64

	logger *zap.Logger
}

func NewNetPnLAnalyzer(cfg fees.Config, logger *zap.Logger) *NetPnLAnalyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NetPnLAnalyzer{
		fees:   cfg,
		open:   make(map[string]*openPosition),
		logger: logger,
	}
}

// OnFill folds a completed fill into the per-symbol accumulator state.
func (a *NetPnLAnalyzer) OnFill(f broker.Fill) {
	if f.Size <= 0 {
		return
	}
	switch f.Side {
	case broker.SideBuy:
		a.onBuy(f)
	case broker.SideSell:
		a.onSell(f)
	}
}

func (a *NetPnLAnalyzer) onBuy(f broker.Fill) {
	b, ok := a.open[f.Symbol]
	if !ok {
		b = &openPosition{entryTs: f.Ts}
		a.open[f.Symbol] = b
	}
	b.entryNotional += f.Price * f.Size
	b.feeIn += f.Fee
	b.qty += f.Size
	if b.qty > 0 {
		b.vwap = b.entryNotional / b.qty
	}
	a.totalFeeIn += f.Fee
}

func (a *NetPnLAnalyzer) onSell(f broker.Fill) {
	notional := f.Price * f.Size
	feeOut := fees.Amount(notional, fees.TierTaker, a.fees)
	a.totalFeeOut += feeOut

	b, ok := a.open[f.Symbol]
	if !ok {
		return
	}

	if f.Residual != 0 {
		// partial exit: shrink the accumulator proportionally, keep the vwap;
		// entry fees stay accumulated and are charged on the final close
		b.qty -= f.Size
		if b.qty < 0 {
			b.qty = 0
		}
		b.entryNotional = b.vwap * b.qty
		return
	}

	delete(a.open, f.Symbol)

	gross := (f.Price - b.vwap) * b.qty
	net := gross - b.feeIn - feeOut
	trade := ClosedTrade{
		Symbol:     f.Symbol,
		EntryTs:    b.entryTs,
		EntryPrice: b.vwap,
		Quantity:   b.qty,
		FeeIn:      b.feeIn,
		ExitTs:     f.Ts,
		ExitPrice:  f.Price,
		FeeOut:     feeOut,
		GrossPnl:   gross,
		NetPnl:     net,
	}
	a.trades = append(a.trades, trade)

	a.logger.Info("trade closed",
		zap.String("symbol", trade.Symbol),
		zap.Float64("qty", trade.Quantity),
		zap.Float64("entry_vwap", trade.EntryPrice),
		zap.Float64("exit_price", trade.ExitPrice),
		zap.Float64("gross_pnl", trade.GrossPnl),
		zap.Float64("net_pnl", trade.NetPnl),
	)
}

// Trades returns the closed-trade ledger in emission order.
func (a *NetPnLAnalyzer) Trades() []ClosedTrade { return a.trades }

// TotalFeeIn reports the accumulated entry fees across all fills.
func (a *NetPnLAnalyzer) TotalFeeIn() float64 { return a.totalFeeIn }

// TotalFeeOut reports the accumulated exit fees across all fills.
func (a *NetPnLAnalyzer) TotalFeeOut() float64 { return a.totalFeeOut }
