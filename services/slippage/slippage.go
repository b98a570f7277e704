// Package slippage implements the deterministic execution-cost model: a
// basis-point estimate combining spread, volatility, relative order size and
// a static latency cost, always applied against the trader.
package slippage

import (
	"math"

	"btlab/services/engine"
	"btlab/services/exchange"
)

// Config weights the slippage components and bounds the final estimate.
type Config struct {
	VolWeight     float64 `toml:"k_vol"`
	SizeWeight    float64 `toml:"k_size"`
	LatencyWeight float64 `toml:"k_lat"`
	MinBps        float64 `toml:"min_bps"`
	MaxBps        float64 `toml:"max_bps"`
}

// DefaultConfig returns the tuned weights for 4h crypto majors.
func DefaultConfig() Config {
	return Config{
		VolWeight:     0.35,
		SizeWeight:    0.50,
		LatencyWeight: 0.10,
		MinBps:        1.0,
		MaxBps:        80.0,
	}
}

// Latency is the deterministic order-path latency in milliseconds. It scales
// the volatility term of the slippage estimate; it is a static cost model,
// not a simulated time delay.
type Latency struct {
	SubmitMs int `toml:"submit_ms"`
	AckMs    int `toml:"ack_ms"`
	FillMs   int `toml:"fill_ms"`
}

// DefaultLatency returns baseline submit/ack/fill latencies.
func DefaultLatency() Latency {
	return Latency{SubmitMs: 120, AckMs: 80, FillMs: 200}
}

// TotalMs sums the latency legs, treating negatives as zero.
func (l Latency) TotalMs() int {
	total := 0
	for _, v := range []int{l.SubmitMs, l.AckMs, l.FillMs} {
		if v > 0 {
			total += v
		}
	}
	return total
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}

// spreadBps estimates the spread from the latest bar's high-low range
// relative to its midpoint. Crypto majors sit around 2-20 bps in calm
// conditions, so the scaled proxy is clamped to [2, 30].
func spreadBps(bars []engine.Bar) float64 {
	last := bars[len(bars)-1]
	mid := (last.High + last.Low) / 2.0
	if mid <= 0 {
		mid = last.Close
	}
	raw := 1e4 * (last.High - last.Low) / math.Max(mid, 1e-12)
	return clamp(raw*0.35, 2.0, 30.0)
}

// atrPct estimates ATR(14) as a fraction of the latest close, capped at 20%.
// Uses a simple mean of true ranges over the available window when the
// history is short.
func atrPct(bars []engine.Bar) float64 {
	if len(bars) < 2 {
		return 0
	}
	n := len(bars) - 1
	if n > 14 {
		n = 14
	}
	var trSum float64
	for i := len(bars) - n; i < len(bars); i++ {
		b := bars[i]
		prevClose := bars[i-1].Close
		tr := math.Max(b.High-b.Low,
			math.Max(math.Abs(b.High-prevClose), math.Abs(b.Low-prevClose)))
		trSum += tr
	}
	atr := trSum / float64(n)
	price := math.Max(bars[len(bars)-1].Close, 1e-12)
	return clamp(atr/price, 0.0, 0.20)
}

// sizeRel is the order notional relative to the latest bar's traded value,
// capped at 100% of the bar's volume.
func sizeRel(notional float64, bars []engine.Bar) float64 {
	last := bars[len(bars)-1]
	denom := math.Max(last.Close*last.Volume, 1e-9)
	return clamp(notional/denom, 0.0, 1.0)
}

// Bps computes the total slippage estimate in basis points for a market
// order. The result is always within [cfg.MinBps, cfg.MaxBps].
func Bps(side exchange.Side, price, qty float64, bars []engine.Bar, lat Latency, cfg Config) float64 {
	if len(bars) == 0 {
		return cfg.MinBps
	}
	spread := spreadBps(bars)
	vol := atrPct(bars)
	rel := sizeRel(price*qty, bars)
	latMs := lat.TotalMs()

	bps := 0.5 * spread
	bps += cfg.VolWeight * (vol * 1e4)
	bps += cfg.SizeWeight * (rel * 1e4)
	bps += cfg.LatencyWeight * (float64(latMs) / 1000.0) * (vol * 1e4)

	return clamp(bps, cfg.MinBps, cfg.MaxBps)
}

// Apply returns the effective execution price with slippage applied. Buys
// execute above the reference price, sells below it: slippage always costs
// the trader.
func Apply(side exchange.Side, refPrice, qty float64, bars []engine.Bar, lat Latency, cfg Config) float64 {
	bps := Bps(side, refPrice, qty, bars, lat, cfg)
	if side == exchange.SideBuy {
		return refPrice * (1.0 + bps/1e4)
	}
	return refPrice * (1.0 - bps/1e4)
}
