package strategies

import (
	"math"

	"btlab/services/engine"
)

// BollBreakoutParams tune the squeeze-then-breakout entry.
type BollBreakoutParams struct {
	RiskPct          float64 // equity fraction at risk per trade
	AtrMult          float64 // stop distance in ATRs
	BBPeriod         int
	BBDev            float64
	SqueezeThreshold float64 // (upper-lower)/close ceiling before the breakout
	VolPeriod        int
	TrendFilter      bool // require ema20 > ema50
	BodyRatioMin     float64
}

func DefaultBollBreakoutParams() BollBreakoutParams {
	return BollBreakoutParams{
		RiskPct:          0.01,
		AtrMult:          2.0,
		BBPeriod:         20,
		BBDev:            2.0,
		SqueezeThreshold: 0.12,
		VolPeriod:        20,
		TrendFilter:      true,
		BodyRatioMin:     0.5,
	}
}

// BollBreakout buys a high-volume breakout candle above the upper Bollinger
// band after a volatility squeeze, sized so a stop AtrMult ATRs below the
// entry risks RiskPct of equity. Exits on the ATR stop or a close below EMA20.
type BollBreakout struct {
	Params BollBreakoutParams

	ema20  []float64
	ema50  []float64
	atr    []float64
	bbUp   []float64
	bbLow  []float64
	volMA  []float64
	symbol string

	stopPrice float64
	hasStop   bool
}

func NewBollBreakout(p BollBreakoutParams) *BollBreakout {
	return &BollBreakout{Params: p}
}

func (s *BollBreakout) Name() string { return "boll_breakout" }

// Warmup covers the longest lookback of the precomputed indicators.
func (s *BollBreakout) Warmup() int { return 50 }

func (s *BollBreakout) Init(symbol string, bars []engine.Bar) error {
	s.symbol = symbol
	closes := engine.Closes(bars)
	s.ema20 = engine.EMA(closes, 20)
	s.ema50 = engine.EMA(closes, 50)
	s.atr = engine.ATR(bars, 14)
	_, s.bbUp, s.bbLow = engine.Bollinger(closes, s.Params.BBPeriod, s.Params.BBDev)

	volumes := make([]float64, len(bars))
	for i, b := range bars {
		volumes[i] = b.Volume
	}
	s.volMA = engine.SMA(volumes, s.Params.VolPeriod)
	return nil
}

func (s *BollBreakout) isBreakoutCandle(b engine.Bar) bool {
	body := math.Abs(b.Close - b.Open)
	rng := math.Max(b.High-b.Low, 1e-8)
	return body/rng >= s.Params.BodyRatioMin && b.Close > b.Open
}

func (s *BollBreakout) Next(i int, bars []engine.Bar, exec engine.OrderExecutor) {
	bar := bars[i]
	close := bar.Close
	atr := s.atr[i]
	if atr <= 0 || math.IsNaN(atr) || math.IsNaN(s.bbUp[i]) || math.IsNaN(s.volMA[i]) {
		return
	}
	bbWidth := (s.bbUp[i] - s.bbLow[i]) / (close + 1e-8)

	if exec.Position(s.symbol) <= 0 {
		squeeze := bbWidth <= s.Params.SqueezeThreshold
		breakout := close > s.bbUp[i] && s.isBreakoutCandle(bar)
		volOK := bar.Volume > s.volMA[i]
		trendOK := !s.Params.TrendFilter || s.ema20[i] > s.ema50[i]

		if squeeze && breakout && volOK && trendOK {
			equity := exec.Value()
			riskAmount := equity * s.Params.RiskPct
			riskPerUnit := s.Params.AtrMult * atr
			size := riskAmount / riskPerUnit
			if size <= 0 {
				return
			}
			s.stopPrice = close - s.Params.AtrMult*atr
			s.hasStop = true
			exec.Buy(s.symbol, size)
		}
		return
	}

	if s.hasStop && close <= s.stopPrice {
		exec.Close(s.symbol)
		s.hasStop = false
		return
	}
	if close < s.ema20[i] {
		exec.Close(s.symbol)
		s.hasStop = false
	}
}
