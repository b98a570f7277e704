package strategies

import (
	"math"

	"btlab/services/engine"
)

// PullbackEMAParams tune the healthy-pullback entry on the 4H trend.
type PullbackEMAParams struct {
	RiskPct       float64
	SlPct         float64 // assumed stop distance used for risk sizing
	MaxAllocPct   float64
	RsiFloor      float64
	WickRatioMin  float64
	OnrampMax     int     // first N trades use the capped risk
	OnrampRiskCap float64
}

func DefaultPullbackEMAParams() PullbackEMAParams {
	return PullbackEMAParams{
		RiskPct:       0.01,
		SlPct:         0.08,
		MaxAllocPct:   0.85,
		RsiFloor:      45,
		WickRatioMin:  0.75,
		OnrampMax:     5,
		OnrampRiskCap: 0.0075,
	}
}

// PullbackEMA buys a rejection candle that tags EMA20 inside an EMA20>EMA50
// uptrend with RSI holding above the floor. The entry signal is precomputed
// over the whole series in Init. Exits when a bar closes below EMA50.
type PullbackEMA struct {
	Params PullbackEMAParams

	symbol      string
	signals     []bool
	ema50       []float64
	tradesCount int
}

func NewPullbackEMA(p PullbackEMAParams) *PullbackEMA {
	return &PullbackEMA{Params: p}
}

func (s *PullbackEMA) Name() string { return "pullback_ema20" }

func (s *PullbackEMA) Warmup() int { return 50 }

func (s *PullbackEMA) Init(symbol string, bars []engine.Bar) error {
	s.symbol = symbol
	closes := engine.Closes(bars)

	ema20 := engine.EMA(closes, 20)
	s.ema50 = engine.EMA(closes, 50)
	atr14 := engine.ATR(bars, 14)
	rsi14 := engine.RSI(closes, 14)

	s.signals = make([]bool, len(bars))
	for i, b := range bars {
		if math.IsNaN(atr14[i]) || math.IsNaN(rsi14[i]) {
			continue
		}
		trend := ema20[i] > s.ema50[i] && b.Close > s.ema50[i]
		tagsEMA := b.Low <= ema20[i]+0.1*atr14[i] && b.Close >= ema20[i]
		strength := rsi14[i] >= s.Params.RsiFloor

		lowerWick := math.Max(0, math.Min(b.Open, b.Close)-b.Low)
		body := math.Abs(b.Close - b.Open)
		rejection := body > 0 && lowerWick/body >= s.Params.WickRatioMin

		s.signals[i] = trend && tagsEMA && strength && rejection
	}
	return nil
}

func (s *PullbackEMA) Next(i int, bars []engine.Bar, exec engine.OrderExecutor) {
	close := bars[i].Close

	if exec.Position(s.symbol) <= 0 {
		if !s.signals[i] {
			return
		}
		equity := exec.Value()
		cash := exec.Cash()

		riskPct := s.Params.RiskPct
		if s.tradesCount < s.Params.OnrampMax && s.Params.OnrampRiskCap < riskPct {
			riskPct = s.Params.OnrampRiskCap
		}
		qtyByRisk := equity * riskPct / (close * s.Params.SlPct)
		qtyByAlloc := equity * s.Params.MaxAllocPct / close

		qty := math.Floor(math.Min(qtyByRisk, qtyByAlloc)*1000) / 1000
		if qty <= 0 || qty*close > cash {
			return
		}

		if exec.Buy(s.symbol, qty) {
			s.tradesCount++
		}
		return
	}

	if close < s.ema50[i] {
		exec.Close(s.symbol)
	}
}
