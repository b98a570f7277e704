package engine

import "math"

// Indicator helpers over bar series. All functions return slices aligned with
// the input; positions before the warmup window hold NaN.

// EMA computes an exponential moving average with span smoothing
// (alpha = 2/(period+1)), seeded with the first value.
func EMA(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 || period <= 0 {
		return out
	}
	alpha := 2.0 / (float64(period) + 1.0)
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = alpha*values[i] + (1-alpha)*out[i-1]
	}
	return out
}

// SMA computes a simple moving average; the first period-1 slots are NaN.
func SMA(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	if period <= 0 {
		return out
	}
	var sum float64
	for i, v := range values {
		sum += v
		if i >= period {
			sum -= values[i-period]
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		} else {
			out[i] = math.NaN()
		}
	}
	return out
}

// RMA computes Wilder's smoothing (alpha = 1/period), seeded with the first
// value.
func RMA(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 || period <= 0 {
		return out
	}
	alpha := 1.0 / float64(period)
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = alpha*values[i] + (1-alpha)*out[i-1]
	}
	return out
}

// TrueRange returns the per-bar true range series.
func TrueRange(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		if i == 0 {
			out[i] = b.High - b.Low
			continue
		}
		prevClose := bars[i-1].Close
		out[i] = math.Max(b.High-b.Low,
			math.Max(math.Abs(b.High-prevClose), math.Abs(b.Low-prevClose)))
	}
	return out
}

// ATR computes the average true range via Wilder's smoothing.
func ATR(bars []Bar, period int) []float64 {
	return RMA(TrueRange(bars), period)
}

// RSI computes the relative strength index over closes. Slots without enough
// history report 50 (neutral), matching the smoothing seed behavior.
func RSI(closes []float64, period int) []float64 {
	out := make([]float64, len(closes))
	if len(closes) == 0 || period <= 0 {
		return out
	}
	gains := make([]float64, len(closes))
	losses := make([]float64, len(closes))
	for i := 1; i < len(closes); i++ {
		d := closes[i] - closes[i-1]
		if d > 0 {
			gains[i] = d
		} else {
			losses[i] = -d
		}
	}
	avgGain := RMA(gains, period)
	avgLoss := RMA(losses, period)
	for i := range closes {
		if avgLoss[i] == 0 {
			out[i] = 50
			continue
		}
		rs := avgGain[i] / avgLoss[i]
		out[i] = 100 - 100/(1+rs)
	}
	return out
}

// Bollinger returns the middle band (SMA), upper and lower bands at dev
// standard deviations.
func Bollinger(closes []float64, period int, dev float64) (mid, upper, lower []float64) {
	mid = SMA(closes, period)
	upper = make([]float64, len(closes))
	lower = make([]float64, len(closes))
	for i := range closes {
		if i < period-1 {
			upper[i] = math.NaN()
			lower[i] = math.NaN()
			continue
		}
		var sumSq float64
		for j := i - period + 1; j <= i; j++ {
			d := closes[j] - mid[i]
			sumSq += d * d
		}
		sd := math.Sqrt(sumSq / float64(period))
		upper[i] = mid[i] + dev*sd
		lower[i] = mid[i] - dev*sd
	}
	return mid, upper, lower
}

// Closes extracts the close series from bars.
func Closes(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}
