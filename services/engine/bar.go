package engine

import "time"

// Bar represents a single OHLCV bar. Timestamp is the bar open time in
// milliseconds since epoch.
type Bar struct {
	Timestamp int64
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// Time returns the bar open time as UTC.
func (b Bar) Time() time.Time { return time.UnixMilli(b.Timestamp).UTC() }

// DetectCadenceMs returns the most common delta between consecutive bars,
// sampling at most the first 2000 bars. Deltas of a week or more are treated
// as data holes and excluded from the vote. Returns fallback when
// undecidable.
func DetectCadenceMs(bars []Bar, fallback int64) int64 {
	if len(bars) < 2 {
		return fallback
	}
	deltaCount := make(map[int64]int)
	limit := len(bars)
	if limit > 2000 {
		limit = 2000
	}
	for i := 1; i < limit; i++ {
		d := bars[i].Timestamp - bars[i-1].Timestamp
		if d > 0 && d < int64(7*24*60*60*1000) {
			deltaCount[d]++
		}
	}
	best := fallback
	bestCount := -1
	for d, c := range deltaCount {
		if c > bestCount {
			bestCount = c
			best = d
		}
	}
	if bestCount <= 0 {
		return fallback
	}
	return best
}

// DetectGaps checks for missing intervals in sorted bar timestamps (ms) and
// returns the timestamp preceding each gap.
func DetectGaps(bars []Bar, expectedStepMs int64) (gaps []int64) {
	for i := 1; i < len(bars); i++ {
		if bars[i].Timestamp-bars[i-1].Timestamp > expectedStepMs {
			gaps = append(gaps, bars[i-1].Timestamp)
		}
	}
	return gaps
}
