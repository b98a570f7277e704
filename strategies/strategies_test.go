package strategies

import (
	"math"
	"testing"

	"btlab/services/engine"
)

type fakeExec struct {
	cash     float64
	value    float64
	position float64

	buys   []float64
	sells  []float64
	closes int
}

func (f *fakeExec) Buy(symbol string, qty float64) bool {
	f.buys = append(f.buys, qty)
	f.position += qty
	return true
}
func (f *fakeExec) Sell(symbol string, qty float64) bool {
	f.sells = append(f.sells, qty)
	return true
}
func (f *fakeExec) Close(symbol string) bool {
	f.closes++
	f.position = 0
	return true
}
func (f *fakeExec) Position(string) float64 { return f.position }
func (f *fakeExec) Cash() float64           { return f.cash }
func (f *fakeExec) Value() float64          { return f.value }

func TestRegistry(t *testing.T) {
	for _, name := range Names() {
		s, err := New(name)
		if err != nil {
			t.Fatalf("New(%q): %v", name, err)
		}
		if s.Name() != name {
			t.Fatalf("Name() = %q, want %q", s.Name(), name)
		}
		if s.Warmup() <= 0 {
			t.Fatalf("%q warmup = %d, want > 0", name, s.Warmup())
		}
	}
	if _, err := New("nope"); err == nil {
		t.Fatal("unknown strategy must error")
	}
}

func TestSizingModes(t *testing.T) {
	if got := (Sizing{Mode: SizingAllIn}).StakeCash(1000); got != 995 {
		t.Fatalf("all_in stake = %v, want 995", got)
	}
	if got := (Sizing{Mode: SizingFixed, FixedStake: 300}).StakeCash(1000); got != 300 {
		t.Fatalf("fixed stake = %v, want 300", got)
	}
	if got := (Sizing{Mode: SizingFixed, FixedStake: 300}).StakeCash(200); got != 200 {
		t.Fatalf("fixed stake = %v, want capped at cash 200", got)
	}
	if got := (Sizing{Mode: SizingPercent, StakePct: 0.25}).StakeCash(1000); got != 250 {
		t.Fatalf("percent stake = %v, want 250", got)
	}
	if got := (Sizing{Mode: SizingPercent, StakePct: 2}).StakeCash(1000); got != 1000 {
		t.Fatalf("percent stake = %v, want clamped to cash", got)
	}
	if got := (Sizing{Mode: SizingAllIn}).StakeSize(1000, 0); got != 0 {
		t.Fatalf("zero price size = %v, want 0", got)
	}
}

// squeezeThenBreakout builds a flat, low-volatility series capped with a
// single wide-body breakout candle on elevated volume.
func squeezeThenBreakout(n int) []engine.Bar {
	bars := make([]engine.Bar, n)
	for i := range bars {
		bars[i] = engine.Bar{
			Timestamp: int64(i+1) * 14400000,
			Open:      100, High: 100.05, Low: 99.95, Close: 100,
			Volume: 1000,
		}
	}
	last := n - 1
	bars[last] = engine.Bar{
		Timestamp: bars[last].Timestamp,
		Open:      100, High: 103.2, Low: 99.9, Close: 103,
		Volume: 5000,
	}
	return bars
}

func TestBollBreakoutEntersOnBreakout(t *testing.T) {
	bars := squeezeThenBreakout(80)
	s := NewBollBreakout(DefaultBollBreakoutParams())
	if err := s.Init("BTCUSDT", bars); err != nil {
		t.Fatal(err)
	}

	exec := &fakeExec{cash: 10000, value: 10000}
	s.Next(len(bars)-1, bars, exec)

	if len(exec.buys) != 1 {
		t.Fatalf("buys = %v, want exactly one entry", exec.buys)
	}
	if exec.buys[0] <= 0 {
		t.Fatalf("entry size = %v, want > 0", exec.buys[0])
	}
}

func TestBollBreakoutNoEntryWithoutVolume(t *testing.T) {
	bars := squeezeThenBreakout(80)
	bars[len(bars)-1].Volume = 500 // breakout candle on thin volume
	s := NewBollBreakout(DefaultBollBreakoutParams())
	if err := s.Init("BTCUSDT", bars); err != nil {
		t.Fatal(err)
	}

	exec := &fakeExec{cash: 10000, value: 10000}
	s.Next(len(bars)-1, bars, exec)
	if len(exec.buys) != 0 {
		t.Fatalf("buys = %v, want none without volume confirmation", exec.buys)
	}
}

func TestBollBreakoutStopExit(t *testing.T) {
	// breakout candle on the second-to-last bar, crash on the last
	bars := squeezeThenBreakout(80)
	entryIdx := len(bars) - 2
	ts := bars[entryIdx].Timestamp
	bars[entryIdx] = bars[len(bars)-1]
	bars[entryIdx].Timestamp = ts
	bars[len(bars)-1] = engine.Bar{
		Timestamp: bars[len(bars)-1].Timestamp,
		Open:      103, High: 103, Low: 90, Close: 90,
		Volume: 8000,
	}

	s := NewBollBreakout(DefaultBollBreakoutParams())
	if err := s.Init("BTCUSDT", bars); err != nil {
		t.Fatal(err)
	}

	exec := &fakeExec{cash: 10000, value: 10000}
	s.Next(entryIdx, bars, exec)
	if len(exec.buys) != 1 {
		t.Fatalf("buys = %v, want entry before the crash", exec.buys)
	}
	s.Next(len(bars)-1, bars, exec)
	if exec.closes != 1 {
		t.Fatalf("closes = %d, want stop exit on the crash bar", exec.closes)
	}
}

// uptrendWithPullback builds a steady uptrend whose final bar dips to EMA20
// with a long lower wick and closes back up.
func uptrendWithPullback(n int) []engine.Bar {
	bars := make([]engine.Bar, n)
	px := 100.0
	for i := range bars {
		open := px
		px *= 1.002
		bars[i] = engine.Bar{
			Timestamp: int64(i+1) * 14400000,
			Open:      open, High: px * 1.001, Low: open * 0.999, Close: px,
			Volume: 1000,
		}
	}
	last := n - 1
	prevClose := bars[last-1].Close
	bars[last] = engine.Bar{
		Timestamp: bars[last].Timestamp,
		Open:      prevClose,
		Close:     prevClose * 1.001,
		High:      prevClose * 1.002,
		Low:       prevClose * 0.97, // deep tag of EMA20
		Volume:    1000,
	}
	return bars
}

func TestPullbackEMAEntryWithOnrampCap(t *testing.T) {
	bars := uptrendWithPullback(90)
	p := DefaultPullbackEMAParams()
	s := NewPullbackEMA(p)
	if err := s.Init("BTCUSDT", bars); err != nil {
		t.Fatal(err)
	}

	i := len(bars) - 1
	exec := &fakeExec{cash: 10000, value: 10000}
	s.Next(i, bars, exec)

	if len(exec.buys) != 1 {
		t.Fatalf("buys = %v, want one entry on the pullback bar", exec.buys)
	}

	close := bars[i].Close
	// first trades run at the on-ramp risk cap, not the base risk
	wantQty := math.Floor(math.Min(
		10000*p.OnrampRiskCap/(close*p.SlPct),
		10000*p.MaxAllocPct/close,
	)*1000) / 1000
	if math.Abs(exec.buys[0]-wantQty) > 1e-9 {
		t.Fatalf("qty = %v, want on-ramp capped %v", exec.buys[0], wantQty)
	}
}

func TestPullbackEMAExitBelowEMA50(t *testing.T) {
	// the last bar crashes far below any moving average
	bars := uptrendWithPullback(90)
	i := len(bars) - 1
	bars[i] = engine.Bar{
		Timestamp: bars[i].Timestamp,
		Open:      bars[i-1].Close, High: bars[i-1].Close, Low: 50, Close: 50,
		Volume: 1000,
	}

	s := NewPullbackEMA(DefaultPullbackEMAParams())
	if err := s.Init("BTCUSDT", bars); err != nil {
		t.Fatal(err)
	}

	exec := &fakeExec{cash: 10000, value: 10000, position: 1}
	s.Next(i, bars, exec)
	if exec.closes != 1 {
		t.Fatalf("closes = %d, want exit below EMA50", exec.closes)
	}
}

func TestPullbackEMANoSignalNoOrder(t *testing.T) {
	bars := uptrendWithPullback(90)
	s := NewPullbackEMA(DefaultPullbackEMAParams())
	if err := s.Init("BTCUSDT", bars); err != nil {
		t.Fatal(err)
	}
	exec := &fakeExec{cash: 10000, value: 10000}
	// mid-trend bar without a pullback signal
	s.Next(60, bars, exec)
	if len(exec.buys) != 0 {
		t.Fatalf("buys = %v, want none without a signal", exec.buys)
	}
}
