package engine

import (
	"testing"
	"time"
)

type recordingStrategy struct {
	inited  bool
	visited []int
}

func (s *recordingStrategy) Name() string { return "recording" }
func (s *recordingStrategy) Init(symbol string, bars []Bar) error {
	s.inited = true
	return nil
}
func (s *recordingStrategy) Next(i int, bars []Bar, exec OrderExecutor) {
	s.visited = append(s.visited, i)
}

type nopExecutor struct{}

func (nopExecutor) Buy(string, float64) bool  { return false }
func (nopExecutor) Sell(string, float64) bool { return false }
func (nopExecutor) Close(string) bool         { return false }
func (nopExecutor) Position(string) float64   { return 0 }
func (nopExecutor) Cash() float64             { return 0 }
func (nopExecutor) Value() float64            { return 0 }

type fakeDepositor struct{ total float64 }

func (d *fakeDepositor) AddCash(amount float64) { d.total += amount }

func monthlyBars(months int) []Bar {
	bars := make([]Bar, months)
	for i := range bars {
		ts := time.Date(2024, time.Month(1+i), 15, 0, 0, 0, 0, time.UTC)
		bars[i] = Bar{Timestamp: ts.UnixMilli(), Close: 100}
	}
	return bars
}

func TestRunnerSkipsWarmup(t *testing.T) {
	bars := monthlyBars(6)
	s := &recordingStrategy{}
	r := &Runner{Symbol: "BTCUSDT", Bars: bars, Warmup: 3}

	if err := r.Run(s, nopExecutor{}); err != nil {
		t.Fatal(err)
	}
	if !s.inited {
		t.Fatal("Init not called")
	}
	if len(s.visited) != 3 || s.visited[0] != 3 {
		t.Fatalf("visited = %v, want [3 4 5]", s.visited)
	}
}

func TestRunnerMonthlyDeposits(t *testing.T) {
	bars := monthlyBars(4) // Jan..Apr, three month boundaries
	d := &fakeDepositor{}
	r := &Runner{
		Symbol:         "BTCUSDT",
		Bars:           bars,
		MonthlyDeposit: 250,
		Depositor:      d,
	}
	if err := r.Run(&recordingStrategy{}, nopExecutor{}); err != nil {
		t.Fatal(err)
	}
	if r.Deposits() != 3 {
		t.Fatalf("deposits = %d, want 3", r.Deposits())
	}
	if d.total != 750 {
		t.Fatalf("deposited = %v, want 750", d.total)
	}
	if r.TotalDeposited() != 750 {
		t.Fatalf("TotalDeposited = %v, want 750", r.TotalDeposited())
	}
}

func TestRunnerNoBarsErrors(t *testing.T) {
	r := &Runner{Symbol: "BTCUSDT"}
	if err := r.Run(&recordingStrategy{}, nopExecutor{}); err == nil {
		t.Fatal("expected error with no bars")
	}
}

func TestReplayMarketWindow(t *testing.T) {
	bars := monthlyBars(5)
	m := NewReplayMarket("BTCUSDT", bars)

	if got := m.Window("BTCUSDT"); got != nil {
		t.Fatal("window before the first advance must be empty")
	}
	m.Advance(2)
	if got := m.Window("BTCUSDT"); len(got) != 3 {
		t.Fatalf("window = %d bars, want 3", len(got))
	}
	if got := m.Window("ETHUSDT"); got != nil {
		t.Fatal("unknown symbol must get an empty window")
	}
	if m.Now("BTCUSDT") != bars[2].Timestamp {
		t.Fatal("Now must report the cursor bar's timestamp")
	}
}
