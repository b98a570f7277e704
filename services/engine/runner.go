package engine

import (
	"fmt"

	"go.uber.org/zap"
)

// OrderExecutor is the capability handed to strategies for placing orders.
// Strategies never talk to a broker directly; the execution middleware
// implements this interface and applies exchange rules, slippage, fees and
// cash checks before anything reaches the broker. All three order calls
// return false when the order was skipped (rejection reasons are logged by
// the middleware, never surfaced as errors).
type OrderExecutor interface {
	Buy(symbol string, qty float64) bool
	Sell(symbol string, qty float64) bool
	Close(symbol string) bool

	Position(symbol string) float64
	Cash() float64
	Value() float64
}

// Strategy is a bar-driven trading strategy. Init receives the full series
// once so signal precomputation can happen up front; Next is called for every
// bar index past warmup, in order.
type Strategy interface {
	Name() string
	Init(symbol string, bars []Bar) error
	Next(i int, bars []Bar, exec OrderExecutor)
}

// ReplayMarket exposes the portion of a bar series visible at the current
// replay cursor. The execution middleware reads its window for slippage
// estimation; the runner advances it bar by bar.
type ReplayMarket struct {
	symbol string
	bars   []Bar
	cursor int
}

func NewReplayMarket(symbol string, bars []Bar) *ReplayMarket {
	return &ReplayMarket{symbol: symbol, bars: bars, cursor: -1}
}

func (m *ReplayMarket) Advance(i int) { m.cursor = i }

// Window returns the bars visible so far, oldest first. Unknown symbols get
// an empty window.
func (m *ReplayMarket) Window(symbol string) []Bar {
	if symbol != m.symbol || m.cursor < 0 {
		return nil
	}
	return m.bars[:m.cursor+1]
}

// Now returns the open timestamp of the current bar.
func (m *ReplayMarket) Now(symbol string) int64 {
	if symbol != m.symbol || m.cursor < 0 {
		return 0
	}
	return m.bars[m.cursor].Timestamp
}

// CashDepositor is the slice of broker behavior the runner needs for the
// monthly deposit feature.
type CashDepositor interface {
	AddCash(amount float64)
}

// Runner replays a bar series through a strategy, single-threaded, one bar at
// a time. Each order intent raised inside Next is fully resolved before the
// next bar is considered.
type Runner struct {
	Symbol  string
	Bars    []Bar
	Warmup  int
	Market  *ReplayMarket
	OnBar   func(i int, bar Bar) // price marking hook, may be nil

	// MonthlyDeposit, when > 0, adds that amount of cash at each new month
	// boundary (simple DCA). The first bar only initializes the month.
	MonthlyDeposit float64
	Depositor      CashDepositor

	Logger *zap.Logger

	deposits int
}

// Run drives the replay. It returns an error only for setup problems;
// per-order rejections never stop the loop.
func (r *Runner) Run(s Strategy, exec OrderExecutor) error {
	if len(r.Bars) == 0 {
		return fmt.Errorf("no bars to replay for %s", r.Symbol)
	}
	if r.Market == nil {
		r.Market = NewReplayMarket(r.Symbol, r.Bars)
	}
	if r.Logger == nil {
		r.Logger = zap.NewNop()
	}

	if err := s.Init(r.Symbol, r.Bars); err != nil {
		return fmt.Errorf("strategy %s init: %w", s.Name(), err)
	}

	var lastMonth [2]int
	haveMonth := false

	for i, bar := range r.Bars {
		r.Market.Advance(i)
		if r.OnBar != nil {
			r.OnBar(i, bar)
		}

		if r.MonthlyDeposit > 0 && r.Depositor != nil {
			t := bar.Time()
			ym := [2]int{t.Year(), int(t.Month())}
			if !haveMonth {
				lastMonth = ym
				haveMonth = true
			} else if ym != lastMonth {
				r.Depositor.AddCash(r.MonthlyDeposit)
				r.deposits++
				lastMonth = ym
			}
		}

		if i < r.Warmup {
			continue
		}
		s.Next(i, r.Bars, exec)
	}

	r.Logger.Info("replay finished",
		zap.String("symbol", r.Symbol),
		zap.String("strategy", s.Name()),
		zap.Int("bars", len(r.Bars)),
		zap.Int("deposits", r.deposits),
	)
	return nil
}

// Deposits reports how many monthly deposits were applied during the run.
func (r *Runner) Deposits() int { return r.deposits }

// TotalDeposited reports the total cash added by monthly deposits.
func (r *Runner) TotalDeposited() float64 { return float64(r.deposits) * r.MonthlyDeposit }
