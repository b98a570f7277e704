// Package broker implements the simulated execution backend for backtests:
// cash accounting, per-symbol positions with volume-weighted average entry
// price, and immediate fills at the caller-supplied effective price.
//
// The broker is single-owner state driven by the sequential replay loop; no
// internal locking. A concurrent embedding must serialize access externally.
package broker

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Side is the trade side of an order or fill.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Position tracks an open holding for one symbol.
type Position struct {
	Size        float64
	AvgPrice    float64
	RealizedPnl float64
}

// Fill is the broker's notification for an executed order. Price is the
// effective (slippage-adjusted) execution price attached by the middleware,
// not a nominal quote. Residual is the position size remaining after this
// fill; the analyzer closes a trade exactly when it reaches zero.
type Fill struct {
	OrderID  string
	Symbol   string
	Side     Side
	Size     float64
	Price    float64
	Fee      float64
	Ts       int64
	Residual float64
}

// SimBroker holds simulated account state.
type SimBroker struct {
	cash      float64
	positions map[string]*Position
	marks     map[string]float64
}

func New(startingCash float64) *SimBroker {
	return &SimBroker{
		cash:      startingCash,
		positions: make(map[string]*Position),
		marks:     make(map[string]float64),
	}
}

// Mark records the latest observed price for a symbol; portfolio value is
// computed against marks.
func (b *SimBroker) Mark(symbol string, price float64) {
	if price > 0 {
		b.marks[symbol] = price
	}
}

// Cash returns available cash.
func (b *SimBroker) Cash() float64 { return b.cash }

// AddCash credits the account (monthly deposit / DCA).
func (b *SimBroker) AddCash(amount float64) {
	if amount > 0 {
		b.cash += amount
	}
}

// PositionSize returns the open size for a symbol, zero when flat.
func (b *SimBroker) PositionSize(symbol string) float64 {
	if p, ok := b.positions[symbol]; ok {
		return p.Size
	}
	return 0
}

// PositionAvgPrice returns the volume-weighted entry price for a symbol.
func (b *SimBroker) PositionAvgPrice(symbol string) float64 {
	if p, ok := b.positions[symbol]; ok {
		return p.AvgPrice
	}
	return 0
}

// Value returns cash plus open positions at their latest marks.
func (b *SimBroker) Value() float64 {
	v := b.cash
	for sym, p := range b.positions {
		if p.Size <= 0 {
			continue
		}
		mark, ok := b.marks[sym]
		if !ok {
			mark = p.AvgPrice
		}
		v += p.Size * mark
	}
	return v
}

// Execute settles a market order immediately at the given effective price.
// The middleware validates cash beforehand; an overdraw here is a programming
// error and is returned as one. Sells are clamped to the open position.
func (b *SimBroker) Execute(symbol string, side Side, size, price, fee float64, ts int64) (Fill, error) {
	if size <= 0 || price <= 0 {
		return Fill{}, fmt.Errorf("invalid order: size=%v price=%v", size, price)
	}

	p, ok := b.positions[symbol]
	if !ok {
		p = &Position{}
		b.positions[symbol] = p
	}

	switch side {
	case SideBuy:
		cost := size*price + fee
		if cost > b.cash+1e-6 {
			return Fill{}, fmt.Errorf("insufficient cash: need %.8f have %.8f", cost, b.cash)
		}
		b.cash -= cost
		newSize := p.Size + size
		p.AvgPrice = weightedAvg(p.AvgPrice, p.Size, price, size)
		p.Size = newSize

	case SideSell:
		if size > p.Size {
			size = p.Size
		}
		if size <= 0 {
			return Fill{}, fmt.Errorf("no position to sell for %s", symbol)
		}
		b.cash += size*price - fee
		p.RealizedPnl += (price - p.AvgPrice) * size
		p.Size -= size
		if p.Size <= 1e-12 {
			p.Size = 0
			p.AvgPrice = 0
		}

	default:
		return Fill{}, fmt.Errorf("unknown side %q", side)
	}

	b.Mark(symbol, price)

	if ts == 0 {
		ts = time.Now().UnixMilli()
	}
	return Fill{
		OrderID:  uuid.New().String(),
		Symbol:   symbol,
		Side:     side,
		Size:     size,
		Price:    price,
		Fee:      fee,
		Ts:       ts,
		Residual: p.Size,
	}, nil
}

func weightedAvg(p1, q1, p2, q2 float64) float64 {
	if q1+q2 == 0 {
		return 0
	}
	return (p1*q1 + p2*q2) / (q1 + q2)
}
