package exchange

import "github.com/shopspring/decimal"

// Rejection reason codes. Stable strings: they end up in logs and skip
// records, so tooling matches on them.
const (
	ReasonMinNotionalUnreachable = "minNotional_unreachable"
	ReasonExceedsCap             = "excede_cap_nueva_orden"
)

// Adjusted is the outcome of conforming an order intent to exchange rules.
// When OK is false, Reason carries the rejection code and the numeric fields
// are zero.
type Adjusted struct {
	Price    decimal.Decimal
	Qty      decimal.Decimal
	Notional decimal.Decimal
	Reason   string
}

func (a Adjusted) PriceF() float64    { return a.Price.InexactFloat64() }
func (a Adjusted) QtyF() float64      { return a.Qty.InexactFloat64() }
func (a Adjusted) NotionalF() float64 { return a.Notional.InexactFloat64() }

func roundDownToStep(x, step decimal.Decimal) decimal.Decimal {
	if !step.IsPositive() {
		return x
	}
	return x.Div(step).Floor().Mul(step)
}

func roundUpToStep(x, step decimal.Decimal) decimal.Decimal {
	if !step.IsPositive() {
		return x
	}
	return x.Div(step).Ceil().Mul(step)
}

// roundPrice quantizes a reference price to the tick grid. Buys round down,
// sells round to nearest.
func roundPrice(px, tick decimal.Decimal, side Side) decimal.Decimal {
	if !tick.IsPositive() {
		return px
	}
	if side == SideBuy {
		return roundDownToStep(px, tick)
	}
	return px.Div(tick).Round(0).Mul(tick)
}

// ConformOrder adjusts quantity and price to the symbol's tick/step grid and
// enforces quantity bounds and the minimum notional. The quantity is floored
// to the applicable step, raised to minQty when below it, clamped to maxQty,
// and topped up (step-aligned upward) when the resulting notional is under
// minNotional. Returns ok=false with a reason code when no feasible quantity
// exists.
func ConformOrder(r ExchangeRules, side Side, orderType OrderType, refPrice, qty float64) (bool, Adjusted) {
	tick := r.TickSize
	var step, minq, maxq decimal.Decimal
	if orderType == OrderTypeLimit {
		step, minq, maxq = r.StepSize, r.MinQty, r.MaxQty
	} else {
		step, minq, maxq = r.StepSizeMarket, r.MinQtyMarket, r.MaxQtyMarket
	}

	px := decimal.NewFromFloat(refPrice)
	q := decimal.NewFromFloat(qty)

	px = roundPrice(px, tick, side)
	q = roundDownToStep(q, step)

	if minq.IsPositive() && q.LessThan(minq) {
		q = minq
	}
	if maxq.IsPositive() && q.GreaterThan(maxq) {
		q = maxq
	}

	notional := px.Mul(q)
	applyMinNotional := orderType == OrderTypeLimit || r.ApplyMinNotionalToMarket
	if applyMinNotional && r.MinNotional.IsPositive() && notional.LessThan(r.MinNotional) {
		den := px
		if !den.IsPositive() {
			den = decimal.New(1, 0)
		}
		needQ := roundUpToStep(r.MinNotional.Div(den), step)
		if !needQ.IsPositive() || (maxq.IsPositive() && needQ.GreaterThan(maxq)) {
			return false, Adjusted{Reason: ReasonMinNotionalUnreachable}
		}
		q = needQ
		notional = px.Mul(q)
	}

	return true, Adjusted{Price: px, Qty: q, Notional: notional}
}

// ConformMarketOrder conforms a market order and additionally enforces a
// caller-supplied notional cap (portfolio value times the allocation limit).
// When the conformed notional exceeds the cap the order is rejected; quantity
// is never shrunk below the minNotional floor to fit the cap.
func ConformMarketOrder(r ExchangeRules, side Side, refPrice, qty, capNotional float64) (ok bool, qtyAdj, notionalAdj float64, reason string) {
	ok, adj := ConformOrder(r, side, OrderTypeMarket, refPrice, qty)
	if !ok {
		return false, 0, 0, adj.Reason
	}
	if capNotional > 0 && adj.NotionalF() > capNotional {
		return false, 0, 0, ReasonExceedsCap
	}
	return true, adj.QtyF(), adj.NotionalF(), ""
}
