// Package execution implements the order-execution middleware and the net
// P&L analyzer. Every buy/sell/close a strategy issues passes through the
// middleware, which conforms the order to exchange rules, applies the
// deterministic slippage model, charges taker fees, and validates cash and
// the per-order allocation cap before anything reaches the broker. All
// rejections are non-fatal: the single order is skipped with a logged reason
// and the strategy continues on its next bar.
package execution

import (
	"go.uber.org/zap"

	"btlab/services/broker"
	"btlab/services/engine"
	"btlab/services/exchange"
	"btlab/services/fees"
	"btlab/services/monitoring"
	"btlab/services/slippage"
)

// Middleware-local rejection reason codes. Conformance reasons come from the
// exchange package.
const (
	ReasonNoRules          = "no_rules"
	ReasonNoMarketData     = "no_market_data"
	ReasonZeroQuantity     = "zero_quantity"
	ReasonCashInsufficient = "cash_insufficient"
	ReasonCapAfterSlippage = "cap_after_slippage"
	ReasonNoPosition       = "no_position"
)

// CashPolicy decides what happens when an order's notional plus fee exceeds
// available cash. One policy is chosen per deployment and applied to every
// order.
type CashPolicy int

const (
	// CashPolicyReject skips the order outright.
	CashPolicyReject CashPolicy = iota
	// CashPolicyScaleDown shrinks quantity proportionally to fit cash, then
	// re-runs exchange-rule conformance; the scaled order may still be
	// rejected on minNotional.
	CashPolicyScaleDown
)

func (p CashPolicy) String() string {
	if p == CashPolicyScaleDown {
		return "scale_down"
	}
	return "reject"
}

// MarketView is the slice of market state the middleware needs: the bars
// visible at the current replay cursor (for the slippage model) and the
// current bar timestamp.
type MarketView interface {
	Window(symbol string) []engine.Bar
	Now(symbol string) int64
}

// Options bundles the read-only configuration shared by every order the
// middleware processes.
type Options struct {
	Rules       map[string]exchange.ExchangeRules
	Fees        fees.Config
	Slippage    slippage.Config
	Latency     slippage.Latency
	MaxAllocPct float64
	Policy      CashPolicy
	Logger      *zap.Logger
	Metrics     *monitoring.Metrics // optional
}

// Middleware implements engine.OrderExecutor on top of a simulated broker.
type Middleware struct {
	rules    map[string]exchange.ExchangeRules
	fees     fees.Config
	slip     slippage.Config
	lat      slippage.Latency
	allocPct float64
	policy   CashPolicy

	broker   *broker.SimBroker
	market   MarketView
	analyzer *NetPnLAnalyzer

	logger  *zap.Logger
	metrics *monitoring.Metrics
}

func NewMiddleware(b *broker.SimBroker, market MarketView, analyzer *NetPnLAnalyzer, opts Options) *Middleware {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	allocPct := opts.MaxAllocPct
	if allocPct <= 0 || allocPct > 1 {
		allocPct = 0.85
	}
	return &Middleware{
		rules:    opts.Rules,
		fees:     opts.Fees,
		slip:     opts.Slippage,
		lat:      opts.Latency,
		allocPct: allocPct,
		policy:   opts.Policy,
		broker:   b,
		market:   market,
		analyzer: analyzer,
		logger:   logger,
		metrics:  opts.Metrics,
	}
}

var _ engine.OrderExecutor = (*Middleware)(nil)

func (m *Middleware) Position(symbol string) float64 { return m.broker.PositionSize(symbol) }
func (m *Middleware) Cash() float64                  { return m.broker.Cash() }
func (m *Middleware) Value() float64                 { return m.broker.Value() }

func (m *Middleware) skip(symbol, side, reason string, fields ...zap.Field) bool {
	fields = append([]zap.Field{
		zap.String("symbol", symbol),
		zap.String("side", side),
		zap.String("reason", reason),
	}, fields...)
	m.logger.Warn("order skipped", fields...)
	if m.metrics != nil {
		m.metrics.OrderRejected(reason)
	}
	return false
}

// Buy processes a market buy intent: rules -> slippage -> fee -> cash check
// -> submit. Returns false when the order was skipped.
func (m *Middleware) Buy(symbol string, qty float64) bool {
	if qty <= 0 {
		return m.skip(symbol, "buy", ReasonZeroQuantity)
	}
	window := m.market.Window(symbol)
	if len(window) == 0 {
		return m.skip(symbol, "buy", ReasonNoMarketData)
	}
	rules, ok := m.rules[symbol]
	if !ok {
		return m.skip(symbol, "buy", ReasonNoRules)
	}

	refPx := window[len(window)-1].Close
	ts := m.market.Now(symbol)
	capNotional := m.broker.Value() * m.allocPct

	ok, qtyAdj, _, reason := exchange.ConformMarketOrder(rules, exchange.SideBuy, refPx, qty, capNotional)
	if !ok || qtyAdj <= 0 {
		if reason == "" {
			reason = ReasonZeroQuantity
		}
		return m.skip(symbol, "buy", reason, zap.Float64("cap", capNotional))
	}

	effPx := slippage.Apply(exchange.SideBuy, refPx, qtyAdj, window, m.lat, m.slip)
	notionalEff := effPx * qtyAdj
	feeIn := fees.Amount(notionalEff, fees.TierTaker, m.fees)

	cash := m.broker.Cash()
	if notionalEff+feeIn > cash+1e-6 {
		if m.policy == CashPolicyReject {
			return m.skip(symbol, "buy", ReasonCashInsufficient,
				zap.Float64("needed", notionalEff+feeIn), zap.Float64("cash", cash))
		}
		// scale to exactly fit cash, then conform again: the shrunk order can
		// still fail minNotional
		scale := cash / (notionalEff + feeIn) * 0.999
		ok, qtyAdj, _, reason = exchange.ConformMarketOrder(rules, exchange.SideBuy, refPx, qtyAdj*scale, capNotional)
		if !ok || qtyAdj <= 0 {
			if reason == "" {
				reason = ReasonZeroQuantity
			}
			return m.skip(symbol, "buy", reason, zap.String("after", "cash_scale_down"))
		}
		effPx = slippage.Apply(exchange.SideBuy, refPx, qtyAdj, window, m.lat, m.slip)
		notionalEff = effPx * qtyAdj
		feeIn = fees.Amount(notionalEff, fees.TierTaker, m.fees)
		if notionalEff+feeIn > cash+1e-6 {
			return m.skip(symbol, "buy", ReasonCashInsufficient,
				zap.Float64("needed", notionalEff+feeIn), zap.Float64("cash", cash))
		}
	}

	if notionalEff > capNotional+1e-6 {
		return m.skip(symbol, "buy", ReasonCapAfterSlippage,
			zap.Float64("notional", notionalEff), zap.Float64("cap", capNotional))
	}

	fill, err := m.broker.Execute(symbol, broker.SideBuy, qtyAdj, effPx, feeIn, ts)
	if err != nil {
		return m.skip(symbol, "buy", "broker_error", zap.Error(err))
	}

	m.logger.Info("buy submitted",
		zap.String("symbol", symbol),
		zap.String("order_id", fill.OrderID),
		zap.Float64("qty", qtyAdj),
		zap.Float64("ref_price", refPx),
		zap.Float64("eff_price", effPx),
		zap.Float64("fee", feeIn),
	)
	if m.metrics != nil {
		m.metrics.OrderSubmitted("buy")
		m.metrics.SetEquity(m.broker.Value())
	}
	if m.analyzer != nil {
		m.analyzer.OnFill(fill)
	}
	return true
}

// Sell processes a market sell. A non-positive qty means "full open
// position". Reducing an existing position introduces no new exchange
// minimums, so no rule re-conformance happens here; slippage and the taker
// fee still apply.
func (m *Middleware) Sell(symbol string, qty float64) bool {
	held := m.broker.PositionSize(symbol)
	if qty <= 0 || qty > held {
		// never sell more than the open position: the fee below is computed on
		// the same size the broker fills
		qty = held
	}
	if qty <= 0 {
		return m.skip(symbol, "sell", ReasonNoPosition)
	}
	window := m.market.Window(symbol)
	if len(window) == 0 {
		return m.skip(symbol, "sell", ReasonNoMarketData)
	}

	refPx := window[len(window)-1].Close
	ts := m.market.Now(symbol)

	effPx := slippage.Apply(exchange.SideSell, refPx, qty, window, m.lat, m.slip)
	feeOut := fees.Amount(effPx*qty, fees.TierTaker, m.fees)

	fill, err := m.broker.Execute(symbol, broker.SideSell, qty, effPx, feeOut, ts)
	if err != nil {
		return m.skip(symbol, "sell", "broker_error", zap.Error(err))
	}

	m.logger.Info("sell submitted",
		zap.String("symbol", symbol),
		zap.String("order_id", fill.OrderID),
		zap.Float64("qty", fill.Size),
		zap.Float64("ref_price", refPx),
		zap.Float64("eff_price", effPx),
		zap.Float64("fee", feeOut),
	)
	if m.metrics != nil {
		m.metrics.OrderSubmitted("sell")
		m.metrics.SetEquity(m.broker.Value())
	}
	if m.analyzer != nil {
		m.analyzer.OnFill(fill)
	}
	return true
}

// Close liquidates the full open position for a symbol.
func (m *Middleware) Close(symbol string) bool {
	return m.Sell(symbol, 0)
}
