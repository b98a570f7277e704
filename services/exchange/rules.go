// Package exchange resolves per-symbol trading constraints (tick size, lot
// step, minimum notional) from the exchange catalog and conforms order
// parameters to them. All rule arithmetic uses decimal values; float64 enters
// and leaves only at the package boundary so step/tick rounding never drifts
// across repeated conformance calls.
package exchange

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Side is the order side as seen by rule conformance. Price rounding
// direction depends on it.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// OrderType selects which lot filter applies (limit vs market step sizes).
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

// ExchangeRules is the immutable per-symbol constraint set. Constructed once
// per run and shared read-only.
type ExchangeRules struct {
	Symbol string
	Base   string
	Quote  string

	MinPrice decimal.Decimal
	MaxPrice decimal.Decimal
	TickSize decimal.Decimal

	MinQty   decimal.Decimal
	MaxQty   decimal.Decimal
	StepSize decimal.Decimal

	MinQtyMarket   decimal.Decimal
	MaxQtyMarket   decimal.Decimal
	StepSizeMarket decimal.Decimal

	MinNotional              decimal.Decimal
	ApplyMinNotionalToMarket bool
}

// SyntheticRules returns the permissive rule set used for external reference
// instruments (gold, indices) that are not listed on the exchange.
func SyntheticRules(symbol string) ExchangeRules {
	return ExchangeRules{
		Symbol:                   symbol,
		Base:                     symbol,
		Quote:                    "USD",
		MinPrice:                 decimal.Zero,
		MaxPrice:                 decimal.RequireFromString("9999999"),
		TickSize:                 decimal.RequireFromString("0.01"),
		MinQty:                   decimal.RequireFromString("0.0001"),
		MaxQty:                   decimal.RequireFromString("9999999"),
		StepSize:                 decimal.RequireFromString("0.01"),
		MinQtyMarket:             decimal.RequireFromString("0.0001"),
		MaxQtyMarket:             decimal.RequireFromString("9999999"),
		StepSizeMarket:           decimal.RequireFromString("0.01"),
		MinNotional:              decimal.Zero,
		ApplyMinNotionalToMarket: true,
	}
}

// symbolInfo mirrors the exchangeInfo catalog entry for one symbol. Filters
// are a heterogeneous list discriminated by filterType.
type symbolInfo struct {
	Symbol     string         `json:"symbol"`
	BaseAsset  string         `json:"baseAsset"`
	QuoteAsset string         `json:"quoteAsset"`
	Filters    []symbolFilter `json:"filters"`
}

type symbolFilter struct {
	FilterType    string `json:"filterType"`
	MinPrice      string `json:"minPrice"`
	MaxPrice      string `json:"maxPrice"`
	TickSize      string `json:"tickSize"`
	MinQty        string `json:"minQty"`
	MaxQty        string `json:"maxQty"`
	StepSize      string `json:"stepSize"`
	MinNotional   string `json:"minNotional"`
	ApplyToMarket *bool  `json:"applyToMarket"`
}

func (s symbolInfo) filter(t string) (symbolFilter, bool) {
	for _, f := range s.Filters {
		if f.FilterType == t {
			return f, true
		}
	}
	return symbolFilter{}, false
}

func dec(s, fallback string) decimal.Decimal {
	if s == "" {
		s = fallback
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.RequireFromString(fallback)
	}
	return d
}

// ParseSymbolRules converts a raw exchangeInfo symbol entry into rules.
func ParseSymbolRules(raw json.RawMessage) (ExchangeRules, error) {
	var info symbolInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return ExchangeRules{}, err
	}

	priceF, _ := info.filter("PRICE_FILTER")
	lotF, _ := info.filter("LOT_SIZE")
	mlotF, hasMlot := info.filter("MARKET_LOT_SIZE")
	notF, hasNot := info.filter("NOTIONAL")
	if !hasNot {
		notF, _ = info.filter("MIN_NOTIONAL")
	}
	if !hasMlot {
		// market lot falls back to the limit lot filter
		mlotF = lotF
	}

	applyToMarket := true
	if notF.ApplyToMarket != nil {
		applyToMarket = *notF.ApplyToMarket
	}

	return ExchangeRules{
		Symbol:                   info.Symbol,
		Base:                     info.BaseAsset,
		Quote:                    info.QuoteAsset,
		MinPrice:                 dec(priceF.MinPrice, "0"),
		MaxPrice:                 dec(priceF.MaxPrice, "0"),
		TickSize:                 dec(priceF.TickSize, "0.00000001"),
		MinQty:                   dec(lotF.MinQty, "0"),
		MaxQty:                   dec(lotF.MaxQty, "0"),
		StepSize:                 dec(lotF.StepSize, "1"),
		MinQtyMarket:             dec(mlotF.MinQty, "0"),
		MaxQtyMarket:             dec(mlotF.MaxQty, "0"),
		StepSizeMarket:           dec(mlotF.StepSize, "1"),
		MinNotional:              dec(notF.MinNotional, "0"),
		ApplyMinNotionalToMarket: applyToMarket,
	}, nil
}
