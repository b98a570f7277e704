// Package fees holds the simulated commission model: flat maker/taker rates
// on notional, plus the symmetric buy-and-hold fee pair used for fair
// benchmark comparison. Pure functions, no state.
package fees

// Tier selects the fee rate applied to an order. Market orders always take
// liquidity, so the execution middleware charges taker throughout.
type Tier string

const (
	TierMaker Tier = "maker"
	TierTaker Tier = "taker"
)

// Config carries the percentage rates for a run. Immutable after
// construction; all rates are fractions (0.0004 = 0.04%).
type Config struct {
	Maker      float64 `toml:"maker"`
	Taker      float64 `toml:"taker"`
	BuyholdIn  float64 `toml:"buyhold_in"`
	BuyholdOut float64 `toml:"buyhold_out"`
}

// DefaultConfig returns the simulated fee rates used when the CLI does not
// override the commission.
func DefaultConfig() Config {
	return Config{
		Maker:      0.0002,
		Taker:      0.0004,
		BuyholdIn:  0.0004,
		BuyholdOut: 0.0004,
	}
}

// ConfigWithCommission builds a config where the CLI commission rate drives
// the taker and buy-and-hold legs (maker stays at half the taker rate).
func ConfigWithCommission(commission float64) Config {
	if commission < 0 {
		commission = 0
	}
	return Config{
		Maker:      commission / 2,
		Taker:      commission,
		BuyholdIn:  commission,
		BuyholdOut: commission,
	}
}

func (c Config) rate(t Tier) float64 {
	switch t {
	case TierMaker:
		return c.Maker
	case TierTaker:
		return c.Taker
	}
	return 0
}

// Amount computes the fee for a notional at the given tier. Negative inputs
// are treated as zero.
func Amount(notional float64, tier Tier, cfg Config) float64 {
	if notional <= 0 {
		return 0
	}
	rate := cfg.rate(tier)
	if rate <= 0 {
		return 0
	}
	return notional * rate
}

// BuyAndHold computes the fee pair for a hypothetical all-in purchase of
// capital at pxIn and full liquidation at pxOut. Used to put strategy results
// and the buy-and-hold benchmark on the same net basis.
func BuyAndHold(capital, pxIn, pxOut float64, cfg Config) (feeIn, feeOut, total float64) {
	if capital <= 0 || pxIn <= 0 {
		return 0, 0, 0
	}
	qty := capital / pxIn
	notionalIn := capital
	notionalOut := qty * pxOut
	if notionalOut < 0 {
		notionalOut = 0
	}
	feeIn = notionalIn * cfg.BuyholdIn
	feeOut = notionalOut * cfg.BuyholdOut
	return feeIn, feeOut, feeIn + feeOut
}
