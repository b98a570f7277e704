package strategies

// SizingMode selects how entry stakes are computed from available cash.
type SizingMode string

const (
	SizingAllIn   SizingMode = "all_in"
	SizingFixed   SizingMode = "fixed"
	SizingPercent SizingMode = "percent"
)

// Sizing turns available cash into an asset quantity for an entry. Fine
// rounding to tick/step happens later in the execution middleware.
type Sizing struct {
	Mode       SizingMode
	FixedStake float64 // currency units for SizingFixed
	StakePct   float64 // 0..1 for SizingPercent
}

// StakeCash returns the cash to commit. AllIn leaves a small margin so the
// order does not fail the cash check once slippage and fees are added.
func (s Sizing) StakeCash(cash float64) float64 {
	var stake float64
	switch s.Mode {
	case SizingAllIn:
		stake = cash * 0.995
	case SizingFixed:
		stake = s.FixedStake
		if stake > cash {
			stake = cash
		}
	case SizingPercent:
		pct := s.StakePct
		if pct < 0 {
			pct = 0
		}
		if pct > 1 {
			pct = 1
		}
		stake = cash * pct
	default:
		stake = cash
	}
	if stake < 0 {
		return 0
	}
	return stake
}

// StakeSize converts the stake to asset units at the given price.
func (s Sizing) StakeSize(cash, price float64) float64 {
	if price <= 0 {
		return 0
	}
	size := s.StakeCash(cash) / price
	if size < 0 {
		return 0
	}
	return size
}
