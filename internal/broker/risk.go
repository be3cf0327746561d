package broker

import (
	"math"

	"github.com/newthinker/meanrev/internal/core"
)

// DefaultMaxPositionPct is the default fraction of equity a position may take.
const DefaultMaxPositionPct = 0.10

// PositionSizer converts signals into target position sizes under an
// allocation cap. It never sizes beyond what the account can fund and never
// produces a short.
type PositionSizer struct {
	maxPositionPct float64
}

// NewPositionSizer creates a sizer capping the position at maxPositionPct of
// total portfolio value. maxPositionPct must lie in (0, 1].
func NewPositionSizer(maxPositionPct float64) (*PositionSizer, error) {
	if math.IsNaN(maxPositionPct) || maxPositionPct <= 0 || maxPositionPct > 1 {
		return nil, core.Wrapf(core.ErrConfigInvalid,
			"max_position_pct must be in (0, 1], got %f", maxPositionPct)
	}
	return &PositionSizer{maxPositionPct: maxPositionPct}, nil
}

// MaxPositionPct returns the configured allocation cap.
func (s *PositionSizer) MaxPositionPct() float64 {
	return s.maxPositionPct
}

// Size returns the target number of units to hold after acting on sig.
//
// BUY targets the cap (maxPositionPct of equity at price), re-evaluated on
// every call, bounded by what cash can fund. A BUY never reduces an existing
// position, even one that has drifted above the cap.
// SELL exits to cash. HOLD keeps the current position.
func (s *PositionSizer) Size(sig core.Signal, p Portfolio, price float64) float64 {
	if price <= 0 {
		return p.Units
	}

	switch sig.Action {
	case core.ActionBuy:
		capUnits := p.Equity(price) * s.maxPositionPct / price
		fundable := p.Units + p.Cash/price
		target := math.Min(capUnits, fundable)
		if target < p.Units {
			return p.Units
		}
		return target
	case core.ActionSell:
		return 0
	default:
		return p.Units
	}
}
