package broker

import (
	"math"

	"github.com/newthinker/meanrev/internal/core"
)

// DefaultTransactionCost is the default cost fraction charged on traded notional (10 bps).
const DefaultTransactionCost = 0.001

// minNotional is the smallest trade value executed. Smaller deltas are
// floating-point residue from sizing and are ignored.
const minNotional = 1e-8

// StepResult is the outcome of advancing the simulator by one bar.
type StepResult struct {
	// Portfolio is the state after any trade on this bar.
	Portfolio Portfolio
	// Equity is cash plus position value at the bar price.
	Equity float64
	// Fill is the trade executed on this bar, nil if none.
	Fill *Fill
}

// Simulator applies position changes to a simulated portfolio one bar at a
// time, charging a flat cost fraction on every traded notional. It owns the
// portfolio, the fill ledger and the equity curve.
//
// A Simulator is not safe for concurrent use.
type Simulator struct {
	costRate   float64
	portfolio  Portfolio
	fills      []Fill
	equity     []float64
	bar        int
	totalCosts float64
}

// NewSimulator creates a simulator holding initialCapital in cash.
// initialCapital must be positive and costRate must lie in [0, 1).
func NewSimulator(initialCapital, costRate float64) (*Simulator, error) {
	if math.IsNaN(initialCapital) || math.IsInf(initialCapital, 0) || initialCapital <= 0 {
		return nil, core.Wrapf(core.ErrConfigInvalid,
			"initial_capital must be positive, got %f", initialCapital)
	}
	if math.IsNaN(costRate) || costRate < 0 || costRate >= 1 {
		return nil, core.Wrapf(core.ErrConfigInvalid,
			"transaction_cost must be in [0, 1), got %f", costRate)
	}

	return &Simulator{
		costRate:  costRate,
		portfolio: Portfolio{Cash: initialCapital},
	}, nil
}

// Step moves the position to targetUnits at the bar price and appends the
// resulting equity to the curve.
//
// Buys are truncated so that notional plus cost never exceeds cash; negative
// targets are treated as flat. A non-positive price fails with
// core.ErrNonPositivePrice and leaves the simulator unchanged.
func (s *Simulator) Step(bar core.PriceBar, targetUnits float64) (StepResult, error) {
	if !bar.IsValid() || math.IsNaN(bar.Price) || math.IsInf(bar.Price, 0) {
		return StepResult{}, core.Wrapf(core.ErrNonPositivePrice,
			"bar %d at %s: price %v", s.bar, bar.Time.Format("2006-01-02"), bar.Price)
	}
	if math.IsNaN(targetUnits) || targetUnits < 0 {
		targetUnits = 0
	}

	price := bar.Price
	p := s.portfolio
	delta := targetUnits - p.Units

	var fill *Fill
	if math.Abs(delta)*price >= minNotional {
		fill = s.execute(bar, delta)
	}

	p = s.portfolio
	equity := p.Equity(price)
	s.equity = append(s.equity, equity)
	s.bar++

	return StepResult{Portfolio: p, Equity: equity, Fill: fill}, nil
}

func (s *Simulator) execute(bar core.PriceBar, delta float64) *Fill {
	price := bar.Price
	p := &s.portfolio
	side := SideBuy

	if delta > 0 {
		// Cap the buy so cash covers notional and cost.
		if delta*price*(1+s.costRate) > p.Cash {
			delta = p.Cash / (price * (1 + s.costRate))
			if delta*price < minNotional {
				return nil
			}
		}
		cost := delta * price * s.costRate
		spent := delta*price + cost
		if spent > p.Cash {
			spent = p.Cash
		}

		p.CostBasis = (p.Units*p.CostBasis + delta*price) / (p.Units + delta)
		p.Units += delta
		p.Cash -= spent
		s.totalCosts += cost
		return s.record(bar, side, delta, cost)
	}

	side = SideSell
	units := math.Min(-delta, p.Units)
	notional := units * price
	cost := notional * s.costRate

	p.Cash += notional - cost
	p.Units -= units
	if p.Units*price < minNotional {
		p.Units = 0
	}
	if p.Units == 0 {
		p.CostBasis = 0
	}
	s.totalCosts += cost
	return s.record(bar, side, units, cost)
}

func (s *Simulator) record(bar core.PriceBar, side Side, units, cost float64) *Fill {
	f := Fill{
		Bar:       s.bar,
		Time:      bar.Time,
		Side:      side,
		Units:     units,
		Price:     bar.Price,
		Cost:      cost,
		CashAfter: s.portfolio.Cash,
	}
	s.fills = append(s.fills, f)
	return &f
}

// Portfolio returns the current portfolio state.
func (s *Simulator) Portfolio() Portfolio {
	return s.portfolio
}

// EquityCurve returns a copy of the equity recorded so far, one value per bar.
func (s *Simulator) EquityCurve() []float64 {
	curve := make([]float64, len(s.equity))
	copy(curve, s.equity)
	return curve
}

// Fills returns a copy of the trade ledger.
func (s *Simulator) Fills() []Fill {
	fills := make([]Fill, len(s.fills))
	copy(fills, s.fills)
	return fills
}

// TotalCosts returns the sum of transaction costs charged so far.
func (s *Simulator) TotalCosts() float64 {
	return s.totalCosts
}

// Bars returns the number of bars processed.
func (s *Simulator) Bars() int {
	return s.bar
}
