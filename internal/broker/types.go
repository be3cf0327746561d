// Package broker provides the simulated execution venue used by backtests:
// portfolio state, position sizing and bar-by-bar trade execution.
package broker

import (
	"time"
)

// Side represents the direction of a fill.
type Side string

const (
	// SideBuy increases the long position.
	SideBuy Side = "BUY"
	// SideSell reduces the long position.
	SideSell Side = "SELL"
)

// Portfolio is the state of a single-instrument, long-only account.
// It is a plain value; only Simulator.Step produces new states.
type Portfolio struct {
	// Cash is the uninvested balance. Never negative.
	Cash float64 `json:"cash"`
	// Units is the number of instrument units held. Never negative.
	Units float64 `json:"units"`
	// CostBasis is the volume-weighted average fill price of the open
	// position, excluding transaction costs. Zero when flat.
	CostBasis float64 `json:"cost_basis"`
}

// PositionValue returns the market value of the held units at price.
func (p Portfolio) PositionValue(price float64) float64 {
	return p.Units * price
}

// Equity returns the total account value (cash plus position) at price.
func (p Portfolio) Equity(price float64) float64 {
	return p.Cash + p.PositionValue(price)
}

// IsFlat reports whether no units are held.
func (p Portfolio) IsFlat() bool {
	return p.Units == 0
}

// Fill records a single executed trade.
type Fill struct {
	// Bar is the zero-based index of the bar the trade executed on.
	Bar int `json:"bar"`
	// Time is the timestamp of that bar.
	Time time.Time `json:"time"`
	// Side indicates buy or sell.
	Side Side `json:"side"`
	// Units is the absolute number of units traded.
	Units float64 `json:"units"`
	// Price is the execution price.
	Price float64 `json:"price"`
	// Cost is the transaction cost charged on the notional.
	Cost float64 `json:"cost"`
	// CashAfter is the cash balance once the fill settled.
	CashAfter float64 `json:"cash_after"`
}

// Notional returns the traded value before costs.
func (f Fill) Notional() float64 {
	return f.Units * f.Price
}
