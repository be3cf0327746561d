package core

import (
	"math"
	"time"
)

// PriceBar is a single observation of the traded instrument
type PriceBar struct {
	Time  time.Time
	Price float64
}

// IsValid checks if the bar carries a usable price
func (b PriceBar) IsValid() bool {
	return b.Price > 0 && !math.IsInf(b.Price, 1)
}

// Prices extracts the price column from a bar series
func Prices(bars []PriceBar) []float64 {
	prices := make([]float64, len(bars))
	for i, b := range bars {
		prices[i] = b.Price
	}
	return prices
}

// Action represents a trading signal action
type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
	ActionHold Action = "hold"
)

// Signal is the decision produced for one bar together with the z-score
// behind it. ZScore is zero when no score could be computed.
type Signal struct {
	Action Action
	ZScore float64
	Reason string
}

// Hold returns a HOLD signal with the given reason
func Hold(reason string) Signal {
	return Signal{Action: ActionHold, Reason: reason}
}
