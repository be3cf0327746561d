package zscore

import (
	"fmt"
	"math"

	"github.com/newthinker/meanrev/internal/core"
	"github.com/newthinker/meanrev/internal/strategy"
)

// MinStdDev is the deviation at or below which a window is treated as flat
const MinStdDev = 1e-9

// Default thresholds
const (
	DefaultBuyZScore  = -1.0
	DefaultSellZScore = 1.0
)

var _ strategy.Strategy = (*ZScore)(nil)

// ZScore implements a mean-reversion strategy on the rolling z-score
type ZScore struct {
	buyZ  float64
	sellZ float64
}

// New creates a z-score strategy. The thresholds are independent; when
// buyZ > sellZ both rules can fire and BUY wins.
func New(buyZ, sellZ float64) *ZScore {
	return &ZScore{buyZ: buyZ, sellZ: sellZ}
}

func (z *ZScore) Name() string {
	return "zscore"
}

func (z *ZScore) Description() string {
	return fmt.Sprintf("Z-Score Mean Reversion (buy < %.2f, sell > %.2f)", z.buyZ, z.sellZ)
}

// Generate scores price against the window mean and deviation
func (z *ZScore) Generate(price, mean, std float64) core.Signal {
	if std <= MinStdDev || math.IsNaN(std) {
		return core.Hold("flat_window")
	}

	score := (price - mean) / std

	switch {
	case score < z.buyZ:
		return core.Signal{Action: core.ActionBuy, ZScore: score, Reason: "zscore_below_buy"}
	case score > z.sellZ:
		return core.Signal{Action: core.ActionSell, ZScore: score, Reason: "zscore_above_sell"}
	default:
		return core.Signal{Action: core.ActionHold, ZScore: score, Reason: "within_band"}
	}
}
