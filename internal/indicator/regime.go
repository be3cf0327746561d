package indicator

import (
	"math"

	"github.com/newthinker/meanrev/internal/core"
)

// Regime labels the volatility state of the market at a bar
type Regime string

const (
	RegimeHighVolTrend Regime = "high_vol_trend"
	RegimeLowVolRange  Regime = "low_vol_range"
	RegimeMidVolTrend  Regime = "mid_vol_trend"
)

// ClassifyRegimes labels every bar from the rolling volatility and drift of
// simple returns over window bars. The first return is taken as zero. Bars
// whose window is not yet full have undefined volatility and fall through to
// RegimeMidVolTrend.
func ClassifyRegimes(prices []float64, window int, volThreshold float64) ([]Regime, error) {
	stats, err := NewRollingStats(window)
	if err != nil {
		return nil, err
	}
	if volThreshold < 0 {
		return nil, core.Wrapf(core.ErrConfigInvalid, "vol_threshold cannot be negative, got %f", volThreshold)
	}

	regimes := make([]Regime, len(prices))
	for i := range prices {
		var ret float64
		if i > 0 && prices[i-1] != 0 {
			ret = prices[i]/prices[i-1] - 1
		}

		drift, vol, ready := stats.Update(ret)
		switch {
		case !ready:
			regimes[i] = RegimeMidVolTrend
		case vol > volThreshold && math.Abs(drift) > 0:
			regimes[i] = RegimeHighVolTrend
		case vol <= volThreshold:
			regimes[i] = RegimeLowVolRange
		default:
			regimes[i] = RegimeMidVolTrend
		}
	}

	return regimes, nil
}

// CountRegimes tallies bars per regime
func CountRegimes(regimes []Regime) map[Regime]int {
	counts := make(map[Regime]int)
	for _, r := range regimes {
		counts[r]++
	}
	return counts
}
