// Package forecast extends a price history with a Monte Carlo projection.
//
// Each simulated path compounds log returns drawn from a normal distribution
// whose mean and sample standard deviation match the historical log returns.
// The appended bar for a day is the mean price across all paths on that day.
package forecast

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/newthinker/meanrev/internal/core"
	"github.com/newthinker/meanrev/internal/indicator"
)

const (
	// MinHistory is the fewest bars that give a sample deviation of returns
	MinHistory = 3

	// DefaultSimulations is the number of paths averaged per forecast
	DefaultSimulations = 500
)

// Options controls a forecast
type Options struct {
	Days        int
	Simulations int
	Seed        int64
}

// Extend returns bars followed by opts.Days projected business-day bars.
// The input slice is not modified. With Days == 0 the input is returned as is.
func Extend(bars []core.PriceBar, opts Options) ([]core.PriceBar, error) {
	if opts.Days < 0 {
		return nil, core.Wrapf(core.ErrConfigInvalid, "forecast days cannot be negative, got %d", opts.Days)
	}
	if opts.Days == 0 {
		return bars, nil
	}
	if opts.Simulations < 1 {
		return nil, core.Wrapf(core.ErrConfigInvalid, "forecast simulations must be positive, got %d", opts.Simulations)
	}
	if len(bars) < MinHistory {
		return nil, core.Wrapf(core.ErrInsufficientData,
			"forecast needs at least %d bars, got %d", MinHistory, len(bars))
	}

	mu, sigma, err := logReturnMoments(bars)
	if err != nil {
		return nil, err
	}

	last := bars[len(bars)-1]
	prices := meanPath(last.Price, mu, sigma, opts)

	out := make([]core.PriceBar, len(bars), len(bars)+opts.Days)
	copy(out, bars)

	day := last.Time
	for _, p := range prices {
		day = NextBusinessDay(day)
		out = append(out, core.PriceBar{Time: day, Price: p})
	}
	return out, nil
}

func logReturnMoments(bars []core.PriceBar) (float64, float64, error) {
	rets := make([]float64, 0, len(bars)-1)
	for i, b := range bars {
		if !b.IsValid() {
			return 0, 0, core.Wrapf(core.ErrNonPositivePrice, "bar %d: price %v", i, b.Price)
		}
		if i > 0 {
			rets = append(rets, math.Log(b.Price/bars[i-1].Price))
		}
	}

	mu, sigma := indicator.MeanStdDev(rets)
	return mu, sigma, nil
}

// meanPath simulates opts.Simulations paths of opts.Days steps from start and
// averages them per day
func meanPath(start, mu, sigma float64, opts Options) []float64 {
	seed := uint64(opts.Seed)
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	sums := make([]float64, opts.Days)
	for s := 0; s < opts.Simulations; s++ {
		price := start
		for d := 0; d < opts.Days; d++ {
			price *= math.Exp(mu + sigma*rng.NormFloat64())
			sums[d] += price
		}
	}

	for d := range sums {
		sums[d] /= float64(opts.Simulations)
	}
	return sums
}

// NextBusinessDay returns the next weekday after t, keeping the time of day
func NextBusinessDay(t time.Time) time.Time {
	next := t.AddDate(0, 0, 1)
	for next.Weekday() == time.Saturday || next.Weekday() == time.Sunday {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
