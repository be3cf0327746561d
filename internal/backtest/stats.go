package backtest

import (
	"math"

	"github.com/newthinker/meanrev/internal/broker"
	"github.com/newthinker/meanrev/internal/core"
	"github.com/newthinker/meanrev/internal/indicator"
)

// minReturnStdDev is the return deviation below which Sharpe is reported as 0
const minReturnStdDev = 1e-12

// Evaluate computes the annualized Sharpe ratio and maximum drawdown of an
// equity curve. Returns are simple bar-over-bar returns; Sharpe uses their
// sample standard deviation and assumes a zero risk-free rate.
func Evaluate(curve []float64, periodsPerYear float64) (Performance, error) {
	if len(curve) < 2 {
		return Performance{}, core.Wrapf(core.ErrInsufficientData,
			"need at least 2 equity points, got %d", len(curve))
	}
	if math.IsNaN(periodsPerYear) || periodsPerYear <= 0 {
		return Performance{}, core.Wrapf(core.ErrConfigInvalid,
			"periods_per_year must be positive, got %f", periodsPerYear)
	}
	for i, v := range curve {
		if !(v > 0) {
			return Performance{}, core.Wrapf(core.ErrNonPositiveEquity, "equity[%d] = %v", i, v)
		}
	}

	return Performance{
		SharpeRatio: calculateSharpeRatio(returns(curve), periodsPerYear),
		MaxDrawdown: calculateMaxDrawdown(curve),
	}, nil
}

func returns(curve []float64) []float64 {
	rets := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		rets = append(rets, curve[i]/curve[i-1]-1)
	}
	return rets
}

func calculateSharpeRatio(rets []float64, periodsPerYear float64) float64 {
	mean, std := indicator.MeanStdDev(rets)
	if std < minReturnStdDev {
		return 0
	}
	return mean / std * math.Sqrt(periodsPerYear)
}

// calculateMaxDrawdown returns the deepest decline from a running peak as a
// non-positive fraction
func calculateMaxDrawdown(curve []float64) float64 {
	var maxDD float64
	peak := curve[0]

	for _, v := range curve {
		if v > peak {
			peak = v
		}
		if dd := (v - peak) / peak; dd < maxDD {
			maxDD = dd
		}
	}

	return maxDD
}

// CalculateStats summarizes the fill ledger and equity curve of a run
func CalculateStats(fills []broker.Fill, bars []BarResult, perf Performance, initialCapital, totalCosts float64) Stats {
	trades := tradesFromFills(fills, bars)

	var winning, losing int
	for _, t := range trades {
		if !t.Closed {
			continue
		}
		if t.IsWin() {
			winning++
		} else {
			losing++
		}
	}

	var winRate float64
	if closed := winning + losing; closed > 0 {
		winRate = float64(winning) / float64(closed) * 100
	}

	stats := Stats{
		TotalFills:    len(fills),
		TotalTrades:   len(trades),
		WinningTrades: winning,
		LosingTrades:  losing,
		WinRate:       winRate,
		TotalCosts:    totalCosts,
		FinalEquity:   initialCapital,
		SharpeRatio:   perf.SharpeRatio,
		MaxDrawdown:   perf.MaxDrawdown,
	}

	if len(bars) > 0 {
		stats.FinalEquity = bars[len(bars)-1].Equity
		var held int
		for _, b := range bars {
			if b.Portfolio.Units > 0 {
				held++
			}
		}
		stats.Exposure = float64(held) / float64(len(bars))
	}
	if initialCapital > 0 {
		stats.TotalReturn = stats.FinalEquity/initialCapital - 1
	}

	return stats
}

// tradesFromFills groups fills into flat-to-flat round trips. A trip still
// open after the last fill is marked to the last bar's price.
func tradesFromFills(fills []broker.Fill, bars []BarResult) []Trade {
	var trades []Trade
	var open *Trade
	var held, entryNotional float64

	for _, f := range fills {
		switch f.Side {
		case broker.SideBuy:
			if open == nil {
				open = &Trade{EntryTime: f.Time}
				entryNotional = 0
			}
			held += f.Units
			entryNotional += f.Notional()
			open.Units += f.Units
			open.Costs += f.Cost
			open.EntryPrice = entryNotional / open.Units
			open.PnL -= f.Notional() + f.Cost
		case broker.SideSell:
			if open == nil {
				continue
			}
			held -= f.Units
			open.Costs += f.Cost
			open.PnL += f.Notional() - f.Cost
			open.ExitPrice = f.Price
			open.ExitTime = f.Time
			if held*f.Price < 1e-8 {
				held = 0
				open.Closed = true
				open.Return = open.PnL / entryNotional
				trades = append(trades, *open)
				open = nil
			}
		}
	}

	if open != nil {
		if len(bars) > 0 {
			last := bars[len(bars)-1]
			open.ExitPrice = last.Price
			open.ExitTime = last.Time
			open.PnL += held * last.Price
		}
		if entryNotional > 0 {
			open.Return = open.PnL / entryNotional
		}
		trades = append(trades, *open)
	}

	return trades
}
