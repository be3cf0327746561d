package backtest

import (
	"math"
	"time"

	"github.com/newthinker/meanrev/internal/broker"
	"github.com/newthinker/meanrev/internal/core"
	"github.com/newthinker/meanrev/internal/indicator"
)

// Params is the immutable parameter set of a single backtest run
type Params struct {
	InitialCapital  float64 `json:"initial_capital"`
	Lookback        int     `json:"lookback"`
	BuyZScore       float64 `json:"buy_zscore"`
	SellZScore      float64 `json:"sell_zscore"`
	MaxPositionPct  float64 `json:"max_position_pct"`
	TransactionCost float64 `json:"transaction_cost"`
	PeriodsPerYear  float64 `json:"periods_per_year"`
	// RandomSeed is carried for stochastic extensions (price-path
	// forecasting); the simulation itself is deterministic.
	RandomSeed int64 `json:"random_seed"`
}

// DefaultParams returns the standard parameter set
func DefaultParams() Params {
	return Params{
		InitialCapital:  10000,
		Lookback:        20,
		BuyZScore:       -1.0,
		SellZScore:      1.0,
		MaxPositionPct:  broker.DefaultMaxPositionPct,
		TransactionCost: broker.DefaultTransactionCost,
		PeriodsPerYear:  252,
		RandomSeed:      42,
	}
}

// Validate checks every parameter before any bar is processed
func (p Params) Validate() error {
	if math.IsNaN(p.InitialCapital) || math.IsInf(p.InitialCapital, 0) || p.InitialCapital <= 0 {
		return core.Wrapf(core.ErrConfigInvalid, "initial_capital must be positive, got %f", p.InitialCapital)
	}
	if p.Lookback < 2 {
		return core.Wrapf(core.ErrConfigInvalid, "lookback must be >= 2, got %d", p.Lookback)
	}
	if math.IsNaN(p.BuyZScore) || math.IsNaN(p.SellZScore) {
		return core.Wrapf(core.ErrConfigInvalid, "z-score thresholds must be numbers")
	}
	if math.IsNaN(p.MaxPositionPct) || p.MaxPositionPct <= 0 || p.MaxPositionPct > 1 {
		return core.Wrapf(core.ErrConfigInvalid, "max_position_pct must be in (0, 1], got %f", p.MaxPositionPct)
	}
	if math.IsNaN(p.TransactionCost) || p.TransactionCost < 0 || p.TransactionCost >= 1 {
		return core.Wrapf(core.ErrConfigInvalid, "transaction_cost must be in [0, 1), got %f", p.TransactionCost)
	}
	if math.IsNaN(p.PeriodsPerYear) || p.PeriodsPerYear <= 0 {
		return core.Wrapf(core.ErrConfigInvalid, "periods_per_year must be positive, got %f", p.PeriodsPerYear)
	}
	return nil
}

// BarResult captures the engine state after processing one bar
type BarResult struct {
	Index       int              `json:"index"`
	Time        time.Time        `json:"time"`
	Price       float64          `json:"price"`
	Mean        float64          `json:"mean"`
	StdDev      float64          `json:"std_dev"`
	Ready       bool             `json:"ready"`
	Signal      core.Signal      `json:"signal"`
	TargetUnits float64          `json:"target_units"`
	Portfolio   broker.Portfolio `json:"portfolio"`
	Equity      float64          `json:"equity"`
	Fill        *broker.Fill     `json:"fill,omitempty"`
	Regime      indicator.Regime `json:"regime,omitempty"`
}

// Result holds the complete backtest output
type Result struct {
	Strategy    string                   `json:"strategy"`
	Symbol      string                   `json:"symbol"`
	Params      Params                   `json:"params"`
	StartDate   time.Time                `json:"start_date"`
	EndDate     time.Time                `json:"end_date"`
	Bars        []BarResult              `json:"bars"`
	EquityCurve []float64                `json:"equity_curve"`
	Fills       []broker.Fill            `json:"fills"`
	Trades      []Trade                  `json:"trades"`
	Performance Performance              `json:"performance"`
	Stats       Stats                    `json:"stats"`
	Regimes     map[indicator.Regime]int `json:"regimes,omitempty"`
}

// Performance holds the risk-adjusted metrics derived from the equity curve
type Performance struct {
	SharpeRatio float64 `json:"sharpe_ratio"` // annualized, zero risk-free rate
	MaxDrawdown float64 `json:"max_drawdown"` // non-positive fraction of the running peak
}

// Trade is a round trip from flat to long and back to flat
type Trade struct {
	EntryTime  time.Time `json:"entry_time"`
	ExitTime   time.Time `json:"exit_time"`
	EntryPrice float64   `json:"entry_price"` // volume-weighted over entry fills
	ExitPrice  float64   `json:"exit_price"`
	Units      float64   `json:"units"`
	Costs      float64   `json:"costs"`
	PnL        float64   `json:"pnl"`    // net of costs
	Return     float64   `json:"return"` // PnL over entry notional
	Closed     bool      `json:"closed"` // false if still open at the last bar
}

// Stats holds performance statistics
type Stats struct {
	TotalFills    int     `json:"total_fills"`
	TotalTrades   int     `json:"total_trades"`
	WinningTrades int     `json:"winning_trades"`
	LosingTrades  int     `json:"losing_trades"`
	WinRate       float64 `json:"win_rate"`     // percentage of closed trades with positive PnL
	TotalReturn   float64 `json:"total_return"` // final equity over initial, minus one
	TotalCosts    float64 `json:"total_costs"`
	FinalEquity   float64 `json:"final_equity"`
	Exposure      float64 `json:"exposure"` // fraction of bars holding a position
	SharpeRatio   float64 `json:"sharpe_ratio"`
	MaxDrawdown   float64 `json:"max_drawdown"`
}

// IsWin returns true if the trade was profitable
func (t Trade) IsWin() bool {
	return t.PnL > 0
}
