package backtest

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/newthinker/meanrev/internal/broker"
	"github.com/newthinker/meanrev/internal/core"
	"github.com/newthinker/meanrev/internal/indicator"
	"github.com/newthinker/meanrev/internal/strategy"
	"github.com/newthinker/meanrev/internal/strategy/zscore"
)

// ErrEngineUsed is returned when Run is called on an engine that already
// processed bars. Engines are single-use.
var ErrEngineUsed = errors.New("backtest: engine already used")

// Recorder receives run telemetry. metrics.Registry implements it.
type Recorder interface {
	RecordBar()
	RecordSignal(strategy, action string)
	RecordFill(side string, cost float64)
	RecordBacktest(status string, duration float64)
	RecordPerformance(sharpe, maxDrawdown, finalEquity float64)
}

type nopRecorder struct{}

func (nopRecorder) RecordBar() {}
func (nopRecorder) RecordSignal(string, string) {}
func (nopRecorder) RecordFill(string, float64) {}
func (nopRecorder) RecordBacktest(string, float64) {}
func (nopRecorder) RecordPerformance(float64, float64, float64) {}

// Option configures an Engine
type Option func(*Engine)

// WithLogger sets the engine logger
func WithLogger(log *zap.Logger) Option {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// WithRecorder sets the telemetry sink
func WithRecorder(r Recorder) Option {
	return func(e *Engine) {
		if r != nil {
			e.recorder = r
		}
	}
}

// WithStrategy replaces the default z-score strategy
func WithStrategy(s strategy.Strategy) Option {
	return func(e *Engine) {
		if s != nil {
			e.strategy = s
		}
	}
}

// WithRegimes enables per-bar regime labelling in Run
func WithRegimes(window int, volThreshold float64) Option {
	return func(e *Engine) {
		e.regimeWindow = window
		e.regimeVol = volThreshold
	}
}

// Engine walks a price series bar by bar: rolling statistics, signal,
// position sizing, simulated execution. One Engine serves one run; it is not
// safe for concurrent use, but independent engines may run in parallel.
type Engine struct {
	params   Params
	stats    *indicator.RollingStats
	strategy strategy.Strategy
	sizer    *broker.PositionSizer
	sim      *broker.Simulator
	log      *zap.Logger
	recorder Recorder

	regimeWindow int
	regimeVol    float64
}

// NewEngine validates p and builds a fresh engine
func NewEngine(p Params, opts ...Option) (*Engine, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	stats, err := indicator.NewRollingStats(p.Lookback)
	if err != nil {
		return nil, err
	}
	sizer, err := broker.NewPositionSizer(p.MaxPositionPct)
	if err != nil {
		return nil, err
	}
	sim, err := broker.NewSimulator(p.InitialCapital, p.TransactionCost)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		params:   p,
		stats:    stats,
		strategy: zscore.New(p.BuyZScore, p.SellZScore),
		sizer:    sizer,
		sim:      sim,
		log:      zap.NewNop(),
		recorder: nopRecorder{},
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.regimeWindow != 0 {
		if _, err := indicator.ClassifyRegimes(nil, e.regimeWindow, e.regimeVol); err != nil {
			return nil, err
		}
	}

	return e, nil
}

// Params returns the engine parameters
func (e *Engine) Params() Params {
	return e.params
}

// Portfolio returns the current simulated portfolio
func (e *Engine) Portfolio() broker.Portfolio {
	return e.sim.Portfolio()
}

// EquityCurve returns the equity recorded so far, one value per bar
func (e *Engine) EquityCurve() []float64 {
	return e.sim.EquityCurve()
}

// Step processes a single bar. No signal is produced until the rolling
// window is full; until then the bar is a HOLD.
func (e *Engine) Step(bar core.PriceBar) (BarResult, error) {
	if !bar.IsValid() {
		return BarResult{}, core.Wrapf(core.ErrNonPositivePrice,
			"bar %d at %s: price %v", e.sim.Bars(), bar.Time.Format("2006-01-02"), bar.Price)
	}

	index := e.sim.Bars()
	mean, std, ready := e.stats.Update(bar.Price)

	sig := core.Hold("warming_up")
	if ready {
		sig = e.strategy.Generate(bar.Price, mean, std)
	}

	before := e.sim.Portfolio()
	target := e.sizer.Size(sig, before, bar.Price)

	step, err := e.sim.Step(bar, target)
	if err != nil {
		return BarResult{}, err
	}

	e.recorder.RecordBar()
	e.recorder.RecordSignal(e.strategy.Name(), string(sig.Action))
	if step.Fill != nil {
		e.recorder.RecordFill(string(step.Fill.Side), step.Fill.Cost)
		e.log.Debug("fill",
			zap.Int("bar", index),
			zap.String("side", string(step.Fill.Side)),
			zap.Float64("units", step.Fill.Units),
			zap.Float64("price", step.Fill.Price),
			zap.Float64("cost", step.Fill.Cost),
			zap.Float64("zscore", sig.ZScore),
		)
	}

	return BarResult{
		Index:       index,
		Time:        bar.Time,
		Price:       bar.Price,
		Mean:        mean,
		StdDev:      std,
		Ready:       ready,
		Signal:      sig,
		TargetUnits: target,
		Portfolio:   step.Portfolio,
		Equity:      step.Equity,
		Fill:        step.Fill,
	}, nil
}

// Run folds Step over bars and evaluates the resulting equity curve. Any
// invalid bar aborts the run without a partial result.
func (e *Engine) Run(ctx context.Context, symbol string, bars []core.PriceBar) (*Result, error) {
	started := time.Now()

	res, err := e.run(ctx, symbol, bars)
	elapsed := time.Since(started).Seconds()
	if err != nil {
		e.recorder.RecordBacktest("failed", elapsed)
		e.log.Warn("backtest failed", zap.String("symbol", symbol), zap.Error(err))
		return nil, err
	}

	e.recorder.RecordBacktest("success", elapsed)
	e.recorder.RecordPerformance(res.Performance.SharpeRatio, res.Performance.MaxDrawdown, res.Stats.FinalEquity)
	e.log.Info("backtest complete",
		zap.String("symbol", symbol),
		zap.String("strategy", res.Strategy),
		zap.Int("bars", len(res.Bars)),
		zap.Int("fills", res.Stats.TotalFills),
		zap.Float64("final_equity", res.Stats.FinalEquity),
		zap.Float64("sharpe", res.Performance.SharpeRatio),
		zap.Float64("max_drawdown", res.Performance.MaxDrawdown),
		zap.Duration("elapsed", time.Since(started)),
	)
	return res, nil
}

func (e *Engine) run(ctx context.Context, symbol string, bars []core.PriceBar) (*Result, error) {
	if e.sim.Bars() > 0 {
		return nil, ErrEngineUsed
	}
	if len(bars) < e.params.Lookback {
		return nil, core.Wrapf(core.ErrInsufficientData,
			"need at least %d bars for lookback, got %d", e.params.Lookback, len(bars))
	}

	var regimes []indicator.Regime
	if e.regimeWindow != 0 {
		var err error
		regimes, err = indicator.ClassifyRegimes(core.Prices(bars), e.regimeWindow, e.regimeVol)
		if err != nil {
			return nil, err
		}
	}

	results := make([]BarResult, 0, len(bars))
	for i, bar := range bars {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		br, err := e.Step(bar)
		if err != nil {
			return nil, err
		}
		if regimes != nil {
			br.Regime = regimes[i]
		}
		results = append(results, br)
	}

	curve := e.sim.EquityCurve()
	perf, err := Evaluate(curve, e.params.PeriodsPerYear)
	if err != nil {
		return nil, err
	}

	fills := e.sim.Fills()
	res := &Result{
		Strategy:    e.strategy.Name(),
		Symbol:      symbol,
		Params:      e.params,
		StartDate:   bars[0].Time,
		EndDate:     bars[len(bars)-1].Time,
		Bars:        results,
		EquityCurve: curve,
		Fills:       fills,
		Trades:      tradesFromFills(fills, results),
		Performance: perf,
		Stats:       CalculateStats(fills, results, perf, e.params.InitialCapital, e.sim.TotalCosts()),
	}
	if regimes != nil {
		res.Regimes = indicator.CountRegimes(regimes)
	}

	return res, nil
}
