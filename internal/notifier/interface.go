package notifier

import (
	"context"
	"time"

	"github.com/newthinker/meanrev/internal/backtest"
)

// Config holds notifier configuration
type Config struct {
	Type   string         `mapstructure:"type"`
	Params map[string]any `mapstructure:"params"`
}

// Summary is the condensed outcome of a run sent to notifiers
type Summary struct {
	RunID       string    `json:"run_id,omitempty"`
	Symbol      string    `json:"symbol"`
	Strategy    string    `json:"strategy"`
	StartDate   time.Time `json:"start_date"`
	EndDate     time.Time `json:"end_date"`
	Bars        int       `json:"bars"`
	Fills       int       `json:"fills"`
	Trades      int       `json:"trades"`
	WinRate     float64   `json:"win_rate"`
	FinalEquity float64   `json:"final_equity"`
	TotalReturn float64   `json:"total_return"`
	SharpeRatio float64   `json:"sharpe_ratio"`
	MaxDrawdown float64   `json:"max_drawdown"`
	CompletedAt time.Time `json:"completed_at"`
}

// NewSummary condenses res
func NewSummary(runID string, res *backtest.Result, completedAt time.Time) Summary {
	return Summary{
		RunID:       runID,
		Symbol:      res.Symbol,
		Strategy:    res.Strategy,
		StartDate:   res.StartDate,
		EndDate:     res.EndDate,
		Bars:        len(res.Bars),
		Fills:       res.Stats.TotalFills,
		Trades:      res.Stats.TotalTrades,
		WinRate:     res.Stats.WinRate,
		FinalEquity: res.Stats.FinalEquity,
		TotalReturn: res.Stats.TotalReturn,
		SharpeRatio: res.Performance.SharpeRatio,
		MaxDrawdown: res.Performance.MaxDrawdown,
		CompletedAt: completedAt,
	}
}

// Notifier delivers run summaries to an external channel
type Notifier interface {
	// Name returns the unique identifier for this notifier
	Name() string

	// Init initializes the notifier with configuration
	Init(cfg Config) error

	// Notify sends one run summary
	Notify(ctx context.Context, s Summary) error
}
