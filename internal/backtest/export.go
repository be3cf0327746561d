package backtest

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"github.com/newthinker/meanrev/internal/broker"
)

// WriteEquityCSV writes one row per bar: price, equity, portfolio and signal
func WriteEquityCSV(w io.Writer, bars []BarResult) error {
	cw := csv.NewWriter(w)

	if err := cw.Write([]string{
		"bar", "time", "price", "equity", "cash", "units", "signal", "zscore", "regime",
	}); err != nil {
		return err
	}
	for _, b := range bars {
		if err := cw.Write([]string{
			strconv.Itoa(b.Index), formatTime(b.Time), formatF(b.Price), formatF(b.Equity),
			formatF(b.Portfolio.Cash), formatF(b.Portfolio.Units),
			string(b.Signal.Action), formatF(b.Signal.ZScore), string(b.Regime),
		}); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteFillsCSV writes the trade ledger
func WriteFillsCSV(w io.Writer, fills []broker.Fill) error {
	cw := csv.NewWriter(w)

	if err := cw.Write([]string{"bar", "time", "side", "units", "price", "notional", "cost", "cash_after"}); err != nil {
		return err
	}
	for _, f := range fills {
		if err := cw.Write([]string{
			strconv.Itoa(f.Bar), formatTime(f.Time), string(f.Side), formatF(f.Units),
			formatF(f.Price), formatF(f.Notional()), formatF(f.Cost), formatF(f.CashAfter),
		}); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

func formatF(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}
