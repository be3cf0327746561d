// Package report renders backtest results for the terminal.
package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/newthinker/meanrev/internal/backtest"
	"github.com/newthinker/meanrev/internal/indicator"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7C3AED")).
			Padding(0, 1)

	boxStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#3B82F6")).
			Padding(0, 2)

	sectionStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#3B82F6"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6B7280"))

	gainStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#10B981")).
			Bold(true)

	lossStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#EF4444")).
			Bold(true)
)

// Render formats a run as a bordered summary. runID may be empty.
func Render(res *backtest.Result, runID string) string {
	var b strings.Builder

	b.WriteString(sectionStyle.Render("Run") + "\n")
	if runID != "" {
		row(&b, "ID", runID)
	}
	row(&b, "Symbol", res.Symbol)
	row(&b, "Strategy", res.Strategy)
	row(&b, "Period", fmt.Sprintf("%s to %s", res.StartDate.Format("2006-01-02"), res.EndDate.Format("2006-01-02")))
	row(&b, "Bars", fmt.Sprint(len(res.EquityCurve)))

	p := res.Params
	b.WriteString("\n" + sectionStyle.Render("Parameters") + "\n")
	row(&b, "Lookback", fmt.Sprint(p.Lookback))
	row(&b, "Buy / sell z", fmt.Sprintf("%g / %g", p.BuyZScore, p.SellZScore))
	row(&b, "Max position", Percent(p.MaxPositionPct))
	row(&b, "Cost rate", Percent(p.TransactionCost))

	s := res.Stats
	b.WriteString("\n" + sectionStyle.Render("Performance") + "\n")
	row(&b, "Initial capital", Money(p.InitialCapital))
	row(&b, "Final equity", Money(s.FinalEquity))
	row(&b, "Total return", signed(s.TotalReturn, Percent(s.TotalReturn)))
	row(&b, "Sharpe ratio", signed(res.Performance.SharpeRatio, decimal.NewFromFloat(res.Performance.SharpeRatio).StringFixed(3)))
	row(&b, "Max drawdown", signed(res.Performance.MaxDrawdown, Percent(res.Performance.MaxDrawdown)))

	b.WriteString("\n" + sectionStyle.Render("Trading") + "\n")
	row(&b, "Fills", fmt.Sprint(s.TotalFills))
	row(&b, "Round trips", fmt.Sprintf("%d (%d won, %d lost)", s.TotalTrades, s.WinningTrades, s.LosingTrades))
	row(&b, "Win rate", decimal.NewFromFloat(s.WinRate).StringFixed(1)+"%")
	row(&b, "Exposure", Percent(s.Exposure))
	row(&b, "Total costs", Money(s.TotalCosts))

	if len(res.Regimes) > 0 {
		b.WriteString("\n" + sectionStyle.Render("Regimes") + "\n")
		for _, r := range sortedRegimes(res.Regimes) {
			row(&b, string(r), fmt.Sprint(res.Regimes[r]))
		}
	}

	title := titleStyle.Render("Mean Reversion Backtest")
	return lipgloss.JoinVertical(lipgloss.Left, title, boxStyle.Render(strings.TrimRight(b.String(), "\n")))
}

func row(b *strings.Builder, label, value string) {
	b.WriteString(labelStyle.Render(fmt.Sprintf("%-16s", label)))
	b.WriteString(value)
	b.WriteString("\n")
}

func signed(v float64, text string) string {
	switch {
	case v > 0:
		return gainStyle.Render(text)
	case v < 0:
		return lossStyle.Render(text)
	}
	return text
}

func sortedRegimes(counts map[indicator.Regime]int) []indicator.Regime {
	out := make([]indicator.Regime, 0, len(counts))
	for r := range counts {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

var printer = message.NewPrinter(language.English)

// Money formats v as dollars with two decimals and thousands separators
func Money(v float64) string {
	d := decimal.NewFromFloat(v).Round(2)
	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Abs()
	}

	whole := d.Truncate(0)
	cents := d.Sub(whole).Shift(2).IntPart()
	return sign + "$" + printer.Sprintf("%d", whole.IntPart()) + fmt.Sprintf(".%02d", cents)
}

// Percent formats a fraction as a percentage with two decimals
func Percent(v float64) string {
	return decimal.NewFromFloat(v).Shift(2).StringFixed(2) + "%"
}
