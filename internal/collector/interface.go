package collector

import (
	"context"
	"sort"
	"time"

	"github.com/newthinker/meanrev/internal/core"
)

// HistoryProvider loads a daily closing-price series for one symbol
type HistoryProvider interface {
	Name() string

	// FetchHistory returns bars in chronological order. A zero start or end
	// leaves that side of the range open.
	FetchHistory(ctx context.Context, symbol string, start, end time.Time) ([]core.PriceBar, error)
}

// Clip keeps the bars inside [start, end] and sorts them by time. Bars with
// equal timestamps keep their input order.
func Clip(bars []core.PriceBar, start, end time.Time) []core.PriceBar {
	out := make([]core.PriceBar, 0, len(bars))
	for _, b := range bars {
		if !start.IsZero() && b.Time.Before(start) {
			continue
		}
		if !end.IsZero() && b.Time.After(end) {
			continue
		}
		out = append(out, b)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Time.Before(out[j].Time)
	})
	return out
}
