package forecast

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newthinker/meanrev/internal/core"
)

// friday 2024-01-05
var friday = time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)

func history(prices ...float64) []core.PriceBar {
	bars := make([]core.PriceBar, len(prices))
	for i, p := range prices {
		bars[i] = core.PriceBar{Time: friday.AddDate(0, 0, i-len(prices)+1), Price: p}
	}
	return bars
}

func TestExtend_ZeroDaysReturnsInput(t *testing.T) {
	bars := history(100, 101)

	out, err := Extend(bars, Options{Days: 0})
	require.NoError(t, err)
	assert.Equal(t, bars, out)
}

func TestExtend_ConstantGrowth(t *testing.T) {
	// identical log returns give zero deviation, so every path is the same
	bars := history(100, 110, 121)

	out, err := Extend(bars, Options{Days: 2, Simulations: 10, Seed: 42})
	require.NoError(t, err)
	require.Len(t, out, 5)

	assert.Equal(t, bars, out[:3])
	assert.InDelta(t, 133.1, out[3].Price, 1e-9)
	assert.InDelta(t, 146.41, out[4].Price, 1e-9)
}

func TestExtend_BusinessDays(t *testing.T) {
	out, err := Extend(history(100, 102, 101, 103), Options{Days: 6, Simulations: 20, Seed: 1})
	require.NoError(t, err)

	projected := out[4:]
	require.Len(t, projected, 6)
	assert.Equal(t, time.Monday, projected[0].Time.Weekday())
	assert.Equal(t, friday.AddDate(0, 0, 3), projected[0].Time)
	assert.Equal(t, friday.AddDate(0, 0, 10), projected[5].Time)
	for _, b := range projected {
		assert.NotEqual(t, time.Saturday, b.Time.Weekday())
		assert.NotEqual(t, time.Sunday, b.Time.Weekday())
		assert.True(t, b.IsValid())
	}
}

func TestExtend_Deterministic(t *testing.T) {
	bars := history(100, 97, 104, 99, 101, 108)
	opts := Options{Days: 30, Simulations: 200, Seed: 42}

	a, err := Extend(bars, opts)
	require.NoError(t, err)
	b, err := Extend(bars, opts)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	opts.Seed = 7
	c, err := Extend(bars, opts)
	require.NoError(t, err)
	assert.NotEqual(t, a[len(a)-1].Price, c[len(c)-1].Price)
}

func TestExtend_DoesNotModifyInput(t *testing.T) {
	bars := history(100, 97, 104)
	orig := append([]core.PriceBar(nil), bars...)

	_, err := Extend(bars, Options{Days: 5, Simulations: 5, Seed: 3})
	require.NoError(t, err)
	assert.Equal(t, orig, bars)
}

func TestExtend_Errors(t *testing.T) {
	tests := []struct {
		name string
		bars []core.PriceBar
		opts Options
		want error
	}{
		{"negative days", history(1, 2, 3), Options{Days: -1, Simulations: 1}, core.ErrConfigInvalid},
		{"no simulations", history(1, 2, 3), Options{Days: 5}, core.ErrConfigInvalid},
		{"short history", history(1, 2), Options{Days: 5, Simulations: 1}, core.ErrInsufficientData},
		{"bad price", history(1, 0, 3), Options{Days: 5, Simulations: 1}, core.ErrNonPositivePrice},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Extend(tt.bars, tt.opts)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestNextBusinessDay(t *testing.T) {
	tests := []struct {
		in   time.Time
		want time.Weekday
		days int
	}{
		{friday, time.Monday, 3},
		{friday.AddDate(0, 0, 1), time.Monday, 2},
		{friday.AddDate(0, 0, 2), time.Monday, 1},
		{friday.AddDate(0, 0, -1), time.Friday, 1},
	}

	for _, tt := range tests {
		got := NextBusinessDay(tt.in)
		assert.Equal(t, tt.want, got.Weekday(), "from %s", tt.in.Weekday())
		assert.Equal(t, tt.days, int(math.Round(got.Sub(tt.in).Hours()/24)))
	}
}
