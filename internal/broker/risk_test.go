package broker_test

import (
	"errors"
	"math"
	"testing"

	"github.com/newthinker/meanrev/internal/broker"
	"github.com/newthinker/meanrev/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	buy  = core.Signal{Action: core.ActionBuy, ZScore: -2}
	sell = core.Signal{Action: core.ActionSell, ZScore: 2}
	hold = core.Hold("within_band")
)

func TestNewPositionSizer_Validation(t *testing.T) {
	tests := []struct {
		pct     float64
		wantErr bool
	}{
		{0.10, false},
		{1.0, false},
		{0.0001, false},
		{0, true},
		{-0.1, true},
		{1.01, true},
		{math.NaN(), true},
	}

	for _, tt := range tests {
		s, err := broker.NewPositionSizer(tt.pct)
		if tt.wantErr {
			assert.True(t, errors.Is(err, core.ErrConfigInvalid), "pct %v should be rejected", tt.pct)
			assert.Nil(t, s)
			continue
		}
		require.NoError(t, err, "pct %v should be accepted", tt.pct)
		assert.Equal(t, tt.pct, s.MaxPositionPct())
	}
}

func TestPositionSizer_BuyFromFlat(t *testing.T) {
	s, err := broker.NewPositionSizer(0.10)
	require.NoError(t, err)

	p := broker.Portfolio{Cash: 10000}
	units := s.Size(buy, p, 90)

	// 10% of $10,000 at $90
	assert.InDelta(t, 1000.0/90.0, units, 1e-9)
}

func TestPositionSizer_BuyRespectsCapWhenAlreadyHolding(t *testing.T) {
	s, _ := broker.NewPositionSizer(0.10)

	// equity 10,000, already at the cap
	p := broker.Portfolio{Cash: 9000, Units: 10, CostBasis: 100}
	units := s.Size(buy, p, 100)

	assert.InDelta(t, 10.0, units, 1e-9, "repeated BUY must not compound past the cap")
}

func TestPositionSizer_BuyTopsUpWhenEquityGrows(t *testing.T) {
	s, _ := broker.NewPositionSizer(0.10)

	// equity grew to 20,000 through cash
	p := broker.Portfolio{Cash: 19000, Units: 10, CostBasis: 100}
	units := s.Size(buy, p, 100)

	assert.InDelta(t, 20.0, units, 1e-9)
}

func TestPositionSizer_BuyNeverReducesDriftedPosition(t *testing.T) {
	s, _ := broker.NewPositionSizer(0.10)

	// price doubled: position is now ~18% of equity
	p := broker.Portfolio{Cash: 9000, Units: 10, CostBasis: 100}
	units := s.Size(buy, p, 200)

	assert.Equal(t, 10.0, units)
}

func TestPositionSizer_BuyBoundedByCash(t *testing.T) {
	s, _ := broker.NewPositionSizer(1.0)

	p := broker.Portfolio{Cash: 500, Units: 95}
	units := s.Size(buy, p, 100)

	// cap would be 100 units; cash funds only 5 more
	assert.InDelta(t, 100.0, units, 1e-9)

	p = broker.Portfolio{Cash: 0, Units: 95}
	assert.Equal(t, 95.0, s.Size(buy, p, 100), "no cash means no additional units")
}

func TestPositionSizer_SellExitsToFlat(t *testing.T) {
	s, _ := broker.NewPositionSizer(0.10)

	assert.Zero(t, s.Size(sell, broker.Portfolio{Cash: 9000, Units: 10}, 110))
	assert.Zero(t, s.Size(sell, broker.Portfolio{Cash: 10000}, 110), "SELL when flat never opens a short")
}

func TestPositionSizer_HoldKeepsPosition(t *testing.T) {
	s, _ := broker.NewPositionSizer(0.10)

	p := broker.Portfolio{Cash: 9000, Units: 7.5}
	assert.Equal(t, 7.5, s.Size(hold, p, 100))
}

func TestPositionSizer_NonPositivePriceKeepsPosition(t *testing.T) {
	s, _ := broker.NewPositionSizer(0.10)

	p := broker.Portfolio{Cash: 9000, Units: 3}
	assert.Equal(t, 3.0, s.Size(buy, p, 0))
	assert.Equal(t, 3.0, s.Size(sell, p, -1))
}
