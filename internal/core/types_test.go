package core

import (
	"math"
	"testing"
	"time"
)

func TestPriceBar_IsValid(t *testing.T) {
	tests := []struct {
		price float64
		want  bool
	}{
		{100, true},
		{0.0001, true},
		{0, false},
		{-5, false},
		{math.Inf(1), false},
		{math.NaN(), false},
	}

	for _, tt := range tests {
		b := PriceBar{Time: time.Now(), Price: tt.price}
		if got := b.IsValid(); got != tt.want {
			t.Errorf("PriceBar{Price: %v}.IsValid() = %v, want %v", tt.price, got, tt.want)
		}
	}
}

func TestPrices(t *testing.T) {
	now := time.Now()
	bars := []PriceBar{
		{Time: now, Price: 10},
		{Time: now.AddDate(0, 0, 1), Price: 11},
		{Time: now.AddDate(0, 0, 2), Price: 12.5},
	}

	got := Prices(bars)
	want := []float64{10, 11, 12.5}
	if len(got) != len(want) {
		t.Fatalf("expected %d prices, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("prices[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestAction_Constants(t *testing.T) {
	actions := []Action{ActionBuy, ActionSell, ActionHold}
	expected := []string{"buy", "sell", "hold"}

	for i, a := range actions {
		if string(a) != expected[i] {
			t.Errorf("expected %s, got %s", expected[i], a)
		}
	}
}

func TestHold(t *testing.T) {
	s := Hold("warming_up")
	if s.Action != ActionHold {
		t.Errorf("expected hold, got %s", s.Action)
	}
	if s.Reason != "warming_up" {
		t.Errorf("expected reason warming_up, got %s", s.Reason)
	}
	if s.ZScore != 0 {
		t.Errorf("expected zero z-score, got %v", s.ZScore)
	}
}
