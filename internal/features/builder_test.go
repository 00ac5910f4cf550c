package features

import (
	"errors"
	"math"
	"testing"
	"time"

	"bondwatch/internal/domain"
	"bondwatch/internal/rolling"
)

func day(n int) time.Time {
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func series(vals map[int]float64) domain.Series {
	var out domain.Series
	for n, v := range vals {
		out = append(out, domain.Point{Time: day(n), Value: v})
	}
	return out.Sorted()
}

func TestNewBuilderRejectsBadWindow(t *testing.T) {
	if _, err := NewBuilder(Params{VolWindow: 1}); !errors.Is(err, rolling.ErrInvalidWindow) {
		t.Fatalf("expected ErrInvalidWindow, got %v", err)
	}
}

func TestSpreadAlignedDates(t *testing.T) {
	b, err := NewBuilder(DefaultParams())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	short := series(map[int]float64{0: 4.5, 1: 4.6, 2: 4.7})
	long := series(map[int]float64{0: 4.2, 1: 4.1, 2: 4.0})

	h := b.Build(Inputs{ShortYield: short, LongYield: long})
	if len(h.Spread) != 3 {
		t.Fatalf("expected 3 spread points, got %d", len(h.Spread))
	}
	if math.Abs(h.Spread[0].Value-(-0.3)) > 1e-12 {
		t.Fatalf("expected spread -0.3, got %g", h.Spread[0].Value)
	}
	if math.Abs(h.Spread[2].Value-(-0.7)) > 1e-12 {
		t.Fatalf("expected spread -0.7, got %g", h.Spread[2].Value)
	}
}

func TestSpreadForwardFillCap(t *testing.T) {
	p := DefaultParams()
	p.MaxForwardFill = 2
	b, _ := NewBuilder(p)

	// short is missing days 1-4; fill tolerance covers days 1-2 only.
	short := series(map[int]float64{0: 4.0, 5: 4.5})
	long := series(map[int]float64{0: 4.5, 1: 4.5, 2: 4.5, 3: 4.5, 4: 4.5, 5: 4.5})

	h := b.Build(Inputs{ShortYield: short, LongYield: long})
	if len(h.Spread) != 4 {
		t.Fatalf("expected days 0,1,2,5 to survive, got %d points", len(h.Spread))
	}
	for _, pt := range h.Spread[:3] {
		if math.Abs(pt.Value-0.5) > 1e-12 {
			t.Fatalf("expected forward-filled spread 0.5, got %g at %s", pt.Value, pt.Time)
		}
	}
	if !h.Spread[3].Time.Equal(day(5)) {
		t.Fatalf("expected final point at day 5, got %s", h.Spread[3].Time)
	}
}

func TestSpreadNoOverlapIsEmptyNotError(t *testing.T) {
	b, _ := NewBuilder(DefaultParams())
	short := series(map[int]float64{0: 4.0, 1: 4.1})
	long := series(map[int]float64{100: 4.5, 101: 4.6})

	h := b.Build(Inputs{ShortYield: short, LongYield: long})
	if len(h.Spread) != 0 {
		t.Fatalf("expected no aligned points for disjoint calendars, got %d", len(h.Spread))
	}
}

func TestVolatilityDropsWarmup(t *testing.T) {
	p := DefaultParams()
	p.VolWindow = 3
	b, _ := NewBuilder(p)

	prices := make(domain.Series, 0, 8)
	vals := []float64{100, 101, 99, 102, 98, 103, 97, 104}
	for i, v := range vals {
		prices = append(prices, domain.Point{Time: day(i), Value: v})
	}

	h := b.Build(Inputs{BondPrices: prices})
	// 7 returns, window 3: first computed value indexes return 2 (= day 3).
	if len(h.Volatility) != 5 {
		t.Fatalf("expected 5 volatility points, got %d", len(h.Volatility))
	}
	if !h.Volatility[0].Time.Equal(day(3)) {
		t.Fatalf("expected first vol point at day 3, got %s", h.Volatility[0].Time)
	}
	for _, pt := range h.Volatility {
		if pt.Value <= 0 {
			t.Fatalf("expected positive annualized vol, got %g at %s", pt.Value, pt.Time)
		}
	}
}

func TestCreditSpreadSign(t *testing.T) {
	b, _ := NewBuilder(DefaultParams())

	// Safe flat, risky selling off: proxy must be positive (risk-off).
	safe := series(map[int]float64{0: 100, 1: 100, 2: 100})
	risky := series(map[int]float64{0: 100, 1: 98, 2: 95})

	h := b.Build(Inputs{SafePrices: safe, RiskyPrices: risky})
	if len(h.Credit) != 2 {
		t.Fatalf("expected 2 credit points, got %d", len(h.Credit))
	}
	for _, pt := range h.Credit {
		if pt.Value <= 0 {
			t.Fatalf("expected positive credit spread when risky underperforms, got %g", pt.Value)
		}
	}
}

func TestBuildEmptyInputs(t *testing.T) {
	b, _ := NewBuilder(DefaultParams())
	h := b.Build(Inputs{})
	if !h.Empty() {
		t.Fatalf("expected empty history, got %+v", h)
	}
}
