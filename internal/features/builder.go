// Package features derives the bond-stress inputs (yield-curve spread,
// bond volatility, credit-spread proxy) from raw yield and price series.
package features

import (
	"fmt"
	"time"

	"bondwatch/internal/domain"
	"bondwatch/internal/rolling"
)

// Inputs are the raw series one scoring cycle works from. All series are
// daily closes, ascending, immutable for the duration of the cycle.
type Inputs struct {
	ShortYield  domain.Series
	LongYield   domain.Series
	BondPrices  domain.Series // volatility proxy, e.g. TLT closes
	RiskyPrices domain.Series // e.g. HYG closes
	SafePrices  domain.Series // e.g. LQD closes
}

// History holds the derived feature series, each aligned to the dates its
// own inputs share. Components may be empty when their inputs were.
type History struct {
	Spread     domain.Series // long yield − short yield
	Volatility domain.Series // annualized rolling std of proxy returns
	Credit     domain.Series // safe return − risky return (positive = risk-off)
}

func (h History) Empty() bool {
	return len(h.Spread) == 0 && len(h.Volatility) == 0 && len(h.Credit) == 0
}

type Params struct {
	VolWindow      int     // rolling window for the volatility proxy
	PeriodsPerYear float64 // annualization factor, √-scaled
	MaxForwardFill int     // gap-fill tolerance in periods
}

func DefaultParams() Params {
	return Params{VolWindow: 20, PeriodsPerYear: 252, MaxForwardFill: 3}
}

type Builder struct {
	params Params
}

func NewBuilder(p Params) (*Builder, error) {
	if p.VolWindow < 2 {
		return nil, fmt.Errorf("volatility window %d: %w", p.VolWindow, rolling.ErrInvalidWindow)
	}
	if p.PeriodsPerYear <= 0 {
		p.PeriodsPerYear = 252
	}
	if p.MaxForwardFill < 0 {
		p.MaxForwardFill = 0
	}
	return &Builder{params: p}, nil
}

// Build derives all feature series. Inputs with no overlapping dates produce
// empty components rather than an error; the classifier degrades per feature.
func (b *Builder) Build(in Inputs) History {
	return History{
		Spread:     b.spread(in.ShortYield, in.LongYield),
		Volatility: b.volatility(in.BondPrices),
		Credit:     b.creditSpread(in.SafePrices, in.RiskyPrices),
	}
}

func (b *Builder) spread(short, long domain.Series) domain.Series {
	pairs := alignPair(short.Sorted(), long.Sorted(), b.params.MaxForwardFill)
	out := make(domain.Series, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, domain.Point{Time: p.time, Value: p.b - p.a})
	}
	return out
}

func (b *Builder) volatility(prices domain.Series) domain.Series {
	sorted := prices.Sorted()
	if len(sorted) < 2 {
		return nil
	}
	rets := rolling.Returns(sorted.Values())
	vol, err := rolling.Volatility(rets, b.params.VolWindow, b.params.PeriodsPerYear)
	if err != nil {
		return nil
	}
	// Warmup positions carry no information; drop them so they cannot
	// depress the volatility z-score history.
	out := make(domain.Series, 0, len(vol))
	for i := b.params.VolWindow - 1; i < len(vol); i++ {
		out = append(out, domain.Point{Time: sorted[i+1].Time, Value: vol[i]})
	}
	return out
}

func (b *Builder) creditSpread(safe, risky domain.Series) domain.Series {
	pairs := alignPair(safe.Sorted(), risky.Sorted(), b.params.MaxForwardFill)
	if len(pairs) < 2 {
		return nil
	}
	out := make(domain.Series, 0, len(pairs)-1)
	for i := 1; i < len(pairs); i++ {
		prevSafe, prevRisky := pairs[i-1].a, pairs[i-1].b
		if prevSafe <= 0 || prevRisky <= 0 {
			continue
		}
		safeRet := (pairs[i].a - prevSafe) / prevSafe
		riskyRet := (pairs[i].b - prevRisky) / prevRisky
		out = append(out, domain.Point{Time: pairs[i].time, Value: safeRet - riskyRet})
	}
	return out
}

type pairedPoint struct {
	time time.Time
	a, b float64
}

// alignPair walks the union of both calendars, forward-filling each side for
// at most maxFFill periods. Dates where either side is absent beyond the fill
// tolerance are dropped, never fabricated.
func alignPair(a, b domain.Series, maxFFill int) []pairedPoint {
	if len(a) == 0 || len(b) == 0 {
		return nil
	}
	var out []pairedPoint
	var (
		i, j           int
		lastA, lastB   float64
		staleA, staleB int
		haveA, haveB   bool
	)

	for i < len(a) || j < len(b) {
		var t time.Time
		switch {
		case i >= len(a):
			t = b[j].Time
		case j >= len(b):
			t = a[i].Time
		case a[i].Time.Before(b[j].Time):
			t = a[i].Time
		default:
			t = b[j].Time
		}

		if i < len(a) && a[i].Time.Equal(t) {
			lastA, haveA, staleA = a[i].Value, true, 0
			i++
		} else if haveA {
			staleA++
		}
		if j < len(b) && b[j].Time.Equal(t) {
			lastB, haveB, staleB = b[j].Value, true, 0
			j++
		} else if haveB {
			staleB++
		}

		if haveA && haveB && staleA <= maxFFill && staleB <= maxFFill {
			out = append(out, pairedPoint{time: t, a: lastA, b: lastB})
		}
	}
	return out
}
