// Package signals translates a classified stress signal into per-symbol
// trading recommendations using rolling correlation, momentum confirmation,
// and volatility-regime position sizing.
package signals

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"gonum.org/v1/gonum/stat"

	"bondwatch/internal/domain"
	"bondwatch/internal/rolling"
)

const (
	rsiPeriod      = 14
	fallbackStop   = 0.03
	maxStopDist    = 0.10
	holdStopFrac   = 0.95
	holdTakeFrac   = 1.10
	momShortStrong = 0.03
	momLongStrong  = 0.10
)

// Params holds the engine policy. The correlation thresholds encode the sign
// convention (bond stress → flight to quality → later reversal into the risk
// asset); flipping their signs flips the policy, which is why they are
// parameters rather than constants.
type Params struct {
	CorrWindow     int
	VolWindow      int
	BuyCorrNow     float64
	BuyCorrSoon    float64
	SellCorr       float64
	VIXLowMax      float64
	VIXHighMin     float64
	PosBaseLow     float64
	PosBaseMedium  float64
	PosBaseHigh    float64
	KellyFraction  float64
	MaxPosition    float64
	StopVolMult    float64
}

func DefaultParams() Params {
	return Params{
		CorrWindow:    60,
		VolWindow:     20,
		BuyCorrNow:    -0.3,
		BuyCorrSoon:   -0.2,
		SellCorr:      0.3,
		VIXLowMax:     20,
		VIXHighMin:    30,
		PosBaseLow:    0.02,
		PosBaseMedium: 0.015,
		PosBaseHigh:   0.005,
		KellyFraction: 0.25,
		MaxPosition:   0.03,
		StopVolMult:   2.0,
	}
}

type Engine struct {
	params Params
}

func NewEngine(p Params) (*Engine, error) {
	if p.CorrWindow < 2 || p.VolWindow < 2 {
		return nil, fmt.Errorf("engine windows %d/%d: %w", p.CorrWindow, p.VolWindow, rolling.ErrInvalidWindow)
	}
	if p.KellyFraction <= 0 || p.KellyFraction > 1 {
		return nil, fmt.Errorf("kelly fraction %g out of (0,1]", p.KellyFraction)
	}
	if p.MaxPosition <= 0 {
		return nil, fmt.Errorf("max position %g must be positive", p.MaxPosition)
	}
	return &Engine{params: p}, nil
}

// Input is everything one cycle of signal generation reads. All fields are
// immutable during generation, which is what makes the per-symbol fan-out
// safe without locks.
type Input struct {
	Stress        domain.StressSignal
	StressHistory domain.Series            // composite-score history for correlation
	Prices        map[string]domain.Series // per-symbol daily closes
	VIXLevel      float64                  // latest volatility-index close; <= 0 means unknown
}

// Generate produces one TradingSignal per symbol with usable price data,
// ordered by symbol. Symbols are scored concurrently; each goroutine reads
// only the shared immutable input and writes its own result slot.
func (e *Engine) Generate(in Input) []domain.TradingSignal {
	symbols := make([]string, 0, len(in.Prices))
	for sym := range in.Prices {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	results := make([]domain.TradingSignal, len(symbols))
	ok := make([]bool, len(symbols))

	var wg sync.WaitGroup
	for i, sym := range symbols {
		wg.Add(1)
		go func(i int, sym string) {
			defer wg.Done()
			sig, usable := e.signalFor(sym, in)
			results[i], ok[i] = sig, usable
		}(i, sym)
	}
	wg.Wait()

	out := make([]domain.TradingSignal, 0, len(symbols))
	for i := range results {
		if ok[i] {
			out = append(out, results[i])
		}
	}
	return out
}

func (e *Engine) signalFor(symbol string, in Input) (domain.TradingSignal, bool) {
	prices := in.Prices[symbol].Sorted()
	if len(prices) < 2 {
		return domain.TradingSignal{}, false
	}
	closes := prices.Values()
	entry := closes[len(closes)-1]
	if entry <= 0 {
		return domain.TradingSignal{}, false
	}

	corr, corrOK := e.correlation(prices, in.StressHistory)
	mom := momentumFor(closes)

	direction, confidence, reasons := e.decide(in.Stress, corr, corrOK, mom)
	horizon := horizonFor(in.Stress.Tier)
	size := e.positionSize(direction, in.Stress.Tier, confidence, in.VIXLevel)
	stop, take := e.riskLevels(direction, in.Stress.Tier, entry, closes)

	return domain.TradingSignal{
		Timestamp:    in.Stress.Timestamp,
		Symbol:       symbol,
		Direction:    direction,
		Tier:         in.Stress.Tier,
		Confidence:   confidence,
		HorizonDays:  horizon,
		Correlation:  corr,
		PositionSize: size,
		EntryPrice:   entry,
		StopLoss:     stop,
		TakeProfit:   take,
		Rationale:    fmt.Sprintf("%s: %s", symbol, strings.Join(reasons, " + ")),
	}, true
}

// correlation computes the rolling Pearson correlation between the symbol's
// returns and the stress composite history over the trailing window. With
// fewer paired observations than the window it reports (0, false): missing
// data must never manufacture a correlation.
func (e *Engine) correlation(prices domain.Series, stressHist domain.Series) (float64, bool) {
	if len(prices) < 2 || len(stressHist) == 0 {
		return 0, false
	}
	returns := make(domain.Series, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		prev := prices[i-1].Value
		if prev <= 0 {
			continue
		}
		returns = append(returns, domain.Point{
			Time:  prices[i].Time,
			Value: (prices[i].Value - prev) / prev,
		})
	}

	byDate := make(map[int64]float64, len(stressHist))
	for _, p := range stressHist {
		byDate[p.Time.Unix()] = p.Value
	}

	var xs, ys []float64
	for _, r := range returns {
		if s, found := byDate[r.Time.Unix()]; found {
			xs = append(xs, s)
			ys = append(ys, r.Value)
		}
	}
	if len(xs) < e.params.CorrWindow {
		return 0, false
	}
	xs = xs[len(xs)-e.params.CorrWindow:]
	ys = ys[len(ys)-e.params.CorrWindow:]

	corr := stat.Correlation(xs, ys, nil)
	if corr != corr { // NaN when either side is constant
		return 0, false
	}
	return corr, true
}

type momentum struct {
	ret5, ret10, ret20 float64
	rsi                float64
}

func momentumFor(closes []float64) momentum {
	m := momentum{rsi: 50}
	for _, span := range []struct {
		n   int
		dst *float64
	}{{5, &m.ret5}, {10, &m.ret10}, {20, &m.ret20}} {
		if len(closes) > span.n {
			past := closes[len(closes)-1-span.n]
			if past > 0 {
				*span.dst = (closes[len(closes)-1] - past) / past
			}
		}
	}
	if r, ok := lastRSI(closes, rsiPeriod); ok {
		m.rsi = r
	}
	return m
}

func (e *Engine) decide(stress domain.StressSignal, corr float64, corrOK bool, mom momentum) (domain.Direction, float64, []string) {
	if !corrOK {
		conf := clamp(stress.Confidence*0.5, 1, 10)
		return domain.DirectionHold, conf, []string{"insufficient correlation history"}
	}

	direction := domain.DirectionHold
	boost := 0.5
	var reasons []string

	switch stress.Tier {
	case domain.TierNow:
		switch {
		case corr <= e.params.BuyCorrNow:
			direction = domain.DirectionBuy
			boost = 2.0
			reasons = append(reasons, fmt.Sprintf("strong bond stress with negative correlation (%.2f)", corr))
		case corr >= e.params.SellCorr:
			direction = domain.DirectionSell
			boost = 1.5
			reasons = append(reasons, fmt.Sprintf("bond stress with positive correlation (%.2f)", corr))
		default:
			reasons = append(reasons, "bond stress but unclear correlation")
		}
	case domain.TierSoon:
		if corr <= e.params.BuyCorrSoon {
			direction = domain.DirectionBuy
			boost = 1.5
			reasons = append(reasons, fmt.Sprintf("building bond stress with negative correlation (%.2f)", corr))
		} else {
			boost = 1.0
			reasons = append(reasons, "building bond stress, monitoring")
		}
	default:
		reasons = append(reasons, "low bond stress")
	}

	// Momentum overlay: trend agreement raises conviction, disagreement
	// lowers it, and stretched RSI works against chasing.
	switch {
	case mom.ret5 > momShortStrong && mom.ret20 > momLongStrong:
		if direction == domain.DirectionBuy {
			boost += 1.0
			reasons = append(reasons, "strong upward momentum")
		} else if direction == domain.DirectionSell {
			boost -= 0.5
		}
	case mom.ret5 < -momShortStrong && mom.ret20 < -momLongStrong:
		if direction == domain.DirectionSell {
			boost += 1.0
			reasons = append(reasons, "strong downward momentum")
		} else if direction == domain.DirectionBuy {
			boost -= 0.5
		}
	}
	if mom.rsi > 70 && direction == domain.DirectionBuy {
		boost -= 1.0
		reasons = append(reasons, "overbought")
	}
	if mom.rsi < 30 && direction == domain.DirectionSell {
		boost -= 1.0
		reasons = append(reasons, "oversold")
	}

	return direction, clamp(stress.Confidence+boost, 1, 10), reasons
}

func horizonFor(tier domain.Tier) int {
	switch tier {
	case domain.TierNow:
		return 7
	case domain.TierSoon:
		return 21
	case domain.TierWatch:
		return 42
	default:
		return 60
	}
}

// positionSize applies the sizing ladder: volatility-regime base, tier
// multiplier, confidence scaling, fractional Kelly, then the hard cap.
// The cap binds unconditionally; no upstream scaling may pierce it.
func (e *Engine) positionSize(direction domain.Direction, tier domain.Tier, confidence, vix float64) float64 {
	if direction == domain.DirectionHold {
		return 0
	}

	base := e.params.PosBaseHigh // unknown regime sizes like a crisis
	switch {
	case vix <= 0:
	case vix < e.params.VIXLowMax:
		base = e.params.PosBaseLow
	case vix < e.params.VIXHighMin:
		base = e.params.PosBaseMedium
	}

	mult := 0.5
	switch tier {
	case domain.TierNow:
		mult = 1.5
	case domain.TierSoon:
		mult = 1.0
	}

	size := base * mult * (confidence / 10.0) * e.params.KellyFraction
	return min(size, e.params.MaxPosition)
}

func (e *Engine) riskLevels(direction domain.Direction, tier domain.Tier, entry float64, closes []float64) (stop, take float64) {
	if direction == domain.DirectionHold {
		return entry * holdStopFrac, entry * holdTakeFrac
	}

	dist := fallbackStop
	rets := rolling.Returns(closes)
	if len(rets) >= e.params.VolWindow {
		_, vol := rolling.MeanStd(rets[len(rets)-e.params.VolWindow:])
		if vol > 0 {
			dist = min(vol*e.params.StopVolMult, maxStopDist)
		}
	}

	ratio := rewardRiskFor(tier)
	if direction == domain.DirectionSell {
		return entry * (1 + dist), entry * (1 - ratio*dist)
	}
	return entry * (1 - dist), entry * (1 + ratio*dist)
}

func rewardRiskFor(tier domain.Tier) float64 {
	switch tier {
	case domain.TierNow:
		return 3.0
	case domain.TierSoon:
		return 2.5
	default:
		return 2.0
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
