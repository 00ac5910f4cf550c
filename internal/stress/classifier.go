// Package stress turns a feature history into a classified bond-stress
// signal. Scoring is a fixed heuristic: deterministic, transparent, and
// always available — missing features lower the score, they never fail it.
package stress

import (
	"fmt"
	"strings"
	"time"

	"bondwatch/internal/domain"
	"bondwatch/internal/features"
	"bondwatch/internal/rolling"
)

// Tier breakpoints encode the escalation policy and are fixed: the ordering
// NEUTRAL < WATCH < SOON < NOW with breaks at 2, 4, 7 must not drift.
const (
	scoreNow   = 7
	scoreSoon  = 4
	scoreWatch = 2

	strongPoints   = 3
	moderatePoints = 2
	mildPoints     = 1
	trendPoints    = 1
)

type Params struct {
	ShortWindow int
	LongWindow  int
	ZStrong     float64
	ZModerate   float64
	ZTrend      float64 // long-window threshold for the sustained-trend bonus
	ZMild       float64 // optional +1 band below moderate; zero disables it
}

func DefaultParams() Params {
	return Params{ShortWindow: 20, LongWindow: 60, ZStrong: 2.0, ZModerate: 1.5, ZTrend: 1.0}
}

type Classifier struct {
	params Params
}

func NewClassifier(p Params) (*Classifier, error) {
	if p.ShortWindow < 2 || p.LongWindow < 2 {
		return nil, fmt.Errorf("classifier windows %d/%d: %w", p.ShortWindow, p.LongWindow, rolling.ErrInvalidWindow)
	}
	if p.ZStrong <= p.ZModerate {
		return nil, fmt.Errorf("strong threshold %g must exceed moderate threshold %g", p.ZStrong, p.ZModerate)
	}
	if p.ZTrend <= 0 {
		p.ZTrend = 1.0
	}
	if p.ZMild < 0 || (p.ZMild != 0 && p.ZMild >= p.ZModerate) {
		return nil, fmt.Errorf("mild threshold %g must sit below moderate threshold %g", p.ZMild, p.ZModerate)
	}
	return &Classifier{params: p}, nil
}

// LatestFeatures normalizes the feature history into the point-in-time
// bundle Classify scores. Features whose series lack a full window come back
// invalid and contribute nothing downstream.
func (c *Classifier) LatestFeatures(h features.History) domain.StressFeatures {
	var f domain.StressFeatures

	if last, ok := h.Spread.Last(); ok {
		f.YieldCurveSpread = domain.Feature{Value: last.Value, Valid: true}
		f.Timestamp = latest(f.Timestamp, last.Time)
		vals := h.Spread.Values()
		f.SpreadZShort = lastZ(vals, c.params.ShortWindow)
		f.SpreadZLong = lastZ(vals, c.params.LongWindow)
	}
	if last, ok := h.Volatility.Last(); ok {
		f.BondVolatility = domain.Feature{Value: last.Value, Valid: true}
		f.Timestamp = latest(f.Timestamp, last.Time)
		f.VolatilityZ = lastZ(h.Volatility.Values(), c.params.ShortWindow)
	}
	if last, ok := h.Credit.Last(); ok {
		f.CreditSpread = domain.Feature{Value: last.Value, Valid: true}
		f.Timestamp = latest(f.Timestamp, last.Time)
		f.CreditZ = lastZ(h.Credit.Values(), c.params.ShortWindow)
	}
	return f
}

// Classify scores a feature bundle. Pure: the same bundle always yields the
// same composite score, tier, and confidence.
func (c *Classifier) Classify(f domain.StressFeatures) domain.StressSignal {
	score := 0
	var fired []string

	if f.SpreadZShort.Valid {
		switch z := f.SpreadZShort.Value; {
		case z < -c.params.ZStrong:
			score += strongPoints
			fired = append(fired, fmt.Sprintf("strong yield curve inversion (%.2fσ)", z))
		case z < -c.params.ZModerate:
			score += moderatePoints
			fired = append(fired, fmt.Sprintf("moderate yield curve flattening (%.2fσ)", z))
		case c.params.ZMild > 0 && z < -c.params.ZMild:
			score += mildPoints
			fired = append(fired, fmt.Sprintf("mild yield curve flattening (%.2fσ)", z))
		}
	}
	if f.VolatilityZ.Valid {
		switch z := f.VolatilityZ.Value; {
		case z > c.params.ZStrong:
			score += strongPoints
			fired = append(fired, fmt.Sprintf("bond volatility spike (%.2fσ)", z))
		case z > c.params.ZModerate:
			score += moderatePoints
			fired = append(fired, fmt.Sprintf("elevated bond volatility (%.2fσ)", z))
		case c.params.ZMild > 0 && z > c.params.ZMild:
			score += mildPoints
			fired = append(fired, fmt.Sprintf("mildly elevated bond volatility (%.2fσ)", z))
		}
	}
	if f.CreditZ.Valid {
		switch z := f.CreditZ.Value; {
		case z > c.params.ZStrong:
			score += strongPoints
			fired = append(fired, fmt.Sprintf("credit spread widening (%.2fσ)", z))
		case z > c.params.ZModerate:
			score += moderatePoints
			fired = append(fired, fmt.Sprintf("moderate credit stress (%.2fσ)", z))
		case c.params.ZMild > 0 && z > c.params.ZMild:
			score += mildPoints
			fired = append(fired, fmt.Sprintf("mild credit stress (%.2fσ)", z))
		}
	}
	if f.SpreadZShort.Valid && f.SpreadZLong.Valid &&
		f.SpreadZLong.Value < -c.params.ZTrend && f.SpreadZShort.Value < f.SpreadZLong.Value {
		score += trendPoints
		fired = append(fired, "sustained yield curve flattening across windows")
	}

	tier := tierFor(score)
	return domain.StressSignal{
		Timestamp:      f.Timestamp,
		Features:       f,
		CompositeScore: float64(score),
		Tier:           tier,
		Confidence:     confidenceFor(tier, score),
		Rationale:      rationale(tier, fired),
	}
}

func tierFor(score int) domain.Tier {
	switch {
	case score >= scoreNow:
		return domain.TierNow
	case score >= scoreSoon:
		return domain.TierSoon
	case score >= scoreWatch:
		return domain.TierWatch
	default:
		return domain.TierNeutral
	}
}

// Confidence is capped per tier so a low tier can never report high
// confidence, and floored at 1 so every signal carries some weight.
func confidenceFor(tier domain.Tier, score int) float64 {
	s := float64(score)
	switch tier {
	case domain.TierNow:
		return min(10, s+1)
	case domain.TierSoon:
		return min(8, s)
	case domain.TierWatch:
		return min(6, s)
	default:
		return max(1, s)
	}
}

func rationale(tier domain.Tier, fired []string) string {
	if len(fired) == 0 {
		return "no significant stress detected"
	}
	var prefix string
	switch tier {
	case domain.TierNow:
		prefix = "TRADE NOW"
	case domain.TierSoon:
		prefix = "PREPARE TO TRADE"
	case domain.TierWatch:
		prefix = "MONITOR CLOSELY"
	default:
		prefix = "NO ACTION"
	}
	return prefix + ": " + strings.Join(fired, "; ")
}

func lastZ(values []float64, window int) domain.Feature {
	z, ok, err := rolling.LastZScore(values, window)
	if err != nil || !ok {
		return domain.Feature{}
	}
	return domain.Feature{Value: z, Valid: true}
}

func latest(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}
