package stress

import (
	"strings"
	"testing"
	"time"

	"bondwatch/internal/domain"
	"bondwatch/internal/features"
)

func feature(v float64) domain.Feature {
	return domain.Feature{Value: v, Valid: true}
}

func mustClassifier(t *testing.T) *Classifier {
	t.Helper()
	c, err := NewClassifier(DefaultParams())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return c
}

func TestNewClassifierRejectsBadParams(t *testing.T) {
	if _, err := NewClassifier(Params{ShortWindow: 1, LongWindow: 60, ZStrong: 2, ZModerate: 1.5}); err == nil {
		t.Fatal("expected error for short window < 2")
	}
	if _, err := NewClassifier(Params{ShortWindow: 20, LongWindow: 60, ZStrong: 1.5, ZModerate: 2}); err == nil {
		t.Fatal("expected error for inverted thresholds")
	}
}

func TestClassifySpecScenario(t *testing.T) {
	// spread z −2.5 (+3), vol z 2.2 (+3), credit z 0.5 (+0) → 6 → SOON, conf 6.
	c := mustClassifier(t)
	sig := c.Classify(domain.StressFeatures{
		Timestamp:    time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		SpreadZShort: feature(-2.5),
		VolatilityZ:  feature(2.2),
		CreditZ:      feature(0.5),
	})
	if sig.CompositeScore != 6 {
		t.Fatalf("expected composite score 6, got %g", sig.CompositeScore)
	}
	if sig.Tier != domain.TierSoon {
		t.Fatalf("expected SOON, got %s", sig.Tier)
	}
	if sig.Confidence != 6 {
		t.Fatalf("expected confidence 6, got %g", sig.Confidence)
	}
	if !strings.Contains(sig.Rationale, "inversion") || !strings.Contains(sig.Rationale, "volatility") {
		t.Fatalf("rationale should name fired thresholds, got %q", sig.Rationale)
	}
	if strings.Contains(sig.Rationale, "credit") {
		t.Fatalf("credit below threshold must not appear in rationale, got %q", sig.Rationale)
	}
}

func TestClassifyAllQuiet(t *testing.T) {
	c := mustClassifier(t)
	sig := c.Classify(domain.StressFeatures{
		SpreadZShort: feature(0),
		VolatilityZ:  feature(0),
		CreditZ:      feature(0),
	})
	if sig.CompositeScore != 0 {
		t.Fatalf("expected score 0, got %g", sig.CompositeScore)
	}
	if sig.Tier != domain.TierNeutral {
		t.Fatalf("expected NEUTRAL, got %s", sig.Tier)
	}
	if sig.Confidence != 1 {
		t.Fatalf("expected confidence floor 1, got %g", sig.Confidence)
	}
	if !strings.Contains(sig.Rationale, "no significant stress") {
		t.Fatalf("unexpected rationale %q", sig.Rationale)
	}
}

func TestClassifyMaxStress(t *testing.T) {
	c := mustClassifier(t)
	sig := c.Classify(domain.StressFeatures{
		SpreadZShort: feature(-3.0),
		SpreadZLong:  feature(-1.5),
		VolatilityZ:  feature(3.0),
		CreditZ:      feature(3.0),
	})
	// 3+3+3 plus sustained-trend bonus.
	if sig.CompositeScore != 10 {
		t.Fatalf("expected score 10, got %g", sig.CompositeScore)
	}
	if sig.Tier != domain.TierNow {
		t.Fatalf("expected NOW, got %s", sig.Tier)
	}
	if sig.Confidence != 10 {
		t.Fatalf("expected confidence capped at 10, got %g", sig.Confidence)
	}
}

func TestClassifyMildBandOffByDefault(t *testing.T) {
	c := mustClassifier(t)
	sig := c.Classify(domain.StressFeatures{
		SpreadZShort: feature(-1.2),
		VolatilityZ:  feature(1.2),
		CreditZ:      feature(1.2),
	})
	if sig.CompositeScore != 0 {
		t.Fatalf("mild band disabled by default, got score %g", sig.CompositeScore)
	}
}

func TestClassifyMildBandWhenEnabled(t *testing.T) {
	p := DefaultParams()
	p.ZMild = 1.0
	c, err := NewClassifier(p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Each feature sits between mild and moderate: +1 apiece.
	sig := c.Classify(domain.StressFeatures{
		SpreadZShort: feature(-1.2),
		VolatilityZ:  feature(1.2),
		CreditZ:      feature(1.2),
	})
	if sig.CompositeScore != 3 {
		t.Fatalf("expected score 3 from mild bands, got %g", sig.CompositeScore)
	}
	if sig.Tier != domain.TierWatch {
		t.Fatalf("expected WATCH, got %s", sig.Tier)
	}
	if !strings.Contains(sig.Rationale, "mild") {
		t.Fatalf("rationale should name the mild bands, got %q", sig.Rationale)
	}

	// Moderate and stronger readings still take their own bands.
	sig = c.Classify(domain.StressFeatures{SpreadZShort: feature(-1.8)})
	if sig.CompositeScore != 2 {
		t.Fatalf("moderate band must win over mild, got %g", sig.CompositeScore)
	}
}

func TestNewClassifierRejectsBadMildThreshold(t *testing.T) {
	p := DefaultParams()
	p.ZMild = 1.5 // equal to moderate
	if _, err := NewClassifier(p); err == nil {
		t.Fatal("expected error for mild >= moderate")
	}
	p.ZMild = -0.5
	if _, err := NewClassifier(p); err == nil {
		t.Fatal("expected error for negative mild threshold")
	}
}

func TestTierBreakpointsMonotonic(t *testing.T) {
	prevRank := -1
	for score := 0; score <= 15; score++ {
		tier := tierFor(score)
		if tier.Rank() < prevRank {
			t.Fatalf("tier rank decreased at score %d: %s", score, tier)
		}
		prevRank = tier.Rank()
	}
	if tierFor(1) != domain.TierNeutral || tierFor(2) != domain.TierWatch {
		t.Fatal("WATCH breakpoint must be exactly 2")
	}
	if tierFor(3) != domain.TierWatch || tierFor(4) != domain.TierSoon {
		t.Fatal("SOON breakpoint must be exactly 4")
	}
	if tierFor(6) != domain.TierSoon || tierFor(7) != domain.TierNow {
		t.Fatal("NOW breakpoint must be exactly 7")
	}
}

func TestConfidenceCapsPerTier(t *testing.T) {
	caps := map[domain.Tier]float64{
		domain.TierNow:     10,
		domain.TierSoon:    8,
		domain.TierWatch:   6,
		domain.TierNeutral: 1,
	}
	for score := 0; score <= 20; score++ {
		tier := tierFor(score)
		conf := confidenceFor(tier, score)
		if conf > caps[tier] {
			t.Fatalf("confidence %g exceeds %s cap %g at score %d", conf, tier, caps[tier], score)
		}
		if conf < 1 {
			t.Fatalf("confidence %g below floor at score %d", conf, score)
		}
	}
}

func TestClassifyDegradesOnMissingCredit(t *testing.T) {
	c := mustClassifier(t)
	sig := c.Classify(domain.StressFeatures{
		SpreadZShort: feature(-2.5),
		VolatilityZ:  feature(2.2),
		// CreditZ absent entirely.
	})
	if sig.CompositeScore != 6 {
		t.Fatalf("missing credit must contribute 0, got score %g", sig.CompositeScore)
	}
	if sig.Tier != domain.TierSoon {
		t.Fatalf("expected SOON, got %s", sig.Tier)
	}
}

func TestClassifyIdempotent(t *testing.T) {
	c := mustClassifier(t)
	f := domain.StressFeatures{
		SpreadZShort: feature(-1.8),
		SpreadZLong:  feature(-1.2),
		VolatilityZ:  feature(1.7),
		CreditZ:      feature(2.4),
	}
	first := c.Classify(f)
	second := c.Classify(first.Features)
	if first.CompositeScore != second.CompositeScore || first.Tier != second.Tier {
		t.Fatalf("classify must be idempotent: %+v vs %+v", first, second)
	}
	if first.Rationale != second.Rationale {
		t.Fatalf("rationale must be deterministic: %q vs %q", first.Rationale, second.Rationale)
	}
}

func TestLatestFeaturesFromHistory(t *testing.T) {
	c, err := NewClassifier(Params{ShortWindow: 3, LongWindow: 5, ZStrong: 2, ZModerate: 1.5, ZTrend: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var spread domain.Series
	for i := 0; i < 6; i++ {
		spread = append(spread, domain.Point{Time: base.AddDate(0, 0, i), Value: float64(i)})
	}

	f := c.LatestFeatures(features.History{Spread: spread})
	if !f.YieldCurveSpread.Valid || f.YieldCurveSpread.Value != 5 {
		t.Fatalf("expected latest spread 5, got %+v", f.YieldCurveSpread)
	}
	if !f.SpreadZShort.Valid || !f.SpreadZLong.Valid {
		t.Fatalf("expected both z-scores with 6 points, got %+v", f)
	}
	if f.BondVolatility.Valid || f.CreditZ.Valid {
		t.Fatal("absent series must yield invalid features")
	}
	if !f.Timestamp.Equal(base.AddDate(0, 0, 5)) {
		t.Fatalf("expected timestamp of latest point, got %s", f.Timestamp)
	}
}

func TestLatestFeaturesShortHistory(t *testing.T) {
	c := mustClassifier(t)
	spread := domain.Series{{Time: time.Now().UTC(), Value: -0.5}}
	f := c.LatestFeatures(features.History{Spread: spread})
	if !f.YieldCurveSpread.Valid {
		t.Fatal("latest raw value should still be reported")
	}
	if f.SpreadZShort.Valid {
		t.Fatal("z-score must be invalid with a single point")
	}
	// The classifier must still produce a usable signal.
	sig := c.Classify(f)
	if sig.Tier != domain.TierNeutral {
		t.Fatalf("expected NEUTRAL under insufficient history, got %s", sig.Tier)
	}
}
