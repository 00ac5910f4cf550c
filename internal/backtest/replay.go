// Package backtest replays the scoring pipeline over historical data with no
// look-ahead and measures how its directional signals would have performed.
// It is a pure library: nothing here feeds back into live thresholds.
package backtest

import (
	"fmt"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"bondwatch/internal/domain"
	"bondwatch/internal/features"
	"bondwatch/internal/signals"
	"bondwatch/internal/stress"
)

// Trade is one realized signal outcome. ForwardReturn is already
// direction-adjusted: a SELL profits when the underlying falls.
type Trade struct {
	Date          time.Time        `json:"date"`
	Symbol        string           `json:"symbol"`
	Direction     domain.Direction `json:"direction"`
	Tier          domain.Tier      `json:"tier"`
	Confidence    float64          `json:"confidence"`
	HorizonDays   int              `json:"horizon_days"`
	PositionSize  float64          `json:"position_size_fraction"`
	ForwardReturn float64          `json:"forward_return"`
}

// TTest holds a Welch two-sample comparison of trade returns against
// unconditional forward returns sampled the same way.
type TTest struct {
	TStat       float64 `json:"t_stat"`
	DF          float64 `json:"df"`
	PValue      float64 `json:"p_value"`
	Significant bool    `json:"significant"`
}

type Summary struct {
	TradeCount  int     `json:"trade_count"`
	HoldCount   int     `json:"hold_count"`
	WinRate     float64 `json:"win_rate"`
	MeanReturn  float64 `json:"mean_return"`
	ReturnVol   float64 `json:"return_volatility"`
	TotalReturn float64 `json:"total_return"`
	MaxDrawdown float64 `json:"max_drawdown"`
	Sharpe      float64 `json:"sharpe"`
	BestTrade   float64 `json:"best_trade"`
	WorstTrade  float64 `json:"worst_trade"`
	TTest       TTest   `json:"t_test"`
}

type Report struct {
	Summary Summary       `json:"summary"`
	Trades  []Trade       `json:"trades"`
	Regimes []RegimeStats `json:"regimes"`
}

// Request bounds a replay. Step is the number of observations to advance
// between evaluations; values below 1 mean every observation.
type Request struct {
	Inputs features.Inputs
	Prices map[string]domain.Series
	VIX    domain.Series
	Start  time.Time
	End    time.Time
	Step   int
}

type Runner struct {
	builder    *features.Builder
	classifier *stress.Classifier
	engine     *signals.Engine
	warmup     int
}

// NewRunner composes the live pipeline components into a replay runner.
// warmup is the minimum number of feature observations required before the
// first evaluation, normally the classifier's long window.
func NewRunner(b *features.Builder, c *stress.Classifier, e *signals.Engine, warmup int) *Runner {
	if warmup < 1 {
		warmup = 1
	}
	return &Runner{builder: b, classifier: c, engine: e, warmup: warmup}
}

// Run replays the pipeline date by date. At each evaluation date only data at
// or before that date is visible, and the composite-score history fed to the
// signal engine is the one accumulated by the replay itself.
func (r *Runner) Run(req Request) (Report, error) {
	inputs := sortInputs(req.Inputs)

	full := r.builder.Build(inputs)
	if full.Empty() {
		return Report{}, fmt.Errorf("backtest: %w", domain.ErrInsufficientData)
	}

	dates := evaluationDates(full.Spread.Sorted(), req, r.warmup)
	if len(dates) == 0 {
		return Report{}, fmt.Errorf("backtest window: %w", domain.ErrInsufficientData)
	}

	sortedPrices := make(map[string]domain.Series, len(req.Prices))
	for sym, s := range req.Prices {
		sortedPrices[sym] = s.Sorted()
	}
	vix := req.VIX.Sorted()

	var (
		trades    []Trade
		holds     int
		baseline  []float64
		stressLog domain.Series
	)
	for _, t := range dates {
		h := r.builder.Build(truncateInputs(inputs, t))
		if h.Empty() {
			continue
		}
		sig := r.classifier.Classify(r.classifier.LatestFeatures(h))
		stressLog = append(stressLog, domain.Point{Time: t, Value: sig.CompositeScore})

		out := r.engine.Generate(signals.Input{
			Stress:        sig,
			StressHistory: stressLog,
			Prices:        visiblePrices(sortedPrices, t),
			VIXLevel:      lastAt(vix, t),
		})
		for _, ts := range out {
			raw, realized := forwardReturn(sortedPrices[ts.Symbol], t, ts.HorizonDays)
			if !realized {
				continue
			}
			baseline = append(baseline, raw)
			if ts.Direction == domain.DirectionHold {
				holds++
				continue
			}
			adj := raw
			if ts.Direction == domain.DirectionSell {
				adj = -raw
			}
			trades = append(trades, Trade{
				Date:          t,
				Symbol:        ts.Symbol,
				Direction:     ts.Direction,
				Tier:          ts.Tier,
				Confidence:    ts.Confidence,
				HorizonDays:   ts.HorizonDays,
				PositionSize:  ts.PositionSize,
				ForwardReturn: adj,
			})
		}
	}

	return Report{
		Summary: summarize(trades, holds, baseline),
		Trades:  trades,
		Regimes: GroupByRegime(trades),
	}, nil
}

func evaluationDates(spread domain.Series, req Request, warmup int) []time.Time {
	step := req.Step
	if step < 1 {
		step = 1
	}
	var dates []time.Time
	for i := warmup - 1; i < len(spread); i += step {
		t := spread[i].Time
		if !req.Start.IsZero() && t.Before(req.Start) {
			continue
		}
		if !req.End.IsZero() && t.After(req.End) {
			break
		}
		dates = append(dates, t)
	}
	return dates
}

// sortInputs puts every input series in ascending time order once, up front.
// Before assumes ascending order, so truncation on unsorted input would
// silently clamp to the wrong prefix.
func sortInputs(in features.Inputs) features.Inputs {
	return features.Inputs{
		ShortYield:  in.ShortYield.Sorted(),
		LongYield:   in.LongYield.Sorted(),
		BondPrices:  in.BondPrices.Sorted(),
		RiskyPrices: in.RiskyPrices.Sorted(),
		SafePrices:  in.SafePrices.Sorted(),
	}
}

func truncateInputs(in features.Inputs, t time.Time) features.Inputs {
	return features.Inputs{
		ShortYield:  in.ShortYield.Before(t),
		LongYield:   in.LongYield.Before(t),
		BondPrices:  in.BondPrices.Before(t),
		RiskyPrices: in.RiskyPrices.Before(t),
		SafePrices:  in.SafePrices.Before(t),
	}
}

func visiblePrices(prices map[string]domain.Series, t time.Time) map[string]domain.Series {
	out := make(map[string]domain.Series, len(prices))
	for sym, s := range prices {
		if visible := s.Before(t); len(visible) > 0 {
			out[sym] = visible
		}
	}
	return out
}

// lastAt returns the last value at or before t, or 0 when none exists.
func lastAt(s domain.Series, t time.Time) float64 {
	if visible := s.Before(t); len(visible) > 0 {
		return visible[len(visible)-1].Value
	}
	return 0
}

// forwardReturn measures the raw long return from the last close at or before
// entry to the first close at or after entry+horizon days. It reports false
// when either side of the window has no price yet.
func forwardReturn(prices domain.Series, entry time.Time, horizonDays int) (float64, bool) {
	visible := prices.Before(entry)
	if len(visible) == 0 {
		return 0, false
	}
	entryPx := visible[len(visible)-1].Value
	if entryPx <= 0 {
		return 0, false
	}

	target := entry.AddDate(0, 0, horizonDays)
	i := sort.Search(len(prices), func(i int) bool { return !prices[i].Time.Before(target) })
	if i >= len(prices) {
		return 0, false
	}
	return (prices[i].Value - entryPx) / entryPx, true
}

func summarize(trades []Trade, holds int, baseline []float64) Summary {
	s := Summary{TradeCount: len(trades), HoldCount: holds}
	if len(trades) == 0 {
		return s
	}

	returns := make([]float64, len(trades))
	wins := 0
	s.BestTrade = math.Inf(-1)
	s.WorstTrade = math.Inf(1)
	for i, tr := range trades {
		returns[i] = tr.ForwardReturn
		if tr.ForwardReturn > 0 {
			wins++
		}
		s.BestTrade = math.Max(s.BestTrade, tr.ForwardReturn)
		s.WorstTrade = math.Min(s.WorstTrade, tr.ForwardReturn)
	}
	s.WinRate = float64(wins) / float64(len(trades))
	s.MeanReturn = stat.Mean(returns, nil)
	if len(returns) > 1 {
		s.ReturnVol = math.Sqrt(stat.Variance(returns, nil))
	}
	if s.ReturnVol > 0 {
		s.Sharpe = s.MeanReturn / s.ReturnVol
	}

	s.TotalReturn, s.MaxDrawdown = equityCurve(trades)
	s.TTest = welch(returns, baseline)
	return s
}

// equityCurve compounds position-sized trade returns in chronological order
// and tracks the worst peak-to-trough decline.
func equityCurve(trades []Trade) (totalReturn, maxDrawdown float64) {
	ordered := make([]Trade, len(trades))
	copy(ordered, trades)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Date.Before(ordered[j].Date) })

	equity, peak := 1.0, 1.0
	for _, tr := range ordered {
		equity *= 1 + tr.ForwardReturn*tr.PositionSize
		if equity > peak {
			peak = equity
		}
		if dd := (peak - equity) / peak; dd > maxDrawdown {
			maxDrawdown = dd
		}
	}
	return equity - 1, maxDrawdown
}

// welch runs Welch's unequal-variance t-test. With fewer than two samples on
// either side, or zero variance on both, it reports no significance rather
// than a fabricated statistic.
func welch(a, b []float64) TTest {
	if len(a) < 2 || len(b) < 2 {
		return TTest{PValue: 1}
	}
	meanA, varA := stat.MeanVariance(a, nil)
	meanB, varB := stat.MeanVariance(b, nil)
	na, nb := float64(len(a)), float64(len(b))

	se2 := varA/na + varB/nb
	if se2 == 0 {
		return TTest{PValue: 1}
	}
	t := (meanA - meanB) / math.Sqrt(se2)
	df := se2 * se2 / (varA*varA/(na*na*(na-1)) + varB*varB/(nb*nb*(nb-1)))

	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	p := 2 * dist.CDF(-math.Abs(t))
	return TTest{TStat: t, DF: df, PValue: p, Significant: p < 0.05}
}
