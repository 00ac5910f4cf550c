// Package service orchestrates the scoring cycle: load market series, build
// features, classify stress, derive trading signals, persist, alert. The
// pure packages underneath (features, stress, signals) do no I/O; this is
// the shell around them.
package service

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"go.opentelemetry.io/otel/trace"

	"bondwatch/internal/backtest"
	"bondwatch/internal/config"
	"bondwatch/internal/domain"
	"bondwatch/internal/features"
	"bondwatch/internal/repository"
	"bondwatch/internal/signals"
	"bondwatch/internal/stress"
)

// YieldProvider fetches a FRED yield series.
type YieldProvider interface {
	FetchSeries(ctx context.Context, seriesID string, start time.Time) (domain.Series, error)
}

// PriceProvider fetches daily closes for an ETF, index, or equity symbol.
type PriceProvider interface {
	FetchDailyCloses(ctx context.Context, symbol string, lookbackDays int) (domain.Series, error)
}

type StressStore interface {
	Insert(ctx context.Context, s domain.StressSignal) (int64, error)
	Latest(ctx context.Context) (domain.StressSignal, error)
	ScoreHistory(ctx context.Context, limit int) (domain.Series, error)
}

type SignalStore interface {
	InsertBatch(ctx context.Context, signals []domain.TradingSignal) error
	Recent(ctx context.Context, f domain.SignalFilter) ([]domain.TradingSignal, error)
	UnresolvedDue(ctx context.Context, cutoff time.Time, limit int) ([]domain.TradingSignal, error)
	SetRealizedReturn(ctx context.Context, id int64, realized float64) error
	RealizedOutcomes(ctx context.Context) ([]repository.SignalOutcome, error)
}

// SeriesCache is the between-cycle market-data cache. Both methods are
// best-effort.
type SeriesCache interface {
	Get(ctx context.Context, kind, id string) (domain.Series, bool)
	Put(ctx context.Context, kind, id string, s domain.Series)
}

// Alerter is notified when a cycle escalates the stress tier.
type Alerter interface {
	TierEscalation(ctx context.Context, result domain.CycleResult)
}

type StressService struct {
	cfg        config.Config
	tracer     trace.Tracer
	yields     YieldProvider
	prices     PriceProvider
	builder    *features.Builder
	classifier *stress.Classifier
	engine     *signals.Engine
	runner     *backtest.Runner
	stressRepo StressStore
	signalRepo SignalStore
	cache      SeriesCache
	alerter    Alerter
}

func NewStressService(
	cfg config.Config,
	tracer trace.Tracer,
	yields YieldProvider,
	prices PriceProvider,
	builder *features.Builder,
	classifier *stress.Classifier,
	engine *signals.Engine,
	runner *backtest.Runner,
	stressRepo StressStore,
	signalRepo SignalStore,
	seriesCache SeriesCache,
	alerter Alerter,
) *StressService {
	return &StressService{
		cfg:        cfg,
		tracer:     tracer,
		yields:     yields,
		prices:     prices,
		builder:    builder,
		classifier: classifier,
		engine:     engine,
		runner:     runner,
		stressRepo: stressRepo,
		signalRepo: signalRepo,
		cache:      seriesCache,
		alerter:    alerter,
	}
}

// SetAlerter installs the escalation alerter after construction. The bot
// reads from the service, so the two cannot be built in one pass.
func (s *StressService) SetAlerter(a Alerter) {
	s.alerter = a
}

// RunCycle executes one full scoring cycle. Missing individual series
// degrade the classification; only a wholesale lack of data fails the cycle.
func (s *StressService) RunCycle(ctx context.Context) (domain.CycleResult, error) {
	ctx, span := s.tracer.Start(ctx, "stress-service.run-cycle")
	defer span.End()

	inputs, symbolPrices, vixLevel := s.loadMarketData(ctx)

	history := s.builder.Build(inputs)
	if history.Empty() {
		return domain.CycleResult{}, fmt.Errorf("run cycle: %w", domain.ErrInsufficientData)
	}

	stressSig := s.classifier.Classify(s.classifier.LatestFeatures(history))

	var prev domain.StressSignal
	if s.stressRepo != nil {
		if p, err := s.stressRepo.Latest(ctx); err == nil {
			prev = p
		}
		id, err := s.stressRepo.Insert(ctx, stressSig)
		if err != nil {
			log.Printf("persist stress signal: %v", err)
		} else {
			stressSig.ID = id
		}
	}

	tradingSignals := s.engine.Generate(signals.Input{
		Stress:        stressSig,
		StressHistory: s.scoreHistory(ctx, stressSig),
		Prices:        symbolPrices,
		VIXLevel:      vixLevel,
	})
	for i := range tradingSignals {
		tradingSignals[i].StressID = stressSig.ID
	}

	if s.signalRepo != nil {
		if err := s.signalRepo.InsertBatch(ctx, tradingSignals); err != nil {
			log.Printf("persist trading signals: %v", err)
		}
	}

	result := domain.CycleResult{Stress: stressSig, Signals: tradingSignals}
	if s.alerter != nil && escalated(prev.Tier, stressSig.Tier) {
		s.alerter.TierEscalation(ctx, result)
	}
	return result, nil
}

func escalated(prev, cur domain.Tier) bool {
	return cur.Rank() > prev.Rank() && cur.Rank() >= domain.TierSoon.Rank()
}

// scoreHistory feeds the correlation window. Persisted history is preferred;
// without a store the engine sees only the current observation and holds.
func (s *StressService) scoreHistory(ctx context.Context, cur domain.StressSignal) domain.Series {
	if s.stressRepo != nil {
		hist, err := s.stressRepo.ScoreHistory(ctx, s.cfg.CorrWindow*3)
		if err != nil {
			log.Printf("load score history: %v", err)
		} else if len(hist) > 0 {
			return hist
		}
	}
	return domain.Series{{Time: cur.Timestamp, Value: cur.CompositeScore}}
}

func (s *StressService) loadMarketData(ctx context.Context) (features.Inputs, map[string]domain.Series, float64) {
	in := features.Inputs{
		ShortYield:  s.yieldSeries(ctx, s.cfg.ShortYieldSeries),
		LongYield:   s.yieldSeries(ctx, s.cfg.LongYieldSeries),
		BondPrices:  s.priceSeries(ctx, s.cfg.VolatilityProxy),
		RiskyPrices: s.priceSeries(ctx, s.cfg.CreditRisky),
		SafePrices:  s.priceSeries(ctx, s.cfg.CreditSafe),
	}

	symbolPrices := make(map[string]domain.Series, len(s.cfg.Symbols))
	for _, sym := range s.cfg.Symbols {
		if series := s.priceSeries(ctx, sym); len(series) > 0 {
			symbolPrices[sym] = series
		}
	}

	vixLevel := 0.0
	if vix := s.priceSeries(ctx, s.cfg.VolatilityIndex); len(vix) > 0 {
		if last, ok := vix.Last(); ok {
			vixLevel = last.Value
		}
	}
	return in, symbolPrices, vixLevel
}

func (s *StressService) yieldSeries(ctx context.Context, seriesID string) domain.Series {
	if cached, ok := s.cacheGet(ctx, "fred", seriesID); ok {
		return cached
	}
	start := time.Now().UTC().AddDate(0, 0, -s.cfg.LookbackDays)
	series, err := s.yields.FetchSeries(ctx, seriesID, start)
	if err != nil {
		log.Printf("fetch yield series %s: %v", seriesID, err)
		return nil
	}
	s.cachePut(ctx, "fred", seriesID, series)
	return series
}

func (s *StressService) priceSeries(ctx context.Context, symbol string) domain.Series {
	if cached, ok := s.cacheGet(ctx, "yahoo", symbol); ok {
		return cached
	}
	series, err := s.prices.FetchDailyCloses(ctx, symbol, s.cfg.LookbackDays)
	if err != nil {
		log.Printf("fetch daily closes %s: %v", symbol, err)
		return nil
	}
	s.cachePut(ctx, "yahoo", symbol, series)
	return series
}

func (s *StressService) cacheGet(ctx context.Context, kind, id string) (domain.Series, bool) {
	if s.cache == nil {
		return nil, false
	}
	return s.cache.Get(ctx, kind, id)
}

func (s *StressService) cachePut(ctx context.Context, kind, id string, series domain.Series) {
	if s.cache != nil {
		s.cache.Put(ctx, kind, id, series)
	}
}

// CurrentStress returns the latest persisted classification.
func (s *StressService) CurrentStress(ctx context.Context) (domain.StressSignal, error) {
	ctx, span := s.tracer.Start(ctx, "stress-service.current-stress")
	defer span.End()

	if s.stressRepo == nil {
		return domain.StressSignal{}, fmt.Errorf("no persistence configured: %w", repository.ErrNotFound)
	}
	return s.stressRepo.Latest(ctx)
}

// RecentSignals returns persisted trading signals matching the filter.
func (s *StressService) RecentSignals(ctx context.Context, f domain.SignalFilter) ([]domain.TradingSignal, error) {
	ctx, span := s.tracer.Start(ctx, "stress-service.recent-signals")
	defer span.End()

	if s.signalRepo == nil {
		return nil, fmt.Errorf("no persistence configured: %w", repository.ErrNotFound)
	}
	return s.signalRepo.Recent(ctx, f)
}

// PerformanceSummary aggregates realized signal outcomes.
type PerformanceSummary struct {
	TradeCount int                 `json:"trade_count"`
	WinRate    float64             `json:"win_rate"`
	MeanReturn float64             `json:"mean_return"`
	ByTier     map[string]TierPerf `json:"by_tier"`
}

type TierPerf struct {
	TradeCount int     `json:"trade_count"`
	WinRate    float64 `json:"win_rate"`
	MeanReturn float64 `json:"mean_return"`
}

// ResolveOutcomes records the direction-adjusted forward return for every
// directional signal whose horizon has elapsed, feeding Performance. Signals
// whose exit price is not yet available stay unresolved for the next pass.
func (s *StressService) ResolveOutcomes(ctx context.Context, limit int) (int, error) {
	ctx, span := s.tracer.Start(ctx, "stress-service.resolve-outcomes")
	defer span.End()

	if s.signalRepo == nil {
		return 0, nil
	}
	due, err := s.signalRepo.UnresolvedDue(ctx, time.Now().UTC(), limit)
	if err != nil {
		return 0, err
	}

	resolved := 0
	prices := make(map[string]domain.Series, len(due))
	for _, sig := range due {
		series, ok := prices[sig.Symbol]
		if !ok {
			series = s.priceSeries(ctx, sig.Symbol).Sorted()
			prices[sig.Symbol] = series
		}
		realized, ok := realizedReturn(series, sig)
		if !ok {
			continue
		}
		if err := s.signalRepo.SetRealizedReturn(ctx, sig.ID, realized); err != nil {
			log.Printf("record outcome for signal %d: %v", sig.ID, err)
			continue
		}
		resolved++
	}
	return resolved, nil
}

// realizedReturn measures the move from the recorded entry price to the
// first close at or after the signal's horizon end, negated for SELL.
func realizedReturn(prices domain.Series, sig domain.TradingSignal) (float64, bool) {
	if sig.EntryPrice <= 0 {
		return 0, false
	}
	target := sig.Timestamp.AddDate(0, 0, sig.HorizonDays)
	i := sort.Search(len(prices), func(i int) bool { return !prices[i].Time.Before(target) })
	if i >= len(prices) {
		return 0, false
	}
	ret := (prices[i].Value - sig.EntryPrice) / sig.EntryPrice
	if sig.Direction == domain.DirectionSell {
		ret = -ret
	}
	return ret, true
}

// Performance summarizes every directional signal with a realized outcome.
func (s *StressService) Performance(ctx context.Context) (PerformanceSummary, error) {
	ctx, span := s.tracer.Start(ctx, "stress-service.performance")
	defer span.End()

	if s.signalRepo == nil {
		return PerformanceSummary{}, fmt.Errorf("no persistence configured: %w", repository.ErrNotFound)
	}
	outcomes, err := s.signalRepo.RealizedOutcomes(ctx)
	if err != nil {
		return PerformanceSummary{}, err
	}

	summary := PerformanceSummary{ByTier: make(map[string]TierPerf)}
	var sum float64
	wins := 0
	tierSums := make(map[string]float64)
	tierWins := make(map[string]int)
	tierCounts := make(map[string]int)
	for _, o := range outcomes {
		summary.TradeCount++
		sum += o.Realized
		tier := string(o.Tier)
		tierCounts[tier]++
		tierSums[tier] += o.Realized
		if o.Realized > 0 {
			wins++
			tierWins[tier]++
		}
	}
	if summary.TradeCount > 0 {
		summary.WinRate = float64(wins) / float64(summary.TradeCount)
		summary.MeanReturn = sum / float64(summary.TradeCount)
	}
	for tier, count := range tierCounts {
		summary.ByTier[tier] = TierPerf{
			TradeCount: count,
			WinRate:    float64(tierWins[tier]) / float64(count),
			MeanReturn: tierSums[tier] / float64(count),
		}
	}
	return summary, nil
}

// Backtest replays the pipeline over the fetched history.
func (s *StressService) Backtest(ctx context.Context, start, end time.Time, step int) (backtest.Report, error) {
	ctx, span := s.tracer.Start(ctx, "stress-service.backtest")
	defer span.End()

	inputs, symbolPrices, _ := s.loadMarketData(ctx)
	vix := s.priceSeries(ctx, s.cfg.VolatilityIndex)

	return s.runner.Run(backtest.Request{
		Inputs: inputs,
		Prices: symbolPrices,
		VIX:    vix,
		Start:  start,
		End:    end,
		Step:   step,
	})
}
