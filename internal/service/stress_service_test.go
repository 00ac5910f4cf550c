package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel/trace/noop"

	"bondwatch/internal/backtest"
	"bondwatch/internal/config"
	"bondwatch/internal/domain"
	"bondwatch/internal/features"
	"bondwatch/internal/repository"
	"bondwatch/internal/signals"
	"bondwatch/internal/stress"
)

func day(n int) time.Time {
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func seriesOf(values []float64) domain.Series {
	s := make(domain.Series, len(values))
	for i, v := range values {
		s[i] = domain.Point{Time: day(i), Value: v}
	}
	return s
}

type stubYields struct {
	series map[string]domain.Series
	err    error
}

func (s *stubYields) FetchSeries(ctx context.Context, seriesID string, start time.Time) (domain.Series, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.series[seriesID], nil
}

type stubPrices struct {
	series map[string]domain.Series
	err    error
}

func (s *stubPrices) FetchDailyCloses(ctx context.Context, symbol string, lookbackDays int) (domain.Series, error) {
	if s.err != nil {
		return nil, s.err
	}
	if series, ok := s.series[symbol]; ok {
		return series, nil
	}
	return nil, errors.New("no data")
}

type stubStressStore struct {
	inserted []domain.StressSignal
	latest   domain.StressSignal
	history  domain.Series
	nextID   int64
}

func (s *stubStressStore) Insert(ctx context.Context, sig domain.StressSignal) (int64, error) {
	s.inserted = append(s.inserted, sig)
	s.nextID++
	return s.nextID, nil
}

func (s *stubStressStore) Latest(ctx context.Context) (domain.StressSignal, error) {
	if s.latest.Timestamp.IsZero() {
		return domain.StressSignal{}, repository.ErrNotFound
	}
	return s.latest, nil
}

func (s *stubStressStore) ScoreHistory(ctx context.Context, limit int) (domain.Series, error) {
	return s.history, nil
}

type stubSignalStore struct {
	inserted []domain.TradingSignal
	outcomes []repository.SignalOutcome
	due      []domain.TradingSignal
	realized map[int64]float64
}

func (s *stubSignalStore) InsertBatch(ctx context.Context, signals []domain.TradingSignal) error {
	s.inserted = append(s.inserted, signals...)
	return nil
}

func (s *stubSignalStore) Recent(ctx context.Context, f domain.SignalFilter) ([]domain.TradingSignal, error) {
	return s.inserted, nil
}

func (s *stubSignalStore) UnresolvedDue(ctx context.Context, cutoff time.Time, limit int) ([]domain.TradingSignal, error) {
	return s.due, nil
}

func (s *stubSignalStore) SetRealizedReturn(ctx context.Context, id int64, realized float64) error {
	if s.realized == nil {
		s.realized = make(map[int64]float64)
	}
	s.realized[id] = realized
	return nil
}

func (s *stubSignalStore) RealizedOutcomes(ctx context.Context) ([]repository.SignalOutcome, error) {
	return s.outcomes, nil
}

type stubAlerter struct {
	calls []domain.CycleResult
}

func (a *stubAlerter) TierEscalation(ctx context.Context, result domain.CycleResult) {
	a.calls = append(a.calls, result)
}

func testConfig() config.Config {
	return config.Config{
		ShortYieldSeries: "DGS2",
		LongYieldSeries:  "DGS10",
		VolatilityProxy:  "TLT",
		CreditRisky:      "HYG",
		CreditSafe:       "LQD",
		VolatilityIndex:  "^VIX",
		Symbols:          []string{"NVDA"},
		LookbackDays:     100,
		CorrWindow:       5,
	}
}

func testData() (*stubYields, *stubPrices) {
	n := 60
	short := make([]float64, n)
	long := make([]float64, n)
	tlt := make([]float64, n)
	hyg := make([]float64, n)
	lqd := make([]float64, n)
	nvda := make([]float64, n)
	vix := make([]float64, n)
	for i := 0; i < n; i++ {
		short[i] = 4.5
		long[i] = 4.2 - 0.02*float64(i)
		tlt[i] = 100 + 0.5*float64(i%7)
		hyg[i] = 80 - 0.3*float64(i)
		lqd[i] = 110 + 0.1*float64(i%3)
		nvda[i] = 500 + 5*float64(i%9)
		vix[i] = 18
	}
	yields := &stubYields{series: map[string]domain.Series{
		"DGS2":  seriesOf(short),
		"DGS10": seriesOf(long),
	}}
	prices := &stubPrices{series: map[string]domain.Series{
		"TLT":  seriesOf(tlt),
		"HYG":  seriesOf(hyg),
		"LQD":  seriesOf(lqd),
		"NVDA": seriesOf(nvda),
		"^VIX": seriesOf(vix),
	}}
	return yields, prices
}

func testService(t *testing.T, yields YieldProvider, prices PriceProvider,
	stressRepo StressStore, signalRepo SignalStore, alerter Alerter) *StressService {
	t.Helper()
	builder, err := features.NewBuilder(features.Params{VolWindow: 3, PeriodsPerYear: 252, MaxForwardFill: 3})
	if err != nil {
		t.Fatalf("NewBuilder: %v", err)
	}
	classifier, err := stress.NewClassifier(stress.Params{
		ShortWindow: 3, LongWindow: 5, ZStrong: 0.9, ZModerate: 0.6, ZTrend: 0.5,
	})
	if err != nil {
		t.Fatalf("NewClassifier: %v", err)
	}
	sp := signals.DefaultParams()
	sp.CorrWindow = 5
	sp.VolWindow = 3
	engine, err := signals.NewEngine(sp)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	runner := backtest.NewRunner(builder, classifier, engine, 5)

	return NewStressService(testConfig(), noop.NewTracerProvider().Tracer("test"),
		yields, prices, builder, classifier, engine, runner,
		stressRepo, signalRepo, nil, alerter)
}

func TestRunCycleStateless(t *testing.T) {
	yields, prices := testData()
	svc := testService(t, yields, prices, nil, nil, nil)

	result, err := svc.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if !result.Stress.Tier.IsValid() {
		t.Fatalf("invalid tier: %q", result.Stress.Tier)
	}
	if len(result.Signals) != 1 || result.Signals[0].Symbol != "NVDA" {
		t.Fatalf("expected one NVDA signal, got %+v", result.Signals)
	}
	if result.Signals[0].StressID != 0 {
		t.Fatal("stateless cycle must not fabricate a stress id")
	}
}

func TestRunCyclePersistsAndLinks(t *testing.T) {
	yields, prices := testData()
	stressStore := &stubStressStore{nextID: 6}
	signalStore := &stubSignalStore{}
	svc := testService(t, yields, prices, stressStore, signalStore, nil)

	result, err := svc.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if len(stressStore.inserted) != 1 {
		t.Fatalf("expected stress row persisted, got %d", len(stressStore.inserted))
	}
	if result.Stress.ID != 7 {
		t.Fatalf("expected assigned id 7, got %d", result.Stress.ID)
	}
	if len(signalStore.inserted) != 1 || signalStore.inserted[0].StressID != 7 {
		t.Fatalf("signals not linked to stress row: %+v", signalStore.inserted)
	}
}

func TestRunCycleAlertsOnEscalation(t *testing.T) {
	yields, prices := testData()
	stressStore := &stubStressStore{
		latest: domain.StressSignal{Timestamp: day(0), Tier: domain.TierNeutral},
	}
	alerter := &stubAlerter{}
	svc := testService(t, yields, prices, stressStore, &stubSignalStore{}, alerter)

	result, err := svc.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	wantAlert := escalated(domain.TierNeutral, result.Stress.Tier)
	if wantAlert != (len(alerter.calls) == 1) {
		t.Fatalf("alert mismatch: tier=%s calls=%d", result.Stress.Tier, len(alerter.calls))
	}
}

func TestRunCycleFailsWithoutData(t *testing.T) {
	svc := testService(t,
		&stubYields{err: errors.New("fred down")},
		&stubPrices{err: errors.New("yahoo down")},
		nil, nil, nil)

	_, err := svc.RunCycle(context.Background())
	if !errors.Is(err, domain.ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}
}

func TestEscalated(t *testing.T) {
	for _, tc := range []struct {
		prev, cur domain.Tier
		want      bool
	}{
		{domain.TierNeutral, domain.TierSoon, true},
		{domain.TierNeutral, domain.TierNow, true},
		{domain.TierSoon, domain.TierNow, true},
		{domain.TierNeutral, domain.TierWatch, false},
		{domain.TierNow, domain.TierSoon, false},
		{domain.TierSoon, domain.TierSoon, false},
	} {
		if got := escalated(tc.prev, tc.cur); got != tc.want {
			t.Fatalf("escalated(%s, %s) = %v, want %v", tc.prev, tc.cur, got, tc.want)
		}
	}
}

func TestPerformanceAggregates(t *testing.T) {
	signalStore := &stubSignalStore{outcomes: []repository.SignalOutcome{
		{Symbol: "NVDA", Direction: domain.DirectionBuy, Tier: domain.TierNow, Realized: 0.05},
		{Symbol: "AMD", Direction: domain.DirectionBuy, Tier: domain.TierNow, Realized: -0.01},
		{Symbol: "TSM", Direction: domain.DirectionSell, Tier: domain.TierSoon, Realized: 0.02},
	}}
	yields, prices := testData()
	svc := testService(t, yields, prices, nil, signalStore, nil)

	perf, err := svc.Performance(context.Background())
	if err != nil {
		t.Fatalf("Performance: %v", err)
	}
	if perf.TradeCount != 3 {
		t.Fatalf("trade count = %d, want 3", perf.TradeCount)
	}
	if perf.WinRate < 0.66 || perf.WinRate > 0.67 {
		t.Fatalf("win rate = %g, want 2/3", perf.WinRate)
	}
	now := perf.ByTier["NOW"]
	if now.TradeCount != 2 || now.WinRate != 0.5 {
		t.Fatalf("unexpected NOW tier perf: %+v", now)
	}
}

func TestPerformanceWithoutStore(t *testing.T) {
	yields, prices := testData()
	svc := testService(t, yields, prices, nil, nil, nil)
	if _, err := svc.Performance(context.Background()); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestResolveOutcomesRecordsMaturedSignals(t *testing.T) {
	// NVDA closes follow 500 + 5*(i%9): day 17 closes at 540.
	signalStore := &stubSignalStore{due: []domain.TradingSignal{
		{ID: 1, Symbol: "NVDA", Direction: domain.DirectionBuy, Timestamp: day(10), HorizonDays: 7, EntryPrice: 500},
		{ID: 2, Symbol: "NVDA", Direction: domain.DirectionSell, Timestamp: day(10), HorizonDays: 7, EntryPrice: 500},
		{ID: 3, Symbol: "NVDA", Direction: domain.DirectionBuy, Timestamp: day(55), HorizonDays: 21, EntryPrice: 500}, // exit beyond data
		{ID: 4, Symbol: "NVDA", Direction: domain.DirectionBuy, Timestamp: day(10), HorizonDays: 7, EntryPrice: 0},   // corrupt entry
	}}
	yields, prices := testData()
	svc := testService(t, yields, prices, nil, signalStore, nil)

	resolved, err := svc.ResolveOutcomes(context.Background(), 100)
	if err != nil {
		t.Fatalf("ResolveOutcomes: %v", err)
	}
	if resolved != 2 {
		t.Fatalf("resolved = %d, want 2", resolved)
	}

	want := (540.0 - 500.0) / 500.0
	if got := signalStore.realized[1]; got != want {
		t.Fatalf("BUY realized = %g, want %g", got, want)
	}
	if got := signalStore.realized[2]; got != -want {
		t.Fatalf("SELL realized = %g, want %g", got, -want)
	}
	for _, id := range []int64{3, 4} {
		if _, ok := signalStore.realized[id]; ok {
			t.Fatalf("signal %d must stay unresolved", id)
		}
	}
}

func TestResolveOutcomesWithoutStore(t *testing.T) {
	yields, prices := testData()
	svc := testService(t, yields, prices, nil, nil, nil)

	resolved, err := svc.ResolveOutcomes(context.Background(), 100)
	if err != nil || resolved != 0 {
		t.Fatalf("stateless resolve = (%d, %v), want (0, nil)", resolved, err)
	}
}

func TestBacktestThroughService(t *testing.T) {
	yields, prices := testData()
	svc := testService(t, yields, prices, nil, nil, nil)

	report, err := svc.Backtest(context.Background(), time.Time{}, time.Time{}, 1)
	if err != nil {
		t.Fatalf("Backtest: %v", err)
	}
	if report.Summary.TradeCount != len(report.Trades) {
		t.Fatalf("inconsistent report: %+v", report.Summary)
	}
}
