package backtest

import (
	"time"

	"gonum.org/v1/gonum/stat"
)

// Regime is a fixed market period used to slice backtest results. A zero End
// means the regime is still open.
type Regime struct {
	Name  string
	Start time.Time
	End   time.Time
}

func date(y, m, d int) time.Time {
	return time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
}

// Regimes returns the canonical market periods, most recent last.
func Regimes() []Regime {
	return []Regime{
		{Name: "covid_crash", Start: date(2020, 2, 15), End: date(2020, 4, 30)},
		{Name: "covid_recovery", Start: date(2020, 5, 1), End: date(2021, 12, 31)},
		{Name: "rate_hike_cycle", Start: date(2022, 1, 1), End: date(2023, 7, 31)},
		{Name: "ai_boom", Start: date(2023, 8, 1)},
	}
}

type RegimeStats struct {
	Name       string  `json:"name"`
	TradeCount int     `json:"trade_count"`
	WinRate    float64 `json:"win_rate"`
	MeanReturn float64 `json:"mean_return"`
}

func (r Regime) contains(t time.Time) bool {
	if t.Before(r.Start) {
		return false
	}
	return r.End.IsZero() || !t.After(r.End)
}

// GroupByRegime buckets trades into the canonical periods. Trades outside
// every regime are dropped; regimes without trades are omitted.
func GroupByRegime(trades []Trade) []RegimeStats {
	var out []RegimeStats
	for _, regime := range Regimes() {
		var returns []float64
		wins := 0
		for _, tr := range trades {
			if !regime.contains(tr.Date) {
				continue
			}
			returns = append(returns, tr.ForwardReturn)
			if tr.ForwardReturn > 0 {
				wins++
			}
		}
		if len(returns) == 0 {
			continue
		}
		out = append(out, RegimeStats{
			Name:       regime.Name,
			TradeCount: len(returns),
			WinRate:    float64(wins) / float64(len(returns)),
			MeanReturn: stat.Mean(returns, nil),
		})
	}
	return out
}
