package domain

import "time"

// Tier is the urgency classification derived from the composite stress score.
type Tier string

const (
	TierNow     Tier = "NOW"
	TierSoon    Tier = "SOON"
	TierWatch   Tier = "WATCH"
	TierNeutral Tier = "NEUTRAL"
)

// Rank orders tiers by urgency: NEUTRAL < WATCH < SOON < NOW.
func (t Tier) Rank() int {
	switch t {
	case TierNow:
		return 3
	case TierSoon:
		return 2
	case TierWatch:
		return 1
	default:
		return 0
	}
}

func (t Tier) IsValid() bool {
	switch t {
	case TierNow, TierSoon, TierWatch, TierNeutral:
		return true
	}
	return false
}

type Direction string

const (
	DirectionBuy  Direction = "BUY"
	DirectionSell Direction = "SELL"
	DirectionHold Direction = "HOLD"
)

// Feature is an optionally-present scalar. Valid is false when the
// underlying series lacked the history to compute it; consumers treat an
// invalid feature as contributing nothing rather than failing the cycle.
type Feature struct {
	Value float64 `json:"value"`
	Valid bool    `json:"valid"`
}

// StressFeatures is the point-in-time feature bundle the classifier scores.
type StressFeatures struct {
	Timestamp        time.Time `json:"timestamp"`
	YieldCurveSpread Feature   `json:"yield_curve_spread"`
	SpreadZShort     Feature   `json:"yield_curve_zscore_short"`
	SpreadZLong      Feature   `json:"yield_curve_zscore_long"`
	BondVolatility   Feature   `json:"bond_volatility"`
	VolatilityZ      Feature   `json:"bond_volatility_zscore"`
	CreditSpread     Feature   `json:"credit_spread_proxy"`
	CreditZ          Feature   `json:"credit_spread_zscore"`
}

// StressSignal is the per-cycle classification output. Immutable after creation.
type StressSignal struct {
	ID             int64          `json:"id,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
	Features       StressFeatures `json:"features"`
	CompositeScore float64        `json:"composite_score"`
	Tier           Tier           `json:"tier"`
	Confidence     float64        `json:"confidence"`
	Rationale      string         `json:"rationale"`
}

// TradingSignal is one symbol's recommendation for a cycle, derived from
// that cycle's StressSignal plus the symbol's own price history.
type TradingSignal struct {
	ID           int64     `json:"id,omitempty"`
	StressID     int64     `json:"stress_id,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
	Symbol       string    `json:"symbol"`
	Direction    Direction `json:"direction"`
	Tier         Tier      `json:"tier"`
	Confidence   float64   `json:"confidence"`
	HorizonDays  int       `json:"horizon_days"`
	Correlation  float64   `json:"correlation"`
	PositionSize float64   `json:"position_size_fraction"`
	EntryPrice   float64   `json:"entry_price"`
	StopLoss     float64   `json:"stop_loss"`
	TakeProfit   float64   `json:"take_profit"`
	Rationale    string    `json:"rationale"`
}

// SignalFilter narrows trading-signal queries.
type SignalFilter struct {
	Symbol    string
	Direction Direction
	Tier      Tier
	Limit     int
}

// CycleResult bundles everything one scoring cycle produced.
type CycleResult struct {
	Stress  StressSignal    `json:"stress"`
	Signals []TradingSignal `json:"signals"`
}
