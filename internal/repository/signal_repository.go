package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/trace"

	"bondwatch/internal/domain"
)

const createSignalsTable = `
CREATE TABLE IF NOT EXISTS trading_signals (
    id                BIGSERIAL   PRIMARY KEY,
    stress_id         BIGINT      REFERENCES stress_signals (id) ON DELETE CASCADE,
    observed_at       TIMESTAMPTZ NOT NULL,
    symbol            TEXT        NOT NULL,
    direction         TEXT        NOT NULL,
    tier              TEXT        NOT NULL,
    confidence        NUMERIC     NOT NULL,
    horizon_days      INT         NOT NULL,
    correlation       NUMERIC     NOT NULL,
    position_size     NUMERIC     NOT NULL,
    entry_price       NUMERIC     NOT NULL,
    stop_loss         NUMERIC     NOT NULL,
    take_profit       NUMERIC     NOT NULL,
    rationale         TEXT        NOT NULL,
    realized_return   NUMERIC,
    UNIQUE (observed_at, symbol)
);

CREATE INDEX IF NOT EXISTS idx_trading_signals_symbol_time
    ON trading_signals (symbol, observed_at DESC);
`

type SignalRepository struct {
	pool   PgxPool
	tracer trace.Tracer
}

func NewSignalRepository(pool PgxPool, tracer trace.Tracer) *SignalRepository {
	return &SignalRepository{pool: pool, tracer: tracer}
}

func (r *SignalRepository) RunMigrations(ctx context.Context) error {
	_, span := r.tracer.Start(ctx, "signal-repo.run-migrations")
	defer span.End()

	_, err := r.pool.Exec(ctx, createSignalsTable)
	return err
}

// InsertBatch stores one cycle's signals. Re-running a cycle overwrites the
// prior rows for the same (observation, symbol) pairs.
func (r *SignalRepository) InsertBatch(ctx context.Context, signals []domain.TradingSignal) error {
	if len(signals) == 0 {
		return nil
	}

	_, span := r.tracer.Start(ctx, "signal-repo.insert-batch")
	defer span.End()

	batch := &pgx.Batch{}
	for _, s := range signals {
		batch.Queue(
			`INSERT INTO trading_signals
			     (stress_id, observed_at, symbol, direction, tier, confidence, horizon_days,
			      correlation, position_size, entry_price, stop_loss, take_profit, rationale)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
			 ON CONFLICT (observed_at, symbol) DO UPDATE SET
			     stress_id = EXCLUDED.stress_id,
			     direction = EXCLUDED.direction,
			     tier = EXCLUDED.tier,
			     confidence = EXCLUDED.confidence,
			     horizon_days = EXCLUDED.horizon_days,
			     correlation = EXCLUDED.correlation,
			     position_size = EXCLUDED.position_size,
			     entry_price = EXCLUDED.entry_price,
			     stop_loss = EXCLUDED.stop_loss,
			     take_profit = EXCLUDED.take_profit,
			     rationale = EXCLUDED.rationale`,
			s.StressID, s.Timestamp, s.Symbol, string(s.Direction), string(s.Tier),
			s.Confidence, s.HorizonDays, s.Correlation, s.PositionSize,
			s.EntryPrice, s.StopLoss, s.TakeProfit, s.Rationale,
		)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range signals {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// Recent returns signals matching the filter, newest first.
func (r *SignalRepository) Recent(ctx context.Context, f domain.SignalFilter) ([]domain.TradingSignal, error) {
	_, span := r.tracer.Start(ctx, "signal-repo.recent")
	defer span.End()

	var (
		conds []string
		args  []any
	)
	if f.Symbol != "" {
		args = append(args, f.Symbol)
		conds = append(conds, fmt.Sprintf("symbol = $%d", len(args)))
	}
	if f.Direction != "" {
		args = append(args, string(f.Direction))
		conds = append(conds, fmt.Sprintf("direction = $%d", len(args)))
	}
	if f.Tier != "" {
		args = append(args, string(f.Tier))
		conds = append(conds, fmt.Sprintf("tier = $%d", len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}

	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	args = append(args, limit)

	rows, err := r.pool.Query(ctx, fmt.Sprintf(
		`SELECT id, COALESCE(stress_id, 0), observed_at, symbol, direction, tier, confidence,
		        horizon_days, correlation, position_size, entry_price, stop_loss, take_profit, rationale
		 FROM trading_signals
		 %s
		 ORDER BY observed_at DESC, symbol ASC
		 LIMIT $%d`, where, len(args)),
		args...,
	)
	if err != nil {
		return nil, err
	}
	return scanSignals(rows)
}

// UnresolvedDue returns directional signals whose horizon elapsed at or
// before cutoff and which have no recorded outcome yet, oldest first.
func (r *SignalRepository) UnresolvedDue(ctx context.Context, cutoff time.Time, limit int) ([]domain.TradingSignal, error) {
	_, span := r.tracer.Start(ctx, "signal-repo.unresolved-due")
	defer span.End()

	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx,
		`SELECT id, COALESCE(stress_id, 0), observed_at, symbol, direction, tier, confidence,
		        horizon_days, correlation, position_size, entry_price, stop_loss, take_profit, rationale
		 FROM trading_signals
		 WHERE realized_return IS NULL
		   AND direction <> 'HOLD'
		   AND observed_at + horizon_days * INTERVAL '1 day' <= $1
		 ORDER BY observed_at ASC
		 LIMIT $2`,
		cutoff.UTC(), limit,
	)
	if err != nil {
		return nil, err
	}
	return scanSignals(rows)
}

func scanSignals(rows pgx.Rows) ([]domain.TradingSignal, error) {
	defer rows.Close()

	var signals []domain.TradingSignal
	for rows.Next() {
		var (
			s         domain.TradingSignal
			direction string
			tier      string
		)
		if err := rows.Scan(&s.ID, &s.StressID, &s.Timestamp, &s.Symbol, &direction, &tier,
			&s.Confidence, &s.HorizonDays, &s.Correlation, &s.PositionSize,
			&s.EntryPrice, &s.StopLoss, &s.TakeProfit, &s.Rationale); err != nil {
			return nil, err
		}
		s.Direction = domain.Direction(direction)
		s.Tier = domain.Tier(tier)
		signals = append(signals, s)
	}
	return signals, rows.Err()
}

// SetRealizedReturn records the direction-adjusted forward return once a
// signal's horizon has elapsed.
func (r *SignalRepository) SetRealizedReturn(ctx context.Context, id int64, realized float64) error {
	_, span := r.tracer.Start(ctx, "signal-repo.set-realized-return")
	defer span.End()

	tag, err := r.pool.Exec(ctx,
		`UPDATE trading_signals SET realized_return = $2 WHERE id = $1`, id, realized)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SignalOutcome is one realized row for the performance summary.
type SignalOutcome struct {
	ID        int64            `json:"id"`
	Symbol    string           `json:"symbol"`
	Direction domain.Direction `json:"direction"`
	Tier      domain.Tier      `json:"tier"`
	Realized  float64          `json:"realized_return"`
}

// RealizedOutcomes returns every directional signal with a recorded outcome.
func (r *SignalRepository) RealizedOutcomes(ctx context.Context) ([]SignalOutcome, error) {
	_, span := r.tracer.Start(ctx, "signal-repo.realized-outcomes")
	defer span.End()

	rows, err := r.pool.Query(ctx,
		`SELECT id, symbol, direction, tier, realized_return
		 FROM trading_signals
		 WHERE realized_return IS NOT NULL AND direction <> 'HOLD'
		 ORDER BY observed_at ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var outcomes []SignalOutcome
	for rows.Next() {
		var (
			o         SignalOutcome
			direction string
			tier      string
		)
		if err := rows.Scan(&o.ID, &o.Symbol, &direction, &tier, &o.Realized); err != nil {
			return nil, err
		}
		o.Direction = domain.Direction(direction)
		o.Tier = domain.Tier(tier)
		outcomes = append(outcomes, o)
	}
	return outcomes, rows.Err()
}
