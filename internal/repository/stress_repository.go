package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/trace"

	"bondwatch/internal/domain"
)

const createStressTable = `
CREATE TABLE IF NOT EXISTS stress_signals (
    id              BIGSERIAL   PRIMARY KEY,
    observed_at     TIMESTAMPTZ NOT NULL UNIQUE,
    composite_score NUMERIC     NOT NULL,
    tier            TEXT        NOT NULL,
    confidence      NUMERIC     NOT NULL,
    rationale       TEXT        NOT NULL,
    features        JSONB       NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_stress_signals_observed_at
    ON stress_signals (observed_at DESC);
`

// PgxPool is the subset of pgxpool.Pool the repositories use.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// ErrNotFound is returned when a query has no matching row.
var ErrNotFound = errors.New("not found")

type StressRepository struct {
	pool   PgxPool
	tracer trace.Tracer
}

func NewStressRepository(pool PgxPool, tracer trace.Tracer) *StressRepository {
	return &StressRepository{pool: pool, tracer: tracer}
}

func (r *StressRepository) RunMigrations(ctx context.Context) error {
	_, span := r.tracer.Start(ctx, "stress-repo.run-migrations")
	defer span.End()

	_, err := r.pool.Exec(ctx, createStressTable)
	return err
}

// Insert stores one cycle's classification and returns its id. Re-running a
// cycle for the same observation time overwrites the previous row.
func (r *StressRepository) Insert(ctx context.Context, s domain.StressSignal) (int64, error) {
	_, span := r.tracer.Start(ctx, "stress-repo.insert")
	defer span.End()

	features, err := json.Marshal(s.Features)
	if err != nil {
		return 0, fmt.Errorf("encode stress features: %w", err)
	}

	var id int64
	err = r.pool.QueryRow(ctx,
		`INSERT INTO stress_signals (observed_at, composite_score, tier, confidence, rationale, features)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (observed_at) DO UPDATE SET
		     composite_score = EXCLUDED.composite_score,
		     tier = EXCLUDED.tier,
		     confidence = EXCLUDED.confidence,
		     rationale = EXCLUDED.rationale,
		     features = EXCLUDED.features
		 RETURNING id`,
		s.Timestamp, s.CompositeScore, string(s.Tier), s.Confidence, s.Rationale, features,
	).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// Latest returns the most recent classification.
func (r *StressRepository) Latest(ctx context.Context) (domain.StressSignal, error) {
	_, span := r.tracer.Start(ctx, "stress-repo.latest")
	defer span.End()

	var (
		s        domain.StressSignal
		tier     string
		features []byte
	)
	err := r.pool.QueryRow(ctx,
		`SELECT id, observed_at, composite_score, tier, confidence, rationale, features
		 FROM stress_signals
		 ORDER BY observed_at DESC
		 LIMIT 1`,
	).Scan(&s.ID, &s.Timestamp, &s.CompositeScore, &tier, &s.Confidence, &s.Rationale, &features)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.StressSignal{}, ErrNotFound
	}
	if err != nil {
		return domain.StressSignal{}, err
	}
	s.Tier = domain.Tier(tier)
	if err := json.Unmarshal(features, &s.Features); err != nil {
		return domain.StressSignal{}, fmt.Errorf("decode stress features: %w", err)
	}
	return s, nil
}

// ScoreHistory returns up to limit composite scores ascending by time. The
// signal engine correlates symbol returns against this series.
func (r *StressRepository) ScoreHistory(ctx context.Context, limit int) (domain.Series, error) {
	_, span := r.tracer.Start(ctx, "stress-repo.score-history")
	defer span.End()

	rows, err := r.pool.Query(ctx,
		`SELECT observed_at, composite_score FROM (
		     SELECT observed_at, composite_score
		     FROM stress_signals
		     ORDER BY observed_at DESC
		     LIMIT $1
		 ) recent
		 ORDER BY observed_at ASC`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var series domain.Series
	for rows.Next() {
		var p domain.Point
		if err := rows.Scan(&p.Time, &p.Value); err != nil {
			return nil, err
		}
		series = append(series, p)
	}
	return series, rows.Err()
}
