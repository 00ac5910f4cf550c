package job

import (
	"context"
	"log"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// OutcomeResolver records realized returns for signals whose horizon has
// elapsed.
type OutcomeResolver interface {
	ResolveOutcomes(ctx context.Context, limit int) (int, error)
}

// OutcomeResolverJob periodically resolves matured signal outcomes so the
// performance summary reflects what actually happened.
type OutcomeResolverJob struct {
	tracer    trace.Tracer
	resolver  OutcomeResolver
	interval  time.Duration
	batchSize int
}

func NewOutcomeResolverJob(tracer trace.Tracer, resolver OutcomeResolver, interval time.Duration, batchSize int) *OutcomeResolverJob {
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	if batchSize <= 0 {
		batchSize = 200
	}
	return &OutcomeResolverJob{tracer: tracer, resolver: resolver, interval: interval, batchSize: batchSize}
}

// Start blocks until ctx is cancelled, resolving once immediately and then
// once per interval.
func (j *OutcomeResolverJob) Start(ctx context.Context) {
	if j.resolver == nil {
		log.Println("outcome resolver disabled: no resolver")
		<-ctx.Done()
		return
	}

	j.runOnce(ctx)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("outcome resolver stopped")
			return
		case <-ticker.C:
			j.runOnce(ctx)
		}
	}
}

func (j *OutcomeResolverJob) runOnce(ctx context.Context) {
	ctx, span := j.tracer.Start(ctx, "outcome-resolver.run-once")
	defer span.End()

	resolved, err := j.resolver.ResolveOutcomes(ctx, j.batchSize)
	if err != nil {
		log.Printf("outcome resolution error: %v", err)
		return
	}
	if resolved > 0 {
		log.Printf("resolved %d signal outcomes", resolved)
	}
}
