// Package job runs the background scoring cadence.
package job

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/trace"

	"bondwatch/internal/domain"
)

// CycleRunner is the slice of the stress service the poller drives.
type CycleRunner interface {
	RunCycle(ctx context.Context) (domain.CycleResult, error)
}

// StressPoller triggers a scoring cycle on a fixed cadence. Cycles are
// single-flight: if one is still running when the ticker fires, that tick is
// skipped rather than queued.
type StressPoller struct {
	tracer   trace.Tracer
	runner   CycleRunner
	interval time.Duration
	running  atomic.Bool
}

func NewStressPoller(tracer trace.Tracer, runner CycleRunner, intervalSecs int) *StressPoller {
	return &StressPoller{
		tracer:   tracer,
		runner:   runner,
		interval: time.Duration(intervalSecs) * time.Second,
	}
}

// Start blocks until ctx is cancelled, running one cycle immediately and
// then one per interval.
func (p *StressPoller) Start(ctx context.Context) {
	log.Println("Stress poller starting...")

	p.runOnce(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Stress poller stopped")
			return
		case <-ticker.C:
			go p.runOnce(ctx)
		}
	}
}

func (p *StressPoller) runOnce(ctx context.Context) {
	if !p.running.CompareAndSwap(false, true) {
		log.Println("previous scoring cycle still running, skipping tick")
		return
	}
	defer p.running.Store(false)

	ctx, span := p.tracer.Start(ctx, "stress-poller.cycle")
	defer span.End()

	result, err := p.runner.RunCycle(ctx)
	if err != nil {
		log.Printf("scoring cycle error: %v", err)
		return
	}
	log.Printf("scoring cycle complete: tier=%s score=%.0f signals=%d",
		result.Stress.Tier, result.Stress.CompositeScore, len(result.Signals))
}
