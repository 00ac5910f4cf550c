package job

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"go.opentelemetry.io/otel/trace/noop"

	"bondwatch/internal/domain"
)

type stubRunner struct {
	calls atomic.Int32
	block chan struct{}
}

func (s *stubRunner) RunCycle(ctx context.Context) (domain.CycleResult, error) {
	s.calls.Add(1)
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
		}
	}
	return domain.CycleResult{Stress: domain.StressSignal{Tier: domain.TierNeutral}}, nil
}

func TestPollerRunsImmediatelyAndStops(t *testing.T) {
	runner := &stubRunner{}
	p := NewStressPoller(noop.NewTracerProvider().Tracer("test"), runner, 3600)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Start(ctx)
		close(done)
	}()

	waitFor(t, func() bool { return runner.calls.Load() == 1 })
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("poller did not stop on cancel")
	}
}

func TestPollerSkipsOverlappingCycle(t *testing.T) {
	runner := &stubRunner{block: make(chan struct{})}
	p := NewStressPoller(noop.NewTracerProvider().Tracer("test"), runner, 3600)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go p.runOnce(ctx) // long-running cycle holds the flight slot
	waitFor(t, func() bool { return runner.calls.Load() == 1 })

	p.runOnce(ctx) // tick while busy: must return without running
	if got := runner.calls.Load(); got != 1 {
		t.Fatalf("overlapping cycle ran: %d calls", got)
	}

	close(runner.block)
	waitFor(t, func() bool { return !p.running.Load() })

	p.runOnce(ctx)
	if got := runner.calls.Load(); got != 2 {
		t.Fatalf("expected cycle after slot freed, got %d calls", got)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}
