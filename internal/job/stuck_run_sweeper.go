package job

import (
	"context"
	"log"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// StuckRunFailer marks long-idle non-terminal runs as failed.
type StuckRunFailer interface {
	FailStuck(ctx context.Context, olderThan time.Duration) (int64, error)
}

// StuckRunSweeper periodically fails runs that stopped making progress,
// typically after a crash left rows in a non-terminal state.
type StuckRunSweeper struct {
	tracer    trace.Tracer
	runs      StuckRunFailer
	interval  time.Duration
	threshold time.Duration
}

func NewStuckRunSweeper(tracer trace.Tracer, runs StuckRunFailer, interval, threshold time.Duration) *StuckRunSweeper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if threshold <= 0 {
		threshold = 30 * time.Minute
	}
	return &StuckRunSweeper{tracer: tracer, runs: runs, interval: interval, threshold: threshold}
}

// Start sweeps once immediately, then on every tick. Blocks until ctx is
// cancelled.
func (s *StuckRunSweeper) Start(ctx context.Context) {
	if s.runs == nil {
		log.Println("Stuck-run sweeper disabled: no run repository")
		<-ctx.Done()
		return
	}

	log.Println("Stuck-run sweeper starting...")
	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Stuck-run sweeper stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// Sweep runs a single pass. Exposed for the one-shot CLI.
func (s *StuckRunSweeper) Sweep(ctx context.Context) (int64, error) {
	ctx, span := s.tracer.Start(ctx, "sweeper.sweep")
	defer span.End()

	return s.runs.FailStuck(ctx, s.threshold)
}

func (s *StuckRunSweeper) sweep(ctx context.Context) {
	n, err := s.Sweep(ctx)
	if err != nil {
		log.Printf("stuck-run sweep error: %v", err)
		return
	}
	if n > 0 {
		log.Printf("stuck-run sweep failed %d run(s)", n)
	}
}
