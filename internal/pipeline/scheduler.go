package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/teemow/inboxagent/internal/logging"
)

// DefaultPollInterval is the time between the start of two cycles.
const DefaultPollInterval = 15 * time.Minute

// Scheduler runs cycles on a fixed interval until its context ends.
type Scheduler struct {
	Runner   *Runner
	Interval time.Duration
	Logger   *slog.Logger

	// OnCycle, when set, is called after every cycle.
	OnCycle func(*Summary, error)
}

// Run runs a cycle immediately and then once per interval. A failed cycle
// is logged and does not stop the loop; the next tick tries again. Run
// returns nil when ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.Runner == nil {
		return fmt.Errorf("scheduler requires a runner")
	}
	interval := s.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logging.WithOperation(logger, "schedule")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Info("scheduler started", "interval", interval)
	for {
		if ctx.Err() != nil {
			logger.Info("scheduler stopped")
			return nil
		}
		sum, err := s.Runner.RunCycle(ctx)
		if s.OnCycle != nil {
			s.OnCycle(sum, err)
		}
		if err != nil && ctx.Err() == nil {
			logger.Warn("cycle failed, waiting for next tick", logging.Err(err))
		}

		select {
		case <-ctx.Done():
			logger.Info("scheduler stopped")
			return nil
		case <-ticker.C:
		}
	}
}
