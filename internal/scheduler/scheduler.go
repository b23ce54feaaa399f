package scheduler

import (
	"context"
	"time"

	"github.com/linkpulse/collector/internal/logger"
)

// DefaultCheckInterval is how often persisted next-execution timestamps are
// compared against the wall clock.
const DefaultCheckInterval = time.Minute

// Trigger is the slice of the run state machine the scheduler drives.
type Trigger interface {
	CheckDue(ctx context.Context) error
}

// Scheduler is the alarm driver. It performs one due-check at startup
// (missed-execution recovery after downtime) and then wakes on a fixed
// interval to fire whatever the persisted timestamps say is overdue. All
// timing state lives in the store, so a restart mid-cycle loses nothing.
type Scheduler struct {
	trigger  Trigger
	interval time.Duration
	log      *logger.Logger
}

func New(trigger Trigger, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = DefaultCheckInterval
	}
	return &Scheduler{
		trigger:  trigger,
		interval: interval,
		log:      logger.Default().WithComponent("scheduler"),
	}
}

// Run blocks until ctx is cancelled. Due-check failures are logged and the
// loop continues; a broken store read on one tick must not kill the driver.
func (s *Scheduler) Run(ctx context.Context) {
	s.log.Info(ctx, "scheduler started", map[string]interface{}{
		"check_interval": s.interval.String(),
	})

	if err := s.trigger.CheckDue(ctx); err != nil {
		s.log.Error(ctx, "startup recovery check failed", err)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info(ctx, "scheduler stopped")
			return
		case <-ticker.C:
			if err := s.trigger.CheckDue(ctx); err != nil {
				s.log.Error(ctx, "due check failed", err)
			}
		}
	}
}
