package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type countingTrigger struct {
	calls int32
	err   error
}

func (c *countingTrigger) CheckDue(ctx context.Context) error {
	atomic.AddInt32(&c.calls, 1)
	return c.err
}

func TestScheduler_ChecksAtStartupAndOnTicks(t *testing.T) {
	trigger := &countingTrigger{}
	s := New(trigger, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 55*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	calls := atomic.LoadInt32(&trigger.calls)
	if calls < 2 {
		t.Errorf("expected startup check plus at least one tick, got %d calls", calls)
	}
}

func TestScheduler_SurvivesCheckFailures(t *testing.T) {
	trigger := &countingTrigger{err: errors.New("store unavailable")}
	s := New(trigger, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 35*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	if calls := atomic.LoadInt32(&trigger.calls); calls < 2 {
		t.Errorf("loop stopped after failure, got %d calls", calls)
	}
}

func TestScheduler_DefaultInterval(t *testing.T) {
	s := New(&countingTrigger{}, 0)
	if s.interval != DefaultCheckInterval {
		t.Errorf("interval = %v, want %v", s.interval, DefaultCheckInterval)
	}
}
