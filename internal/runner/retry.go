package runner

import (
	"context"
	"time"

	"github.com/linkpulse/collector/internal/store"
)

const (
	// MaxRetryAttempts bounds one failure cycle. Once exhausted, the failure
	// is terminal until the next natural schedule tick.
	MaxRetryAttempts = 3

	// RetryInterval is the delay between re-attempts of a failed run.
	RetryInterval = 2 * time.Minute
)

// RetryState is the persisted retry bookkeeping for the current failure
// cycle. Invariant: Scheduled implies NextRetry is set and Count is at most
// MaxRetryAttempts.
type RetryState struct {
	Count     int
	NextRetry time.Time
	Scheduled bool
}

// Next returns the state after one scheduling decision and whether a retry
// timer should be armed. At the attempt cap the state resets to zero and no
// timer is armed.
func (s RetryState) Next(now time.Time) (RetryState, bool) {
	if s.Count >= MaxRetryAttempts {
		return RetryState{}, false
	}
	return RetryState{
		Count:     s.Count + 1,
		NextRetry: now.Add(RetryInterval),
		Scheduled: true,
	}, true
}

// LoadRetryState reads the persisted retry bookkeeping. Exposed for status
// reporting; only the state machine mutates it.
func LoadRetryState(ctx context.Context, s store.Store) (RetryState, error) {
	return loadRetryState(ctx, s)
}

func loadRetryState(ctx context.Context, s store.Store) (RetryState, error) {
	count, err := store.GetInt(ctx, s, store.KeyRetryCount)
	if err != nil {
		return RetryState{}, err
	}
	scheduled, err := store.GetBool(ctx, s, store.KeyRetryScheduled)
	if err != nil {
		return RetryState{}, err
	}
	next, err := store.GetTime(ctx, s, store.KeyNextRetryTime)
	if err != nil {
		return RetryState{}, err
	}
	return RetryState{Count: count, NextRetry: next, Scheduled: scheduled}, nil
}

func saveRetryState(ctx context.Context, s store.Store, state RetryState) error {
	if err := store.SetInt(ctx, s, store.KeyRetryCount, state.Count); err != nil {
		return err
	}
	if err := store.SetBool(ctx, s, store.KeyRetryScheduled, state.Scheduled); err != nil {
		return err
	}
	if state.NextRetry.IsZero() {
		return s.Delete(ctx, store.KeyNextRetryTime)
	}
	return store.SetTime(ctx, s, store.KeyNextRetryTime, state.NextRetry)
}
