package runner

import (
	"context"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/linkpulse/collector/internal/errors"
	"github.com/linkpulse/collector/internal/logger"
	"github.com/linkpulse/collector/internal/metrics"
	"github.com/linkpulse/collector/internal/store"
)

const (
	// DefaultPeriodDays is the schedule period applied on first install.
	DefaultPeriodDays = 3

	// DefaultPostsLimit bounds the per-post analytics batch when the user
	// has not configured a limit.
	DefaultPostsLimit = 10
)

// RunParams carries the user configuration snapshot taken at run start.
type RunParams struct {
	RunID         string
	Flow          Flow
	Reason        string
	Email         string
	CompanyID     string
	PostsLimit    int
	AdvancedStats bool
}

// RunResult summarizes a completed pipeline run.
type RunResult struct {
	ExportName     string
	PostsProcessed int
	PostsFailed    int
}

// Pipeline executes one end-to-end collection run: open page, interact,
// capture the export, upload. The state machine owns everything around it.
type Pipeline interface {
	Run(ctx context.Context, params RunParams) (*RunResult, error)
}

// Timers arms one-shot wake-ups for retry scheduling. The periodic scheduler
// tick is the backstop for timers lost to a process restart.
type Timers interface {
	AfterFunc(d time.Duration, fn func()) error
}

// StdTimers arms timers on the process clock.
type StdTimers struct{}

func (StdTimers) AfterFunc(d time.Duration, fn func()) error {
	time.AfterFunc(d, fn)
	return nil
}

// HistoryEntry is one completed run, appended to the run-history table.
type HistoryEntry struct {
	RunID          string
	Flow           string
	Reason         string
	Status         string
	Error          string
	PostsProcessed int
	PostsFailed    int
	StartedAt      time.Time
	FinishedAt     time.Time
}

// History persists completed runs. Recording failures are logged, never
// propagated.
type History interface {
	RecordRun(ctx context.Context, entry HistoryEntry) error
}

// Runner is the retry/execution state machine. It drives runs through the
// pipeline, classifies outcomes, and schedules bounded re-attempts with
// enough state persisted to resume after a process restart.
//
// Overlapping triggers (a manual run firing while a scheduled one is
// mid-flight) are not deduplicated; the store is last-write-wins.
type Runner struct {
	store    store.Store
	pipeline Pipeline
	timers   Timers
	progress store.ProgressPublisher
	history  History
	log      *logger.Logger
	now      func() time.Time
}

// Option configures optional Runner collaborators.
type Option func(*Runner)

func WithTimers(t Timers) Option {
	return func(r *Runner) { r.timers = t }
}

func WithProgress(p store.ProgressPublisher) Option {
	return func(r *Runner) { r.progress = p }
}

func WithHistory(h History) Option {
	return func(r *Runner) { r.history = h }
}

func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

func New(s store.Store, pipeline Pipeline, opts ...Option) *Runner {
	r := &Runner{
		store:    s,
		pipeline: pipeline,
		timers:   StdTimers{},
		progress: store.NopPublisher{},
		log:      logger.Default().WithComponent("runner"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// TriggerRun executes one run of the given flow. It validates configuration
// before writing any state, records the Running phase, drives the pipeline,
// and on failure hands off to retry scheduling. The returned error is the
// pipeline error (or a ConfigurationError); callers that fire runs
// asynchronously may discard it since the outcome is persisted.
func (r *Runner) TriggerRun(ctx context.Context, flow Flow, reason string) error {
	params, err := r.loadParams(ctx, flow, reason)
	if err != nil {
		return err
	}

	ctx = apperrors.WithRunID(ctx, params.RunID)
	started := r.now()

	if err := saveRunRecord(ctx, r.store, flow, &RunRecord{Status: StatusRunning, Timestamp: started}); err != nil {
		return err
	}
	r.publish(params, store.StageStarted, StatusRunning, "", nil)
	r.log.Info(ctx, "run started", map[string]interface{}{
		"flow": string(flow), "reason": reason,
	})

	result, runErr := r.pipeline.Run(ctx, params)
	finished := r.now()

	if runErr != nil {
		desc := descriptorFrom(runErr)
		if err := saveRunRecord(ctx, r.store, flow, &RunRecord{Status: StatusFailed, Timestamp: finished, Error: desc}); err != nil {
			r.log.Error(ctx, "failed to persist run failure", err)
		}
		r.publish(params, store.StageFailed, StatusFailed, "", runErr)
		r.recordHistory(ctx, params, StatusFailed, runErr, result, started, finished)
		r.log.Error(ctx, "run failed", runErr, map[string]interface{}{"flow": string(flow)})
		r.ScheduleRetry(ctx, flow)
		return runErr
	}

	if err := saveRunRecord(ctx, r.store, flow, &RunRecord{Status: StatusSuccess, Timestamp: finished}); err != nil {
		r.log.Error(ctx, "failed to persist run success", err)
	}
	if err := r.ResetRetryCount(ctx); err != nil {
		r.log.Error(ctx, "failed to reset retry state", err)
	}
	if err := r.advanceSchedule(ctx, flow); err != nil {
		r.log.Error(ctx, "failed to advance schedule", err)
	}
	r.publish(params, store.StageCompleted, StatusSuccess, "", nil)
	r.recordHistory(ctx, params, StatusSuccess, nil, result, started, finished)
	r.log.Info(ctx, "run completed", map[string]interface{}{
		"flow": string(flow), "duration_ms": finished.Sub(started).Milliseconds(),
	})
	return nil
}

// ScheduleRetry advances the retry state after a failure. Below the attempt
// cap it increments the counter, persists the next retry time, marks the
// record Retrying, and arms a one-shot timer. At the cap it resets the cycle
// and leaves the failure terminal until the next schedule tick. Timer arming
// failures are logged and swallowed.
func (r *Runner) ScheduleRetry(ctx context.Context, flow Flow) {
	state, err := loadRetryState(ctx, r.store)
	if err != nil {
		r.log.Error(ctx, "failed to load retry state", err)
		return
	}

	now := r.now()
	next, arm := state.Next(now)
	if err := saveRetryState(ctx, r.store, next); err != nil {
		r.log.Error(ctx, "failed to persist retry state", err)
		return
	}

	if !arm {
		if err := r.store.Delete(ctx, store.KeyRetryFlow); err != nil {
			r.log.Error(ctx, "failed to clear retry flow", err)
		}
		r.log.Warn(ctx, "retry budget exhausted, waiting for next schedule tick", map[string]interface{}{
			"flow": string(flow), "max_attempts": MaxRetryAttempts,
		})
		return
	}

	if err := r.store.Set(ctx, store.KeyRetryFlow, string(flow)); err != nil {
		r.log.Error(ctx, "failed to persist retry flow", err)
	}

	rec, err := LoadRunRecord(ctx, r.store, flow)
	if err == nil {
		rec.Status = StatusRetrying
		if err := saveRunRecord(ctx, r.store, flow, rec); err != nil {
			r.log.Error(ctx, "failed to mark record retrying", err)
		}
	}

	if err := r.timers.AfterFunc(next.NextRetry.Sub(now), func() {
		r.onRetryTimer(flow)
	}); err != nil {
		r.log.Error(ctx, "failed to arm retry timer", err)
	}

	r.log.Info(ctx, "retry scheduled", map[string]interface{}{
		"flow":    string(flow),
		"attempt": next.Count,
		"at":      next.NextRetry.UTC().Format(time.RFC3339),
	})
}

// onRetryTimer fires when an in-process retry timer elapses. The scheduled
// flag is cleared before the run starts so a concurrently firing scheduler
// tick does not double-execute.
func (r *Runner) onRetryTimer(flow Flow) {
	ctx := context.Background()

	scheduled, err := store.GetBool(ctx, r.store, store.KeyRetryScheduled)
	if err != nil || !scheduled {
		return
	}
	if err := r.clearRetrySchedule(ctx); err != nil {
		r.log.Error(ctx, "failed to clear retry schedule", err)
		return
	}
	_ = r.TriggerRun(ctx, flow, ReasonRetry)
}

// ResetRetryCount zeroes the retry cycle. Idempotent.
func (r *Runner) ResetRetryCount(ctx context.Context) error {
	if err := saveRetryState(ctx, r.store, RetryState{}); err != nil {
		return err
	}
	return r.store.Delete(ctx, store.KeyRetryFlow)
}

// CheckDue compares the persisted next-retry and next-execution timestamps
// against the clock and triggers whatever is overdue. It is invoked once at
// startup (missed-execution recovery) and on every scheduler tick. The
// scheduled flag, respectively the next-execution timestamp, is always
// advanced before the run is invoked so a concurrently firing timer cannot
// double-execute.
func (r *Runner) CheckDue(ctx context.Context) error {
	now := r.now()

	state, err := loadRetryState(ctx, r.store)
	if err != nil {
		return err
	}
	if state.Scheduled && !state.NextRetry.IsZero() && !now.Before(state.NextRetry) {
		flow := r.retryFlow(ctx)
		if err := r.clearRetrySchedule(ctx); err != nil {
			return err
		}
		_ = r.TriggerRun(ctx, flow, ReasonRecovery)
	}

	enabled, err := r.alarmsEnabled(ctx)
	if err != nil {
		return err
	}
	if !enabled {
		return nil
	}

	period, err := r.period(ctx)
	if err != nil {
		return err
	}

	for _, flow := range []Flow{FlowPersonal, FlowCompany} {
		if flow == FlowCompany {
			companyID, err := store.GetString(ctx, r.store, store.KeyCompanyID)
			if err != nil || companyID == "" {
				continue
			}
		}

		keys := keysFor(flow)
		next, err := store.GetTime(ctx, r.store, keys.nextExec)
		if err != nil {
			return err
		}
		if next.IsZero() {
			// First install: seed the schedule without running.
			if err := store.SetTime(ctx, r.store, keys.nextExec, now.Add(period)); err != nil {
				return err
			}
			continue
		}
		if now.Before(next) {
			continue
		}
		if err := store.SetTime(ctx, r.store, keys.nextExec, now.Add(period)); err != nil {
			return err
		}
		_ = r.TriggerRun(ctx, flow, ReasonScheduled)
	}
	return nil
}

// NextExecution reports the persisted next scheduled run of a flow.
func (r *Runner) NextExecution(ctx context.Context, flow Flow) (time.Time, error) {
	return store.GetTime(ctx, r.store, keysFor(flow).nextExec)
}

func (r *Runner) clearRetrySchedule(ctx context.Context) error {
	if err := store.SetBool(ctx, r.store, store.KeyRetryScheduled, false); err != nil {
		return err
	}
	return r.store.Delete(ctx, store.KeyNextRetryTime)
}

func (r *Runner) retryFlow(ctx context.Context) Flow {
	raw, err := store.GetString(ctx, r.store, store.KeyRetryFlow)
	if err == nil && Flow(raw) == FlowCompany {
		return FlowCompany
	}
	return FlowPersonal
}

func (r *Runner) alarmsEnabled(ctx context.Context) (bool, error) {
	raw, ok, err := r.store.Get(ctx, store.KeyAlarmsEnabled)
	if err != nil {
		return false, err
	}
	if !ok {
		return true, nil
	}
	return raw == "true", nil
}

func (r *Runner) period(ctx context.Context) (time.Duration, error) {
	days, err := store.GetInt(ctx, r.store, store.KeyUploadFrequency)
	if err != nil {
		return 0, err
	}
	if days <= 0 {
		days = DefaultPeriodDays
	}
	return time.Duration(days) * 24 * time.Hour, nil
}

func (r *Runner) advanceSchedule(ctx context.Context, flow Flow) error {
	period, err := r.period(ctx)
	if err != nil {
		return err
	}
	return store.SetTime(ctx, r.store, keysFor(flow).nextExec, r.now().Add(period))
}

func (r *Runner) loadParams(ctx context.Context, flow Flow, reason string) (RunParams, error) {
	email, err := store.GetString(ctx, r.store, store.KeyEmail)
	if err != nil {
		return RunParams{}, err
	}
	if email == "" {
		return RunParams{}, apperrors.Configuration("email is not configured")
	}

	companyID, err := store.GetString(ctx, r.store, store.KeyCompanyID)
	if err != nil {
		return RunParams{}, err
	}
	if flow == FlowCompany && companyID == "" {
		return RunParams{}, apperrors.Configuration("company id is not configured")
	}

	limit, err := store.GetInt(ctx, r.store, store.KeyPostsLimit)
	if err != nil {
		return RunParams{}, err
	}
	if limit <= 0 {
		limit = DefaultPostsLimit
	}

	advanced, err := store.GetBool(ctx, r.store, store.KeyAdvancedPostStats)
	if err != nil {
		return RunParams{}, err
	}

	return RunParams{
		RunID:         uuid.New().String(),
		Flow:          flow,
		Reason:        reason,
		Email:         email,
		CompanyID:     companyID,
		PostsLimit:    limit,
		AdvancedStats: advanced,
	}, nil
}

func (r *Runner) publish(params RunParams, stage, status, detail string, err error) {
	ev := &store.ProgressEvent{
		RunID:     params.RunID,
		Flow:      string(params.Flow),
		Stage:     stage,
		Status:    status,
		Detail:    detail,
		Timestamp: r.now(),
	}
	if err != nil {
		ev.Error = err.Error()
	}
	r.progress.PublishProgress(ev)
}

func (r *Runner) recordHistory(ctx context.Context, params RunParams, status string, runErr error, result *RunResult, started, finished time.Time) {
	posts, postsFailed := 0, 0
	if result != nil {
		posts = result.PostsProcessed
		postsFailed = result.PostsFailed
	}
	metrics.Default().RecordRun(string(params.Flow), status, posts, postsFailed)

	if r.history == nil {
		return
	}
	entry := HistoryEntry{
		RunID:      params.RunID,
		Flow:       string(params.Flow),
		Reason:     params.Reason,
		Status:     status,
		StartedAt:  started,
		FinishedAt: finished,
	}
	if runErr != nil {
		entry.Error = runErr.Error()
	}
	if result != nil {
		entry.PostsProcessed = result.PostsProcessed
		entry.PostsFailed = result.PostsFailed
	}
	if err := r.history.RecordRun(ctx, entry); err != nil {
		r.log.Error(ctx, "failed to record run history", err)
	}
}

func descriptorFrom(err error) *ErrorDescriptor {
	appErr := apperrors.FromError(err)
	return &ErrorDescriptor{
		Name:    appErr.Code,
		Message: appErr.Message,
		Context: appErr.Details,
	}
}
