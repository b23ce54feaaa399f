package runner

import (
	"context"
	"encoding/json"
	"time"

	"github.com/linkpulse/collector/internal/store"
)

// Flow identifies which analytics surface a run targets.
type Flow string

const (
	FlowPersonal Flow = "personal"
	FlowCompany  Flow = "company"
)

// Run status values. Failed covers both a retryable failure and the terminal
// state after the retry budget is exhausted.
const (
	StatusIdle     = "idle"
	StatusRunning  = "running"
	StatusSuccess  = "success"
	StatusFailed   = "failed"
	StatusRetrying = "retrying"
)

// Trigger reasons.
const (
	ReasonScheduled = "scheduled"
	ReasonRetry     = "retry"
	ReasonRecovery  = "recovery"
	ReasonManual    = "manual"
)

// ErrorDescriptor is the persisted shape of a run failure.
type ErrorDescriptor struct {
	Name    string         `json:"name"`
	Message string         `json:"message"`
	Context map[string]any `json:"context,omitempty"`
}

// RunRecord is the last-known outcome of one flow, persisted for display by
// the control API. It is mutated only by the state machine at phase
// boundaries.
type RunRecord struct {
	Status    string           `json:"status"`
	Timestamp time.Time        `json:"timestamp"`
	Error     *ErrorDescriptor `json:"error,omitempty"`
}

type flowKeys struct {
	status    store.Key
	timestamp store.Key
	lastError store.Key
	nextExec  store.Key
}

func keysFor(flow Flow) flowKeys {
	if flow == FlowCompany {
		return flowKeys{
			status:    store.KeyLastCompanyExecutionStatus,
			timestamp: store.KeyLastCompanyExecutionTime,
			lastError: store.KeyLastCompanyExecutionError,
			nextExec:  store.KeyNextCompanyExecution,
		}
	}
	return flowKeys{
		status:    store.KeyLastExecutionStatus,
		timestamp: store.KeyLastExecutionTime,
		lastError: store.KeyLastExecutionError,
		nextExec:  store.KeyNextExecution,
	}
}

// LoadRunRecord reads the persisted record for a flow. A flow that never ran
// reports Idle.
func LoadRunRecord(ctx context.Context, s store.Store, flow Flow) (*RunRecord, error) {
	keys := keysFor(flow)

	status, ok, err := s.Get(ctx, keys.status)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &RunRecord{Status: StatusIdle}, nil
	}

	rec := &RunRecord{Status: status}
	if ts, err := store.GetTime(ctx, s, keys.timestamp); err == nil {
		rec.Timestamp = ts
	}

	raw, ok, err := s.Get(ctx, keys.lastError)
	if err == nil && ok && raw != "" {
		var desc ErrorDescriptor
		if json.Unmarshal([]byte(raw), &desc) == nil {
			rec.Error = &desc
		}
	}
	return rec, nil
}

func saveRunRecord(ctx context.Context, s store.Store, flow Flow, rec *RunRecord) error {
	keys := keysFor(flow)

	if err := s.Set(ctx, keys.status, rec.Status); err != nil {
		return err
	}
	if err := store.SetTime(ctx, s, keys.timestamp, rec.Timestamp); err != nil {
		return err
	}
	if rec.Error == nil {
		return s.Delete(ctx, keys.lastError)
	}
	data, err := json.Marshal(rec.Error)
	if err != nil {
		return err
	}
	return s.Set(ctx, keys.lastError, string(data))
}
