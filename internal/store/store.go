package store

import (
	"context"
	"strconv"
	"time"
)

// Key is a typed configuration key. All durable state lives under these keys;
// absence of a key means the zero value.
type Key string

const (
	KeyEmail           Key = "email"
	KeyCompanyID       Key = "company_id"
	KeyUploadFrequency Key = "upload_frequency" // period in days

	KeyNextExecution        Key = "next_execution"
	KeyNextCompanyExecution Key = "next_company_execution"

	KeyRetryCount     Key = "retry_count"
	KeyNextRetryTime  Key = "next_retry_time"
	KeyRetryScheduled Key = "retry_scheduled"
	KeyRetryFlow      Key = "retry_flow"

	KeyLastExecutionStatus Key = "last_execution_status"
	KeyLastExecutionTime   Key = "last_execution_time"
	KeyLastExecutionError  Key = "last_execution_error"

	KeyLastCompanyExecutionStatus Key = "last_company_execution_status"
	KeyLastCompanyExecutionTime   Key = "last_company_execution_time"
	KeyLastCompanyExecutionError  Key = "last_company_execution_error"

	KeyAdvancedPostStats Key = "advanced_post_stats"
	KeyPostsLimit        Key = "posts_limit"
	KeyAlarmsEnabled     Key = "alarms_enabled"
)

// Store is the durable key-value configuration store shared by the scheduler,
// the run state machine and the control API. Implementations must treat a
// missing key as (value "", ok false, err nil).
type Store interface {
	Get(ctx context.Context, key Key) (string, bool, error)
	Set(ctx context.Context, key Key, value string) error
	Delete(ctx context.Context, keys ...Key) error
}

// Typed accessors. Parse failures surface as the zero value rather than an
// error so a corrupt entry degrades to defaults.

func GetInt(ctx context.Context, s Store, key Key) (int, error) {
	raw, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return 0, err
	}
	n, convErr := strconv.Atoi(raw)
	if convErr != nil {
		return 0, nil
	}
	return n, nil
}

func SetInt(ctx context.Context, s Store, key Key, value int) error {
	return s.Set(ctx, key, strconv.Itoa(value))
}

func GetBool(ctx context.Context, s Store, key Key) (bool, error) {
	raw, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	b, convErr := strconv.ParseBool(raw)
	if convErr != nil {
		return false, nil
	}
	return b, nil
}

func SetBool(ctx context.Context, s Store, key Key, value bool) error {
	return s.Set(ctx, key, strconv.FormatBool(value))
}

func GetTime(ctx context.Context, s Store, key Key) (time.Time, error) {
	raw, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return time.Time{}, err
	}
	t, convErr := time.Parse(time.RFC3339Nano, raw)
	if convErr != nil {
		return time.Time{}, nil
	}
	return t, nil
}

func SetTime(ctx context.Context, s Store, key Key, value time.Time) error {
	return s.Set(ctx, key, value.UTC().Format(time.RFC3339Nano))
}

func GetString(ctx context.Context, s Store, key Key) (string, error) {
	raw, _, err := s.Get(ctx, key)
	return raw, err
}
