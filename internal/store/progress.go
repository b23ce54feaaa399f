package store

import "time"

// Run progress stages published over the progress channel.
const (
	StageStarted   = "started"
	StagePage      = "page"
	StageExport    = "export"
	StageExtract   = "extract"
	StagePost      = "post"
	StageUpload    = "upload"
	StageCompleted = "completed"
	StageFailed    = "failed"
)

// ProgressEvent describes one state change of a collection run. Events are
// published by the state machine and consumed by the websocket handler.
type ProgressEvent struct {
	RunID     string    `json:"run_id"`
	Flow      string    `json:"flow"`
	Stage     string    `json:"stage"`
	Status    string    `json:"status"`
	Detail    string    `json:"detail,omitempty"`
	Error     string    `json:"error,omitempty"`
	PostsDone int       `json:"posts_done,omitempty"`
	PostsAll  int       `json:"posts_all,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ProgressPublisher pushes run progress events to interested listeners.
type ProgressPublisher interface {
	PublishProgress(ev *ProgressEvent)
}

// NopPublisher discards progress events.
type NopPublisher struct{}

func (NopPublisher) PublishProgress(*ProgressEvent) {}
