package db

import (
	"context"

	"github.com/linkpulse/collector/internal/runner"
)

// RunRepository persists the append-only run history. It implements
// runner.History.
type RunRepository struct {
	db *DB
}

func NewRunRepository(db *DB) *RunRepository {
	return &RunRepository{db: db}
}

func (r *RunRepository) RecordRun(ctx context.Context, entry runner.HistoryEntry) error {
	query := `
		INSERT INTO runs (run_id, flow, reason, status, error, posts_processed, posts_failed, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.db.ExecContext(ctx, query,
		entry.RunID, entry.Flow, entry.Reason, entry.Status, entry.Error,
		entry.PostsProcessed, entry.PostsFailed, entry.StartedAt, entry.FinishedAt,
	)
	return err
}

// ListRecent returns the most recent runs, newest first.
func (r *RunRepository) ListRecent(ctx context.Context, limit int) ([]runner.HistoryEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT run_id, flow, reason, status, error, posts_processed, posts_failed, started_at, finished_at
		FROM runs
		ORDER BY started_at DESC
		LIMIT $1
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []runner.HistoryEntry
	for rows.Next() {
		var e runner.HistoryEntry
		if err := rows.Scan(
			&e.RunID, &e.Flow, &e.Reason, &e.Status, &e.Error,
			&e.PostsProcessed, &e.PostsFailed, &e.StartedAt, &e.FinishedAt,
		); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
