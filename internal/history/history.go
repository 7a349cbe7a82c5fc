package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"homesite/internal/database"
)

// History records update attempts.
type History struct {
	db  *database.DB
	now func() time.Time
}

// NewHistory creates a history tracker on an already migrated database.
func NewHistory(db *database.DB) *History {
	return &History{db: db, now: time.Now}
}

// RecordUpdate stores an update attempt and returns its id. StartedAt
// defaults to now; CompletedAt defaults to now as well, since attempts are
// recorded once they finish.
func (h *History) RecordUpdate(ctx context.Context, record *UpdateRecord) (int64, error) {
	now := h.now().UTC()
	startedAt := record.StartedAt
	if startedAt.IsZero() {
		startedAt = now
	}
	completedAt := now
	if record.CompletedAt != nil {
		completedAt = *record.CompletedAt
	}

	var id int64
	err := h.db.Get(ctx, &id, `
		INSERT INTO updates
		(source, status, stage, release_dir, started_at, completed_at,
		 duration_seconds, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`,
		record.Source,
		record.Status,
		record.Stage,
		record.Release,
		startedAt.UTC().Format(time.RFC3339),
		completedAt.UTC().Format(time.RFC3339),
		record.DurationSeconds,
		record.ErrorMessage,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert update record: %w", err)
	}

	return id, nil
}

// GetLatestUpdate returns the most recent update attempt, or nil if none
// has been recorded.
func (h *History) GetLatestUpdate(ctx context.Context) (*UpdateRecord, error) {
	var row updateRow
	err := h.db.Get(ctx, &row, `
		SELECT id, source, status, stage, release_dir, started_at, completed_at,
		       duration_seconds, error_message
		FROM updates
		ORDER BY id DESC
		LIMIT 1
	`)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest update: %w", err)
	}

	return row.record()
}

// GetUpdateHistory returns up to limit update attempts, newest first.
func (h *History) GetUpdateHistory(ctx context.Context, limit int) ([]UpdateRecord, error) {
	var rows []updateRow
	err := h.db.Select(ctx, &rows, `
		SELECT id, source, status, stage, release_dir, started_at, completed_at,
		       duration_seconds, error_message
		FROM updates
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query update history: %w", err)
	}

	records := make([]UpdateRecord, 0, len(rows))
	for _, row := range rows {
		record, err := row.record()
		if err != nil {
			return nil, err
		}
		records = append(records, *record)
	}

	return records, nil
}

func (r updateRow) record() (*UpdateRecord, error) {
	startedAt, err := time.Parse(time.RFC3339, r.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse started_at timestamp: %w", err)
	}

	record := &UpdateRecord{
		ID:              r.ID,
		Source:          r.Source,
		Status:          r.Status,
		Stage:           r.Stage,
		Release:         r.Release,
		StartedAt:       startedAt,
		DurationSeconds: r.DurationSeconds,
		ErrorMessage:    r.ErrorMessage,
	}

	if r.CompletedAt != nil {
		completedAt, err := time.Parse(time.RFC3339, *r.CompletedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse completed_at timestamp: %w", err)
		}
		record.CompletedAt = &completedAt
	}

	return record, nil
}
