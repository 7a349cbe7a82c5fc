package history

import "time"

// Update statuses.
const (
	StatusReloaded   = "reloaded"
	StatusRestarting = "restarting"
	StatusIgnored    = "ignored"
	StatusFailed     = "failed"
	StatusRejected   = "rejected"
)

// UpdateRecord represents a single update attempt in the database
type UpdateRecord struct {
	ID              int64      `json:"id"`
	Source          string     `json:"source"` // webhook delivery id or "cli"
	Status          string     `json:"status"`
	Stage           *string    `json:"stage,omitempty"`
	Release         *string    `json:"release,omitempty"`
	StartedAt       time.Time  `json:"started_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	DurationSeconds *float64   `json:"duration_seconds,omitempty"`
	ErrorMessage    *string    `json:"error_message,omitempty"`
}

// updateRow is the stored shape of an UpdateRecord; timestamps are kept as
// RFC3339 text so both backends store them identically.
type updateRow struct {
	ID              int64    `db:"id"`
	Source          string   `db:"source"`
	Status          string   `db:"status"`
	Stage           *string  `db:"stage"`
	Release         *string  `db:"release_dir"`
	StartedAt       string   `db:"started_at"`
	CompletedAt     *string  `db:"completed_at"`
	DurationSeconds *float64 `db:"duration_seconds"`
	ErrorMessage    *string  `db:"error_message"`
}
