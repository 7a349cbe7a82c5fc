// Package visits records page views and aggregates them per path.
package visits

import (
	"context"
	"fmt"
	"time"

	"homesite/internal/database"
)

// Visit is a single recorded page view.
type Visit struct {
	ID       int64  `db:"id" json:"id"`
	Visitor  string `db:"visitor" json:"visitor"`
	Path     string `db:"path" json:"path"`
	Instance string `db:"instance" json:"instance"`
}

// PathCount is the number of visits recorded for a path.
type PathCount struct {
	Path       string `db:"path" json:"path"`
	VisitCount int64  `db:"visit_count" json:"visit_count"`
}

// Store persists visits.
type Store struct {
	db *database.DB
}

// NewStore creates a visit store on an already migrated database.
func NewStore(db *database.DB) *Store {
	return &Store{db: db}
}

// RecordVisit stores a visit by visitor to path at instant and returns its id.
func (s *Store) RecordVisit(ctx context.Context, visitor, path string, instant time.Time) (int64, error) {
	var id int64
	err := s.db.Get(ctx, &id, `
		INSERT INTO visits (visitor, path, instance)
		VALUES (?, ?, ?)
		RETURNING id
	`, visitor, path, instant.Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("failed to record visit: %w", err)
	}
	return id, nil
}

// VisitsPerPath returns the number of visits per path, most visited first.
func (s *Store) VisitsPerPath(ctx context.Context) ([]PathCount, error) {
	var counts []PathCount
	err := s.db.Select(ctx, &counts, `
		SELECT path, COUNT(*) AS visit_count
		FROM visits
		GROUP BY path
		ORDER BY visit_count DESC, path ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to count visits: %w", err)
	}
	return counts, nil
}

// RecentVisits returns the latest visits, newest first.
func (s *Store) RecentVisits(ctx context.Context, limit int) ([]Visit, error) {
	var recent []Visit
	err := s.db.Select(ctx, &recent, `
		SELECT id, visitor, path, instance
		FROM visits
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query visits: %w", err)
	}
	return recent, nil
}
