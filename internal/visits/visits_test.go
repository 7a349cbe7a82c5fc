package visits

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"homesite/internal/database"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	db, err := database.Open(ctx, filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if _, err := db.Migrate(ctx); err != nil {
		t.Fatalf("Failed to migrate database: %v", err)
	}
	return NewStore(db)
}

func TestStore_RecordVisit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)

	first, err := store.RecordVisit(ctx, "203.0.113.7", "/", now)
	if err != nil {
		t.Fatalf("RecordVisit() error = %v", err)
	}
	second, err := store.RecordVisit(ctx, "203.0.113.7", "/blog", now)
	if err != nil {
		t.Fatalf("RecordVisit() error = %v", err)
	}
	if first == 0 || second <= first {
		t.Errorf("Expected increasing ids, got %d then %d", first, second)
	}

	recent, err := store.RecentVisits(ctx, 1)
	if err != nil {
		t.Fatalf("RecentVisits() error = %v", err)
	}
	want := []Visit{{ID: second, Visitor: "203.0.113.7", Path: "/blog", Instance: "2026-03-14T15:09:26Z"}}
	if diff := cmp.Diff(want, recent); diff != "" {
		t.Errorf("RecentVisits() mismatch (-want +got):\n%s", diff)
	}
}

func TestStore_VisitsPerPath(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	for _, path := range []string{"/", "/blog", "/", "/gallery", "/"} {
		if _, err := store.RecordVisit(ctx, "198.51.100.1", path, now); err != nil {
			t.Fatalf("RecordVisit() error = %v", err)
		}
	}

	got, err := store.VisitsPerPath(ctx)
	if err != nil {
		t.Fatalf("VisitsPerPath() error = %v", err)
	}
	want := []PathCount{
		{Path: "/", VisitCount: 3},
		{Path: "/blog", VisitCount: 1},
		{Path: "/gallery", VisitCount: 1},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("VisitsPerPath() mismatch (-want +got):\n%s", diff)
	}
}

func TestStore_VisitsPerPath_Empty(t *testing.T) {
	store := newTestStore(t)
	got, err := store.VisitsPerPath(context.Background())
	if err != nil {
		t.Fatalf("VisitsPerPath() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Expected no counts, got %v", got)
	}
}
