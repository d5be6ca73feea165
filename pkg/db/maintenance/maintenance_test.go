package maintenance

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"birdtrip/pkg/db"
	"birdtrip/pkg/store"
)

func setupStore(t *testing.T) (*db.DB, store.Store) {
	t.Helper()
	d, err := db.Init(filepath.Join(t.TempDir(), "maint_test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { d.Close() })
	return d, store.NewSQLiteStore(d)
}

func insertCacheRow(t *testing.T, d *db.DB, key string, age time.Duration) {
	t.Helper()
	created := time.Now().Add(-age).UTC().Format("2006-01-02 15:04:05")
	_, err := d.Exec(
		"INSERT INTO http_cache (key, value, created_at) VALUES (?, ?, ?)",
		key, []byte("v"), created,
	)
	if err != nil {
		t.Fatal(err)
	}
}

func TestRunPrunesExpiredEntries(t *testing.T) {
	d, s := setupStore(t)
	ctx := context.Background()

	insertCacheRow(t, d, "stale-taxonomy", 40*24*time.Hour)
	insertCacheRow(t, d, "fresh-hotspots", 2*time.Hour)

	Run(ctx, s, d, 24*time.Hour)

	var count int
	if err := d.QueryRow("SELECT count(*) FROM http_cache WHERE key = ?", "stale-taxonomy").Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Error("stale entry survived pruning")
	}
	if err := d.QueryRow("SELECT count(*) FROM http_cache WHERE key = ?", "fresh-hotspots").Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Error("fresh entry was incorrectly pruned")
	}

	// The prune time is stamped for the skip check on the next start.
	if _, found := s.GetState(ctx, lastPruneStateKey); !found {
		t.Error("prune time not recorded in app_state")
	}
}

func TestRunSkipsRecentPrune(t *testing.T) {
	d, s := setupStore(t)
	ctx := context.Background()

	recent := time.Now().Add(-5 * time.Minute).UTC().Format(time.RFC3339)
	if err := s.SetState(ctx, lastPruneStateKey, recent); err != nil {
		t.Fatal(err)
	}
	insertCacheRow(t, d, "stale-taxonomy", 40*24*time.Hour)

	Run(ctx, s, d, 24*time.Hour)

	var count int
	if err := d.QueryRow("SELECT count(*) FROM http_cache").Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Error("prune ran despite a recent stamp")
	}
}

func TestRunDefaultsTTL(t *testing.T) {
	d, s := setupStore(t)
	ctx := context.Background()

	insertCacheRow(t, d, "two-days-old", 48*time.Hour)
	insertCacheRow(t, d, "an-hour-old", time.Hour)

	// Zero TTL falls back to 24h.
	Run(ctx, s, d, 0)

	var count int
	if err := d.QueryRow("SELECT count(*) FROM http_cache").Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("got %d entries, want 1", count)
	}
}
