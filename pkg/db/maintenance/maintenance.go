// Package maintenance runs startup housekeeping on the sqlite store.
package maintenance

import (
	"context"
	"log/slog"
	"time"

	"birdtrip/pkg/db"
	"birdtrip/pkg/store"
)

const lastPruneStateKey = "maintenance.last_prune"

// minPruneInterval keeps rapid restarts from re-scanning the cache table.
const minPruneInterval = time.Hour

// Run prunes expired HTTP cache entries and stamps the prune time in
// app_state. Failures are logged, never fatal; startup continues on a
// stale cache.
func Run(ctx context.Context, s store.Store, d *db.DB, ttl time.Duration) {
	slog.Info("Starting database maintenance")
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	if stamp, found := s.GetState(ctx, lastPruneStateKey); found {
		if last, err := time.Parse(time.RFC3339, stamp); err == nil && time.Since(last) < minPruneInterval {
			slog.Debug("Cache pruning skipped, ran recently", "last", stamp)
			return
		}
	}

	removed, err := pruneCache(ctx, d, ttl)
	if err != nil {
		slog.Error("Cache pruning failed", "error", err)
		return
	}
	slog.Info("Cache pruning completed", "removed", removed, "ttl", ttl)

	stamp := time.Now().UTC().Format(time.RFC3339)
	if err := s.SetState(ctx, lastPruneStateKey, stamp); err != nil {
		slog.Error("Failed to record prune time", "error", err)
	}
}

func pruneCache(ctx context.Context, d *db.DB, ttl time.Duration) (int, error) {
	var before int
	if err := d.QueryRowContext(ctx, "SELECT COUNT(*) FROM http_cache").Scan(&before); err != nil {
		return 0, err
	}
	if err := d.PruneCache(ttl); err != nil {
		return 0, err
	}
	var after int
	if err := d.QueryRowContext(ctx, "SELECT COUNT(*) FROM http_cache").Scan(&after); err != nil {
		return 0, err
	}
	return before - after, nil
}
