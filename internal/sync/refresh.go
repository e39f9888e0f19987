package sync

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"eduai-sync-service/internal/logger"
	"eduai-sync-service/internal/remote"
	"eduai-sync-service/internal/store"
)

// Refresher populates the local cache opportunistically from remote fetches,
// so read paths keep working offline.
type Refresher struct {
	remote remote.Client
	cache  store.Store
}

func NewRefresher(rc remote.Client, cache store.Store) *Refresher {
	return &Refresher{remote: rc, cache: cache}
}

// RefreshCourses fetches all courses and caches them. Returns the number of
// rows cached.
func (r *Refresher) RefreshCourses(ctx context.Context) (int, error) {
	return r.refresh(ctx, "courses", nil)
}

// RefreshAssignments fetches assignments, optionally filtered to one course,
// and caches them.
func (r *Refresher) RefreshAssignments(ctx context.Context, courseID string) (int, error) {
	var filters map[string]string
	if courseID != "" {
		filters = map[string]string{"course_id": courseID}
	}
	return r.refresh(ctx, "assignments", filters)
}

func (r *Refresher) refresh(ctx context.Context, collection string, filters map[string]string) (int, error) {
	rows, err := r.remote.Select(ctx, collection, filters)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch %s: %w", collection, err)
	}

	cached := 0
	for _, row := range rows {
		id, err := recordID(row)
		if err != nil {
			logger.Log.Warn("Skipping remote row without id", zap.String("collection", collection), zap.Error(err))
			continue
		}
		if err := r.cache.Put(ctx, collection, id, row); err != nil {
			return cached, fmt.Errorf("failed to cache %s/%s: %w", collection, id, err)
		}
		cached++
	}

	logger.Log.Debug("Refreshed cache",
		zap.String("collection", collection),
		zap.Int("rows", cached),
	)

	return cached, nil
}
