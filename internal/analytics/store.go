package analytics

import (
	"context"
	"time"

	"jobboard-realtime/internal/models"
)

// PageViewStore reads the append-only page-view log.
type PageViewStore interface {
	CountViews(ctx context.Context, since time.Time) (int64, error)
	// TopPages orders by count descending, then page ascending.
	TopPages(ctx context.Context, since time.Time, limit int) ([]PageCount, error)
	// HourlyViews returns non-empty buckets keyed by HourBucket.
	HourlyViews(ctx context.Context, since time.Time) ([]HourCount, error)
	PageStats(ctx context.Context, page string, since time.Time, referrerLimit int) (*PageStats, error)
}

// VisitorStore reads and updates session records.
type VisitorStore interface {
	CountStarted(ctx context.Context, since time.Time) (int64, error)
	CountActive(ctx context.Context, since time.Time) (int64, error)
	CountAll(ctx context.Context) (int64, error)
	SumClicksStarted(ctx context.Context, since time.Time) (int64, error)
	// HourlyActivity groups sessions active since by the hour of lastVisit.
	HourlyActivity(ctx context.Context, since time.Time) ([]SessionBucket, error)
	Recent(ctx context.Context, since time.Time, limit int) ([]models.RecentVisitor, error)
	// IncrementClicks returns the updated record, or nil when the session is unknown.
	IncrementClicks(ctx context.Context, sessionID string) (*models.Visitor, error)
}
