// Package analytics computes visitor and traffic metrics from the page-view
// log and the session records.
package analytics

import (
	"context"
	"errors"
	"strings"
	"time"

	apperrors "jobboard-realtime/internal/common/errors"
	"jobboard-realtime/internal/common/logger"
	"jobboard-realtime/internal/models"

	"golang.org/x/sync/errgroup"
)

type Aggregator struct {
	pages    PageViewStore
	visitors VisitorStore
	logger   logger.Logger
	now      func() time.Time
	timeout  time.Duration
}

type Option func(*Aggregator)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

// WithQueryTimeout bounds each call; zero means no bound beyond the caller's.
func WithQueryTimeout(d time.Duration) Option {
	return func(a *Aggregator) { a.timeout = d }
}

func NewAggregator(pages PageViewStore, visitors VisitorStore, log logger.Logger, opts ...Option) *Aggregator {
	a := &Aggregator{
		pages:    pages,
		visitors: visitors,
		logger:   log.WithFields(map[string]interface{}{"component": "aggregator"}),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// aggregationError keeps a timed-out read as QUERY_TIMEOUT; every other
// failure becomes AGGREGATION_FAILED.
func aggregationError(operation string, err error) error {
	if stdErr, ok := apperrors.As(err); ok && stdErr.Code == apperrors.ErrCodeQueryTimeout {
		return stdErr.WithMetadata("operation", operation)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.NewQueryTimeoutError(operation)
	}
	return apperrors.NewAggregationFailedError(operation, err)
}

func (a *Aggregator) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.timeout > 0 {
		return context.WithTimeout(ctx, a.timeout)
	}
	return context.WithCancel(ctx)
}

// VisitorAnalytics computes the dashboard for the window named by token.
// All store reads run concurrently; if any fails the whole call fails.
func (a *Aggregator) VisitorAnalytics(ctx context.Context, token string) (*VisitorAnalytics, error) {
	tr := ParseTimeRange(token, a.now())

	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	var (
		started, active, views, clicks int64
		topPages                       []PageCount
		hourlyViews                    []HourCount
		sessionBuckets                 []SessionBucket
		recent                         []models.RecentVisitor
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) { started, err = a.visitors.CountStarted(gctx, tr.Start); return })
	g.Go(func() (err error) { active, err = a.visitors.CountActive(gctx, tr.Start); return })
	g.Go(func() (err error) { views, err = a.pages.CountViews(gctx, tr.Start); return })
	// clicks are summed over sessions started in the window, not active ones
	g.Go(func() (err error) { clicks, err = a.visitors.SumClicksStarted(gctx, tr.Start); return })
	g.Go(func() (err error) { topPages, err = a.pages.TopPages(gctx, tr.Start, TopPagesLimit); return })
	g.Go(func() (err error) { hourlyViews, err = a.pages.HourlyViews(gctx, tr.Start); return })
	g.Go(func() (err error) { sessionBuckets, err = a.visitors.HourlyActivity(gctx, tr.Start); return })
	g.Go(func() (err error) { recent, err = a.visitors.Recent(gctx, tr.Start, RecentVisitorsLimit); return })

	if err := g.Wait(); err != nil {
		a.logger.Error("visitor analytics failed", map[string]interface{}{
			"timeRange": tr.Token,
			"error":     err,
		})
		return nil, aggregationError("visitor_analytics", err)
	}

	if recent == nil {
		recent = []models.RecentVisitor{}
	}

	return &VisitorAnalytics{
		Summary: Summary{
			TotalVisitors:       started,
			ActiveVisitors:      active,
			TotalPageViews:      views,
			TotalClicks:         clicks,
			AvgPagesPerVisitor:  ratio(views, started),
			AvgClicksPerVisitor: ratio(clicks, started),
		},
		TopPages:       RankPages(topPages, TopPagesLimit),
		HourlyData:     MergeHourly(hourlyViews, sessionBuckets),
		RecentVisitors: recent,
		TimeRange:      tr.Token,
	}, nil
}

// RealtimeVisitors reports live session counts as of now.
func (a *Aggregator) RealtimeVisitors(ctx context.Context) (*RealtimeVisitors, error) {
	now := a.now()

	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	out := &RealtimeVisitors{Timestamp: now}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) { out.Now, err = a.visitors.CountActive(gctx, now.Add(-time.Minute)); return })
	g.Go(func() (err error) { out.Last5Minutes, err = a.visitors.CountActive(gctx, now.Add(-5*time.Minute)); return })
	g.Go(func() (err error) { out.Today, err = a.visitors.CountStarted(gctx, localMidnight(now)); return })
	g.Go(func() (err error) { out.AllTime, err = a.visitors.CountAll(gctx); return })

	if err := g.Wait(); err != nil {
		a.logger.Error("realtime visitors failed", map[string]interface{}{"error": err})
		return nil, aggregationError("realtime_visitors", err)
	}
	return out, nil
}

// PageAnalytics reports traffic for one page. An empty page means "/".
func (a *Aggregator) PageAnalytics(ctx context.Context, page, token string) (*PageAnalytics, error) {
	page = strings.TrimSpace(page)
	if page == "" {
		page = "/"
	}
	tr := ParseTimeRange(token, a.now())

	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	stats, err := a.pages.PageStats(ctx, page, tr.Start, TopReferrersLimit)
	if err != nil {
		a.logger.Error("page analytics failed", map[string]interface{}{
			"page":  page,
			"error": err,
		})
		return nil, aggregationError("page_analytics", err)
	}

	referrers := stats.Referrers
	if referrers == nil {
		referrers = []ReferrerCount{}
	}
	return &PageAnalytics{
		Page:           page,
		ViewCount:      stats.ViewCount,
		UniqueVisitors: stats.UniqueVisitors,
		Referrers:      referrers,
		TimeRange:      tr.Token,
	}, nil
}
