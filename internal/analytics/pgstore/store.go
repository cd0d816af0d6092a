// Package pgstore serves analytics reads from the Postgres visitors and
// page_views tables.
package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"jobboard-realtime/internal/analytics"
	apperrors "jobboard-realtime/internal/common/errors"
	"jobboard-realtime/internal/common/metrics"
	"jobboard-realtime/internal/models"

	"github.com/lib/pq"
)

const (
	queryCountViews = `SELECT COUNT(*) FROM page_views WHERE viewed_at >= $1`

	queryTopPages = `
		SELECT page, COUNT(*) AS views
		FROM page_views
		WHERE viewed_at >= $1
		GROUP BY page
		ORDER BY views DESC, page ASC
		LIMIT $2`

	queryHourlyViews = `
		SELECT to_char(date_trunc('hour', viewed_at AT TIME ZONE 'UTC'), 'YYYY-MM-DD HH24:00') AS hour, COUNT(*)
		FROM page_views
		WHERE viewed_at >= $1
		GROUP BY hour
		ORDER BY hour`

	queryPageCounts = `
		SELECT COUNT(*), COUNT(DISTINCT session_id)
		FROM page_views
		WHERE page = $1 AND viewed_at >= $2`

	queryPageReferrers = `
		SELECT referrer, COUNT(*) AS hits
		FROM page_views
		WHERE page = $1 AND viewed_at >= $2 AND referrer IS NOT NULL AND referrer <> ''
		GROUP BY referrer
		ORDER BY hits DESC, referrer ASC
		LIMIT $3`

	queryCountStarted = `SELECT COUNT(*) FROM visitors WHERE first_visit >= $1`
	queryCountActive  = `SELECT COUNT(*) FROM visitors WHERE last_visit >= $1`
	queryCountAll     = `SELECT COUNT(*) FROM visitors`
	querySumClicks    = `SELECT COALESCE(SUM(click_count), 0) FROM visitors WHERE first_visit >= $1`

	queryHourlyActivity = `
		SELECT to_char(date_trunc('hour', last_visit AT TIME ZONE 'UTC'), 'YYYY-MM-DD HH24:00') AS hour,
		       COUNT(*), COALESCE(SUM(click_count), 0)
		FROM visitors
		WHERE last_visit >= $1
		GROUP BY hour
		ORDER BY hour`

	queryRecent = `
		SELECT session_id, COALESCE(user_id, ''), COALESCE(ip_address, ''), page_count, click_count, last_visit, pages
		FROM visitors
		WHERE last_visit >= $1
		ORDER BY last_visit DESC
		LIMIT $2`

	queryIncrementClicks = `
		UPDATE visitors SET click_count = click_count + 1
		WHERE session_id = $1
		RETURNING session_id, COALESCE(user_id, ''), COALESCE(ip_address, ''), COALESCE(user_agent, ''),
		          first_visit, last_visit, page_count, click_count, pages`
)

// Store implements analytics.PageViewStore and analytics.VisitorStore.
type Store struct {
	db *sql.DB
}

var (
	_ analytics.PageViewStore = (*Store)(nil)
	_ analytics.VisitorStore  = (*Store)(nil)
)

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func observe(query string, start time.Time) {
	metrics.StoreQueryDuration.WithLabelValues(query, "postgres").Observe(time.Since(start).Seconds())
}

func wrap(query string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.NewQueryTimeoutError(query)
	}
	return apperrors.NewQueryExecutionFailedError(query, err)
}

func (s *Store) count(ctx context.Context, name, query string, args ...interface{}) (int64, error) {
	defer observe(name, time.Now())

	var n int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, wrap(name, err)
	}
	return n, nil
}

func (s *Store) CountViews(ctx context.Context, since time.Time) (int64, error) {
	return s.count(ctx, "count_views", queryCountViews, since)
}

func (s *Store) TopPages(ctx context.Context, since time.Time, limit int) ([]analytics.PageCount, error) {
	defer observe("top_pages", time.Now())

	rows, err := s.db.QueryContext(ctx, queryTopPages, since, limit)
	if err != nil {
		return nil, wrap("top_pages", err)
	}
	defer rows.Close()

	pages := []analytics.PageCount{}
	for rows.Next() {
		var p analytics.PageCount
		if err := rows.Scan(&p.Page, &p.Count); err != nil {
			return nil, wrap("top_pages", err)
		}
		pages = append(pages, p)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("top_pages", err)
	}
	return pages, nil
}

func (s *Store) HourlyViews(ctx context.Context, since time.Time) ([]analytics.HourCount, error) {
	defer observe("hourly_views", time.Now())

	rows, err := s.db.QueryContext(ctx, queryHourlyViews, since)
	if err != nil {
		return nil, wrap("hourly_views", err)
	}
	defer rows.Close()

	var buckets []analytics.HourCount
	for rows.Next() {
		var b analytics.HourCount
		if err := rows.Scan(&b.Hour, &b.Count); err != nil {
			return nil, wrap("hourly_views", err)
		}
		buckets = append(buckets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("hourly_views", err)
	}
	return buckets, nil
}

func (s *Store) PageStats(ctx context.Context, page string, since time.Time, referrerLimit int) (*analytics.PageStats, error) {
	defer observe("page_stats", time.Now())

	stats := &analytics.PageStats{Referrers: []analytics.ReferrerCount{}}
	if err := s.db.QueryRowContext(ctx, queryPageCounts, page, since).Scan(&stats.ViewCount, &stats.UniqueVisitors); err != nil {
		return nil, wrap("page_stats", err)
	}

	rows, err := s.db.QueryContext(ctx, queryPageReferrers, page, since, referrerLimit)
	if err != nil {
		return nil, wrap("page_referrers", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r analytics.ReferrerCount
		if err := rows.Scan(&r.Referrer, &r.Count); err != nil {
			return nil, wrap("page_referrers", err)
		}
		stats.Referrers = append(stats.Referrers, r)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("page_referrers", err)
	}
	return stats, nil
}

func (s *Store) CountStarted(ctx context.Context, since time.Time) (int64, error) {
	return s.count(ctx, "count_started", queryCountStarted, since)
}

func (s *Store) CountActive(ctx context.Context, since time.Time) (int64, error) {
	return s.count(ctx, "count_active", queryCountActive, since)
}

func (s *Store) CountAll(ctx context.Context) (int64, error) {
	return s.count(ctx, "count_all", queryCountAll)
}

func (s *Store) SumClicksStarted(ctx context.Context, since time.Time) (int64, error) {
	return s.count(ctx, "sum_clicks", querySumClicks, since)
}

func (s *Store) HourlyActivity(ctx context.Context, since time.Time) ([]analytics.SessionBucket, error) {
	defer observe("hourly_activity", time.Now())

	rows, err := s.db.QueryContext(ctx, queryHourlyActivity, since)
	if err != nil {
		return nil, wrap("hourly_activity", err)
	}
	defer rows.Close()

	var buckets []analytics.SessionBucket
	for rows.Next() {
		var b analytics.SessionBucket
		if err := rows.Scan(&b.Hour, &b.Visitors, &b.Clicks); err != nil {
			return nil, wrap("hourly_activity", err)
		}
		buckets = append(buckets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("hourly_activity", err)
	}
	return buckets, nil
}

func (s *Store) Recent(ctx context.Context, since time.Time, limit int) ([]models.RecentVisitor, error) {
	defer observe("recent_visitors", time.Now())

	rows, err := s.db.QueryContext(ctx, queryRecent, since, limit)
	if err != nil {
		return nil, wrap("recent_visitors", err)
	}
	defer rows.Close()

	visitors := []models.RecentVisitor{}
	for rows.Next() {
		var v models.RecentVisitor
		var pages pq.StringArray
		if err := rows.Scan(&v.SessionID, &v.UserID, &v.IPAddress, &v.PageCount, &v.ClickCount, &v.LastVisit, &pages); err != nil {
			return nil, wrap("recent_visitors", err)
		}
		v.Pages = nonNil(pages)
		visitors = append(visitors, v)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("recent_visitors", err)
	}
	return visitors, nil
}

func (s *Store) IncrementClicks(ctx context.Context, sessionID string) (*models.Visitor, error) {
	defer observe("increment_clicks", time.Now())

	var v models.Visitor
	var pages pq.StringArray
	err := s.db.QueryRowContext(ctx, queryIncrementClicks, sessionID).Scan(
		&v.SessionID, &v.UserID, &v.IPAddress, &v.UserAgent,
		&v.FirstVisit, &v.LastVisit, &v.PageCount, &v.ClickCount, &pages,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrap("increment_clicks", err)
	}
	v.Pages = nonNil(pages)
	return &v, nil
}

func nonNil(pages pq.StringArray) []string {
	if pages == nil {
		return []string{}
	}
	return []string(pages)
}
