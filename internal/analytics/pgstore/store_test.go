package pgstore

import (
	"context"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"jobboard-realtime/internal/analytics"
	apperrors "jobboard-realtime/internal/common/errors"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var since = time.Date(2024, 3, 8, 14, 30, 0, 0, time.UTC)

func setupMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db), mock
}

// ==========================
// Page View Queries
// ==========================

func TestStore_CountViews(t *testing.T) {
	store, mock := setupMock(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM page_views WHERE viewed_at >= \$1`).
		WithArgs(since).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(42))

	n, err := store.CountViews(context.Background(), since)
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_TopPages(t *testing.T) {
	store, mock := setupMock(t)

	mock.ExpectQuery(`SELECT page, COUNT\(\*\) AS views\s+FROM page_views.*ORDER BY views DESC, page ASC\s+LIMIT \$2`).
		WithArgs(since, 10).
		WillReturnRows(sqlmock.NewRows([]string{"page", "views"}).
			AddRow("/", 9).
			AddRow("/jobs", 4))

	pages, err := store.TopPages(context.Background(), since, 10)
	require.NoError(t, err)
	assert.Equal(t, []analytics.PageCount{{Page: "/", Count: 9}, {Page: "/jobs", Count: 4}}, pages)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_HourlyViews(t *testing.T) {
	store, mock := setupMock(t)

	mock.ExpectQuery(`to_char\(date_trunc\('hour', viewed_at AT TIME ZONE 'UTC'\)`).
		WithArgs(since).
		WillReturnRows(sqlmock.NewRows([]string{"hour", "count"}).
			AddRow("2024-03-09 12:00", 3).
			AddRow("2024-03-09 13:00", 5))

	buckets, err := store.HourlyViews(context.Background(), since)
	require.NoError(t, err)
	assert.Equal(t, []analytics.HourCount{
		{Hour: "2024-03-09 12:00", Count: 3},
		{Hour: "2024-03-09 13:00", Count: 5},
	}, buckets)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_PageStats(t *testing.T) {
	store, mock := setupMock(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\), COUNT\(DISTINCT session_id\)`).
		WithArgs("/jobs", since).
		WillReturnRows(sqlmock.NewRows([]string{"count", "unique"}).AddRow(12, 7))
	mock.ExpectQuery(`SELECT referrer, COUNT\(\*\) AS hits`).
		WithArgs("/jobs", since, 5).
		WillReturnRows(sqlmock.NewRows([]string{"referrer", "hits"}).
			AddRow("google.com", 6).
			AddRow("linkedin.com", 2))

	stats, err := store.PageStats(context.Background(), "/jobs", since, 5)
	require.NoError(t, err)
	assert.Equal(t, &analytics.PageStats{
		ViewCount:      12,
		UniqueVisitors: 7,
		Referrers: []analytics.ReferrerCount{
			{Referrer: "google.com", Count: 6},
			{Referrer: "linkedin.com", Count: 2},
		},
	}, stats)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ==========================
// Visitor Queries
// ==========================

func TestStore_VisitorCounts(t *testing.T) {
	tests := []struct {
		name  string
		query string
		call  func(s *Store) (int64, error)
		args  []driver.Value
	}{
		{
			name:  "started",
			query: `SELECT COUNT\(\*\) FROM visitors WHERE first_visit >= \$1`,
			call:  func(s *Store) (int64, error) { return s.CountStarted(context.Background(), since) },
			args:  []driver.Value{since},
		},
		{
			name:  "active",
			query: `SELECT COUNT\(\*\) FROM visitors WHERE last_visit >= \$1`,
			call:  func(s *Store) (int64, error) { return s.CountActive(context.Background(), since) },
			args:  []driver.Value{since},
		},
		{
			name:  "all",
			query: `SELECT COUNT\(\*\) FROM visitors$`,
			call:  func(s *Store) (int64, error) { return s.CountAll(context.Background()) },
		},
		{
			name:  "clicks of started sessions",
			query: `SELECT COALESCE\(SUM\(click_count\), 0\) FROM visitors WHERE first_visit >= \$1`,
			call:  func(s *Store) (int64, error) { return s.SumClicksStarted(context.Background(), since) },
			args:  []driver.Value{since},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, mock := setupMock(t)

			exp := mock.ExpectQuery(tt.query)
			if len(tt.args) > 0 {
				exp = exp.WithArgs(tt.args...)
			}
			exp.WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(17))

			n, err := tt.call(store)
			require.NoError(t, err)
			assert.Equal(t, int64(17), n)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestStore_HourlyActivity(t *testing.T) {
	store, mock := setupMock(t)

	mock.ExpectQuery(`date_trunc\('hour', last_visit AT TIME ZONE 'UTC'\)`).
		WithArgs(since).
		WillReturnRows(sqlmock.NewRows([]string{"hour", "visitors", "clicks"}).
			AddRow("2024-03-09 13:00", 2, 5))

	buckets, err := store.HourlyActivity(context.Background(), since)
	require.NoError(t, err)
	assert.Equal(t, []analytics.SessionBucket{{Hour: "2024-03-09 13:00", Visitors: 2, Clicks: 5}}, buckets)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Recent(t *testing.T) {
	store, mock := setupMock(t)
	last := since.Add(20 * time.Hour)

	mock.ExpectQuery(`FROM visitors\s+WHERE last_visit >= \$1\s+ORDER BY last_visit DESC\s+LIMIT \$2`).
		WithArgs(since, 20).
		WillReturnRows(sqlmock.NewRows([]string{"session_id", "user_id", "ip_address", "page_count", "click_count", "last_visit", "pages"}).
			AddRow("s1", "u1", "10.0.0.1", 3, 1, last, "{/,/jobs}").
			AddRow("s2", "", "", 1, 0, last.Add(-time.Minute), nil))

	visitors, err := store.Recent(context.Background(), since, 20)
	require.NoError(t, err)
	require.Len(t, visitors, 2)

	assert.Equal(t, "s1", visitors[0].SessionID)
	assert.Equal(t, "u1", visitors[0].UserID)
	assert.Equal(t, []string{"/", "/jobs"}, visitors[0].Pages)
	assert.True(t, last.Equal(visitors[0].LastVisit))
	assert.Equal(t, []string{}, visitors[1].Pages)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_IncrementClicks(t *testing.T) {
	t.Run("known session", func(t *testing.T) {
		store, mock := setupMock(t)

		mock.ExpectQuery(`UPDATE visitors SET click_count = click_count \+ 1\s+WHERE session_id = \$1\s+RETURNING`).
			WithArgs("s1").
			WillReturnRows(sqlmock.NewRows([]string{"session_id", "user_id", "ip_address", "user_agent", "first_visit", "last_visit", "page_count", "click_count", "pages"}).
				AddRow("s1", "", "10.0.0.1", "Mozilla/5.0", since, since.Add(time.Hour), 4, 3, "{/}"))

		v, err := store.IncrementClicks(context.Background(), "s1")
		require.NoError(t, err)
		require.NotNil(t, v)
		assert.Equal(t, int64(3), v.ClickCount)
		assert.Equal(t, "Mozilla/5.0", v.UserAgent)
		assert.Equal(t, []string{"/"}, v.Pages)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown session", func(t *testing.T) {
		store, mock := setupMock(t)

		mock.ExpectQuery(`UPDATE visitors`).
			WithArgs("ghost").
			WillReturnRows(sqlmock.NewRows([]string{"session_id"}))

		v, err := store.IncrementClicks(context.Background(), "ghost")
		assert.NoError(t, err)
		assert.Nil(t, v)
	})
}

// ==========================
// Error Mapping
// ==========================

func TestStore_ErrorMapping(t *testing.T) {
	t.Run("execution failure", func(t *testing.T) {
		store, mock := setupMock(t)
		mock.ExpectQuery(`FROM page_views`).WillReturnError(errors.New("relation \"page_views\" does not exist"))

		_, err := store.TopPages(context.Background(), since, 10)

		stdErr, ok := apperrors.As(err)
		require.True(t, ok)
		assert.Equal(t, apperrors.ErrCodeQueryExecutionFailed, stdErr.Code)
	})

	t.Run("deadline", func(t *testing.T) {
		store, mock := setupMock(t)
		mock.ExpectQuery(`FROM visitors`).WillReturnError(context.DeadlineExceeded)

		_, err := store.CountAll(context.Background())

		stdErr, ok := apperrors.As(err)
		require.True(t, ok)
		assert.Equal(t, apperrors.ErrCodeQueryTimeout, stdErr.Code)
	})
}
