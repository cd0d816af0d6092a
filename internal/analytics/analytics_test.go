package analytics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"testing"
	"time"

	apperrors "jobboard-realtime/internal/common/errors"
	"jobboard-realtime/internal/common/logger"
	"jobboard-realtime/internal/models"
	"jobboard-realtime/internal/realtime"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// In-memory store
// ==========================

// memStore answers both store interfaces from raw records the way the
// database stores do.
type memStore struct {
	mu       sync.Mutex
	visitors []models.Visitor
	views    []models.PageView
	failOn   string
	failWith error
}

func (m *memStore) fail(op string) error {
	if m.failOn == op {
		if m.failWith != nil {
			return m.failWith
		}
		return errors.New(op + ": connection refused")
	}
	return nil
}

func (m *memStore) CountViews(ctx context.Context, since time.Time) (int64, error) {
	if err := m.fail("CountViews"); err != nil {
		return 0, err
	}
	var n int64
	for _, v := range m.views {
		if !v.Timestamp.Before(since) {
			n++
		}
	}
	return n, nil
}

func (m *memStore) TopPages(ctx context.Context, since time.Time, limit int) ([]PageCount, error) {
	if err := m.fail("TopPages"); err != nil {
		return nil, err
	}
	counts := map[string]int64{}
	for _, v := range m.views {
		if !v.Timestamp.Before(since) {
			counts[v.Page]++
		}
	}
	var out []PageCount
	for p, c := range counts {
		out = append(out, PageCount{Page: p, Count: c})
	}
	return RankPages(out, limit), nil
}

func (m *memStore) HourlyViews(ctx context.Context, since time.Time) ([]HourCount, error) {
	if err := m.fail("HourlyViews"); err != nil {
		return nil, err
	}
	counts := map[string]int64{}
	for _, v := range m.views {
		if !v.Timestamp.Before(since) {
			counts[HourBucket(v.Timestamp)]++
		}
	}
	var out []HourCount
	for h, c := range counts {
		out = append(out, HourCount{Hour: h, Count: c})
	}
	return out, nil
}

func (m *memStore) PageStats(ctx context.Context, page string, since time.Time, referrerLimit int) (*PageStats, error) {
	if err := m.fail("PageStats"); err != nil {
		return nil, err
	}
	stats := &PageStats{}
	sessions := map[string]struct{}{}
	refs := map[string]int64{}
	for _, v := range m.views {
		if v.Page != page || v.Timestamp.Before(since) {
			continue
		}
		stats.ViewCount++
		sessions[v.SessionID] = struct{}{}
		if v.Referrer != "" {
			refs[v.Referrer]++
		}
	}
	stats.UniqueVisitors = int64(len(sessions))
	for r, c := range refs {
		stats.Referrers = append(stats.Referrers, ReferrerCount{Referrer: r, Count: c})
	}
	sort.Slice(stats.Referrers, func(i, j int) bool {
		if stats.Referrers[i].Count != stats.Referrers[j].Count {
			return stats.Referrers[i].Count > stats.Referrers[j].Count
		}
		return stats.Referrers[i].Referrer < stats.Referrers[j].Referrer
	})
	if len(stats.Referrers) > referrerLimit {
		stats.Referrers = stats.Referrers[:referrerLimit]
	}
	return stats, nil
}

func (m *memStore) CountStarted(ctx context.Context, since time.Time) (int64, error) {
	if err := m.fail("CountStarted"); err != nil {
		return 0, err
	}
	var n int64
	for _, v := range m.visitors {
		if !v.FirstVisit.Before(since) {
			n++
		}
	}
	return n, nil
}

func (m *memStore) CountActive(ctx context.Context, since time.Time) (int64, error) {
	if err := m.fail("CountActive"); err != nil {
		return 0, err
	}
	var n int64
	for _, v := range m.visitors {
		if !v.LastVisit.Before(since) {
			n++
		}
	}
	return n, nil
}

func (m *memStore) CountAll(ctx context.Context) (int64, error) {
	if err := m.fail("CountAll"); err != nil {
		return 0, err
	}
	return int64(len(m.visitors)), nil
}

func (m *memStore) SumClicksStarted(ctx context.Context, since time.Time) (int64, error) {
	if err := m.fail("SumClicksStarted"); err != nil {
		return 0, err
	}
	var n int64
	for _, v := range m.visitors {
		if !v.FirstVisit.Before(since) {
			n += v.ClickCount
		}
	}
	return n, nil
}

func (m *memStore) HourlyActivity(ctx context.Context, since time.Time) ([]SessionBucket, error) {
	if err := m.fail("HourlyActivity"); err != nil {
		return nil, err
	}
	buckets := map[string]*SessionBucket{}
	for _, v := range m.visitors {
		if v.LastVisit.Before(since) {
			continue
		}
		h := HourBucket(v.LastVisit)
		if buckets[h] == nil {
			buckets[h] = &SessionBucket{Hour: h}
		}
		buckets[h].Visitors++
		buckets[h].Clicks += v.ClickCount
	}
	var out []SessionBucket
	for _, b := range buckets {
		out = append(out, *b)
	}
	return out, nil
}

func (m *memStore) Recent(ctx context.Context, since time.Time, limit int) ([]models.RecentVisitor, error) {
	if err := m.fail("Recent"); err != nil {
		return nil, err
	}
	var out []models.RecentVisitor
	for _, v := range m.visitors {
		if v.LastVisit.Before(since) {
			continue
		}
		out = append(out, models.RecentVisitor{
			SessionID: v.SessionID, UserID: v.UserID, IPAddress: v.IPAddress,
			PageCount: v.PageCount, ClickCount: v.ClickCount, LastVisit: v.LastVisit, Pages: v.Pages,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastVisit.After(out[j].LastVisit) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) IncrementClicks(ctx context.Context, sessionID string) (*models.Visitor, error) {
	if err := m.fail("IncrementClicks"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.visitors {
		if m.visitors[i].SessionID == sessionID {
			m.visitors[i].ClickCount++
			v := m.visitors[i]
			return &v, nil
		}
	}
	return nil, nil
}

type MockPublisher struct {
	mu        sync.Mutex
	published []interface{}
	channels  []realtime.Channel
}

func (m *MockPublisher) Publish(ch realtime.Channel, payload interface{}) <-chan realtime.PublishResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels = append(m.channels, ch)
	m.published = append(m.published, payload)
	out := make(chan realtime.PublishResult, 1)
	out <- realtime.PublishResult{Channel: ch, Receivers: 1}
	return out
}

// ==========================
// Test Helper Functions
// ==========================

var testNow = time.Date(2024, 3, 9, 14, 30, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

func createTestAggregator(t *testing.T, store *memStore) *Aggregator {
	return NewAggregator(store, store, logger.NewTestLogger(t), WithClock(fixedClock), WithQueryTimeout(time.Second))
}

func visitor(id string, first, last time.Duration, pages, clicks int64) models.Visitor {
	return models.Visitor{
		SessionID:  id,
		FirstVisit: testNow.Add(-first),
		LastVisit:  testNow.Add(-last),
		PageCount:  pages,
		ClickCount: clicks,
		Pages:      []string{"/"},
	}
}

func view(session, page, referrer string, ago time.Duration) models.PageView {
	return models.PageView{SessionID: session, Page: page, Referrer: referrer, Timestamp: testNow.Add(-ago)}
}

// ==========================
// Time Range Tests
// ==========================

func TestParseTimeRange(t *testing.T) {
	tests := []struct {
		token     string
		wantToken string
		wantStart time.Time
	}{
		{"1h", "1h", testNow.Add(-time.Hour)},
		{"24h", "24h", testNow.Add(-24 * time.Hour)},
		{"7d", "7d", testNow.Add(-168 * time.Hour)},
		{"30d", "30d", testNow.Add(-720 * time.Hour)},
		{"7D", "24h", testNow.Add(-24 * time.Hour)},
		{" 30d ", "24h", testNow.Add(-24 * time.Hour)},
		{"", "24h", testNow.Add(-24 * time.Hour)},
		{"90d", "24h", testNow.Add(-24 * time.Hour)},
	}

	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			tr := ParseTimeRange(tt.token, testNow)
			assert.Equal(t, tt.wantToken, tr.Token)
			assert.True(t, tt.wantStart.Equal(tr.Start), "start %s, want %s", tr.Start, tt.wantStart)
		})
	}
}

func TestHourBucket(t *testing.T) {
	est := time.FixedZone("EST", -5*3600)
	assert.Equal(t, "2024-03-09 14:00", HourBucket(testNow))
	assert.Equal(t, "2024-03-09 14:00", HourBucket(time.Date(2024, 3, 9, 9, 59, 59, 0, est)))
	assert.Equal(t, "2024-03-10 00:00", HourBucket(time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)))
}

// ==========================
// Merge Tests
// ==========================

func TestMergeHourly_LeftDominant(t *testing.T) {
	views := []HourCount{{Hour: "2024-03-09 13:00", Count: 4}, {Hour: "2024-03-09 12:00", Count: 7}}
	sessions := []SessionBucket{
		{Hour: "2024-03-09 13:00", Visitors: 2, Clicks: 5},
		{Hour: "2024-03-09 14:00", Visitors: 9, Clicks: 9},
	}

	got := MergeHourly(views, sessions)

	assert.Equal(t, []HourlyPoint{
		{Hour: "2024-03-09 12:00", PageViews: 7, Visitors: 0, Clicks: 0},
		{Hour: "2024-03-09 13:00", PageViews: 4, Visitors: 2, Clicks: 5},
	}, got)
}

func TestMergeHourly_Empty(t *testing.T) {
	got := MergeHourly(nil, []SessionBucket{{Hour: "2024-03-09 13:00", Visitors: 1}})
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestRankPages(t *testing.T) {
	pages := []PageCount{
		{Page: "/jobs", Count: 3},
		{Page: "/about", Count: 5},
		{Page: "/contact", Count: 3},
		{Page: "/", Count: 9},
	}

	assert.Equal(t, []PageCount{
		{Page: "/", Count: 9},
		{Page: "/about", Count: 5},
		{Page: "/contact", Count: 3},
	}, RankPages(pages, 3))
}

// ==========================
// Aggregator Tests
// ==========================

func TestAggregator_VisitorAnalytics(t *testing.T) {
	store := &memStore{
		visitors: []models.Visitor{
			visitor("s1", 30*time.Minute, 5*time.Minute, 3, 2),
			visitor("s2", 2*time.Hour, 90*time.Minute, 2, 1),
			// started before the window but still active: counted active, clicks excluded
			visitor("s3", 48*time.Hour, 10*time.Minute, 6, 10),
			visitor("s4", 72*time.Hour, 60*time.Hour, 1, 4),
		},
		views: []models.PageView{
			view("s1", "/jobs", "google.com", 20*time.Minute),
			view("s1", "/jobs", "", 15*time.Minute),
			view("s1", "/", "", 5*time.Minute),
			view("s2", "/about", "", 100*time.Minute),
			view("s3", "/", "", 10*time.Minute),
			view("s4", "/old", "", 60*time.Hour),
		},
	}

	got, err := createTestAggregator(t, store).VisitorAnalytics(context.Background(), "24h")
	require.NoError(t, err)

	assert.Equal(t, "24h", got.TimeRange)
	assert.Equal(t, Summary{
		TotalVisitors:       2,
		ActiveVisitors:      3,
		TotalPageViews:      5,
		TotalClicks:         3,
		AvgPagesPerVisitor:  2.5,
		AvgClicksPerVisitor: 1.5,
	}, got.Summary)

	assert.Equal(t, []PageCount{
		{Page: "/", Count: 2},
		{Page: "/jobs", Count: 2},
		{Page: "/about", Count: 1},
	}, got.TopPages)

	assert.Equal(t, []HourlyPoint{
		{Hour: "2024-03-09 12:00", PageViews: 1, Visitors: 0, Clicks: 0},
		{Hour: "2024-03-09 14:00", PageViews: 4, Visitors: 2, Clicks: 12},
	}, got.HourlyData)

	require.Len(t, got.RecentVisitors, 3)
	assert.Equal(t, "s1", got.RecentVisitors[0].SessionID)
	assert.Equal(t, "s3", got.RecentVisitors[1].SessionID)
	assert.Equal(t, "s2", got.RecentVisitors[2].SessionID)
}

func TestAggregator_VisitorAnalytics_ZeroStartedSessions(t *testing.T) {
	store := &memStore{
		visitors: []models.Visitor{visitor("old", 96*time.Hour, 30*time.Minute, 4, 4)},
		views:    []models.PageView{view("old", "/", "", 30*time.Minute)},
	}

	got, err := createTestAggregator(t, store).VisitorAnalytics(context.Background(), "1h")
	require.NoError(t, err)

	assert.Equal(t, int64(0), got.Summary.TotalVisitors)
	assert.Equal(t, int64(1), got.Summary.TotalPageViews)
	assert.Equal(t, float64(0), got.Summary.AvgPagesPerVisitor)
	assert.Equal(t, float64(0), got.Summary.AvgClicksPerVisitor)
}

func TestAggregator_VisitorAnalytics_RoundsAverages(t *testing.T) {
	store := &memStore{
		visitors: []models.Visitor{
			visitor("a", time.Minute, time.Minute, 1, 1),
			visitor("b", time.Minute, time.Minute, 1, 0),
			visitor("c", time.Minute, time.Minute, 1, 0),
		},
		views: []models.PageView{
			view("a", "/", "", time.Minute),
			view("b", "/", "", time.Minute),
			view("c", "/", "", time.Minute),
			view("c", "/jobs", "", time.Minute),
		},
	}

	got, err := createTestAggregator(t, store).VisitorAnalytics(context.Background(), "bogus")
	require.NoError(t, err)

	assert.Equal(t, "24h", got.TimeRange)
	assert.Equal(t, 1.33, got.Summary.AvgPagesPerVisitor)
	assert.Equal(t, 0.33, got.Summary.AvgClicksPerVisitor)
}

func TestAggregator_VisitorAnalytics_StoreFailureFailsWholeCall(t *testing.T) {
	for _, op := range []string{"CountStarted", "CountViews", "TopPages", "HourlyViews", "HourlyActivity", "Recent", "SumClicksStarted"} {
		t.Run(op, func(t *testing.T) {
			store := &memStore{failOn: op}

			got, err := createTestAggregator(t, store).VisitorAnalytics(context.Background(), "24h")

			assert.Nil(t, got)
			stdErr, ok := apperrors.As(err)
			require.True(t, ok)
			assert.Equal(t, apperrors.ErrCodeAggregationFailed, stdErr.Code)
			assert.ErrorContains(t, err, "connection refused")
		})
	}
}

func TestAggregator_TimeoutsKeepTheirCode(t *testing.T) {
	tests := []struct {
		name  string
		cause error
	}{
		{name: "store reported timeout", cause: apperrors.NewQueryTimeoutError("hourly_views")},
		{name: "raw deadline", cause: fmt.Errorf("query: %w", context.DeadlineExceeded)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &memStore{failOn: "HourlyViews", failWith: tt.cause}

			_, err := createTestAggregator(t, store).VisitorAnalytics(context.Background(), "24h")

			stdErr, ok := apperrors.As(err)
			require.True(t, ok)
			assert.Equal(t, apperrors.ErrCodeQueryTimeout, stdErr.Code)
			assert.Equal(t, http.StatusGatewayTimeout, apperrors.HTTPStatus(stdErr.Code))
		})
	}

	t.Run("page analytics", func(t *testing.T) {
		store := &memStore{failOn: "PageStats", failWith: apperrors.NewQueryTimeoutError("page_stats")}

		_, err := createTestAggregator(t, store).PageAnalytics(context.Background(), "/jobs", "24h")

		stdErr, ok := apperrors.As(err)
		require.True(t, ok)
		assert.Equal(t, apperrors.ErrCodeQueryTimeout, stdErr.Code)
		assert.Equal(t, "page_analytics", stdErr.Metadata["operation"])
	})
}

func TestAggregator_RealtimeVisitors(t *testing.T) {
	store := &memStore{
		visitors: []models.Visitor{
			visitor("now", 2*time.Hour, 0, 1, 0),
			visitor("three-min", 10*time.Minute, 3*time.Minute, 1, 0),
			visitor("ten-min", 20*time.Hour, 10*time.Minute, 1, 0),
		},
	}

	got, err := createTestAggregator(t, store).RealtimeVisitors(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(1), got.Now)
	assert.Equal(t, int64(2), got.Last5Minutes)
	assert.Equal(t, int64(3), got.AllTime)
	// started since 00:00 UTC on the fixed clock: "now" and "three-min"
	assert.Equal(t, int64(2), got.Today)
	assert.Equal(t, testNow, got.Timestamp)
}

func TestAggregator_RealtimeVisitors_Failure(t *testing.T) {
	store := &memStore{failOn: "CountAll"}

	_, err := createTestAggregator(t, store).RealtimeVisitors(context.Background())

	stdErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeAggregationFailed, stdErr.Code)
}

func TestAggregator_PageAnalytics(t *testing.T) {
	store := &memStore{
		views: []models.PageView{
			view("s1", "/jobs", "google.com", time.Minute),
			view("s1", "/jobs", "google.com", 2*time.Minute),
			view("s2", "/jobs", "bing.com", 3*time.Minute),
			view("s3", "/jobs", "", 4*time.Minute),
			view("s3", "/", "google.com", 4*time.Minute),
			view("s4", "/jobs", "google.com", 2*time.Hour),
		},
	}

	got, err := createTestAggregator(t, store).PageAnalytics(context.Background(), "/jobs", "1h")
	require.NoError(t, err)

	assert.Equal(t, &PageAnalytics{
		Page:           "/jobs",
		ViewCount:      4,
		UniqueVisitors: 3,
		Referrers: []ReferrerCount{
			{Referrer: "google.com", Count: 2},
			{Referrer: "bing.com", Count: 1},
		},
		TimeRange: "1h",
	}, got)
}

func TestAggregator_PageAnalytics_DefaultsToRoot(t *testing.T) {
	got, err := createTestAggregator(t, &memStore{}).PageAnalytics(context.Background(), "  ", "")
	require.NoError(t, err)

	assert.Equal(t, "/", got.Page)
	assert.Equal(t, "24h", got.TimeRange)
	assert.NotNil(t, got.Referrers)
}

// ==========================
// Tracker Tests
// ==========================

func TestTracker_Track(t *testing.T) {
	store := &memStore{visitors: []models.Visitor{visitor("s1", time.Hour, time.Minute, 2, 4)}}
	pub := &MockPublisher{}
	tracker := NewTracker(store, pub, logger.NewTestLogger(t))

	got, err := tracker.Track(context.Background(), ClickEvent{SessionID: "s1", Page: "/jobs", EventType: "apply_click"})
	require.NoError(t, err)

	assert.True(t, got.Success)
	require.NotNil(t, got.Visitor)
	assert.Equal(t, int64(5), got.Visitor.ClickCount)

	require.Len(t, pub.channels, 1)
	assert.Equal(t, realtime.ChannelUsers, pub.channels[0])
	event := pub.published[0].(map[string]interface{})
	assert.Equal(t, "click", event["type"])
	assert.Equal(t, "s1", event["sessionId"])
}

func TestTracker_UnknownSession(t *testing.T) {
	pub := &MockPublisher{}
	got, err := NewTracker(&memStore{}, pub, logger.NewTestLogger(t)).Track(context.Background(), ClickEvent{SessionID: "ghost"})
	require.NoError(t, err)

	assert.True(t, got.Success)
	assert.Nil(t, got.Visitor)
	assert.Empty(t, pub.published)
}

func TestTracker_MissingSession(t *testing.T) {
	_, err := NewTracker(&memStore{}, nil, logger.NewTestLogger(t)).Track(context.Background(), ClickEvent{SessionID: " "})

	stdErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeInvalidRequest, stdErr.Code)
}

func TestTracker_StoreFailure(t *testing.T) {
	_, err := NewTracker(&memStore{failOn: "IncrementClicks"}, nil, logger.NewTestLogger(t)).Track(context.Background(), ClickEvent{SessionID: "s1"})

	stdErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeAggregationFailed, stdErr.Code)
}
