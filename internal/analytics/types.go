package analytics

import (
	"time"

	"jobboard-realtime/internal/models"
)

const (
	TopPagesLimit       = 10
	RecentVisitorsLimit = 20
	TopReferrersLimit   = 5
)

type Summary struct {
	TotalVisitors       int64   `json:"totalVisitors"`
	ActiveVisitors      int64   `json:"activeVisitors"`
	TotalPageViews      int64   `json:"totalPageViews"`
	TotalClicks         int64   `json:"totalClicks"`
	AvgPagesPerVisitor  float64 `json:"avgPagesPerVisitor"`
	AvgClicksPerVisitor float64 `json:"avgClicksPerVisitor"`
}

type PageCount struct {
	Page  string `json:"page"`
	Count int64  `json:"count"`
}

// HourCount is one page-view bucket.
type HourCount struct {
	Hour  string
	Count int64
}

// SessionBucket is one bucket of sessions grouped by the hour of their last visit.
type SessionBucket struct {
	Hour     string
	Visitors int64
	Clicks   int64
}

type HourlyPoint struct {
	Hour      string `json:"hour"`
	PageViews int64  `json:"pageViews"`
	Visitors  int64  `json:"visitors"`
	Clicks    int64  `json:"clicks"`
}

type VisitorAnalytics struct {
	Summary        Summary                `json:"summary"`
	TopPages       []PageCount            `json:"topPages"`
	HourlyData     []HourlyPoint          `json:"hourlyData"`
	RecentVisitors []models.RecentVisitor `json:"recentVisitors"`
	TimeRange      string                 `json:"timeRange"`
}

type RealtimeVisitors struct {
	Now          int64     `json:"now"`
	Last5Minutes int64     `json:"last5Minutes"`
	Today        int64     `json:"today"`
	AllTime      int64     `json:"allTime"`
	Timestamp    time.Time `json:"timestamp"`
}

type ReferrerCount struct {
	Referrer string `json:"referrer"`
	Count    int64  `json:"count"`
}

// PageStats is what a page-view store reports for one page.
type PageStats struct {
	ViewCount      int64
	UniqueVisitors int64
	Referrers      []ReferrerCount
}

type PageAnalytics struct {
	Page           string          `json:"page"`
	ViewCount      int64           `json:"viewCount"`
	UniqueVisitors int64           `json:"uniqueVisitors"`
	Referrers      []ReferrerCount `json:"referrers"`
	TimeRange      string          `json:"timeRange"`
}

// ClickEvent is a tracked client interaction.
type ClickEvent struct {
	SessionID string                 `json:"sessionId"`
	Page      string                 `json:"page,omitempty"`
	EventType string                 `json:"eventType,omitempty"`
	EventData map[string]interface{} `json:"eventData,omitempty"`
}

type TrackResult struct {
	Success bool            `json:"success"`
	Visitor *models.Visitor `json:"visitor"`
}
