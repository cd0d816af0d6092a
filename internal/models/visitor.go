// internal/models/visitor.go
package models

import "time"

// Visitor is one browsing session. SessionID is unique.
type Visitor struct {
	SessionID  string    `json:"sessionId" db:"session_id"`
	UserID     string    `json:"userId,omitempty" db:"user_id"`
	IPAddress  string    `json:"ipAddress,omitempty" db:"ip_address"`
	UserAgent  string    `json:"userAgent,omitempty" db:"user_agent"`
	FirstVisit time.Time `json:"firstVisit" db:"first_visit"`
	LastVisit  time.Time `json:"lastVisit" db:"last_visit"`
	PageCount  int64     `json:"pageCount" db:"page_count"`
	ClickCount int64     `json:"clickCount" db:"click_count"`
	Pages      []string  `json:"pages" db:"pages"`
}

// RecentVisitor is the projection of Visitor shown in the recent activity list.
type RecentVisitor struct {
	SessionID  string    `json:"sessionId"`
	UserID     string    `json:"userId,omitempty"`
	IPAddress  string    `json:"ipAddress,omitempty"`
	PageCount  int64     `json:"pageCount"`
	ClickCount int64     `json:"clickCount"`
	LastVisit  time.Time `json:"lastVisit"`
	Pages      []string  `json:"pages"`
}

// PageView is an append-only page hit.
type PageView struct {
	SessionID string    `json:"sessionId" db:"session_id"`
	Page      string    `json:"page" db:"page"`
	Referrer  string    `json:"referrer,omitempty" db:"referrer"`
	Timestamp time.Time `json:"timestamp" db:"viewed_at"`
}
