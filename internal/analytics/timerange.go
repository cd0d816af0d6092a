package analytics

import "time"

const (
	Range1h  = "1h"
	Range24h = "24h"
	Range7d  = "7d"
	Range30d = "30d"

	DefaultRange = Range24h
)

var rangeDurations = map[string]time.Duration{
	Range1h:  time.Hour,
	Range24h: 24 * time.Hour,
	Range7d:  7 * 24 * time.Hour,
	Range30d: 30 * 24 * time.Hour,
}

// TimeRange is a resolved window token. Token is always one of the known
// tokens; unknown input resolves to DefaultRange.
type TimeRange struct {
	Token string
	Start time.Time
}

// ParseTimeRange resolves token against now. Tokens match exactly; "7D" is
// unknown. Days are fixed 24h spans, so 7d is exactly 168h before now.
func ParseTimeRange(token string, now time.Time) TimeRange {
	d, ok := rangeDurations[token]
	if !ok {
		token = DefaultRange
		d = rangeDurations[DefaultRange]
	}
	return TimeRange{Token: token, Start: now.Add(-d)}
}

const hourBucketLayout = "2006-01-02 15:00"

// HourBucket formats the UTC hour containing t, e.g. "2024-03-09 14:00".
func HourBucket(t time.Time) string {
	return t.UTC().Truncate(time.Hour).Format(hourBucketLayout)
}

// localMidnight is the start of now's calendar day in now's location.
func localMidnight(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, now.Location())
}
