package analytics

import (
	"math"
	"sort"
)

// MergeHourly joins page-view buckets with session buckets on the hour key.
// Page-view buckets decide which hours appear; a missing session bucket
// counts as zero and session-only hours are dropped. Output is ascending.
func MergeHourly(views []HourCount, sessions []SessionBucket) []HourlyPoint {
	byHour := make(map[string]SessionBucket, len(sessions))
	for _, s := range sessions {
		byHour[s.Hour] = s
	}

	points := make([]HourlyPoint, 0, len(views))
	for _, v := range views {
		s := byHour[v.Hour]
		points = append(points, HourlyPoint{
			Hour:      v.Hour,
			PageViews: v.Count,
			Visitors:  s.Visitors,
			Clicks:    s.Clicks,
		})
	}

	// the bucket format sorts lexically in time order
	sort.SliceStable(points, func(i, j int) bool { return points[i].Hour < points[j].Hour })
	return points
}

// RankPages sorts by count descending, ties by page ascending, and keeps limit.
func RankPages(pages []PageCount, limit int) []PageCount {
	out := append([]PageCount(nil), pages...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Page < out[j].Page
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// ratio divides rounding to two decimals; a zero denominator yields 0.
func ratio(num, den int64) float64 {
	if den == 0 {
		return 0
	}
	return math.Round(float64(num)/float64(den)*100) / 100
}
