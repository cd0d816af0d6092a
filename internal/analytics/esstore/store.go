// Package esstore serves page-view analytics from an Elasticsearch index.
// Documents carry sessionId, page, referrer (keyword) and timestamp (date).
package esstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"jobboard-realtime/internal/analytics"
	apperrors "jobboard-realtime/internal/common/errors"
	"jobboard-realtime/internal/common/metrics"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// cardinality is exact below this many distinct sessions
const uniquePrecision = 40000

type Store struct {
	client *elasticsearch.Client
	index  string
}

var _ analytics.PageViewStore = (*Store)(nil)

func New(client *elasticsearch.Client, index string) *Store {
	return &Store{client: client, index: index}
}

func sinceFilter(since time.Time) map[string]interface{} {
	return map[string]interface{}{
		"range": map[string]interface{}{
			"timestamp": map[string]interface{}{
				"gte": since.UTC().Format(time.RFC3339Nano),
			},
		},
	}
}

func filtered(clauses ...map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"bool": map[string]interface{}{"filter": clauses},
	}
}

var rankOrder = []map[string]string{{"_count": "desc"}, {"_key": "asc"}}

func (s *Store) CountViews(ctx context.Context, since time.Time) (int64, error) {
	defer observe("count_views", time.Now())

	body, _ := json.Marshal(map[string]interface{}{"query": filtered(sinceFilter(since))})
	req := esapi.CountRequest{
		Index: []string{s.index},
		Body:  strings.NewReader(string(body)),
	}

	var out struct {
		Count int64 `json:"count"`
	}
	if err := s.do(ctx, "count_views", req, &out); err != nil {
		return 0, err
	}
	return out.Count, nil
}

type termsAgg struct {
	Buckets []struct {
		Key      string `json:"key"`
		DocCount int64  `json:"doc_count"`
	} `json:"buckets"`
}

func (s *Store) TopPages(ctx context.Context, since time.Time, limit int) ([]analytics.PageCount, error) {
	defer observe("top_pages", time.Now())

	var out struct {
		Aggregations struct {
			Pages termsAgg `json:"pages"`
		} `json:"aggregations"`
	}
	err := s.search(ctx, "top_pages", map[string]interface{}{
		"size":  0,
		"query": filtered(sinceFilter(since)),
		"aggs": map[string]interface{}{
			"pages": map[string]interface{}{
				"terms": map[string]interface{}{"field": "page", "size": limit, "order": rankOrder},
			},
		},
	}, &out)
	if err != nil {
		return nil, err
	}

	pages := make([]analytics.PageCount, 0, len(out.Aggregations.Pages.Buckets))
	for _, b := range out.Aggregations.Pages.Buckets {
		pages = append(pages, analytics.PageCount{Page: b.Key, Count: b.DocCount})
	}
	return pages, nil
}

func (s *Store) HourlyViews(ctx context.Context, since time.Time) ([]analytics.HourCount, error) {
	defer observe("hourly_views", time.Now())

	var out struct {
		Aggregations struct {
			Hours struct {
				Buckets []struct {
					KeyAsString string `json:"key_as_string"`
					DocCount    int64  `json:"doc_count"`
				} `json:"buckets"`
			} `json:"hours"`
		} `json:"aggregations"`
	}
	err := s.search(ctx, "hourly_views", map[string]interface{}{
		"size":  0,
		"query": filtered(sinceFilter(since)),
		"aggs": map[string]interface{}{
			"hours": map[string]interface{}{
				"date_histogram": map[string]interface{}{
					"field":             "timestamp",
					"calendar_interval": "hour",
					"time_zone":         "UTC",
					"format":            "yyyy-MM-dd HH:00",
					"min_doc_count":     1,
				},
			},
		},
	}, &out)
	if err != nil {
		return nil, err
	}

	buckets := make([]analytics.HourCount, 0, len(out.Aggregations.Hours.Buckets))
	for _, b := range out.Aggregations.Hours.Buckets {
		buckets = append(buckets, analytics.HourCount{Hour: b.KeyAsString, Count: b.DocCount})
	}
	return buckets, nil
}

func (s *Store) PageStats(ctx context.Context, page string, since time.Time, referrerLimit int) (*analytics.PageStats, error) {
	defer observe("page_stats", time.Now())

	var out struct {
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
		} `json:"hits"`
		Aggregations struct {
			Unique struct {
				Value int64 `json:"value"`
			} `json:"unique"`
			Referrers termsAgg `json:"referrers"`
		} `json:"aggregations"`
	}
	err := s.search(ctx, "page_stats", map[string]interface{}{
		"size":             0,
		"track_total_hits": true,
		"query": filtered(
			map[string]interface{}{"term": map[string]interface{}{"page": page}},
			sinceFilter(since),
		),
		"aggs": map[string]interface{}{
			"unique": map[string]interface{}{
				"cardinality": map[string]interface{}{"field": "sessionId", "precision_threshold": uniquePrecision},
			},
			"referrers": map[string]interface{}{
				"terms": map[string]interface{}{
					"field":   "referrer",
					"size":    referrerLimit,
					"order":   rankOrder,
					"exclude": []string{""},
				},
			},
		},
	}, &out)
	if err != nil {
		return nil, err
	}

	stats := &analytics.PageStats{
		ViewCount:      out.Hits.Total.Value,
		UniqueVisitors: out.Aggregations.Unique.Value,
		Referrers:      make([]analytics.ReferrerCount, 0, len(out.Aggregations.Referrers.Buckets)),
	}
	for _, b := range out.Aggregations.Referrers.Buckets {
		stats.Referrers = append(stats.Referrers, analytics.ReferrerCount{Referrer: b.Key, Count: b.DocCount})
	}
	return stats, nil
}

func (s *Store) search(ctx context.Context, name string, query map[string]interface{}, out interface{}) error {
	body, err := json.Marshal(query)
	if err != nil {
		return apperrors.NewSearchQueryFailedError(name, err)
	}
	req := esapi.SearchRequest{
		Index: []string{s.index},
		Body:  strings.NewReader(string(body)),
	}
	return s.do(ctx, name, req, out)
}

func (s *Store) do(ctx context.Context, name string, req esapi.Request, out interface{}) error {
	res, err := req.Do(ctx, s.client)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return apperrors.NewQueryTimeoutError(name)
		}
		return apperrors.NewSearchQueryFailedError(name, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return apperrors.NewSearchQueryFailedError(name, fmt.Errorf("%s: %s", res.Status(), strings.TrimSpace(string(msg))))
	}

	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return apperrors.NewSearchQueryFailedError(name, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func observe(query string, start time.Time) {
	metrics.StoreQueryDuration.WithLabelValues(query, "elasticsearch").Observe(time.Since(start).Seconds())
}
