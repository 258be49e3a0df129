package model

import "time"

// Response is a decoded Notion API JSON object. Values returned from the
// response cache are shared between callers and must be treated as read-only.
type Response map[string]any

// Results returns the "results" array of a list response, or nil.
func (r Response) Results() []any {
	results, _ := r["results"].([]any)
	return results
}

// NextCursor returns the cursor for the following page, or "" when the
// server reports no more pages.
func (r Response) NextCursor() string {
	if more, ok := r["has_more"].(bool); ok && !more {
		return ""
	}
	cursor, _ := r["next_cursor"].(string)
	return cursor
}

// DatabaseQuery holds the parameters of a database query. PageSize is clamped
// to 1..100; zero means 100.
type DatabaseQuery struct {
	Filter      map[string]any
	Sorts       []map[string]any
	PageSize    int
	StartCursor string
}

// SearchSort values accepted by Search.
const (
	SearchSortRelevance      = "relevance"
	SearchSortLastEditedTime = "last_edited_time"
)

// CacheStats summarises the response cache.
type CacheStats struct {
	Total   int `json:"total_entries"`
	Expired int `json:"expired_entries"`
	Active  int `json:"active_entries"`
}

// LimiterKeyStats describes one (app, workspace) sliding window.
type LimiterKeyStats struct {
	RequestsInWindow int     `json:"requests_in_window"`
	LimitPercent     float64 `json:"limit_percent"`
}

// Cache TTLs per operation class.
const (
	QueryCacheTTL = 5 * time.Minute
	ReadCacheTTL  = 10 * time.Minute
)

// ServiceStats is the process-wide snapshot of cache and limiter state.
type ServiceStats struct {
	Cache          CacheStats                 `json:"cache"`
	RateLimits     map[string]LimiterKeyStats `json:"rate_limits"`
	ActiveServices int                        `json:"active_services"`
}
