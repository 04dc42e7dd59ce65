package models

import "time"

// UsageRecord tracks one generation attempt in the usage database.
type UsageRecord struct {
	ID            int64     `json:"id"`
	RequestID     string    `json:"request_id"`
	StyleID       string    `json:"style_id"`
	Success       bool      `json:"success"`
	Fallback      bool      `json:"fallback"`
	CacheHits     CacheHits `json:"cache_hits"`
	DurationMs    int64     `json:"duration_ms"`
	EstimatedCost float64   `json:"estimated_cost"`
	CreatedAt     time.Time `json:"created_at"`
}

// UsageSummary aggregates usage per style.
type UsageSummary struct {
	StyleID       string  `json:"style_id"`
	RequestCount  int     `json:"request_count"`
	SuccessCount  int     `json:"success_count"`
	TotalCost     float64 `json:"total_cost"`
	AvgDurationMs int64   `json:"avg_duration_ms"`
}
