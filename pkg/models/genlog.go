package models

import "time"

// CacheHits records which pipeline resources were served from cache.
type CacheHits struct {
	StreetView bool `json:"streetView"`
	Aerial     bool `json:"aerial"`
	Identity   bool `json:"identity"`
}

// GenerationLogEntry is one line of the append-only generation log.
// Entries are written once per attempted generation and never updated.
type GenerationLogEntry struct {
	Timestamp     time.Time `json:"timestamp"`
	RequestID     string    `json:"request_id"`
	Address       string    `json:"address"`
	StyleID       string    `json:"style_id"`
	Success       bool      `json:"success"`
	Fallback      bool      `json:"fallback,omitempty"`
	DurationMs    int64     `json:"duration_ms"`
	Error         string    `json:"error,omitempty"`
	CacheHits     CacheHits `json:"cache_hits"`
	EstimatedCost float64   `json:"estimated_cost"`
}

// Lead is one line of the captured-leads log.
type Lead struct {
	Email     string `json:"email"`
	Address   string `json:"address"`
	Timestamp string `json:"timestamp"`
}

// GenerationStats aggregates the generation log for the stats endpoint.
type GenerationStats struct {
	Total         int            `json:"total"`
	Successes     int            `json:"successes"`
	Failures      int            `json:"failures"`
	Fallbacks     int            `json:"fallbacks"`
	TotalCost     float64        `json:"total_cost"`
	AvgDurationMs int64          `json:"avg_duration_ms"`
	ByStyle       map[string]int `json:"by_style"`
}
