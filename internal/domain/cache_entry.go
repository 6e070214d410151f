package domain

import "time"

// CacheEntry is a provider quote remembered by the distance cache.
type CacheEntry struct {
	Key       string    `json:"key"`
	Edge      CostEdge  `json:"edge"`
	Timestamp time.Time `json:"timestamp"`
}

// CacheStats summarizes cache effectiveness since process start.
type CacheStats struct {
	Entries int     `json:"entries"`
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	HitRate float64 `json:"hit_rate"`
}
