package dto

type CacheStatsResponse struct {
	Entries int     `json:"entries"`
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	HitRate float64 `json:"hit_rate"`
}

type CacheRemovedResponse struct {
	Removed int `json:"removed"`
}
