package ports

import (
	"context"
	"errand-route-service/internal/domain"
)

// Port: in-process cache of provider quotes keyed by an unordered coordinate pair.
type EdgeCache interface {
	Get(a, b domain.Coordinates, mode domain.TravelMode, region string) (domain.CostEdge, bool)
	// Set stores edge and reports whether it was accepted. Fallback edges are refused.
	Set(ctx context.Context, a, b domain.Coordinates, mode domain.TravelMode, region string, edge domain.CostEdge) bool
	Stats() domain.CacheStats
	PurgeExpired() int
	Clear() int
}
