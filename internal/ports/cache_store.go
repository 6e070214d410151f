package ports

import (
	"context"
	"errand-route-service/internal/domain"
)

// Port: durable storage for distance cache snapshots.
type CacheStore interface {
	// Load returns every entry that could be decoded and the number of entries skipped as corrupt.
	Load(ctx context.Context) (entries []domain.CacheEntry, skipped int, err error)
	// Save replaces the stored snapshot atomically.
	Save(ctx context.Context, entries []domain.CacheEntry) error
}
