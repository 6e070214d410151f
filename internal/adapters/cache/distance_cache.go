package cache

import (
	"context"
	"errand-route-service/internal/domain"
	"errand-route-service/internal/platform/obs"
	"errand-route-service/internal/ports"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
)

const (
	stripeCount = 16

	DefaultTTL          = 24 * time.Hour
	DefaultMaxEntries   = 50000
	DefaultPersistEvery = 50

	persistTimeout = 30 * time.Second
)

type Options struct {
	TTL        time.Duration
	MaxEntries int
	// PersistEvery saves a snapshot after this many successful writes. Zero disables periodic saves.
	PersistEvery int
	// Store is optional; without it the cache lives in memory only.
	Store ports.CacheStore
}

type stripe struct {
	mu      sync.Mutex
	entries map[string]domain.CacheEntry
}

// DistanceCache remembers provider quotes keyed by an unordered coordinate pair,
// travel mode and region. It is safe for concurrent use.
type DistanceCache struct {
	stripes [stripeCount]stripe

	ttl          time.Duration
	maxEntries   int
	persistEvery int
	store        ports.CacheStore

	hits   atomic.Int64
	misses atomic.Int64
	writes atomic.Int64

	persistMu  sync.Mutex
	persisting atomic.Bool
	background sync.WaitGroup

	now func() time.Time
}

func NewDistanceCache(opts Options) *DistanceCache {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = DefaultMaxEntries
	}
	if opts.PersistEvery < 0 {
		opts.PersistEvery = 0
	}

	c := &DistanceCache{
		ttl:          opts.TTL,
		maxEntries:   opts.MaxEntries,
		persistEvery: opts.PersistEvery,
		store:        opts.Store,
		now:          time.Now,
	}
	for i := range c.stripes {
		c.stripes[i].entries = make(map[string]domain.CacheEntry)
	}
	return c
}

// Key builds the canonical cache key. Endpoints are normalized and sorted so
// (a, b) and (b, a) share one entry.
func Key(a, b domain.Coordinates, mode domain.TravelMode, region string) string {
	a, b = a.Normalized(), b.Normalized()
	if b.Less(a) {
		a, b = b, a
	}
	return a.String() + "|" + b.String() + "|" + string(mode) + "|" + strings.ToLower(strings.TrimSpace(region))
}

func (c *DistanceCache) stripeFor(key string) *stripe {
	return &c.stripes[xxhash.Sum64String(key)%stripeCount]
}

func (c *DistanceCache) expired(e domain.CacheEntry, now time.Time) bool {
	return now.Sub(e.Timestamp) > c.ttl
}

// Get returns the cached edge for the pair. Expired entries are removed on access.
func (c *DistanceCache) Get(a, b domain.Coordinates, mode domain.TravelMode, region string) (domain.CostEdge, bool) {
	key := Key(a, b, mode, region)
	s := c.stripeFor(key)

	s.mu.Lock()
	e, ok := s.entries[key]
	if ok && c.expired(e, c.now()) {
		delete(s.entries, key)
		ok = false
	}
	s.mu.Unlock()

	if !ok {
		c.misses.Add(1)
		return domain.CostEdge{}, false
	}
	c.hits.Add(1)
	return e.Edge, true
}

// Set stores a provider quote. Fallback estimates are refused so they never
// masquerade as real routes.
func (c *DistanceCache) Set(_ context.Context, a, b domain.Coordinates, mode domain.TravelMode, region string, edge domain.CostEdge) bool {
	if edge.IsFallback {
		return false
	}

	key := Key(a, b, mode, region)
	s := c.stripeFor(key)

	s.mu.Lock()
	s.entries[key] = domain.CacheEntry{Key: key, Edge: edge, Timestamp: c.now()}
	s.mu.Unlock()

	if c.Len() > c.maxEntries {
		c.EnforceCapacity(c.maxEntries)
	}

	if c.store != nil && c.persistEvery > 0 && c.writes.Add(1)%int64(c.persistEvery) == 0 {
		c.persistAsync()
	}
	return true
}

// persistAsync saves a snapshot in the background with its own deadline.
// A save already in flight absorbs the request.
func (c *DistanceCache) persistAsync() {
	if !c.persisting.CompareAndSwap(false, true) {
		return
	}
	c.background.Add(1)
	go func() {
		defer c.background.Done()
		defer c.persisting.Store(false)

		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if err := c.Flush(ctx); err != nil {
			log.Printf("op=distance.cache.persist err=%v", err)
		}
	}()
}

// Wait blocks until background saves finish.
func (c *DistanceCache) Wait() {
	c.background.Wait()
}

// Len returns the number of entries, expired ones included.
func (c *DistanceCache) Len() int {
	n := 0
	for i := range c.stripes {
		s := &c.stripes[i]
		s.mu.Lock()
		n += len(s.entries)
		s.mu.Unlock()
	}
	return n
}

func (c *DistanceCache) Stats() domain.CacheStats {
	hits, misses := c.hits.Load(), c.misses.Load()
	st := domain.CacheStats{Entries: c.Len(), Hits: hits, Misses: misses}
	if total := hits + misses; total > 0 {
		st.HitRate = float64(hits) / float64(total)
	}
	return st
}

// PurgeExpired removes every entry older than the TTL and returns how many were dropped.
func (c *DistanceCache) PurgeExpired() int {
	now := c.now()
	removed := 0
	for i := range c.stripes {
		s := &c.stripes[i]
		s.mu.Lock()
		for k, e := range s.entries {
			if c.expired(e, now) {
				delete(s.entries, k)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}

// EnforceCapacity evicts the oldest entries until at most limit remain.
func (c *DistanceCache) EnforceCapacity(limit int) int {
	if limit < 0 {
		limit = 0
	}

	type aged struct {
		key string
		ts  time.Time
	}

	all := make([]aged, 0, c.Len())
	for i := range c.stripes {
		s := &c.stripes[i]
		s.mu.Lock()
		for k, e := range s.entries {
			all = append(all, aged{key: k, ts: e.Timestamp})
		}
		s.mu.Unlock()
	}

	excess := len(all) - limit
	if excess <= 0 {
		return 0
	}

	sort.Slice(all, func(i, j int) bool {
		if all[i].ts.Equal(all[j].ts) {
			return all[i].key < all[j].key
		}
		return all[i].ts.Before(all[j].ts)
	})

	removed := 0
	for _, a := range all[:excess] {
		s := c.stripeFor(a.key)
		s.mu.Lock()
		if e, ok := s.entries[a.key]; ok && e.Timestamp.Equal(a.ts) {
			delete(s.entries, a.key)
			removed++
		}
		s.mu.Unlock()
	}
	return removed
}

// Clear drops every entry and returns how many there were. Counters are kept.
func (c *DistanceCache) Clear() int {
	removed := 0
	for i := range c.stripes {
		s := &c.stripes[i]
		s.mu.Lock()
		removed += len(s.entries)
		s.entries = make(map[string]domain.CacheEntry)
		s.mu.Unlock()
	}
	return removed
}

func (c *DistanceCache) snapshot() []domain.CacheEntry {
	out := make([]domain.CacheEntry, 0, c.Len())
	for i := range c.stripes {
		s := &c.stripes[i]
		s.mu.Lock()
		for _, e := range s.entries {
			out = append(out, e)
		}
		s.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Load restores entries from the store. Expired and fallback entries are skipped.
func (c *DistanceCache) Load(ctx context.Context) (err error) {
	defer obs.Time(ctx, "distance.cache.Load")(&err)

	if c.store == nil {
		return nil
	}

	entries, corrupt, err := c.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load distance cache: %w", err)
	}

	now := c.now()
	loaded, expired := 0, 0
	for _, e := range entries {
		if e.Key == "" || e.Edge.IsFallback {
			corrupt++
			continue
		}
		if c.expired(e, now) {
			expired++
			continue
		}
		s := c.stripeFor(e.Key)
		s.mu.Lock()
		s.entries[e.Key] = e
		s.mu.Unlock()
		loaded++
	}

	if corrupt > 0 || expired > 0 {
		log.Printf("op=distance.cache.Load loaded=%d skipped_corrupt=%d skipped_expired=%d", loaded, corrupt, expired)
	}

	if c.Len() > c.maxEntries {
		c.EnforceCapacity(c.maxEntries)
	}
	return nil
}

// Flush writes a snapshot of the current entries to the store.
func (c *DistanceCache) Flush(ctx context.Context) error {
	if c.store == nil {
		return nil
	}

	c.persistMu.Lock()
	defer c.persistMu.Unlock()

	if err := c.store.Save(ctx, c.snapshot()); err != nil {
		return fmt.Errorf("flush distance cache: %w", err)
	}
	return nil
}

// Persistent reports whether the cache has a backing store.
func (c *DistanceCache) Persistent() bool { return c.store != nil }
