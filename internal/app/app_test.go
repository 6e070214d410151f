package app

import (
	"context"
	"errand-route-service/internal/adapters/cache"
	"errand-route-service/internal/config"
	"errand-route-service/internal/domain"
	"errand-route-service/internal/services"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func testConfig(t *testing.T, store string) config.Config {
	t.Helper()
	t.Setenv("ROUTE_PROVIDER", "ors")
	t.Setenv("ORS_API_KEY", "test-key")
	t.Setenv("CACHE_STORE", store)

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	dir := t.TempDir()
	cfg.Cache.FilePath = filepath.Join(dir, "cache", "edges.jsonl")
	cfg.Cache.SqlitePath = filepath.Join(dir, "cache.db")
	return cfg
}

func TestNewProvider(t *testing.T) {
	cfg := testConfig(t, "none")

	p, err := NewProvider(cfg)
	if err != nil || p.Name() != "ors" {
		t.Fatalf("provider = %v err=%v, want ors", p, err)
	}

	cfg.Provider.Name = "google"
	cfg.Provider.GoogleKey = "AIza-test"
	p, err = NewProvider(cfg)
	if err != nil || p.Name() != "google" {
		t.Fatalf("provider = %v err=%v, want google", p, err)
	}

	cfg.Provider.Name = "fax"
	if _, err := NewProvider(cfg); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestCacheSurvivesRestart(t *testing.T) {
	for _, store := range []string{"file", "sqlite", "redis"} {
		t.Run(store, func(t *testing.T) {
			cfg := testConfig(t, store)
			if store == "redis" {
				cfg.Cache.RedisAddr = miniredis.RunT(t).Addr()
			}
			ctx := context.Background()

			a, err := New(ctx, cfg)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			from, to := domain.Coordinates{Lat: 1, Lon: 1}, domain.Coordinates{Lat: 1.01, Lon: 1}
			a.Cache.Set(ctx, from, to, domain.TravelModeDriving, "", domain.CostEdge{DistanceMeters: 1200, DurationSeconds: 150})
			if err := a.Close(ctx); err != nil {
				t.Fatalf("close: %v", err)
			}

			b, err := New(ctx, cfg)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			defer b.Close(ctx)

			e, ok := b.Cache.Get(to, from, domain.TravelModeDriving, "")
			if !ok || e.DistanceMeters != 1200 {
				t.Fatalf("edge = %+v ok=%v, want restored quote", e, ok)
			}
		})
	}
}

func TestReleaseLeavesStoreUntouched(t *testing.T) {
	cfg := testConfig(t, "file")
	ctx := context.Background()

	a1, b1 := domain.Coordinates{Lat: 1, Lon: 1}, domain.Coordinates{Lat: 1.01, Lon: 1}
	a2, b2 := domain.Coordinates{Lat: 2, Lon: 2}, domain.Coordinates{Lat: 2.01, Lon: 2}
	seed := []domain.CacheEntry{
		{Key: cache.Key(a1, b1, domain.TravelModeDriving, ""), Edge: domain.CostEdge{DistanceMeters: 1200, DurationSeconds: 150}, Timestamp: time.Now()},
		{Key: cache.Key(a2, b2, domain.TravelModeDriving, ""), Edge: domain.CostEdge{DistanceMeters: 900, DurationSeconds: 90}, Timestamp: time.Now().Add(-30 * 24 * time.Hour)},
	}
	if err := ensureDir(cfg.Cache.FilePath); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	store := cache.NewFileStore(cfg.Cache.FilePath)
	if err := store.Save(ctx, seed); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	a, err := New(ctx, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := a.Cache.Len(); got != 1 {
		t.Fatalf("live entries = %d, want 1", got)
	}
	if err := a.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}

	entries, _, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("stored entries after release = %d, want 2", len(entries))
	}

	// Close writes back only live entries.
	b, err := New(ctx, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := b.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	entries, _, err = store.Load(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("stored entries after close = %d, want 1", len(entries))
	}
}

func TestNewWiresPlanner(t *testing.T) {
	cfg := testConfig(t, "none")
	a, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer a.Close(context.Background())

	// Identical points never reach the provider.
	res, err := a.Planner.OptimizeFixedDestinations(context.Background(), services.FixedRequest{
		Home:         domain.Point{Name: "home"},
		Destinations: []domain.Point{{Name: "same place"}},
		Budget:       time.Second,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := res.ByTime[0].TotalDistanceMeters; got != 0 {
		t.Fatalf("distance = %d, want 0", got)
	}
	if st := a.Planner.CacheStats(); st.Entries != 0 {
		t.Fatalf("entries = %d, want 0", st.Entries)
	}
}

func TestOpenStoreUnknown(t *testing.T) {
	cfg := testConfig(t, "none")
	cfg.Cache.Store = "tape"
	if _, _, err := OpenStore(context.Background(), cfg); err == nil {
		t.Fatal("expected error for unknown store")
	}
}
