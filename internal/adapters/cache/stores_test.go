package cache

import (
	"context"
	"database/sql"
	"errand-route-service/internal/domain"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	_ "modernc.org/sqlite"
)

func sampleEntries() []domain.CacheEntry {
	ts := time.Unix(1714564800, 0)
	return []domain.CacheEntry{
		{Key: "a|b|driving|", Edge: domain.CostEdge{DistanceMeters: 1200, DurationSeconds: 180, Polyline: "abc"}, Timestamp: ts},
		{Key: "a|c|walking|jp", Edge: domain.CostEdge{DistanceMeters: 800, DurationSeconds: 660, Steps: []string{"Head north"}}, Timestamp: ts},
	}
}

func checkEntries(t *testing.T, got []domain.CacheEntry) {
	t.Helper()

	if len(got) != 2 {
		t.Fatalf("loaded %d entries, want 2", len(got))
	}
	byKey := map[string]domain.CacheEntry{}
	for _, e := range got {
		byKey[e.Key] = e
	}
	e, ok := byKey["a|c|walking|jp"]
	if !ok {
		t.Fatal("missing entry a|c|walking|jp")
	}
	if e.Edge.DurationSeconds != 660 || len(e.Edge.Steps) != 1 {
		t.Fatalf("entry = %+v, want 660s with one step", e)
	}
	if e.Timestamp.Unix() != 1714564800 {
		t.Fatalf("timestamp = %v, want unix 1714564800", e.Timestamp)
	}
}

func TestFileStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cache", "distance.jsonl")
	store := NewFileStore(path)

	got, skipped, err := store.Load(ctx)
	if err != nil || len(got) != 0 || skipped != 0 {
		t.Fatalf("missing file: got %d entries, %d skipped, err %v", len(got), skipped, err)
	}

	if err := store.Save(ctx, sampleEntries()); err != nil {
		t.Fatalf("save: %v", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := f.WriteString("{not json\n"); err != nil {
		t.Fatalf("append: %v", err)
	}
	_ = f.Close()

	got, skipped, err = store.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if skipped != 1 {
		t.Fatalf("skipped = %d, want 1", skipped)
	}
	checkEntries(t, got)

	matches, _ := filepath.Glob(filepath.Join(filepath.Dir(path), "*.tmp"))
	if len(matches) != 0 {
		t.Fatalf("temp files left behind: %v", matches)
	}
}

func TestFileStoreSaveReplacesSnapshot(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "distance.jsonl")
	store := NewFileStore(path)

	if err := store.Save(ctx, sampleEntries()); err != nil {
		t.Fatalf("save: %v", err)
	}

	// A canceled save leaves the previous snapshot in place.
	canceled, cancel := context.WithCancel(ctx)
	cancel()
	if err := store.Save(canceled, sampleEntries()[:1]); err == nil {
		t.Fatal("expected error from canceled save")
	}
	got, _, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	checkEntries(t, got)

	if err := store.Save(ctx, sampleEntries()[1:]); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, _, err = store.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 1 || got[0].Key != "a|c|walking|jp" {
		t.Fatalf("entries = %+v, want only a|c|walking|jp", got)
	}

	matches, _ := filepath.Glob(filepath.Join(filepath.Dir(path), "*.tmp"))
	if len(matches) != 0 {
		t.Fatalf("temp files left behind: %v", matches)
	}
}

func TestSqliteStore(t *testing.T) {
	ctx := context.Background()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	if err := InitSqliteSchema(db); err != nil {
		t.Fatalf("init schema: %v", err)
	}
	store := NewSqliteStore(db)

	if err := store.Save(ctx, sampleEntries()); err != nil {
		t.Fatalf("save: %v", err)
	}
	// A second save replaces rather than appends.
	if err := store.Save(ctx, sampleEntries()); err != nil {
		t.Fatalf("second save: %v", err)
	}

	if _, err := db.Exec(`INSERT INTO distance_cache (cache_key, payload, fetched_at) VALUES ('bad', '{', 0)`); err != nil {
		t.Fatalf("insert corrupt row: %v", err)
	}

	got, skipped, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if skipped != 1 {
		t.Fatalf("skipped = %d, want 1", skipped)
	}
	checkEntries(t, got)
}

func TestRedisStore(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	store := NewRedisStore(client, "")

	if err := store.Save(ctx, sampleEntries()); err != nil {
		t.Fatalf("save: %v", err)
	}
	mr.HSet(DefaultRedisKey, "broken", "not-json")

	got, skipped, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if skipped != 1 {
		t.Fatalf("skipped = %d, want 1", skipped)
	}
	checkEntries(t, got)

	if err := store.Save(ctx, nil); err != nil {
		t.Fatalf("save empty: %v", err)
	}
	if mr.Exists(DefaultRedisKey) {
		t.Fatal("empty save left the hash behind")
	}
}

func TestCacheRoundTripThroughStore(t *testing.T) {
	ctx := context.Background()
	store := NewFileStore(filepath.Join(t.TempDir(), "distance.jsonl"))

	c := NewDistanceCache(Options{Store: store})
	c.Set(ctx, tokyo, shibuya, domain.TravelModeDriving, "jp", domain.CostEdge{DistanceMeters: 7000, DurationSeconds: 900})
	if err := c.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}

	restored := NewDistanceCache(Options{Store: store})
	if err := restored.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, ok := restored.Get(shibuya, tokyo, domain.TravelModeDriving, "jp"); !ok {
		t.Fatal("restored cache missed persisted entry")
	}
}
