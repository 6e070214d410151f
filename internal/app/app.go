// Package app assembles the planner from configuration. It is shared by the
// HTTP server and the cache maintenance tool.
package app

import (
	"context"
	"database/sql"
	"errand-route-service/internal/adapters/cache"
	"errand-route-service/internal/adapters/distance"
	"errand-route-service/internal/adapters/solver"
	"errand-route-service/internal/config"
	"errand-route-service/internal/platform/db"
	"errand-route-service/internal/platform/ratelimit"
	"errand-route-service/internal/ports"
	"errand-route-service/internal/services"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
	_ "modernc.org/sqlite"
)

// App holds the wired planner and the resources that must be released on exit.
type App struct {
	Planner *services.Planner
	Cache   *cache.DistanceCache
	closers []func() error
}

// New wires the provider, cache store, limiter and optimizers described by cfg
// and loads the persisted cache.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	provider, err := NewProvider(cfg)
	if err != nil {
		return nil, err
	}

	a := &App{}
	store, err := a.openStore(ctx, cfg)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}

	a.Cache = cache.NewDistanceCache(cache.Options{
		TTL:          cfg.Cache.TTL,
		MaxEntries:   cfg.Cache.MaxEntries,
		PersistEvery: cfg.Cache.PersistEvery,
		Store:        store,
	})
	if err := a.Cache.Load(ctx); err != nil {
		log.Printf("op=app.New cache_load_failed=true err=%v", err)
	}

	limiter, err := ratelimit.NewSlidingWindow(cfg.Limiter.MaxCalls, cfg.Limiter.Window)
	if err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("app: %w", err)
	}
	client, err := services.NewRouteClient(provider, limiter, a.Cache, cfg.Route)
	if err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("app: %w", err)
	}

	var tourSolver ports.TourSolver
	if cfg.Solver.Enabled {
		tourSolver = solver.NewBranchBound(cfg.Solver.MaxNodes)
	}

	builder := services.NewMatrixBuilder(client, cfg.Matrix)
	tours := services.NewTourOptimizer(tourSolver, cfg.Optimizer)
	categories := services.NewCategoryOptimizer(builder, tours, cfg.Category)
	a.Planner = services.NewPlanner(client, builder, tours, categories, a.Cache, cfg.Resolver)

	log.Printf("op=app.New provider=%s cache_store=%s cache_entries=%d solver=%t",
		provider.Name(), cfg.Cache.Store, a.Cache.Len(), tourSolver != nil)
	return a, nil
}

// NewProvider returns the routing provider named by cfg.Provider.Name.
func NewProvider(cfg config.Config) (ports.RouteProvider, error) {
	switch cfg.Provider.Name {
	case "google":
		p, err := distance.NewGoogleProvider(cfg.Provider.GoogleKey, cfg.Provider.Language, cfg.Provider.GoogleBaseURL)
		if err != nil {
			return nil, fmt.Errorf("app: %w", err)
		}
		return p, nil
	case "ors":
		p, err := distance.NewORSProvider(cfg.Provider.ORSKey, cfg.Provider.ORSBaseURL, cfg.Provider.Timeout)
		if err != nil {
			return nil, fmt.Errorf("app: %w", err)
		}
		return p, nil
	}
	return nil, fmt.Errorf("app: unknown route provider %q", cfg.Provider.Name)
}

// OpenStore opens the cache store selected by cfg.Cache.Store. The returned
// close func is never nil. A nil store means the cache is memory only.
func OpenStore(ctx context.Context, cfg config.Config) (ports.CacheStore, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Cache.Store {
	case "", "none":
		return nil, noop, nil

	case "file":
		if err := ensureDir(cfg.Cache.FilePath); err != nil {
			return nil, noop, err
		}
		return cache.NewFileStore(cfg.Cache.FilePath), noop, nil

	case "sqlite":
		if err := ensureDir(cfg.Cache.SqlitePath); err != nil {
			return nil, noop, err
		}
		conn, err := sql.Open("sqlite", cfg.Cache.SqlitePath)
		if err != nil {
			return nil, noop, fmt.Errorf("app: open sqlite database %q: %w", cfg.Cache.SqlitePath, err)
		}
		if err := conn.PingContext(ctx); err != nil {
			conn.Close()
			return nil, noop, fmt.Errorf("app: verify sqlite connection to %q: %w", cfg.Cache.SqlitePath, err)
		}
		if err := cache.InitSqliteSchema(conn); err != nil {
			conn.Close()
			return nil, noop, fmt.Errorf("app: %w", err)
		}
		return cache.NewSqliteStore(conn), conn.Close, nil

	case "postgres":
		conn, err := db.Open(ctx, cfg.Cache.DatabaseURL)
		if err != nil {
			return nil, noop, fmt.Errorf("app: %w", err)
		}
		if err := cache.InitPostgresSchema(ctx, conn); err != nil {
			conn.Close()
			return nil, noop, fmt.Errorf("app: %w", err)
		}
		return cache.NewSQLStore(conn), conn.Close, nil

	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.Cache.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, noop, fmt.Errorf("app: ping redis %q: %w", cfg.Cache.RedisAddr, err)
		}
		return cache.NewRedisStore(client, cfg.Cache.RedisKey), client.Close, nil
	}

	return nil, noop, fmt.Errorf("app: unknown cache store %q", cfg.Cache.Store)
}

func (a *App) openStore(ctx context.Context, cfg config.Config) (ports.CacheStore, error) {
	store, closeFn, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closeFn)
	return store, nil
}

// Close flushes the cache to its store and releases connections.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Cache != nil && a.Cache.Persistent() {
		a.Cache.Wait()
		if err := a.Cache.Flush(ctx); err != nil {
			errs = append(errs, fmt.Errorf("app: flush cache: %w", err))
		}
	}
	errs = append(errs, a.Release())
	return errors.Join(errs...)
}

// Release closes connections without writing the cache back, leaving the
// store as it was loaded.
func (a *App) Release() error {
	if a.Cache != nil {
		a.Cache.Wait()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("app: create directory %q: %w", dir, err)
	}
	return nil
}
