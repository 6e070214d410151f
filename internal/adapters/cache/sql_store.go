package cache

import (
	"context"
	"database/sql"
	"errand-route-service/internal/domain"
	"errand-route-service/internal/platform/obs"
	"errors"
	"fmt"
)

// SQLStore is a Postgres-backed snapshot store for the distance cache.
type SQLStore struct {
	DB *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{DB: db}
}

// InitPostgresSchema creates the cache table if it does not exist.
func InitPostgresSchema(ctx context.Context, db *sql.DB) error {
	if db == nil {
		return errors.New("init schema: DB is nil")
	}

	if _, err := db.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS distance_cache (
        cache_key TEXT PRIMARY KEY,
        payload TEXT NOT NULL,
        fetched_at BIGINT NOT NULL
    );
	`); err != nil {
		return fmt.Errorf("init schema: create distance_cache: %w", err)
	}

	return nil
}

func (s *SQLStore) Load(ctx context.Context) (_ []domain.CacheEntry, _ int, err error) {
	defer obs.Time(ctx, "distance.cache.store.Load")(&err)

	if s.DB == nil {
		return nil, 0, errors.New("distance cache: db is nil")
	}

	rows, err := s.DB.QueryContext(ctx, `
	SELECT cache_key, payload, fetched_at
    FROM distance_cache;
	`)
	if err != nil {
		return nil, 0, fmt.Errorf("load distance cache: query distance_cache table: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// Replace the stored snapshot in one transaction.
func (s *SQLStore) Save(ctx context.Context, entries []domain.CacheEntry) (err error) {
	defer obs.Time(ctx, "distance.cache.store.Save")(&err)

	if s.DB == nil {
		return errors.New("distance cache: db is nil")
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save distance cache: db begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM distance_cache;`); err != nil {
		return fmt.Errorf("save distance cache: clear table: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO distance_cache (cache_key, payload, fetched_at)
    VALUES ($1, $2, $3)
	ON CONFLICT (cache_key) DO UPDATE
	SET payload = EXCLUDED.payload,
		fetched_at = EXCLUDED.fetched_at;
	`)
	if err != nil {
		return fmt.Errorf("save distance cache: db prepare: %w", err)
	}
	defer stmt.Close()

	if err := execEntries(ctx, stmt, entries); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save distance cache commit: %w", err)
	}

	return nil
}
