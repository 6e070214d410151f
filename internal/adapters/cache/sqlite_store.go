package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errand-route-service/internal/domain"
	"errors"
	"fmt"
	"time"
)

// SQLite backed snapshot store for the distance cache.
// Each row holds one entry as JSON keyed by the canonical cache key.
type SqliteStore struct {
	DB *sql.DB
}

func NewSqliteStore(db *sql.DB) *SqliteStore {
	return &SqliteStore{DB: db}
}

// Initialize the SQLite cache schema.
func InitSqliteSchema(db *sql.DB) error {
	if db == nil {
		return errors.New("init schema: DB is nil")
	}

	createDistanceCacheQuery := `
	CREATE TABLE IF NOT EXISTS distance_cache (
        cache_key TEXT PRIMARY KEY,
        payload TEXT NOT NULL,
        fetched_at INTEGER NOT NULL
    );
	`

	createIndexQuery := `
	CREATE INDEX IF NOT EXISTS idx_distance_cache_fetched_at
    ON distance_cache(fetched_at);
	`

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("init schema: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for i, stmt := range []string{createDistanceCacheQuery, createIndexQuery} {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("init schema: exec statement #%d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("init schema: commit tx: %w", err)
	}

	return nil
}

func (s *SqliteStore) Load(ctx context.Context) ([]domain.CacheEntry, int, error) {
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
func (s *SqliteStore) Save(ctx context.Context, entries []domain.CacheEntry) error {
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
	INSERT OR REPLACE INTO distance_cache (
        cache_key,
        payload,
        fetched_at
    )
    VALUES (?, ?, ?)
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

// scanEntries decodes (cache_key, payload, fetched_at) rows. Rows whose payload
// does not decode are counted as skipped.
func scanEntries(rows *sql.Rows) ([]domain.CacheEntry, int, error) {
	var (
		out     []domain.CacheEntry
		skipped int
	)
	for rows.Next() {
		var (
			key       string
			payload   string
			fetchedAt int64
		)
		if err := rows.Scan(&key, &payload, &fetchedAt); err != nil {
			return nil, 0, fmt.Errorf("load distance cache: scan rows: %w", err)
		}

		var edge domain.CostEdge
		if err := json.Unmarshal([]byte(payload), &edge); err != nil {
			skipped++
			continue
		}
		out = append(out, domain.CacheEntry{Key: key, Edge: edge, Timestamp: time.Unix(fetchedAt, 0)})
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("load distance cache: row iteration: %w", err)
	}

	return out, skipped, nil
}

func execEntries(ctx context.Context, stmt *sql.Stmt, entries []domain.CacheEntry) error {
	for _, e := range entries {
		if e.Key == "" {
			return errors.New("save distance cache: empty cache key")
		}

		payload, err := json.Marshal(e.Edge)
		if err != nil {
			return fmt.Errorf("save distance cache key=%q: encode: %w", e.Key, err)
		}

		if _, err := stmt.ExecContext(ctx, e.Key, string(payload), e.Timestamp.Unix()); err != nil {
			return fmt.Errorf("save distance cache key=%q: %w", e.Key, err)
		}
	}
	return nil
}
