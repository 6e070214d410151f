package cache

import (
	"context"
	"encoding/json"
	"errand-route-service/internal/domain"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const DefaultRedisKey = "errand:distance_cache"

// RedisStore keeps the snapshot in one Redis hash: field = cache key, value = JSON entry.
type RedisStore struct {
	Client *redis.Client
	Key    string
}

func NewRedisStore(client *redis.Client, key string) *RedisStore {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisStore{Client: client, Key: key}
}

func (r *RedisStore) Load(ctx context.Context) ([]domain.CacheEntry, int, error) {
	if r.Client == nil {
		return nil, 0, errors.New("redis cache store: client is nil")
	}

	fields, err := r.Client.HGetAll(ctx, r.Key).Result()
	if err != nil {
		return nil, 0, fmt.Errorf("redis cache store: hgetall %q: %w", r.Key, err)
	}

	out := make([]domain.CacheEntry, 0, len(fields))
	skipped := 0
	for field, raw := range fields {
		var e domain.CacheEntry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			skipped++
			continue
		}
		if e.Key == "" {
			e.Key = field
		}
		out = append(out, e)
	}

	return out, skipped, nil
}

// Save replaces the hash atomically inside a MULTI/EXEC block.
func (r *RedisStore) Save(ctx context.Context, entries []domain.CacheEntry) error {
	if r.Client == nil {
		return errors.New("redis cache store: client is nil")
	}

	values := make([]any, 0, 2*len(entries))
	for _, e := range entries {
		raw, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("redis cache store: encode key=%q: %w", e.Key, err)
		}
		values = append(values, e.Key, string(raw))
	}

	_, err := r.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.Key)
		if len(values) > 0 {
			pipe.HSet(ctx, r.Key, values...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis cache store: save %q: %w", r.Key, err)
	}

	return nil
}
