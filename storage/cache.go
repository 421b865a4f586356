package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"schedule-planner/domain"
)

// generationTTL bounds how long a write generation is remembered. It must
// outlast the slowest backend read.
const generationTTL = time.Hour

var errStaleRead = errors.New("cache: entry changed during read")

// Cache wraps a Backend with Redis-backed caching for task and settings reads.
// Writes go to the backend and then evict the user's cached entries.
type Cache struct {
	Backend
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching wrapper using the provided Redis client and TTL.
// A nil client or zero TTL disables caching.
func NewCache(base Backend, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{Backend: base, redis: client, ttl: ttl}
}

func (c *Cache) FetchTasks(ctx context.Context, userID string) ([]domain.Record, error) {
	var cached []domain.Record
	gen, hit := c.load(ctx, tasksCacheKey(userID), &cached)
	if hit {
		return cached, nil
	}

	tasks, err := c.Backend.FetchTasks(ctx, userID)
	if err != nil {
		return nil, err
	}

	c.store(ctx, tasksCacheKey(userID), gen, tasks)
	return tasks, nil
}

func (c *Cache) FetchSettings(ctx context.Context, userID string) (domain.Settings, error) {
	var cached domain.Settings
	gen, hit := c.load(ctx, settingsCacheKey(userID), &cached)
	if hit {
		return cached, nil
	}

	settings, err := c.Backend.FetchSettings(ctx, userID)
	if err != nil {
		return domain.Settings{}, err
	}

	c.store(ctx, settingsCacheKey(userID), gen, settings)
	return settings, nil
}

func (c *Cache) InsertTask(ctx context.Context, rec domain.Record) error {
	if err := c.Backend.InsertTask(ctx, rec); err != nil {
		return err
	}
	c.evict(ctx, tasksCacheKey(rec.UserID))
	return nil
}

func (c *Cache) ReplaceTask(ctx context.Context, rec domain.Record) error {
	if err := c.Backend.ReplaceTask(ctx, rec); err != nil {
		return err
	}
	c.evict(ctx, tasksCacheKey(rec.UserID))
	return nil
}

func (c *Cache) DeleteTask(ctx context.Context, userID, id string) error {
	if err := c.Backend.DeleteTask(ctx, userID, id); err != nil {
		return err
	}
	c.evict(ctx, tasksCacheKey(userID))
	return nil
}

func (c *Cache) SaveSettings(ctx context.Context, userID string, s domain.Settings) error {
	if err := c.Backend.SaveSettings(ctx, userID, s); err != nil {
		return err
	}
	c.evict(ctx, settingsCacheKey(userID))
	return nil
}

// Ping checks Redis and, when it supports it, the backing store.
func (c *Cache) Ping(ctx context.Context) error {
	if c.redis != nil {
		if err := c.redis.Ping(ctx).Err(); err != nil {
			return err
		}
	}
	if p, ok := c.Backend.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}

// load reads key into dst. On a miss it returns the key's current write
// generation, which store checks before caching what the backend returned.
func (c *Cache) load(ctx context.Context, key string, dst any) (string, bool) {
	if c.redis == nil {
		return "", false
	}
	data, err := c.redis.Get(ctx, key).Bytes()
	if err == nil {
		if err := json.Unmarshal(data, dst); err == nil {
			return "", true
		}
		_ = c.redis.Del(ctx, key).Err()
	} else if err != redis.Nil {
		// On redis errors fall back to the backing storage without failing.
		_ = c.redis.Del(ctx, key).Err()
	}
	gen, err := c.redis.Get(ctx, generationKey(key)).Result()
	if err != nil && err != redis.Nil {
		return "", false
	}
	return gen, false
}

// store caches v unless a write bumped the key's generation after the read
// that produced v began.
func (c *Cache) store(ctx context.Context, key, gen string, v any) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	genKey := generationKey(key)
	_ = c.redis.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, genKey).Result()
		if err != nil && err != redis.Nil {
			return err
		}
		if cur != gen {
			return errStaleRead
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, c.ttl)
			return nil
		})
		return err
	}, genKey)
}

// evict drops the cached entries and bumps their generations so reads that
// started before the write do not repopulate them.
func (c *Cache) evict(ctx context.Context, keys ...string) {
	if c.redis == nil {
		return
	}
	_, _ = c.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, key := range keys {
			pipe.Incr(ctx, generationKey(key))
			pipe.Expire(ctx, generationKey(key), generationTTL)
		}
		pipe.Del(ctx, keys...)
		return nil
	})
}

func generationKey(key string) string {
	return "gen:" + key
}

func tasksCacheKey(userID string) string {
	return "tasks:" + userID
}

func settingsCacheKey(userID string) string {
	return "settings:" + userID
}
