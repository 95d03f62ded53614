package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/arc-sentinel/sentinel-core/internal/models"
	"github.com/arc-sentinel/sentinel-core/internal/monitoring"
	"github.com/arc-sentinel/sentinel-core/pkg/logger"
)

// redisCache is the single-node Redis-backed implementation.
type redisCache struct {
	client *redis.Client
	logger logger.Logger
}

// NewRedisCache connects to a single Redis node. On connection failure it
// logs the error and falls back to the in-memory cache so the server can
// still start in degraded mode.
func NewRedisCache(ctx context.Context, addr, password string, db int, log logger.Logger) Cache {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Error("redis connection failed, falling back to in-memory cache", "addr", addr, "error", err)
		_ = client.Close()
		return NewNoopCache(log)
	}

	log.Info("connected to redis cache", "addr", addr, "db", db)
	return &redisCache{client: client, logger: log}
}

func (r *redisCache) Get(ctx context.Context, key string) ([]byte, error) {
	raw, err := r.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		monitoring.RecordCacheOperation("get", "miss")
		return nil, fmt.Errorf("cache miss for key %s", key)
	}
	if err != nil {
		monitoring.RecordCacheOperation("get", "error")
		return nil, fmt.Errorf("cache get %s: %w", key, err)
	}
	monitoring.RecordCacheOperation("get", "hit")
	return raw, nil
}

func (r *redisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		monitoring.RecordCacheOperation("set", "error")
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	monitoring.RecordCacheOperation("set", "ok")
	return nil
}

func (r *redisCache) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		monitoring.RecordCacheOperation("delete", "error")
		return fmt.Errorf("cache delete %s: %w", key, err)
	}
	monitoring.RecordCacheOperation("delete", "ok")
	return nil
}

// Increment bumps a counter and applies the TTL only on first increment, so
// rate-limit windows keep their original deadline.
func (r *redisCache) Increment(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		monitoring.RecordCacheOperation("incr", "error")
		return 0, fmt.Errorf("cache incr %s: %w", key, err)
	}
	if count == 1 && ttl > 0 {
		if err := r.client.Expire(ctx, key, ttl).Err(); err != nil {
			r.logger.Warn("failed to set ttl on counter", "key", key, "error", err)
		}
	}
	monitoring.RecordCacheOperation("incr", "ok")
	return count, nil
}

func (r *redisCache) GetSession(ctx context.Context, token string) (*models.AuthUser, error) {
	raw, err := r.Get(ctx, sessionKey(token))
	if err != nil {
		return nil, err
	}
	var user models.AuthUser
	if err := json.Unmarshal(raw, &user); err != nil {
		return nil, fmt.Errorf("corrupt session payload: %w", err)
	}
	return &user, nil
}

func (r *redisCache) SetSession(ctx context.Context, token string, user *models.AuthUser, ttl time.Duration) error {
	raw, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	return r.Set(ctx, sessionKey(token), raw, ttl)
}

func (r *redisCache) InvalidateSession(ctx context.Context, token string) error {
	return r.Delete(ctx, sessionKey(token))
}

func (r *redisCache) HealthCheck(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *redisCache) Close() error {
	return r.client.Close()
}
