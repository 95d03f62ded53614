package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/arc-sentinel/sentinel-core/internal/models"
	"github.com/arc-sentinel/sentinel-core/pkg/logger"
)

// Cache is the shared cache surface used for session validation and
// short-lived counters. Implementations must be safe for concurrent use.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Increment(ctx context.Context, key string, ttl time.Duration) (int64, error)

	GetSession(ctx context.Context, token string) (*models.AuthUser, error)
	SetSession(ctx context.Context, token string, user *models.AuthUser, ttl time.Duration) error
	InvalidateSession(ctx context.Context, token string) error

	HealthCheck(ctx context.Context) error
	Close() error
}

func sessionKey(token string) string {
	return "session:" + token
}

// noopCache is the degraded in-process fallback used when the cache backend
// is unreachable at startup. Sessions stored here do not survive restarts
// and are not shared across replicas.
type noopCache struct {
	mu     sync.RWMutex
	data   map[string]noopEntry
	logger logger.Logger
}

type noopEntry struct {
	value     []byte
	expiresAt time.Time
}

// NewNoopCache returns the in-memory fallback cache.
func NewNoopCache(log logger.Logger) Cache {
	log.Warn("using in-memory cache fallback, sessions will not be shared across replicas")
	return &noopCache{data: make(map[string]noopEntry), logger: log}
}

func (n *noopCache) Get(_ context.Context, key string) ([]byte, error) {
	n.mu.RLock()
	entry, ok := n.data[key]
	n.mu.RUnlock()
	if !ok || (!entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt)) {
		return nil, fmt.Errorf("cache miss for key %s", key)
	}
	return entry.value, nil
}

func (n *noopCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	var expires time.Time
	if ttl > 0 {
		expires = time.Now().Add(ttl)
	}
	n.mu.Lock()
	n.data[key] = noopEntry{value: value, expiresAt: expires}
	n.mu.Unlock()
	return nil
}

func (n *noopCache) Delete(_ context.Context, key string) error {
	n.mu.Lock()
	delete(n.data, key)
	n.mu.Unlock()
	return nil
}

func (n *noopCache) Increment(_ context.Context, key string, ttl time.Duration) (int64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	entry, ok := n.data[key]
	var count int64
	if ok && (entry.expiresAt.IsZero() || time.Now().Before(entry.expiresAt)) {
		if err := json.Unmarshal(entry.value, &count); err != nil {
			count = 0
		}
	}
	count++

	raw, _ := json.Marshal(count)
	expires := entry.expiresAt
	if !ok || expires.IsZero() {
		expires = time.Now().Add(ttl)
	}
	n.data[key] = noopEntry{value: raw, expiresAt: expires}
	return count, nil
}

func (n *noopCache) GetSession(ctx context.Context, token string) (*models.AuthUser, error) {
	raw, err := n.Get(ctx, sessionKey(token))
	if err != nil {
		return nil, err
	}
	var user models.AuthUser
	if err := json.Unmarshal(raw, &user); err != nil {
		return nil, fmt.Errorf("corrupt session payload: %w", err)
	}
	return &user, nil
}

func (n *noopCache) SetSession(ctx context.Context, token string, user *models.AuthUser, ttl time.Duration) error {
	raw, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	return n.Set(ctx, sessionKey(token), raw, ttl)
}

func (n *noopCache) InvalidateSession(ctx context.Context, token string) error {
	return n.Delete(ctx, sessionKey(token))
}

func (n *noopCache) HealthCheck(context.Context) error { return nil }

func (n *noopCache) Close() error { return nil }
