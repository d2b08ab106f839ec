package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrCacheMiss indicates the requested key was not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the cache entry is invalid or corrupted
	ErrInvalidEntry = errors.New("invalid cache entry")

	// ErrNoLayer is returned by NewManager when neither layer is configured
	ErrNoLayer = errors.New("cache needs a redis client or a memory size")
)

// Manager handles caching operations with an optional in-process LRU
// in front of an optional Redis backend.
type Manager struct {
	redis  *redis.Client
	memory *lru.Cache[string, *CacheEntry]
}

// NewManager creates a new cache manager. A nil redis client gives a
// memory-only cache, a zero memorySize a Redis-only cache.
func NewManager(redisClient *redis.Client, memorySize int) (*Manager, error) {
	if redisClient == nil && memorySize <= 0 {
		return nil, ErrNoLayer
	}

	m := &Manager{redis: redisClient}
	if memorySize > 0 {
		memory, err := lru.New[string, *CacheEntry](memorySize)
		if err != nil {
			return nil, fmt.Errorf("create memory cache: %w", err)
		}
		m.memory = memory
	}

	return m, nil
}

// Get retrieves a cache entry by key.
// Returns ErrCacheMiss if the key doesn't exist or entry is expired.
func (m *Manager) Get(ctx context.Context, key CacheKey) (*CacheEntry, error) {
	cacheKey := key.String()

	if m.memory != nil {
		if entry, ok := m.memory.Get(cacheKey); ok {
			if !entry.IsExpired() {
				CacheHits.WithLabelValues("memory").Inc()
				return entry, nil
			}
			m.memory.Remove(cacheKey)
			CacheEntries.WithLabelValues("memory").Set(float64(m.memory.Len()))
		}
	}

	if m.redis == nil {
		CacheMisses.Inc()
		return nil, ErrCacheMiss
	}

	// Get data from Redis
	data, err := m.redis.Get(ctx, cacheKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			CacheMisses.Inc()
			return nil, ErrCacheMiss
		}
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	// Unmarshal entry
	var entry CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	// Check if expired
	if entry.IsExpired() {
		_ = m.Delete(ctx, key)
		CacheMisses.Inc()
		return nil, ErrCacheMiss
	}

	CacheHits.WithLabelValues("redis").Inc()
	m.remember(cacheKey, &entry)

	return &entry, nil
}

// Set stores a cache entry with TTL based on the entry's Expires field.
// The entry will be automatically removed from Redis when it expires.
func (m *Manager) Set(ctx context.Context, key CacheKey, entry *CacheEntry) error {
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}

	cacheKey := key.String()

	ttl := entry.TTL()
	if ttl <= 0 {
		// Already expired, don't cache
		return nil
	}

	m.remember(cacheKey, entry)

	if m.redis == nil {
		return nil
	}

	data, err := json.Marshal(entry)
	if err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	if err := m.redis.Set(ctx, cacheKey, data, ttl).Err(); err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	return nil
}

// Delete removes a cache entry from both layers.
func (m *Manager) Delete(ctx context.Context, key CacheKey) error {
	cacheKey := key.String()

	if m.memory != nil {
		m.memory.Remove(cacheKey)
		CacheEntries.WithLabelValues("memory").Set(float64(m.memory.Len()))
	}

	if m.redis == nil {
		return nil
	}

	if err := m.redis.Del(ctx, cacheKey).Err(); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}

	return nil
}

// UpdateTTL updates the TTL of an existing cache entry.
func (m *Manager) UpdateTTL(ctx context.Context, key CacheKey, newExpires time.Time) error {
	entry, err := m.Get(ctx, key)
	if err != nil {
		return err
	}

	updated := *entry
	updated.Expires = newExpires

	if updated.TTL() <= 0 {
		return m.Delete(ctx, key)
	}
	return m.Set(ctx, key, &updated)
}

func (m *Manager) remember(cacheKey string, entry *CacheEntry) {
	if m.memory == nil {
		return
	}
	m.memory.Add(cacheKey, entry)
	CacheEntries.WithLabelValues("memory").Set(float64(m.memory.Len()))
}
