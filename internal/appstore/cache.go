// Package appstore provides the store search client used by the ASO
// pipelines, with caching and retry on transient upstream failures.
package appstore

import (
	"context"
	"sync"
	"time"

	"github.com/gomodule/redigo/redis"
	"github.com/rs/zerolog/log"
)

// Cache is the TTL key-value store backing search results and extracted
// keywords. Concurrent writers for the same key compute the same value,
// so last-writer-wins is safe and no locking is required of callers.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// RedisCache is a Cache backed by a redigo connection pool.
type RedisCache struct {
	pool *redis.Pool
}

// NewRedisCache creates a Redis-backed cache for the given address.
func NewRedisCache(addr string) *RedisCache {
	return &RedisCache{
		pool: &redis.Pool{
			MaxIdle:     4,
			MaxActive:   16,
			IdleTimeout: 5 * time.Minute,
			Dial: func() (redis.Conn, error) {
				return redis.Dial("tcp", addr,
					redis.DialConnectTimeout(2*time.Second),
					redis.DialReadTimeout(2*time.Second),
					redis.DialWriteTimeout(2*time.Second))
			},
			TestOnBorrow: func(c redis.Conn, t time.Time) error {
				if time.Since(t) < time.Minute {
					return nil
				}
				_, err := c.Do("PING")
				return err
			},
		},
	}
}

// Get retrieves a cached value. A missing key is not an error.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	conn, err := c.pool.GetContext(ctx)
	if err != nil {
		return nil, false, err
	}
	defer conn.Close()

	data, err := redis.Bytes(conn.Do("GET", key))
	if err == redis.ErrNil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// Set stores a value with the given TTL.
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	conn, err := c.pool.GetContext(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	_, err = conn.Do("SET", key, value, "PX", ttl.Milliseconds())
	return err
}

// Close releases the underlying connection pool.
func (c *RedisCache) Close() error {
	return c.pool.Close()
}

// memoryEntry is one value in the in-process cache.
type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryCache is an in-process Cache used when Redis is not configured
// and in tests. Expired entries are dropped lazily on read and swept
// when the map grows past maxEntries.
type MemoryCache struct {
	mu         sync.RWMutex
	entries    map[string]memoryEntry
	maxEntries int
}

// DefaultMemoryCacheSize bounds the in-process cache.
const DefaultMemoryCacheSize = 4096

// NewMemoryCache creates an in-process TTL cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries:    make(map[string]memoryEntry),
		maxEntries: DefaultMemoryCacheSize,
	}
}

// Get retrieves a cached value, dropping it if expired.
func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return nil, false, nil
	}
	if time.Now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, false, nil
	}
	return entry.value, true, nil
}

// Set stores a value with the given TTL.
func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= c.maxEntries {
		c.sweepLocked()
	}
	c.entries[key] = memoryEntry{value: value, expiresAt: time.Now().Add(ttl)}
	return nil
}

// sweepLocked removes expired entries. Caller must hold the lock.
func (c *MemoryCache) sweepLocked() {
	now := time.Now()
	removed := 0
	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
			removed++
		}
	}
	if removed == 0 {
		// Nothing expired: evict arbitrary entries to make room.
		for key := range c.entries {
			delete(c.entries, key)
			removed++
			if removed >= c.maxEntries/10 {
				break
			}
		}
	}
	log.Debug().Int("removed", removed).Msg("Memory cache sweep complete")
}

// NewCache picks the Redis cache when an address is configured and the
// in-process cache otherwise.
func NewCache(redisAddr string) Cache {
	if redisAddr == "" {
		return NewMemoryCache()
	}
	log.Info().Str("addr", redisAddr).Msg("Using Redis search cache")
	return NewRedisCache(redisAddr)
}
