package prefetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"

	"github.com/lusochat/smart-search/internal/config"
	apperrors "github.com/lusochat/smart-search/internal/pkg/errors"
)

// Cache stores prefetched results by key.
type Cache interface {
	// Get returns the cached result and whether it was found.
	Get(ctx context.Context, key string) (*Result, bool, error)
	Set(ctx context.Context, key string, r *Result) error
	Close() error
}

// NewCache creates the cache described by cfg. Type "none" returns a nil
// Cache, which CachedPrefetcher accepts.
func NewCache(cfg config.CacheConfig) (Cache, error) {
	ttl := time.Duration(cfg.TTL) * time.Second
	switch cfg.Type {
	case "memory", "":
		return NewMemoryCache(cfg.Size, ttl), nil
	case "redis":
		return NewRedisCache(cfg.RedisURL, ttl)
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown cache type: %s", cfg.Type)
	}
}

// MemoryCache is a size-bounded LRU whose entries expire after a TTL.
type MemoryCache struct {
	lru *expirable.LRU[string, *Result]
}

// NewMemoryCache creates a cache holding at most size entries for ttl.
func NewMemoryCache(size int, ttl time.Duration) *MemoryCache {
	if size < 1 {
		size = 1
	}
	return &MemoryCache{lru: expirable.NewLRU[string, *Result](size, nil, ttl)}
}

// Get implements Cache.
func (c *MemoryCache) Get(_ context.Context, key string) (*Result, bool, error) {
	r, ok := c.lru.Get(key)
	return r, ok, nil
}

// Set implements Cache.
func (c *MemoryCache) Set(_ context.Context, key string, r *Result) error {
	c.lru.Add(key, r)
	return nil
}

// Len returns the number of live entries.
func (c *MemoryCache) Len() int {
	return c.lru.Len()
}

// Close implements Cache.
func (c *MemoryCache) Close() error {
	c.lru.Purge()
	return nil
}

// RedisCache stores results as JSON strings with an expiry.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(url string, ttl time.Duration) (*RedisCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return &RedisCache{client: client, prefix: "smart_search:prefetch:", ttl: ttl}, nil
}

// Get implements Cache.
func (c *RedisCache) Get(ctx context.Context, key string) (*Result, bool, error) {
	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, apperrors.CacheError("reading cached result", err)
	}

	var r Result
	if err := json.Unmarshal(data, &r); err != nil {
		// A corrupt entry is a miss; the next Set overwrites it.
		return nil, false, nil
	}
	return &r, true, nil
}

// Set implements Cache.
func (c *RedisCache) Set(ctx context.Context, key string, r *Result) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}
	if err := c.client.Set(ctx, c.prefix+key, data, c.ttl).Err(); err != nil {
		return apperrors.CacheError("writing cached result", err)
	}
	return nil
}

// Close implements Cache.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
