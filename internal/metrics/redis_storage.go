package metrics

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStorage keeps daily counters in one Redis hash per day, so replicas
// behind a load balancer share statistics.
type RedisStorage struct {
	client *redis.Client
	prefix string
	ttl    time.Duration // expiry of a day's hash
}

// NewRedisStorage creates a new Redis storage backend.
// Returns error if connection fails.
func NewRedisStorage(url string, retentionDays int) (*RedisStorage, error) {
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

	if retentionDays < 1 {
		retentionDays = 1
	}

	return &RedisStorage{
		client: client,
		prefix: "smart_search:stats:",
		ttl:    time.Duration(retentionDays+1) * 24 * time.Hour,
	}, nil
}

func (rs *RedisStorage) key(day string) string {
	return rs.prefix + day
}

// Increment implements Storage. All fields and the expiry are written in
// one pipeline.
func (rs *RedisStorage) Increment(ctx context.Context, day string, fields []string) error {
	key := rs.key(day)

	pipe := rs.client.TxPipeline()
	for _, f := range fields {
		pipe.HIncrBy(ctx, key, f, 1)
	}
	pipe.Expire(ctx, key, rs.ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("incrementing stats: %w", err)
	}
	return nil
}

// Load implements Storage.
func (rs *RedisStorage) Load(ctx context.Context, day string) (map[string]int64, error) {
	raw, err := rs.client.HGetAll(ctx, rs.key(day)).Result()
	if err != nil {
		return nil, fmt.Errorf("loading stats: %w", err)
	}

	out := make(map[string]int64, len(raw))
	for k, v := range raw {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			continue // skip foreign values
		}
		out[k] = n
	}
	return out, nil
}

// Delete removes a day's counters.
func (rs *RedisStorage) Delete(ctx context.Context, day string) error {
	if err := rs.client.Del(ctx, rs.key(day)).Err(); err != nil {
		return fmt.Errorf("deleting stats: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (rs *RedisStorage) Close() error {
	return rs.client.Close()
}
