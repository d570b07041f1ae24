package metrics

import (
	"fmt"

	"github.com/lusochat/smart-search/internal/config"
)

// NewStorage creates the statistics storage described by cfg.
func NewStorage(cfg config.StatsConfig) (Storage, error) {
	switch cfg.Storage {
	case "memory", "":
		return NewMemoryStorage(cfg.RetentionDays), nil
	case "redis":
		return NewRedisStorage(cfg.RedisURL, cfg.RetentionDays)
	default:
		return nil, fmt.Errorf("unknown stats storage: %s", cfg.Storage)
	}
}
