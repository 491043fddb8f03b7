package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tbourn/go-callback-handler/internal/domain"
)

// GetConfig returns the stored response policy of slug, or nil when unset.
func GetConfig(ctx context.Context, rdb redis.Cmdable, slug string) (*domain.ResponseConfig, error) {
	raw, err := rdb.Get(ctx, ConfigKey(slug)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var cfg domain.ResponseConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("%w: config of %s: %v", ErrCorruptValue, slug, err)
	}
	return &cfg, nil
}

// SetConfig overwrites the response policy of slug. Last write wins.
func SetConfig(ctx context.Context, rdb redis.Cmdable, slug string, cfg domain.ResponseConfig, ttl time.Duration) error {
	b, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	return rdb.Set(ctx, ConfigKey(slug), b, keepTTL(ttl)).Err()
}
