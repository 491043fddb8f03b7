package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tbourn/go-callback-handler/internal/domain"
)

// IncrementHits bumps the global and per-slug counters of date and records
// slug in the known-slugs set. The three writes share one MULTI/EXEC.
func IncrementHits(ctx context.Context, rdb redis.Cmdable, slug, date string) error {
	_, err := rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Incr(ctx, TotalHitsKey(date))
		p.Incr(ctx, SlugHitsKey(slug, date))
		p.SAdd(ctx, allSlugsKey, slug)
		return nil
	})
	return err
}

// TotalHits returns the global counter of date (0 when absent).
func TotalHits(ctx context.Context, rdb redis.Cmdable, date string) (int64, error) {
	n, err := rdb.Get(ctx, TotalHitsKey(date)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}

// KnownSlugs returns every slug that has ever been captured against, in the
// order Redis hands back set members.
func KnownSlugs(ctx context.Context, rdb redis.Cmdable) ([]string, error) {
	return rdb.SMembers(ctx, allSlugsKey).Result()
}

// SlugHits returns the per-slug counters of date, aligned with slugs.
// Missing or non-numeric counters read as 0.
func SlugHits(ctx context.Context, rdb redis.Cmdable, slugs []string, date string) ([]int64, error) {
	out := make([]int64, len(slugs))
	if len(slugs) == 0 {
		return out, nil
	}
	keys := make([]string, len(slugs))
	for i, s := range slugs {
		keys[i] = SlugHitsKey(s, date)
	}
	vals, err := rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			out[i] = n
		}
	}
	return out, nil
}

// ExpireDailyStats applies retention to the counters of date.
func ExpireDailyStats(ctx context.Context, rdb redis.Cmdable, date string, slugs []string, retention time.Duration) error {
	if retention <= 0 {
		return nil
	}
	_, err := rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		p.Expire(ctx, TotalHitsKey(date), retention)
		for _, s := range slugs {
			p.Expire(ctx, SlugHitsKey(s, date), retention)
		}
		return nil
	})
	return err
}

// SaveSummary stores the summary of s.Date.
func SaveSummary(ctx context.Context, rdb redis.Cmdable, s domain.DailySummary) error {
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return rdb.Set(ctx, SummaryKey(s.Date), b, 0).Err()
}

// GetSummary returns the stored summary of date, or nil when absent.
func GetSummary(ctx context.Context, rdb redis.Cmdable, date string) (*domain.DailySummary, error) {
	raw, err := rdb.Get(ctx, SummaryKey(date)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var s domain.DailySummary
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("%w: summary %s: %v", ErrCorruptValue, date, err)
	}
	return &s, nil
}
