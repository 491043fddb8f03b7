package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// appendScript pushes one record at the head of the list, trims it to the
// newest ARGV[2] entries and refreshes the expiry, all in one atomic step so
// no reader ever observes the list above its cap.
var appendScript = redis.NewScript(`
	local key = KEYS[1]
	local max = tonumber(ARGV[2])
	local ttl_ms = tonumber(ARGV[3])

	redis.call('LPUSH', key, ARGV[1])
	redis.call('LTRIM', key, 0, max - 1)
	if ttl_ms > 0 then
		redis.call('PEXPIRE', key, ttl_ms)
	end
	return redis.call('LLEN', key)
`)

// AppendCapture stores an encoded capture record at the head of slug's
// ledger, capped at max entries. It returns the ledger length after the trim.
func AppendCapture(ctx context.Context, rdb redis.Cmdable, slug string, record []byte, max int, ttl time.Duration) (int64, error) {
	if max <= 0 {
		return 0, fmt.Errorf("append capture: invalid cap %d", max)
	}
	n, err := appendScript.Run(ctx, rdb, []string{RequestsKey(slug)}, record, max, ttl.Milliseconds()).Int64()
	if err != nil {
		return 0, fmt.Errorf("append capture: %w", err)
	}
	return n, nil
}

// RecentCaptures returns up to limit encoded records, newest first. An
// unknown slug yields an empty slice.
func RecentCaptures(ctx context.Context, rdb redis.Cmdable, slug string, limit int) ([]string, error) {
	if limit <= 0 {
		return []string{}, nil
	}
	return rdb.LRange(ctx, RequestsKey(slug), 0, int64(limit-1)).Result()
}
