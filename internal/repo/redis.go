package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// ErrCorruptValue is returned when a stored value cannot be decoded.
var ErrCorruptValue = errors.New("corrupt stored value")

// Logical key space shared by every process of the service.
const (
	allSlugsKey = "all_slugs"
)

// RequestsKey is the capture ledger list of slug, newest first.
func RequestsKey(slug string) string { return "requests:" + slug }

// ActiveKey is the activation flag of slug.
func ActiveKey(slug string) string { return "active:" + slug }

// ConfigKey holds the JSON response policy of slug.
func ConfigKey(slug string) string { return "config:" + slug }

// OwnerKey holds the JSON identity bound to slug.
func OwnerKey(slug string) string { return "slug:owner:" + slug }

// UserSlugsKey is the set of slugs owned by the identity key.
func UserSlugsKey(identity string) string { return "user_slugs:" + identity }

// TotalHitsKey is the global capture counter of date (YYYY-MM-DD).
func TotalHitsKey(date string) string { return "stats:total:" + date }

// SlugHitsKey is the per-slug capture counter of date.
func SlugHitsKey(slug, date string) string { return "stats:slug:" + slug + ":" + date }

// SummaryKey holds the JSON daily summary of date.
func SummaryKey(date string) string { return "summary:" + date }

// CaptureChannel is the pub/sub channel carrying capture events of slug.
func CaptureChannel(slug string) string { return "capture:" + slug }

// OpenRedis parses a redis:// URL, connects and pings the server.
func OpenRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	c := redis.NewClient(opts)
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return c, nil
}
