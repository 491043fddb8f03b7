package repo

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"github.com/tbourn/go-callback-handler/internal/domain"
)

// PublishCapture announces ev on the slug's capture channel and returns the
// number of subscribers that received it.
func PublishCapture(ctx context.Context, rdb redis.Cmdable, ev domain.CaptureEvent) (int64, error) {
	b, err := json.Marshal(ev)
	if err != nil {
		return 0, err
	}
	return rdb.Publish(ctx, CaptureChannel(ev.Slug), b).Result()
}
