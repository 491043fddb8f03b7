package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tbourn/go-callback-handler/internal/domain"
)

// IsActive reports whether slug has been activated by a viewer load.
func IsActive(ctx context.Context, rdb redis.Cmdable, slug string) (bool, error) {
	n, err := rdb.Exists(ctx, ActiveKey(slug)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MarkActive sets the activation flag if it is absent. created is true only
// for the call that flipped the flag. ttl <= 0 means no expiry.
func MarkActive(ctx context.Context, rdb redis.Cmdable, slug string, ttl time.Duration) (created bool, err error) {
	return rdb.SetNX(ctx, ActiveKey(slug), "true", keepTTL(ttl)).Result()
}

// RefreshSlugTTL re-applies ttl to every per-slug key that exists.
// EXPIRE on a missing key is a no-op, so absent keys are not created.
func RefreshSlugTTL(ctx context.Context, rdb redis.Cmdable, slug string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	_, err := rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		p.Expire(ctx, RequestsKey(slug), ttl)
		p.Expire(ctx, ActiveKey(slug), ttl)
		p.Expire(ctx, ConfigKey(slug), ttl)
		p.Expire(ctx, OwnerKey(slug), ttl)
		return nil
	})
	return err
}

// GetOwner returns the identity bound to slug, or nil when none is bound.
func GetOwner(ctx context.Context, rdb redis.Cmdable, slug string) (*domain.Identity, error) {
	raw, err := rdb.Get(ctx, OwnerKey(slug)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var id domain.Identity
	if err := json.Unmarshal(raw, &id); err != nil {
		return nil, fmt.Errorf("%w: owner of %s: %v", ErrCorruptValue, slug, err)
	}
	return &id, nil
}

// SetOwnerIfAbsent binds owner to slug unless an owner is already recorded.
// The write is a single SET NX, so a concurrent loser gets bound=false.
func SetOwnerIfAbsent(ctx context.Context, rdb redis.Cmdable, slug string, owner domain.Identity, ttl time.Duration) (bound bool, err error) {
	b, err := json.Marshal(owner)
	if err != nil {
		return false, err
	}
	return rdb.SetNX(ctx, OwnerKey(slug), b, keepTTL(ttl)).Result()
}

// AddUserSlug records slug under the identity key's slug set.
func AddUserSlug(ctx context.Context, rdb redis.Cmdable, identity, slug string) error {
	return rdb.SAdd(ctx, UserSlugsKey(identity), slug).Err()
}

// ListUserSlugs returns the identity's slugs in lexical order.
func ListUserSlugs(ctx context.Context, rdb redis.Cmdable, identity string) ([]string, error) {
	out, err := rdb.SMembers(ctx, UserSlugsKey(identity)).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}

// keepTTL maps "no ttl" onto go-redis' zero expiration.
func keepTTL(ttl time.Duration) time.Duration {
	if ttl < 0 {
		return 0
	}
	return ttl
}
