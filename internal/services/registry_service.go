// Package services – RegistryService
//
// This file implements the slug registry. It normalizes free-form titles into
// dated slugs, tracks which slugs are active (an expiring Redis key), and
// binds an owner identity the first time an authenticated viewer loads a
// slug. Owner bindings and slug listings are persisted through RegistryRepo.
//
// Ownership rules:
//   - the first bound owner is never replaced;
//   - identities match on id when both sides carry one, otherwise on the
//     case-folded email;
//   - the viewer data endpoints admit the owner, or a browser holding the
//     slug's creation marker.
package services

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tbourn/go-callback-handler/internal/domain"
)

// RegistryRepo is the persistence contract of the slug registry.
type RegistryRepo interface {
	IsActive(ctx context.Context, rdb redis.Cmdable, slug string) (bool, error)
	MarkActive(ctx context.Context, rdb redis.Cmdable, slug string, ttl time.Duration) (bool, error)
	RefreshSlugTTL(ctx context.Context, rdb redis.Cmdable, slug string, ttl time.Duration) error
	GetOwner(ctx context.Context, rdb redis.Cmdable, slug string) (*domain.Identity, error)
	SetOwnerIfAbsent(ctx context.Context, rdb redis.Cmdable, slug string, owner domain.Identity, ttl time.Duration) (bool, error)
	AddUserSlug(ctx context.Context, rdb redis.Cmdable, identity, slug string) error
	ListUserSlugs(ctx context.Context, rdb redis.Cmdable, identity string) ([]string, error)
}

// RegistryService tracks which slugs are active and who owns them.
type RegistryService struct {
	RDB  redis.Cmdable
	Repo RegistryRepo

	// TTL is applied to the activation flag and owner binding; 0 keeps them
	// forever.
	TTL time.Duration
	// Now is the clock used for the slug date suffix.
	Now func() time.Time
}

// NewRegistryService constructs a RegistryService using the wall clock.
func NewRegistryService(rdb redis.Cmdable, r RegistryRepo, ttl time.Duration) *RegistryService {
	return &RegistryService{RDB: rdb, Repo: r, TTL: ttl, Now: time.Now}
}

func (s *RegistryService) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

// Normalize turns a free-form title into a dated slug. It fails with
// ErrInvalidSlug when nothing usable remains.
func (s *RegistryService) Normalize(input string) (string, error) {
	slug := domain.NormalizeSlug(input, s.now())
	if slug == "" {
		return "", ErrInvalidSlug
	}
	return slug, nil
}

// MarkActive activates slug. It is idempotent; activated reports whether
// this call flipped the flag.
func (s *RegistryService) MarkActive(ctx context.Context, slug string) (activated bool, err error) {
	if !domain.ValidSlug(slug) {
		return false, ErrInvalidSlug
	}
	ok, err := s.Repo.MarkActive(ctx, s.RDB, slug, s.TTL)
	return ok, storageErr("mark_active", slug, err)
}

// IsActive reports whether slug accepts captures. Malformed slugs are never
// active.
func (s *RegistryService) IsActive(ctx context.Context, slug string) (bool, error) {
	if !domain.ValidSlug(slug) {
		return false, nil
	}
	ok, err := s.Repo.IsActive(ctx, s.RDB, slug)
	return ok, storageErr("is_active", slug, err)
}

// RefreshTTL re-applies the record TTL to every key of slug.
func (s *RegistryService) RefreshTTL(ctx context.Context, slug string) error {
	return storageErr("refresh_ttl", slug, s.Repo.RefreshSlugTTL(ctx, s.RDB, slug, s.TTL))
}

// BindOwnerIfAbsent records id as the owner of slug unless one is already
// bound. Losing a concurrent race is a silent no-op. The slug is added to
// the caller's slug list whenever the caller is (or just became) the owner.
func (s *RegistryService) BindOwnerIfAbsent(ctx context.Context, slug string, id domain.Identity) (bound bool, err error) {
	if id.IsZero() {
		return false, nil
	}
	bound, err = s.Repo.SetOwnerIfAbsent(ctx, s.RDB, slug, id, s.TTL)
	if err != nil {
		return false, storageErr("bind_owner", slug, err)
	}
	if !bound {
		owns, err := s.IsOwner(ctx, slug, id)
		if err != nil || !owns {
			return false, err
		}
	}
	if err := s.Repo.AddUserSlug(ctx, s.RDB, id.Key(), slug); err != nil {
		return bound, storageErr("add_user_slug", slug, err)
	}
	return bound, nil
}

// IsOwner reports whether id matches the owner bound to slug. An unowned
// slug has no owner to match.
func (s *RegistryService) IsOwner(ctx context.Context, slug string, id domain.Identity) (bool, error) {
	owner, err := s.Repo.GetOwner(ctx, s.RDB, slug)
	if err != nil {
		return false, storageErr("get_owner", slug, err)
	}
	if owner == nil {
		return false, nil
	}
	return SameIdentity(*owner, id), nil
}

// SameIdentity compares two identities. When both carry an id the ids decide;
// otherwise the emails are compared case-insensitively.
func SameIdentity(owner, caller domain.Identity) bool {
	if owner.ID != "" && caller.ID != "" {
		return owner.ID == caller.ID
	}
	oe := strings.TrimSpace(owner.Email)
	ce := strings.TrimSpace(caller.Email)
	return oe != "" && strings.EqualFold(oe, ce)
}

// Authorize gates the viewer data endpoints: the owner may read, and so may a
// caller holding the creation marker for this slug.
func (s *RegistryService) Authorize(ctx context.Context, slug string, caller *domain.Identity, hasMarker bool) error {
	if hasMarker {
		return nil
	}
	if caller == nil || caller.IsZero() {
		return ErrUnauthorized
	}
	owns, err := s.IsOwner(ctx, slug, *caller)
	if err != nil {
		return err
	}
	if !owns {
		return ErrForbidden
	}
	return nil
}

// ListSlugs returns the slugs owned by id.
func (s *RegistryService) ListSlugs(ctx context.Context, id domain.Identity) ([]string, error) {
	if id.IsZero() {
		return nil, ErrUnauthorized
	}
	out, err := s.Repo.ListUserSlugs(ctx, s.RDB, id.Key())
	if err != nil {
		return nil, storageErr("list_user_slugs", "", err)
	}
	return out, nil
}
