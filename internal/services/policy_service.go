// Package services – PolicyService
//
// This file implements the response policy store. Each slug has at most one
// saved ResponseConfig; a slug without one answers with the default policy
// (200, {"success": true}, application/json). Set validates the status range
// before writing and the last write wins. Captures read the policy once and
// stamp that snapshot on the record they store.
package services

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tbourn/go-callback-handler/internal/domain"
	"github.com/tbourn/go-callback-handler/internal/repo"
)

// Status bounds accepted for a response policy.
const (
	MinStatus = 100
	MaxStatus = 599
)

// PolicyService stores the per-slug synthetic response. Bodies are stored
// verbatim and are not checked against the content type.
type PolicyService struct {
	RDB redis.Cmdable
	TTL time.Duration
}

// ValidateStatus enforces the accepted status range.
func ValidateStatus(status int) error {
	if status < MinStatus || status > MaxStatus {
		return ErrInvalidStatusCode
	}
	return nil
}

// Get returns the policy of slug, or the default when none is saved. A
// stored value that no longer decodes also yields the default.
func (s *PolicyService) Get(ctx context.Context, slug string) (domain.ResponseConfig, error) {
	if !domain.ValidSlug(slug) {
		return domain.ResponseConfig{}, ErrInvalidSlug
	}
	cfg, err := repo.GetConfig(ctx, s.RDB, slug)
	if errors.Is(err, repo.ErrCorruptValue) {
		return domain.DefaultResponseConfig(), nil
	}
	if err != nil {
		return domain.ResponseConfig{}, storageErr("get_config", slug, err)
	}
	if cfg == nil {
		return domain.DefaultResponseConfig(), nil
	}
	return cfg.WithDefaults(), nil
}

// Set validates and stores cfg for slug. Last write wins.
func (s *PolicyService) Set(ctx context.Context, slug string, cfg domain.ResponseConfig) (domain.ResponseConfig, error) {
	if !domain.ValidSlug(slug) {
		return domain.ResponseConfig{}, ErrInvalidSlug
	}
	if err := ValidateStatus(cfg.Status); err != nil {
		return domain.ResponseConfig{}, err
	}
	cfg = cfg.WithDefaults()
	if err := repo.SetConfig(ctx, s.RDB, slug, cfg, s.TTL); err != nil {
		return domain.ResponseConfig{}, storageErr("set_config", slug, err)
	}
	return cfg, nil
}
